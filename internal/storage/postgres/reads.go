package postgres

import (
    "context"
    "errors"
    "fmt"

    sq "github.com/Masterminds/squirrel"
    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"

    "github.com/tinoosan/payments/internal/errs"
    "github.com/tinoosan/payments/internal/ledger"
    "github.com/tinoosan/payments/internal/service/query"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// versionColumn is the id of the organization's latest balance log entry.
const versionColumn = `coalesce((select max(b.id) from balance_log b where b.organization_id = organizations.id), 0) as version`

// OrganizationByINN implements query.Repo. ReadMVCC is a plain snapshot read;
// ReadNoWait locks the row with NOWAIT and maps a busy row to errs.ErrContention.
func (s *Store) OrganizationByINN(ctx context.Context, inn string, mode query.ReadMode) (ledger.Organization, error) {
    base := `select id, inn, balance_minor, created_at, ` + versionColumn + ` from organizations where inn = $1`
    if mode != query.ReadNoWait {
        return scanOrganization(s.pool.QueryRow(ctx, base, inn))
    }
    tx, err := s.pool.Begin(ctx)
    if err != nil { return ledger.Organization{}, fmt.Errorf("begin: %w", classify(err)) }
    defer func() { _ = tx.Rollback(ctx) }()
    o, err := scanOrganization(tx.QueryRow(ctx, base+` for update nowait`, inn))
    if err != nil { return ledger.Organization{}, err }
    if err := tx.Commit(ctx); err != nil { return ledger.Organization{}, classify(err) }
    return o, nil
}

func scanOrganization(row pgx.Row) (ledger.Organization, error) {
    var o ledger.Organization
    var minor int64
    if err := row.Scan(&o.ID, &o.INN, &minor, &o.CreatedAt, &o.Version); err != nil {
        if errors.Is(err, pgx.ErrNoRows) { return ledger.Organization{}, errs.ErrNotFound }
        return ledger.Organization{}, classify(err)
    }
    o.Balance = ledger.FromMinor(minor)
    return o, nil
}

// BalanceHistory implements query.Repo. balance_after is the running sum in
// ledger order, computed before the newest-first limit is applied.
func (s *Store) BalanceHistory(ctx context.Context, orgID uuid.UUID, limit int) ([]ledger.HistoryEntry, error) {
    rows, err := s.pool.Query(ctx, `
        select amount_minor, created_at, balance_after
        from (
            select id, amount_minor, created_at,
                (sum(amount_minor) over (order by created_at, id rows between unbounded preceding and current row))::bigint as balance_after
            from balance_log
            where organization_id = $1
        ) h
        order by created_at desc, id desc
        limit $2
    `, orgID, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.HistoryEntry, 0, limit)
    for rows.Next() {
        var amount, after int64
        var e ledger.HistoryEntry
        if err := rows.Scan(&amount, &e.CreatedAt, &after); err != nil { return nil, err }
        e.Amount = ledger.FromMinor(amount)
        e.BalanceAfter = ledger.FromMinor(after)
        out = append(out, e)
    }
    return out, rows.Err()
}

// BalanceLog returns all entries of an organization in ledger order.
func (s *Store) BalanceLog(ctx context.Context, orgID uuid.UUID) ([]ledger.BalanceLogEntry, error) {
    rows, err := s.pool.Query(ctx, `
        select id, organization_id, amount_minor, created_at
        from balance_log
        where organization_id = $1
        order by created_at, id
    `, orgID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.BalanceLogEntry, 0)
    for rows.Next() {
        var e ledger.BalanceLogEntry
        var minor int64
        if err := rows.Scan(&e.ID, &e.OrganizationID, &minor, &e.CreatedAt); err != nil { return nil, err }
        e.Amount = ledger.FromMinor(minor)
        out = append(out, e)
    }
    return out, rows.Err()
}

// ListOrganizations implements query.Repo. INN matches by prefix.
func (s *Store) ListOrganizations(ctx context.Context, f query.OrganizationFilter) ([]ledger.Organization, error) {
    q := psql.Select("id", "inn", "balance_minor", "created_at", versionColumn).From("organizations").OrderBy("inn")
    if f.INN != "" { q = q.Where(sq.Like{"inn": escapeLike(f.INN) + "%"}) }
    if f.Limit > 0 { q = q.Limit(uint64(f.Limit)) }
    sqlStr, args, err := q.ToSql()
    if err != nil { return nil, fmt.Errorf("build organizations query: %w", err) }
    rows, err := s.pool.Query(ctx, sqlStr, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.Organization, 0)
    for rows.Next() {
        o, err := scanOrganization(rows)
        if err != nil { return nil, err }
        out = append(out, o)
    }
    return out, rows.Err()
}

// SearchPayments implements query.Repo, newest first. operation_id and
// payer_inn match exactly; document_number matches case-insensitively as a substring.
func (s *Store) SearchPayments(ctx context.Context, f query.PaymentFilter) ([]ledger.Payment, error) {
    q := psql.Select("id", "operation_id", "amount_minor", "payer_inn", "document_number", "document_date", "created_at").
        From("payments").
        OrderBy("created_at desc", "id desc")
    if f.OperationID != "" { q = q.Where(sq.Eq{"operation_id": f.OperationID}) }
    if f.PayerINN != "" { q = q.Where(sq.Eq{"payer_inn": f.PayerINN}) }
    if f.DocumentNumber != "" { q = q.Where(sq.ILike{"document_number": "%" + escapeLike(f.DocumentNumber) + "%"}) }
    if f.Limit > 0 { q = q.Limit(uint64(f.Limit)) }
    sqlStr, args, err := q.ToSql()
    if err != nil { return nil, fmt.Errorf("build payments query: %w", err) }
    rows, err := s.pool.Query(ctx, sqlStr, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.Payment, 0)
    for rows.Next() {
        var p ledger.Payment
        var minor int64
        if err := rows.Scan(&p.ID, &p.OperationID, &minor, &p.PayerINN, &p.DocumentNumber, &p.DocumentDate, &p.CreatedAt); err != nil { return nil, err }
        p.Amount = ledger.FromMinor(minor)
        out = append(out, p)
    }
    return out, rows.Err()
}

func escapeLike(s string) string {
    out := make([]rune, 0, len(s))
    for _, r := range s {
        if r == '%' || r == '_' || r == '\\' { out = append(out, '\\') }
        out = append(out, r)
    }
    return string(out)
}
