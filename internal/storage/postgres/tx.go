package postgres

import (
    "context"
    "errors"

    "github.com/google/uuid"
    "github.com/govalues/money"
    "github.com/jackc/pgx/v5"

    "github.com/tinoosan/payments/internal/errs"
    "github.com/tinoosan/payments/internal/ledger"
)

// advisoryOperations namespaces operation-id advisory locks.
const advisoryOperations = 7301

type pgTx struct {
    tx pgx.Tx
}

func (t *pgTx) LockOperation(ctx context.Context, operationID string) (bool, error) {
    if _, err := t.tx.Exec(ctx, `select pg_advisory_xact_lock($1, hashtext($2))`, int32(advisoryOperations), operationID); err != nil {
        return false, classify(err)
    }
    var exists bool
    err := t.tx.QueryRow(ctx, `select exists(select 1 from payments where operation_id = $1)`, operationID).Scan(&exists)
    return exists, classify(err)
}

func (t *pgTx) LockOrganization(ctx context.Context, inn string, create bool) (ledger.Organization, error) {
    if create {
        if _, err := t.tx.Exec(ctx, `
            insert into organizations (id, inn) values ($1, $2)
            on conflict (inn) do nothing
        `, uuid.New(), inn); err != nil {
            return ledger.Organization{}, classify(err)
        }
    }
    var o ledger.Organization
    var minor int64
    err := t.tx.QueryRow(ctx, `
        select id, inn, balance_minor, created_at
        from organizations
        where inn = $1
        for update
    `, inn).Scan(&o.ID, &o.INN, &minor, &o.CreatedAt)
    if errors.Is(err, pgx.ErrNoRows) { return ledger.Organization{}, errs.ErrNotFound }
    if err != nil { return ledger.Organization{}, classify(err) }
    o.Balance = ledger.FromMinor(minor)
    return o, nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
    if p.ID == uuid.Nil { p.ID = uuid.New() }
    err := t.tx.QueryRow(ctx, `
        insert into payments (id, operation_id, amount_minor, payer_inn, document_number, document_date)
        values ($1,$2,$3,$4,$5,$6)
        returning created_at
    `, p.ID, p.OperationID, ledger.Minor(p.Amount), p.PayerINN, p.DocumentNumber, p.DocumentDate).Scan(&p.CreatedAt)
    if err != nil { return ledger.Payment{}, classify(err) }
    return p, nil
}

func (t *pgTx) AppendBalanceLog(ctx context.Context, e ledger.BalanceLogEntry) (ledger.BalanceLogEntry, error) {
    err := t.tx.QueryRow(ctx, `
        insert into balance_log (organization_id, amount_minor)
        values ($1, $2)
        returning id, created_at
    `, e.OrganizationID, ledger.Minor(e.Amount)).Scan(&e.ID, &e.CreatedAt)
    if err != nil { return ledger.BalanceLogEntry{}, classify(err) }
    return e, nil
}

func (t *pgTx) AddToBalance(ctx context.Context, orgID uuid.UUID, delta money.Amount, guardNegative bool) (bool, error) {
    tag, err := t.tx.Exec(ctx, `
        update organizations
        set balance_minor = balance_minor + $1
        where id = $2 and (not $3 or balance_minor + $1 >= 0)
    `, ledger.Minor(delta), orgID, guardNegative)
    if err != nil { return false, classify(err) }
    return tag.RowsAffected() == 1, nil
}

func (t *pgTx) Balance(ctx context.Context, orgID uuid.UUID) (money.Amount, error) {
    var minor int64
    err := t.tx.QueryRow(ctx, `select balance_minor from organizations where id = $1`, orgID).Scan(&minor)
    if errors.Is(err, pgx.ErrNoRows) { return money.Amount{}, errs.ErrNotFound }
    if err != nil { return money.Amount{}, classify(err) }
    return ledger.FromMinor(minor), nil
}
