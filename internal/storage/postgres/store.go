// Package postgres provides a pgx-backed ledger store.
//
// Writes run inside WithinTx with a bounded lock wait. Operation ids are
// serialized with transaction-scoped advisory locks, organizations with row
// locks, and balances change only through a relative update evaluated by the
// database. Migrations live under db/migrations and are embedded.
package postgres

import (
    "context"
    "errors"
    "fmt"
    "strconv"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/tinoosan/payments/internal/errs"
    "github.com/tinoosan/payments/internal/service/payment"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
    pool        *pgxpool.Pool
    iso         pgx.TxIsoLevel
    lockTimeout time.Duration
    maxConns    int32
}

// Option configures the store.
type Option func(*Store)

// WithLockTimeout bounds lock waits inside transactions. Default 5s.
func WithLockTimeout(d time.Duration) Option { return func(s *Store) { s.lockTimeout = d } }

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) Option { return func(s *Store) { s.maxConns = n } }

// WithIsolation selects read_committed (default), repeatable_read or serializable.
func WithIsolation(level string) Option {
    return func(s *Store) {
        switch level {
        case "repeatable_read":
            s.iso = pgx.RepeatableRead
        case "serializable":
            s.iso = pgx.Serializable
        default:
            s.iso = pgx.ReadCommitted
        }
    }
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
    s := &Store{iso: pgx.ReadCommitted, lockTimeout: 5 * time.Second}
    for _, o := range opts { o(s) }
    cfg, err := pgxpool.ParseConfig(dsn)
    if err != nil { return nil, err }
    if s.maxConns > 0 { cfg.MaxConns = s.maxConns }
    pool, err := pgxpool.NewWithConfig(ctx, cfg)
    if err != nil { return nil, err }
    // Verify connection
    if err := pool.Ping(ctx); err != nil { pool.Close(); return nil, err }
    s.pool = pool
    return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() { if s.pool != nil { s.pool.Close() } }

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// WithinTx implements payment.Store. The transaction is rolled back on every
// exit path except a successful commit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
    tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: s.iso})
    if err != nil { return fmt.Errorf("begin: %w", classify(err)) }
    defer func() { _ = tx.Rollback(ctx) }()
    if _, err := tx.Exec(ctx, `select set_config('lock_timeout', $1, true)`, lockTimeoutSetting(s.lockTimeout)); err != nil {
        return fmt.Errorf("set lock_timeout: %w", classify(err))
    }
    if err := fn(ctx, &pgTx{tx: tx}); err != nil { return classify(err) }
    if err := tx.Commit(ctx); err != nil { return fmt.Errorf("commit: %w", classify(err)) }
    return nil
}

func lockTimeoutSetting(d time.Duration) string {
    ms := d.Milliseconds()
    if ms < 1 { ms = 1 }
    return strconv.FormatInt(ms, 10) + "ms"
}

// SQLSTATE codes mapped onto the error taxonomy.
const (
    codeUniqueViolation      = "23505"
    codeLockNotAvailable     = "55P03"
    codeDeadlockDetected     = "40P01"
    codeSerializationFailure = "40001"
)

// classify maps Postgres errors to errs sentinels, keeping the original in the chain.
func classify(err error) error {
    if err == nil { return nil }
    var pgErr *pgconn.PgError
    if !errors.As(err, &pgErr) { return err }
    switch pgErr.Code {
    case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure:
        if errors.Is(err, errs.ErrContention) { return err }
        return fmt.Errorf("%w: %w", errs.ErrContention, err)
    case codeUniqueViolation:
        if pgErr.ConstraintName == "payments_operation_id_key" {
            if errors.Is(err, errs.ErrDuplicate) { return err }
            return fmt.Errorf("%w: %w", errs.ErrDuplicate, err)
        }
        return fmt.Errorf("%w: %w", errs.ErrConflict, err)
    }
    return err
}
