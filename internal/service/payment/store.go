package payment

import (
    "context"
    "time"

    "github.com/google/uuid"
    "github.com/govalues/money"

    "github.com/tinoosan/payments/internal/cache"
    "github.com/tinoosan/payments/internal/ledger"
)

// Store opens scoped transactions. WithinTx commits when fn returns nil and
// rolls back on every other exit path, including panics. Locks taken through
// Tx are held until the transaction ends.
type Store interface {
    WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the lock-capable write surface used inside one transaction.
// Lock order is always operation id first, then organization.
type Tx interface {
    // LockOperation takes an exclusive lock on operationID for the rest of the
    // transaction and reports whether a payment with that id already exists.
    LockOperation(ctx context.Context, operationID string) (exists bool, err error)
    // LockOrganization locks the organization row for inn. When it does not
    // exist it is created with a zero balance if create is set, otherwise
    // errs.ErrNotFound is returned.
    LockOrganization(ctx context.Context, inn string, create bool) (ledger.Organization, error)
    // InsertPayment stores p. A second payment with the same operation id fails with errs.ErrDuplicate.
    InsertPayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error)
    // AppendBalanceLog appends a ledger row for a locked organization.
    AppendBalanceLog(ctx context.Context, e ledger.BalanceLogEntry) (ledger.BalanceLogEntry, error)
    // AddToBalance applies balance = balance + delta in the store. With
    // guardNegative set the update only applies when the result stays >= 0;
    // applied is false when the guard blocked it.
    AddToBalance(ctx context.Context, orgID uuid.UUID, delta money.Amount, guardNegative bool) (applied bool, err error)
    // Balance re-reads the authoritative stored balance.
    Balance(ctx context.Context, orgID uuid.UUID) (money.Amount, error)
}

// BalanceCache receives the balance of every committed change.
type BalanceCache interface {
    SetIfNewer(ctx context.Context, key string, object cache.BalanceSnapshot, ttl time.Duration) (bool, error)
    Delete(ctx context.Context, key string) error
}
