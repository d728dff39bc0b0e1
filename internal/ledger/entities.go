package ledger

import (
    "time"

    "github.com/google/uuid"
    "github.com/govalues/money"
)

// Organization owns a running balance keyed by its fiscal identifier (INN).
type Organization struct {
    ID        uuid.UUID
    INN       string
    // Balance is the materialized sum of the organization's balance log.
    Balance   money.Amount
    CreatedAt time.Time
    // Version is the id of the latest balance log entry, 0 before the first one.
    Version int64
}

// Payment is an applied bank notification. OperationID is the idempotency key.
type Payment struct {
    ID             uuid.UUID
    OperationID    string
    Amount         money.Amount
    PayerINN       string
    DocumentNumber string
    DocumentDate   time.Time
    CreatedAt      time.Time
}

// BalanceLogEntry records one signed balance mutation. Entries are append-only
// and ordered by (CreatedAt, ID).
type BalanceLogEntry struct {
    ID             int64
    OrganizationID uuid.UUID
    Amount         money.Amount
    CreatedAt      time.Time
}

// HistoryEntry is a balance log row with the balance reached right after it.
type HistoryEntry struct {
    Amount       money.Amount
    CreatedAt    time.Time
    BalanceAfter money.Amount
}
