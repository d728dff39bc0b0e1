package query

import (
    "context"

    "github.com/google/uuid"

    "github.com/tinoosan/payments/internal/ledger"
)

// ReadMode selects how balance reads interact with in-flight writers.
type ReadMode string

const (
    // ReadMVCC reads the last committed balance without locking.
    ReadMVCC ReadMode = "mvcc"
    // ReadNoWait takes an exclusive lock without waiting and fails with
    // errs.ErrContention when a writer holds the row.
    ReadNoWait ReadMode = "nowait"
)

// OrganizationFilter narrows organization listings. Empty fields match everything.
type OrganizationFilter struct {
    INN   string
    Limit int
}

// PaymentFilter narrows payment searches. Empty fields match everything.
type PaymentFilter struct {
    OperationID    string
    PayerINN       string
    DocumentNumber string
    Limit          int
}

// Repo is the read side of the ledger store.
type Repo interface {
    OrganizationByINN(ctx context.Context, inn string, mode ReadMode) (ledger.Organization, error)
    // BalanceHistory returns up to limit entries, most recent first, with the
    // running balance reached after each entry.
    BalanceHistory(ctx context.Context, orgID uuid.UUID, limit int) ([]ledger.HistoryEntry, error)
    ListOrganizations(ctx context.Context, f OrganizationFilter) ([]ledger.Organization, error)
    SearchPayments(ctx context.Context, f PaymentFilter) ([]ledger.Payment, error)
}
