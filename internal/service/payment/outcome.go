package payment

import (
    "errors"
    "fmt"

    "github.com/govalues/money"

    "github.com/tinoosan/payments/internal/errs"
    "github.com/tinoosan/payments/internal/ledger"
)

// Status is the top-level result of an ingestion.
type Status string

const (
    StatusAccepted Status = "accepted"
    StatusRejected Status = "rejected"
)

// Reason explains a rejection. The set is closed.
type Reason string

const (
    ReasonNone            Reason = ""
    ReasonMissingFields   Reason = "missing_fields"
    ReasonInvalidAmount   Reason = "invalid_amount"
    ReasonDuplicate       Reason = "duplicate"
    // ReasonOrgNotFound is reserved for flows that do not create organizations. Ingest never returns it.
    ReasonOrgNotFound     Reason = "organization_not_found"
    ReasonInternal        Reason = "internal_error"
)

// Outcome is the result of Ingest. On acceptance Payment and Organization hold
// the committed rows; on rejection Err carries the detail for logging.
type Outcome struct {
    Status       Status
    Reason       Reason
    Payment      ledger.Payment
    Organization ledger.Organization
    Err          error
}

// Accepted reports whether the payment was applied by this call.
func (o Outcome) Accepted() bool { return o.Status == StatusAccepted }

// Duplicate reports whether the operation had already been applied earlier.
func (o Outcome) Duplicate() bool { return o.Reason == ReasonDuplicate }

// Retryable reports whether the rejection came from lock contention and the
// whole call may be repeated.
func (o Outcome) Retryable() bool { return o.Reason == ReasonInternal && errs.Retryable(o.Err) }

func accepted(p ledger.Payment, org ledger.Organization) Outcome {
    return Outcome{Status: StatusAccepted, Payment: p, Organization: org}
}

func rejected(reason Reason, err error) Outcome {
    return Outcome{Status: StatusRejected, Reason: reason, Err: err}
}

// InsufficientFundsError is returned when a debit would take the balance
// below zero. Balance is the unchanged stored balance.
type InsufficientFundsError struct {
    Balance money.Amount
    Delta   money.Amount
}

func (e *InsufficientFundsError) Error() string {
    return fmt.Sprintf("insufficient funds: balance %s, delta %s", ledger.FormatAmount(e.Balance), ledger.FormatAmount(e.Delta))
}

// Is lets errors.Is match errs.ErrInsufficientFunds.
func (e *InsufficientFundsError) Is(target error) bool { return target == errs.ErrInsufficientFunds }

// reasonFor maps an error from the transactional part of Ingest to a reason.
func reasonFor(err error) Reason {
    switch {
    case errors.Is(err, errs.ErrDuplicate):
        return ReasonDuplicate
    case errors.Is(err, errs.ErrMissingFields):
        return ReasonMissingFields
    case errors.Is(err, errs.ErrInvalidAmount):
        return ReasonInvalidAmount
    default:
        return ReasonInternal
    }
}
