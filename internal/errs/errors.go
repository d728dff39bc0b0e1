package errs

import (
    "errors"
    "fmt"
)

// Common sentinel errors for cross-layer signaling.
var (
    ErrNotFound = errors.New("not_found")
    ErrConflict = errors.New("conflict")
    ErrInvalid  = errors.New("invalid")
    // ErrUnprocessable is used for semantic validation failures (HTTP 422)
    ErrUnprocessable = errors.New("unprocessable")

    // ErrMissingFields reports absent or blank required webhook fields.
    ErrMissingFields = fmt.Errorf("missing_fields: %w", ErrInvalid)
    // ErrInvalidAmount reports an amount that is not an exact positive decimal with at most two fractional digits.
    ErrInvalidAmount = fmt.Errorf("invalid_amount: %w", ErrInvalid)
    // ErrDuplicate means the operation id was already applied.
    ErrDuplicate = fmt.Errorf("duplicate: %w", ErrConflict)
    // ErrInsufficientFunds rejects a debit that would leave a negative balance.
    ErrInsufficientFunds = errors.New("insufficient_funds")
    // ErrContention means a lock could not be taken in time. Safe to retry the whole operation.
    ErrContention = errors.New("contention")
)

// Retryable reports whether err is transient lock contention.
func Retryable(err error) bool { return errors.Is(err, ErrContention) }
