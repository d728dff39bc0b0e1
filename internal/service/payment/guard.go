package payment

import (
    "context"
    "fmt"

    "github.com/tinoosan/payments/internal/errs"
)

// claimOperation locks operationID for the rest of the transaction and fails
// with errs.ErrDuplicate when it was already applied. A concurrent claim for
// the same id blocks until this transaction ends and then sees the payment.
func claimOperation(ctx context.Context, tx Tx, operationID string) error {
    exists, err := tx.LockOperation(ctx, operationID)
    if err != nil { return fmt.Errorf("lock operation: %w", err) }
    if exists { return fmt.Errorf("operation %s: %w", operationID, errs.ErrDuplicate) }
    return nil
}
