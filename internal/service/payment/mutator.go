package payment

import (
    "context"
    "fmt"

    "github.com/google/uuid"
    "github.com/govalues/money"
)

// applyDelta runs the relative balance update for a locked organization and
// returns the re-read balance. Negative deltas are guarded so the balance
// never drops below zero; in that case the balance is returned unchanged along
// with an *InsufficientFundsError.
func applyDelta(ctx context.Context, tx Tx, orgID uuid.UUID, delta money.Amount) (money.Amount, error) {
    applied, err := tx.AddToBalance(ctx, orgID, delta, delta.IsNeg())
    if err != nil { return money.Amount{}, fmt.Errorf("update balance: %w", err) }
    current, err := tx.Balance(ctx, orgID)
    if err != nil { return money.Amount{}, fmt.Errorf("read balance: %w", err) }
    if !applied { return current, &InsufficientFundsError{Balance: current, Delta: delta} }
    return current, nil
}
