package postgres

import (
    "context"

    "github.com/govalues/money"

    "github.com/tinoosan/payments/internal/ledger"
    "github.com/tinoosan/payments/internal/service/payment"
)

// SeedOrganization creates (or reuses) the organization for inn and credits
// opening through the balance log so the balance stays reconstructable.
func (s *Store) SeedOrganization(ctx context.Context, inn string, opening money.Amount) (ledger.Organization, error) {
    var org ledger.Organization
    err := s.WithinTx(ctx, func(ctx context.Context, tx payment.Tx) error {
        o, err := tx.LockOrganization(ctx, inn, true)
        if err != nil { return err }
        if !opening.IsZero() {
            if _, err := tx.AppendBalanceLog(ctx, ledger.BalanceLogEntry{OrganizationID: o.ID, Amount: opening}); err != nil { return err }
            if _, err := tx.AddToBalance(ctx, o.ID, opening, false); err != nil { return err }
        }
        bal, err := tx.Balance(ctx, o.ID)
        if err != nil { return err }
        o.Balance = bal
        org = o
        return nil
    })
    return org, err
}
