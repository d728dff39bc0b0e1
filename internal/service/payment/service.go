// Package payment applies bank payment notifications to organization balances
// exactly once per operation id.
package payment

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strings"
    "time"

    "github.com/go-playground/validator/v10"
    "github.com/google/uuid"
    "github.com/govalues/money"

    "github.com/tinoosan/payments/internal/cache"
    "github.com/tinoosan/payments/internal/errs"
    "github.com/tinoosan/payments/internal/ledger"
)

// Service ingests webhook events and adjusts balances.
type Service interface {
    // Ingest applies one bank notification atomically. It never returns a
    // partially applied payment: on any rejection nothing was written.
    Ingest(ctx context.Context, ev Event) Outcome
    // Adjust applies a signed delta to an existing organization and returns the
    // new balance. A debit that would make the balance negative fails with
    // *InsufficientFundsError and the unchanged balance.
    Adjust(ctx context.Context, inn string, delta money.Amount) (money.Amount, error)
}

// Option configures the service.
type Option func(*service)

// WithCache writes each committed balance to c with the given ttl.
func WithCache(c BalanceCache, ttl time.Duration) Option {
    return func(s *service) { s.cache = c; s.ttl = ttl }
}

// WithLogger sets the logger used for cache failures.
func WithLogger(l *slog.Logger) Option { return func(s *service) { s.log = l } }

type service struct {
    store    Store
    validate *validator.Validate
    cache    BalanceCache
    ttl      time.Duration
    log      *slog.Logger
}

// New builds a Service over store.
func New(store Store, opts ...Option) Service {
    s := &service{store: store, validate: newValidator(), log: slog.Default()}
    for _, o := range opts { o(s) }
    return s
}

func (s *service) Ingest(ctx context.Context, ev Event) Outcome {
    ev = ev.normalized()

    var amount money.Amount
    if ev.Amount != "" {
        a, err := ledger.ParseAmount(ev.Amount)
        if err != nil { return rejected(ReasonInvalidAmount, err) }
        if !a.IsPos() { return rejected(ReasonInvalidAmount, fmt.Errorf("%w: amount must be positive", errs.ErrInvalidAmount)) }
        amount = a
    }
    if err := checkPresence(s.validate, ev); err != nil { return rejected(reasonFor(err), err) }

    var out Outcome
    err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
        if err := claimOperation(ctx, tx, ev.OperationID); err != nil { return err }

        org, err := tx.LockOrganization(ctx, ev.PayerINN, true)
        if err != nil { return fmt.Errorf("lock organization %s: %w", ev.PayerINN, err) }

        p, err := tx.InsertPayment(ctx, ledger.Payment{
            ID:             uuid.New(),
            OperationID:    ev.OperationID,
            Amount:         amount,
            PayerINN:       ev.PayerINN,
            DocumentNumber: ev.DocumentNumber,
            DocumentDate:   ev.DocumentDate.UTC(),
        })
        if err != nil { return fmt.Errorf("insert payment: %w", err) }

        entry, err := tx.AppendBalanceLog(ctx, ledger.BalanceLogEntry{OrganizationID: org.ID, Amount: amount})
        if err != nil { return fmt.Errorf("append balance log: %w", err) }

        bal, err := applyDelta(ctx, tx, org.ID, amount)
        if err != nil { return err }
        org.Balance = bal
        org.Version = entry.ID
        out = accepted(p, org)
        return nil
    })
    if err != nil { return rejected(reasonFor(err), err) }

    s.publish(ctx, out.Organization)
    return out
}

func (s *service) Adjust(ctx context.Context, inn string, delta money.Amount) (money.Amount, error) {
    inn = strings.TrimSpace(inn)
    if inn == "" { return money.Amount{}, fmt.Errorf("%w: inn", errs.ErrMissingFields) }
    if delta.Curr().Code() != ledger.Currency { return money.Amount{}, fmt.Errorf("%w: currency %s", errs.ErrInvalidAmount, delta.Curr().Code()) }
    if delta.IsZero() { return money.Amount{}, fmt.Errorf("%w: zero delta", errs.ErrInvalidAmount) }

    var updated ledger.Organization
    err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
        org, err := tx.LockOrganization(ctx, inn, false)
        if err != nil { return fmt.Errorf("lock organization %s: %w", inn, err) }
        entry, err := tx.AppendBalanceLog(ctx, ledger.BalanceLogEntry{OrganizationID: org.ID, Amount: delta})
        if err != nil { return fmt.Errorf("append balance log: %w", err) }
        bal, err := applyDelta(ctx, tx, org.ID, delta)
        if err != nil { return err }
        org.Balance = bal
        org.Version = entry.ID
        updated = org
        return nil
    })
    if err != nil {
        var ife *InsufficientFundsError
        if errors.As(err, &ife) { return ife.Balance, ife }
        return money.Amount{}, err
    }
    s.publish(ctx, updated)
    return updated.Balance, nil
}

// publish writes a committed balance to the cache. A snapshot with a higher
// version already in the cache is kept. If the write fails the key is dropped.
func (s *service) publish(ctx context.Context, org ledger.Organization) {
    if s.cache == nil { return }
    key := cache.BalanceKey(org.INN)
    if _, err := s.cache.SetIfNewer(ctx, key, cache.SnapshotOf(org), s.ttl); err != nil {
        s.log.Warn("balance cache write failed", "inn", org.INN, "err", err)
        if err := s.cache.Delete(ctx, key); err != nil {
            s.log.Warn("balance cache invalidation failed", "inn", org.INN, "err", err)
        }
    }
}
