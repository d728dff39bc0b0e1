// Package query serves read-only balance, history and admin lookups.
package query

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strings"
    "time"

    "github.com/tinoosan/payments/internal/cache"
    "github.com/tinoosan/payments/internal/errs"
    "github.com/tinoosan/payments/internal/ledger"
)

// Service exposes balance and history reads.
type Service interface {
    // Balance returns the organization with its current balance or errs.ErrNotFound.
    Balance(ctx context.Context, inn string) (ledger.Organization, error)
    // History returns up to limit balance log entries, newest first. limit is clamped.
    History(ctx context.Context, inn string, limit int) ([]ledger.HistoryEntry, error)
    Organizations(ctx context.Context, f OrganizationFilter) ([]ledger.Organization, error)
    Payments(ctx context.Context, f PaymentFilter) ([]ledger.Payment, error)
    Limits() Limits
}

// Option configures the service.
type Option func(*service)

// WithReadMode selects the balance read policy. ReadMVCC is the default.
func WithReadMode(m ReadMode) Option { return func(s *service) { s.mode = m } }

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option { return func(s *service) { s.limits = l } }

// WithCache reads balances through c. It only applies in ReadMVCC mode.
// Loaded balances never replace a snapshot with a higher version.
func WithCache(c cache.Client[cache.BalanceSnapshot], ttl time.Duration) Option {
    return func(s *service) { s.cache = c; s.ttl = ttl }
}

// WithLogger sets the logger used for cache failures.
func WithLogger(l *slog.Logger) Option { return func(s *service) { s.log = l } }

type service struct {
    repo   Repo
    mode   ReadMode
    limits Limits
    cache  cache.Client[cache.BalanceSnapshot]
    ttl    time.Duration
    log    *slog.Logger
}

// New builds a Service over repo.
func New(repo Repo, opts ...Option) Service {
    s := &service{repo: repo, mode: ReadMVCC, limits: DefaultLimits, log: slog.Default()}
    for _, o := range opts { o(s) }
    return s
}

func (s *service) Limits() Limits { return s.limits }

func (s *service) Balance(ctx context.Context, inn string) (ledger.Organization, error) {
    inn = strings.TrimSpace(inn)
    if inn == "" { return ledger.Organization{}, errs.ErrNotFound }
    if s.cache == nil || s.mode != ReadMVCC { return s.repo.OrganizationByINN(ctx, inn, s.mode) }

    snap, err := s.cache.GetOrSet(ctx, cache.GetOrSetOpts[cache.BalanceSnapshot]{
        Key: cache.BalanceKey(inn),
        TTL: s.ttl,
        Callback: func() (cache.BalanceSnapshot, error) {
            org, err := s.repo.OrganizationByINN(ctx, inn, s.mode)
            if err != nil { return cache.BalanceSnapshot{}, err }
            return cache.SnapshotOf(org), nil
        },
    })
    switch {
    case err == nil:
        return snap.Organization(), nil
    case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrContention):
        return ledger.Organization{}, err
    case snap.INN != "":
        // loaded from the store but could not be written back
        s.log.Warn("balance cache write failed", "inn", inn, "err", err)
        return snap.Organization(), nil
    default:
        s.log.Warn("balance cache read failed", "inn", inn, "err", err)
        return s.repo.OrganizationByINN(ctx, inn, s.mode)
    }
}

func (s *service) History(ctx context.Context, inn string, limit int) ([]ledger.HistoryEntry, error) {
    inn = strings.TrimSpace(inn)
    if inn == "" { return nil, errs.ErrNotFound }
    org, err := s.repo.OrganizationByINN(ctx, inn, ReadMVCC)
    if err != nil { return nil, err }
    entries, err := s.repo.BalanceHistory(ctx, org.ID, s.limits.Clamp(limit))
    if err != nil { return nil, fmt.Errorf("balance history %s: %w", inn, err) }
    return entries, nil
}

func (s *service) Organizations(ctx context.Context, f OrganizationFilter) ([]ledger.Organization, error) {
    f.INN = strings.TrimSpace(f.INN)
    f.Limit = s.limits.Clamp(f.Limit)
    return s.repo.ListOrganizations(ctx, f)
}

func (s *service) Payments(ctx context.Context, f PaymentFilter) ([]ledger.Payment, error) {
    f.OperationID = strings.TrimSpace(f.OperationID)
    f.PayerINN = strings.TrimSpace(f.PayerINN)
    f.DocumentNumber = strings.TrimSpace(f.DocumentNumber)
    f.Limit = s.limits.Clamp(f.Limit)
    return s.repo.SearchPayments(ctx, f)
}
