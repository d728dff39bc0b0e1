// Package memory provides an in-memory ledger store used for development and tests.
// Transactions stage their writes and take per-key locks that are held until
// commit or rollback, so concurrent behavior matches the Postgres store.
package memory

import (
    "context"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/govalues/money"

    "github.com/tinoosan/payments/internal/errs"
    "github.com/tinoosan/payments/internal/ledger"
    "github.com/tinoosan/payments/internal/service/payment"
    "github.com/tinoosan/payments/internal/service/query"
)

// logKey orders balance log entries per organization: asc by (CreatedAt, ID).
type logKey struct {
    CreatedAt time.Time
    ID        int64
}

// Store is an in-memory implementation of the ledger store.
// mu guards committed state; transactions serialize through keyLocks.
type Store struct {
    mu       sync.RWMutex
    orgs     map[uuid.UUID]ledger.Organization
    orgByINN map[string]uuid.UUID
    payments map[string]ledger.Payment
    // payment operation ids in commit order
    paymentOrder []string
    logs         map[int64]ledger.BalanceLogEntry
    logKeysByOrg map[uuid.UUID][]logKey
    logSeq       int64

    locks       *keyLocks
    lockTimeout time.Duration
    now         func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a lock. Default 5s.
func WithLockTimeout(d time.Duration) Option { return func(s *Store) { s.lockTimeout = d } }

// New constructs an empty in-memory store.
func New(opts ...Option) *Store {
    s := &Store{
        orgs:         make(map[uuid.UUID]ledger.Organization),
        orgByINN:     make(map[string]uuid.UUID),
        payments:     make(map[string]ledger.Payment),
        logs:         make(map[int64]ledger.BalanceLogEntry),
        logKeysByOrg: make(map[uuid.UUID][]logKey),
        locks:        newKeyLocks(),
        lockTimeout:  5 * time.Second,
        now:          func() time.Time { return time.Now().UTC() },
    }
    for _, o := range opts { o(s) }
    return s
}

// Reset drops all data. Held locks are unaffected.
func (s *Store) Reset() {
    s.mu.Lock()
    s.orgs = map[uuid.UUID]ledger.Organization{}
    s.orgByINN = map[string]uuid.UUID{}
    s.payments = map[string]ledger.Payment{}
    s.paymentOrder = nil
    s.logs = map[int64]ledger.BalanceLogEntry{}
    s.logKeysByOrg = map[uuid.UUID][]logKey{}
    s.mu.Unlock()
}

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

// Ready always succeeds.
func (s *Store) Ready(context.Context) error { return nil }

// --- reads ---

// OrganizationByINN implements query.Repo. ReadNoWait fails fast with
// errs.ErrContention while a transaction holds the organization.
func (s *Store) OrganizationByINN(ctx context.Context, inn string, mode query.ReadMode) (ledger.Organization, error) {
    if mode == query.ReadNoWait {
        key := organizationKey(inn)
        if err := s.locks.acquire(ctx, key, 0); err != nil { return ledger.Organization{}, err }
        defer s.locks.release(key)
    }
    s.mu.RLock()
    defer s.mu.RUnlock()
    id, ok := s.orgByINN[inn]
    if !ok { return ledger.Organization{}, errs.ErrNotFound }
    return s.orgs[id], nil
}

// BalanceHistory implements query.Repo.
func (s *Store) BalanceHistory(_ context.Context, orgID uuid.UUID, limit int) ([]ledger.HistoryEntry, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    keys := s.logKeysByOrg[orgID]
    if limit <= 0 || len(keys) == 0 { return []ledger.HistoryEntry{}, nil }
    var running int64
    after := make([]int64, len(keys))
    for i, k := range keys {
        var err error
        if running, err = addMinor(running, ledger.Minor(s.logs[k.ID].Amount)); err != nil { return nil, err }
        after[i] = running
    }
    out := make([]ledger.HistoryEntry, 0, min(limit, len(keys)))
    for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
        e := s.logs[keys[i].ID]
        out = append(out, ledger.HistoryEntry{Amount: e.Amount, CreatedAt: e.CreatedAt, BalanceAfter: ledger.FromMinor(after[i])})
    }
    return out, nil
}

// BalanceLog returns all entries of an organization in ledger order.
func (s *Store) BalanceLog(_ context.Context, orgID uuid.UUID) ([]ledger.BalanceLogEntry, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    keys := s.logKeysByOrg[orgID]
    out := make([]ledger.BalanceLogEntry, 0, len(keys))
    for _, k := range keys { out = append(out, s.logs[k.ID]) }
    return out, nil
}

// ListOrganizations implements query.Repo, ordered by INN. INN matches by prefix.
func (s *Store) ListOrganizations(_ context.Context, f query.OrganizationFilter) ([]ledger.Organization, error) {
    s.mu.RLock()
    out := make([]ledger.Organization, 0)
    for _, o := range s.orgs {
        if f.INN != "" && !strings.HasPrefix(o.INN, f.INN) { continue }
        out = append(out, o)
    }
    s.mu.RUnlock()
    sort.Slice(out, func(i, j int) bool { return out[i].INN < out[j].INN })
    if f.Limit > 0 && len(out) > f.Limit { out = out[:f.Limit] }
    return out, nil
}

// SearchPayments implements query.Repo, newest first.
func (s *Store) SearchPayments(_ context.Context, f query.PaymentFilter) ([]ledger.Payment, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    out := make([]ledger.Payment, 0)
    for i := len(s.paymentOrder) - 1; i >= 0; i-- {
        if f.Limit > 0 && len(out) >= f.Limit { break }
        p := s.payments[s.paymentOrder[i]]
        if f.OperationID != "" && p.OperationID != f.OperationID { continue }
        if f.PayerINN != "" && p.PayerINN != f.PayerINN { continue }
        if f.DocumentNumber != "" && !strings.Contains(strings.ToLower(p.DocumentNumber), strings.ToLower(f.DocumentNumber)) { continue }
        out = append(out, p)
    }
    return out, nil
}

// insertLogIndexLocked keeps logKeysByOrg sorted by (CreatedAt, ID).
func (s *Store) insertLogIndexLocked(orgID uuid.UUID, k logKey) {
    keys := s.logKeysByOrg[orgID]
    i := sort.Search(len(keys), func(i int) bool {
        if keys[i].CreatedAt.Equal(k.CreatedAt) { return keys[i].ID > k.ID }
        return keys[i].CreatedAt.After(k.CreatedAt)
    })
    keys = append(keys, logKey{})
    copy(keys[i+1:], keys[i:])
    keys[i] = k
    s.logKeysByOrg[orgID] = keys
}
