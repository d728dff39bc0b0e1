package memory

import (
    "context"
    "errors"
    "fmt"

    "github.com/google/uuid"
    "github.com/govalues/money"

    "github.com/tinoosan/payments/internal/errs"
    "github.com/tinoosan/payments/internal/ledger"
    "github.com/tinoosan/payments/internal/service/payment"
)

var (
    errNotLocked       = errors.New("organization is not locked by this transaction")
    errBalanceOverflow = errors.New("balance out of range")
)

// addMinor adds kopeck amounts and fails instead of wrapping around.
func addMinor(a, b int64) (int64, error) {
    sum := a + b
    if (b > 0 && sum < a) || (b < 0 && sum > a) { return 0, fmt.Errorf("%w: %d %+d", errBalanceOverflow, a, b) }
    return sum, nil
}

// orgState is a locked organization and its pending balance change.
type orgState struct {
    org     ledger.Organization
    created bool
    delta   int64
}

// tx stages writes until commit. Locks are released when the transaction ends.
type tx struct {
    s        *Store
    held     map[string]struct{}
    order    []string
    orgs     map[uuid.UUID]*orgState
    payments []ledger.Payment
    logs     []ledger.BalanceLogEntry
}

// WithinTx runs fn in a transaction. Staged writes become visible atomically
// when fn returns nil; any error or panic discards them.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
    t := &tx{s: s, held: map[string]struct{}{}, orgs: map[uuid.UUID]*orgState{}}
    defer t.release()
    if err := fn(ctx, t); err != nil { return err }
    if err := ctx.Err(); err != nil { return err }
    s.commit(t)
    return nil
}

func (s *Store) commit(t *tx) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for id, st := range t.orgs {
        if st.created {
            s.orgs[id] = st.org
            s.orgByINN[st.org.INN] = id
        }
        if st.delta != 0 {
            o := s.orgs[id]
            o.Balance = ledger.FromMinor(ledger.Minor(o.Balance) + st.delta)
            s.orgs[id] = o
        }
    }
    for _, p := range t.payments {
        s.payments[p.OperationID] = p
        s.paymentOrder = append(s.paymentOrder, p.OperationID)
    }
    for _, e := range t.logs {
        s.logs[e.ID] = e
        s.insertLogIndexLocked(e.OrganizationID, logKey{CreatedAt: e.CreatedAt, ID: e.ID})
        if o := s.orgs[e.OrganizationID]; e.ID > o.Version {
            o.Version = e.ID
            s.orgs[e.OrganizationID] = o
        }
    }
}

func (t *tx) lock(ctx context.Context, key string) error {
    if _, ok := t.held[key]; ok { return nil }
    if err := t.s.locks.acquire(ctx, key, t.s.lockTimeout); err != nil { return err }
    t.held[key] = struct{}{}
    t.order = append(t.order, key)
    return nil
}

func (t *tx) release() {
    for i := len(t.order) - 1; i >= 0; i-- { t.s.locks.release(t.order[i]) }
    t.order = nil
    t.held = nil
}

func (t *tx) LockOperation(ctx context.Context, operationID string) (bool, error) {
    if err := t.lock(ctx, operationKey(operationID)); err != nil { return false, err }
    for _, p := range t.payments {
        if p.OperationID == operationID { return true, nil }
    }
    t.s.mu.RLock()
    _, exists := t.s.payments[operationID]
    t.s.mu.RUnlock()
    return exists, nil
}

func (t *tx) LockOrganization(ctx context.Context, inn string, create bool) (ledger.Organization, error) {
    if err := t.lock(ctx, organizationKey(inn)); err != nil { return ledger.Organization{}, err }
    for _, st := range t.orgs {
        if st.org.INN == inn { return t.view(st), nil }
    }
    t.s.mu.RLock()
    id, ok := t.s.orgByINN[inn]
    org := t.s.orgs[id]
    t.s.mu.RUnlock()
    st := &orgState{org: org}
    if !ok {
        if !create { return ledger.Organization{}, errs.ErrNotFound }
        st = &orgState{org: ledger.Organization{ID: uuid.New(), INN: inn, Balance: ledger.Zero(), CreatedAt: t.s.now()}, created: true}
    }
    t.orgs[st.org.ID] = st
    return t.view(st), nil
}

func (t *tx) InsertPayment(_ context.Context, p ledger.Payment) (ledger.Payment, error) {
    for _, q := range t.payments {
        if q.OperationID == p.OperationID { return ledger.Payment{}, errs.ErrDuplicate }
    }
    t.s.mu.RLock()
    _, exists := t.s.payments[p.OperationID]
    t.s.mu.RUnlock()
    if exists { return ledger.Payment{}, errs.ErrDuplicate }
    if p.ID == uuid.Nil { p.ID = uuid.New() }
    p.CreatedAt = t.s.now()
    t.payments = append(t.payments, p)
    return p, nil
}

func (t *tx) AppendBalanceLog(_ context.Context, e ledger.BalanceLogEntry) (ledger.BalanceLogEntry, error) {
    if _, ok := t.orgs[e.OrganizationID]; !ok { return ledger.BalanceLogEntry{}, fmt.Errorf("append log for %s: %w", e.OrganizationID, errNotLocked) }
    t.s.mu.Lock()
    t.s.logSeq++
    e.ID = t.s.logSeq
    t.s.mu.Unlock()
    e.CreatedAt = t.s.now()
    t.logs = append(t.logs, e)
    return e, nil
}

func (t *tx) AddToBalance(_ context.Context, orgID uuid.UUID, delta money.Amount, guardNegative bool) (bool, error) {
    st, ok := t.orgs[orgID]
    if !ok { return false, fmt.Errorf("add to balance of %s: %w", orgID, errNotLocked) }
    d := ledger.Minor(delta)
    next, err := addMinor(t.current(st), d)
    if err != nil { return false, err }
    if guardNegative && next < 0 { return false, nil }
    pending, err := addMinor(st.delta, d)
    if err != nil { return false, err }
    st.delta = pending
    return true, nil
}

func (t *tx) Balance(_ context.Context, orgID uuid.UUID) (money.Amount, error) {
    if st, ok := t.orgs[orgID]; ok { return ledger.FromMinor(t.current(st)), nil }
    t.s.mu.RLock()
    defer t.s.mu.RUnlock()
    o, ok := t.s.orgs[orgID]
    if !ok { return money.Amount{}, errs.ErrNotFound }
    return o.Balance, nil
}

// current is the committed balance plus this transaction's pending delta.
func (t *tx) current(st *orgState) int64 {
    if st.created { return st.delta }
    t.s.mu.RLock()
    committed := ledger.Minor(t.s.orgs[st.org.ID].Balance)
    t.s.mu.RUnlock()
    return committed + st.delta
}

func (t *tx) view(st *orgState) ledger.Organization {
    o := st.org
    o.Balance = ledger.FromMinor(t.current(st))
    return o
}
