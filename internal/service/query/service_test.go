package query_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/payments/internal/cache"
	"github.com/tinoosan/payments/internal/errs"
	"github.com/tinoosan/payments/internal/ledger"
	"github.com/tinoosan/payments/internal/service/payment"
	"github.com/tinoosan/payments/internal/service/query"
	"github.com/tinoosan/payments/internal/storage/memory"
)

const testINN = "1234567890"

func setup(t *testing.T) (*memory.Store, payment.Service) {
	t.Helper()
	store := memory.New()
	_, err := store.SeedOrganization(context.Background(), testINN, ledger.MustParseAmount("1000.00"))
	require.NoError(t, err)
	return store, payment.New(store)
}

func ingest(t *testing.T, svc payment.Service, amount string) {
	t.Helper()
	out := svc.Ingest(context.Background(), payment.Event{
		OperationID:    uuid.NewString(),
		Amount:         amount,
		PayerINN:       testINN,
		DocumentNumber: "DOC-" + amount,
		DocumentDate:   time.Now().UTC(),
	})
	require.True(t, out.Accepted(), "%+v", out)
}

type row struct {
	Amount       string
	BalanceAfter string
}

func rows(entries []ledger.HistoryEntry) []row {
	out := make([]row, 0, len(entries))
	for _, e := range entries {
		out = append(out, row{Amount: ledger.FormatAmount(e.Amount), BalanceAfter: ledger.FormatAmount(e.BalanceAfter)})
	}
	return out
}

func TestBalance(t *testing.T) {
	store, pay := setup(t)
	q := query.New(store)

	org, err := q.Balance(context.Background(), testINN)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", ledger.FormatAmount(org.Balance))

	ingest(t, pay, "500.00")
	org, err = q.Balance(context.Background(), testINN)
	require.NoError(t, err)
	assert.Equal(t, "1500.00", ledger.FormatAmount(org.Balance))

	_, err = q.Balance(context.Background(), "0000000000")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestBalance_NoWaitUnderContention(t *testing.T) {
	store, _ := setup(t)
	q := query.New(store, query.WithReadMode(query.ReadNoWait))

	held := make(chan struct{})
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_ = store.WithinTx(context.Background(), func(ctx context.Context, tx payment.Tx) error {
			if _, err := tx.LockOrganization(ctx, testINN, false); err != nil {
				return err
			}
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	_, err := q.Balance(context.Background(), testINN)
	assert.ErrorIs(t, err, errs.ErrContention)
	close(done)
	<-finished

	org, err := q.Balance(context.Background(), testINN)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", ledger.FormatAmount(org.Balance))
}

func TestHistory_MostRecentFirstWithPointInTimeBalance(t *testing.T) {
	store, pay := setup(t)
	q := query.New(store)
	ingest(t, pay, "100.00")
	ingest(t, pay, "200.00")

	got, err := q.History(context.Background(), testINN, 5)
	require.NoError(t, err)
	want := []row{
		{Amount: "200.00", BalanceAfter: "1300.00"},
		{Amount: "100.00", BalanceAfter: "1100.00"},
		{Amount: "1000.00", BalanceAfter: "1000.00"},
	}
	if diff := cmp.Diff(want, rows(got)); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, got[0].CreatedAt.Before(got[1].CreatedAt))
}

func TestHistory_Limits(t *testing.T) {
	store, pay := setup(t)
	q := query.New(store, query.WithLimits(query.Limits{Default: 3, Max: 4}))
	for i := 0; i < 6; i++ {
		ingest(t, pay, "1.00")
	}

	got, err := q.History(context.Background(), testINN, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "1006.00", ledger.FormatAmount(got[0].BalanceAfter))

	got, err = q.History(context.Background(), testINN, 1000)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = q.History(context.Background(), testINN, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = q.History(context.Background(), "0000000000", 2)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLimits_Parse(t *testing.T) {
	l := query.DefaultLimits
	cases := map[string]int{"": 10, "abc": 10, "0": 10, "-3": 10, "5": 5, "100": 100, "101": 100, " 7 ": 7}
	for raw, want := range cases {
		assert.Equal(t, want, l.Parse(raw), "raw %q", raw)
	}
}

func TestAdminListings(t *testing.T) {
	store, pay := setup(t)
	q := query.New(store)
	ingest(t, pay, "100.00")
	ingest(t, pay, "200.00")

	orgs, err := q.Organizations(context.Background(), query.OrganizationFilter{INN: "1234"})
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, testINN, orgs[0].INN)

	payments, err := q.Payments(context.Background(), query.PaymentFilter{PayerINN: testINN})
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "200.00", ledger.FormatAmount(payments[0].Amount), "newest first")

	payments, err = q.Payments(context.Background(), query.PaymentFilter{DocumentNumber: "doc-100"})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "100.00", ledger.FormatAmount(payments[0].Amount))

	payments, err = q.Payments(context.Background(), query.PaymentFilter{OperationID: "missing"})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestBalance_ReadsThroughCache(t *testing.T) {
	store, _ := setup(t)
	c := cache.NewInMemoryClient[cache.BalanceSnapshot]()
	defer c.Close()
	q := query.New(store, query.WithCache(c, time.Minute))
	pay := payment.New(store, payment.WithCache(c, time.Minute))

	org, err := q.Balance(context.Background(), testINN)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", ledger.FormatAmount(org.Balance))

	snap, err := c.Get(context.Background(), cache.BalanceKey(testINN))
	require.NoError(t, err)
	assert.Equal(t, int64(100000), snap.BalanceMinor)

	ingest(t, pay, "50.00")
	snap, err = c.Get(context.Background(), cache.BalanceKey(testINN))
	require.NoError(t, err)
	assert.Equal(t, int64(105000), snap.BalanceMinor, "committed payment must refresh the cached balance")

	org, err = q.Balance(context.Background(), testINN)
	require.NoError(t, err)
	assert.Equal(t, "1050.00", ledger.FormatAmount(org.Balance))
}

func TestBalance_StaleLoadDoesNotHideCommittedPayment(t *testing.T) {
	store, _ := setup(t)
	c := cache.NewInMemoryClient[cache.BalanceSnapshot]()
	defer c.Close()
	pay := payment.New(store, payment.WithCache(c, time.Minute))
	// the payment commits after the reader loaded the balance but before it caches it
	repo := &interleavingRepo{Repo: store, between: func() { ingest(t, pay, "500.00") }}
	q := query.New(repo, query.WithCache(c, time.Minute))

	org, err := q.Balance(context.Background(), testINN)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", ledger.FormatAmount(org.Balance))

	org, err = q.Balance(context.Background(), testINN)
	require.NoError(t, err)
	assert.Equal(t, "1500.00", ledger.FormatAmount(org.Balance))
}

type interleavingRepo struct {
	query.Repo
	between func()
	once    sync.Once
}

func (r *interleavingRepo) OrganizationByINN(ctx context.Context, inn string, mode query.ReadMode) (ledger.Organization, error) {
	org, err := r.Repo.OrganizationByINN(ctx, inn, mode)
	r.once.Do(r.between)
	return org, err
}

func TestBalance_CacheFailureFallsBackToStore(t *testing.T) {
	store, _ := setup(t)
	q := query.New(store, query.WithCache(brokenCache{}, time.Minute))

	org, err := q.Balance(context.Background(), testINN)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", ledger.FormatAmount(org.Balance))
}

type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Get(context.Context, string) (cache.BalanceSnapshot, error) {
	return cache.BalanceSnapshot{}, errCacheDown
}
func (brokenCache) Set(context.Context, string, cache.BalanceSnapshot, time.Duration) error {
	return errCacheDown
}
func (brokenCache) Delete(context.Context, string) error { return errCacheDown }
func (brokenCache) SetIfNewer(context.Context, string, cache.BalanceSnapshot, time.Duration) (bool, error) {
	return false, errCacheDown
}
func (brokenCache) GetOrSet(context.Context, cache.GetOrSetOpts[cache.BalanceSnapshot]) (cache.BalanceSnapshot, error) {
	return cache.BalanceSnapshot{}, errCacheDown
}
