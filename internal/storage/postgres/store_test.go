package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/payments/internal/errs"
	"github.com/tinoosan/payments/internal/ledger"
	"github.com/tinoosan/payments/internal/service/payment"
	"github.com/tinoosan/payments/internal/service/query"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string, opts ...Option) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func applyMigrations(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func truncateAll(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `truncate table balance_log, payments, organizations cascade`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func freshStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := mustOpen(t, getTestDSN(t), opts...)
	t.Cleanup(s.Close)
	applyMigrations(t, s)
	truncateAll(t, s)
	return s
}

func event(inn, amount string) payment.Event {
	return payment.Event{
		OperationID:    uuid.NewString(),
		Amount:         amount,
		PayerINN:       inn,
		DocumentNumber: "DOC001",
		DocumentDate:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	s := freshStore(t)
	applied, err := s.Migrate(context.Background())
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no new migrations, got %v", applied)
	}
}

func TestStore_IngestScenario(t *testing.T) {
	s := freshStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	org, err := s.SeedOrganization(ctx, "1234567890", ledger.MustParseAmount("1000.00"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := payment.New(s)
	ev := event("1234567890", "500.00")

	out := svc.Ingest(ctx, ev)
	if !out.Accepted() {
		t.Fatalf("expected accepted, got %s: %v", out.Reason, out.Err)
	}
	if got := ledger.FormatAmount(out.Organization.Balance); got != "1500.00" {
		t.Fatalf("expected 1500.00, got %s", got)
	}
	if again := svc.Ingest(ctx, ev); !again.Duplicate() {
		t.Fatalf("expected duplicate, got %s: %v", again.Reason, again.Err)
	}

	got, err := s.OrganizationByINN(ctx, "1234567890", query.ReadMVCC)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ledger.FormatAmount(got.Balance) != "1500.00" {
		t.Fatalf("expected balance 1500.00 after duplicate, got %s", ledger.FormatAmount(got.Balance))
	}

	hist, err := s.BalanceHistory(ctx, org.ID, 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || ledger.FormatAmount(hist[0].Amount) != "500.00" || ledger.FormatAmount(hist[0].BalanceAfter) != "1500.00" || ledger.FormatAmount(hist[1].BalanceAfter) != "1000.00" {
		t.Fatalf("unexpected history: %+v", hist)
	}

	payments, err := s.SearchPayments(ctx, query.PaymentFilter{DocumentNumber: "doc0", Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(payments) != 1 || payments[0].OperationID != ev.OperationID {
		t.Fatalf("unexpected payments: %+v", payments)
	}
}

func TestStore_ConcurrentIngest(t *testing.T) {
	s := freshStore(t, WithMaxConns(20))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	org, err := s.SeedOrganization(ctx, "2000000000", ledger.MustParseAmount("1000.00"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := payment.New(s)

	const n = 20
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if out := svc.Ingest(gctx, event("2000000000", "100.00")); !out.Accepted() {
				return fmt.Errorf("%s: %w", out.Reason, out.Err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	same := event("2000000000", "100.00")
	var accepted, duplicates atomic.Int32
	var g2 errgroup.Group
	for i := 0; i < 10; i++ {
		g2.Go(func() error {
			out := svc.Ingest(ctx, same)
			switch {
			case out.Accepted():
				accepted.Add(1)
			case out.Duplicate():
				duplicates.Add(1)
			default:
				return fmt.Errorf("%s: %w", out.Reason, out.Err)
			}
			return nil
		})
	}
	if err := g2.Wait(); err != nil {
		t.Fatalf("same-id ingest: %v", err)
	}
	if accepted.Load() != 1 || duplicates.Load() != 9 {
		t.Fatalf("expected 1 accepted and 9 duplicates, got %d and %d", accepted.Load(), duplicates.Load())
	}

	got, err := s.OrganizationByINN(ctx, "2000000000", query.ReadMVCC)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := int64(100000 + 10000*(n+1))
	if ledger.Minor(got.Balance) != want {
		t.Fatalf("expected %d kopecks, got %d", want, ledger.Minor(got.Balance))
	}
	entries, err := s.BalanceLog(ctx, org.ID)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += ledger.Minor(e.Amount)
	}
	if sum != want {
		t.Fatalf("ledger sum %d does not match balance %d", sum, want)
	}
}

func TestStore_ConcurrentFirstPaymentsCreateOneOrganization(t *testing.T) {
	s := freshStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	svc := payment.New(s)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			if out := svc.Ingest(ctx, event("3000000000", "10.00")); !out.Accepted() {
				return out.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	orgs, err := s.ListOrganizations(ctx, query.OrganizationFilter{INN: "3000000000"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orgs) != 1 || ledger.FormatAmount(orgs[0].Balance) != "80.00" {
		t.Fatalf("unexpected organizations: %+v", orgs)
	}
}

func TestStore_AdjustInsufficientFunds(t *testing.T) {
	s := freshStore(t)
	ctx := context.Background()
	if _, err := s.SeedOrganization(ctx, "4000000000", ledger.MustParseAmount("1000.00")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := payment.New(s)
	bal, err := svc.Adjust(ctx, "4000000000", ledger.MustParseAmount("-2000.00"))
	if err == nil || !errorsIs(err, errs.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if ledger.FormatAmount(bal) != "1000.00" {
		t.Fatalf("expected unchanged 1000.00, got %s", ledger.FormatAmount(bal))
	}
	bal, err = svc.Adjust(ctx, "4000000000", ledger.MustParseAmount("500.00"))
	if err != nil || ledger.FormatAmount(bal) != "1500.00" {
		t.Fatalf("expected 1500.00, got %s (%v)", ledger.FormatAmount(bal), err)
	}
}

func TestStore_NoWaitReadAndLockTimeout(t *testing.T) {
	s := freshStore(t, WithLockTimeout(100*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.SeedOrganization(ctx, "5000000000", ledger.MustParseAmount("1.00")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithinTx(ctx, func(ctx context.Context, tx payment.Tx) error {
			if _, err := tx.LockOrganization(ctx, "5000000000", false); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	if _, err := s.OrganizationByINN(ctx, "5000000000", query.ReadNoWait); !errorsIs(err, errs.ErrContention) {
		t.Fatalf("expected contention on nowait read, got %v", err)
	}
	if _, err := s.OrganizationByINN(ctx, "5000000000", query.ReadMVCC); err != nil {
		t.Fatalf("mvcc read should not block: %v", err)
	}
	out := payment.New(s).Ingest(ctx, event("5000000000", "1.00"))
	if !out.Retryable() {
		t.Fatalf("expected retryable contention, got %s: %v", out.Reason, out.Err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder tx: %v", err)
	}
}

func TestStore_NoWaitReadWrapsBeginError(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	s.Close()

	_, err := s.OrganizationByINN(context.Background(), "5000000001", query.ReadNoWait)
	if err == nil || !strings.HasPrefix(err.Error(), "begin: ") {
		t.Fatalf("expected wrapped begin error, got %v", err)
	}
}

func TestStore_OrganizationVersionFollowsBalanceLog(t *testing.T) {
	s := freshStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	org, err := s.SeedOrganization(ctx, "6000000000", ledger.MustParseAmount("1.00"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	out := payment.New(s).Ingest(ctx, event("6000000000", "2.00"))
	if !out.Accepted() {
		t.Fatalf("ingest: %s: %v", out.Reason, out.Err)
	}

	entries, err := s.BalanceLog(ctx, org.ID)
	if err != nil || len(entries) != 2 {
		t.Fatalf("balance log: %v (%d entries)", err, len(entries))
	}
	latest := entries[1].ID
	if out.Organization.Version != latest {
		t.Fatalf("ingest version = %d, want %d", out.Organization.Version, latest)
	}
	got, err := s.OrganizationByINN(ctx, "6000000000", query.ReadMVCC)
	if err != nil || got.Version != latest {
		t.Fatalf("read version = %d (%v), want %d", got.Version, err, latest)
	}
	orgs, err := s.ListOrganizations(ctx, query.OrganizationFilter{INN: "6000000000"})
	if err != nil || len(orgs) != 1 || orgs[0].Version != latest {
		t.Fatalf("listed organizations = %+v (%v), want version %d", orgs, err, latest)
	}
}
