package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tinoosan/payments/internal/cache"
	"github.com/tinoosan/payments/internal/config"
	"github.com/tinoosan/payments/internal/errs"
	httpapi "github.com/tinoosan/payments/internal/httpapi/v1"
	"github.com/tinoosan/payments/internal/ledger"
	"github.com/tinoosan/payments/internal/retry"
	"github.com/tinoosan/payments/internal/service/payment"
	"github.com/tinoosan/payments/internal/service/query"
	"github.com/tinoosan/payments/internal/storage/memory"
	pgstore "github.com/tinoosan/payments/internal/storage/postgres"
)

const (
	devSeedINN     = "1234567890"
	devSeedBalance = "1000.00"
)

var autoMigrate bool

func serveFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving (postgres only)")
	return fs
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().AddFlagSet(serveFlags())
	return cmd
}

// backend bundles the storage the HTTP layer needs.
type backend struct {
	store interface {
		payment.Store
		query.Repo
	}
	ready []httpapi.ReadyChecker
	close func()
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := buildLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	paymentOpts := []payment.Option{payment.WithLogger(logger)}
	queryOpts := []query.Option{
		query.WithLogger(logger),
		query.WithReadMode(query.ReadMode(cfg.BalanceReadMode)),
		query.WithLimits(query.Limits{Default: cfg.HistoryDefaultLimit, Max: cfg.HistoryMaxLimit}),
	}
	ready := be.ready
	switch cfg.CacheBackend {
	case config.CacheMemory:
		c := cache.NewInMemoryClient[cache.BalanceSnapshot]()
		defer c.Close()
		paymentOpts = append(paymentOpts, payment.WithCache(c, cfg.CacheTTL))
		queryOpts = append(queryOpts, query.WithCache(c, cfg.CacheTTL))
		logger.Info("balance cache: memory", "ttl", cfg.CacheTTL)
	case config.CacheRedis:
		rdb, err := cache.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		if err := cache.RegisterMetrics(prometheus.DefaultRegisterer, rdb); err != nil {
			logger.Warn("redis metrics not registered", "err", err)
		}
		c := cache.NewRedisClient[cache.BalanceSnapshot](rdb)
		paymentOpts = append(paymentOpts, payment.WithCache(c, cfg.CacheTTL))
		queryOpts = append(queryOpts, query.WithCache(c, cfg.CacheTTL))
		ready = append(ready, c)
		logger.Info("balance cache: redis", "ttl", cfg.CacheTTL)
	}

	retryer := retry.NewExponentialBackOff(retry.Config{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	})
	api := httpapi.New(payment.New(be.store, paymentOpts...), query.New(be.store, queryOpts...), retryer, logger, ready...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("payments service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
}

// openBackend uses Postgres when DATABASE_URL is set and the in-memory store otherwise.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, error) {
	opening := ledger.MustParseAmount(devSeedBalance)
	if cfg.DatabaseURL == "" {
		store := memory.New(memory.WithLockTimeout(cfg.LockTimeout))
		org, err := store.SeedOrganization(ctx, devSeedINN, opening)
		if err != nil {
			return backend{}, fmt.Errorf("dev seed: %w", err)
		}
		logDevSeed(logger, "memory", org)
		printDevSeedBanner(org)
		logger.Info("storage backend: memory")
		return backend{store: store, ready: []httpapi.ReadyChecker{store}, close: func() {}}, nil
	}

	pg, err := pgstore.Open(ctx, cfg.DatabaseURL,
		pgstore.WithMaxConns(cfg.DBMaxConns),
		pgstore.WithLockTimeout(cfg.LockTimeout),
		pgstore.WithIsolation(cfg.TxIsolation),
	)
	if err != nil {
		return backend{}, fmt.Errorf("connect postgres: %w", err)
	}
	if autoMigrate {
		applied, err := pg.Migrate(ctx)
		if err != nil {
			pg.Close()
			return backend{}, err
		}
		logger.Info("migrations applied", "versions", applied)
	}
	if cfg.DevSeed {
		// Seed only once so restarts do not credit the opening balance again.
		org, err := pg.OrganizationByINN(ctx, devSeedINN, query.ReadMVCC)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			org, err = pg.SeedOrganization(ctx, devSeedINN, opening)
			if err != nil {
				logger.Error("dev seed failed", "err", err)
				break
			}
			logDevSeed(logger, "postgres", org)
			printDevSeedBanner(org)
		case err != nil:
			logger.Error("dev seed failed", "err", err)
		default:
			logDevSeed(logger, "postgres", org)
		}
	}
	logger.Info("storage backend: postgres")
	return backend{store: pg, ready: []httpapi.ReadyChecker{pg}, close: pg.Close}, nil
}

func logDevSeed(l *slog.Logger, backend string, org ledger.Organization) {
	l.Info("DEV seed ("+backend+")", "organization_id", org.ID.String(), "inn", org.INN, "balance", ledger.FormatAmount(org.Balance))
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste
func printDevSeedBanner(org ledger.Organization) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("organization_id: %s\n", org.ID.String())
	fmt.Printf("inn: %s\n", org.INN)
	fmt.Printf("balance: %s\n", ledger.FormatAmount(org.Balance))
	fmt.Println("==================================================")
}
