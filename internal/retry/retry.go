// Package retry repeats operations that failed on transient lock contention.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tinoosan/payments/internal/errs"
)

// Retryer runs an operation until it succeeds, fails permanently or runs out of attempts.
type Retryer interface {
	Retry(ctx context.Context, operation func() error) error
}

// Config tunes the exponential backoff.
type Config struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type exponentialBackoff struct {
	cfg       Config
	retryable func(error) bool
}

/*
NewExponentialBackOff returns a Retryer that only repeats errors matching
errs.ErrContention. Any other error stops immediately and is returned as is.

Example:

	err := r.Retry(ctx, func() error { return ingest() })
*/
func NewExponentialBackOff(cfg Config) Retryer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = backoff.DefaultInitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = backoff.DefaultMaxInterval
	}
	return &exponentialBackoff{cfg: cfg, retryable: errs.Retryable}
}

func (r *exponentialBackoff) Retry(ctx context.Context, operation func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialInterval
	eb.MaxInterval = r.cfg.MaxInterval
	eb.MaxElapsedTime = 0

	op := func() error {
		err := operation()
		if err != nil && !r.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.cfg.MaxAttempts-1)), ctx))
}
