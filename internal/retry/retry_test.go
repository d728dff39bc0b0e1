package retry_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tinoosan/payments/internal/errs"
	"github.com/tinoosan/payments/internal/retry"
)

func newRetryer(attempts int) retry.Retryer {
	return retry.NewExponentialBackOff(retry.Config{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond})
}

func Test_Retry_ExponentialBackoff(t *testing.T) {
	t.Run("success - contention then success", func(t *testing.T) {
		calls := 0
		err := newRetryer(3).Retry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("lock organization: %w", errs.ErrContention)
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("failed - contention exhausts attempts", func(t *testing.T) {
		calls := 0
		err := newRetryer(2).Retry(context.Background(), func() error {
			calls++
			return errs.ErrContention
		})
		assert.ErrorIs(t, err, errs.ErrContention)
		assert.Equal(t, 2, calls)
	})

	t.Run("failed - permanent error is not retried", func(t *testing.T) {
		calls := 0
		err := newRetryer(5).Retry(context.Background(), func() error {
			calls++
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, calls)
	})

	t.Run("failed - single attempt", func(t *testing.T) {
		calls := 0
		err := newRetryer(1).Retry(context.Background(), func() error {
			calls++
			return errs.ErrContention
		})
		assert.ErrorIs(t, err, errs.ErrContention)
		assert.Equal(t, 1, calls)
	})
}
