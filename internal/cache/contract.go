// Package cache provides a small typed key/value cache with in-memory and
// Redis backends. Values are stored JSON-encoded.
package cache

import (
	"context"
	"errors"
	"time"
)

type Client[T any] interface {
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, object T, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	GetOrSet(ctx context.Context, opts GetOrSetOpts[T]) (T, error)
	// SetIfNewer stores object unless the cached value is Versioned with a
	// version >= object's. Values that are not Versioned are always stored.
	SetIfNewer(ctx context.Context, key string, object T, ttl time.Duration) (bool, error)
}

// Versioned values only replace cached values with a lower version. The
// version must also be encoded under the JSON key "version".
type Versioned interface {
	CacheVersion() int64
}

func versionOf(v any) (int64, bool) {
	vv, ok := v.(Versioned)
	if !ok {
		return 0, false
	}
	return vv.CacheVersion(), true
}

var (
	ErrNotExists           = errors.New("key not exists on cache storage")
	ErrCallbackNotProvided = errors.New("callback not provided")
	ErrInvalidType         = errors.New("invalid type result")
)

type GetOrSetOpts[T any] struct {
	Key      string
	TTL      time.Duration
	Callback func() (T, error)
}

// BalanceKey is the cache key of an organization's balance.
func BalanceKey(inn string) string { return "payments:balance:" + inn }

// getOrSet is shared by both backends.
func getOrSet[T any](ctx context.Context, c Client[T], opts GetOrSetOpts[T]) (result T, err error) {
	if opts.Callback == nil {
		return result, ErrCallbackNotProvided
	}

	obj, err := c.Get(ctx, opts.Key)
	if err == nil {
		return obj, nil
	}
	if !errors.Is(err, ErrNotExists) {
		return result, err
	}

	obj, err = opts.Callback()
	if err != nil {
		return result, err
	}

	if _, err = c.SetIfNewer(ctx, opts.Key, obj, opts.TTL); err != nil {
		return obj, err
	}
	return obj, nil
}
