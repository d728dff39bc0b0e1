package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// InMemoryClient is a process-local Client. It suits single-instance and dev deployments.
type InMemoryClient[T any] struct {
	// mu serializes writers so SetIfNewer can compare and store atomically.
	mu    sync.Mutex
	cache sync.Map
	done  chan struct{}
	once  sync.Once
}

type cachedValue struct {
	Value     []byte
	ExpAt     time.Time
	Version   int64
	Versioned bool
}

func (cv *cachedValue) expired(now time.Time) bool {
	return !cv.ExpAt.IsZero() && cv.ExpAt.Before(now)
}

func NewInMemoryClient[T any]() *InMemoryClient[T] {
	m := &InMemoryClient[T]{done: make(chan struct{})}
	go m.backgroundCleaner(time.Minute)
	return m
}

func (m *InMemoryClient[T]) Get(_ context.Context, key string) (result T, err error) {
	v, found := m.cache.Load(key)
	if !found {
		return result, ErrNotExists
	}
	cv, ok := v.(*cachedValue)
	if !ok {
		return result, ErrInvalidType
	}
	if cv.expired(time.Now()) {
		m.cache.Delete(key)
		return result, ErrNotExists
	}
	if err = json.Unmarshal(cv.Value, &result); err != nil {
		return result, err
	}
	return result, nil
}

// Set stores object under key. A non-positive ttl never expires.
func (m *InMemoryClient[T]) Set(_ context.Context, key string, object T, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store(key, object, ttl)
}

func (m *InMemoryClient[T]) SetIfNewer(_ context.Context, key string, object T, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if version, ok := versionOf(object); ok {
		if v, found := m.cache.Load(key); found {
			if cv, ok := v.(*cachedValue); ok && cv.Versioned && !cv.expired(time.Now()) && cv.Version >= version {
				return false, nil
			}
		}
	}
	return true, m.store(key, object, ttl)
}

func (m *InMemoryClient[T]) store(key string, object T, ttl time.Duration) error {
	b, err := json.Marshal(object)
	if err != nil {
		return err
	}
	cv := &cachedValue{Value: b}
	cv.Version, cv.Versioned = versionOf(object)
	if ttl > 0 {
		cv.ExpAt = time.Now().Add(ttl)
	}
	m.cache.Store(key, cv)
	return nil
}

func (m *InMemoryClient[T]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(key)
	return nil
}

func (m *InMemoryClient[T]) GetOrSet(ctx context.Context, opts GetOrSetOpts[T]) (T, error) {
	return getOrSet[T](ctx, m, opts)
}

// backgroundCleaner periodically removes expired entries from the cache.
func (m *InMemoryClient[T]) backgroundCleaner(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.cache.Range(func(key, value any) bool {
				cv, ok := value.(*cachedValue)
				if !ok || cv.expired(now) {
					m.cache.Delete(key)
				}
				return true
			})
		case <-m.done:
			return
		}
	}
}

// Close stops the background cleaner.
func (m *InMemoryClient[T]) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
