package memory

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/tinoosan/payments/internal/errs"
)

// keyLocks hands out exclusive per-key locks with a bounded wait. A lock is a
// one-slot channel; entries are dropped once nobody holds or waits for them.
type keyLocks struct {
    mu sync.Mutex
    m  map[string]*keyLock
}

type keyLock struct {
    ch   chan struct{}
    refs int
}

func newKeyLocks() *keyLocks { return &keyLocks{m: make(map[string]*keyLock)} }

func (k *keyLocks) ref(key string) *keyLock {
    k.mu.Lock()
    defer k.mu.Unlock()
    l, ok := k.m[key]
    if !ok {
        l = &keyLock{ch: make(chan struct{}, 1)}
        k.m[key] = l
    }
    l.refs++
    return l
}

func (k *keyLocks) unref(key string) {
    k.mu.Lock()
    defer k.mu.Unlock()
    if l, ok := k.m[key]; ok {
        l.refs--
        if l.refs == 0 { delete(k.m, key) }
    }
}

// acquire waits up to timeout for key. A zero timeout fails immediately when
// the key is held (no-wait). Timeouts surface errs.ErrContention.
func (k *keyLocks) acquire(ctx context.Context, key string, timeout time.Duration) error {
    l := k.ref(key)
    select {
    case l.ch <- struct{}{}:
        return nil
    default:
    }
    if timeout <= 0 {
        k.unref(key)
        return fmt.Errorf("%w: %s is locked", errs.ErrContention, key)
    }
    t := time.NewTimer(timeout)
    defer t.Stop()
    select {
    case l.ch <- struct{}{}:
        return nil
    case <-t.C:
        k.unref(key)
        return fmt.Errorf("%w: %s not acquired within %s", errs.ErrContention, key, timeout)
    case <-ctx.Done():
        k.unref(key)
        return ctx.Err()
    }
}

func (k *keyLocks) release(key string) {
    k.mu.Lock()
    l, ok := k.m[key]
    k.mu.Unlock()
    if !ok { return }
    <-l.ch
    k.unref(key)
}

func operationKey(id string) string { return "op:" + id }
func organizationKey(inn string) string { return "org:" + inn }
