package v1

import (
    "github.com/tinoosan/payments/internal/cache"
    "github.com/tinoosan/payments/internal/storage/memory"
)

// Compile-time assertions for the readiness probes wired by cmd.
var (
    _ ReadyChecker = (*memory.Store)(nil)
    _ ReadyChecker = (*cache.RedisClient[cache.BalanceSnapshot])(nil)
)
