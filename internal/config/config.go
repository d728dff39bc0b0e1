// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
    "errors"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/hashicorp/go-multierror"
    "github.com/joho/godotenv"
)

// Balance read modes.
const (
    ReadModeMVCC   = "mvcc"
    ReadModeNoWait = "nowait"
)

// Cache backends.
const (
    CacheNone   = "none"
    CacheMemory = "memory"
    CacheRedis  = "redis"
)

// Config is the full runtime configuration.
type Config struct {
    HTTPAddr    string
    DatabaseURL string
    DBMaxConns  int32
    // LockTimeout bounds how long a transaction waits for a row or operation lock.
    LockTimeout time.Duration
    TxIsolation string
    // BalanceReadMode is mvcc (lock-free) or nowait (exclusive, fail fast).
    BalanceReadMode string

    HistoryDefaultLimit int
    HistoryMaxLimit     int

    CacheBackend string
    RedisURL     string
    CacheTTL     time.Duration

    RetryMaxAttempts     int
    RetryInitialInterval time.Duration
    RetryMaxInterval     time.Duration

    DevSeed   bool
    LogLevel  string
    LogFormat string
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
    if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
        return Config{}, fmt.Errorf("load .env: %w", err)
    }
    return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function and validates it.
func FromEnv(getenv func(string) string) (Config, error) {
    e := env{get: getenv}
    cfg := Config{
        HTTPAddr:             e.str("HTTP_ADDR", ":8080"),
        DatabaseURL:          e.str("DATABASE_URL", ""),
        DBMaxConns:           int32(e.int("DB_MAX_CONNS", 10)),
        LockTimeout:          e.duration("LOCK_TIMEOUT", 5*time.Second),
        TxIsolation:          strings.ToLower(e.str("TX_ISOLATION", "read_committed")),
        BalanceReadMode:      strings.ToLower(e.str("BALANCE_READ_MODE", ReadModeMVCC)),
        HistoryDefaultLimit:  e.int("HISTORY_DEFAULT_LIMIT", 10),
        HistoryMaxLimit:      e.int("HISTORY_MAX_LIMIT", 100),
        CacheBackend:         strings.ToLower(e.str("CACHE_BACKEND", CacheNone)),
        RedisURL:             e.str("REDIS_URL", ""),
        CacheTTL:             e.duration("CACHE_TTL", 30*time.Second),
        RetryMaxAttempts:     e.int("RETRY_MAX_ATTEMPTS", 3),
        RetryInitialInterval: e.duration("RETRY_INITIAL_INTERVAL", 50*time.Millisecond),
        RetryMaxInterval:     e.duration("RETRY_MAX_INTERVAL", time.Second),
        DevSeed:              e.bool("DEV_SEED"),
        LogLevel:             e.str("LOG_LEVEL", "info"),
        LogFormat:            strings.ToLower(e.str("LOG_FORMAT", "json")),
    }
    if err := multierror.Append(e.errs, cfg.Validate()).ErrorOrNil(); err != nil {
        return cfg, err
    }
    return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
    var result *multierror.Error
    if c.HTTPAddr == "" {
        result = multierror.Append(result, errors.New("HTTP_ADDR must not be empty"))
    }
    if c.DBMaxConns <= 0 {
        result = multierror.Append(result, errors.New("DB_MAX_CONNS must be positive"))
    }
    if c.LockTimeout <= 0 {
        result = multierror.Append(result, errors.New("LOCK_TIMEOUT must be positive"))
    }
    switch c.TxIsolation {
    case "read_committed", "repeatable_read", "serializable":
    default:
        result = multierror.Append(result, fmt.Errorf("TX_ISOLATION %q is not one of read_committed, repeatable_read, serializable", c.TxIsolation))
    }
    switch c.BalanceReadMode {
    case ReadModeMVCC, ReadModeNoWait:
    default:
        result = multierror.Append(result, fmt.Errorf("BALANCE_READ_MODE %q is not mvcc or nowait", c.BalanceReadMode))
    }
    if c.HistoryDefaultLimit <= 0 || c.HistoryMaxLimit <= 0 {
        result = multierror.Append(result, errors.New("history limits must be positive"))
    } else if c.HistoryDefaultLimit > c.HistoryMaxLimit {
        result = multierror.Append(result, errors.New("HISTORY_DEFAULT_LIMIT exceeds HISTORY_MAX_LIMIT"))
    }
    switch c.CacheBackend {
    case CacheNone, CacheMemory:
    case CacheRedis:
        if c.RedisURL == "" {
            result = multierror.Append(result, errors.New("REDIS_URL is required when CACHE_BACKEND=redis"))
        }
    default:
        result = multierror.Append(result, fmt.Errorf("CACHE_BACKEND %q is not none, memory or redis", c.CacheBackend))
    }
    if c.RetryMaxAttempts < 1 {
        result = multierror.Append(result, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
    }
    return result.ErrorOrNil()
}

type env struct {
    get  func(string) string
    errs *multierror.Error
}

func (e *env) str(key, fallback string) string {
    if v := strings.TrimSpace(e.get(key)); v != "" { return v }
    return fallback
}

func (e *env) int(key string, fallback int) int {
    v := strings.TrimSpace(e.get(key))
    if v == "" { return fallback }
    n, err := strconv.Atoi(v)
    if err != nil {
        e.errs = multierror.Append(e.errs, fmt.Errorf("%s: %w", key, err))
        return fallback
    }
    return n
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
    v := strings.TrimSpace(e.get(key))
    if v == "" { return fallback }
    d, err := time.ParseDuration(v)
    if err != nil {
        e.errs = multierror.Append(e.errs, fmt.Errorf("%s: %w", key, err))
        return fallback
    }
    return d
}

func (e *env) bool(key string) bool {
    switch strings.ToLower(strings.TrimSpace(e.get(key))) {
    case "1", "true", "yes":
        return true
    }
    return false
}
