package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisprometheus/v9"
	"github.com/redis/go-redis/v9"
)

// setIfNewerScript stores ARGV[1] unless the current value carries a
// "version" >= ARGV[2]. ARGV[3] is the TTL in milliseconds, 0 for none.
var setIfNewerScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, obj = pcall(cjson.decode, cur)
	if ok and type(obj) == 'table' and tonumber(obj['version']) and tonumber(obj['version']) >= tonumber(ARGV[2]) then
		return 0
	end
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisClient is a Client backed by Redis.
type RedisClient[T any] struct {
	redis *redis.Client
}

func NewRedisClient[T any](rdb *redis.Client) *RedisClient[T] {
	return &RedisClient[T]{redis: rdb}
}

// DialRedis parses url, connects and verifies the connection with PING.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RegisterMetrics exports pool statistics of rdb to reg.
func RegisterMetrics(reg prometheus.Registerer, rdb *redis.Client) error {
	return reg.Register(redisprometheus.NewCollector("payments", "redis", rdb))
}

func (r *RedisClient[T]) Get(ctx context.Context, key string) (result T, err error) {
	val, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return result, ErrNotExists
		}
		return result, err
	}
	if err = json.Unmarshal([]byte(val), &result); err != nil {
		return result, err
	}
	return result, nil
}

func (r *RedisClient[T]) Set(ctx context.Context, key string, object T, ttl time.Duration) error {
	val, err := json.Marshal(object)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, key, string(val), ttl).Err()
}

// SetIfNewer compares and sets in one Lua script.
func (r *RedisClient[T]) SetIfNewer(ctx context.Context, key string, object T, ttl time.Duration) (bool, error) {
	version, ok := versionOf(object)
	if !ok {
		return true, r.Set(ctx, key, object, ttl)
	}
	val, err := json.Marshal(object)
	if err != nil {
		return false, err
	}
	stored, err := setIfNewerScript.Run(ctx, r.redis, []string{key}, string(val), version, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (r *RedisClient[T]) Delete(ctx context.Context, key string) error {
	return r.redis.Del(ctx, key).Err()
}

func (r *RedisClient[T]) GetOrSet(ctx context.Context, opts GetOrSetOpts[T]) (T, error) {
	return getOrSet[T](ctx, r, opts)
}

// Ready pings Redis.
func (r *RedisClient[T]) Ready(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}
