package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	INN          string `json:"inn"`
	BalanceMinor int64  `json:"balance_minor"`
}

func redisTestHelper(t *testing.T) (redismock.ClientMock, *RedisClient[snapshot]) {
	t.Helper()
	t.Parallel()

	db, mock := redismock.NewClientMock()
	return mock, NewRedisClient[snapshot](db)
}

func TestRedisClient_Get(t *testing.T) {
	mock, c := redisTestHelper(t)
	key := BalanceKey("1234567890")

	mock.ExpectGet(key).SetVal(`{"inn":"1234567890","balance_minor":150000}`)
	got, err := c.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, snapshot{INN: "1234567890", BalanceMinor: 150000}, got)

	mock.ExpectGet(key).RedisNil()
	_, err = c.Get(context.Background(), key)
	assert.ErrorIs(t, err, ErrNotExists)

	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	_, err = c.Get(context.Background(), key)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotExists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_GetOrSet(t *testing.T) {
	mock, c := redisTestHelper(t)
	key := BalanceKey("1234567890")
	ttl := 30 * time.Second

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, `{"inn":"1234567890","balance_minor":100000}`, ttl).SetVal("OK")

	calls := 0
	got, err := c.GetOrSet(context.Background(), GetOrSetOpts[snapshot]{
		Key: key,
		TTL: ttl,
		Callback: func() (snapshot, error) {
			calls++
			return snapshot{INN: "1234567890", BalanceMinor: 100000}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(100000), got.BalanceMinor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_GetOrSetCallbackError(t *testing.T) {
	mock, c := redisTestHelper(t)
	key := BalanceKey("0000000000")
	notFound := errors.New("not found")

	mock.ExpectGet(key).RedisNil()
	_, err := c.GetOrSet(context.Background(), GetOrSetOpts[snapshot]{
		Key:      key,
		Callback: func() (snapshot, error) { return snapshot{}, notFound },
	})
	assert.ErrorIs(t, err, notFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Delete(t *testing.T) {
	mock, c := redisTestHelper(t)
	key := BalanceKey("1234567890")

	mock.ExpectDel(key).SetVal(1)
	require.NoError(t, c.Delete(context.Background(), key))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_SetIfNewer(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisClient[BalanceSnapshot](db)
	key := BalanceKey("1234567890")
	ttl := 30 * time.Second
	snap := BalanceSnapshot{INN: "1234567890", BalanceMinor: 150000, Version: 7}
	body, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectEvalSha(setIfNewerScript.Hash(), []string{key}, string(body), int64(7), ttl.Milliseconds()).SetVal(int64(1))
	stored, err := c.SetIfNewer(context.Background(), key, snap, ttl)
	require.NoError(t, err)
	assert.True(t, stored)

	mock.ExpectEvalSha(setIfNewerScript.Hash(), []string{key}, string(body), int64(7), ttl.Milliseconds()).SetVal(int64(0))
	stored, err = c.SetIfNewer(context.Background(), key, snap, ttl)
	require.NoError(t, err)
	assert.False(t, stored)

	assert.NoError(t, mock.ExpectationsWereMet())
}
