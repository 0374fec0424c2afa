package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RemoteEntry is a value held by the remote tier with its remaining
// lifetime. A TTL of zero or less means the lifetime is unknown.
type RemoteEntry struct {
	Value string
	TTL   time.Duration
}

// RemoteStore is a shared cache tier that outlives the process.
type RemoteStore interface {
	Get(ctx context.Context, key Key) (RemoteEntry, bool, error)
	Set(ctx context.Context, key Key, value string, ttl time.Duration) error
}

const keyPrefix = "arlens:enrich:"

// RedisStore keeps enrichment results in Redis with a server-side TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Get returns the stored value and its remaining TTL, read atomically in
// one MULTI/EXEC. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key Key) (RemoteEntry, bool, error) {
	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)
	k := redisKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, k)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if get != nil && errors.Is(get.Err(), redis.Nil) {
		return RemoteEntry{}, false, nil
	}
	if err != nil {
		return RemoteEntry{}, false, err
	}
	return RemoteEntry{Value: get.Val(), TTL: remainingTTL(pttl.Val())}, true, nil
}

// Set stores value with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key Key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, redisKey(key), value, ttl).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(key Key) string {
	return keyPrefix + key.Target + ":" + key.Text
}

// remainingTTL maps PTTL's -1 (no expiry) and -2 (missing) replies to zero.
func remainingTTL(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
