package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend shares cached snapshots between server replicas.
type RedisBackend struct {
	client    redis.Cmdable
	keyPrefix string
	scanCount int64
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithKeyPrefix sets the prefix of every key written. Defaults to "logbook:".
func WithKeyPrefix(p string) RedisOption {
	return func(r *RedisBackend) { r.keyPrefix = p }
}

// NewRedisBackend wraps a go-redis client.
func NewRedisBackend(client redis.Cmdable, opts ...RedisOption) *RedisBackend {
	r := &RedisBackend{client: client, keyPrefix: "logbook:", scanCount: 200}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisBackend) k(key string) string { return r.keyPrefix + key }

// Get returns the stored value. redis.Nil is a miss.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.k(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set stores value with an expiry.
func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.k(key), value, ttl).Err()
}

// Counter reads an integer key, zero when unset.
func (r *RedisBackend) Counter(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, r.k(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Incr atomically increments an integer key.
func (r *RedisBackend) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, r.k(key)).Result()
}

// DeletePrefix scans for keys under prefix and deletes them in batches.
func (r *RedisBackend) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, r.k(prefix)+"*", r.scanCount).Iterator()
	batch := make([]string, 0, r.scanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if int64(len(batch)) >= r.scanCount {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("del: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
