package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/imgembed/pkg/errors"
)

const (
	redisFieldData     = "data"
	redisFieldStoredAt = "stored_at"
	redisScanCount     = 500
)

// RedisCache stores entries as Redis hashes with "data" and "stored_at"
// fields. It can be shared between processes.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the Redis server at url
// (redis://[user:pass@]host:port/db).
func NewRedisCache(url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse redis url")
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeCache, err, "ping redis")
	}
	return nil
}

// Get retrieves a value from the cache.
func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := c.client.HMGet(ctx, key, redisFieldData, redisFieldStoredAt).Result()
	if err != nil {
		return Entry{}, false, errors.Wrap(errors.ErrCodeCache, err, "redis get")
	}
	data, ok := vals[0].(string)
	if !ok {
		return Entry{}, false, nil
	}
	stamp, _ := vals[1].(string)
	nanos, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return Entry{}, false, nil
	}
	return Entry{Data: []byte(data), StoredAt: time.Unix(0, nanos)}, true, nil
}

// Set stores a value in the cache.
func (c *RedisCache) Set(ctx context.Context, key string, e Entry) error {
	err := c.client.HSet(ctx, key,
		redisFieldData, e.Data,
		redisFieldStoredAt, strconv.FormatInt(e.StoredAt.UnixNano(), 10),
	).Err()
	if err != nil {
		return errors.Wrap(errors.ErrCodeCache, err, "redis set")
	}
	return nil
}

// Delete removes a value from the cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeCache, err, "redis delete")
	}
	return nil
}

// Sweep scans keys under prefix and deletes those stored before cutoff.
func (c *RedisCache) Sweep(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		stamp, err := c.client.HGet(ctx, key, redisFieldStoredAt).Result()
		if err != nil && err != redis.Nil {
			return removed, errors.Wrap(errors.ErrCodeCache, err, "redis sweep")
		}
		nanos, perr := strconv.ParseInt(stamp, 10, 64)
		if perr == nil && !time.Unix(0, nanos).Before(cutoff) {
			continue
		}
		n, err := c.client.Del(ctx, key).Result()
		if err != nil {
			return removed, errors.Wrap(errors.ErrCodeCache, err, "redis sweep")
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		return removed, errors.Wrap(errors.ErrCodeCache, err, "redis sweep")
	}
	return removed, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ensure RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
