package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by GetJSON when the key does not exist.
var ErrNotFound = errors.New("key not found")

// incrScript increments a counter and starts its expiry on the first hit so
// the window stays fixed.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisClient wraps the go-redis client with helper methods.
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to Redis. Keys written with SetJSON expire after
// ttl.
func NewRedisClient(redisURL, password string, ttl time.Duration) (*RedisClient, error) {
	var opts *redis.Options

	if redisURL != "" {
		var err error
		opts, err = redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		if password != "" && opts.Password == "" {
			opts.Password = password
		}
	} else {
		opts = &redis.Options{
			Addr:     "localhost:6379",
			Password: password,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return WrapRedisClient(client, ttl), nil
}

// WrapRedisClient uses an existing go-redis client.
func WrapRedisClient(client *redis.Client, ttl time.Duration) *RedisClient {
	return &RedisClient{client: client, ttl: ttl}
}

// TTL returns the expiry applied by SetJSON and RefreshTTL.
func (r *RedisClient) TTL() time.Duration { return r.ttl }

// SetJSON stores value as JSON with the configured TTL.
func (r *RedisClient) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

// GetJSON unmarshals the value at key into dest.
func (r *RedisClient) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// RefreshTTL resets the TTL on every key starting with prefix.
func (r *RedisClient) RefreshTTL(ctx context.Context, prefix string) error {
	if r.ttl <= 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	n := 0
	for iter.Next(ctx) {
		pipe.Expire(ctx, iter.Val(), r.ttl)
		n++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes keys.
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// Exists checks whether a key exists.
func (r *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Ping checks Redis connectivity.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Incr increments a fixed-window counter and returns the new count.
func (r *RedisClient) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return incrScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64()
}
