package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures Redis access.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	OpTimeout time.Duration
}

// Redis is the production Store backed by a Redis server. Every
// operation runs under a short timeout so a stalled server surfaces as
// an ordinary availability error to the caller.
type Redis struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{client: client, opTimeout: cfg.OpTimeout}, nil
}

func (s *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Get returns the value at key, or ErrNotFound.
func (s *Redis) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set writes a value with an optional expiry.
func (s *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del removes keys.
func (s *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// IncrBy adds delta and refreshes the key expiry in one pipeline.
func (s *Redis) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incrby %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Expire resets a key's expiry.
func (s *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}

// Exists reports whether a key is present.
func (s *Redis) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// ListPush appends a value to the tail of a list.
func (s *Redis) ListPush(ctx context.Context, key, value string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", key, err)
	}
	return nil
}

// ListTrim trims a list to the given inclusive range.
func (s *Redis) ListTrim(ctx context.Context, key string, start, stop int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("redis ltrim %s: %w", key, err)
	}
	return nil
}

// ListRange returns the given inclusive range of a list.
func (s *Redis) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	return vals, nil
}

// SetAdd adds a member to a set.
func (s *Redis) SetAdd(ctx context.Context, key, member string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}
	return nil
}

// SetRemove removes a member from a set.
func (s *Redis) SetRemove(ctx context.Context, key, member string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis srem %s: %w", key, err)
	}
	return nil
}

// SetMembers returns all members of a set.
func (s *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}
	return members, nil
}

// Close releases the Redis connection.
func (s *Redis) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
