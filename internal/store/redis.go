package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKV implements KV on plain Redis strings.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV connects and pings the server.
func NewRedisKV(ctx context.Context, addr, password string, db int, prefix string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisKV{client: client, prefix: prefix}, nil
}

// Get returns the value for key.
func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set stores value under key without expiry.
func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

// Close closes the client.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
