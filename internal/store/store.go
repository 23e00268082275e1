// Package store provides the key-value capability the alert collection is
// persisted through, and the Alert Store built on it.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// KV is a string-keyed, string-valued durable map. Get reports a missing key
// with found == false and a nil error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a KV backend.
type Options struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	PostgresDSN   string
	DialTimeout   time.Duration
}

// Open connects to the configured backend.
func Open(ctx context.Context, opts Options) (KV, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	switch strings.ToLower(opts.Backend) {
	case BackendMemory:
		return NewMemoryKV(), nil
	case BackendSQLite, "":
		if dir := filepath.Dir(opts.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		return NewSQLiteKV(opts.SQLitePath)
	case BackendRedis:
		ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
		return NewRedisKV(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	case BackendPostgres:
		ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
		return NewPostgresKV(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
