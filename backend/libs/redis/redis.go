package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultIOTimeout    = 3 * time.Second
	defaultPoolSize     = 4
	defaultMinIdleConns = 1
)

// Options describes how to reach the Redis instance.
type Options struct {
	Addr     string
	Password string
	DB       int
	// PoolSize caps open connections; zero uses a small default sized for a single writer.
	PoolSize int
}

// NewRedisClient returns a configured go-redis client and validates the connection with PING.
func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}
	if opts.DB < 0 {
		return nil, fmt.Errorf("redis: invalid db %d", opts.DB)
	}
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     poolSize,
		MinIdleConns: defaultMinIdleConns,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultIOTimeout,
		WriteTimeout: defaultIOTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}

	return client, nil
}
