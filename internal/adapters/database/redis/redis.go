package redis

import (
	"context"
	"fmt"

	"github.com/hopehouse/reminders/internal/adapters/database/redis/locks"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	Locks *locks.Storage

	redis *redis.Client
}

type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func New(ctx context.Context, opts Options) (*Client, error) {
	lockStorage := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := lockStorage.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping lock storage: %w", err)
	}

	return &Client{
		Locks: locks.NewStorage(lockStorage),
		redis: lockStorage,
	}, nil
}

// Ping checks the connection, used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redis.Close()
}
