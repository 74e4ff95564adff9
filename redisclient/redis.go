// Package redisclient mirrors the scheduler's status snapshot into
// Redis for external dashboards to poll. It is a one-way publish only:
// nothing about admission or rate-limit state is ever read back from
// Redis, since cross-process coordination of rate limits is explicitly
// out of scope.
package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AlfredDev/conductor-gateway/config"
)

const statusKey = "conductor:status"

type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CONDUCTOR_REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// PublishSnapshot writes snapshot as JSON under a well-known key with a
// short TTL, so a stale gateway process doesn't leave a misleading
// status behind after it stops.
func (r *Client) PublishSnapshot(ctx context.Context, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal status snapshot: %w", err)
	}
	return r.c.Set(ctx, statusKey, data, 30*time.Second).Err()
}

// Close releases the underlying connection pool.
func (r *Client) Close() error {
	return r.c.Close()
}
