// Package ephemeral implements the Redis-backed side of the state model:
// presence with secondary indexes, advisory file reservations, chat-wait
// signals, and inbox wake channels. Everything here may be wiped at any time;
// durable truth lives in the database.
package ephemeral

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps the shared Redis client.
type Store struct {
	client *redis.Client
}

// New connects to Redis at url (redis:// form).
func New(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Store{client: client}, nil
}

// Client exposes the underlying connection for the event bus.
func (s *Store) Client() *redis.Client { return s.client }

// Close closes the connection pool.
func (s *Store) Close() error { return s.client.Close() }

// Ping reports store health for the liveness endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }
