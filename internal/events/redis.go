package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "events:"

// RedisBus publishes events on Redis pub/sub, one channel per project, and
// pattern-subscribes to receive every project's events for local fan-out.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus wraps an existing client; the bus does not own the connection.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	channel := channelPrefix + event.ProjectID
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Start(ctx context.Context, handler func(*Event)) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("[Events] Dropping malformed event on %s: %v", msg.Channel, err)
					continue
				}
				handler(&ev)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error { return nil }
