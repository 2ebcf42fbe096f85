package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const natsSubjectPrefix = "beadhub.events."

// NatsBus is the alternate bus backend for deployments that already run NATS.
// Subjects are beadhub.events.{project_id}.
type NatsBus struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// NewNatsBus connects to the NATS server at url.
func NewNatsBus(url string) (*NatsBus, error) {
	nc, err := nats.Connect(url,
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("[Events] NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[Events] NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NatsBus{conn: nc}, nil
}

func (b *NatsBus) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.conn.Publish(natsSubjectPrefix+event.ProjectID, payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *NatsBus) Start(ctx context.Context, handler func(*Event)) error {
	sub, err := b.conn.Subscribe(natsSubjectPrefix+">", func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("[Events] Dropping malformed event on %s: %v", msg.Subject, err)
			return
		}
		handler(&ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	b.sub = sub
	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
	return nil
}

func (b *NatsBus) Close() error {
	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	b.conn.Close()
	return nil
}
