// Package notify drains the notification outbox and delivers rendered mails
// through the messaging plane. Delivery is at-least-once with bounded
// retries; duplicates share a payload fingerprint.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/messaging"
	"github.com/beadhub/beadhub/internal/models"
)

// SystemSender identifies notification mail in inboxes.
const SystemSender = "beadhub"

// dedupeWindow bounds how long a completed fingerprint suppresses
// redelivery to the same recipient.
const dedupeWindow = 10 * time.Minute

// Dispatcher is the background outbox worker.
type Dispatcher struct {
	db   *database.Database
	mail *messaging.Mail

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	backoffBase  time.Duration
	backoffCap   time.Duration
}

// NewDispatcher builds a dispatcher.
func NewDispatcher(db *database.Database, mail *messaging.Mail, batchSize, maxAttempts int, pollInterval, backoffBase, backoffCap time.Duration) *Dispatcher {
	return &Dispatcher{
		db:           db,
		mail:         mail,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
		backoffBase:  backoffBase,
		backoffCap:   backoffCap,
	}
}

// Run drains the outbox until ctx ends. The current batch finishes before
// shutdown completes.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Printf("[Dispatcher] Started (batch=%d, maxAttempts=%d)", d.batchSize, d.maxAttempts)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Dispatcher] Stopped")
			return nil
		case <-ticker.C:
			if n := d.drainOnce(context.WithoutCancel(ctx)); n > 0 {
				log.Printf("[Dispatcher] Delivered batch of %d", n)
			}
		}
	}
}

// drainOnce claims and processes one batch, returning the number handled.
func (d *Dispatcher) drainOnce(ctx context.Context) int {
	batch, err := d.db.ClaimOutboxBatch(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		log.Printf("[Dispatcher] Failed to claim batch: %v", err)
		return 0
	}
	for _, entry := range batch {
		d.process(ctx, entry)
	}
	return len(batch)
}

func (d *Dispatcher) process(ctx context.Context, entry *models.OutboxEntry) {
	duplicate, err := d.db.RecentlyDelivered(ctx, entry.WorkspaceID, entry.Fingerprint, dedupeWindow)
	if err == nil && duplicate {
		if err := d.db.CompleteOutboxEntry(ctx, entry.ID, ""); err != nil {
			log.Printf("[Dispatcher] Failed to complete duplicate %s: %v", entry.ID, err)
		}
		return
	}

	subject, body, err := render(entry)
	if err != nil {
		d.fail(ctx, entry, err)
		return
	}

	var p statusChangePayload
	fromAlias := SystemSender
	if jsonErr := json.Unmarshal(entry.Payload, &p); jsonErr == nil && p.ChangedBy != "" {
		fromAlias = p.ChangedBy
	}

	msg, err := d.mail.Send(ctx, &models.MailMessage{
		ProjectID:   entry.ProjectID,
		FromID:      SystemSender,
		FromAlias:   fromAlias,
		ToID:        entry.WorkspaceID,
		Subject:     subject,
		Body:        body,
		Priority:    models.PriorityNormal,
		Fingerprint: &entry.Fingerprint,
	})
	if err != nil {
		d.fail(ctx, entry, err)
		return
	}
	if err := d.db.CompleteOutboxEntry(ctx, entry.ID, msg.ID); err != nil {
		log.Printf("[Dispatcher] Failed to complete %s: %v", entry.ID, err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, entry *models.OutboxEntry, cause error) {
	attempts := entry.Attempts + 1
	next := time.Now().UTC().Add(d.retryDelay(attempts))
	if err := d.db.FailOutboxEntry(ctx, entry.ID, cause.Error(), attempts, d.maxAttempts, next); err != nil {
		log.Printf("[Dispatcher] Failed to record failure for %s: %v", entry.ID, err)
	}
	if attempts >= d.maxAttempts {
		log.Printf("[Dispatcher] Entry %s failed permanently after %d attempts: %v", entry.ID, attempts, cause)
	}
}

// retryDelay is the exponential schedule min(base*2^(attempts-1), cap),
// without jitter so retries stay testable.
func (d *Dispatcher) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.backoffBase
	b.MaxInterval = d.backoffCap
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	if delay == backoff.Stop || delay > d.backoffCap {
		delay = d.backoffCap
	}
	return delay
}
