package events

import "context"

// Bus publishes events on a per-project channel and delivers them to
// process-local subscribers via a handler registered once at startup.
type Bus interface {
	// Publish sends the event to every subscriber of its project channel.
	Publish(ctx context.Context, event *Event) error
	// Start begins delivering received events to handler until ctx ends.
	Start(ctx context.Context, handler func(*Event)) error
	// Close releases backend resources.
	Close() error
}
