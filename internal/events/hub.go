package events

import (
	"log"
	"sync"
	"sync/atomic"
)

// subscriberBuffer bounds how far a slow stream consumer may fall behind
// before events are dropped. Dropped events surface to the client as a gap
// in the sequence numbers.
const subscriberBuffer = 64

// Filter narrows which events a subscriber receives. Zero values match all.
// ProjectID is the tenant boundary: stream handlers always set it from the
// caller's credential, never from the request.
type Filter struct {
	ProjectID  string
	Repo       string
	HumanName  string
	EventTypes map[string]bool
}

// Match reports whether the event passes the filter.
func (f Filter) Match(ev *Event) bool {
	if f.ProjectID != "" && ev.ProjectID != f.ProjectID {
		return false
	}
	if f.Repo != "" && ev.Repo != f.Repo {
		return false
	}
	if f.HumanName != "" && ev.HumanName != f.HumanName {
		return false
	}
	if len(f.EventTypes) > 0 && !f.EventTypes[ev.Type] {
		return false
	}
	return true
}

// Subscriber is one live stream consumer.
type Subscriber struct {
	ID      string
	C       chan *Event
	filter  Filter
	dropped atomic.Uint64
}

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// Hub fans events out to live subscribers. It sits behind the bus: the bus
// delivers every event once per process, the hub multiplexes to streams.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	seq         atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]*Subscriber)}
}

// Subscribe registers a consumer with the given id and filter.
func (h *Hub) Subscribe(id string, filter Filter) *Subscriber {
	sub := &Subscriber{
		ID:     id,
		C:      make(chan *Event, subscriberBuffer),
		filter: filter,
	}
	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the consumer and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		close(sub.C)
	}
}

// SubscriberCount returns the number of attached consumers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// SubscriberCountFor returns how many consumers would see events for the
// given project. An unscoped filter counts for every project.
func (h *Hub) SubscriberCountFor(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sub := range h.subscribers {
		if sub.filter.ProjectID == "" || sub.filter.ProjectID == projectID {
			n++
		}
	}
	return n
}

// Dispatch delivers one event to every matching subscriber. A subscriber
// whose buffer is full loses the event; the gap is visible in Seq.
func (h *Hub) Dispatch(ev *Event) {
	ev.Seq = h.seq.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		if !sub.filter.Match(ev) {
			continue
		}
		select {
		case sub.C <- ev:
		default:
			sub.dropped.Add(1)
			if sub.dropped.Load()%subscriberBuffer == 1 {
				log.Printf("[Events] Subscriber %s is slow; dropping events", sub.ID)
			}
		}
	}
}
