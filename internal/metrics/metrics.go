// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors. Registered once per process.
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	SyncsTotal        *prometheus.CounterVec
	StatusChanges     prometheus.Counter
	NotificationsSent *prometheus.CounterVec
	OutboxDepth       prometheus.Gauge
	StreamSubscribers prometheus.Gauge
	EventsPublished   *prometheus.CounterVec
	ChatWaits         *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics, creating them on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beadhub_http_requests_total",
				Help: "HTTP requests by method, route, and status code",
			}, []string{"method", "route", "status"}),
			HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "beadhub_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"}),
			SyncsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beadhub_syncs_total",
				Help: "Sync requests by mode",
			}, []string{"mode"}),
			StatusChanges: promauto.NewCounter(prometheus.CounterOpts{
				Name: "beadhub_bead_status_changes_total",
				Help: "Detected bead status transitions",
			}),
			NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beadhub_notifications_total",
				Help: "Outbox deliveries by outcome",
			}, []string{"outcome"}),
			OutboxDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "beadhub_outbox_pending",
				Help: "Outbox entries awaiting delivery",
			}),
			StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "beadhub_stream_subscribers",
				Help: "Attached live stream subscribers",
			}),
			EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beadhub_events_published_total",
				Help: "Domain events published by type",
			}, []string{"type"}),
			ChatWaits: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beadhub_chat_waits_total",
				Help: "Chat waits by how they released",
			}, []string{"release"}),
		}
	})
	return instance
}

// RecordHTTP observes one finished request.
func (m *Metrics) RecordHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
