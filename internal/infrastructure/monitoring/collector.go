// Package monitoring exposes call-core counters to Prometheus and drives
// periodic health checks.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsRecorder on top of Prometheus.
type Collector struct {
	connectionsOpenedTotal prometheus.Counter
	connectionsClosedTotal prometheus.Counter
	connectionsActive      prometheus.Gauge
	evictionsTotal         prometheus.Counter
	reconnectAttemptsTotal prometheus.Counter

	messagesTotal *prometheus.CounterVec

	callsStartedTotal prometheus.Counter
	callsEndedTotal   prometheus.Counter
	callDuration      prometheus.Histogram

	peerLinksOpenedTotal prometheus.Counter
	peerLinksClosedTotal prometheus.Counter
	peerLinksActive      prometheus.Gauge
}

func NewCollector() *Collector {
	return &Collector{
		connectionsOpenedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safespace_signaling_connections_opened_total",
			Help: "Total number of signaling connections opened",
		}),

		connectionsClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safespace_signaling_connections_closed_total",
			Help: "Total number of signaling connections closed",
		}),

		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "safespace_signaling_connections_active",
			Help: "Number of currently open signaling connections",
		}),

		evictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safespace_signaling_evictions_total",
			Help: "Total number of connections evicted because the pool was at capacity",
		}),

		reconnectAttemptsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safespace_signaling_reconnect_attempts_total",
			Help: "Total number of reconnect attempts after unexpected closes",
		}),

		messagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "safespace_signaling_messages_total",
			Help: "Total number of signaling messages by direction",
		}, []string{"direction"}),

		callsStartedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safespace_calls_started_total",
			Help: "Total number of calls that reached the active state",
		}),

		callsEndedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safespace_calls_ended_total",
			Help: "Total number of calls ended",
		}),

		callDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "safespace_call_duration_seconds",
			Help:    "Duration of completed calls",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		peerLinksOpenedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safespace_peer_links_opened_total",
			Help: "Total number of peer links created",
		}),

		peerLinksClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "safespace_peer_links_closed_total",
			Help: "Total number of peer links closed",
		}),

		peerLinksActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "safespace_peer_links_active",
			Help: "Number of currently open peer links",
		}),
	}
}

func (c *Collector) RecordConnectionOpened() {
	c.connectionsOpenedTotal.Inc()
	c.connectionsActive.Inc()
}

func (c *Collector) RecordConnectionClosed() {
	c.connectionsClosedTotal.Inc()
	c.connectionsActive.Dec()
}

func (c *Collector) RecordEviction() {
	c.evictionsTotal.Inc()
}

func (c *Collector) RecordReconnectAttempt() {
	c.reconnectAttemptsTotal.Inc()
}

func (c *Collector) RecordMessage(direction string) {
	c.messagesTotal.WithLabelValues(direction).Inc()
}

func (c *Collector) RecordCallStarted() {
	c.callsStartedTotal.Inc()
}

func (c *Collector) RecordCallEnded(duration time.Duration) {
	c.callsEndedTotal.Inc()
	c.callDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordPeerLinkOpened() {
	c.peerLinksOpenedTotal.Inc()
	c.peerLinksActive.Inc()
}

func (c *Collector) RecordPeerLinkClosed() {
	c.peerLinksClosedTotal.Inc()
	c.peerLinksActive.Dec()
}
