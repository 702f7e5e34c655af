// ABOUTME: Prometheus metrics derived from the event stream
// ABOUTME: Subscribes to the broadcaster and exposes a registry over HTTP

package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/standin/internal/events"
)

const namespace = "standin"

// Collector turns events into Prometheus series.
type Collector struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	events        *prometheus.CounterVec
	rotations     *prometheus.CounterVec
	reconnects    prometheus.Counter
	chatMessages  prometheus.Counter
	sessionOnline prometheus.Gauge
	rotationOn    prometheus.Gauge
	activeTime    prometheus.Histogram
}

// New creates a collector with its own registry, including Go runtime and
// process collectors.
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger.With("component", "metrics"),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events published, by kind.",
		}, []string{"kind"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotation_episodes_total",
			Help:      "Rotation episodes, by outcome.",
		}, []string{"outcome"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_reconnects_total",
			Help:      "Auto-reconnect attempts scheduled.",
		}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat lines observed by the agent.",
		}),
		sessionOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_online",
			Help:      "1 while the agent session is online.",
		}),
		rotationOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rotation_enabled",
			Help:      "1 while rotation governs the session.",
		}),
		activeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rotation_active_seconds",
			Help:      "Sampled active time of rotated identities.",
			Buckets:   prometheus.LinearBuckets(5, 2.5, 8),
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.events, c.rotations, c.reconnects, c.chatMessages,
		c.sessionOnline, c.rotationOn, c.activeTime,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Run observes every event from b until ctx is cancelled or b is closed.
func (c *Collector) Run(ctx context.Context, b *events.Broadcaster) {
	ch, _ := b.Subscribe(ctx)
	c.Consume(ch)
}

// Consume observes events from an existing subscription until it closes.
func (c *Collector) Consume(ch <-chan *events.Event) {
	c.logger.Debug("metrics subscribed to events")
	for e := range ch {
		c.Observe(e)
	}
}

// Observe updates series for one event.
func (c *Collector) Observe(e *events.Event) {
	c.events.WithLabelValues(string(e.Kind)).Inc()

	switch p := e.Payload.(type) {
	case events.StatusChanged:
		if p.Status == "online" {
			c.sessionOnline.Set(1)
		} else {
			c.sessionOnline.Set(0)
		}
	case events.ChatMessage:
		c.chatMessages.Inc()
	case events.SessionReconnecting:
		c.reconnects.Inc()
	case events.RotationEnabled:
		c.rotationOn.Set(1)
	case events.RotationDisabled:
		c.rotationOn.Set(0)
	case events.RotationCompleted:
		c.rotations.WithLabelValues("completed").Inc()
		c.activeTime.Observe(float64(p.ActiveForMS) / 1000)
	case events.RotationRetired:
		c.rotations.WithLabelValues("retired").Inc()
	case events.ConnectionFailed:
		c.rotations.WithLabelValues("connection_failed").Inc()
	case events.NoIdentityAvailable:
		c.rotations.WithLabelValues("no_identity").Inc()
	}
}
