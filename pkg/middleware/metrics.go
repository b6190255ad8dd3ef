package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/envelope"
	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/server"
	"github.com/vango-dev/reactor/pkg/topic"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "reactor").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for op duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "reactor",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	opsTotal        *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	opErrors        *prometheus.CounterVec
	eventsSent      *prometheus.CounterVec
	eventBytes      prometheus.Counter
	activeSessions  prometheus.Gauge
	sessionDuration prometheus.Histogram
	updateBacklogs  prometheus.Counter
	topicPublishes  prometheus.Counter
	topicDeliveries prometheus.Counter
}

// globalMetrics is created by the first call to Prometheus or
// InitMetrics; later options are ignored.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &metrics{
		opsTotal: counterVec("ops_total", "Total number of session ops processed", "op", "status"),

		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "op_duration_seconds",
			Help:        "Op processing duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"op"}),

		opErrors:   counterVec("op_errors_total", "Total number of rejected ops", "op", "error_type"),
		eventsSent: counterVec("events_sent_total", "Total outbound events by type", "type"),
		eventBytes: counter("event_bytes_total", "Total bytes of outbound events"),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of live sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "session_duration_seconds",
			Help:        "Session lifetime in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1, 10, 60, 300, 1800, 3600, 14400},
		}),

		updateBacklogs:  counter("update_backlogs_total", "Times a session's pending topic events exceeded the update queue size"),
		topicPublishes:  counter("topic_publishes_total", "Total events published to topics"),
		topicDeliveries: counter("topic_deliveries_total", "Total topic events handed to sessions"),
	}
}

// InitMetrics creates the metrics without installing any middleware.
func InitMetrics(opts ...MetricsOption) {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	globalMetricsMu.Unlock()
}

func currentMetrics() *metrics {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	return globalMetrics
}

// Prometheus returns middleware that counts and times session ops.
//
// Example:
//
//	srv := server.New(config, rt)
//	srv.Use(middleware.Prometheus(middleware.WithNamespace("todo")))
//	srv.SetHooks(middleware.Hooks())
//	srv.Router().Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) server.Middleware {
	InitMetrics(opts...)
	m := currentMetrics()

	return func(next server.HandlerFunc) server.HandlerFunc {
		return func(ctx context.Context, op *server.Op) error {
			start := time.Now()
			err := next(ctx, op)
			m.opDuration.WithLabelValues(op.Name).Observe(time.Since(start).Seconds())

			status := "success"
			if err != nil {
				status = "error"
				m.opErrors.WithLabelValues(op.Name, categorizeError(err)).Inc()
			}
			m.opsTotal.WithLabelValues(op.Name, status).Inc()
			return err
		}
	}
}

// categorizeError maps an op error to a low-cardinality label.
func categorizeError(err error) string {
	var panicErr *component.PanicError
	var integrityErr *envelope.IntegrityError
	switch {
	case errors.As(err, &panicErr):
		return "panic"
	case errors.As(err, &integrityErr):
		return "integrity"
	case errors.Is(err, component.ErrUnknownType),
		errors.Is(err, component.ErrUnknownComponent),
		errors.Is(err, component.ErrUnknownHandler):
		return "not_found"
	case errors.Is(err, component.ErrDuplicateID):
		return "conflict"
	case errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, protocol.ErrMissingField),
		errors.Is(err, protocol.ErrUnrecognizedCommand):
		return "protocol"
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(err.Error(), "timeout"):
		return "timeout"
	}
	var collabErr *component.CollaboratorError
	if errors.As(err, &collabErr) {
		return "component"
	}
	return "internal"
}

// Hooks returns session hooks feeding the traffic metrics. The metrics
// are initialized with defaults if needed.
func Hooks() server.Hooks {
	InitMetrics()
	return server.Hooks{
		OnSessionStart: func(*server.Session) {
			RecordSessionCreate()
		},
		OnSessionEnd: func(s *server.Session) {
			RecordSessionDestroy(time.Since(s.CreatedAt))
		},
		OnEventSent: func(_ *server.Session, eventType string, bytes int) {
			RecordEventSent(eventType, bytes)
		},
		OnUpdateBacklog: func(*server.Session, int) {
			RecordUpdateBacklog()
		},
	}
}

// TopicObserver returns a topic.Observer counting publishes and
// deliveries. Pass it to topic.NewRegistry with topic.WithObserver.
func TopicObserver() topic.Observer {
	InitMetrics()
	return func(_ string, _ topic.Event, delivered int) {
		RecordPublish(delivered)
	}
}

// RecordEventSent records one outbound event.
func RecordEventSent(eventType string, bytes int) {
	if m := currentMetrics(); m != nil {
		m.eventsSent.WithLabelValues(eventType).Inc()
		m.eventBytes.Add(float64(bytes))
	}
}

// RecordSessionCreate records a new session.
func RecordSessionCreate() {
	if m := currentMetrics(); m != nil {
		m.activeSessions.Inc()
	}
}

// RecordSessionDestroy records a session ending after lifetime.
func RecordSessionDestroy(lifetime time.Duration) {
	if m := currentMetrics(); m != nil {
		m.activeSessions.Dec()
		m.sessionDuration.Observe(lifetime.Seconds())
	}
}

// RecordUpdateBacklog records a session falling behind its topic events.
func RecordUpdateBacklog() {
	if m := currentMetrics(); m != nil {
		m.updateBacklogs.Inc()
	}
}

// RecordPublish records one publish reaching delivered sessions.
func RecordPublish(delivered int) {
	if m := currentMetrics(); m != nil {
		m.topicPublishes.Inc()
		m.topicDeliveries.Add(float64(delivered))
	}
}
