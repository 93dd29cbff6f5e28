package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/smarthttp/internal/errors"
	"github.com/vango-dev/smarthttp/pkg/server"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "smarthttp").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// SessionCount reports live sessions for the sessions_active gauge.
	// The gauge is not registered when nil.
	SessionCount func() int
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

// WithSessionCount enables the sessions_active gauge.
func WithSessionCount(fn func() int) MetricsOption {
	return func(c *MetricsConfig) {
		c.SessionCount = fn
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "smarthttp",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	scriptErrors    *prometheus.CounterVec
	sessionsCreated prometheus.Counter
}

// NewMetrics registers the collectors with the configured registry.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	m := &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of requests dispatched",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Request handling duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		scriptErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "script_errors_total",
			Help:        "Total number of script failures by phase",
			ConstLabels: config.ConstLabels,
		}, []string{"phase"}),

		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_created_total",
			Help:        "Total number of sessions minted",
			ConstLabels: config.ConstLabels,
		}),
	}

	if config.SessionCount != nil {
		count := config.SessionCount
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_active",
			Help:        "Number of sessions in the session table",
			ConstLabels: config.ConstLabels,
		}, func() float64 { return float64(count()) })
	}
	return m
}

// Middleware returns server middleware that records every request.
func (m *Metrics) Middleware() server.Middleware {
	return func(next server.Handler) server.Handler {
		return func(ex *server.Exchange) error {
			start := time.Now()
			err := next(ex)

			kind := ex.Kind
			if kind == "" {
				kind = "unknown"
			}
			m.requestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
			m.requestsTotal.WithLabelValues(kind, strconv.Itoa(ex.Status())).Inc()
			if ex.NewSession {
				m.sessionsCreated.Inc()
			}

			if err != nil {
				switch errors.CategoryOf(err) {
				case errors.CategoryCompile:
					m.scriptErrors.WithLabelValues("compile").Inc()
				case errors.CategoryRuntime:
					m.scriptErrors.WithLabelValues("runtime").Inc()
				}
			}
			return err
		}
	}
}

// Prometheus creates metrics with opts and returns their middleware.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	srv.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
//	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
func Prometheus(opts ...MetricsOption) server.Middleware {
	return NewMetrics(opts...).Middleware()
}
