// Package telemetry exposes Prometheus metrics for the HTTP server, the
// record store and the chat relay.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "thyrotrack"

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	MetricsEnabled *bool // nil = use default (true)
}

// metricsOn returns whether metrics are enabled (defaults to true).
func (c *TelemetryConfig) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "thyrotrack-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a helper to create a *bool for TelemetryConfig fields.
func BoolPtr(b bool) *bool {
	return &b
}

// TelemetryProvider owns a private registry so tests never collide on the
// global default registerer.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpActive    prometheus.Gauge
	mutations     *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	changes       *prometheus.CounterVec
	relayRequests *prometheus.CounterVec
	relayDuration prometheus.Histogram
}

func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()

	tp := &TelemetryProvider{
		cfg:      cfg,
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "active_requests",
			Help: "Number of in-flight HTTP requests.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "mutations_total",
			Help: "Record-store mutations by collection, operation and outcome.",
		}, []string{"collection", "op", "outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "conflict_retries_total",
			Help: "Revision conflicts that forced a reload and retry.",
		}, []string{"collection"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "records", Name: "changes_total",
			Help: "Audited change requests by collection, action and response status.",
		}, []string{"collection", "action", "status"}),
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "upstream_requests_total",
			Help: "Chat completion calls by upstream status (\"error\" for transport failures).",
		}, []string{"status"}),
		relayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "relay", Name: "upstream_duration_seconds",
			Help:    "Latency of chat completion calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}),
	}

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "build_info",
		Help: "Constant 1, labelled with service metadata.",
		ConstLabels: prometheus.Labels{
			"service": cfg.ServiceName,
			"version": cfg.ServiceVersion,
			"env":     cfg.Environment,
		},
	})
	buildInfo.Set(1)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
		tp.httpRequests, tp.httpDuration, tp.httpActive,
		tp.mutations, tp.conflicts, tp.changes,
		tp.relayRequests, tp.relayDuration,
	)
	return tp
}

// Registry exposes the registry for extra collectors and tests.
func (tp *TelemetryProvider) Registry() *prometheus.Registry {
	return tp.registry
}

// RegisterPoolStats publishes connection-pool gauges read on every scrape.
func (tp *TelemetryProvider) RegisterPoolStats(stats func() (total, idle int32)) {
	tp.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "db", Name: "pool_total_connections",
			Help: "Open connections in the Postgres pool.",
		}, func() float64 { t, _ := stats(); return float64(t) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "db", Name: "pool_idle_connections",
			Help: "Idle connections in the Postgres pool.",
		}, func() float64 { _, i := stats(); return float64(i) }),
	)
}

// MetricsMiddleware records request count, latency and in-flight requests
// keyed by route pattern.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			tp.httpActive.Inc()
			defer tp.httpActive.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo render the error now so the status is final.
				c.Error(err)
			}

			req := c.Request()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			tp.httpRequests.WithLabelValues(req.Method, route, status).Inc()
			tp.httpDuration.WithLabelValues(req.Method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{}))
}

// Mutation implements records.Observer.
func (tp *TelemetryProvider) Mutation(collection, op, outcome string) {
	tp.mutations.WithLabelValues(collection, op, outcome).Inc()
}

// ConflictRetry implements records.Observer.
func (tp *TelemetryProvider) ConflictRetry(collection string) {
	tp.conflicts.WithLabelValues(collection).Inc()
}

// RecordChange counts one audited change request.
func (tp *TelemetryProvider) RecordChange(collection, action string, status int) {
	tp.changes.WithLabelValues(collection, action, strconv.Itoa(status)).Inc()
}

// ObserveUpstream implements relay.Observer.
func (tp *TelemetryProvider) ObserveUpstream(status int, elapsed time.Duration, err error) {
	label := strconv.Itoa(status)
	if err != nil && status == 0 {
		label = "error"
	}
	tp.relayRequests.WithLabelValues(label).Inc()
	tp.relayDuration.Observe(elapsed.Seconds())
}
