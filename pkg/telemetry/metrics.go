package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Hook execution results used as the result label.
const (
	ResultApproved = "approved"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics provides Prometheus metrics for the hook program.
type Metrics struct {
	config MetricsConfig

	hooksExecuted       *prometheus.CounterVec
	policyRejections    *prometheus.CounterVec
	instructions        *prometheus.CounterVec
	instructionDuration *prometheus.HistogramVec
	allowListSize       prometheus.Histogram
	errorsByCode        *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
// A disabled configuration yields a collector whose methods do nothing.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		hooksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hooks_executed_total",
				Help:      "Total number of transfer hook executions by result",
			},
			[]string{"result"},
		),
		policyRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_rejections_total",
				Help:      "Total number of transfers rejected by policy, by error code",
			},
			[]string{"code"},
		),
		instructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instructions_total",
				Help:      "Total number of dispatched instructions",
			},
			[]string{"instruction", "status"},
		),
		instructionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "instruction_duration_seconds",
				Help:      "Duration of instruction processing in seconds",
				Buckets:   buckets,
			},
			[]string{"instruction"},
		),
		allowListSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "allow_list_size",
				Help:      "Allow-list size observed after each update",
				Buckets:   prometheus.LinearBuckets(1, 1, 8),
			},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of instruction errors by class and code",
			},
			[]string{"class", "code"},
		),
	}

	registry.MustRegister(
		m.hooksExecuted,
		m.policyRejections,
		m.instructions,
		m.instructionDuration,
		m.allowListSize,
		m.errorsByCode,
	)

	return m, nil
}

// RecordHookExecuted counts one hook execution with its result.
func (m *Metrics) RecordHookExecuted(result string) {
	if m.hooksExecuted == nil {
		return
	}
	m.hooksExecuted.WithLabelValues(result).Inc()
}

// RecordPolicyRejection counts a transfer rejected with code.
func (m *Metrics) RecordPolicyRejection(code string) {
	if m.policyRejections == nil {
		return
	}
	m.policyRejections.WithLabelValues(code).Inc()
}

// RecordInstruction records a dispatched instruction with its status and duration.
func (m *Metrics) RecordInstruction(instruction, status string, duration time.Duration) {
	if m.instructions == nil {
		return
	}
	m.instructions.WithLabelValues(instruction, status).Inc()
	m.instructionDuration.WithLabelValues(instruction).Observe(duration.Seconds())
}

// ObserveAllowListSize records the size of an allow-list after an update.
func (m *Metrics) ObserveAllowListSize(size int) {
	if m.allowListSize == nil {
		return
	}
	m.allowListSize.Observe(float64(size))
}

// RecordError records an error by class and code. Errors without a code
// are counted under "internal".
func (m *Metrics) RecordError(class, code string) {
	if m.errorsByCode == nil {
		return
	}
	if code == "" {
		code = "internal"
	}
	m.errorsByCode.WithLabelValues(class, code).Inc()
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
// It returns immediately; serve errors are logged.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server failed")
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
