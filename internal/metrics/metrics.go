// Package metrics provides Prometheus metrics collection for the bot.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome/status label values for metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Conversation metrics
	MessagesReceivedTotal *prometheus.CounterVec
	DispatchesTotal       *prometheus.CounterVec
	StateTransitionsTotal *prometheus.CounterVec
	TakeoversTotal        *prometheus.CounterVec
	ReplyDelaySeconds     prometheus.Histogram
	QueueDepth            prometheus.Gauge

	// External service metrics
	LLMCallsTotal       *prometheus.CounterVec
	LLMCallDuration     prometheus.Histogram
	CalendarCallsTotal  *prometheus.CounterVec
	ExportsTotal        *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips prometheus.Counter

	// Store metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	ProspectsInMemory  prometheus.Gauge

	// Registry used for this metrics instance (nil means default registry)
	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadbot_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadbot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadbot_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Conversation metrics
		MessagesReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadbot_messages_received_total",
				Help: "Total number of inbound messages by payload kind",
			},
			[]string{"kind"}, // "text", "button", "list", "audio", "none"
		),
		DispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadbot_dispatches_total",
				Help: "Total number of message dispatches by outcome",
			},
			[]string{"outcome"}, // "handled", "dropped_takeover", "command", "panic"
		),
		StateTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadbot_state_transitions_total",
				Help: "Total number of conversation state transitions",
			},
			[]string{"from", "to"},
		),
		TakeoversTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadbot_takeovers_total",
				Help: "Total number of operator takeover commands by action",
			},
			[]string{"action"}, // "begin", "end", "close"
		),
		ReplyDelaySeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadbot_reply_delay_seconds",
				Help:    "Simulated typing delay applied before each outbound reply",
				Buckets: []float64{.5, 1, 1.5, 2, 2.5, 3},
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadbot_queue_depth",
				Help: "Number of inbound messages waiting for a dispatch worker",
			},
		),

		// External service metrics
		LLMCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadbot_llm_calls_total",
				Help: "Total number of language model calls by status",
			},
			[]string{"status"}, // "success", "failure", "circuit_open"
		),
		LLMCallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadbot_llm_call_duration_seconds",
				Help:    "Duration of language model calls",
				Buckets: []float64{.5, 1, 2, 5, 10, 15, 30},
			},
		),
		CalendarCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadbot_calendar_calls_total",
				Help: "Total number of calendar operations by operation and status",
			},
			[]string{"operation", "status"}, // operation: "list", "create"
		),
		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadbot_exports_total",
				Help: "Total number of prospect exports by status",
			},
			[]string{"status"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leadbot_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "leadbot_circuit_breaker_trips_total",
				Help: "Total number of times a circuit breaker has tripped",
			},
		),

		// Store metrics
		DBConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadbot_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadbot_db_connections_in_use",
				Help: "Number of database connections currently in use",
			},
		),
		ProspectsInMemory: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadbot_prospects_in_memory",
				Help: "Number of prospect records held in the in-memory fallback",
			},
		),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		// Normalize path for metrics (avoid high cardinality)
		path := normalizePath(r.URL.Path)

		m.HTTPRequestsTotal.WithLabelValues(
			r.Method,
			path,
			strconv.Itoa(wrapped.statusCode),
		).Inc()

		m.HTTPRequestDuration.WithLabelValues(
			r.Method,
			path,
		).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// normalizePath normalizes URL paths to prevent high cardinality labels.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/live", "/metrics", "/log/level":
		return path
	}

	if strings.HasPrefix(path, "/webhook/") {
		return "/webhook/:channel"
	}

	return path
}

// Helper methods for recording specific events

// RecordMessage records an inbound message by payload kind.
func (m *Metrics) RecordMessage(kind string) {
	m.MessagesReceivedTotal.WithLabelValues(kind).Inc()
}

// RecordDispatch records a dispatch outcome.
func (m *Metrics) RecordDispatch(outcome string) {
	m.DispatchesTotal.WithLabelValues(outcome).Inc()
}

// RecordTransition records a conversation state transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.StateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordTakeover records an operator command by action.
func (m *Metrics) RecordTakeover(action string) {
	m.TakeoversTotal.WithLabelValues(action).Inc()
}

// RecordReplyDelay records the simulated typing delay of an outbound reply.
func (m *Metrics) RecordReplyDelay(d time.Duration) {
	m.ReplyDelaySeconds.Observe(d.Seconds())
}

// SetQueueDepth sets the number of messages waiting for a worker.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// RecordLLMCall records a language model call.
func (m *Metrics) RecordLLMCall(success bool, duration time.Duration) {
	status := outcomeFailure
	if success {
		status = outcomeSuccess
	}
	m.LLMCallsTotal.WithLabelValues(status).Inc()
	m.LLMCallDuration.Observe(duration.Seconds())
}

// RecordCircuitOpen records a circuit breaker opening.
func (m *Metrics) RecordCircuitOpen() {
	m.LLMCallsTotal.WithLabelValues("circuit_open").Inc()
	m.CircuitBreakerTrips.Inc()
}

// SetCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCalendarCall records a calendar operation.
func (m *Metrics) RecordCalendarCall(operation string, err error) {
	status := outcomeSuccess
	if err != nil {
		status = outcomeFailure
	}
	m.CalendarCallsTotal.WithLabelValues(operation, status).Inc()
}

// RecordExport records a prospect export attempt.
func (m *Metrics) RecordExport(err error) {
	status := outcomeSuccess
	if err != nil {
		status = outcomeFailure
	}
	m.ExportsTotal.WithLabelValues(status).Inc()
}

// UpdateDBConnections updates database connection metrics.
func (m *Metrics) UpdateDBConnections(open, inUse int) {
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
}

// SetProspectsInMemory sets the size of the in-memory fallback store.
func (m *Metrics) SetProspectsInMemory(count int) {
	m.ProspectsInMemory.Set(float64(count))
}
