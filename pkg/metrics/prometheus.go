package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one service.
// Every method is safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Call Metrics
	callsTotal       *prometheus.CounterVec
	callsActive      prometheus.Gauge
	callsDuration    prometheus.Histogram
	callsFailedTotal *prometheus.CounterVec
	signalsTotal     *prometheus.CounterVec

	// Message Metrics
	messagesTotal    *prometheus.CounterVec
	smsDispatchTotal *prometheus.CounterVec
	circuitState     *prometheus.GaugeVec

	// Auth Metrics
	authAttemptsTotal *prometheus.CounterVec
	authFailuresTotal *prometheus.CounterVec
	accountsLocked    prometheus.Counter
}

// NewMetrics creates all metrics on a private registry labelled with the service name
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "endpoint", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency in seconds",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		httpRequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: labels,
		}),

		websocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "websocket_connections",
			Help:        "Number of active WebSocket connections",
			ConstLabels: labels,
		}),
		websocketMessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "websocket_messages_total",
			Help:        "Total number of WebSocket messages",
			ConstLabels: labels,
		}, []string{"type", "direction"}),

		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "calls_total",
			Help:        "Total number of calls by direction and outcome",
			ConstLabels: labels,
		}, []string{"direction", "status"}),
		callsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "calls_active",
			Help:        "Number of calls currently in progress",
			ConstLabels: labels,
		}),
		callsDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "calls_duration_seconds",
			Help:        "Connected call duration in seconds",
			ConstLabels: labels,
			Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		callsFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "calls_failed_total",
			Help:        "Total number of failed calls",
			ConstLabels: labels,
		}, []string{"reason"}),
		signalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "signals_total",
			Help:        "Total number of signaling messages",
			ConstLabels: labels,
		}, []string{"event", "direction"}),

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "messages_total",
			Help:        "Total number of messages sent",
			ConstLabels: labels,
		}, []string{"type"}),
		smsDispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "sms_dispatch_total",
			Help:        "Total number of SMS gateway dispatches",
			ConstLabels: labels,
		}, []string{"result"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "circuit_breaker_state",
			Help:        "State of upstream circuit breakers (0=closed, 1=half_open, 2=open)",
			ConstLabels: labels,
		}, []string{"upstream"}),

		authAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "auth_attempts_total",
			Help:        "Total number of authentication attempts",
			ConstLabels: labels,
		}, []string{"method"}),
		authFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "auth_failures_total",
			Help:        "Total number of authentication failures",
			ConstLabels: labels,
		}, []string{"method", "reason"}),
		accountsLocked: factory.NewCounter(prometheus.CounterOpts{
			Name:        "auth_account_locked_total",
			Help:        "Total number of accounts locked due to failed login attempts",
			ConstLabels: labels,
		}),
	}
}

// GetRegistry returns the registry backing the /metrics endpoint
func (m *Metrics) GetRegistry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Inc()
}

func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// SetWebSocketConnections sets the number of active WebSocket connections
func (m *Metrics) SetWebSocketConnections(count int) {
	if m == nil {
		return
	}
	m.websocketConnections.Set(float64(count))
}

// RecordWebSocketMessage records a WebSocket frame; direction is "in" or "out"
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// Call Metrics Methods

// RecordCall records a call outcome; direction is "outgoing" or "incoming"
func (m *Metrics) RecordCall(direction, status string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(direction, status).Inc()
}

// SetActiveCalls sets the number of active calls
func (m *Metrics) SetActiveCalls(count int) {
	if m == nil {
		return
	}
	m.callsActive.Set(float64(count))
}

// RecordCallDuration records the connected duration of a call
func (m *Metrics) RecordCallDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.callsDuration.Observe(duration.Seconds())
}

// RecordCallFailure records a failed call
func (m *Metrics) RecordCallFailure(reason string) {
	if m == nil {
		return
	}
	m.callsFailedTotal.WithLabelValues(reason).Inc()
}

// RecordSignal records a signaling message; direction is "sent" or "received"
func (m *Metrics) RecordSignal(event, direction string) {
	if m == nil {
		return
	}
	m.signalsTotal.WithLabelValues(event, direction).Inc()
}

// Message Metrics Methods

// RecordMessage records a message by delivery type
func (m *Metrics) RecordMessage(msgType string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(msgType).Inc()
}

// RecordSMSDispatch records the result of one gateway call
func (m *Metrics) RecordSMSDispatch(result string) {
	if m == nil {
		return
	}
	m.smsDispatchTotal.WithLabelValues(result).Inc()
}

// SetCircuitState records the breaker state of an upstream
func (m *Metrics) SetCircuitState(upstream string, state int) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(upstream).Set(float64(state))
}

// Auth Metrics Methods

func (m *Metrics) RecordAuthAttempt(method string) {
	if m == nil {
		return
	}
	m.authAttemptsTotal.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordAuthFailure(method, reason string) {
	if m == nil {
		return
	}
	m.authFailuresTotal.WithLabelValues(method, reason).Inc()
}

func (m *Metrics) RecordAccountLocked() {
	if m == nil {
		return
	}
	m.accountsLocked.Inc()
}
