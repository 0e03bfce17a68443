package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Dashboard metrics
	pollsTotal     *prometheus.CounterVec
	pollDuration   *prometheus.HistogramVec
	staleResponses *prometheus.CounterVec
	controlActions *prometheus.CounterVec
	botRunning     prometheus.Gauge
	backendErrors  prometheus.Gauge
	noticesTotal   *prometheus.CounterVec
	forwardedTotal *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botdash_polls_total",
			Help: "Total number of backend refreshes",
		},
		[]string{"endpoint", "result"},
	)
	r.pollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botdash_poll_duration_seconds",
			Help:    "Backend refresh duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
		[]string{"endpoint"},
	)
	r.staleResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botdash_stale_responses_total",
			Help: "Responses dropped because a newer one was already applied",
		},
		[]string{"endpoint"},
	)
	r.controlActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botdash_control_actions_total",
			Help: "Total number of start/stop requests",
		},
		[]string{"action", "result"},
	)
	r.botRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "botdash_bot_running",
			Help: "1 when the bot last reported running",
		},
	)
	r.backendErrors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "botdash_backend_error_count",
			Help: "Error count last reported by the bot",
		},
	)
	r.noticesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botdash_notifications_total",
			Help: "Total number of on-screen notifications raised",
		},
		[]string{"level"},
	)
	r.forwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botdash_forwarded_total",
			Help: "Total number of events forwarded to notifiers",
		},
		[]string{"notifier", "status"},
	)

	reg.MustRegister(r.pollsTotal)
	reg.MustRegister(r.pollDuration)
	reg.MustRegister(r.staleResponses)
	reg.MustRegister(r.controlActions)
	reg.MustRegister(r.botRunning)
	reg.MustRegister(r.backendErrors)
	reg.MustRegister(r.noticesTotal)
	reg.MustRegister(r.forwardedTotal)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordPoll records one refresh of a backend endpoint.
func (r *Registry) RecordPoll(endpoint string, err error, duration float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.pollsTotal.WithLabelValues(endpoint, result).Inc()
	r.pollDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordStale records a dropped out-of-order response.
func (r *Registry) RecordStale(endpoint string) {
	r.staleResponses.WithLabelValues(endpoint).Inc()
}

// RecordControl records a start/stop request outcome.
func (r *Registry) RecordControl(action, result string) {
	r.controlActions.WithLabelValues(action, result).Inc()
}

// SetBotStatus mirrors the latest status payload.
func (r *Registry) SetBotStatus(running bool, errorCount int) {
	if running {
		r.botRunning.Set(1)
	} else {
		r.botRunning.Set(0)
	}
	r.backendErrors.Set(float64(errorCount))
}

// RecordNotice records a raised notification.
func (r *Registry) RecordNotice(level string) {
	r.noticesTotal.WithLabelValues(level).Inc()
}

// RecordForwarded records a notifier delivery.
func (r *Registry) RecordForwarded(notifier, status string) {
	r.forwardedTotal.WithLabelValues(notifier, status).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
