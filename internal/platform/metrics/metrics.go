package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Seek results recorded by ObserveSeek.
const (
	SeekOK          = "ok"
	SeekUnsupported = "unsupported"
	SeekFailed      = "failed"
)

// Metrics holds Prometheus counters and gauges for the catch-up service.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	requestDuration     *prometheus.HistogramVec
	sessionsOpenedTotal prometheus.Counter
	sessionsClosedTotal prometheus.Counter
	seeksTotal          *prometheus.CounterVec
	speedChangesTotal   *prometheus.CounterVec
	segmentsServedTotal prometheus.Counter
	activeSessions      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the catch-up service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catchup_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catchup_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catchup_request_duration_seconds",
		Help:    "HTTP request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sessionsOpenedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catchup_sessions_opened_total",
		Help: "Total number of catch-up sessions opened",
	})
	sessionsClosedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catchup_sessions_closed_total",
		Help: "Total number of catch-up sessions closed",
	})
	seeksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catchup_seeks_total",
		Help: "Total number of seek requests by result",
	}, []string{"result"})
	speedChangesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catchup_speed_changes_total",
		Help: "Total number of playback speed changes by kind (pause or play)",
	}, []string{"kind"})
	segmentsServedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catchup_segments_served_total",
		Help: "Total number of time-shifted segments delivered to players",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catchup_active_sessions",
		Help: "Number of open catch-up sessions",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		requestDuration,
		sessionsOpenedTotal,
		sessionsClosedTotal,
		seeksTotal,
		speedChangesTotal,
		segmentsServedTotal,
		activeSessions,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		requestDuration:     requestDuration,
		sessionsOpenedTotal: sessionsOpenedTotal,
		sessionsClosedTotal: sessionsClosedTotal,
		seeksTotal:          seeksTotal,
		speedChangesTotal:   speedChangesTotal,
		segmentsServedTotal: segmentsServedTotal,
		activeSessions:      activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveRequest records the latency of a request to route.
func (m *Metrics) ObserveRequest(route string, seconds float64) {
	m.requestDuration.WithLabelValues(route).Observe(seconds)
}

// IncSessionsOpened increments the sessions opened counter.
func (m *Metrics) IncSessionsOpened() {
	m.sessionsOpenedTotal.Inc()
}

// IncSessionsClosed increments the sessions closed counter.
func (m *Metrics) IncSessionsClosed() {
	m.sessionsClosedTotal.Inc()
}

// ObserveSeek counts a seek with one of SeekOK, SeekUnsupported or SeekFailed.
func (m *Metrics) ObserveSeek(result string) {
	m.seeksTotal.WithLabelValues(result).Inc()
}

// ObserveSpeed counts a speed change, split into pauses and plays.
func (m *Metrics) ObserveSpeed(speed int) {
	kind := "play"
	if speed == 0 {
		kind = "pause"
	}
	m.speedChangesTotal.WithLabelValues(kind).Inc()
}

// AddSegmentsServed adds n to the segments served counter.
func (m *Metrics) AddSegmentsServed(n int) {
	m.segmentsServedTotal.Add(float64(n))
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
