// Package metrics exposes Prometheus counters for HTTP traffic,
// conversions, document uploads and quizzes.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	conversions     *prometheus.CounterVec
	conversionTime  *prometheus.HistogramVec
	extractions     *prometheus.CounterVec
	quizzes         *prometheus.CounterVec
	scores          prometheus.Histogram
	eventStreams    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamkeen_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tamkeen_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamkeen_conversions_total",
			Help: "Conversion attempts by profile and outcome",
		}, []string{"profile", "outcome"}),
		conversionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tamkeen_conversion_duration_seconds",
			Help:    "Time to produce a conversion result",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"profile"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamkeen_extractions_total",
			Help: "Uploaded documents by format and outcome",
		}, []string{"format", "outcome"}),
		quizzes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamkeen_quiz_events_total",
			Help: "Quiz lifecycle events",
		}, []string{"event"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tamkeen_quiz_score_percent",
			Help:    "Distribution of submitted quiz scores",
			Buckets: prometheus.LinearBuckets(0, 20, 6),
		}),
		eventStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tamkeen_event_streams",
			Help: "Open conversion event websockets",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration,
		m.conversions, m.conversionTime, m.extractions,
		m.quizzes, m.scores, m.eventStreams,
	)
	return m
}

// ObserveConversion records one finished conversion attempt.
func (m *Metrics) ObserveConversion(profile, outcome string, elapsed time.Duration) {
	m.conversions.WithLabelValues(profile, outcome).Inc()
	m.conversionTime.WithLabelValues(profile).Observe(elapsed.Seconds())
}

// ObserveExtraction counts one uploaded document.
func (m *Metrics) ObserveExtraction(format, outcome string) {
	m.extractions.WithLabelValues(format, outcome).Inc()
}

// QuizGenerated counts a successful synthesis.
func (m *Metrics) QuizGenerated() { m.quizzes.WithLabelValues("generated").Inc() }

// QuizRejected counts a synthesis refused for too little content.
func (m *Metrics) QuizRejected() { m.quizzes.WithLabelValues("insufficient_content").Inc() }

// QuizScored counts a first submission and records its percentage.
func (m *Metrics) QuizScored(percent int) {
	m.quizzes.WithLabelValues("scored").Inc()
	m.scores.Observe(float64(percent))
}

// StreamOpened and StreamClosed track event websocket connections.
func (m *Metrics) StreamOpened() { m.eventStreams.Inc() }
func (m *Metrics) StreamClosed() { m.eventStreams.Dec() }

// Middleware records request counts and latency by chi route pattern, so
// path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
