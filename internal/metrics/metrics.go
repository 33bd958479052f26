// Package metrics holds the coach's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	questions         *prometheus.CounterVec
	assistantDuration prometheus.Histogram
	ticketsLoaded     prometheus.Gauge
	datasetVersion    prometheus.Gauge
	httpRequests      *prometheus.CounterVec
}

// New registers every collector on a fresh registry, so tests can build
// as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_questions_total",
			Help: "Questions answered, by answer source.",
		}, []string{"source"}),
		assistantDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coach_assistant_duration_seconds",
			Help:    "Latency of assistant calls, failures included.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		ticketsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coach_tickets_loaded",
			Help: "Tickets in the current dataset.",
		}),
		datasetVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coach_dataset_version",
			Help: "Version of the current dataset; bumps on every reload.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coach_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		m.questions, m.assistantDuration, m.ticketsLoaded, m.datasetVersion, m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Question(source string) {
	if m == nil {
		return
	}
	m.questions.WithLabelValues(source).Inc()
}

func (m *Metrics) AssistantCall(d time.Duration) {
	if m == nil {
		return
	}
	m.assistantDuration.Observe(d.Seconds())
}

func (m *Metrics) Dataset(version uint64, tickets int) {
	if m == nil {
		return
	}
	m.datasetVersion.Set(float64(version))
	m.ticketsLoaded.Set(float64(tickets))
}

func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
