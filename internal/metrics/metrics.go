// Package metrics exposes Prometheus collectors for generation calls and
// attempt history writes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mind-engage/mindengage-study/internal/exam"
)

type Metrics struct {
	reg *prometheus.Registry

	generationCalls    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	attemptsSaved      *prometheus.CounterVec
	attemptsDeleted    prometheus.Counter
	persistenceErrors  *prometheus.CounterVec
	sessions           prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		generationCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "study",
			Name:      "generation_calls_total",
			Help:      "LLM generation calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "study",
			Name:      "generation_duration_seconds",
			Help:      "LLM generation call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"op"}),
		attemptsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "study",
			Name:      "attempts_saved_total",
			Help:      "Attempts appended to history.",
		}, []string{"type"}),
		attemptsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "study",
			Name:      "attempts_deleted_total",
			Help:      "Attempt deletions.",
		}),
		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "study",
			Name:      "persistence_failures_total",
			Help:      "Attempt store write failures.",
		}, []string{"op"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "study",
			Name:      "active_sessions",
			Help:      "Live study sessions.",
		}),
	}
	reg.MustRegister(
		m.generationCalls,
		m.generationDuration,
		m.attemptsSaved,
		m.attemptsDeleted,
		m.persistenceErrors,
		m.sessions,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveGeneration records one generation call. outcome is "ok" or an
// error class such as "error" or "timeout".
func (m *Metrics) ObserveGeneration(op, outcome string, d time.Duration) {
	m.generationCalls.WithLabelValues(op, outcome).Inc()
	m.generationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) AttemptSaved(typ exam.AttemptType) {
	m.attemptsSaved.WithLabelValues(string(typ)).Inc()
}

func (m *Metrics) AttemptDeleted() { m.attemptsDeleted.Inc() }

func (m *Metrics) PersistenceFailed(op string) {
	m.persistenceErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SessionOpened() { m.sessions.Inc() }
func (m *Metrics) SessionClosed() { m.sessions.Dec() }

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

var _ exam.Recorder = (*Metrics)(nil)
