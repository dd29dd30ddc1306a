// Package metrics exposes Prometheus instruments for turn resolution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Narration stages.
const (
	StageIntent     = "intent"
	StageNarrative  = "narrative"
	StageExtraction = "extraction"
)

// Metrics holds the instruments registered on one registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	turns       *prometheus.CounterVec
	narration   *prometheus.HistogramVec
	skillChecks *prometheus.CounterVec
}

// New registers the instruments, plus Go and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roleplay_turns_total",
			Help: "Total number of resolved turns by outcome.",
		}, []string{"outcome"}),
		narration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roleplay_narration_seconds",
			Help:    "Latency of narration service calls by stage and result.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"stage", "result"}),
		skillChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roleplay_skill_checks_total",
			Help: "Total number of skill checks by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TurnResolved counts a turn outcome: success, degraded or failed.
func (m *Metrics) TurnResolved(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

// NarrationObserved records the latency of one narration call.
func (m *Metrics) NarrationObserved(stage string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.narration.WithLabelValues(stage, result).Observe(took.Seconds())
}

// SkillCheckResolved counts a skill check.
func (m *Metrics) SkillCheckResolved(success, critical bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	if critical {
		result = "critical_" + result
	}
	m.skillChecks.WithLabelValues(result).Inc()
}
