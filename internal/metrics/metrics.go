// Package metrics exposes run and session counters for prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/caffeineduck/jsxpad/playground"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	compileDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	gatherer        prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsxpad_runs_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jsxpad_run_duration_seconds",
				Help:    "Duration of pipeline runs",
				Buckets: prometheus.DefBuckets,
			},
		),
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsxpad_compile_duration_seconds",
				Help:    "Duration of compiler invocations",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"result"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsxpad_active_sessions",
				Help: "Number of live playground sessions",
			},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.runs, m.runDuration, m.compileDuration, m.activeSessions)
	return m
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(outcome string, d time.Duration) {
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}

// ObserveCompile records one compiler call.
func (m *Metrics) ObserveCompile(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.compileDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SessionOpened increments the live session gauge.
func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }

// SessionClosed decrements the live session gauge.
func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

// Hooks returns playground hooks that feed m.
func (m *Metrics) Hooks() playground.Hooks {
	return playground.Hooks{
		OnCompile: func(ctx context.Context, d time.Duration, err error) {
			m.ObserveCompile(d, err)
		},
		OnRunDone: func(ctx context.Context, r playground.Report) {
			m.ObserveRun(Outcome(r), r.Duration)
		},
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Outcome is the runs_total label for a report.
func Outcome(r playground.Report) string {
	if r.Render.Error != nil && r.Render.RuntimeError == "" {
		return "failed"
	}
	k := r.Kind()
	if k == playground.KindNone {
		return "ok"
	}
	return k.String()
}
