// Package metrics exposes Prometheus instrumentation for the browser pool and
// the script sandbox. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Admission metrics
	GateInUse   prometheus.Gauge
	GateWaiting prometheus.Gauge

	// Browser handle metrics
	BrowserLaunches    prometheus.Counter
	BrowserDisconnects prometheus.Counter
	ContextsOpen       prometheus.Gauge

	// Script metrics
	ScriptRuns     *prometheus.CounterVec
	ScriptDuration prometheus.Histogram
	Captures       *prometheus.CounterVec
}

// New creates a metrics set on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		GateInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shotscript_gate_in_use",
			Help: "Number of concurrency permits currently held",
		}),
		GateWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shotscript_gate_waiting",
			Help: "Number of callers waiting for a concurrency permit",
		}),
		BrowserLaunches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shotscript_browser_launches_total",
			Help: "Total number of browser processes launched",
		}),
		BrowserDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shotscript_browser_disconnects_total",
			Help: "Total number of unexpected browser disconnects observed",
		}),
		ContextsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shotscript_contexts_open",
			Help: "Number of isolated browser contexts currently open",
		}),
		ScriptRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotscript_script_runs_total",
				Help: "Total number of script runs by outcome",
			},
			[]string{"outcome"},
		),
		ScriptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shotscript_script_duration_seconds",
			Help:    "Script run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotscript_captures_total",
				Help: "Total number of captures produced by kind",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.GateInUse,
		m.GateWaiting,
		m.BrowserLaunches,
		m.BrowserDisconnects,
		m.ContextsOpen,
		m.ScriptRuns,
		m.ScriptDuration,
		m.Captures,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the metrics in exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetGate records gate occupancy.
func (m *Metrics) SetGate(inUse, waiting int) {
	if m == nil {
		return
	}
	m.GateInUse.Set(float64(inUse))
	m.GateWaiting.Set(float64(waiting))
}

// RecordLaunch counts a browser launch.
func (m *Metrics) RecordLaunch() {
	if m == nil {
		return
	}
	m.BrowserLaunches.Inc()
}

// RecordDisconnect counts an observed browser disconnect.
func (m *Metrics) RecordDisconnect() {
	if m == nil {
		return
	}
	m.BrowserDisconnects.Inc()
}

// ContextOpened tracks a newly created isolated context.
func (m *Metrics) ContextOpened() {
	if m == nil {
		return
	}
	m.ContextsOpen.Inc()
}

// ContextClosed tracks a disposed isolated context.
func (m *Metrics) ContextClosed() {
	if m == nil {
		return
	}
	m.ContextsOpen.Dec()
}

// RecordScript records one script run with its outcome label.
func (m *Metrics) RecordScript(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScriptRuns.WithLabelValues(outcome).Inc()
	m.ScriptDuration.Observe(d.Seconds())
}

// RecordCapture counts a produced capture of the given kind.
func (m *Metrics) RecordCapture(kind string) {
	if m == nil {
		return
	}
	m.Captures.WithLabelValues(kind).Inc()
}
