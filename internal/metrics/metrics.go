// Package metrics exports generation counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/lawnchairsociety/levelforge/internal/wfc"
	"github.com/lawnchairsociety/levelforge/internal/worldgen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "levelforge"

// Run outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeContradiction = "contradiction"
	OutcomeConflict      = "conflict"
	OutcomeTickBudget    = "tick_budget"
	OutcomeCancelled     = "cancelled"
	OutcomeError         = "error"
)

// Recorder is a worldgen.Observer that keeps Prometheus metrics on its own
// registry.
type Recorder struct {
	registry *prometheus.Registry

	attempts    prometheus.Counter
	ticks       prometheus.Counter
	forced      prometheus.Counter
	runs        *prometheus.CounterVec
	nodes       *prometheus.CounterVec
	connections prometheus.Counter
	duration    prometheus.Histogram
	lastSeed    prometheus.Gauge
}

// NewRecorder creates a recorder with Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Generation attempts, including restarts.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Collapse ticks executed.",
		}),
		forced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_collapses_total",
			Help:      "Nodes collapsed by the stall timeout.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished generation runs by outcome.",
		}, []string{"outcome"}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_total",
			Help:      "Nodes in finished runs by final phase.",
		}, []string{"phase"}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Connections built in finished runs.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		lastSeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_seed",
			Help:      "Seed of the most recently finished run.",
		}),
	}

	r.registry.MustRegister(
		r.attempts, r.ticks, r.forced, r.runs, r.nodes, r.connections, r.duration, r.lastSeed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RunStarted implements worldgen.Observer.
func (r *Recorder) RunStarted(uint32, int) {
	r.attempts.Inc()
}

// TickCompleted implements worldgen.Observer.
func (r *Recorder) TickCompleted(_ uint32, report wfc.TickReport) {
	r.ticks.Inc()
	r.forced.Add(float64(len(report.Forced)))
}

// RunFinished implements worldgen.Observer.
func (r *Recorder) RunFinished(summary worldgen.Summary, err error) {
	outcome := Outcome(err)
	r.runs.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCancelled {
		return
	}

	r.nodes.WithLabelValues(wfc.Completed.String()).Add(float64(summary.Completed))
	r.nodes.WithLabelValues(wfc.Contradiction.String()).Add(float64(summary.Contradictions))
	r.nodes.WithLabelValues(wfc.InProgress.String()).Add(float64(summary.InProgress))
	r.connections.Add(float64(summary.Connections))
	r.duration.Observe(summary.Elapsed.Seconds())
	r.lastSeed.Set(float64(summary.Seed))
}

// Outcome classifies a Generate error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, wfc.ErrContradiction):
		return OutcomeContradiction
	case errors.Is(err, wfc.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, wfc.ErrTickBudget):
		return OutcomeTickBudget
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

var _ worldgen.Observer = (*Recorder)(nil)
