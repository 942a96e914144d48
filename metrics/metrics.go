// Package metrics wraps a prometheus.Registry with the counters and
// histograms the session engine records around every backend phase
// invocation (SPEC_FULL.md §4.K). A nil *Registry is a valid no-op, so
// instrumentation is opt-in.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the phase/plugin/conflict instruments for one handle's
// lifetime.
type Registry struct {
	reg *prometheus.Registry

	PhaseDuration   *prometheus.HistogramVec
	PluginErrors    *prometheus.CounterVec
	ConflictsTotal  prometheus.Counter
}

// New constructs a Registry with every instrument registered against a
// fresh prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	phaseDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kdb",
		Name:      "phase_duration_seconds",
		Help:      "Duration of one backend phase invocation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase", "mountpoint"})

	pluginErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kdb",
		Name:      "plugin_errors_total",
		Help:      "Count of plugin entry points returning error.",
	}, []string{"plugin", "phase"})

	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kdb",
		Name:      "conflicts_total",
		Help:      "Count of ConflictingState errors raised by resolver plugins.",
	})

	reg.MustRegister(phaseDuration, pluginErrors, conflicts)

	return &Registry{
		reg:            reg,
		PhaseDuration:  phaseDuration,
		PluginErrors:   pluginErrors,
		ConflictsTotal: conflicts,
	}
}

// Prometheus returns the underlying prometheus.Registry, e.g. to wire into
// an HTTP handler via promhttp.HandlerFor.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObservePhase records one phase invocation's duration. A nil Registry is a
// no-op, so callers need not branch on whether metrics are enabled.
func (r *Registry) ObservePhase(phase, mountpoint string, seconds float64) {
	if r == nil {
		return
	}
	r.PhaseDuration.WithLabelValues(phase, mountpoint).Observe(seconds)
}

// RecordPluginError increments the plugin error counter for one plugin/phase
// pair. A nil Registry is a no-op.
func (r *Registry) RecordPluginError(plugin, phase string) {
	if r == nil {
		return
	}
	r.PluginErrors.WithLabelValues(plugin, phase).Inc()
}

// RecordConflict increments the conflict counter. A nil Registry is a no-op.
func (r *Registry) RecordConflict() {
	if r == nil {
		return
	}
	r.ConflictsTotal.Inc()
}
