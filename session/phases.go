package session

import (
	"context"
	"time"

	"github.com/elektrago/kdb/backend"
	"github.com/elektrago/kdb/cache"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/mount"
	"github.com/elektrago/kdb/plugin"
)

// phaseMountpointLabel reports the metrics label for a phase spanning
// multiple backends at once — SPEC_FULL.md §4.K's phase_duration_seconds
// carries a mountpoint label, which is only meaningful for a single-backend
// call; a fan-out across several records is labeled "*" rather than picking
// one arbitrarily.
func phaseMountpointLabel(records []*mount.Record) string {
	if len(records) == 1 {
		return records[0].Name
	}
	return "*"
}

// runPhase wraps backend.Driver.RunPhase with SPEC_FULL.md §4.K's metrics
// instrumentation: every phase invocation is timed and, on failure, counted
// against the failing mountpoint label.
func (h *Handle) runPhase(ctx context.Context, phase plugin.Phase, invoke backend.Invoke, records []*mount.Record, parent *key.Key) error {
	start := time.Now()
	err := h.Driver.RunPhase(ctx, phase, invoke, records, parent)
	mp := phaseMountpointLabel(records)
	h.Metrics.ObservePhase(string(phase), mp, time.Since(start).Seconds())
	if err != nil {
		h.Metrics.RecordPluginError(mp, string(phase))
	}
	return err
}

// runPhaseResolve is runPhase's resolver-phase sibling, instrumented the
// same way.
func (h *Handle) runPhaseResolve(ctx context.Context, invoke backend.Invoke, records []*mount.Record, parent *key.Key) ([]plugin.Result, error) {
	start := time.Now()
	results, err := h.Driver.RunPhaseResolve(ctx, invoke, records, parent)
	mp := phaseMountpointLabel(records)
	h.Metrics.ObservePhase(string(plugin.PhaseResolver), mp, time.Since(start).Seconds())
	if err != nil {
		h.Metrics.RecordPluginError(mp, string(plugin.PhaseResolver))
	}
	return results, err
}

// resolvedFilename asks rec's backend plugin for the identifier its resolver
// phase produced (spec.md §4.E.2 step 2, §4.E.3 step 5), via the same
// reflective GetFunction accessor spec.md §6 defines for mountplugin's use.
// Plugins that don't implement "filename" leave rec bound to its own prefix
// name, a reasonable default for a resolver that never relocates a backend.
func resolvedFilename(rec *mount.Record, fallback string) string {
	if rec.Backend == nil {
		return fallback
	}
	if v, ok := rec.Backend.GetFunction("filename"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// resolvedWitness asks rec's backend plugin for the cache validity witness
// its resolver phase observed (SPEC_FULL.md §4.I). A plugin that doesn't
// implement "witness" makes that backend cache-ineligible rather than
// risking a stale hit against an unknown identifier shape.
func resolvedWitness(rec *mount.Record) (cache.Witness, bool) {
	if rec.Backend == nil {
		return cache.Witness{}, false
	}
	v, ok := rec.Backend.GetFunction("witness")
	if !ok {
		return cache.Witness{}, false
	}
	w, ok := v.(cache.Witness)
	return w, ok
}

// resolverConflict scans records for a backend whose resolver flagged a
// concurrent writer via the same reflective GetFunction channel filename and
// witness use (spec.md §5, §8 S4): the resolver has no other way to tell the
// core that a plain plugin.Error should be reported as ConflictingState
// rather than the generic PluginMisbehavior a resolver failure otherwise
// produces. Returns the first flagging mountpoint's name.
func resolverConflict(records []*mount.Record) (mountpoint string, ok bool) {
	for _, rec := range records {
		if rec.Backend == nil {
			continue
		}
		v, has := rec.Backend.GetFunction("conflict")
		if !has {
			continue
		}
		if b, isBool := v.(bool); isBool && b {
			return rec.Name, true
		}
	}
	return "", false
}
