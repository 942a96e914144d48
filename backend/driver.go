package backend

import (
	"context"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/mount"
	"github.com/elektrago/kdb/plugin"
	"golang.org/x/sync/errgroup"
)

// Driver runs phases of the get/set protocol against a set of mountpoint
// records, sharing the handle's global key set to publish the current phase
// (spec.md §4.D: "system:/elektra/kdb/backend/phase").
type Driver struct {
	Global *keyset.KeySet
}

// New constructs a Driver bound to a handle's global key set.
func New(global *keyset.KeySet) *Driver { return &Driver{Global: global} }

func (d *Driver) setPhase(phase plugin.Phase) {
	d.Global.Append(key.MustNew(plugin.PhaseMetaName, key.WithValue(string(phase))))
}

// runPipeline calls invoke on every plugin in rec's pipeline, in order,
// against rec's own private key slice. The first plugin.Error return stops
// the pipeline and is reported as a PluginMisbehavior (spec.md §7: "plugin
// returned out-of-contract result" covers both truly malformed returns and,
// here, the ordinary failure-to-persist case a plugin signals with error).
func (d *Driver) runPipeline(rec *mount.Record, phase plugin.Phase, invoke Invoke, parent *key.Key) error {
	for _, inst := range rec.Pipeline {
		if res := invoke(inst, d.Global, rec.Keys, parent); res == plugin.Error {
			return kdberr.Misbehavior("backend", "mountpoint "+rec.Name+": phase "+string(phase)+": plugin returned error")
		}
	}
	return nil
}

// RunPhase sets the global phase key, then runs invoke across every record's
// pipeline concurrently (SPEC_FULL.md §5: within one phase, per-backend
// plugin invocations run concurrently via errgroup, with a barrier at phase
// end — no backend enters the next phase before every backend finishes this
// one). Errors are collected per record and the first one in mountpoint
// order (the order records were passed in, always canonical prefix order)
// is returned, matching spec.md §5's determinism requirement.
func (d *Driver) RunPhase(ctx context.Context, phase plugin.Phase, invoke Invoke, records []*mount.Record, parent *key.Key) error {
	if len(records) == 0 {
		return nil
	}
	d.setPhase(phase)

	errs := make([]error, len(records))
	g, _ := errgroup.WithContext(ctx)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			errs[i] = d.runPipeline(rec, phase, invoke, parent)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runPipelineResolve is runPipeline's resolver-phase sibling: it reports the
// pipeline's aggregate Result alongside any error, since the resolver phase
// is the one place the core needs to know no-update/cache-hit, not just
// success-or-fail (spec.md §4.E.2 step 2).
func (d *Driver) runPipelineResolve(rec *mount.Record, invoke Invoke, parent *key.Key) (plugin.Result, error) {
	agg := plugin.Success
	for _, inst := range rec.Pipeline {
		switch res := invoke(inst, d.Global, rec.Keys, parent); res {
		case plugin.Error:
			return plugin.Error, kdberr.Misbehavior("backend", "mountpoint "+rec.Name+": phase resolver: plugin returned error")
		case plugin.NoUpdate:
			agg = plugin.NoUpdate
		case plugin.CacheHit:
			agg = plugin.CacheHit
		}
	}
	return agg, nil
}

// RunPhaseResolve runs the resolver phase and additionally reports each
// record's aggregate Result (spec.md §4.E.2 step 2: no-update must short-
// circuit a backend for the rest of get, which plain RunPhase's bare error
// return can't express). Results are reported even when later records in the
// same call error out; the first error in record order is still returned.
func (d *Driver) RunPhaseResolve(ctx context.Context, invoke Invoke, records []*mount.Record, parent *key.Key) ([]plugin.Result, error) {
	if len(records) == 0 {
		return nil, nil
	}
	d.setPhase(plugin.PhaseResolver)

	results := make([]plugin.Result, len(records))
	errs := make([]error, len(records))
	g, _ := errgroup.WithContext(ctx)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			results[i], errs[i] = d.runPipelineResolve(rec, invoke, parent)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Init runs every plugin's Init entry point against rec's definition once
// per backend per handle (spec.md §4.D, §4.E.2 step 1). A no-update result
// from any plugin marks the backend read-only for the remainder of the
// handle's lifetime; an error result fails initialization.
func Init(rec *mount.Record, parent *key.Key) error {
	if rec.Initialized {
		return nil
	}
	readOnly := rec.ReadOnly
	for _, inst := range rec.Pipeline {
		switch inst.Init(rec.Definition, parent) {
		case plugin.Error:
			return kdberr.Installationf("backend", "mountpoint %s: init failed", rec.Name)
		case plugin.NoUpdate:
			readOnly = true
		}
	}
	rec.Initialized = true
	rec.ReadOnly = readOnly
	return nil
}

// ClearKeys discards whatever a backend's pre-storage phase produced (spec.md
// §4.E.2 step 5: "any keys produced during pre-storage are discarded — that
// phase is advisory").
func ClearKeys(records []*mount.Record) {
	for _, rec := range records {
		rec.ClearKeys()
	}
}
