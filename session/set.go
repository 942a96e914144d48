package session

import (
	"context"

	"github.com/elektrago/kdb/backend"
	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/mount"
	"github.com/elektrago/kdb/plugin"
)

// Set implements spec.md §4.E.3. Returns 1 on success, 0 if nothing needed
// persisting, -1 on failure (rollback has already completed by the time
// Set returns).
func (h *Handle) Set(ks *keyset.KeySet, parent *key.Key) int {
	if h.closed {
		kdberr.SetOn(parent, kdberr.Interfacef("session", "set called on a closed handle"))
		return -1
	}
	if err := checkPreconditions(parent); err != nil {
		kdberr.SetOn(parent, err)
		return -1
	}
	kdberr.ClearOn(parent)

	if h.stateFor(parent) != StateGotten {
		e := kdberr.Interfacef("session", "set called on %s without a prior successful get", parent.Name())
		kdberr.SetOn(parent, e)
		return -1
	}

	if !ks.Sync() && !anyKeyNeedsSync(ks) {
		return 0
	}

	// Step 1: deep-duplicate so plugin mutation never touches the caller's
	// live set, then divide among backends.
	dup := ks.DeepDup()
	records := h.Table.BackendsForParent(parent)
	if len(records) == 0 {
		dup.Release()
		return 0
	}
	prefixes := make([]*key.Key, len(records))
	for i, rec := range records {
		prefixes[i] = rec.Prefix
	}
	buckets, unmatched := keyset.Divide(prefixes, dup)
	unmatched.Release()

	// Step 2: reject backends that were never get-initialized.
	for _, rec := range records {
		if !rec.Initialized {
			for _, b := range buckets {
				b.Release()
			}
			e := kdberr.Interfacef("session", "mountpoint %s: set called before a successful get", rec.Name)
			kdberr.SetOn(parent, e)
			return -1
		}
	}

	// Step 3: drop read-only backends from the commit set; their slices stay
	// untouched in the caller's view.
	var commit []*mount.Record
	for i, rec := range records {
		if rec.ReadOnly {
			buckets[i].Release()
			continue
		}
		rec.Keys.Release()
		rec.Keys = buckets[i]
		commit = append(commit, rec)
	}
	if len(commit) == 0 {
		return 0
	}

	ctx := context.Background()

	// Step 4: global presetstorage (spec metadata injection) — merge,
	// apply, redivide, mirroring get's procgetstorage/postgetstorage pattern.
	if globals := h.Globals[plugin.PositionPreSetStorage]; len(globals) > 0 {
		dataKs := keyset.New(0)
		for _, rec := range commit {
			dataKs.AppendSet(rec.Keys)
		}
		for _, inst := range globals {
			if res := inst.Set(h.Global, dataKs, parent); res == plugin.Error {
				dataKs.Release()
				h.rollback(ctx, commit, parent)
				e := kdberr.Misbehavior("session", "global presetstorage plugin returned error")
				kdberr.SetOn(parent, e)
				return -1
			}
		}
		commitPrefixes := make([]*key.Key, len(commit))
		for i, rec := range commit {
			commitPrefixes[i] = rec.Prefix
		}
		rebuckets, unmatched2 := keyset.Divide(commitPrefixes, dataKs)
		unmatched2.Release()
		for i, rec := range commit {
			rec.Keys.Release()
			rec.Keys = rebuckets[i]
		}
	}

	// Step 5: resolver — decides whether persistence is needed and what
	// identifier to use, possibly a temporary one (e.g. a lock file).
	if _, err := h.runPhaseResolve(ctx, backend.SetInvoke, commit, parent); err != nil {
		if mp, flagged := resolverConflict(commit); flagged {
			err = kdberr.Conflict("session", mp)
		}
		h.handleSetFailure(ctx, commit, parent, err)
		return -1
	}
	for _, rec := range commit {
		rec.Filename = resolvedFilename(rec, rec.Prefix.Name())
	}

	// Step 6: pre-storage, storage, post-storage, in order.
	for _, phase := range []plugin.Phase{plugin.PhasePreStorage, plugin.PhaseStorage, plugin.PhasePostStorage} {
		if err := h.runPhase(ctx, phase, backend.SetInvoke, commit, parent); err != nil {
			h.handleSetFailure(ctx, commit, parent, err)
			return -1
		}
	}

	// Step 7: pre-commit, commit, post-commit.
	if err := h.runPhase(ctx, plugin.PhasePreCommit, backend.CommitInvoke, commit, parent); err != nil {
		h.handleSetFailure(ctx, commit, parent, err)
		return -1
	}
	if err := h.runPhase(ctx, plugin.PhaseCommit, backend.CommitInvoke, commit, parent); err != nil {
		h.handleSetFailure(ctx, commit, parent, err)
		return -1
	}
	if err := h.runPhase(ctx, plugin.PhasePostCommit, backend.CommitInvoke, commit, parent); err != nil {
		// Post-commit errors are demoted to warnings: the transaction is
		// already durable (spec.md §4.E.3 step 7).
		kdberr.Warn(parent, toKdbErr(err))
	}

	ks.ClearSync()
	dup.Release()
	h.setState(parent, StateGotten)
	return 1
}

func anyKeyNeedsSync(ks *keyset.KeySet) bool {
	found := false
	ks.Each(func(k *key.Key) {
		if k.NeedsSync() {
			found = true
		}
	})
	return found
}

// handleSetFailure runs the rollback path (step 8) and records the
// triggering diagnostic on parent. A resolver-raised ConflictingState
// (spec.md §5, §8 S4) transitions the (handle, parent) pair to mustReget
// rather than leaving it at gotten, per spec.md §4.E.4's state machine.
func (h *Handle) handleSetFailure(ctx context.Context, commit []*mount.Record, parent *key.Key, cause error) {
	h.rollback(ctx, commit, parent)
	e := toKdbErr(cause)
	kdberr.SetOn(parent, e)
	if e.Kind == kdberr.KindConflicting {
		h.setState(parent, StateMustReget)
	}
}

// rollback runs pre-rollback, rollback, post-rollback on every backend in
// the commit set, demoting every individual plugin error to a warning so
// cleanup always runs to completion (spec.md §4.E.3 step 8).
func (h *Handle) rollback(ctx context.Context, commit []*mount.Record, parent *key.Key) {
	for _, phase := range []plugin.Phase{plugin.PhasePreRollback, plugin.PhaseRollback, plugin.PhasePostRollback} {
		if err := h.runPhase(ctx, phase, backend.ErrorInvoke, commit, parent); err != nil {
			kdberr.Warn(parent, toKdbErr(err))
		}
	}
}
