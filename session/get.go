package session

import (
	"context"

	"github.com/elektrago/kdb/backend"
	"github.com/elektrago/kdb/cache"
	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/mount"
	"github.com/elektrago/kdb/plugin"
)

// Get implements spec.md §4.E.2. Returns 1 on success with new data, 0 on
// no-update, -1 on failure. Errors populate meta:/error/* on parent;
// warnings populate meta:/warnings/#N/*.
func (h *Handle) Get(ks *keyset.KeySet, parent *key.Key) int {
	if h.closed {
		kdberr.SetOn(parent, kdberr.Interfacef("session", "get called on a closed handle"))
		return -1
	}
	if err := checkPreconditions(parent); err != nil {
		kdberr.SetOn(parent, err)
		return -1
	}
	kdberr.ClearOn(parent)

	records := h.Table.BackendsForParent(parent)
	if len(records) == 0 {
		h.setState(parent, StateGotten)
		return 0
	}

	// Step 1: init once per backend per handle.
	for _, rec := range records {
		if err := backend.Init(rec, parent); err != nil {
			kdberr.SetOn(parent, toKdbErr(err))
			return -1
		}
	}

	ctx := context.Background()

	// Step 2: resolver.
	results, err := h.runPhaseResolve(ctx, backend.GetInvoke, records, parent)
	if err != nil {
		kdberr.SetOn(parent, toKdbErr(err))
		return -1
	}

	// Step 3: short-circuit backends the resolver marked up to date.
	var remaining []*mount.Record
	for i, rec := range records {
		rec.Filename = resolvedFilename(rec, rec.Prefix.Name())
		if results[i] == plugin.NoUpdate {
			rec.NeedsUpdate = false
			continue
		}
		rec.NeedsUpdate = true
		remaining = append(remaining, rec)
	}
	if len(remaining) == 0 {
		h.setState(parent, StateGotten)
		return 0
	}

	// Step 4: consult the post-get cache. resolved keeps remaining's
	// canonical order intact — cacheMiss is the subset needing the storage
	// phases below, but "touched" at the end must stay in table order for
	// keyset.Divide, so it is built from resolved, not from the split-apart
	// cacheMiss/cacheHit subsets.
	resolved := remaining
	cacheMiss := make(map[*mount.Record]bool, len(resolved))
	for _, rec := range resolved {
		witness, ok := resolvedWitness(rec)
		if !ok {
			cacheMiss[rec] = true
			continue
		}
		wire, cachedWitness, hit := h.Cache.Lookup(rec.Name, parent.Name())
		if !hit || !cachedWitness.Equal(witness) {
			cacheMiss[rec] = true
			continue
		}
		cachedKs, err := cache.FromWireSet(wire)
		if err != nil {
			cacheMiss[rec] = true
			continue
		}
		rec.Keys.Release()
		rec.Keys = cachedKs
	}

	var needStorage []*mount.Record
	for _, rec := range resolved {
		if cacheMiss[rec] {
			needStorage = append(needStorage, rec)
		}
	}

	// Step 5: pre-storage, storage, post-storage on the backends that missed
	// cache. Pre-storage's output is discarded before storage runs.
	if len(needStorage) > 0 {
		if err := h.runPhase(ctx, plugin.PhasePreStorage, backend.GetInvoke, needStorage, parent); err != nil {
			kdberr.SetOn(parent, toKdbErr(err))
			return -1
		}
		backend.ClearKeys(needStorage)
		if err := h.runPhase(ctx, plugin.PhaseStorage, backend.GetInvoke, needStorage, parent); err != nil {
			kdberr.SetOn(parent, toKdbErr(err))
			return -1
		}
		if err := h.runPhase(ctx, plugin.PhasePostStorage, backend.GetInvoke, needStorage, parent); err != nil {
			kdberr.SetOn(parent, toKdbErr(err))
			return -1
		}

		// Step 6: spec post-storage rerun for spec:/-rooted backends.
		var specRecords []*mount.Record
		for _, rec := range needStorage {
			if rec.Prefix.Namespace() == key.NamespaceSpec {
				specRecords = append(specRecords, rec)
			}
		}
		if len(specRecords) > 0 {
			if err := h.runPhase(ctx, plugin.PhasePostStorage, backend.GetInvoke, specRecords, parent); err != nil {
				kdberr.SetOn(parent, toKdbErr(err))
				return -1
			}
		}

		for _, rec := range needStorage {
			if witness, ok := resolvedWitness(rec); ok {
				_ = h.Cache.Store(rec.Name, parent.Name(), cache.ToWireSet(rec.Keys), witness)
			}
		}
	}

	touched := resolved

	// Step 7: merge every touched backend's slice into one working set.
	dataKs := keyset.New(0)
	for _, rec := range touched {
		dataKs.AppendSet(rec.Keys)
	}

	// Step 8: global procgetstorage, then postgetstorage, on the merged set.
	for _, pos := range []plugin.Position{plugin.PositionProcGetStorage, plugin.PositionPostGetStorage} {
		for _, inst := range h.Globals[pos] {
			if res := inst.Get(h.Global, dataKs, parent); res == plugin.Error {
				dataKs.Release()
				e := kdberr.Misbehavior("session", "global plugin at "+string(pos)+" returned error")
				kdberr.SetOn(parent, e)
				return -1
			}
		}
	}

	// Step 9: divide back per backend for a final, spec-resolved post-storage
	// pass.
	prefixes := make([]*key.Key, len(touched))
	for i, rec := range touched {
		prefixes[i] = rec.Prefix
	}
	buckets, unmatched := keyset.Divide(prefixes, dataKs)
	unmatched.Release()
	for i, rec := range touched {
		rec.Keys.Release()
		rec.Keys = buckets[i]
	}
	if len(touched) > 0 {
		if err := h.runPhase(ctx, plugin.PhasePostStorage, backend.GetInvoke, touched, parent); err != nil {
			kdberr.SetOn(parent, toKdbErr(err))
			return -1
		}
	}

	// Step 10: publish — cut each touched backend's old slice out of the
	// caller's set (so deletions propagate) and append its fresh slice.
	for _, rec := range touched {
		ks.Cut(rec.Prefix).Release()
		ks.AppendSet(rec.Keys)
	}

	h.setState(parent, StateGotten)
	return 1
}
