package keyset

import (
	"sort"

	"github.com/elektrago/kdb/key"
)

// FindHierarchy returns the half-open index range [lo, hi) of keys in ks
// that are equal to prefix or below it, per spec.md §4.A. The lower bound is
// found by binary search, since ks is already canonically sorted; the upper
// bound by a forward scan from there, since every key below-or-same as prefix
// forms one contiguous run starting at prefix's own insertion point (sort
// order walks a namespace's keys in depth-first, lexicographic order).
func (ks *KeySet) FindHierarchy(prefix *key.Key) (lo, hi int) {
	lo = sort.Search(len(ks.keys), func(i int) bool {
		return key.Compare(ks.keys[i], prefix) >= 0
	})
	hi = lo
	for hi < len(ks.keys) && key.BelowOrSame(prefix, ks.keys[hi]) {
		hi++
	}
	return lo, hi
}

// Cut removes and returns the maximal contiguous run of keys that are equal
// to prefix or below it (spec.md §3, §4.A), splicing the run out of ks
// in-place. Both the returned set and the remainder stay canonically
// ordered (invariant 3, spec.md §8).
func (ks *KeySet) Cut(prefix *key.Key) *KeySet {
	lo, hi := ks.FindHierarchy(prefix)
	if lo == hi {
		return New(0)
	}
	cutKeys := make([]*key.Key, hi-lo)
	copy(cutKeys, ks.keys[lo:hi])
	ks.keys = append(ks.keys[:lo], ks.keys[hi:]...)
	for _, k := range cutKeys {
		k.Unlock(key.FlagNameLocked)
	}
	ks.sync = true
	return &KeySet{keys: cutKeys}
}

// Below returns a new KeySet (originals untouched, each key ref-counted up)
// containing every key equal to prefix or below it, leaving ks unmodified.
func (ks *KeySet) Below(prefix *key.Key) *KeySet {
	lo, hi := ks.FindHierarchy(prefix)
	out := make([]*key.Key, hi-lo)
	for i := lo; i < hi; i++ {
		out[i-lo] = ks.keys[i].Ref()
	}
	return &KeySet{keys: out}
}

// Rename rewrites every key under oldPrefix so it instead sits under
// newPrefix (same relative suffix), re-sorting the set afterward. Keys
// outside oldPrefix's hierarchy are untouched.
func (ks *KeySet) Rename(oldPrefix, newPrefix *key.Key) error {
	lo, hi := ks.FindHierarchy(oldPrefix)
	oldParts := oldPrefix.Parts()
	for i := lo; i < hi; i++ {
		suffix := append([]string(nil), ks.keys[i].Parts()[len(oldParts):]...)
		if err := rebaseName(ks.keys[i], newPrefix, suffix); err != nil {
			return err
		}
	}
	sort.SliceStable(ks.keys, func(i, j int) bool {
		return key.Compare(ks.keys[i], ks.keys[j]) < 0
	})
	ks.sync = true
	return nil
}

func rebaseName(k *key.Key, newPrefix *key.Key, suffix []string) error {
	// SetName requires the key to not be locked; Rename operates on keys
	// already locked into this set, so unlock/relock around the rewrite.
	k.Unlock(key.FlagNameLocked)
	defer k.Lock(key.FlagNameLocked)
	full := newPrefix.Name()
	for _, p := range suffix {
		full += "/" + p
	}
	return k.SetName(full)
}
