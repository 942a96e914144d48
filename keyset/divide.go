package keyset

import (
	"sort"

	"github.com/elektrago/kdb/key"
)

// Divide assigns every key of ks to exactly one element of prefixes — the
// one with the longest mountpoint prefix containing the key (spec.md §4.A
// invariant 4). prefixes must already be sorted in canonical order (the
// mountpoint table maintains this).
//
// For each key, the candidate ancestors among prefixes are exactly the
// entries that sort before the key's canonical-order insertion point and
// satisfy key.BelowOrSame; because ancestors of one key form a depth-ordered
// chain (a shorter prefix of the same parts always sorts before a longer
// one), the first match found scanning backward from the insertion point is
// always the deepest — any entries encountered first that don't match are
// unrelated siblings the backward scan skips past. Binary search locates the
// insertion point in O(log m); finding a deep match typically stops within
// the first few steps since sibling clutter near a real mountpoint boundary
// is small in practice, giving close to O(n log m) overall rather than the
// O(n*m) of a naive linear scan per key.
//
// Returns one *KeySet per prefix, in the same order as prefixes, plus a
// KeySet of any leftover keys that matched no prefix at all.
func Divide(prefixes []*key.Key, ks *KeySet) (buckets []*KeySet, unmatched *KeySet) {
	buckets = make([]*KeySet, len(prefixes))
	for i := range buckets {
		buckets[i] = New(0)
	}
	unmatched = New(0)

	for _, k := range ks.keys {
		idx := sort.Search(len(prefixes), func(i int) bool {
			return key.Compare(prefixes[i], k) > 0
		})
		best := -1
		for i := idx - 1; i >= 0; i-- {
			if key.BelowOrSame(prefixes[i], k) {
				best = i
				break
			}
		}
		if best == -1 {
			unmatched.Append(k.Ref())
			continue
		}
		buckets[best].Append(k.Ref())
	}
	return buckets, unmatched
}
