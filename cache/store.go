// Package cache implements the pluggable PostGetCache spec.md §9 leaves as
// an open question: a (slice, validityWitness) pair keyed by mountpoint and
// parent, consulted by get's step 4 (spec.md §4.E.2) before any storage
// plugin runs.
package cache

// Store is the PostGetCache contract. The session engine calls both methods
// without checking for nil; a handle with caching disabled uses Noop.
type Store interface {
	// Lookup returns the cached slice and witness for (mountpoint, parent),
	// and whether an entry was found at all. The caller is responsible for
	// comparing the returned witness against the resolver's freshly observed
	// one; Lookup itself never does that comparison.
	Lookup(mountpoint, parent string) (slice WireSet, witness Witness, ok bool)

	// Store records slice under (mountpoint, parent) with witness as its
	// validity token, overwriting any previous entry.
	Store(mountpoint, parent string, slice WireSet, witness Witness) error
}

// Noop is a Store that never has anything cached; get's cache-consult step
// always falls through to the storage phases. This is the default handle
// configuration (spec.md §4.E.2 step 4: "Cache (optional)").
type Noop struct{}

func (Noop) Lookup(string, string) (WireSet, Witness, bool) { return WireSet{}, Witness{}, false }
func (Noop) Store(string, string, WireSet, Witness) error   { return nil }
