// Package keyset implements KeySet: an ordered container of *key.Key that
// behaves as a set keyed by canonical key identity (spec.md §3, §4.A).
package keyset

import (
	"sort"

	"github.com/elektrago/kdb/key"
)

// KeySet is an ordered sequence of keys sorted by key.Compare, with set
// semantics on key.Equal identity. The zero value is not usable; construct
// with New.
type KeySet struct {
	keys []*key.Key
	sync bool // per-set sync flag, spec.md §3
}

// New creates a KeySet with the given initial capacity hint, appending any
// keys passed as varargs (later duplicates among the varargs replace
// earlier ones, same as repeated Append calls).
func New(capHint int, keys ...*key.Key) *KeySet {
	ks := &KeySet{keys: make([]*key.Key, 0, capHint)}
	for _, k := range keys {
		ks.Append(k)
	}
	return ks
}

// Len returns the number of keys in the set.
func (ks *KeySet) Len() int { return len(ks.keys) }

// Sync reports the per-set sync flag.
func (ks *KeySet) Sync() bool { return ks.sync }

// ClearSync clears the per-set sync flag and every contained key's
// needs-sync flag, per spec.md §4.E.3 ("clear each key's sync flag on
// success").
func (ks *KeySet) ClearSync() {
	ks.sync = false
	for _, k := range ks.keys {
		k.ClearSync()
	}
}

// search returns the index of the first key >= target in canonical order,
// i.e. the standard binary-search insertion point.
func (ks *KeySet) search(target *key.Key) int {
	return sort.Search(len(ks.keys), func(i int) bool {
		return key.Compare(ks.keys[i], target) >= 0
	})
}

// Append inserts k in canonical order, taking ownership (the set holds a
// reference; the caller should not also retain an independent mutable
// handle once appended, per spec.md §3/§9's "pass it to the set" idiom). If
// an identity-equal key is already present, its value and metadata are
// overwritten in place and the new key is discarded (its reference is
// released) rather than duplicating the slot, per spec.md §3.
//
// Returns key.ErrInvalidName if k's name is the cascading namespace, which a
// stored set must never contain.
func (ks *KeySet) Append(k *key.Key) error {
	if k.Namespace().IsCascading() {
		return key.ErrInvalidName
	}
	i := ks.search(k)
	if i < len(ks.keys) && key.Equal(ks.keys[i], k) {
		ks.keys[i].OverwriteFrom(k)
		k.Unref()
		ks.sync = true
		return nil
	}
	k.Lock(key.FlagNameLocked)
	ks.keys = append(ks.keys, nil)
	copy(ks.keys[i+1:], ks.keys[i:])
	ks.keys[i] = k
	ks.sync = true
	return nil
}

// AppendSet appends every key of other into ks (in canonical order,
// replacing identity-equal keys as Append would).
func (ks *KeySet) AppendSet(other *KeySet) {
	for _, k := range other.keys {
		ks.Append(k.Ref())
	}
}

// Lookup finds a key by identity-equal key. Flags control pop semantics.
type LookupFlags uint8

const (
	LookupNone LookupFlags = 0
	LookupPop  LookupFlags = 1 << iota
)

// Lookup returns the stored key whose identity matches target, or nil. With
// LookupPop, the key is removed from the set (and its reference released
// from the set's ownership — the caller now owns the returned reference)
// before being returned.
func (ks *KeySet) Lookup(target *key.Key, flags LookupFlags) *key.Key {
	i := ks.search(target)
	if i >= len(ks.keys) || !key.Equal(ks.keys[i], target) {
		return nil
	}
	found := ks.keys[i]
	if flags&LookupPop != 0 {
		ks.keys = append(ks.keys[:i], ks.keys[i+1:]...)
		ks.sync = true
		found.Unlock(key.FlagNameLocked)
	}
	return found
}

// LookupByName is a convenience wrapper that parses name and calls Lookup.
func (ks *KeySet) LookupByName(name string, flags LookupFlags) (*key.Key, error) {
	target, err := key.New(name)
	if err != nil {
		return nil, err
	}
	return ks.Lookup(target, flags), nil
}

// At returns the key at cursor position i (0-based, canonical order), or
// nil if out of range.
func (ks *KeySet) At(i int) *key.Key {
	if i < 0 || i >= len(ks.keys) {
		return nil
	}
	return ks.keys[i]
}

// Each calls fn for every key in canonical order.
func (ks *KeySet) Each(fn func(*key.Key)) {
	for _, k := range ks.keys {
		fn(k)
	}
}

// Slice returns the underlying keys in canonical order. The caller must not
// mutate the returned slice's backing array.
func (ks *KeySet) Slice() []*key.Key { return ks.keys }

// Dup returns a shallow duplicate: a new KeySet referencing the same *Key
// pointers (each ref-counted up).
func (ks *KeySet) Dup() *KeySet {
	d := &KeySet{keys: make([]*key.Key, len(ks.keys))}
	for i, k := range ks.keys {
		d.keys[i] = k.Ref()
		// a key can be locked into more than one set simultaneously; the
		// name lock already reflects "stored somewhere", nothing to add.
	}
	return d
}

// DeepDup returns a full duplicate: every key is independently cloned
// (DupAll), so mutating the clone never affects ks. Used by the session
// engine before handing a working set to plugins for in-place mutation
// during set (spec.md §4.E.3 step 1).
func (ks *KeySet) DeepDup() *KeySet {
	d := &KeySet{keys: make([]*key.Key, len(ks.keys))}
	for i, k := range ks.keys {
		c := k.Dup(key.DupAll)
		c.Lock(key.FlagNameLocked)
		d.keys[i] = c
	}
	return d
}

// Release drops the set's references to every contained key.
func (ks *KeySet) Release() {
	for _, k := range ks.keys {
		k.Unref()
	}
	ks.keys = nil
}

// Pop removes and returns the first key (canonical order), or an error if
// the set is empty.
func (ks *KeySet) Pop() (*key.Key, error) {
	if len(ks.keys) == 0 {
		return nil, key.ErrOutOfRange
	}
	k := ks.keys[0]
	ks.keys = ks.keys[1:]
	k.Unlock(key.FlagNameLocked)
	ks.sync = true
	return k, nil
}
