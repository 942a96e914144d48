package cache

// WireKey is the on-the-wire representation of one key.Key, reduced to the
// fields worth caching (name, value, binary flag, metadata) — the cache
// never stores lock/refcount/owner bookkeeping, since a cache hit always
// reconstructs fresh, detached keys.
type WireKey struct {
	Name   string
	Value  []byte
	Binary bool
	Meta   map[string]string
}

// WireSet is the on-the-wire representation of a cached backend slice:
// exactly the payload (*keyset.KeySet).Slice() carries, flattened for
// msgp encoding.
type WireSet struct {
	Keys []WireKey
}
