package mount

import (
	"sort"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/kdberr"
)

// Table is the mountpoint table (spec.md §4.C): mountpoints ordered by
// canonical prefix order, each bound to a Record.
type Table struct {
	records []*Record
}

// NewTable constructs an empty table.
func NewTable() *Table { return &Table{} }

// Add inserts rec in canonical prefix order. Returns an InstallationError if
// a mountpoint with an identical prefix already exists.
func (t *Table) Add(rec *Record) error {
	i := sort.Search(len(t.records), func(i int) bool {
		return key.Compare(t.records[i].Prefix, rec.Prefix) >= 0
	})
	if i < len(t.records) && key.Equal(t.records[i].Prefix, rec.Prefix) {
		return kdberr.Installationf("mount", "duplicate mountpoint %s", rec.Prefix.Name())
	}
	t.records = append(t.records, nil)
	copy(t.records[i+1:], t.records[i:])
	t.records[i] = rec
	return nil
}

// Remove drops the mountpoint at prefix, if present, returning it.
func (t *Table) Remove(prefix *key.Key) *Record {
	i := sort.Search(len(t.records), func(i int) bool {
		return key.Compare(t.records[i].Prefix, prefix) >= 0
	})
	if i >= len(t.records) || !key.Equal(t.records[i].Prefix, prefix) {
		return nil
	}
	rec := t.records[i]
	t.records = append(t.records[:i], t.records[i+1:]...)
	return rec
}

// All returns every mountpoint record in canonical prefix order. The caller
// must not mutate the returned slice.
func (t *Table) All() []*Record { return t.records }

// Prefixes returns every mountpoint's prefix key, in canonical order — the
// shape keyset.Divide expects.
func (t *Table) Prefixes() []*key.Key {
	out := make([]*key.Key, len(t.records))
	for i, r := range t.records {
		out[i] = r.Prefix
	}
	return out
}

// nonMetaNamespaces lists the namespaces a cascading key expands into
// (spec.md §4.C: "For cascading parent keys, this selects one mountpoint per
// non-meta namespace, mirroring the parent").
var nonMetaNamespaces = []key.Namespace{
	key.NamespaceSpec, key.NamespaceProc, key.NamespaceDir,
	key.NamespaceUser, key.NamespaceSystem, key.NamespaceDefault,
}

// BackendsForParent returns the ordered subset of mountpoints that
// intersect parent: below, equal to, or an ancestor of parent (spec.md
// §4.C). For a cascading parent, resolves parent into each non-meta
// namespace and collects at most one intersecting mountpoint per namespace
// (the longest-prefix ancestor, mirroring keyset.Divide's rule), since a
// cascading lookup must pick a single authoritative mountpoint per
// namespace rather than every overlapping one.
func (t *Table) BackendsForParent(parent *key.Key) []*Record {
	if parent.Namespace().IsCascading() {
		var out []*Record
		for _, ns := range nonMetaNamespaces {
			nsParent := rebaseNamespace(parent, ns)
			if rec := t.bestAncestorOrDescendant(nsParent); rec != nil {
				out = append(out, rec)
			}
		}
		return out
	}
	return t.intersecting(parent)
}

func rebaseNamespace(k *key.Key, ns key.Namespace) *key.Key {
	name := ns.String() + ":/"
	for i, p := range k.Parts() {
		if i > 0 {
			name += "/"
		}
		name += p
	}
	nk, _ := key.New(name)
	return nk
}

// intersecting returns every mountpoint below, equal to, or an ancestor of
// parent, in table order.
func (t *Table) intersecting(parent *key.Key) []*Record {
	var out []*Record
	for _, r := range t.records {
		if r.Prefix.Namespace() != parent.Namespace() {
			continue
		}
		if key.BelowOrSame(r.Prefix, parent) || key.BelowOrSame(parent, r.Prefix) {
			out = append(out, r)
		}
	}
	return out
}

// bestAncestorOrDescendant picks the single mountpoint a non-cascading
// lookup in one namespace should use: the longest ancestor-or-equal prefix
// of parent if one exists, else the shallowest descendant mountpoint (a
// mountpoint nested under an otherwise-unmounted parent), else nil.
func (t *Table) bestAncestorOrDescendant(parent *key.Key) *Record {
	var best *Record
	for _, r := range t.records {
		if r.Prefix.Namespace() != parent.Namespace() {
			continue
		}
		if key.BelowOrSame(r.Prefix, parent) {
			if best == nil || len(r.Prefix.Parts()) > len(best.Prefix.Parts()) {
				best = r
			}
		}
	}
	if best != nil {
		return best
	}
	for _, r := range t.records {
		if r.Prefix.Namespace() == parent.Namespace() && key.BelowOrSame(parent, r.Prefix) {
			return r
		}
	}
	return nil
}
