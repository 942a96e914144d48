// Package mount implements the mountpoint table and Backend record of
// spec.md §4.C: a namespace-rooted prefix mapped to a pipeline of plugins
// plus its private key slice and per-run state.
package mount

import (
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
)

// Record is one mountpoint's Backend record (spec.md §3 "Backend record").
type Record struct {
	// Name is the mountpoint's configured name (the escaped key name under
	// system:/elektra/mountpoints/<Name>), distinct from Prefix which is
	// the parsed prefix key those mountpoints bind.
	Name   string
	Prefix *key.Key

	// Backend is the plugin designated by /backend (the storage plugin
	// that actually persists the slice); Pipeline is the full ordered list
	// of plugins run for every phase, including Backend itself.
	Backend  plugin.Instance
	Pipeline []plugin.Instance

	// Keys is the backend's private, exclusive-between-phases slice.
	Keys *keyset.KeySet

	// Definition is the backend's own config key set, passed to Init.
	Definition *keyset.KeySet

	Initialized bool
	ReadOnly    bool
	NeedsUpdate bool

	// Filename is the resolver-produced identifier (spec.md §4.E.2 step 2:
	// "store the returned resolved identifier ... in
	// meta:/internal/kdbmountpoint").
	Filename string
}

// NewRecord constructs an empty Record for prefix, with an empty private
// key slice ready for Init/phase invocation.
func NewRecord(name string, prefix *key.Key) *Record {
	return &Record{
		Name:       name,
		Prefix:     prefix,
		Keys:       keyset.New(0),
		Definition: keyset.New(0),
	}
}

// ClearKeys resets the backend's private slice, used between pre-storage and
// storage (spec.md §4.E.2 step 5: "any keys produced during pre-storage are
// discarded").
func (r *Record) ClearKeys() {
	r.Keys.Release()
	r.Keys = keyset.New(0)
}
