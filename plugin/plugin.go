// Package plugin defines the contract every storage/resolver/validation
// plugin must satisfy (spec.md §6), independent of how a particular plugin
// is loaded (registry.Registry covers that).
package plugin

import (
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
)

// Result is the return code of every plugin entry point (spec.md §6).
type Result int

const (
	// Error signals a hard failure; the core demotes the plugin's
	// diagnostic to a warning and aborts the current get, or enters
	// rollback for set (spec.md §7).
	Error Result = -1
	// NoUpdate signals "nothing changed"; during get's resolver phase this
	// marks the backend up to date and short-circuits it (spec.md §4.E.2).
	NoUpdate Result = 0
	// Success signals normal completion with effect.
	Success Result = 1
	// CacheHit is returned only by a resolver that also serves as a cache
	// front-end, indicating the cache already holds a valid slice.
	CacheHit Result = 2
)

func (r Result) String() string {
	switch r {
	case Error:
		return "error"
	case NoUpdate:
		return "no-update"
	case Success:
		return "success"
	case CacheHit:
		return "cache-hit"
	default:
		return "invalid"
	}
}

// Factory opens a plugin instance from its config subtree. errorKey
// receives diagnostics on failure (spec.md §6's open(config, errorKey)).
type Factory interface {
	Open(config *keyset.KeySet, errorKey *key.Key) (Instance, error)
}

// FactoryFunc adapts a plain function to the Factory interface, the same
// "register a constructor function" idiom the teacher uses for xaction
// provider registration.
type FactoryFunc func(config *keyset.KeySet, errorKey *key.Key) (Instance, error)

func (f FactoryFunc) Open(config *keyset.KeySet, errorKey *key.Key) (Instance, error) {
	return f(config, errorKey)
}

// Instance is an opened plugin handle bound to one backend, implementing the
// eight entry points of spec.md §6 (Open is handled by Factory above; the
// remaining seven are methods here).
type Instance interface {
	// Close releases any resources Open acquired.
	Close(errorKey *key.Key) error

	// Init parses this backend's definition (the mountpoint's configured
	// plugin pipeline) against parent, recording whatever per-run state
	// the plugin needs. Returning NoUpdate marks the backend read-only
	// for the remainder of the handle's lifetime (spec.md §4.D).
	Init(definition *keyset.KeySet, parent *key.Key) Result

	// Get runs this plugin's contribution to the current phase against ks,
	// the backend's private slice. global is the handle-scoped key set
	// carrying the current phase under PhaseMetaName (spec.md §4.D) — a
	// single Get call serves every get-side phase (resolver, prestorage,
	// storage, poststorage, and, for global plugins, procgetstorage and
	// postgetstorage), so the plugin reads global to know which one it's in.
	Get(global, ks *keyset.KeySet, parent *key.Key) Result

	// Set runs this plugin's contribution to a set-side phase (presetstorage,
	// prestorage, storage, poststorage), disambiguated via global the same
	// way Get is.
	Set(global, ks *keyset.KeySet, parent *key.Key) Result

	// Commit durably persists a previously-set slice, across precommit,
	// commit, and postcommit.
	Commit(global, ks *keyset.KeySet, parent *key.Key) Result

	// Error is invoked during rollback (prerollback, rollback, postrollback),
	// giving the plugin a chance to undo partial effects of a failed
	// Set/Commit.
	Error(global, ks *keyset.KeySet, parent *key.Key) Result

	// GetFunction is the reflective accessor the `list` plugin uses for
	// mountplugin/unmountplugin (spec.md §6).
	GetFunction(name string) (interface{}, bool)
}
