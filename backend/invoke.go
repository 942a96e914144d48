// Package backend drives one phase of the get/set protocol across the
// pipeline of plugins that make up a mountpoint's Backend record (spec.md
// §4.D), and fans that phase out across every selected backend concurrently
// within a lock-step barrier (spec.md §5's concurrency model, SPEC_FULL.md
// §5's errgroup enhancement).
package backend

import (
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
)

// Invoke selects which of a plugin.Instance's phase-bearing methods a
// backend.Driver call should run. The four operations of spec.md §6 each
// have a distinct invoke: Get during get's phases, Set during set's
// resolver/prestorage/storage/poststorage, Commit during precommit/commit/postcommit,
// Error during prerollback/rollback/postrollback. global is passed through
// unchanged so the plugin can read the current phase off it.
type Invoke func(inst plugin.Instance, global, ks *keyset.KeySet, parent *key.Key) plugin.Result

// GetInvoke runs a plugin's Get entry point.
func GetInvoke(inst plugin.Instance, global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	return inst.Get(global, ks, parent)
}

// SetInvoke runs a plugin's Set entry point.
func SetInvoke(inst plugin.Instance, global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	return inst.Set(global, ks, parent)
}

// CommitInvoke runs a plugin's Commit entry point.
func CommitInvoke(inst plugin.Instance, global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	return inst.Commit(global, ks, parent)
}

// ErrorInvoke runs a plugin's Error entry point (rollback phases).
func ErrorInvoke(inst plugin.Instance, global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	return inst.Error(global, ks, parent)
}
