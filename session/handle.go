// Package session implements the core open/get/set/close engine (spec.md
// §4.E): the driver that walks a handle's mountpoint table through the
// phase protocol, wiring in the cache, metrics, and logging ambient stack
// around the bare behavioral contract.
package session

import (
	"github.com/elektrago/kdb/backend"
	"github.com/elektrago/kdb/cache"
	"github.com/elektrago/kdb/config"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/log"
	"github.com/elektrago/kdb/metrics"
	"github.com/elektrago/kdb/mount"
	"github.com/elektrago/kdb/registry"
)

// ParentState is a (handle, parent) pair's position in spec.md §4.E.4's
// state machine.
type ParentState int

const (
	StateFreshlyOpened ParentState = iota
	StateGotten
	StateMustReget
	StateClosed
)

// Handle is one open KDB session (spec.md §3's "KDB handle"). Per spec.md
// §5, a Handle is scheduled single-threaded: concurrent Get/Set calls
// against the same Handle are not supported and carry no internal locking.
type Handle struct {
	Registry *registry.Registry
	Global   *keyset.KeySet
	Table    *mount.Table
	Globals  mount.GlobalPlugins
	Driver   *backend.Driver
	Cache    cache.Store
	Metrics  *metrics.Registry
	Config   *config.Config
	Log      *log.Logger

	closed       bool
	parentStates map[string]ParentState
}

func (h *Handle) stateFor(parent *key.Key) ParentState {
	if h.closed {
		return StateClosed
	}
	return h.parentStates[parent.Name()]
}

func (h *Handle) setState(parent *key.Key, s ParentState) {
	if h.parentStates == nil {
		h.parentStates = map[string]ParentState{}
	}
	h.parentStates[parent.Name()] = s
}
