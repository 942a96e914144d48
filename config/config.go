// Package config holds the process-wide Config a handle is opened with
// (SPEC_FULL.md §4.G), behind a GCO-style global config owner so concurrent
// readers (plugins, metrics) never observe a half-written update.
package config

import (
	"sync"
	"sync/atomic"
)

// Config is the process-wide configuration a handle reads at open time: the
// bootstrap path and module search path (mirrored from mount.BootstrapPath
// unless overridden), the cache backend's settings, logging, advisory phase
// timeouts, and the metrics listen address.
type Config struct {
	Bootstrap BootstrapConfig
	Cache     CacheConfig
	Log       LogConfig
	Timeout   TimeoutConfig
	Metrics   MetricsConfig
}

// BootstrapConfig names the on-disk init path and the directories searched
// for dynamically loaded plugin shared objects.
type BootstrapConfig struct {
	Path       string
	ModulePath []string
}

// CacheConfig configures the optional PostGetCache (SPEC_FULL.md §4.I).
type CacheConfig struct {
	Enabled     bool
	FilePath    string
	Compression bool
}

// LogConfig configures the zap-backed logger (SPEC_FULL.md §4.H).
type LogConfig struct {
	Level     string
	Directory string
}

// TimeoutConfig carries advisory-only phase timeout hints passed to resolver
// plugins (spec.md §5: "Time-outs are not part of the core contract; if
// required, the resolver plugin enforces them").
type TimeoutConfig struct {
	Phase string // e.g. "30s"; parsed by resolver plugins that care, ignored by the core
}

// MetricsConfig configures the prometheus listener (SPEC_FULL.md §4.K).
type MetricsConfig struct {
	Enabled bool
	Listen  string
}

// Default returns a Config with the core's hardcoded defaults (mount.BootstrapPath,
// caching and metrics disabled).
func Default() *Config {
	return &Config{
		Bootstrap: BootstrapConfig{Path: "/etc/kdb/elektra.conf"},
		Log:       LogConfig{Level: "info"},
	}
}

// owner is the GCO-style global config owner (teacher: cmn/config.go's
// globalConfigOwner): readers load the current *Config via an atomic
// pointer; writers serialize through mtx and publish atomically on commit.
type owner struct {
	mtx sync.Mutex
	c   atomic.Pointer[Config]
}

// GCO is the process-wide global config owner, mirroring the teacher's
// package-level var GCO *globalConfigOwner.
var GCO = &owner{}

func init() {
	GCO.c.Store(Default())
}

// Get returns the currently active configuration. Safe for concurrent use
// without locking.
func (o *owner) Get() *Config { return o.c.Load() }

// Put atomically replaces the active configuration outside of a
// Begin/Commit transaction (e.g. at open time, before any reader exists).
func (o *owner) Put(c *Config) { o.c.Store(c) }

// Clone returns a shallow copy of the active configuration, suitable as the
// basis for a BeginUpdate/CommitUpdate transaction.
func (o *owner) Clone() *Config {
	cur := *o.c.Load()
	return &cur
}

// BeginUpdate locks the owner for a single in-flight update and returns a
// mutable clone of the active configuration. Must be followed by
// CommitUpdate or DiscardUpdate.
func (o *owner) BeginUpdate() *Config {
	o.mtx.Lock()
	return o.Clone()
}

// CommitUpdate publishes config as the new active configuration and
// releases the update lock.
func (o *owner) CommitUpdate(c *Config) {
	o.c.Store(c)
	o.mtx.Unlock()
}

// DiscardUpdate abandons an in-flight update without publishing it.
func (o *owner) DiscardUpdate() {
	o.mtx.Unlock()
}
