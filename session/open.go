package session

import (
	"context"
	"path/filepath"
	"time"

	"github.com/elektrago/kdb/backend"
	"github.com/elektrago/kdb/cache"
	"github.com/elektrago/kdb/config"
	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/log"
	"github.com/elektrago/kdb/metrics"
	"github.com/elektrago/kdb/mount"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
)

// bootstrapGetPhases is the sequence of get-protocol phases Open runs against the
// bootstrap backend to load the persisted configuration (spec.md §4.E.1
// step 2).
var bootstrapGetPhases = []plugin.Phase{
	plugin.PhaseResolver, plugin.PhasePreStorage, plugin.PhaseStorage, plugin.PhasePostStorage,
}

// Open builds a handle per spec.md §4.E.1. cfg supplies the process
// configuration driving cache/metrics/log wiring (nil selects
// config.Default()); contract is the caller-supplied key set of
// globalkeyset/mountglobal directives (spec.md §6). Failure at any step
// tears down whatever was opened so far and returns a nil handle — the
// triggering diagnostic is both returned and recorded on errorKey.
func Open(cfg *config.Config, contract *keyset.KeySet, errorKey *key.Key) (*Handle, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	reg := registry.New(uint64(time.Now().UnixNano()))
	global := keyset.New(0)
	driver := backend.New(global)

	fail := func(cause error) (*Handle, error) {
		reg.CloseAll(errorKey)
		global.Release()
		if errorKey != nil {
			kdberr.SetOn(errorKey, toKdbErr(cause))
		}
		return nil, cause
	}

	// Steps 1-2: bootstrap backend, then get to load the persisted config.
	bootRec, err := mount.NewBootstrapRecord(reg, errorKey)
	if err != nil {
		return fail(err)
	}
	if err := backend.Init(bootRec, bootRec.Prefix); err != nil {
		return fail(err)
	}
	ctx := context.Background()
	for _, phase := range bootstrapGetPhases {
		if err := driver.RunPhase(ctx, phase, backend.GetInvoke, []*mount.Record{bootRec}, bootRec.Prefix); err != nil {
			return fail(err)
		}
	}
	loadedConfig := bootRec.Keys

	// Step 3: mount the global plugins the loaded configuration describes.
	configGlobals, err := mount.ParseGlobalPlugins(loadedConfig, reg, errorKey)
	if err != nil {
		return fail(err)
	}

	// Step 4: process the caller's contract.
	contractGlobals, err := mount.ProcessContract(contract, global, reg, errorKey)
	if err != nil {
		return fail(err)
	}
	globals := mount.MergeGlobalPlugins(configGlobals, contractGlobals)

	// Step 5: parse the loaded configuration into the real mountpoint table.
	records, err := mount.ParseMountpoints(loadedConfig, reg, errorKey)
	if err != nil {
		return fail(err)
	}

	// Step 6: discard the bootstrap backend — its plugin instances stay
	// tracked in reg for ordinary close-time teardown, but it is never added
	// to the live table — then install the real and hardcoded mountpoints.
	table := mount.NewTable()
	for _, rec := range records {
		if err := table.Add(rec); err != nil {
			return fail(err)
		}
	}
	hardcoded, err := mount.HardcodedRecords(reg, errorKey, filepath.Dir(cfg.Bootstrap.Path))
	if err != nil {
		return fail(err)
	}
	for _, rec := range hardcoded {
		if err := table.Add(rec); err != nil {
			return fail(err)
		}
	}

	var cacheStore cache.Store = cache.Noop{}
	if cfg.Cache.Enabled {
		bunt, err := cache.OpenBunt(cfg.Cache.FilePath)
		if err != nil {
			return fail(kdberr.Resourcef("session", err, "opening cache at %s", cfg.Cache.FilePath))
		}
		cacheStore = bunt
	}

	var metricsReg *metrics.Registry
	if cfg.Metrics.Enabled {
		metricsReg = metrics.New()
	}

	return &Handle{
		Registry: reg,
		Global:   global,
		Table:    table,
		Globals:  globals,
		Driver:   driver,
		Cache:    cacheStore,
		Metrics:  metricsReg,
		Config:   cfg,
		Log:      log.New("session"),
	}, nil
}
