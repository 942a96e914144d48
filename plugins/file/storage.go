package file

import (
	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("file/storage", plugin.FactoryFunc(openStorage))
}

// storageInstance is "file/storage": the plugin designated /backend for
// every hardcoded and bootstrap mountpoint (mount.NewBootstrapRecord,
// mount.rootMountpoint). It owns both the resolver-phase work (witness
// comparison on get, flock acquisition on set) and the storage/commit/
// rollback-phase work for one file, and is a no-op outside the phases it
// cares about — driver.runPipeline invokes every pipeline member for every
// phase of every backend, not just the phases relevant to it (spec.md §6).
type storageInstance struct {
	state *fileState
}

func openStorage(cfg *keyset.KeySet, errorKey *key.Key) (plugin.Instance, error) {
	path, err := configPath(cfg)
	if err != nil {
		if errorKey != nil {
			kdberr.SetOn(errorKey, err)
		}
		return nil, err
	}
	return &storageInstance{state: newFileState(path)}, nil
}

func configPath(cfg *keyset.KeySet) (string, *kdberr.Error) {
	k, lookupErr := cfg.LookupByName("user:/path", keyset.LookupNone)
	if lookupErr != nil || k == nil || k.Value() == "" {
		return "", kdberr.Installationf("file", "missing required config key user:/path")
	}
	return k.Value(), nil
}

func (s *storageInstance) Close(*key.Key) error {
	s.state.endSet()
	return nil
}

func (s *storageInstance) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }

// Get runs the resolver phase's witness comparison (spec.md §4.E.2 step 2:
// unchanged since the last get short-circuits this backend) and the storage
// phase's read (step 5).
func (s *storageInstance) Get(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		changed, err := s.state.observe()
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("file", err, "resolving %s", s.state.path))
			return plugin.Error
		}
		if !changed {
			return plugin.NoUpdate
		}
		return plugin.Success
	case plugin.PhaseStorage:
		if err := readFile(s.state.currentFilename(), ks); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("file", err, "reading %s", s.state.path))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Set runs the resolver phase's lock acquisition (spec.md §4.E.3 step 5)
// and the storage phase's write (step 6), to the resolver-produced
// temporary identifier.
func (s *storageInstance) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		if err := s.state.beginSet(); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("file", err, "locking %s", s.state.path))
			return plugin.Error
		}
		return plugin.Success
	case plugin.PhaseStorage:
		if err := writeFile(s.state.currentFilename(), ks); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("file", err, "writing %s", s.state.path))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Commit renames the temporary file into place on the commit phase
// (mirroring cmn/jsp/file.go's tmp-write-then-rename discipline) and
// releases the lock once that has happened, on post-commit.
func (s *storageInstance) Commit(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	switch plugin.FromGlobal(global) {
	case plugin.PhaseCommit:
		if err := s.state.commitRename(); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("file", err, "committing %s", s.state.path))
			return plugin.Error
		}
		return plugin.Success
	case plugin.PhasePostCommit:
		s.state.endSet()
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Error discards the temporary file on rollback, without ever touching the
// real path, then releases the lock on post-rollback.
func (s *storageInstance) Error(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	switch plugin.FromGlobal(global) {
	case plugin.PhaseRollback:
		s.state.removeTmp()
		return plugin.Success
	case plugin.PhasePostRollback:
		s.state.endSet()
		return plugin.Success
	default:
		return plugin.Success
	}
}

func (s *storageInstance) GetFunction(name string) (interface{}, bool) {
	return s.state.getFunction(name)
}
