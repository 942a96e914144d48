package mount

import (
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
)

// newConfigKeySet builds the minimal config key set plugins/file expects: a
// single "user:/path" entry naming the on-disk file it should read/write.
func newConfigKeySet(path string) *keyset.KeySet {
	ks := keyset.New(1)
	ks.Append(key.MustNew("user:/path", key.WithValue(path)))
	return ks
}

// BootstrapPath is the well-known on-disk init path the bootstrap backend
// reads (spec.md §4.C step 1).
const BootstrapPath = "/etc/kdb/elektra.conf"

// openFilePipeline opens a fresh resolver+storage pair from plugins/file
// against cfg, tracking both in reg, and returns them in phase-run order.
// Every hardcoded/bootstrap mountpoint shares this exact pipeline shape.
func openFilePipeline(reg *registry.Registry, errorKey *key.Key, cfg *keyset.KeySet) ([]plugin.Instance, plugin.Instance, error) {
	resolverFactory, err := reg.Load("file/resolver", "Factory")
	if err != nil {
		return nil, nil, err
	}
	storageFactory, err := reg.Load("file/storage", "Factory")
	if err != nil {
		return nil, nil, err
	}
	resolverInst, err := resolverFactory.Open(cfg, errorKey)
	if err != nil {
		return nil, nil, err
	}
	reg.Track("file/resolver", resolverInst)
	storageInst, err := storageFactory.Open(cfg, errorKey)
	if err != nil {
		return nil, nil, err
	}
	reg.Track("file/storage", storageInst)
	return []plugin.Instance{resolverInst, storageInst}, storageInst, nil
}

// NewBootstrapRecord builds the bootstrap backend for system:/elektra
// (spec.md §4.C step 1): the "file/resolver" and "file/storage" plugins
// (plugins/file), reading BootstrapPath.
func NewBootstrapRecord(reg *registry.Registry, errorKey *key.Key) (*Record, error) {
	cfg := newConfigKeySet(BootstrapPath)
	pipeline, backend, err := openFilePipeline(reg, errorKey, cfg)
	if err != nil {
		return nil, err
	}
	rec := NewRecord("system:\\/elektra", key.MustNew("system:/elektra"))
	rec.Pipeline = pipeline
	rec.Backend = backend
	rec.Definition = cfg
	return rec, nil
}

// HardcodedRecords returns the mountpoints the core always installs,
// regardless of the parsed configuration (spec.md §4.C step 6): a root
// mountpoint per non-meta, non-proc namespace relevant to on-disk
// persistence (spec, system, user, dir), plus the introspection
// mountpoints system:/elektra/modules and system:/elektra/version.
func HardcodedRecords(reg *registry.Registry, errorKey *key.Key, basePath string) ([]*Record, error) {
	var recs []*Record
	for _, ns := range []string{"spec", "system", "user", "dir"} {
		rec, err := rootMountpoint(reg, errorKey, ns, basePath)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	introspection, err := introspectionMountpoints(reg, errorKey, basePath)
	if err != nil {
		return nil, err
	}
	recs = append(recs, introspection...)
	return recs, nil
}

func rootMountpoint(reg *registry.Registry, errorKey *key.Key, ns, basePath string) (*Record, error) {
	cfg := newConfigKeySet(basePath + "/" + ns + ".conf")
	pipeline, backend, err := openFilePipeline(reg, errorKey, cfg)
	if err != nil {
		return nil, err
	}
	rec := NewRecord(ns+":\\/", key.MustNew(ns+":/"))
	rec.Pipeline = pipeline
	rec.Backend = backend
	rec.Definition = cfg
	return rec, nil
}

func introspectionMountpoints(reg *registry.Registry, errorKey *key.Key, basePath string) ([]*Record, error) {
	names := []string{"system:/elektra/modules", "system:/elektra/version"}
	var recs []*Record
	for _, n := range names {
		cfg := newConfigKeySet(basePath + "/" + n + ".conf")
		pipeline, backend, err := openFilePipeline(reg, errorKey, cfg)
		if err != nil {
			return nil, err
		}
		rec := NewRecord(escapeMountpointSeg(n), key.MustNew(n))
		rec.Pipeline = pipeline
		rec.Backend = backend
		rec.ReadOnly = true
		rec.Definition = cfg
		recs = append(recs, rec)
	}
	return recs, nil
}

func escapeMountpointSeg(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			out = append(out, '\\', '/')
			continue
		}
		out = append(out, name[i])
	}
	return string(out)
}
