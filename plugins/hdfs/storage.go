// Package hdfs implements a single-file storage backend over HDFS, grounded
// on colinmarc/hdfs/v2's client shape (SPEC_FULL.md §4.J). The client
// exposes no compare-and-swap primitive the way gcs/azure do, so, like s3,
// conflict detection here is a best-effort stat-before-write check.
package hdfs

import (
	"bytes"
	"io"
	"os"
	"sync"

	libhdfs "github.com/colinmarc/hdfs/v2"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/plugins/internal/kvtext"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("hdfs/storage", plugin.FactoryFunc(openStorage))
}

type witness struct {
	modTime int64
	size    int64
}

func (w witness) equal(o witness) bool { return w.modTime == o.modTime && w.size == o.size }

type storageInstance struct {
	mu     sync.Mutex
	client *libhdfs.Client
	path   string

	haveWitness bool
	w           witness
	conflict    bool
}

func openStorage(cfg *keyset.KeySet, errorKey *key.Key) (plugin.Instance, error) {
	namenode, path, err := configKeys(cfg)
	if err != nil {
		if errorKey != nil {
			kdberr.SetOn(errorKey, err)
		}
		return nil, err
	}
	client, clientErr := libhdfs.New(namenode)
	if clientErr != nil {
		wrapped := kdberr.Resourcef("hdfs", clientErr, "connecting to namenode %s", namenode)
		if errorKey != nil {
			kdberr.SetOn(errorKey, wrapped)
		}
		return nil, wrapped
	}
	return &storageInstance{client: client, path: path}, nil
}

func configKeys(cfg *keyset.KeySet) (namenode, path string, err *kdberr.Error) {
	n, lookupErr := cfg.LookupByName("user:/namenode", keyset.LookupNone)
	if lookupErr != nil || n == nil || n.Value() == "" {
		return "", "", kdberr.Installationf("hdfs", "missing required config key user:/namenode")
	}
	p, lookupErr := cfg.LookupByName("user:/path", keyset.LookupNone)
	if lookupErr != nil || p == nil || p.Value() == "" {
		return "", "", kdberr.Installationf("hdfs", "missing required config key user:/path")
	}
	return n.Value(), p.Value(), nil
}

func (s *storageInstance) Close(*key.Key) error {
	return s.client.Close()
}

func (s *storageInstance) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }

func (s *storageInstance) stat() (witness, bool, error) {
	info, err := s.client.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return witness{}, false, nil
		}
		return witness{}, false, err
	}
	return witness{modTime: info.ModTime().UnixNano(), size: info.Size()}, true, nil
}

func (s *storageInstance) Get(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		w, exists, err := s.stat()
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("hdfs", err, "stating %s", s.path))
			return plugin.Error
		}
		if !exists {
			w = witness{}
		}
		changed := !s.haveWitness || !s.w.equal(w)
		s.haveWitness, s.w = true, w
		if !changed {
			return plugin.NoUpdate
		}
		return plugin.Success
	case plugin.PhaseStorage:
		f, err := s.client.Open(s.path)
		if err != nil {
			if os.IsNotExist(err) {
				return plugin.Success
			}
			kdberr.SetOn(parent, kdberr.Resourcef("hdfs", err, "opening %s", s.path))
			return plugin.Error
		}
		defer f.Close()
		data, readErr := io.ReadAll(f)
		if readErr != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("hdfs", readErr, "reading %s", s.path))
			return plugin.Error
		}
		if err := kvtext.Decode(data, ks); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("hdfs", err, "decoding %s", s.path))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Set's resolver phase re-stats the file and compares against the last
// witness this instance observed, the same optimistic approximation s3 uses
// and for the same reason: the client exposes no server-side precondition
// to condition the eventual write on.
func (s *storageInstance) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		w, exists, err := s.stat()
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("hdfs", err, "stating %s", s.path))
			return plugin.Error
		}
		if !exists {
			w = witness{}
		}
		if s.haveWitness && !s.w.equal(w) {
			s.conflict = true
			kdberr.SetOn(parent, kdberr.Conflict("hdfs", s.path))
			return plugin.Error
		}
		s.conflict = false
		return plugin.Success
	case plugin.PhaseStorage:
		data := kvtext.Encode(ks)
		s.client.Remove(s.path)
		w, createErr := s.client.Create(s.path)
		if createErr != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("hdfs", createErr, "creating %s", s.path))
			return plugin.Error
		}
		defer w.Close()
		if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("hdfs", err, "writing %s", s.path))
			return plugin.Error
		}
		if err := w.Close(); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("hdfs", err, "closing %s", s.path))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

func (s *storageInstance) Commit(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}

func (s *storageInstance) Error(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}

func (s *storageInstance) GetFunction(name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "filename":
		return s.path, true
	case "witness":
		if !s.haveWitness {
			return nil, false
		}
		return s.w, true
	case "conflict":
		return s.conflict, true
	}
	return nil, false
}
