// Package gcs implements a single-blob storage backend over Google Cloud
// Storage, grounded on cloud.google.com/go/storage's client shape
// (SPEC_FULL.md §4.J). Unlike s3, GCS objects carry a real generation
// number the client library can condition a write on, so Set's conflict
// check here is a genuine precondition, not an optimistic approximation.
package gcs

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/storage"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/plugins/internal/kvtext"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("gcs/storage", plugin.FactoryFunc(openStorage))
}

type storageInstance struct {
	mu     sync.Mutex
	client *storage.Client
	bucket string
	object string

	haveWitness bool
	generation  int64
	size        int64
	conflict    bool
}

func openStorage(cfg *keyset.KeySet, errorKey *key.Key) (plugin.Instance, error) {
	bucket, object, err := configKeys(cfg)
	if err != nil {
		if errorKey != nil {
			kdberr.SetOn(errorKey, err)
		}
		return nil, err
	}
	client, clientErr := storage.NewClient(context.Background())
	if clientErr != nil {
		wrapped := kdberr.Installationf("gcs", "opening storage client: %v", clientErr)
		if errorKey != nil {
			kdberr.SetOn(errorKey, wrapped)
		}
		return nil, wrapped
	}
	return &storageInstance{client: client, bucket: bucket, object: object}, nil
}

func configKeys(cfg *keyset.KeySet) (bucket, object string, err *kdberr.Error) {
	b, lookupErr := cfg.LookupByName("user:/bucket", keyset.LookupNone)
	if lookupErr != nil || b == nil || b.Value() == "" {
		return "", "", kdberr.Installationf("gcs", "missing required config key user:/bucket")
	}
	o, lookupErr := cfg.LookupByName("user:/object", keyset.LookupNone)
	if lookupErr != nil || o == nil || o.Value() == "" {
		return "", "", kdberr.Installationf("gcs", "missing required config key user:/object")
	}
	return b.Value(), o.Value(), nil
}

func (s *storageInstance) handle() *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.object)
}

func (s *storageInstance) Close(*key.Key) error {
	return s.client.Close()
}

func (s *storageInstance) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }

func (s *storageInstance) attrs(ctx context.Context) (generation, size int64, exists bool, err error) {
	attrs, attrErr := s.handle().Attrs(ctx)
	if attrErr != nil {
		if attrErr == storage.ErrObjectNotExist {
			return 0, 0, false, nil
		}
		return 0, 0, false, attrErr
	}
	return attrs.Generation, attrs.Size, true, nil
}

func (s *storageInstance) Get(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	ctx := context.Background()
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		gen, size, exists, err := s.attrs(ctx)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("gcs", err, "heading gs://%s/%s", s.bucket, s.object))
			return plugin.Error
		}
		if !exists {
			gen, size = 0, 0
		}
		changed := !s.haveWitness || s.generation != gen || s.size != size
		s.haveWitness, s.generation, s.size = true, gen, size
		if !changed {
			return plugin.NoUpdate
		}
		return plugin.Success
	case plugin.PhaseStorage:
		r, err := s.handle().NewReader(ctx)
		if err != nil {
			if err == storage.ErrObjectNotExist {
				return plugin.Success
			}
			kdberr.SetOn(parent, kdberr.Resourcef("gcs", err, "reading gs://%s/%s", s.bucket, s.object))
			return plugin.Error
		}
		defer r.Close()
		data, readErr := io.ReadAll(r)
		if readErr != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("gcs", readErr, "reading gs://%s/%s", s.bucket, s.object))
			return plugin.Error
		}
		if err := kvtext.Decode(data, ks); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("gcs", err, "decoding gs://%s/%s", s.bucket, s.object))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Set's resolver phase records the generation this instance last observed;
// the storage phase conditions the write on that exact generation via
// ObjectHandle.If, so a concurrent writer's intervening write makes the
// precondition fail instead of silently overwriting it.
func (s *storageInstance) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	ctx := context.Background()
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		gen, size, exists, err := s.attrs(ctx)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("gcs", err, "heading gs://%s/%s", s.bucket, s.object))
			return plugin.Error
		}
		if !exists {
			gen, size = 0, 0
		}
		s.haveWitness, s.generation, s.size = true, gen, size
		s.conflict = false
		return plugin.Success
	case plugin.PhaseStorage:
		s.mu.Lock()
		gen := s.generation
		s.mu.Unlock()

		handle := s.handle()
		if gen != 0 {
			handle = handle.If(storage.Conditions{GenerationMatch: gen})
		} else {
			handle = handle.If(storage.Conditions{DoesNotExist: true})
		}
		w := handle.NewWriter(ctx)
		data := kvtext.Encode(ks)
		if _, err := w.Write(data); err != nil {
			w.Close()
			kdberr.SetOn(parent, kdberr.Resourcef("gcs", err, "writing gs://%s/%s", s.bucket, s.object))
			return plugin.Error
		}
		if err := w.Close(); err != nil {
			if isPreconditionFailed(err) {
				s.mu.Lock()
				s.conflict = true
				s.mu.Unlock()
				kdberr.SetOn(parent, kdberr.Conflict("gcs", s.bucket+"/"+s.object))
				return plugin.Error
			}
			kdberr.SetOn(parent, kdberr.Resourcef("gcs", err, "closing writer for gs://%s/%s", s.bucket, s.object))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return contains(msg, "412") || contains(msg, "conditionNotMet")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
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
		return s.bucket + "/" + s.object, true
	case "witness":
		if !s.haveWitness {
			return nil, false
		}
		return s.generation, true
	case "conflict":
		return s.conflict, true
	}
	return nil, false
}
