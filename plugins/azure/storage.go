// Package azure implements a single-blob storage backend over Azure Blob
// Storage, grounded on Azure/azure-storage-blob-go's pipeline-based client
// shape (SPEC_FULL.md §4.J). Like gcs, block blobs support a real ETag
// precondition on upload, so Set's conflict check is a genuine
// compare-and-swap, not an optimistic approximation.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/plugins/internal/kvtext"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("azure/storage", plugin.FactoryFunc(openStorage))
}

type storageInstance struct {
	mu      sync.Mutex
	blobURL azblob.BlockBlobURL
	label   string

	haveWitness bool
	etag        azblob.ETag
	conflict    bool
}

func openStorage(cfg *keyset.KeySet, errorKey *key.Key) (plugin.Instance, error) {
	account, accountKey, container, blob, err := configKeys(cfg)
	if err != nil {
		if errorKey != nil {
			kdberr.SetOn(errorKey, err)
		}
		return nil, err
	}
	credential, credErr := azblob.NewSharedKeyCredential(account, accountKey)
	if credErr != nil {
		wrapped := kdberr.Installationf("azure", "building shared key credential: %v", credErr)
		if errorKey != nil {
			kdberr.SetOn(errorKey, wrapped)
		}
		return nil, wrapped
	}
	p := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	u, parseErr := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", account, container, blob))
	if parseErr != nil {
		wrapped := kdberr.Installationf("azure", "building blob URL: %v", parseErr)
		if errorKey != nil {
			kdberr.SetOn(errorKey, wrapped)
		}
		return nil, wrapped
	}
	return &storageInstance{
		blobURL: azblob.NewBlockBlobURL(*u, p),
		label:   container + "/" + blob,
	}, nil
}

func configKeys(cfg *keyset.KeySet) (account, accountKey, container, blob string, err *kdberr.Error) {
	lookups := map[string]*string{
		"user:/account":    &account,
		"user:/accountKey": &accountKey,
		"user:/container":  &container,
		"user:/blob":       &blob,
	}
	for name, dest := range lookups {
		k, lookupErr := cfg.LookupByName(name, keyset.LookupNone)
		if lookupErr != nil || k == nil || k.Value() == "" {
			return "", "", "", "", kdberr.Installationf("azure", "missing required config key %s", name)
		}
		*dest = k.Value()
	}
	return account, accountKey, container, blob, nil
}

func (s *storageInstance) Close(*key.Key) error { return nil }

func (s *storageInstance) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }

func (s *storageInstance) properties(ctx context.Context) (azblob.ETag, bool, error) {
	props, err := s.blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return props.ETag(), true, nil
}

func isNotFound(err error) bool {
	if stgErr, ok := err.(azblob.StorageError); ok {
		return stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}

func (s *storageInstance) Get(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	ctx := context.Background()
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		etag, exists, err := s.properties(ctx)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("azure", err, "heading blob %s", s.label))
			return plugin.Error
		}
		if !exists {
			etag = ""
		}
		changed := !s.haveWitness || s.etag != etag
		s.haveWitness, s.etag = true, etag
		if !changed {
			return plugin.NoUpdate
		}
		return plugin.Success
	case plugin.PhaseStorage:
		resp, err := s.blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
		if err != nil {
			if isNotFound(err) {
				return plugin.Success
			}
			kdberr.SetOn(parent, kdberr.Resourcef("azure", err, "downloading blob %s", s.label))
			return plugin.Error
		}
		body := resp.Body(azblob.RetryReaderOptions{})
		defer body.Close()
		data, readErr := io.ReadAll(body)
		if readErr != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("azure", readErr, "reading blob %s", s.label))
			return plugin.Error
		}
		if err := kvtext.Decode(data, ks); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("azure", err, "decoding blob %s", s.label))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Set's resolver phase records the ETag this instance last observed; the
// storage phase conditions the upload on that exact ETag via
// ModifiedAccessConditions.IfMatch, so an intervening write from another
// writer makes the precondition fail instead of being silently overwritten.
func (s *storageInstance) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	ctx := context.Background()
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		etag, exists, err := s.properties(ctx)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("azure", err, "heading blob %s", s.label))
			return plugin.Error
		}
		if !exists {
			etag = ""
		}
		s.haveWitness, s.etag = true, etag
		s.conflict = false
		return plugin.Success
	case plugin.PhaseStorage:
		s.mu.Lock()
		etag := s.etag
		existed := s.haveWitness && etag != ""
		s.mu.Unlock()

		cond := azblob.BlobAccessConditions{}
		if existed {
			cond.ModifiedAccessConditions.IfMatch = etag
		} else {
			cond.ModifiedAccessConditions.IfNoneMatch = azblob.ETagAny
		}
		data := kvtext.Encode(ks)
		_, err := s.blobURL.Upload(ctx, bytes.NewReader(data), azblob.BlobHTTPHeaders{}, azblob.Metadata{},
			cond, azblob.DefaultAccessTier, nil, azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
		if err != nil {
			if isPreconditionFailed(err) {
				s.mu.Lock()
				s.conflict = true
				s.mu.Unlock()
				kdberr.SetOn(parent, kdberr.Conflict("azure", s.label))
				return plugin.Error
			}
			kdberr.SetOn(parent, kdberr.Resourcef("azure", err, "uploading blob %s", s.label))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

func isPreconditionFailed(err error) bool {
	stgErr, ok := err.(azblob.StorageError)
	return ok && stgErr.Response() != nil && stgErr.Response().StatusCode == 412
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
		return s.label, true
	case "witness":
		if !s.haveWitness {
			return nil, false
		}
		return s.etag, true
	case "conflict":
		return s.conflict, true
	}
	return nil, false
}
