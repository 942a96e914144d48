// Package s3 implements a single-blob storage backend over AWS S3: one
// mountpoint maps onto one bucket/key pair, grounded on the aws-sdk-go
// client shape the teacher's retrieval pack pulls in (SPEC_FULL.md §4.J).
// Unlike plugins/file's flock sibling, S3 has no compare-and-swap primitive
// on PUT, so conflict detection here is an optimistic head-then-put check,
// not a guarantee — documented on Set below.
package s3

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/plugins/internal/kvtext"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("s3/storage", plugin.FactoryFunc(openStorage))
}

type witness struct {
	etag string
	size int64
}

func (w witness) equal(o witness) bool { return w.etag == o.etag && w.size == o.size }

// storageInstance is the single owner of one bucket/key pair's resolver and
// storage lifecycle, the same single-owner design plugins/file uses and for
// the same reason: GetFunction is only ever consulted on a mountpoint's
// designated /backend plugin.
type storageInstance struct {
	mu     sync.Mutex
	client *s3.S3
	bucket string
	key    string

	haveWitness bool
	w           witness
	conflict    bool
}

func openStorage(cfg *keyset.KeySet, errorKey *key.Key) (plugin.Instance, error) {
	bucket, objKey, region, err := configKeys(cfg)
	if err != nil {
		if errorKey != nil {
			kdberr.SetOn(errorKey, err)
		}
		return nil, err
	}
	opts := session.Options{SharedConfigState: session.SharedConfigEnable}
	if region != "" {
		opts.Config = aws.Config{Region: aws.String(region)}
	}
	sess, sessErr := session.NewSessionWithOptions(opts)
	if sessErr != nil {
		wrapped := kdberr.Installationf("s3", "opening AWS session: %v", sessErr)
		if errorKey != nil {
			kdberr.SetOn(errorKey, wrapped)
		}
		return nil, wrapped
	}
	return &storageInstance{client: s3.New(sess), bucket: bucket, key: objKey}, nil
}

func configKeys(cfg *keyset.KeySet) (bucket, objKey, region string, err *kdberr.Error) {
	b, lookupErr := cfg.LookupByName("user:/bucket", keyset.LookupNone)
	if lookupErr != nil || b == nil || b.Value() == "" {
		return "", "", "", kdberr.Installationf("s3", "missing required config key user:/bucket")
	}
	k, lookupErr := cfg.LookupByName("user:/key", keyset.LookupNone)
	if lookupErr != nil || k == nil || k.Value() == "" {
		return "", "", "", kdberr.Installationf("s3", "missing required config key user:/key")
	}
	var regionValue string
	if r, lookupErr := cfg.LookupByName("user:/region", keyset.LookupNone); lookupErr == nil && r != nil {
		regionValue = r.Value()
	}
	return b.Value(), k.Value(), regionValue, nil
}

func (s *storageInstance) Close(*key.Key) error { return nil }

func (s *storageInstance) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }

func (s *storageInstance) head(ctx context.Context) (witness, bool, error) {
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return witness{}, false, nil
		}
		return witness{}, false, err
	}
	w := witness{size: aws.Int64Value(out.ContentLength)}
	if out.ETag != nil {
		w.etag = *out.ETag
	}
	return w, true, nil
}

// Get runs the resolver phase's witness comparison and the storage phase's
// download.
func (s *storageInstance) Get(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	ctx := context.Background()
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		w, exists, err := s.head(ctx)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("s3", err, "heading s3://%s/%s", s.bucket, s.key))
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
		out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
		})
		if err != nil {
			if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
				return plugin.Success
			}
			kdberr.SetOn(parent, kdberr.Resourcef("s3", err, "getting s3://%s/%s", s.bucket, s.key))
			return plugin.Error
		}
		defer out.Body.Close()
		data, err := io.ReadAll(out.Body)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("s3", err, "reading body of s3://%s/%s", s.bucket, s.key))
			return plugin.Error
		}
		if err := kvtext.Decode(data, ks); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("s3", err, "decoding s3://%s/%s", s.bucket, s.key))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Set's resolver phase re-heads the object and compares against the last
// witness this instance observed: S3's PUT has no native If-Match
// precondition (unlike gcs/azure below), so this is an optimistic check with
// a race between the head and the eventual put, not a hard guarantee — an
// acceptable approximation for a reference plugin, not a strict lock.
func (s *storageInstance) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	ctx := context.Background()
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		w, exists, err := s.head(ctx)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("s3", err, "heading s3://%s/%s", s.bucket, s.key))
			return plugin.Error
		}
		if !exists {
			w = witness{}
		}
		if s.haveWitness && !s.w.equal(w) {
			s.conflict = true
			kdberr.SetOn(parent, kdberr.Conflict("s3", s.bucket+"/"+s.key))
			return plugin.Error
		}
		s.conflict = false
		return plugin.Success
	case plugin.PhaseStorage:
		data := kvtext.Encode(ks)
		_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("s3", err, "putting s3://%s/%s", s.bucket, s.key))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

// Commit and Error are no-ops: PutObject is itself the atomic action (S3 has
// no separate write-then-rename step the way a local filesystem does), so
// there is nothing left to do at commit and nothing to undo at rollback.
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
		return s.bucket + "/" + s.key, true
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
