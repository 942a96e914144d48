package cache

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
	"github.com/tinylib/msgp/msgp"
)

// BuntStore is the shipped PostGetCache implementation: an embedded
// tidwall/buntdb index holding one entry per (mountpoint, parent), each
// value an lz4-framed, msgp-encoded WireSet+Witness pair, base64-encoded
// since buntdb values are strings.
type BuntStore struct {
	db *buntdb.DB
}

// OpenBunt opens (creating if necessary) a buntdb-backed cache at path. Pass
// ":memory:" for a process-local, non-persistent cache.
func OpenBunt(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cache: opening %s", path)
	}
	return &BuntStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *BuntStore) Close() error { return s.db.Close() }

func entryKey(mountpoint, parent string) string {
	return mountpoint + "\x00" + parent
}

// Lookup implements Store.
func (s *BuntStore) Lookup(mountpoint, parent string) (WireSet, Witness, bool) {
	var raw string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(entryKey(mountpoint, parent))
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		return WireSet{}, Witness{}, false
	}

	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return WireSet{}, Witness{}, false
	}
	set, witness, err := decodeEntry(blob)
	if err != nil {
		return WireSet{}, Witness{}, false
	}
	return set, witness, true
}

// Store implements Store.
func (s *BuntStore) Store(mountpoint, parent string, slice WireSet, witness Witness) error {
	blob, err := encodeEntry(slice, witness)
	if err != nil {
		return errors.Wrap(err, "cache: encoding entry")
	}
	encoded := base64.StdEncoding.EncodeToString(blob)
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(entryKey(mountpoint, parent), encoded, nil)
		return err
	})
}

// encodeEntry msgp-encodes witness then slice back to back, lz4-framed.
func encodeEntry(slice WireSet, witness Witness) ([]byte, error) {
	var raw bytes.Buffer
	w := msgp.NewWriter(&raw)
	if err := witness.EncodeMsg(w); err != nil {
		return nil, err
	}
	if err := slice.EncodeMsg(w); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	var compressed bytes.Buffer
	zw := lz4.NewWriter(&compressed)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}

func decodeEntry(blob []byte) (WireSet, Witness, error) {
	zr := lz4.NewReader(bytes.NewReader(blob))
	raw, err := io.ReadAll(zr)
	if err != nil {
		return WireSet{}, Witness{}, fmt.Errorf("cache: lz4 decompress: %w", err)
	}

	r := msgp.NewReader(bytes.NewReader(raw))
	var witness Witness
	if err := witness.DecodeMsg(r); err != nil {
		return WireSet{}, Witness{}, err
	}
	var set WireSet
	if err := set.DecodeMsg(r); err != nil {
		return WireSet{}, Witness{}, err
	}
	return set, witness, nil
}
