// Package file implements the reference local-filesystem resolver and
// storage plugins (SPEC_FULL.md §4.J): flock-based conflict detection plus
// witness-based staleness detection, and line-based persistence with a
// JSON metadata sidecar. "file/storage" owns the whole per-mountpoint
// lifecycle (resolving and persisting both live in one instance, since the
// flock held across a set's resolver/commit/rollback phases and the
// witness compared across gets both belong to exactly one opened file,
// never to a second, independently-opened plugin instance); "file/resolver"
// is registered as a harmless placeholder so a mountpoint declaration that
// names both plugins explicitly still resolves to a loadable module.
package file

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/elektrago/kdb/cache"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// fileState is one mountpoint's view of its backing file: private to the
// storageInstance that owns it, never shared across instances.
type fileState struct {
	mu sync.Mutex

	path     string
	lockPath string

	lockFile *os.File

	haveWitness bool
	witness     cache.Witness

	// tmpPath and conflict are valid only between a set's resolver phase
	// and its commit/rollback (spec.md §4.E.3 step 5: the resolver may hand
	// back a temporary identifier for the storage plugin to write to).
	tmpPath  string
	conflict bool
}

func newFileState(path string) *fileState {
	return &fileState{path: path, lockPath: path + ".lock"}
}

// observe stats path and reports whether its (mtime, size) differ from the
// last observation, recording the new witness either way.
func (s *fileState) observe() (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, statErr := os.Stat(s.path)
	var w cache.Witness
	if statErr != nil {
		if !os.IsNotExist(statErr) {
			return false, errors.Wrapf(statErr, "file: stat %s", s.path)
		}
		w = cache.Witness{}
	} else {
		w = cache.Witness{ModTime: info.ModTime().UnixNano(), Size: info.Size()}
	}
	changed = !s.haveWitness || !s.witness.Equal(w)
	s.haveWitness, s.witness = true, w
	return changed, nil
}

// beginSet acquires an advisory exclusive lock on the path's lock sibling
// and picks a fresh temporary filename for the storage phase to write,
// recording a conflict (someone else already holds the lock) instead of a
// generic error so session.resolverConflict can translate it into
// kdberr.Conflict.
func (s *fileState) beginSet() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrapf(err, "file: opening lock file %s", s.lockPath)
	}
	if flockErr := unix.Flock(int(lf.Fd()), unix.LOCK_EX|unix.LOCK_NB); flockErr != nil {
		lf.Close()
		s.conflict = true
		return errors.Wrapf(flockErr, "file: %s is locked by another writer", s.path)
	}
	s.conflict = false
	s.lockFile = lf
	s.tmpPath = s.path + ".tmp." + strconv.FormatInt(time.Now().UnixNano(), 36)
	return nil
}

// endSet releases the lock acquired by beginSet, if any. Safe to call more
// than once.
func (s *fileState) endSet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockFile != nil {
		unix.Flock(int(s.lockFile.Fd()), unix.LOCK_UN)
		s.lockFile.Close()
		s.lockFile = nil
	}
}

// currentFilename is the identifier the storage phase should read/write
// right now: the real path outside of an in-flight set, the resolver's
// temporary path while one is in flight.
func (s *fileState) currentFilename() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tmpPath != "" {
		return s.tmpPath
	}
	return s.path
}

// commitRename atomically moves the in-flight temporary file into place and
// refreshes the witness from the result, mirroring cmn/jsp/file.go's
// tmp-write-then-rename discipline.
func (s *fileState) commitRename() error {
	s.mu.Lock()
	tmp := s.tmpPath
	s.mu.Unlock()
	if tmp == "" {
		return nil
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(err, "file: renaming %s to %s", tmp, s.path)
	}

	s.mu.Lock()
	s.tmpPath = ""
	if info, statErr := os.Stat(s.path); statErr == nil {
		s.haveWitness = true
		s.witness = cache.Witness{ModTime: info.ModTime().UnixNano(), Size: info.Size()}
	}
	s.mu.Unlock()
	return nil
}

// removeTmp discards an in-flight temporary file after a failed set,
// without touching the real path.
func (s *fileState) removeTmp() {
	s.mu.Lock()
	tmp := s.tmpPath
	s.tmpPath = ""
	s.mu.Unlock()
	if tmp != "" {
		os.Remove(tmp)
	}
}

// getFunction answers the three reflective names session/phases.go consults
// on a mountpoint's designated backend plugin: "filename" (spec.md §4.E.2
// step 2, §4.E.3 step 5), "witness" (SPEC_FULL.md §4.I), and "conflict"
// (spec.md §5, §8 S4).
func (s *fileState) getFunction(name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "filename":
		if s.tmpPath != "" {
			return s.tmpPath, true
		}
		return s.path, true
	case "witness":
		if !s.haveWitness {
			return nil, false
		}
		return s.witness, true
	case "conflict":
		return s.conflict, true
	}
	return nil, false
}
