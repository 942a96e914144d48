package session

import (
	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
)

// Close implements spec.md §4.E.4. The registry already tracks every
// instance opened during Open — backend pipeline plugins and global
// plugins alike — so a single CloseAll closes each of them exactly once
// (spec.md §8 invariant 8), in the order Open opened them: the bootstrap
// backend's plugins, then the global plugins, then the mountpoint backends.
// The backends are therefore not all closed before the global plugins.
// Idempotent against an already-closed or nil handle;
// errorKey, if non-nil, records release-time warnings for any plugin that
// failed to close cleanly.
func (h *Handle) Close(errorKey *key.Key) []error {
	if h == nil || h.closed {
		return nil
	}
	errs := h.Registry.CloseAll(errorKey)
	if errorKey != nil {
		for _, e := range errs {
			kdberr.Warn(errorKey, toKdbErr(e))
		}
	}
	h.Global.Release()
	h.closed = true
	return errs
}
