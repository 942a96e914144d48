package session

import (
	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
)

// checkPreconditions enforces the shared precondition of spec.md §4.E.2 and
// §4.E.3: parent must be non-nil, unlocked, and outside the meta namespace.
func checkPreconditions(parent *key.Key) *kdberr.Error {
	if parent == nil {
		return kdberr.Interfacef("session", "parent key must not be nil")
	}
	if parent.Namespace().IsMeta() {
		return kdberr.Interfacef("session", "parent key must not be in the meta namespace")
	}
	if parent.Flags()&(key.FlagNameLocked|key.FlagValueLocked|key.FlagMetaLocked) != 0 {
		return kdberr.Interfacef("session", "parent key must not be locked")
	}
	return nil
}

// toKdbErr adapts a plain error (e.g. from backend.RunPhase, which wraps
// plugin failures as *kdberr.Error already but is typed as error at the
// call boundary) back to the structured form SetOn/Warn expect.
func toKdbErr(err error) *kdberr.Error {
	if e, ok := err.(*kdberr.Error); ok {
		return e
	}
	return kdberr.Internalf("session", "%v", err)
}
