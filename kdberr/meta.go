package kdberr

import (
	"fmt"
	"strconv"

	"github.com/elektrago/kdb/key"
)

// SetOn writes the meta:/error/* entries of spec.md §6 onto parent,
// overwriting any previous error.
func SetOn(parent *key.Key, e *Error) {
	_ = parent.SetMeta("error/number", e.Number)
	_ = parent.SetMeta("error/reason", e.Reason)
	_ = parent.SetMeta("error/description", e.Description)
	_ = parent.SetMeta("error/module", e.Module)
	_ = parent.SetMeta("error/file", e.File)
	_ = parent.SetMeta("error/line", strconv.Itoa(e.Line))
	_ = parent.SetMeta("error/mountpoint", e.Mountpoint)
	_ = parent.SetMeta("error/kind", string(e.Kind))
}

// ClearOn clears the meta:/error/* and meta:/warnings/* entries of parent,
// as required at the start of every get/set call (spec.md §4.E.2).
func ClearOn(parent *key.Key) {
	for _, n := range []string{"error/number", "error/reason", "error/description",
		"error/module", "error/file", "error/line", "error/mountpoint", "error/kind"} {
		_ = parent.DelMeta(n)
	}
	for i := 0; ; i++ {
		prefix := fmt.Sprintf("warnings/#%d/", i)
		if _, ok := parent.Meta(prefix + "reason"); !ok {
			break
		}
		_ = parent.DelMeta(prefix + "reason")
		_ = parent.DelMeta(prefix + "module")
		_ = parent.DelMeta(prefix + "kind")
	}
}

// Warn appends e as the next meta:/warnings/#N/* entry on parent, demoting a
// plugin error to a non-fatal diagnostic (spec.md §7's propagation policy:
// during rollback, and for post-commit failures, every error becomes a
// warning rather than aborting).
func Warn(parent *key.Key, e *Error) {
	n := nextWarningIndex(parent)
	prefix := fmt.Sprintf("warnings/#%d/", n)
	_ = parent.SetMeta(prefix+"reason", e.Reason)
	_ = parent.SetMeta(prefix+"module", e.Module)
	_ = parent.SetMeta(prefix+"kind", string(e.Kind))
}

func nextWarningIndex(parent *key.Key) int {
	for i := 0; ; i++ {
		if _, ok := parent.Meta(fmt.Sprintf("warnings/#%d/reason", i)); !ok {
			return i
		}
	}
}
