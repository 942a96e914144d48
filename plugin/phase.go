package plugin

import "github.com/elektrago/kdb/keyset"

// Phase is a labeled step in the get/set protocol (spec.md §4.D). The core
// writes the current phase into the handle-scoped global key set under
// PhaseMetaName before invoking any plugin entry point.
type Phase string

const (
	PhaseResolver     Phase = "resolver"
	PhasePreStorage   Phase = "prestorage"
	PhaseStorage      Phase = "storage"
	PhasePostStorage  Phase = "poststorage"
	PhasePreCommit    Phase = "precommit"
	PhaseCommit       Phase = "commit"
	PhasePostCommit   Phase = "postcommit"
	PhasePreRollback  Phase = "prerollback"
	PhaseRollback     Phase = "rollback"
	PhasePostRollback Phase = "postrollback"
)

// PhaseMetaName is the global key the core sets before every invocation
// (spec.md §4.D: "system:/elektra/kdb/backend/phase").
const PhaseMetaName = "system:/elektra/kdb/backend/phase"

// FromGlobal reads the current phase off global, the handle-scoped key set
// every Get/Set/Commit/Error call receives. Plugins should use this instead
// of looking up PhaseMetaName directly, matching the typed-accessor idiom
// SPEC_FULL.md §6 calls for.
func FromGlobal(global *keyset.KeySet) Phase {
	if global == nil {
		return ""
	}
	k, err := global.LookupByName(PhaseMetaName, keyset.LookupNone)
	if err != nil || k == nil {
		return ""
	}
	return Phase(k.Value())
}

// Position names a global-plugin slot (spec.md §3, KDB handle table of
// global plugins indexed by (position, subposition)).
type Position string

const (
	PositionPreGetStorage  Position = "pre-get-storage"
	PositionProcGetStorage Position = "proc-get-storage"
	PositionPostGetStorage Position = "post-get-storage"
	PositionPostGetCleanup Position = "post-get-cleanup"
	PositionPreSetStorage  Position = "pre-set-storage"
	PositionPreSetCleanup  Position = "pre-set-cleanup"
	PositionPreCommit      Position = "pre-commit"
	PositionCommit         Position = "commit"
	PositionPostCommit     Position = "post-commit"
	PositionPreRollback    Position = "pre-rollback"
	PositionRollback       Position = "rollback"
	PositionPostRollback   Position = "post-rollback"
)

// Subposition further qualifies a global-plugin position.
type Subposition string

const (
	SubpositionInit    Subposition = "init"
	SubpositionMaxOnce Subposition = "max-once"
	SubpositionDeinit  Subposition = "deinit"
	SubpositionForeach Subposition = "foreach"
)

// Slot identifies one (position, subposition) cell of the global plugin
// table.
type Slot struct {
	Position    Position
	Subposition Subposition
}
