package cache

// Witness is the cache validity token spec.md §9 leaves unspecified
// ("the exact witness format is unspecified in the source — do not invent
// one [beyond resolving the Open Question]"). SPEC_FULL.md §4.I resolves it
// concretely: the resolver-returned identifier's modification time and size,
// never a content hash — the core never reads file contents outside the
// storage phase, so a hash would require an extra read defeating the cache's
// purpose.
type Witness struct {
	ModTime int64 // Unix nanoseconds
	Size    int64
}

// Equal reports whether two witnesses describe the same observed state.
func (w Witness) Equal(other Witness) bool {
	return w.ModTime == other.ModTime && w.Size == other.Size
}
