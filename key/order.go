package key

// namespaceRank gives the canonical sort rank of a namespace, per spec.md §3:
// "meta < spec < proc < dir < user < system < default". Cascading keys are
// never stored, so they have no meaningful rank here; Compare treats them as
// ranking after every storable namespace so accidental insertion sorts to
// the tail rather than silently corrupting order.
func namespaceRank(n Namespace) int {
	switch n {
	case NamespaceMeta:
		return 0
	case NamespaceSpec:
		return 1
	case NamespaceProc:
		return 2
	case NamespaceDir:
		return 3
	case NamespaceUser:
		return 4
	case NamespaceSystem:
		return 5
	case NamespaceDefault:
		return 6
	default:
		return 7
	}
}

// Compare implements the canonical total order of spec.md §3: namespace
// rank, then part-by-part lexicographic comparison (shorter prefix sorts
// first), then the historical owner tag as a final tiebreaker.
func Compare(a, b *Key) int {
	if ra, rb := namespaceRank(a.ns), namespaceRank(b.ns); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	n := len(a.parts)
	if len(b.parts) < n {
		n = len(b.parts)
	}
	for i := 0; i < n; i++ {
		if a.parts[i] != b.parts[i] {
			if a.parts[i] < b.parts[i] {
				return -1
			}
			return 1
		}
	}
	if len(a.parts) != len(b.parts) {
		if len(a.parts) < len(b.parts) {
			return -1
		}
		return 1
	}
	if a.owner != b.owner {
		if a.owner < b.owner {
			return -1
		}
		return 1
	}
	return 0
}

// Equal reports whether a and b have identical canonical identity: same
// namespace, full unescaped name, and owner tag (spec.md §3 rule 3). owner
// must be included here because Compare uses it as a final tiebreaker
// (spec.md §3: "the historical owner tag, if present, sorts after the bare
// name within a namespace") — invariant 1 (spec.md §8) defines a set's
// identity as equality under canonical order, so Equal and
// Compare(a,b) == 0 must agree, or Append's Compare-based binary search can
// land past an Equal-identical key and insert a duplicate slot instead of
// overwriting it.
func Equal(a, b *Key) bool {
	if a.ns != b.ns || a.owner != b.owner || len(a.parts) != len(b.parts) {
		return false
	}
	for i := range a.parts {
		if a.parts[i] != b.parts[i] {
			return false
		}
	}
	return true
}

// Below reports whether k's name is a strict descendant of prefix's name
// (same namespace, prefix's parts are a strict prefix of k's parts).
func Below(prefix, k *Key) bool {
	if prefix.ns != k.ns || len(prefix.parts) >= len(k.parts) {
		return false
	}
	for i, p := range prefix.parts {
		if k.parts[i] != p {
			return false
		}
	}
	return true
}

// DirectlyBelow reports whether k is exactly one name part below prefix.
func DirectlyBelow(prefix, k *Key) bool {
	return Below(prefix, k) && len(k.parts) == len(prefix.parts)+1
}

// BelowOrSame reports whether k equals prefix or is below it.
func BelowOrSame(prefix, k *Key) bool {
	return Equal(prefix, k) || Below(prefix, k)
}
