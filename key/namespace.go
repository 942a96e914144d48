// Package key implements the Key type: a namespaced, hierarchical name
// carrying a value, metadata, lifecycle flags, and a reference count.
package key

import "strings"

// Namespace is one of the fixed prefixes a Key name starts with.
type Namespace uint8

const (
	// NamespaceMeta ranks below every other namespace; metadata keys never
	// appear in a stored KeySet, only inside a Key's own metadata map.
	NamespaceMeta Namespace = iota
	NamespaceSpec
	NamespaceProc
	NamespaceDir
	NamespaceUser
	NamespaceSystem
	NamespaceDefault
	// NamespaceCascading is a query-only template namespace ("/"): it is
	// never the namespace of a key stored in a KeySet.
	NamespaceCascading
)

var namespaceNames = [...]string{
	NamespaceMeta:      "meta",
	NamespaceSpec:      "spec",
	NamespaceProc:      "proc",
	NamespaceDir:       "dir",
	NamespaceUser:      "user",
	NamespaceSystem:    "system",
	NamespaceDefault:   "default",
	NamespaceCascading: "/",
}

func (n Namespace) String() string {
	if int(n) < len(namespaceNames) {
		return namespaceNames[n]
	}
	return "invalid"
}

// ParseNamespace recognizes the canonical namespace token preceding ":/" in a
// fully qualified key name (e.g. "user" in "user:/app/db/host").
func ParseNamespace(tok string) (Namespace, bool) {
	switch tok {
	case "meta":
		return NamespaceMeta, true
	case "spec":
		return NamespaceSpec, true
	case "proc":
		return NamespaceProc, true
	case "dir":
		return NamespaceDir, true
	case "user":
		return NamespaceUser, true
	case "system":
		return NamespaceSystem, true
	case "default":
		return NamespaceDefault, true
	case "":
		return NamespaceCascading, true
	}
	return 0, false
}

// IsCascading reports whether n is the query-only "/" namespace.
func (n Namespace) IsCascading() bool { return n == NamespaceCascading }

// IsMeta reports whether n is the metadata namespace.
func (n Namespace) IsMeta() bool { return n == NamespaceMeta }

// splitName splits a fully qualified name like "user:/a/b/c" into its
// namespace token and unescaped parts. Parts are separated on unescaped '/';
// "\/" is an escaped separator kept as a literal '/' inside a part.
func splitName(full string) (nsTok string, parts []string, err error) {
	idx := strings.Index(full, ":/")
	if idx < 0 {
		// cascading keys are spelled "/a/b/c" with no namespace token
		if !strings.HasPrefix(full, "/") {
			return "", nil, ErrInvalidName
		}
		nsTok = ""
		parts = splitParts(full[1:])
		return nsTok, parts, nil
	}
	nsTok = full[:idx]
	parts = splitParts(full[idx+2:])
	return nsTok, parts, nil
}

func splitParts(rest string) []string {
	if rest == "" {
		return nil
	}
	var parts []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '/':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func joinParts(ns Namespace, parts []string) string {
	var b strings.Builder
	b.WriteString(ns.String())
	if !ns.IsCascading() {
		b.WriteString(":/")
	}
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(escapePart(p))
	}
	return b.String()
}

func escapePart(p string) string {
	if !strings.ContainsRune(p, '/') {
		return p
	}
	return strings.ReplaceAll(p, "/", "\\/")
}
