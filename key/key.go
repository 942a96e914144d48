package key

import (
	"go.uber.org/atomic"
)

// Flags are the lifecycle bits carried by a Key, mirroring the bitset idiom
// the teacher uses for cluster.SnodeFlags.
type Flags uint8

const (
	FlagNameLocked Flags = 1 << iota
	FlagValueLocked
	FlagMetaLocked
	FlagNeedsSync
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Key is a namespaced, hierarchical, metadata-carrying, reference-counted
// configuration entry. A Key is never copied by value across package
// boundaries: callers hold *Key and either pass ownership into a KeySet
// (Append) or Dup it first.
type Key struct {
	ns    Namespace
	parts []string

	value  []byte
	binary bool // true if value is an opaque blob rather than a UTF-8 string

	meta map[string]string

	owner string // historical "owner" tag; sorts after the bare name

	flags Flags
	refs  atomic.Int32
}

// Option configures a new Key at construction time.
type Option func(*Key)

// WithValue sets the key's value as a UTF-8 string.
func WithValue(v string) Option {
	return func(k *Key) { k.value, k.binary = []byte(v), false }
}

// WithBinary sets the key's value as an opaque byte blob.
func WithBinary(v []byte) Option {
	return func(k *Key) {
		k.value = append([]byte(nil), v...)
		k.binary = true
	}
}

// WithMeta attaches one metadata entry.
func WithMeta(name, value string) Option {
	return func(k *Key) {
		if k.meta == nil {
			k.meta = make(map[string]string)
		}
		k.meta[name] = value
	}
}

// WithOwner sets the historical owner tag.
func WithOwner(owner string) Option {
	return func(k *Key) { k.owner = owner }
}

// WithFlags ORs additional lifecycle flags onto the new key.
func WithFlags(f Flags) Option {
	return func(k *Key) { k.flags |= f }
}

// New creates a detached key (refcount 1) from a fully qualified name plus
// options. Returns ErrInvalidName if name cannot be parsed.
func New(name string, opts ...Option) (*Key, error) {
	nsTok, parts, err := splitName(name)
	if err != nil {
		return nil, err
	}
	ns, ok := ParseNamespace(nsTok)
	if !ok {
		return nil, ErrInvalidName
	}
	k := &Key{ns: ns, parts: parts}
	k.refs.Store(1)
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// MustNew is New but panics on error; intended for static/bootstrap keys
// whose names are compile-time literals.
func MustNew(name string, opts ...Option) *Key {
	k, err := New(name, opts...)
	if err != nil {
		panic(err)
	}
	return k
}

// Ref increments the reference count and returns k, mirroring the
// "pass-by-pointer, lose it to the set" idiom described in spec.md §9: the
// caller that calls Ref is declaring a new owner exists.
func (k *Key) Ref() *Key {
	k.refs.Inc()
	return k
}

// Unref decrements the reference count. The caller must stop using k after
// Unref returns true (the key reached refcount 0 and its resources, if any,
// should be considered released).
func (k *Key) Unref() (released bool) {
	return k.refs.Dec() <= 0
}

// RefCount returns the current reference count.
func (k *Key) RefCount() int32 { return k.refs.Load() }

// Namespace returns the key's namespace.
func (k *Key) Namespace() Namespace { return k.ns }

// Name returns the fully qualified, escaped name.
func (k *Key) Name() string { return joinParts(k.ns, k.parts) }

// Parts returns the unescaped name parts (not including the namespace).
// The returned slice must not be mutated.
func (k *Key) Parts() []string { return k.parts }

// BaseName returns the last unescaped name part, or "" for a root key.
func (k *Key) BaseName() string {
	if len(k.parts) == 0 {
		return ""
	}
	return k.parts[len(k.parts)-1]
}

// SetName replaces the key's name. Fails with ErrReadOnly if the name is
// locked (as it is for every key appended to a KeySet), and with
// ErrInvalidName for an unparsable name.
func (k *Key) SetName(name string) error {
	if k.flags.has(FlagNameLocked) {
		return ErrReadOnly
	}
	nsTok, parts, err := splitName(name)
	if err != nil {
		return err
	}
	ns, ok := ParseNamespace(nsTok)
	if !ok {
		return ErrInvalidName
	}
	k.ns, k.parts = ns, parts
	return nil
}

// AppendNamePart appends one unescaped part to the key's name.
func (k *Key) AppendNamePart(part string) error {
	if k.flags.has(FlagNameLocked) {
		return ErrReadOnly
	}
	k.parts = append(k.parts, part)
	return nil
}

// EraseNamePart removes the last unescaped part of the key's name, if any.
func (k *Key) EraseNamePart() error {
	if k.flags.has(FlagNameLocked) {
		return ErrReadOnly
	}
	if len(k.parts) > 0 {
		k.parts = k.parts[:len(k.parts)-1]
	}
	return nil
}

// Value returns the string value (valid whether or not Binary is true; for
// binary values this is a raw reinterpretation of the bytes).
func (k *Key) Value() string { return string(k.value) }

// BinaryValue returns the raw bytes and whether the value is binary.
func (k *Key) BinaryValue() ([]byte, bool) { return k.value, k.binary }

// SetValue replaces the key's string value.
func (k *Key) SetValue(v string) error {
	if k.flags.has(FlagValueLocked) {
		return ErrReadOnly
	}
	k.value, k.binary = []byte(v), false
	k.flags |= FlagNeedsSync
	return nil
}

// SetBinary replaces the key's value with an opaque blob.
func (k *Key) SetBinary(v []byte) error {
	if k.flags.has(FlagValueLocked) {
		return ErrReadOnly
	}
	k.value = append([]byte(nil), v...)
	k.binary = true
	k.flags |= FlagNeedsSync
	return nil
}

// Meta returns a metadata value and whether it was present.
func (k *Key) Meta(name string) (string, bool) {
	v, ok := k.meta[name]
	return v, ok
}

// SetMeta writes one metadata entry.
func (k *Key) SetMeta(name, value string) error {
	if k.flags.has(FlagMetaLocked) {
		return ErrReadOnly
	}
	if k.meta == nil {
		k.meta = make(map[string]string)
	}
	k.meta[name] = value
	return nil
}

// DelMeta removes one metadata entry.
func (k *Key) DelMeta(name string) error {
	if k.flags.has(FlagMetaLocked) {
		return ErrReadOnly
	}
	delete(k.meta, name)
	return nil
}

// EachMeta calls fn for every metadata entry in unspecified order.
func (k *Key) EachMeta(fn func(name, value string)) {
	for n, v := range k.meta {
		fn(n, v)
	}
}

// Owner returns the historical owner tag.
func (k *Key) Owner() string { return k.owner }

// Flags returns the current lifecycle flags.
func (k *Key) Flags() Flags { return k.flags }

// Lock ORs additional lifecycle flags onto the key. Used by KeySet.Append to
// lock the name once a key is stored (a stored key's identity must not
// change underneath the set's sort order).
func (k *Key) Lock(f Flags) { k.flags |= f }

// Unlock clears lifecycle flags.
func (k *Key) Unlock(f Flags) { k.flags &^= f }

// NeedsSync reports whether this key has been modified since it was last
// considered synced (KeySet.ClearSync clears this).
func (k *Key) NeedsSync() bool { return k.flags.has(FlagNeedsSync) }

// ClearSync clears the needs-sync flag; called by the session engine after a
// successful set.
func (k *Key) ClearSync() { k.flags &^= FlagNeedsSync }

// Dup selector bits, controlling what DupSelect copies from the source key.
type DupWhat uint8

const (
	DupName DupWhat = 1 << iota
	DupValue
	DupMeta
	DupAll = DupName | DupValue | DupMeta
)

// Dup returns a new, detached (refcount 1) copy of k, copying the aspects
// named by what. Locks are never copied; the duplicate starts unlocked.
func (k *Key) Dup(what DupWhat) *Key {
	d := &Key{}
	d.refs.Store(1)
	if what&DupName != 0 {
		d.ns = k.ns
		d.parts = append([]string(nil), k.parts...)
		d.owner = k.owner
	}
	if what&DupValue != 0 {
		d.value = append([]byte(nil), k.value...)
		d.binary = k.binary
	}
	if what&DupMeta != 0 && k.meta != nil {
		d.meta = make(map[string]string, len(k.meta))
		for n, v := range k.meta {
			d.meta[n] = v
		}
	}
	return d
}

// OverwriteFrom copies replacement's value and metadata into k in place,
// used by KeySet.Append when replacing an identity-equal key (spec.md §3:
// "the replacement key's value and metadata overwrite the existing
// element"). Name is left untouched since it's already identical.
func (k *Key) OverwriteFrom(replacement *Key) {
	k.value, k.binary = replacement.value, replacement.binary
	k.meta = replacement.meta
	k.owner = replacement.owner
	if replacement.flags.has(FlagNeedsSync) {
		k.flags |= FlagNeedsSync
	}
}
