package key

import "errors"

// Sentinel errors returned by Key/KeySet operations. kdberr wraps these with
// the stable error-kind taxonomy (spec.md §7); the key package itself stays
// free of that dependency so it can be imported from anywhere, including the
// plugin-facing packages.
var (
	ErrInvalidName = errors.New("key: invalid name")
	ErrReadOnly    = errors.New("key: read-only")
	ErrOutOfRange  = errors.New("key: out of range")
)
