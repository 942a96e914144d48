package keyset

import "github.com/elektrago/kdb/key"

// Cursor is a stateful iterator over a KeySet's canonical order, used by
// plugins to walk a set and, on a validation error, point back at the
// offending key (spec.md §7, "the offending key is pointed at via the key
// set's cursor").
type Cursor struct {
	ks  *KeySet
	pos int
}

// Cursor returns a fresh cursor rewound to the start of ks.
func (ks *KeySet) Cursor() *Cursor { return &Cursor{ks: ks, pos: -1} }

// Rewind resets the cursor to just before the first element.
func (c *Cursor) Rewind() { c.pos = -1 }

// Next advances the cursor and returns the next key, or nil at the end.
func (c *Cursor) Next() *key.Key {
	c.pos++
	return c.ks.At(c.pos)
}

// AtCursor returns the key at the cursor's current position without
// advancing, or nil if the cursor is before the first or past the last
// element.
func (c *Cursor) AtCursor() *key.Key {
	return c.ks.At(c.pos)
}

// Pos returns the cursor's current 0-based position.
func (c *Cursor) Pos() int { return c.pos }
