package keyset

import (
	"testing"

	"github.com/elektrago/kdb/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPermutationInvariance is spec.md §8 scenario S1.
func TestPermutationInvariance(t *testing.T) {
	names := []string{"user:/s/1", "user:/s/2", "user:/s/3"}
	perms := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for _, perm := range perms {
		ks := New(0)
		for _, i := range perm {
			require.NoError(t, ks.Append(key.MustNew(names[i])))
		}
		require.Equal(t, 3, ks.Len())
		for i := 0; i < 3; i++ {
			assert.Equal(t, names[i], ks.At(i).Name())
		}
	}
}

func TestAppendReplacesEqualKey(t *testing.T) {
	ks := New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/a", key.WithValue("v1"))))
	require.NoError(t, ks.Append(key.MustNew("user:/a", key.WithValue("v2"))))
	assert.Equal(t, 1, ks.Len())
	assert.Equal(t, "v2", ks.At(0).Value())
}

// TestAppendDistinguishesOwner covers spec.md §3's "historical owner tag ...
// sorts after the bare name" rule: Compare ranks same-name keys with
// different owners apart, so Equal must too (invariant 1, spec.md §8) or
// Append's Compare-based search lands past the existing slot and inserts a
// second entry with the same bare name/namespace instead of replacing it.
func TestAppendDistinguishesOwner(t *testing.T) {
	ks := New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/a", key.WithValue("v1"))))
	require.NoError(t, ks.Append(key.MustNew("user:/a", key.WithValue("v2"), key.WithOwner("a"))))
	assert.Equal(t, 2, ks.Len())
	assert.Equal(t, "v1", ks.At(0).Value())
	assert.Equal(t, "v2", ks.At(1).Value())

	require.NoError(t, ks.Append(key.MustNew("user:/a", key.WithValue("v3"), key.WithOwner("a"))))
	assert.Equal(t, 2, ks.Len())
	assert.Equal(t, "v3", ks.At(1).Value())
}

// TestCutReturnsSubtree is spec.md §8 scenario S2.
func TestCutReturnsSubtree(t *testing.T) {
	ks := New(0)
	for _, n := range []string{"user:/a", "user:/a/b", "user:/a/b/c", "user:/d"} {
		require.NoError(t, ks.Append(key.MustNew(n)))
	}
	cut := ks.Cut(key.MustNew("user:/a"))
	require.Equal(t, 3, cut.Len())
	assert.Equal(t, []string{"user:/a", "user:/a/b", "user:/a/b/c"}, namesOf(cut))
	require.Equal(t, 1, ks.Len())
	assert.Equal(t, "user:/d", ks.At(0).Name())
}

func namesOf(ks *KeySet) []string {
	out := make([]string, 0, ks.Len())
	ks.Each(func(k *key.Key) { out = append(out, k.Name()) })
	return out
}

func TestBelowLeavesOriginalUntouched(t *testing.T) {
	ks := New(0)
	for _, n := range []string{"user:/a", "user:/a/b", "user:/d"} {
		require.NoError(t, ks.Append(key.MustNew(n)))
	}
	sub := ks.Below(key.MustNew("user:/a"))
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, 3, ks.Len())
}

func TestLookupAndPop(t *testing.T) {
	ks := New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/a")))
	found, err := ks.LookupByName("user:/a", LookupNone)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 1, ks.Len())

	popped, err := ks.LookupByName("user:/a", LookupPop)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, 0, ks.Len())
}

func TestPopEmptyOutOfRange(t *testing.T) {
	ks := New(0)
	_, err := ks.Pop()
	assert.ErrorIs(t, err, key.ErrOutOfRange)
}

func TestAppendCascadingRejected(t *testing.T) {
	ks := New(0)
	err := ks.Append(key.MustNew("/cascading/x"))
	assert.ErrorIs(t, err, key.ErrInvalidName)
}

func TestSyncFlag(t *testing.T) {
	ks := New(0)
	assert.False(t, ks.Sync())
	require.NoError(t, ks.Append(key.MustNew("user:/a")))
	assert.True(t, ks.Sync())
	ks.ClearSync()
	assert.False(t, ks.Sync())
	assert.False(t, ks.At(0).NeedsSync())
}

func TestDivideLongestPrefix(t *testing.T) {
	prefixes := []*key.Key{
		key.MustNew("user:/"),
		key.MustNew("user:/a"),
		key.MustNew("user:/a/b"),
	}
	ks := New(0)
	for _, n := range []string{"user:/x", "user:/a/1", "user:/a/b/2", "user:/a/bb/3"} {
		require.NoError(t, ks.Append(key.MustNew(n)))
	}
	buckets, unmatched := Divide(prefixes, ks)
	assert.Equal(t, 0, unmatched.Len())
	assert.Equal(t, []string{"user:/x"}, namesOf(buckets[0]))
	assert.Equal(t, []string{"user:/a/1", "user:/a/bb/3"}, namesOf(buckets[1]))
	assert.Equal(t, []string{"user:/a/b/2"}, namesOf(buckets[2]))
}

func TestCursor(t *testing.T) {
	ks := New(0)
	for _, n := range []string{"user:/a", "user:/b"} {
		require.NoError(t, ks.Append(key.MustNew(n)))
	}
	c := ks.Cursor()
	assert.Nil(t, c.AtCursor())
	first := c.Next()
	require.NotNil(t, first)
	assert.Equal(t, "user:/a", first.Name())
	assert.Equal(t, "user:/a", c.AtCursor().Name())
	second := c.Next()
	assert.Equal(t, "user:/b", second.Name())
	assert.Nil(t, c.Next())
}

