package mount

import (
	"testing"

	"github.com/elektrago/kdb/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAddOrdersByPrefix(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Add(NewRecord("b", key.MustNew("user:/b"))))
	require.NoError(t, tbl.Add(NewRecord("a", key.MustNew("user:/a"))))
	require.NoError(t, tbl.Add(NewRecord("root", key.MustNew("user:/"))))

	var names []string
	for _, r := range tbl.All() {
		names = append(names, r.Prefix.Name())
	}
	assert.Equal(t, []string{"user:/", "user:/a", "user:/b"}, names)
}

func TestTableAddDuplicatePrefixFails(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Add(NewRecord("a", key.MustNew("user:/a"))))
	err := tbl.Add(NewRecord("a-again", key.MustNew("user:/a")))
	assert.Error(t, err)
}

func TestTableRemove(t *testing.T) {
	tbl := NewTable()
	rec := NewRecord("a", key.MustNew("user:/a"))
	require.NoError(t, tbl.Add(rec))
	got := tbl.Remove(key.MustNew("user:/a"))
	assert.Same(t, rec, got)
	assert.Len(t, tbl.All(), 0)
	assert.Nil(t, tbl.Remove(key.MustNew("user:/a")))
}

func TestBackendsForParentNonCascading(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Add(NewRecord("root", key.MustNew("user:/"))))
	require.NoError(t, tbl.Add(NewRecord("app", key.MustNew("user:/app"))))

	recs := tbl.BackendsForParent(key.MustNew("user:/app/sub"))
	require.Len(t, recs, 2)
	assert.Equal(t, "user:/", recs[0].Prefix.Name())
	assert.Equal(t, "user:/app", recs[1].Prefix.Name())
}

func TestBackendsForParentDescendantFallback(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Add(NewRecord("nested", key.MustNew("user:/app/nested"))))

	recs := tbl.BackendsForParent(key.MustNew("user:/app"))
	require.Len(t, recs, 1)
	assert.Equal(t, "user:/app/nested", recs[0].Prefix.Name())
}

func TestBackendsForParentCascadingExpandsPerNamespace(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.Add(NewRecord("user-app", key.MustNew("user:/app"))))
	require.NoError(t, tbl.Add(NewRecord("system-app", key.MustNew("system:/app"))))

	recs := tbl.BackendsForParent(key.MustNew("/app"))
	require.Len(t, recs, 2)
	var names []string
	for _, r := range recs {
		names = append(names, r.Prefix.Name())
	}
	assert.ElementsMatch(t, []string{"user:/app", "system:/app"}, names)
}
