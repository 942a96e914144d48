package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func globalAtPhase(phase plugin.Phase) *keyset.KeySet {
	g := keyset.New(0)
	_ = g.Append(key.MustNew(plugin.PhaseMetaName, key.WithValue(string(phase))))
	return g
}

func openFile(t *testing.T, path string) *storageInstance {
	t.Helper()
	cfg := keyset.New(1)
	require.NoError(t, cfg.Append(key.MustNew("user:/path", key.WithValue(path))))
	inst, err := openStorage(cfg, nil)
	require.NoError(t, err)
	return inst.(*storageInstance)
}

func runSet(t *testing.T, s *storageInstance, parent *key.Key, ks *keyset.KeySet) {
	t.Helper()
	steps := []struct {
		phase  plugin.Phase
		commit bool
	}{
		{plugin.PhaseResolver, false},
		{plugin.PhasePreStorage, false},
		{plugin.PhaseStorage, false},
		{plugin.PhasePostStorage, false},
		{plugin.PhasePreCommit, true},
		{plugin.PhaseCommit, true},
		{plugin.PhasePostCommit, true},
	}
	for _, step := range steps {
		global := globalAtPhase(step.phase)
		var res plugin.Result
		if step.commit {
			res = s.Commit(global, ks, parent)
		} else {
			res = s.Set(global, ks, parent)
		}
		require.Equal(t, plugin.Success, res, "phase %s", step.phase)
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	s := openFile(t, path)
	defer s.Close(nil)

	parent := key.MustNew("user:/app")
	ks := keyset.New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/app/host", key.WithValue("db1"), key.WithMeta("type", "string"))))
	require.NoError(t, ks.Append(key.MustNew("user:/app/port", key.WithValue("5432"))))

	runSet(t, s, parent, ks)

	_, err := os.Stat(path)
	require.NoError(t, err)

	got := keyset.New(0)
	global := globalAtPhase(plugin.PhaseStorage)
	require.Equal(t, plugin.Success, s.Get(global, got, parent))

	host, err := got.LookupByName("user:/app/host", keyset.LookupNone)
	require.NoError(t, err)
	require.NotNil(t, host)
	assert.Equal(t, "db1", host.Value())
	typ, ok := host.Meta("type")
	assert.True(t, ok)
	assert.Equal(t, "string", typ)

	port, err := got.LookupByName("user:/app/port", keyset.LookupNone)
	require.NoError(t, err)
	require.NotNil(t, port)
	assert.Equal(t, "5432", port.Value())
}

func TestGetOnMissingFileIsSuccessWithEmptySet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.conf")
	s := openFile(t, path)
	defer s.Close(nil)

	got := keyset.New(0)
	global := globalAtPhase(plugin.PhaseStorage)
	assert.Equal(t, plugin.Success, s.Get(global, got, key.MustNew("user:/app")))
	assert.Equal(t, 0, got.Len())
}

// TestResolverNoUpdateOnUnchangedFile covers SPEC_FULL.md §4.I: a commit
// already primes the witness to match what was just written, so the very
// next resolver get must short-circuit with NoUpdate; only an out-of-band
// modification makes it observe a change again.
func TestResolverNoUpdateOnUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	s := openFile(t, path)
	defer s.Close(nil)

	parent := key.MustNew("user:/app")
	ks := keyset.New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/app/k", key.WithValue("v"))))
	runSet(t, s, parent, ks)

	resolverPhase := globalAtPhase(plugin.PhaseResolver)
	assert.Equal(t, plugin.NoUpdate, s.Get(resolverPhase, keyset.New(0), parent))
	assert.Equal(t, plugin.NoUpdate, s.Get(resolverPhase, keyset.New(0), parent))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("user:/app/k=changed\n"), 0o644))
	assert.Equal(t, plugin.Success, s.Get(resolverPhase, keyset.New(0), parent))
}

// TestConcurrentSetersConflict covers scenario S4's resolver-detected
// concurrent writer: two independently opened instances against the same
// path race for the advisory lock, and the loser must flag "conflict"
// without disturbing the winner's own state.
func TestConcurrentSetersConflict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	s1 := openFile(t, path)
	s2 := openFile(t, path)
	defer s1.Close(nil)
	defer s2.Close(nil)

	parent := key.MustNew("user:/app")
	resolverPhase := globalAtPhase(plugin.PhaseResolver)

	require.Equal(t, plugin.Success, s1.Set(resolverPhase, keyset.New(0), parent))
	assert.Equal(t, plugin.Error, s2.Set(resolverPhase, keyset.New(0), parent))

	conflict, ok := s2.GetFunction("conflict")
	require.True(t, ok)
	assert.Equal(t, true, conflict)

	noConflict, ok := s1.GetFunction("conflict")
	require.True(t, ok)
	assert.Equal(t, false, noConflict)
}

func TestRollbackRemovesTemporaryFileButKeepsReal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.conf")
	s := openFile(t, path)
	defer s.Close(nil)

	parent := key.MustNew("user:/app")
	ks := keyset.New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/app/k", key.WithValue("v"))))
	runSet(t, s, parent, ks)

	resolverPhase := globalAtPhase(plugin.PhaseResolver)
	require.Equal(t, plugin.Success, s.Set(resolverPhase, keyset.New(0), parent))
	tmpName, ok := s.GetFunction("filename")
	require.True(t, ok)
	require.NotEqual(t, path, tmpName)

	storagePhase := globalAtPhase(plugin.PhaseStorage)
	require.Equal(t, plugin.Success, s.Set(storagePhase, ks, parent))
	_, err := os.Stat(tmpName.(string))
	require.NoError(t, err)

	rollbackPhase := globalAtPhase(plugin.PhaseRollback)
	require.Equal(t, plugin.Success, s.Error(rollbackPhase, ks, parent))
	postRollbackPhase := globalAtPhase(plugin.PhasePostRollback)
	require.Equal(t, plugin.Success, s.Error(postRollbackPhase, ks, parent))

	_, err = os.Stat(tmpName.(string))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path)
	require.NoError(t, err, "rollback must not touch the already-committed real file")
}
