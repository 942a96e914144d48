package session

import (
	"sync"
	"testing"

	"github.com/elektrago/kdb/backend"
	"github.com/elektrago/kdb/cache"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/metrics"
	"github.com/elektrago/kdb/mount"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend doubles as both the resolver and the storage plugin of a
// one-plugin pipeline: it reads the phase the driver wrote to global to
// decide what to do, matching how a real plugin discriminates which
// get-side/set-side phase a single Get/Set call represents.
type fakeBackend struct {
	mu sync.Mutex

	keyName        string
	valueOnStorage string

	failGetPhase    plugin.Phase
	failSetPhase    plugin.Phase
	failCommitPhase plugin.Phase

	resolverNoUpdate bool
	conflictOnSet    bool

	setCalls    []plugin.Phase
	commitCalls []plugin.Phase
	errorCalls  []plugin.Phase
	closed      bool
}

func currentPhase(global *keyset.KeySet) plugin.Phase {
	k, _ := global.LookupByName(plugin.PhaseMetaName, keyset.LookupNone)
	if k == nil {
		return ""
	}
	return plugin.Phase(k.Value())
}

func (f *fakeBackend) Close(*key.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBackend) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }

func (f *fakeBackend) Get(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	phase := currentPhase(global)
	if phase == plugin.PhaseResolver && f.resolverNoUpdate {
		return plugin.NoUpdate
	}
	if phase == f.failGetPhase {
		return plugin.Error
	}
	if phase == plugin.PhaseStorage && f.valueOnStorage != "" {
		_ = ks.Append(key.MustNew(f.keyName, key.WithValue(f.valueOnStorage)))
	}
	return plugin.Success
}

func (f *fakeBackend) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	phase := currentPhase(global)
	f.mu.Lock()
	f.setCalls = append(f.setCalls, phase)
	f.mu.Unlock()
	if phase == f.failSetPhase {
		return plugin.Error
	}
	return plugin.Success
}

func (f *fakeBackend) Commit(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	phase := currentPhase(global)
	f.mu.Lock()
	f.commitCalls = append(f.commitCalls, phase)
	f.mu.Unlock()
	if phase == f.failCommitPhase {
		return plugin.Error
	}
	return plugin.Success
}

func (f *fakeBackend) Error(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	phase := currentPhase(global)
	f.mu.Lock()
	f.errorCalls = append(f.errorCalls, phase)
	f.mu.Unlock()
	return plugin.Success
}

func (f *fakeBackend) GetFunction(name string) (interface{}, bool) {
	switch name {
	case "filename":
		return "fake://" + f.keyName, true
	case "conflict":
		return f.conflictOnSet, true
	}
	return nil, false
}

func newFakeRecord(name string, prefix *key.Key, fake *fakeBackend) *mount.Record {
	rec := mount.NewRecord(name, prefix)
	rec.Pipeline = []plugin.Instance{fake}
	rec.Backend = fake
	return rec
}

func newTestHandle(t *testing.T, recs ...*mount.Record) *Handle {
	t.Helper()
	table := mount.NewTable()
	for _, r := range recs {
		require.NoError(t, table.Add(r))
	}
	global := keyset.New(0)
	return &Handle{
		Registry: registry.New(0),
		Global:   global,
		Table:    table,
		Globals:  mount.GlobalPlugins{},
		Driver:   backend.New(global),
		Cache:    cache.Noop{},
		Metrics:  (*metrics.Registry)(nil),
	}
}

func TestGetPopulatesFromStorageAndSetsState(t *testing.T) {
	fake := &fakeBackend{keyName: "user:/app/k", valueOnStorage: "v"}
	rec := newFakeRecord("app", key.MustNew("user:/app"), fake)
	h := newTestHandle(t, rec)

	parent := key.MustNew("user:/app")
	ks := keyset.New(0)

	rc := h.Get(ks, parent)
	assert.Equal(t, 1, rc)

	got, err := ks.LookupByName("user:/app/k", keyset.LookupNone)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v", got.Value())
	assert.Equal(t, StateGotten, h.stateFor(parent))
}

func TestGetNoUpdateShortCircuits(t *testing.T) {
	fake := &fakeBackend{resolverNoUpdate: true}
	rec := newFakeRecord("app", key.MustNew("user:/app"), fake)
	h := newTestHandle(t, rec)

	parent := key.MustNew("user:/app")
	ks := keyset.New(0)

	rc := h.Get(ks, parent)
	assert.Equal(t, 0, rc)
	assert.Equal(t, 0, ks.Len())
	assert.Equal(t, StateGotten, h.stateFor(parent))
}

func TestSetBeforeGetIsInterfaceError(t *testing.T) {
	fake := &fakeBackend{}
	rec := newFakeRecord("app", key.MustNew("user:/app"), fake)
	h := newTestHandle(t, rec)

	parent := key.MustNew("user:/app")
	ks := keyset.New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/app/k", key.WithValue("x"))))

	rc := h.Set(ks, parent)
	assert.Equal(t, -1, rc)
	kind, ok := parent.Meta("error/kind")
	require.True(t, ok)
	assert.Equal(t, "InterfaceError", kind)
}

// TestSetConflictTransitionsToMustReget covers scenario S4: a resolver that
// flags a concurrent writer during set must move the handle to mustReget,
// and a subsequent get-then-set must then succeed.
func TestSetConflictTransitionsToMustReget(t *testing.T) {
	fake := &fakeBackend{keyName: "user:/app/k", valueOnStorage: "v"}
	rec := newFakeRecord("app", key.MustNew("user:/app"), fake)
	h := newTestHandle(t, rec)

	parent := key.MustNew("user:/app")
	ks := keyset.New(0)
	require.Equal(t, 1, h.Get(ks, parent))

	fake.failSetPhase = plugin.PhaseResolver
	fake.conflictOnSet = true
	require.NoError(t, ks.Append(key.MustNew("user:/app/k", key.WithValue("v2"))))

	rc := h.Set(ks, parent)
	assert.Equal(t, -1, rc)
	kind, ok := parent.Meta("error/kind")
	require.True(t, ok)
	assert.Equal(t, "ConflictingState", kind)
	assert.Equal(t, StateMustReget, h.stateFor(parent))

	// retry: get then set must succeed now that the resolver is quiet.
	fake.failSetPhase = ""
	fake.conflictOnSet = false
	require.Equal(t, 1, h.Get(ks, parent))
	require.NoError(t, ks.Append(key.MustNew("user:/app/k", key.WithValue("v3"))))
	assert.Equal(t, 1, h.Set(ks, parent))
}

// TestSetRollbackRunsAcrossEveryCommittedBackend covers scenario S5: one of
// two mountpoints fails during storage, and rollback must still run across
// every backend in the commit set, not just the failing one.
func TestSetRollbackRunsAcrossEveryCommittedBackend(t *testing.T) {
	fakeA := &fakeBackend{keyName: "user:/app/a/k", valueOnStorage: "a"}
	fakeB := &fakeBackend{keyName: "user:/app/b/k", valueOnStorage: "b"}
	recA := newFakeRecord("app/a", key.MustNew("user:/app/a"), fakeA)
	recB := newFakeRecord("app/b", key.MustNew("user:/app/b"), fakeB)
	h := newTestHandle(t, recA, recB)

	parent := key.MustNew("user:/app")
	ks := keyset.New(0)
	require.Equal(t, 1, h.Get(ks, parent))

	fakeA.failSetPhase = plugin.PhaseStorage
	require.NoError(t, ks.Append(key.MustNew("user:/app/a/k", key.WithValue("a2"))))
	require.NoError(t, ks.Append(key.MustNew("user:/app/b/k", key.WithValue("b2"))))

	rc := h.Set(ks, parent)
	assert.Equal(t, -1, rc)
	kind, ok := parent.Meta("error/kind")
	require.True(t, ok)
	assert.Equal(t, "PluginMisbehavior", kind)

	assert.NotEmpty(t, fakeA.errorCalls)
	assert.NotEmpty(t, fakeB.errorCalls)
	assert.Equal(t, StateGotten, h.stateFor(parent))
}

func TestCloseIsIdempotentAndClosesEveryTrackedInstance(t *testing.T) {
	fake := &fakeBackend{}
	rec := newFakeRecord("app", key.MustNew("user:/app"), fake)
	h := newTestHandle(t, rec)
	h.Registry.Track("fake", fake)

	errs := h.Close(nil)
	assert.Empty(t, errs)
	assert.True(t, fake.closed)
	assert.True(t, h.closed)

	// idempotent: a second Close must not attempt to close anything again.
	fake.closed = false
	errs = h.Close(nil)
	assert.Empty(t, errs)
	assert.False(t, fake.closed)
}
