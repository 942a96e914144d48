package list

import (
	"testing"

	cuckoofilter "github.com/seiflotfy/cuckoofilter"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDelegate is a trivial plugin.Instance registered under a test-only
// name so list's mount/dispatch logic can be exercised without depending on
// a real storage backend.
type fakeDelegate struct {
	closed  bool
	getRes  plugin.Result
	setRes  plugin.Result
	calls   int
}

func (f *fakeDelegate) Close(*key.Key) error { f.closed = true; return nil }
func (f *fakeDelegate) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }
func (f *fakeDelegate) Get(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	f.calls++
	return f.getRes
}
func (f *fakeDelegate) Set(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	f.calls++
	return f.setRes
}
func (f *fakeDelegate) Commit(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}
func (f *fakeDelegate) Error(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}
func (f *fakeDelegate) GetFunction(string) (interface{}, bool) { return nil, false }

func init() {
	registry.Register("list-test/ok", plugin.FactoryFunc(func(*keyset.KeySet, *key.Key) (plugin.Instance, error) {
		return &fakeDelegate{getRes: plugin.Success, setRes: plugin.Success}, nil
	}))
	registry.Register("list-test/noupdate", plugin.FactoryFunc(func(*keyset.KeySet, *key.Key) (plugin.Instance, error) {
		return &fakeDelegate{getRes: plugin.NoUpdate, setRes: plugin.NoUpdate}, nil
	}))
}

func TestOpenMountsConfiguredDelegatesInOrder(t *testing.T) {
	cfg := keyset.New(0)
	require.NoError(t, cfg.Append(key.MustNew("user:/plugins/#0/name", key.WithValue("list-test/ok"))))
	require.NoError(t, cfg.Append(key.MustNew("user:/plugins/#1/name", key.WithValue("list-test/noupdate"))))

	inst, err := openList(cfg, nil)
	require.NoError(t, err)
	l := inst.(*listInstance)
	require.Len(t, l.delegates, 2)
	assert.Equal(t, "list-test/ok", l.delegates[0].name)
	assert.Equal(t, "list-test/noupdate", l.delegates[1].name)
}

func TestGetReturnsNoUpdateOnlyWhenEveryDelegateDoes(t *testing.T) {
	cfg := keyset.New(0)
	require.NoError(t, cfg.Append(key.MustNew("user:/plugins/#0/name", key.WithValue("list-test/noupdate"))))
	inst, err := openList(cfg, nil)
	require.NoError(t, err)

	parent := key.MustNew("user:/app")
	assert.Equal(t, plugin.NoUpdate, inst.Get(keyset.New(0), keyset.New(0), parent))
}

func TestGetReturnsErrorIfAnyDelegateErrors(t *testing.T) {
	registry.Register("list-test/erroring", plugin.FactoryFunc(func(*keyset.KeySet, *key.Key) (plugin.Instance, error) {
		return &fakeDelegate{getRes: plugin.Error}, nil
	}))
	cfg := keyset.New(0)
	require.NoError(t, cfg.Append(key.MustNew("user:/plugins/#0/name", key.WithValue("list-test/ok"))))
	require.NoError(t, cfg.Append(key.MustNew("user:/plugins/#1/name", key.WithValue("list-test/erroring"))))
	inst, err := openList(cfg, nil)
	require.NoError(t, err)

	parent := key.MustNew("user:/app")
	assert.Equal(t, plugin.Error, inst.Get(keyset.New(0), keyset.New(0), parent))
}

func TestMountRejectsDuplicateName(t *testing.T) {
	l := &listInstance{seen: cuckoofilter.NewFilter(initialCapacity)}
	require.NoError(t, l.mount("list-test/ok", keyset.New(0), nil))
	err := l.mount("list-test/ok", keyset.New(0), nil)
	require.Error(t, err)
}

func TestMountRejectsUnknownPlugin(t *testing.T) {
	l := &listInstance{seen: cuckoofilter.NewFilter(initialCapacity)}
	err := l.mount("list-test/does-not-exist", keyset.New(0), nil)
	require.Error(t, err)
}

func TestUnmountClosesAndRemovesDelegate(t *testing.T) {
	l := &listInstance{seen: cuckoofilter.NewFilter(initialCapacity)}
	require.NoError(t, l.mount("list-test/ok", keyset.New(0), nil))
	fake := l.delegates[0].inst.(*fakeDelegate)

	assert.True(t, l.unmount("list-test/ok", nil))
	assert.True(t, fake.closed)
	assert.Empty(t, l.delegates)
	assert.False(t, l.unmount("list-test/ok", nil))
}

func TestGetFunctionExposesMountAndUnmount(t *testing.T) {
	l := &listInstance{seen: cuckoofilter.NewFilter(initialCapacity)}
	mountFn, ok := l.GetFunction("mountplugin")
	require.True(t, ok)
	require.NoError(t, mountFn.(MountFunc)("list-test/ok", keyset.New(0), nil))
	require.Len(t, l.delegates, 1)

	unmountFn, ok := l.GetFunction("unmountplugin")
	require.True(t, ok)
	assert.True(t, unmountFn.(UnmountFunc)("list-test/ok", nil))
}
