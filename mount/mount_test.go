package mount

import (
	"sync"
	"testing"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	kplugin "github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstance is a no-op plugin.Instance double shared by every mount test.
type fakeInstance struct {
	name    string
	closed  bool
	openCfg *keyset.KeySet
}

func (f *fakeInstance) Close(errorKey *key.Key) error                    { f.closed = true; return nil }
func (f *fakeInstance) Init(*keyset.KeySet, *key.Key) kplugin.Result     { return kplugin.Success }
func (f *fakeInstance) Get(*keyset.KeySet, *keyset.KeySet, *key.Key) kplugin.Result      { return kplugin.Success }
func (f *fakeInstance) Set(*keyset.KeySet, *keyset.KeySet, *key.Key) kplugin.Result      { return kplugin.Success }
func (f *fakeInstance) Commit(*keyset.KeySet, *keyset.KeySet, *key.Key) kplugin.Result   { return kplugin.Success }
func (f *fakeInstance) Error(*keyset.KeySet, *keyset.KeySet, *key.Key) kplugin.Result    { return kplugin.Success }
func (f *fakeInstance) GetFunction(name string) (interface{}, bool)      { return nil, false }

var registerOnce sync.Once

// registerFakePlugins installs the static plugin names mount's parsing and
// bootstrap paths reference, so tests don't need the real plugins/file or
// plugins/list implementations.
func registerFakePlugins() {
	registerOnce.Do(func() {
		for _, name := range []string{"file/resolver", "file/storage", "list", "my/plugin"} {
			n := name
			registry.Register(n, kplugin.FactoryFunc(func(cfg *keyset.KeySet, errorKey *key.Key) (kplugin.Instance, error) {
				return &fakeInstance{name: n, openCfg: cfg}, nil
			}))
		}
	})
}

// TestProcessContractMountGlobalRequiresListPlugin must run before any other
// test registers a static "list" plugin (registry.Register has no
// unregister and is process-global), so it stays first in this file.
func TestProcessContractMountGlobalRequiresListPlugin(t *testing.T) {
	reg := registry.New(0)
	registry.Register("only-target", kplugin.FactoryFunc(func(cfg *keyset.KeySet, errorKey *key.Key) (kplugin.Instance, error) {
		return &fakeInstance{}, nil
	}))

	contract := keyset.New(0)
	require.NoError(t, contract.Append(key.MustNew("system:/elektra/contract/mountglobal/only-target/enabled", key.WithValue("1"))))

	global := keyset.New(0)
	_, err := ProcessContract(contract, global, reg, nil)
	assert.Error(t, err)
}

func TestParseMountpoints(t *testing.T) {
	registerFakePlugins()
	reg := registry.New(0)

	cfg := keyset.New(0)
	base := "system:/elektra/mountpoints/user:" + `\/app`
	require.NoError(t, cfg.Append(key.MustNew(base+"/backend", key.WithValue("#0"))))
	require.NoError(t, cfg.Append(key.MustNew(base+"/plugins/#0/name", key.WithValue("file/storage"))))
	require.NoError(t, cfg.Append(key.MustNew(base+"/plugins/#0/config/path", key.WithValue("/tmp/app.conf"))))

	recs, err := ParseMountpoints(cfg, reg, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "user:/app", rec.Prefix.Name())
	require.Len(t, rec.Pipeline, 1)
	assert.NotNil(t, rec.Backend)
}

func TestParseMountpointsMissingBackendFails(t *testing.T) {
	registerFakePlugins()
	reg := registry.New(0)

	cfg := keyset.New(0)
	base := "system:/elektra/mountpoints/user:" + `\/app`
	require.NoError(t, cfg.Append(key.MustNew(base+"/plugins/#0/name", key.WithValue("file/storage"))))

	_, err := ParseMountpoints(cfg, reg, nil)
	assert.Error(t, err)
}

func TestBootstrapRecord(t *testing.T) {
	registerFakePlugins()
	reg := registry.New(0)

	rec, err := NewBootstrapRecord(reg, nil)
	require.NoError(t, err)
	assert.Equal(t, "system:/elektra", rec.Prefix.Name())
	assert.Len(t, rec.Pipeline, 2)
	assert.Equal(t, 2, reg.OpenedCount())
}

func TestHardcodedRecords(t *testing.T) {
	registerFakePlugins()
	reg := registry.New(0)

	recs, err := HardcodedRecords(reg, nil, "/tmp/kdb")
	require.NoError(t, err)
	// spec, system, user, dir root mountpoints + 2 introspection mountpoints.
	assert.Len(t, recs, 6)
	for _, r := range recs {
		assert.NotNil(t, r.Backend)
	}
}

func TestProcessContractMergesGlobalKeyset(t *testing.T) {
	registerFakePlugins()
	reg := registry.New(0)

	contract := keyset.New(0)
	require.NoError(t, contract.Append(key.MustNew("system:/elektra/contract/globalkeyset/app/name", key.WithValue("demo"))))

	global := keyset.New(0)
	_, err := ProcessContract(contract, global, reg, nil)
	require.NoError(t, err)

	got, err := global.LookupByName("system:/elektra/globalkeyset/app/name", keyset.LookupNone)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "demo", got.Value())
}

func TestProcessContractMountGlobalMountsEveryPosition(t *testing.T) {
	registerFakePlugins()
	reg := registry.New(0)

	contract := keyset.New(0)
	require.NoError(t, contract.Append(key.MustNew("system:/elektra/contract/mountglobal/my\\/plugin/enabled", key.WithValue("1"))))

	global := keyset.New(0)
	globals, err := ProcessContract(contract, global, reg, nil)
	require.NoError(t, err)
	assert.Len(t, globals, len(allPositions))
	for _, pos := range allPositions {
		assert.Len(t, globals[pos], 1)
	}
}
