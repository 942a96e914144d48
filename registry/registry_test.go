package registry

import (
	"errors"
	"testing"

	"github.com/elektrago/kdb/key"
	kplugin "github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/keyset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInstance struct {
	closed  bool
	failErr error
}

func (f *fakeInstance) Close(errorKey *key.Key) error { f.closed = true; return f.failErr }
func (f *fakeInstance) Init(*keyset.KeySet, *key.Key) kplugin.Result                { return kplugin.Success }
func (f *fakeInstance) Get(*keyset.KeySet, *keyset.KeySet, *key.Key) kplugin.Result                 { return kplugin.Success }
func (f *fakeInstance) Set(*keyset.KeySet, *keyset.KeySet, *key.Key) kplugin.Result                 { return kplugin.Success }
func (f *fakeInstance) Commit(*keyset.KeySet, *keyset.KeySet, *key.Key) kplugin.Result              { return kplugin.Success }
func (f *fakeInstance) Error(*keyset.KeySet, *keyset.KeySet, *key.Key) kplugin.Result               { return kplugin.Success }
func (f *fakeInstance) GetFunction(name string) (interface{}, bool)                 { return nil, false }

func TestStaticRegisterAndLoad(t *testing.T) {
	inst := &fakeInstance{}
	Register("test/fake", kplugin.FactoryFunc(func(cfg *keyset.KeySet, errKey *key.Key) (kplugin.Instance, error) {
		return inst, nil
	}))
	r := New(0)
	f, err := r.Load("test/fake", "")
	require.NoError(t, err)
	got, err := f.Open(nil, nil)
	require.NoError(t, err)
	assert.Same(t, inst, got)
}

func TestLoadUnknownFails(t *testing.T) {
	r := New(0)
	_, err := r.Load("does/not/exist", "")
	var lf *ErrModuleLoadFailure
	assert.ErrorAs(t, err, &lf)
}

func TestTrackAndCloseAll(t *testing.T) {
	r := New(0)
	a := &fakeInstance{}
	b := &fakeInstance{failErr: errors.New("boom")}
	idA := r.Track("a", a)
	idB := r.Track("b", b)
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, 2, r.OpenedCount())

	errs := r.CloseAll(nil)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	require.Len(t, errs, 1)
	assert.Equal(t, 0, r.OpenedCount())
}
