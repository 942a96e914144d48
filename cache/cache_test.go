package cache

import (
	"testing"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopStoreNeverHits(t *testing.T) {
	var s Store = Noop{}
	_, _, ok := s.Lookup("user:/app", "user:/app")
	assert.False(t, ok)
	assert.NoError(t, s.Store("user:/app", "user:/app", WireSet{}, Witness{}))
}

func TestToWireSetAndBack(t *testing.T) {
	ks := keyset.New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/app/host", key.WithValue("db1"), key.WithMeta("type", "string"))))
	require.NoError(t, ks.Append(key.MustNew("user:/app/port", key.WithValue("5432"))))

	wire := ToWireSet(ks)
	require.Len(t, wire.Keys, 2)

	back, err := FromWireSet(wire)
	require.NoError(t, err)
	require.Equal(t, 2, back.Len())

	got, err := back.LookupByName("user:/app/host", keyset.LookupNone)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "db1", got.Value())
	v, _ := got.Meta("type")
	assert.Equal(t, "string", v)
}

func TestBuntStoreRoundTrip(t *testing.T) {
	store, err := OpenBunt(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ks := keyset.New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/app/host", key.WithValue("db1"))))
	wire := ToWireSet(ks)
	witness := Witness{ModTime: 1234, Size: 42}

	require.NoError(t, store.Store("user:/app", "user:/app", wire, witness))

	gotWire, gotWitness, ok := store.Lookup("user:/app", "user:/app")
	require.True(t, ok)
	assert.Equal(t, witness, gotWitness)
	require.Len(t, gotWire.Keys, 1)
	assert.Equal(t, "user:/app/host", gotWire.Keys[0].Name)
}

func TestBuntStoreMissReturnsNotOk(t *testing.T) {
	store, err := OpenBunt(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, _, ok := store.Lookup("user:/app", "user:/app")
	assert.False(t, ok)
}

func TestWitnessEqual(t *testing.T) {
	a := Witness{ModTime: 1, Size: 2}
	b := Witness{ModTime: 1, Size: 2}
	c := Witness{ModTime: 1, Size: 3}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
