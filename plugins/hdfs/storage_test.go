package hdfs

import (
	"testing"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigKeysRequiresNamenodeAndPath(t *testing.T) {
	empty := keyset.New(0)
	_, _, err := configKeys(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user:/namenode")

	withNamenode := keyset.New(0)
	require.NoError(t, withNamenode.Append(key.MustNew("user:/namenode", key.WithValue("nn:8020"))))
	_, _, err = configKeys(withNamenode)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user:/path")

	complete := keyset.New(0)
	require.NoError(t, complete.Append(key.MustNew("user:/namenode", key.WithValue("nn:8020"))))
	require.NoError(t, complete.Append(key.MustNew("user:/path", key.WithValue("/etc/app.conf"))))
	namenode, path, err := configKeys(complete)
	require.Nil(t, err)
	assert.Equal(t, "nn:8020", namenode)
	assert.Equal(t, "/etc/app.conf", path)
}

func TestWitnessEqual(t *testing.T) {
	a := witness{modTime: 100, size: 10}
	b := witness{modTime: 100, size: 10}
	c := witness{modTime: 200, size: 10}
	assert.True(t, a.equal(b))
	assert.False(t, a.equal(c))
}
