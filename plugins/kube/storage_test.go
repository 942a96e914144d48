package kube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
)

func TestConfigKeysRequiresNamespaceAndName(t *testing.T) {
	cfg := keyset.New(0)
	_, _, _, err := configKeys(cfg)
	require.Error(t, err)

	require.NoError(t, cfg.Append(key.MustNew("user:/namespace", key.WithValue("default"))))
	_, _, _, err = configKeys(cfg)
	require.Error(t, err)

	require.NoError(t, cfg.Append(key.MustNew("user:/name", key.WithValue("app-config"))))
	ns, name, kc, err := configKeys(cfg)
	require.Nil(t, err)
	assert.Equal(t, "default", ns)
	assert.Equal(t, "app-config", name)
	assert.Empty(t, kc)
}

func TestConfigKeysReadsOptionalKubeconfig(t *testing.T) {
	cfg := keyset.New(0)
	require.NoError(t, cfg.Append(key.MustNew("user:/namespace", key.WithValue("default"))))
	require.NoError(t, cfg.Append(key.MustNew("user:/name", key.WithValue("app-config"))))
	require.NoError(t, cfg.Append(key.MustNew("user:/kubeconfig", key.WithValue("/home/user/.kube/config"))))

	_, _, kc, err := configKeys(cfg)
	require.Nil(t, err)
	assert.Equal(t, "/home/user/.kube/config", kc)
}
