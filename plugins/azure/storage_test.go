package azure

import (
	"testing"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigKeysRequiresAllFour(t *testing.T) {
	empty := keyset.New(0)
	_, _, _, _, err := configKeys(empty)
	require.Error(t, err)

	cfg := keyset.New(0)
	require.NoError(t, cfg.Append(key.MustNew("user:/account", key.WithValue("acct"))))
	require.NoError(t, cfg.Append(key.MustNew("user:/accountKey", key.WithValue("key"))))
	require.NoError(t, cfg.Append(key.MustNew("user:/container", key.WithValue("cont"))))
	require.NoError(t, cfg.Append(key.MustNew("user:/blob", key.WithValue("cfg.conf"))))

	account, accountKey, container, blob, err := configKeys(cfg)
	require.Nil(t, err)
	assert.Equal(t, "acct", account)
	assert.Equal(t, "key", accountKey)
	assert.Equal(t, "cont", container)
	assert.Equal(t, "cfg.conf", blob)
}
