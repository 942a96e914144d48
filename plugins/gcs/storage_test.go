package gcs

import (
	"testing"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigKeysRequiresBucketAndObject(t *testing.T) {
	empty := keyset.New(0)
	_, _, err := configKeys(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user:/bucket")

	withBucket := keyset.New(0)
	require.NoError(t, withBucket.Append(key.MustNew("user:/bucket", key.WithValue("cfg-bucket"))))
	_, _, err = configKeys(withBucket)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user:/object")

	complete := keyset.New(0)
	require.NoError(t, complete.Append(key.MustNew("user:/bucket", key.WithValue("cfg-bucket"))))
	require.NoError(t, complete.Append(key.MustNew("user:/object", key.WithValue("cfg-object"))))
	bucket, object, err := configKeys(complete)
	require.Nil(t, err)
	assert.Equal(t, "cfg-bucket", bucket)
	assert.Equal(t, "cfg-object", object)
}

func TestIsPreconditionFailed(t *testing.T) {
	assert.False(t, isPreconditionFailed(nil))
	assert.True(t, isPreconditionFailed(errPrecondition{}))
}

type errPrecondition struct{}

func (errPrecondition) Error() string { return "googleapi: Error 412: conditionNotMet" }
