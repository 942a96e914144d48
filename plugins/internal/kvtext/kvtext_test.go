package kvtext

import (
	"testing"

	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrips(t *testing.T) {
	ks := keyset.New(0)
	require.NoError(t, ks.Append(key.MustNew("user:/app/host", key.WithValue("db1"))))
	require.NoError(t, ks.Append(key.MustNew("user:/app/note", key.WithValue("line one\\nline two"))))

	data := Encode(ks)

	got := keyset.New(0)
	require.NoError(t, Decode(data, got))

	host, err := got.LookupByName("user:/app/host", keyset.LookupNone)
	require.NoError(t, err)
	require.NotNil(t, host)
	assert.Equal(t, "db1", host.Value())

	note, err := got.LookupByName("user:/app/note", keyset.LookupNone)
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, "line one\\nline two", note.Value())
}

func TestDecodeSkipsBlankAndCommentLines(t *testing.T) {
	got := keyset.New(0)
	require.NoError(t, Decode([]byte("\n# a comment\nuser:/k=v\n"), got))
	assert.Equal(t, 1, got.Len())
}
