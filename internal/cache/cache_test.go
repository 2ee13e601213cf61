package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadEvict(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Write("r1", []byte("helloworld")))
	assert.True(t, c.Has("r1"))

	data, err := c.Read("r1", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	size, err := c.Size("r1")
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)

	require.NoError(t, c.Evict("r1"))
	assert.False(t, c.Has("r1"))
}

func TestRekeyMovesBlob(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Write("temp-1", []byte("data")))
	require.NoError(t, c.Rekey("temp-1", "real-1"))

	assert.False(t, c.Has("temp-1"))
	assert.True(t, c.Has("real-1"))
}

func TestStageWriteThenCommit(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	tmp, err := c.StageWrite("r1")
	require.NoError(t, err)
	require.NoError(t, c.Commit(tmp, "r1"))
	assert.True(t, c.Has("r1"))
}

func TestEvictDefersWhilePinned(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Write("r1", []byte("data")))
	c.Pin("r1")

	require.NoError(t, c.Evict("r1"))
	assert.True(t, c.Has("r1"), "blob must survive eviction while a handle holds a pin")

	c.Unpin("r1")
	assert.False(t, c.Has("r1"), "deferred eviction must run once the last pin is released")
}

func TestUnpinWithoutPendingEvictIsNoop(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, c.Write("r1", []byte("data")))
	c.Pin("r1")
	c.Unpin("r1")
	assert.True(t, c.Has("r1"))
}
