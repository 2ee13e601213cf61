package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriora/onedrivefs/internal/graph"
	"github.com/auriora/onedrivefs/internal/graph/mock"
	"github.com/auriora/onedrivefs/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "metadata.db"), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClassifyCreate(t *testing.T) {
	st := newTestStore(t)
	client := mock.New()
	ing := New(client, st)

	client.QueueDelta(graph.RemoteItem{ID: "r1", Name: "a.txt", ParentID: "root", ETag: "e1"})

	n, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := st.NextUnprocessed(store.ChangeRemote)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.OpCreate, pending[0].Op)
}

func TestIdempotentRedelivery(t *testing.T) {
	st := newTestStore(t)
	client := mock.New()
	ing := New(client, st)

	item := graph.RemoteItem{ID: "r1", Name: "a.txt", ParentID: "root", ETag: "e1"}
	client.QueueDelta(item)
	_, err := ing.Run(context.Background())
	require.NoError(t, err)

	// Redeliver the identical item before it has been processed: this must
	// not create a second queue entry.
	client.QueueDelta(item)
	_, err = ing.Run(context.Background())
	require.NoError(t, err)

	pending, err := st.NextUnprocessed(store.ChangeRemote)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "re-delivering an identical delta must not duplicate the queue entry")
}

func TestCursorPersistedOnlyAfterCommit(t *testing.T) {
	st := newTestStore(t)
	client := mock.New()
	ing := New(client, st)

	client.QueueDelta(graph.RemoteItem{ID: "r1", Name: "a.txt", ParentID: "root", ETag: "e1"})
	_, err := ing.Run(context.Background())
	require.NoError(t, err)

	cursor, err := st.ReadCursor()
	require.NoError(t, err)
	assert.NotEmpty(t, cursor.Token)
}

func TestDeleteClassification(t *testing.T) {
	st := newTestStore(t)
	client := mock.New()
	ing := New(client, st)

	client.Seed(graph.RemoteItem{ID: "r1", Name: "a.txt", ParentID: "root", ETag: "e1"})
	existing := store.Item{RemoteID: "r1", Name: "a.txt", ParentRemoteID: "root", ETag: "e1", ParentInode: store.RootInode}
	require.NoError(t, st.Upsert(&existing))

	client.QueueDelta(graph.RemoteItem{ID: "r1", Name: "a.txt", ParentID: "root", ETag: "e1", Deleted: true})
	_, err := ing.Run(context.Background())
	require.NoError(t, err)

	pending, err := st.NextUnprocessed(store.ChangeRemote)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.OpDelete, pending[0].Op)
}
