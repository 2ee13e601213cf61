package sync

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

func TestDetectRemoteCreateOnCreate(t *testing.T) {
	st := newTestStore(t)
	existing := store.Item{RemoteID: "r1", Name: "a.txt", ParentInode: store.RootInode, ParentRemoteID: "root"}
	require.NoError(t, st.Upsert(&existing))

	pi := store.ProcessingItem{
		RemoteID: "r2",
		Op:       store.OpCreate,
		Payload:  store.Item{Name: "a.txt", ParentInode: store.RootInode},
	}
	tags := DetectRemote(st, pi)
	assert.Contains(t, tags, ConflictCreateOnCreate)
}

func TestAutoResolveModifyOnParentDelete(t *testing.T) {
	st := newTestStore(t)
	client := mock.New()

	folder := store.Item{RemoteID: "folder1", Name: "docs", Kind: store.KindFolder, ParentInode: store.RootInode, ParentRemoteID: "root"}
	require.NoError(t, st.Upsert(&folder))
	client.Seed(graph.RemoteItem{ID: "folder1", Name: "docs", ParentID: "root", IsFolder: true, ETag: "f-v1"})

	file := store.Item{RemoteID: "r1", Name: "a.txt", ParentInode: folder.Inode, ParentRemoteID: "folder1", ETag: "e1"}
	require.NoError(t, st.Upsert(&file))

	// Parent locally deleted out from under a still-pending remote update.
	require.NoError(t, st.MarkDeleted("folder1"))

	pi := store.ProcessingItem{
		RemoteID: "r1",
		Op:       store.OpUpdate,
		Payload:  store.Item{ETag: "e2", ParentRemoteID: "folder1", ParentInode: folder.Inode},
	}
	tags := DetectRemote(st, pi)
	require.Contains(t, tags, ConflictModifyOnParentDelete)

	resolved, err := autoResolve(context.Background(), client, st, pi, tags)
	require.NoError(t, err)
	assert.True(t, resolved)

	restored, err := st.GetByRemoteID("folder1")
	require.NoError(t, err)
	assert.False(t, restored.Deleted)
}

func TestAutoResolveLeavesUnrelatedConflictUnresolved(t *testing.T) {
	st := newTestStore(t)
	client := mock.New()

	sibling := store.Item{RemoteID: "r1", Name: "a.txt", ParentInode: store.RootInode, ParentRemoteID: "root"}
	require.NoError(t, st.Upsert(&sibling))

	pi := store.ProcessingItem{
		RemoteID: "r2",
		Op:       store.OpCreate,
		Payload:  store.Item{Name: "a.txt", ParentInode: store.RootInode, ParentRemoteID: "root"},
	}
	tags := DetectRemote(st, pi)
	require.Contains(t, tags, ConflictCreateOnCreate)

	resolved, err := autoResolve(context.Background(), client, st, pi, tags)
	require.NoError(t, err)
	assert.False(t, resolved, "CreateOnCreate never auto-resolves")
}
