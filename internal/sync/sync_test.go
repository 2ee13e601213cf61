package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriora/onedrivefs/internal/cache"
	"github.com/auriora/onedrivefs/internal/graph"
	"github.com/auriora/onedrivefs/internal/graph/mock"
	"github.com/auriora/onedrivefs/internal/store"
)

func newTestProcessor(t *testing.T) (*Processor, *store.Store, *mock.Client, *cache.Cache) {
	t.Helper()
	st := newTestStore(t)
	client := mock.New()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	return New(client, st, c, Config{DownloadFolders: []string{"/docs"}}), st, client, c
}

func TestProcessorAppliesRemoteCreate(t *testing.T) {
	p, st, _, _ := newTestProcessor(t)

	_, err := st.EnqueueProcessing("r1", store.OpCreate, store.ChangeRemote, store.Item{
		RemoteID: "r1", Name: "a.txt", ParentRemoteID: "root", ETag: "e1", Kind: store.KindFile,
	})
	require.NoError(t, err)

	require.NoError(t, p.RunCycle(context.Background()))

	item, err := st.GetByRemoteID("r1")
	require.NoError(t, err)
	assert.Equal(t, store.SyncSynced, item.SyncState)
	assert.Equal(t, store.DownloadAbsent, item.DownloadState, "outside a configured download folder, a new file stays a placeholder")

	pending, err := st.NextUnprocessed(store.ChangeRemote)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessorEagerlyDownloadsConfiguredFolder(t *testing.T) {
	p, st, client, _ := newTestProcessor(t)
	client.SeedContent("r1", []byte("hello"))

	folder := store.Item{RemoteID: "folder1", Name: "docs", Kind: store.KindFolder, ParentInode: store.RootInode, ParentRemoteID: "root"}
	require.NoError(t, st.Upsert(&folder))

	_, err := st.EnqueueProcessing("r1", store.OpCreate, store.ChangeRemote, store.Item{
		RemoteID: "r1", Name: "a.txt", ParentRemoteID: "folder1", ParentInode: folder.Inode, ETag: "e1", Kind: store.KindFile,
	})
	require.NoError(t, err)

	require.NoError(t, p.RunCycle(context.Background()))

	_, hasDownload := st.GetActiveDownload("r1")
	assert.True(t, hasDownload, "a file under a configured download folder must be queued for download on create")
}

func TestProcessorLocalCreateRekeysToRealID(t *testing.T) {
	p, st, _, c := newTestProcessor(t)

	local := store.Item{RemoteID: "local-1", Name: "new.txt", ParentInode: store.RootInode, ParentRemoteID: "root", Kind: store.KindFile}
	require.NoError(t, st.Upsert(&local))
	require.NoError(t, c.Write("local-1", []byte("content")))

	_, err := st.EnqueueProcessing("local-1", store.OpCreate, store.ChangeLocal, local)
	require.NoError(t, err)

	require.NoError(t, p.RunCycle(context.Background()))

	_, err = st.GetByRemoteID("local-1")
	assert.Error(t, err, "the temp id must no longer resolve after rekey")

	byPath, err := st.GetByPath("/new.txt")
	require.NoError(t, err)
	assert.NotEqual(t, "local-1", byPath.RemoteID)
	assert.Equal(t, store.SyncSynced, byPath.SyncState)
	assert.True(t, c.Has(byPath.RemoteID))
}

func TestProcessorRemoteDeleteCascadesToChildren(t *testing.T) {
	p, st, _, c := newTestProcessor(t)

	folder := store.Item{RemoteID: "folder1", Name: "docs", Kind: store.KindFolder, ParentInode: store.RootInode, ParentRemoteID: "root"}
	require.NoError(t, st.Upsert(&folder))
	child := store.Item{RemoteID: "r1", Name: "a.txt", ParentInode: folder.Inode, ParentRemoteID: "folder1"}
	require.NoError(t, st.Upsert(&child))
	require.NoError(t, c.Write("r1", []byte("x")))

	_, err := st.EnqueueProcessing("folder1", store.OpDelete, store.ChangeRemote, store.Item{RemoteID: "folder1"})
	require.NoError(t, err)

	require.NoError(t, p.RunCycle(context.Background()))

	deletedFolder, err := st.GetByRemoteID("folder1")
	require.NoError(t, err)
	assert.True(t, deletedFolder.Deleted)

	deletedChild, err := st.GetByRemoteID("r1")
	require.NoError(t, err)
	assert.True(t, deletedChild.Deleted)
	assert.False(t, c.Has("r1"), "cascading delete evicts cached blobs")
}

func TestProcessorLocalMovePatchesRemote(t *testing.T) {
	p, st, client, _ := newTestProcessor(t)

	dest := store.Item{RemoteID: "folder1", Name: "archive", Kind: store.KindFolder, ParentInode: store.RootInode, ParentRemoteID: "root"}
	require.NoError(t, st.Upsert(&dest))
	client.Seed(graph.RemoteItem{ID: "folder1", Name: "archive", ParentID: "root", IsFolder: true})

	file := store.Item{RemoteID: "r1", Name: "a.txt", ParentInode: store.RootInode, ParentRemoteID: "root"}
	require.NoError(t, st.Upsert(&file))
	client.Seed(graph.RemoteItem{ID: "r1", Name: "a.txt", ParentID: "root", ETag: "r1-v1"})

	_, err := st.EnqueueProcessing("r1", store.OpMove, store.ChangeLocal, store.Item{
		RemoteID: "r1", Name: "a.txt", ParentInode: dest.Inode, ParentRemoteID: "folder1",
	})
	require.NoError(t, err)

	require.NoError(t, p.RunCycle(context.Background()))

	moved, err := st.GetByRemoteID("r1")
	require.NoError(t, err)
	assert.Equal(t, dest.Inode, moved.ParentInode)
	assert.Equal(t, "/archive/a.txt", moved.VirtualPath)
}

func TestProcessorConflictedUpdateReachesConflictedStatus(t *testing.T) {
	p, st, _, _ := newTestProcessor(t)

	item := store.Item{
		RemoteID: "r1", Name: "a.txt", ParentInode: store.RootInode, ParentRemoteID: "root",
		Kind: store.KindFile, ETag: "e1", SyncState: store.SyncDirty,
	}
	require.NoError(t, st.Upsert(&item))

	// A local edit is still pending...
	_, err := st.EnqueueProcessing("r1", store.OpUpdate, store.ChangeLocal, item)
	require.NoError(t, err)

	// ...while the remote side reports its own concurrent edit of the same item.
	_, err = st.EnqueueProcessing("r1", store.OpUpdate, store.ChangeRemote, store.Item{
		RemoteID: "r1", Name: "a.txt", ParentRemoteID: "root", ETag: "e2", Kind: store.KindFile,
	})
	require.NoError(t, err)

	require.NoError(t, p.RunCycle(context.Background()))

	conflicted, err := st.CountConflicted()
	require.NoError(t, err)
	assert.Equal(t, 1, conflicted, "a remote update against a locally-dirty item must reach StatusConflicted, not apply silently")

	pending, err := st.NextUnprocessed(store.ChangeRemote)
	require.NoError(t, err)
	assert.Empty(t, pending, "a conflicted item is terminal, not left queued as unprocessed")
}

func TestEnsureDownloadedDeduplicatesConcurrentCallers(t *testing.T) {
	p, st, client, c := newTestProcessor(t)
	client.SeedContent("r1", []byte("payload"))
	item := store.Item{RemoteID: "r1", Name: "a.txt", ParentInode: store.RootInode, Kind: store.KindFile}
	require.NoError(t, st.Upsert(&item))

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { done <- p.EnsureDownloaded(context.Background(), item) }()
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)
	assert.True(t, c.Has("r1"))
}
