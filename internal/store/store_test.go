package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "metadata.db"), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRootInvariant(t *testing.T) {
	s := newTestStore(t)
	root, err := s.GetByInode(RootInode)
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.Equal(t, KindFolder, root.Kind)
	assert.Equal(t, uint64(0), root.ParentInode)
}

func TestUpsertComputesVirtualPath(t *testing.T) {
	s := newTestStore(t)
	docs := Item{RemoteID: "r1", Name: "docs", Kind: KindFolder, ParentInode: RootInode, Source: SourceRemote}
	require.NoError(t, s.Upsert(&docs))
	assert.Equal(t, "/docs", docs.VirtualPath)

	file := Item{RemoteID: "r2", Name: "a.txt", Kind: KindFile, ParentInode: docs.Inode, Source: SourceRemote}
	require.NoError(t, s.Upsert(&file))
	assert.Equal(t, "/docs/a.txt", file.VirtualPath)
}

func TestRenameRecomputesDescendants(t *testing.T) {
	s := newTestStore(t)
	docs := Item{RemoteID: "r1", Name: "docs", Kind: KindFolder, ParentInode: RootInode}
	require.NoError(t, s.Upsert(&docs))
	child := Item{RemoteID: "r2", Name: "a.txt", Kind: KindFile, ParentInode: docs.Inode}
	require.NoError(t, s.Upsert(&child))

	docs.Name = "documents"
	require.NoError(t, s.Upsert(&docs))
	assert.Equal(t, "/documents", docs.VirtualPath)

	reloaded, err := s.GetByInode(child.Inode)
	require.NoError(t, err)
	assert.Equal(t, "/documents/a.txt", reloaded.VirtualPath, "descendant paths must follow a parent rename")
}

func TestNameUniquenessWithinParent(t *testing.T) {
	s := newTestStore(t)
	a := Item{RemoteID: "r1", Name: "dup.txt", Kind: KindFile, ParentInode: RootInode}
	require.NoError(t, s.Upsert(&a))
	b := Item{RemoteID: "r2", Name: "dup.txt", Kind: KindFile, ParentInode: RootInode}
	err := s.Upsert(&b)
	assert.Error(t, err, "two live siblings must not share a name")
}

func TestInodeStableAcrossRename(t *testing.T) {
	s := newTestStore(t)
	a := Item{RemoteID: "r1", Name: "old.txt", Kind: KindFile, ParentInode: RootInode}
	require.NoError(t, s.Upsert(&a))
	originalInode := a.Inode

	a.Name = "new.txt"
	require.NoError(t, s.Upsert(&a))
	assert.Equal(t, originalInode, a.Inode, "inode must survive rename")
}

func TestRekeyRewritesAllReferences(t *testing.T) {
	s := newTestStore(t)
	item := Item{RemoteID: "temp-1", Name: "n.txt", Kind: KindFile, ParentInode: RootInode, Source: SourceLocal}
	require.NoError(t, s.Upsert(&item))

	_, err := s.EnqueueProcessing("temp-1", OpCreate, ChangeLocal, item)
	require.NoError(t, err)
	_, err = s.EnqueueDownload("temp-1", item.Inode, 0)
	require.NoError(t, err)

	require.NoError(t, s.Rekey("temp-1", "real-1"))

	reloaded, err := s.GetByRemoteID("real-1")
	require.NoError(t, err)
	assert.Equal(t, item.Inode, reloaded.Inode)

	_, err = s.GetByRemoteID("temp-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.AssertNoReferences("temp-1"), "no queue entry may reference the old id after rekey")
}

func TestVacuumRemovesOldDoneItems(t *testing.T) {
	s := newTestStore(t)
	p, err := s.EnqueueProcessing("r1", OpUpdate, ChangeRemote, Item{RemoteID: "r1"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(p.ID, StatusDone))

	time.Sleep(time.Millisecond)
	removed, err := s.Vacuum(0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
