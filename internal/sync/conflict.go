package sync

import (
	"context"
	"fmt"

	"github.com/auriora/onedrivefs/internal/graph"
	"github.com/auriora/onedrivefs/internal/store"
)

// DetectRemote inspects a remote-origin ProcessingItem against current local
// state and returns every conflict tag that applies.
func DetectRemote(st *store.Store, pi store.ProcessingItem) []ConflictTag {
	var tags []ConflictTag
	existing, known := lookup(st, pi.RemoteID)

	switch pi.Op {
	case store.OpCreate:
		if sibling, err := st.GetChild(pi.Payload.ParentInode, pi.Payload.Name); err == nil && !sibling.Deleted {
			tags = append(tags, ConflictCreateOnCreate)
		}

	case store.OpUpdate:
		if !known {
			return tags
		}
		if existing.SyncState == store.SyncDirty {
			tags = append(tags, ConflictModifyOnModify)
		}
		if existing.Deleted {
			tags = append(tags, ConflictModifyOnDelete)
		}
		if parentDeleted(st, existing.ParentInode) {
			tags = append(tags, ConflictModifyOnParentDelete)
		}

	case store.OpDelete:
		if known && existing.SyncState == store.SyncDirty {
			tags = append(tags, ConflictDeleteOnModify)
		}

	case store.OpMove, store.OpRename:
		if sibling, err := st.GetChild(pi.Payload.ParentInode, pi.Payload.Name); err == nil && sibling.RemoteID != pi.RemoteID {
			tags = append(tags, ConflictRenameOrMoveOnExisting)
		}
		if parentDeleted(st, pi.Payload.ParentInode) {
			tags = append(tags, ConflictMoveToDeletedParent)
		}
		if _, ok := st.FindPendingOp(pi.RemoteID, store.OpMove, store.ChangeLocal); ok {
			tags = append(tags, ConflictMoveOnMove)
		}
	}
	return tags
}

// DetectLocal is the mirror image of DetectRemote for a local-origin
// ProcessingItem. None of these tags auto-resolve.
func DetectLocal(st *store.Store, pi store.ProcessingItem) []ConflictTag {
	var tags []ConflictTag

	switch pi.Op {
	case store.OpCreate:
		if sibling, err := st.GetChild(pi.Payload.ParentInode, pi.Payload.Name); err == nil &&
			sibling.RemoteID != pi.RemoteID && sibling.Source == store.SourceRemote {
			tags = append(tags, ConflictCreateOnExisting)
		}

	case store.OpUpdate:
		existing, known := lookup(st, pi.RemoteID)
		if known && existing.Deleted {
			tags = append(tags, ConflictModifyOnDeleted)
		}
		if _, ok := st.FindPendingOp(pi.RemoteID, store.OpUpdate, store.ChangeRemote); ok {
			tags = append(tags, ConflictModifyOnModified)
		}

	case store.OpDelete:
		if _, ok := st.FindPendingOp(pi.RemoteID, store.OpUpdate, store.ChangeRemote); ok {
			tags = append(tags, ConflictDeleteOnModified)
		}

	case store.OpMove, store.OpRename:
		if sibling, err := st.GetChild(pi.Payload.ParentInode, pi.Payload.Name); err == nil && sibling.RemoteID != pi.RemoteID {
			tags = append(tags, ConflictRenameOrMoveToExisting)
		}
		if parentDeleted(st, pi.Payload.ParentInode) {
			tags = append(tags, ConflictRenameOrMoveOfDeleted)
		}
	}
	return tags
}

func lookup(st *store.Store, remoteID string) (store.Item, bool) {
	it, err := st.GetByRemoteID(remoteID)
	return it, err == nil
}

func parentDeleted(st *store.Store, parentInode uint64) bool {
	parent, err := st.GetByInode(parentInode)
	return err == nil && parent.Deleted
}

// autoResolve restores a locally-tombstoned ancestor chain and reruns
// detection, the only repair the processor performs without surfacing to a
// human. It returns true only if every remaining tag is also
// auto-resolvable (i.e. none were left behind).
func autoResolve(ctx context.Context, remote graph.RemoteClient, st *store.Store, pi store.ProcessingItem, tags []ConflictTag) (bool, error) {
	canAttempt := false
	for _, t := range tags {
		if t.AutoResolvable() {
			canAttempt = true
			break
		}
	}
	if !canAttempt {
		return false, nil
	}

	if err := restoreAncestors(ctx, remote, st, pi.Payload.ParentRemoteID); err != nil {
		return false, fmt.Errorf("sync: auto-resolve restore ancestors: %w", err)
	}

	for _, t := range DetectRemote(st, pi) {
		if !t.AutoResolvable() {
			return false, nil
		}
	}
	return true, nil
}

// restoreAncestors walks the remote parent chain from remoteID up to the
// root, re-fetching and un-tombstoning every locally-deleted ancestor,
// restoring the topmost first so each child's parent already exists by the
// time it is written.
func restoreAncestors(ctx context.Context, remote graph.RemoteClient, st *store.Store, remoteID string) error {
	if remoteID == "" || remoteID == "root" {
		return nil
	}
	current, known := lookup(st, remoteID)
	if known && !current.Deleted {
		return nil
	}

	remoteItem, err := remote.GetItem(ctx, remoteID)
	if err != nil {
		return fmt.Errorf("refetch ancestor %s: %w", remoteID, err)
	}
	if err := restoreAncestors(ctx, remote, st, remoteItem.ParentID); err != nil {
		return err
	}

	parentInode := store.RootInode
	if parent, ok := lookup(st, remoteItem.ParentID); ok {
		parentInode = parent.Inode
	}

	restored := remoteItemToStoreItem(remoteItem)
	if known {
		restored.Inode = current.Inode
	}
	restored.ParentInode = parentInode
	restored.Deleted = false
	restored.Source = store.SourceRemote
	return st.Upsert(&restored)
}

func remoteItemToStoreItem(ri graph.RemoteItem) store.Item {
	kind := store.KindFile
	if ri.IsFolder {
		kind = store.KindFolder
	}
	return store.Item{
		RemoteID:       ri.ID,
		Name:           ri.Name,
		ETag:           ri.ETag,
		CTag:           ri.CTag,
		ParentRemoteID: ri.ParentID,
		Kind:           kind,
		Size:           ri.Size,
		MTime:          ri.ModTime,
		CTime:          ri.CTime,
		QuickXorHash:   ri.QuickXorHash,
		SyncState:      store.SyncSynced,
		DownloadState:  store.DownloadAbsent,
	}
}
