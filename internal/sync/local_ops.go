package sync

import (
	"context"

	"github.com/auriora/onedrivefs/internal/graph"
	"github.com/auriora/onedrivefs/internal/store"
)

// applyLocalCreate uploads a locally-created item under its temp remote id
// (minted by the FUSE surface), then rekeys store and cache to the real id
// the server assigned. The folder/file split and small/large upload path
// come from the payload's kind and cached blob size.
func (p *Processor) applyLocalCreate(ctx context.Context, pi store.ProcessingItem) error {
	parent, err := p.store.GetByInode(pi.Payload.ParentInode)
	if err != nil {
		return err
	}

	var remoteItem graph.RemoteItem
	if pi.Payload.Kind == store.KindFolder {
		remoteItem, err = p.remote.CreateFolder(ctx, parent.RemoteID, pi.Payload.Name)
	} else {
		remoteItem, err = p.uploadContent(ctx, parent.RemoteID, pi.Payload.Name, pi.RemoteID)
	}
	if err != nil {
		return err
	}

	tempID := pi.RemoteID
	if err := p.store.Rekey(tempID, remoteItem.ID); err != nil {
		return err
	}
	if err := p.cache.Rekey(tempID, remoteItem.ID); err != nil {
		return err
	}

	item, err := p.store.GetByRemoteID(remoteItem.ID)
	if err != nil {
		return err
	}
	item.ETag = remoteItem.ETag
	item.CTag = remoteItem.CTag
	item.Size = remoteItem.Size
	item.SyncState = store.SyncSynced
	if item.Kind == store.KindFile {
		item.DownloadState = store.DownloadPresent
	}
	return p.store.Upsert(&item)
}

// applyLocalUpdate re-uploads a changed file's content.
func (p *Processor) applyLocalUpdate(ctx context.Context, pi store.ProcessingItem) error {
	item, err := p.store.GetByRemoteID(pi.RemoteID)
	if err != nil {
		return err
	}
	parent, err := p.store.GetByInode(item.ParentInode)
	if err != nil {
		return err
	}

	ri, err := p.uploadContent(ctx, parent.RemoteID, item.Name, item.RemoteID)
	if err != nil {
		return err
	}

	item.ETag = ri.ETag
	item.CTag = ri.CTag
	item.Size = ri.Size
	item.SyncState = store.SyncSynced
	item.DownloadState = store.DownloadPresent
	return p.store.Upsert(&item)
}

// applyLocalDelete deletes remotely and then purges local queue/cache
// references.
func (p *Processor) applyLocalDelete(ctx context.Context, pi store.ProcessingItem) error {
	if err := p.remote.Delete(ctx, pi.RemoteID); err != nil {
		return err
	}
	_ = p.cache.Evict(pi.RemoteID)
	if entry, ok := p.store.GetActiveDownload(pi.RemoteID); ok {
		_ = p.store.UpdateDownloadStatus(entry.ID, store.DownloadFailed)
	}
	if err := p.store.MarkDeleted(pi.RemoteID); err != nil && err != store.ErrNotFound {
		return err
	}
	return nil
}

// applyLocalMove patches the remote name/parent to match a local rename or
// move.
func (p *Processor) applyLocalMove(ctx context.Context, pi store.ProcessingItem) error {
	item, err := p.store.GetByRemoteID(pi.RemoteID)
	if err != nil {
		return err
	}
	newParent, err := p.store.GetByInode(pi.Payload.ParentInode)
	if err != nil {
		return err
	}

	name := pi.Payload.Name
	parentID := newParent.RemoteID
	ri, err := p.remote.Patch(ctx, pi.RemoteID, graph.PatchSpec{Name: &name, ParentID: &parentID})
	if err != nil {
		return err
	}

	item.Name = ri.Name
	item.ParentRemoteID = parentID
	item.ParentInode = newParent.Inode
	item.ETag = ri.ETag
	item.CTag = ri.CTag
	item.SyncState = store.SyncSynced
	return p.store.Upsert(&item)
}
