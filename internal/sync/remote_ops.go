package sync

import "github.com/auriora/onedrivefs/internal/store"

// applyRemoteCreate inserts a newly-seen remote item, assigning it an inode,
// and eagerly enqueues a download when its virtual path falls under a
// configured download folder.
func (p *Processor) applyRemoteCreate(pi store.ProcessingItem) error {
	item := pi.Payload
	item.Source = store.SourceRemote
	item.SyncState = store.SyncSynced
	item.DownloadState = store.DownloadAbsent
	item.ParentInode = resolveParentInode(p.store, item.ParentRemoteID)

	if err := p.store.Upsert(&item); err != nil {
		return err
	}
	if item.Kind == store.KindFile && p.shouldAutoDownload(item.VirtualPath) {
		p.EnqueueEagerDownload(item)
	}
	return nil
}

// applyRemoteUpdate refreshes metadata for an existing item. If the content
// hash/etag changed and a prior download had made it present, its cached
// blob is marked stale and a refresh is queued; an etag-identical delivery
// (redelivery or metadata-only change) never touches the content cache.
func (p *Processor) applyRemoteUpdate(pi store.ProcessingItem) error {
	existing, err := p.store.GetByRemoteID(pi.RemoteID)
	if err != nil {
		return p.applyRemoteCreate(pi)
	}

	contentChanged := existing.ETag != pi.Payload.ETag

	updated := existing
	updated.ETag = pi.Payload.ETag
	updated.CTag = pi.Payload.CTag
	updated.Size = pi.Payload.Size
	updated.MTime = pi.Payload.MTime
	updated.QuickXorHash = pi.Payload.QuickXorHash
	updated.SyncState = store.SyncSynced

	if contentChanged && existing.DownloadState == store.DownloadPresent {
		updated.DownloadState = store.DownloadStale
	}
	if err := p.store.Upsert(&updated); err != nil {
		return err
	}
	if updated.DownloadState == store.DownloadStale {
		p.EnqueueEagerDownload(updated)
	}
	return nil
}

// applyRemoteDelete tombstones the item and its descendants in post-order,
// evicting cached content and cancelling in-flight downloads as it goes.
func (p *Processor) applyRemoteDelete(pi store.ProcessingItem) error {
	existing, err := p.store.GetByRemoteID(pi.RemoteID)
	if err != nil {
		return nil // already gone locally, nothing to cascade
	}
	return p.cascadeDeleteLocal(existing)
}

// applyRemoteMove patches the store record's name/parent; Upsert recomputes
// every descendant's virtual_path so the whole subtree's paths stay
// consistent with the new location.
func (p *Processor) applyRemoteMove(pi store.ProcessingItem) error {
	existing, err := p.store.GetByRemoteID(pi.RemoteID)
	if err != nil {
		return p.applyRemoteCreate(pi)
	}
	existing.Name = pi.Payload.Name
	existing.ParentRemoteID = pi.Payload.ParentRemoteID
	existing.ParentInode = resolveParentInode(p.store, pi.Payload.ParentRemoteID)
	existing.ETag = pi.Payload.ETag
	existing.CTag = pi.Payload.CTag
	existing.SyncState = store.SyncSynced
	return p.store.Upsert(&existing)
}

func resolveParentInode(st *store.Store, parentRemoteID string) uint64 {
	if parentRemoteID == "" || parentRemoteID == "root" {
		return store.RootInode
	}
	if parent, err := st.GetByRemoteID(parentRemoteID); err == nil {
		return parent.Inode
	}
	return store.RootInode
}
