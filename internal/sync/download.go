package sync

import (
	"context"
	"io"
	stdsync "sync"

	"github.com/auriora/onedrivefs/internal/store"
)

// downloadEntry tracks one in-flight fetch: waiters block on cond and, once
// woken, read err to learn whether the fetch that just finished actually
// succeeded.
type downloadEntry struct {
	cond *stdsync.Cond
	err  error
}

// downloadCoordinator ensures at most one in-flight fetch per remote id:
// concurrent FUSE reads of the same placeholder wait on a condition
// variable instead of each starting their own transfer.
type downloadCoordinator struct {
	mu       stdsync.Mutex
	inFlight map[string]*downloadEntry
}

func newDownloadCoordinator() *downloadCoordinator {
	return &downloadCoordinator{inFlight: map[string]*downloadEntry{}}
}

// EnsureDownloaded blocks until item's content is present in the cache. It
// is safe to call concurrently for the same item; only the first caller
// performs the transfer, the rest wait and then return whatever error (if
// any) that transfer finished with.
func (p *Processor) EnsureDownloaded(ctx context.Context, item store.Item) error {
	if item.DownloadState == store.DownloadPresent && p.cache.Has(item.RemoteID) {
		return nil
	}

	p.downloads.mu.Lock()
	if entry, inFlight := p.downloads.inFlight[item.RemoteID]; inFlight {
		for p.downloads.inFlight[item.RemoteID] == entry {
			entry.cond.Wait()
		}
		p.downloads.mu.Unlock()
		return entry.err
	}
	entry := &downloadEntry{cond: stdsync.NewCond(&p.downloads.mu)}
	p.downloads.inFlight[item.RemoteID] = entry
	p.downloads.mu.Unlock()

	err := p.fetchContent(ctx, item, PriorityForeground)

	p.downloads.mu.Lock()
	entry.err = err
	delete(p.downloads.inFlight, item.RemoteID)
	entry.cond.Broadcast()
	p.downloads.mu.Unlock()
	return err
}

// EnqueueEagerDownload is called on remote create for items that fall under
// a configured download folder, and on a remote update that makes a present
// file stale. It records a PriorityBackground download-queue entry and
// returns; it fetches no content. The content is fetched by EnsureDownloaded
// when the placeholder is opened.
func (p *Processor) EnqueueEagerDownload(item store.Item) {
	if _, err := p.store.EnqueueDownload(item.RemoteID, item.Inode, PriorityBackground); err != nil {
		return
	}
}

func (p *Processor) fetchContent(ctx context.Context, item store.Item, priority int) error {
	entry, err := p.store.EnqueueDownload(item.RemoteID, item.Inode, priority)
	if err != nil {
		return err
	}
	if err := p.store.UpdateDownloadStatus(entry.ID, store.DownloadRunning); err != nil {
		return err
	}

	rc, err := p.remote.Download(ctx, item.RemoteID)
	if err != nil {
		_ = p.store.UpdateDownloadStatus(entry.ID, store.DownloadFailed)
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		_ = p.store.UpdateDownloadStatus(entry.ID, store.DownloadFailed)
		return err
	}
	if err := p.cache.Write(item.RemoteID, data); err != nil {
		_ = p.store.UpdateDownloadStatus(entry.ID, store.DownloadFailed)
		return err
	}

	if err := p.store.UpdateDownloadStatus(entry.ID, store.DownloadDone); err != nil {
		return err
	}
	item.DownloadState = store.DownloadPresent
	return p.store.Upsert(&item)
}
