package sync

import (
	"context"
	"strings"

	"github.com/auriora/onedrivefs/internal/cache"
	"github.com/auriora/onedrivefs/internal/graph"
	"github.com/auriora/onedrivefs/internal/logging"
	"github.com/auriora/onedrivefs/internal/onerrors"
	"github.com/auriora/onedrivefs/internal/store"
)

// Processor is the Sync Processor: on each tick it drains every
// remote-origin ProcessingItem to a terminal status, then every local-origin
// one, applying conflict detection, auto-resolution, and per-operation
// semantics along the way.
type Processor struct {
	remote    graph.RemoteClient
	store     *store.Store
	cache     *cache.Cache
	cfg       Config
	downloads *downloadCoordinator
}

func New(remote graph.RemoteClient, st *store.Store, c *cache.Cache, cfg Config) *Processor {
	if cfg.LargeUploadThreshold == 0 {
		cfg.LargeUploadThreshold = DefaultLargeUploadThreshold
	}
	return &Processor{remote: remote, store: st, cache: c, cfg: cfg, downloads: newDownloadCoordinator()}
}

// RunCycle processes the remote phase to completion and then the local
// phase, so a conflicting in-flight local change always sees the latest
// remote state first.
func (p *Processor) RunCycle(ctx context.Context) error {
	if err := p.runRemotePhase(ctx); err != nil {
		return err
	}
	return p.runLocalPhase(ctx)
}

func (p *Processor) runRemotePhase(ctx context.Context) error {
	logger := logging.For("sync")
	items, err := p.store.NextUnprocessed(store.ChangeRemote)
	if err != nil {
		return err
	}
	for _, pi := range items {
		if err := p.processRemoteItem(ctx, pi); err != nil {
			logger.Error().Err(err).Str("remoteID", pi.RemoteID).Str("op", string(pi.Op)).Msg("remote item processing failed")
		}
	}
	return nil
}

func (p *Processor) runLocalPhase(ctx context.Context) error {
	logger := logging.For("sync")
	items, err := p.store.NextUnprocessed(store.ChangeLocal)
	if err != nil {
		return err
	}

	squashed := Squash(items)
	if err := p.applySquash(items, squashed); err != nil {
		return err
	}

	for _, pi := range squashed {
		if pi.Status != store.StatusNew {
			continue
		}
		if err := p.processLocalItem(ctx, pi); err != nil {
			logger.Error().Err(err).Str("remoteID", pi.RemoteID).Str("op", string(pi.Op)).Msg("local item processing failed")
		}
	}
	return nil
}

// applySquash reconciles the durable queue with the in-memory squash
// result: records dropped by squashing (e.g. a create/delete pair) are
// deleted outright, and surviving records whose fields changed (a create
// absorbing a later rename, a run collapsing to its last entry) are
// rewritten in place so their queue position is preserved.
func (p *Processor) applySquash(original, squashed []store.ProcessingItem) error {
	keep := map[uint64]store.ProcessingItem{}
	for _, pi := range squashed {
		keep[pi.ID] = pi
	}
	for _, pi := range original {
		final, ok := keep[pi.ID]
		if !ok {
			if err := p.store.DeleteProcessing(pi.ID); err != nil {
				return err
			}
			continue
		}
		if final.Payload != pi.Payload || final.Op != pi.Op {
			if err := p.store.ReplaceProcessing(final); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Processor) processRemoteItem(ctx context.Context, pi store.ProcessingItem) error {
	if tags := DetectRemote(p.store, pi); len(tags) > 0 {
		resolved, err := autoResolve(ctx, p.remote, p.store, pi, tags)
		if err != nil {
			return p.finish(pi, err)
		}
		if !resolved {
			return p.markConflicted(pi)
		}
	}

	var err error
	switch pi.Op {
	case store.OpCreate:
		err = p.applyRemoteCreate(pi)
	case store.OpUpdate:
		err = p.applyRemoteUpdate(pi)
	case store.OpDelete:
		err = p.applyRemoteDelete(pi)
	case store.OpMove, store.OpRename:
		err = p.applyRemoteMove(pi)
	}
	return p.finish(pi, err)
}

func (p *Processor) processLocalItem(ctx context.Context, pi store.ProcessingItem) error {
	if tags := DetectLocal(p.store, pi); len(tags) > 0 {
		return p.markConflicted(pi)
	}

	var err error
	switch pi.Op {
	case store.OpCreate:
		err = p.applyLocalCreate(ctx, pi)
	case store.OpUpdate:
		err = p.applyLocalUpdate(ctx, pi)
	case store.OpDelete:
		err = p.applyLocalDelete(ctx, pi)
	case store.OpMove, store.OpRename:
		err = p.applyLocalMove(ctx, pi)
	}
	return p.finish(pi, err)
}

// finish records the outcome of one applied operation: done on success,
// back to new with an incremented retry counter on a transient/auth
// failure, or terminated at error for anything else.
func (p *Processor) finish(pi store.ProcessingItem, err error) error {
	if err == nil {
		return p.store.UpdateStatus(pi.ID, store.StatusDone)
	}
	if setErr := p.store.SetValidationErrors(pi.ID, []string{err.Error()}); setErr != nil {
		return setErr
	}
	if onerrors.Classify(err).Retryable() {
		return p.store.UpdateStatus(pi.ID, store.StatusNew)
	}
	return p.store.UpdateStatus(pi.ID, store.StatusError)
}

func (p *Processor) markConflicted(pi store.ProcessingItem) error {
	if err := p.store.UpdateStatus(pi.ID, store.StatusConflicted); err != nil {
		return err
	}
	if it, err := p.store.GetByRemoteID(pi.RemoteID); err == nil {
		it.SyncState = store.SyncConflicted
		return p.store.Upsert(&it)
	}
	return nil
}

func (p *Processor) shouldAutoDownload(virtualPath string) bool {
	for _, prefix := range p.cfg.DownloadFolders {
		if strings.HasPrefix(virtualPath, prefix) {
			return true
		}
	}
	return false
}

// cascadeDeleteLocal tombstones it and, for a folder, every descendant in
// post-order first, evicting cached blobs and cancelling active downloads
// as it goes.
func (p *Processor) cascadeDeleteLocal(it store.Item) error {
	if it.Kind == store.KindFolder {
		children, err := p.store.ListChildren(it.Inode)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := p.cascadeDeleteLocal(child); err != nil {
				return err
			}
		}
	}
	if entry, ok := p.store.GetActiveDownload(it.RemoteID); ok {
		_ = p.store.UpdateDownloadStatus(entry.ID, store.DownloadFailed)
	}
	_ = p.cache.Evict(it.RemoteID)
	return p.store.MarkDeleted(it.RemoteID)
}
