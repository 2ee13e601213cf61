package sync

import (
	"context"

	"github.com/auriora/onedrivefs/internal/graph"
)

// uploadContent ships the cached blob for cacheKey to parentRemoteID/name,
// splitting on Config.LargeUploadThreshold between a single small-file PUT
// and the chunked resumable session.
func (p *Processor) uploadContent(ctx context.Context, parentRemoteID, name, cacheKey string) (graph.RemoteItem, error) {
	size, err := p.cache.Size(cacheKey)
	if err != nil {
		return graph.RemoteItem{}, err
	}

	if uint64(size) <= p.cfg.LargeUploadThreshold {
		data, err := p.cache.Read(cacheKey, 0, int(size))
		if err != nil {
			return graph.RemoteItem{}, err
		}
		return p.remote.UploadSmall(ctx, parentRemoteID, name, data)
	}

	f, err := p.cache.Open(cacheKey)
	if err != nil {
		return graph.RemoteItem{}, err
	}
	defer f.Close()
	return p.remote.UploadLarge(ctx, parentRemoteID, name, f, size)
}
