// Package mock provides a deterministic in-memory RemoteClient used by the
// sync/ingest test suites so conflict and retry scenarios can be driven
// without a live Microsoft Graph endpoint.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/auriora/onedrivefs/internal/graph"
	"github.com/auriora/onedrivefs/internal/onerrors"
)

// Client is a thread-safe, in-memory implementation of graph.RemoteClient.
// Tests set up its state with Seed, QueueDelta and SeedContent and then
// drive a Delta/ingest cycle against it.
type Client struct {
	mu        sync.Mutex
	items     map[string]graph.RemoteItem
	content   map[string][]byte
	pending   []graph.RemoteItem // items queued to appear in the next Delta page
	cursorSeq int
	nextID    int
}

func New() *Client {
	return &Client{
		items:   map[string]graph.RemoteItem{},
		content: map[string][]byte{},
	}
}

// Seed installs an item directly into server state without queuing a delta
// (used to set up pre-existing remote trees in tests).
func (c *Client) Seed(item graph.RemoteItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ID] = item
}

// QueueDelta appends an item to the next Delta() page returned, mirroring a
// remote-side change becoming visible to the ingestor.
func (c *Client) QueueDelta(item graph.RemoteItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ID] = item
	c.pending = append(c.pending, item)
}

// SeedContent stores downloadable bytes for a remote id.
func (c *Client) SeedContent(remoteID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content[remoteID] = data
}

func (c *Client) Delta(ctx context.Context, cursor string) (graph.DeltaPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.pending
	c.pending = nil
	c.cursorSeq++
	return graph.DeltaPage{
		Items:      items,
		NextCursor: fmt.Sprintf("cursor-%d", c.cursorSeq),
		More:       false,
	}, nil
}

func (c *Client) GetItem(ctx context.Context, remoteID string) (graph.RemoteItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[remoteID]
	if !ok {
		return graph.RemoteItem{}, onerrors.New(onerrors.KindNotFound, remoteID)
	}
	return item, nil
}

func (c *Client) ListChildren(ctx context.Context, remoteID string) ([]graph.RemoteItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var children []graph.RemoteItem
	for _, item := range c.items {
		if item.ParentID == remoteID && !item.Deleted {
			children = append(children, item)
		}
	}
	return children, nil
}

func (c *Client) Download(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.content[remoteID]
	if !ok {
		return nil, onerrors.New(onerrors.KindNotFound, remoteID)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *Client) DownloadRange(ctx context.Context, remoteID string, offset, length int64) (io.ReadCloser, error) {
	c.mu.Lock()
	data, ok := c.content[remoteID]
	c.mu.Unlock()
	if !ok {
		return nil, onerrors.New(onerrors.KindNotFound, remoteID)
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (c *Client) newID() string {
	c.nextID++
	return fmt.Sprintf("srv-%d", c.nextID)
}

func (c *Client) UploadSmall(ctx context.Context, parentID, name string, content []byte) (graph.RemoteItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.newID()
	item := graph.RemoteItem{ID: id, Name: name, ParentID: parentID, Size: uint64(len(content)), ETag: id + "-v1"}
	c.items[id] = item
	c.content[id] = append([]byte{}, content...)
	return item, nil
}

func (c *Client) UploadLarge(ctx context.Context, parentID, name string, content io.Reader, size int64) (graph.RemoteItem, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return graph.RemoteItem{}, onerrors.Wrap(onerrors.KindTransient, "read large upload", err)
	}
	return c.UploadSmall(ctx, parentID, name, data)
}

func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (graph.RemoteItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.newID()
	item := graph.RemoteItem{ID: id, Name: name, ParentID: parentID, IsFolder: true, ETag: id + "-v1"}
	c.items[id] = item
	return item, nil
}

func (c *Client) Patch(ctx context.Context, remoteID string, patch graph.PatchSpec) (graph.RemoteItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[remoteID]
	if !ok {
		return graph.RemoteItem{}, onerrors.New(onerrors.KindNotFound, remoteID)
	}
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.ParentID != nil {
		item.ParentID = *patch.ParentID
	}
	if patch.ModTime != nil {
		item.ModTime = *patch.ModTime
	}
	item.ETag = fmt.Sprintf("%s-v%d", remoteID, len(item.ETag)+1)
	c.items[remoteID] = item
	return item, nil
}

func (c *Client) Delete(ctx context.Context, remoteID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[remoteID]
	if !ok {
		return nil
	}
	item.Deleted = true
	c.items[remoteID] = item
	delete(c.content, remoteID)
	return nil
}

var _ graph.RemoteClient = (*Client)(nil)
