// Package fuse implements the virtual filesystem mount over go-fuse's
// low-level RawFileSystem API. Only the operations OneDrive actually needs
// are overridden; everything else (locks, xattrs, symlinks - none of which
// OneDrive exposes) falls through to go-fuse's default implementation, which
// answers ENOSYS.
package fuse

import (
	"context"
	"sync"
	"sync/atomic"

	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/auriora/onedrivefs/internal/cache"
	"github.com/auriora/onedrivefs/internal/logging"
	"github.com/auriora/onedrivefs/internal/store"
	syncproc "github.com/auriora/onedrivefs/internal/sync"
)

// placeholderSuffix marks the undownloaded view of a file in directory
// listings and lookups.
const placeholderSuffix = ".onedrivedownload"

// placeholderBit is set in the fuse NodeId handed to the kernel for the
// suffixed (placeholder) dentry of a file, distinguishing "opened via the
// placeholder name" from "opened via the real name" without needing a
// second persisted inode - the real, stable inode is recovered by masking
// the bit off.
const placeholderBit = uint64(1) << 63

func realInode(nodeID uint64) uint64  { return nodeID &^ placeholderBit }
func isPlaceholder(nodeID uint64) bool { return nodeID&placeholderBit != 0 }

// FS implements gofuse.RawFileSystem. FUSE callbacks run on kernel worker
// threads; every one that mutates shared state submits a closure to
// opQueue and waits on it, so all Metadata Store / Sync Processor access is
// serialized through a single cooperative goroutine while
// multiple kernel threads can still be in-flight on pure reads of the
// content cache.
type FS struct {
	gofuse.RawFileSystem

	store *store.Store
	cache *cache.Cache
	proc  *syncproc.Processor

	opQueue chan func()

	handles   sync.Map // uint64 fh -> *fileHandle
	nextFH    uint64
	localSeq  uint64
}

type fileHandle struct {
	remoteID string
	inode    uint64
	dirty    bool
}

func New(st *store.Store, c *cache.Cache, proc *syncproc.Processor) *FS {
	fs := &FS{
		RawFileSystem: gofuse.NewDefaultRawFileSystem(),
		store:         st,
		cache:         c,
		proc:          proc,
		opQueue:       make(chan func(), 256),
	}
	go fs.drainOpQueue()
	return fs
}

func (fs *FS) drainOpQueue() {
	for fn := range fs.opQueue {
		fn()
	}
}

// submit runs fn on the single cooperative goroutine and returns its
// result, blocking the calling kernel thread until it completes.
func (fs *FS) submit(fn func() gofuse.Status) gofuse.Status {
	done := make(chan gofuse.Status, 1)
	fs.opQueue <- func() { done <- fn() }
	return <-done
}

func (fs *FS) String() string { return "onedrivefs" }

func (fs *FS) newFH(remoteID string, inode uint64) uint64 {
	fh := atomic.AddUint64(&fs.nextFH, 1)
	fs.handles.Store(fh, &fileHandle{remoteID: remoteID, inode: inode})
	return fh
}

func (fs *FS) handle(fh uint64) (*fileHandle, bool) {
	v, ok := fs.handles.Load(fh)
	if !ok {
		return nil, false
	}
	return v.(*fileHandle), true
}

func (fs *FS) nextTempID(prefix string) string {
	n := atomic.AddUint64(&fs.localSeq, 1)
	return prefix + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func (fs *FS) resolve(nodeID uint64) (store.Item, bool, gofuse.Status) {
	item, err := fs.store.GetByInode(realInode(nodeID))
	if err != nil {
		return store.Item{}, false, gofuse.ENOENT
	}
	return item, isPlaceholder(nodeID), gofuse.OK
}

// ensureDownloaded blocks the calling kernel thread (not the cooperative
// goroutine) on a content fetch: a long download yields the kernel thread
// pool rather than stalling the single mutation queue.
func (fs *FS) ensureDownloaded(item store.Item) gofuse.Status {
	if err := fs.proc.EnsureDownloaded(context.Background(), item); err != nil {
		logging.For("fuse").Warn().Err(err).Str("remoteID", item.RemoteID).Msg("download failed")
		return gofuse.EIO
	}
	return gofuse.OK
}
