package fuse

import (
	"os"

	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/auriora/onedrivefs/internal/store"
)

// Open resolves a file for reading/writing. Opening the placeholder name
// enqueues a download and blocks until the content is present; opening the
// real name on a file that has never been materialized is rejected.
func (fs *FS) Open(cancel <-chan struct{}, input *gofuse.OpenIn, out *gofuse.OpenOut) gofuse.Status {
	var item store.Item
	var placeholder bool
	status := fs.submit(func() gofuse.Status {
		var st gofuse.Status
		item, placeholder, st = fs.resolve(input.NodeId)
		return st
	})
	if !status.Ok() {
		return status
	}

	fs.cache.Pin(item.RemoteID)
	if placeholder {
		if status := fs.ensureDownloaded(item); !status.Ok() {
			fs.cache.Unpin(item.RemoteID)
			return status
		}
		refreshed, err := fs.store.GetByInode(item.Inode)
		if err != nil {
			fs.cache.Unpin(item.RemoteID)
			return gofuse.EIO
		}
		item = refreshed
	} else if item.Kind == store.KindFile && item.DownloadState == store.DownloadAbsent {
		fs.cache.Unpin(item.RemoteID)
		return gofuse.ENOENT
	}

	f, err := fs.cache.Open(item.RemoteID)
	if err != nil {
		fs.cache.Unpin(item.RemoteID)
		return gofuse.EIO
	}
	f.Close()

	out.Fh = fs.newFH(item.RemoteID, item.Inode)
	return gofuse.OK
}

func (fs *FS) Read(cancel <-chan struct{}, input *gofuse.ReadIn, buf []byte) (gofuse.ReadResult, gofuse.Status) {
	h, ok := fs.handle(input.Fh)
	if !ok {
		return nil, gofuse.EBADF
	}
	data, err := fs.cache.Read(h.remoteID, int64(input.Offset), int(input.Size))
	if err != nil {
		return nil, gofuse.EIO
	}
	n := copy(buf, data)
	return gofuse.ReadResultData(buf[:n]), gofuse.OK
}

func (fs *FS) Write(cancel <-chan struct{}, input *gofuse.WriteIn, data []byte) (uint32, gofuse.Status) {
	h, ok := fs.handle(input.Fh)
	if !ok {
		return 0, gofuse.EBADF
	}
	f, err := fs.cache.Open(h.remoteID)
	if err != nil {
		return 0, gofuse.EIO
	}
	defer f.Close()

	n, err := f.WriteAt(data, int64(input.Offset))
	if err != nil && err != os.ErrClosed {
		return uint32(n), gofuse.EIO
	}
	h.dirty = true
	return uint32(n), gofuse.OK
}

// Flush emits a local update ProcessingItem for whatever was written
// through this handle since it was opened. If the item is still a pending
// local create, squashing folds this update into that create; there is no
// special case to handle here.
func (fs *FS) Flush(cancel <-chan struct{}, input *gofuse.FlushIn) gofuse.Status {
	h, ok := fs.handle(input.Fh)
	if !ok || !h.dirty {
		return gofuse.OK
	}
	return fs.submit(func() gofuse.Status {
		item, err := fs.store.GetByInode(h.inode)
		if err != nil {
			return gofuse.ENOENT
		}
		size, err := fs.cache.Size(h.remoteID)
		if err != nil {
			return gofuse.EIO
		}
		item.Size = uint64(size)
		item.SyncState = store.SyncDirty
		item.DownloadState = store.DownloadPresent
		if err := fs.store.Upsert(&item); err != nil {
			return gofuse.EIO
		}
		if _, err := fs.store.EnqueueProcessing(item.RemoteID, store.OpUpdate, store.ChangeLocal, item); err != nil {
			return gofuse.EIO
		}
		h.dirty = false
		return gofuse.OK
	})
}

func (fs *FS) Fsync(cancel <-chan struct{}, input *gofuse.FsyncIn) gofuse.Status {
	return fs.Flush(cancel, &gofuse.FlushIn{InHeader: input.InHeader, Fh: input.Fh})
}

func (fs *FS) Release(cancel <-chan struct{}, input *gofuse.ReleaseIn) {
	if h, ok := fs.handle(input.Fh); ok {
		fs.cache.Unpin(h.remoteID)
	}
	fs.handles.Delete(input.Fh)
}

// Create mints a temp remote id, materializes an empty blob in the content
// cache, and enqueues a local create.
func (fs *FS) Create(cancel <-chan struct{}, input *gofuse.CreateIn, name string, out *gofuse.CreateOut) gofuse.Status {
	return fs.submit(func() gofuse.Status {
		parent, err := fs.store.GetByInode(input.NodeId)
		if err != nil {
			return gofuse.ENOENT
		}

		tempID := fs.nextTempID("local-")
		if err := fs.cache.Write(tempID, nil); err != nil {
			return gofuse.EIO
		}

		item := store.Item{
			RemoteID:       tempID,
			Name:           name,
			ParentRemoteID: parent.RemoteID,
			ParentInode:    parent.Inode,
			Kind:           store.KindFile,
			Source:         store.SourceLocal,
			SyncState:      store.SyncDirty,
			DownloadState:  store.DownloadPresent,
		}
		if err := fs.store.Upsert(&item); err != nil {
			return gofuse.EIO
		}
		if _, err := fs.store.EnqueueProcessing(tempID, store.OpCreate, store.ChangeLocal, item); err != nil {
			return gofuse.EIO
		}

		fillEntry(&out.EntryOut, item.Inode, item)
		fs.cache.Pin(tempID)
		out.Fh = fs.newFH(tempID, item.Inode)
		return gofuse.OK
	})
}

func (fs *FS) StatFs(cancel <-chan struct{}, input *gofuse.InHeader, out *gofuse.StatfsOut) gofuse.Status {
	// OneDrive doesn't expose block-level quota through this port; report
	// generous fixed figures so df/du don't error out.
	out.Blocks = 1 << 30
	out.Bfree = 1 << 29
	out.Bavail = out.Bfree
	out.Files = 1 << 20
	out.Bsize = 4096
	return gofuse.OK
}
