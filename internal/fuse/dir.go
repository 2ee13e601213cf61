package fuse

import (
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/auriora/onedrivefs/internal/store"
)

func (fs *FS) OpenDir(cancel <-chan struct{}, input *gofuse.OpenIn, out *gofuse.OpenOut) gofuse.Status {
	return fs.submit(func() gofuse.Status {
		item, _, status := fs.resolve(input.NodeId)
		if !status.Ok() {
			return status
		}
		if item.Kind != store.KindFolder {
			return gofuse.ENOTDIR
		}
		out.Fh = fs.newFH(item.RemoteID, item.Inode)
		return gofuse.OK
	})
}

func (fs *FS) ReleaseDir(input *gofuse.ReleaseIn) {
	fs.handles.Delete(input.Fh)
}

func (fs *FS) ReadDir(cancel <-chan struct{}, input *gofuse.ReadIn, out *gofuse.DirEntryList) gofuse.Status {
	return fs.listDir(input, out, false)
}

func (fs *FS) ReadDirPlus(cancel <-chan struct{}, input *gofuse.ReadIn, out *gofuse.DirEntryList) gofuse.Status {
	return fs.listDir(input, out, true)
}

func (fs *FS) listDir(input *gofuse.ReadIn, out *gofuse.DirEntryList, plus bool) gofuse.Status {
	return fs.submit(func() gofuse.Status {
		h, ok := fs.handle(input.Fh)
		if !ok {
			return gofuse.EBADF
		}
		children, err := fs.store.ListChildren(h.inode)
		if err != nil {
			return gofuse.EIO
		}

		for i := int(input.Offset); i < len(children); i++ {
			child := children[i]
			mode := uint32(fileMode)
			if child.Kind == store.KindFolder {
				mode = uint32(dirMode)
			}
			entry := gofuse.DirEntry{Name: displayName(child), Mode: mode, Ino: child.Inode, Off: uint64(i + 1)}
			if plus {
				eo := out.AddDirLookupEntry(entry)
				if eo == nil {
					break
				}
				fillEntry(eo, child.Inode, child)
			} else if !out.AddDirEntry(entry) {
				break
			}
		}
		return gofuse.OK
	})
}

func (fs *FS) Mkdir(cancel <-chan struct{}, input *gofuse.MkdirIn, name string, out *gofuse.EntryOut) gofuse.Status {
	return fs.submit(func() gofuse.Status {
		parent, err := fs.store.GetByInode(input.NodeId)
		if err != nil {
			return gofuse.ENOENT
		}

		tempID := fs.nextTempID("local-dir-")
		item := store.Item{
			RemoteID:       tempID,
			Name:           name,
			ParentRemoteID: parent.RemoteID,
			ParentInode:    parent.Inode,
			Kind:           store.KindFolder,
			Source:         store.SourceLocal,
			SyncState:      store.SyncDirty,
		}
		if err := fs.store.Upsert(&item); err != nil {
			return gofuse.EIO
		}
		if _, err := fs.store.EnqueueProcessing(tempID, store.OpCreate, store.ChangeLocal, item); err != nil {
			return gofuse.EIO
		}

		fillEntry(out, item.Inode, item)
		return gofuse.OK
	})
}

func (fs *FS) Unlink(cancel <-chan struct{}, header *gofuse.InHeader, name string) gofuse.Status {
	return fs.removeEntry(header.NodeId, name, store.KindFile)
}

func (fs *FS) Rmdir(cancel <-chan struct{}, header *gofuse.InHeader, name string) gofuse.Status {
	return fs.removeEntry(header.NodeId, name, store.KindFolder)
}

func (fs *FS) removeEntry(parentInode uint64, name string, wantKind store.Kind) gofuse.Status {
	return fs.submit(func() gofuse.Status {
		child, err := fs.store.GetChild(parentInode, name)
		if err != nil {
			return gofuse.ENOENT
		}
		if child.Kind != wantKind {
			if wantKind == store.KindFolder {
				return gofuse.ENOTDIR
			}
			return gofuse.EISDIR
		}
		if err := fs.enqueueLocalDelete(child); err != nil {
			return gofuse.EIO
		}
		return gofuse.OK
	})
}

// enqueueLocalDelete tombstones it (and, recursively, its descendants in
// post-order) and emits a local delete ProcessingItem for each.
func (fs *FS) enqueueLocalDelete(it store.Item) error {
	if it.Kind == store.KindFolder {
		children, err := fs.store.ListChildren(it.Inode)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := fs.enqueueLocalDelete(child); err != nil {
				return err
			}
		}
	}
	if _, err := fs.store.EnqueueProcessing(it.RemoteID, store.OpDelete, store.ChangeLocal, it); err != nil {
		return err
	}
	return fs.store.MarkDeleted(it.RemoteID)
}

// Rename emits `rename` when oldParent == newParent, `move` otherwise.
func (fs *FS) Rename(cancel <-chan struct{}, input *gofuse.RenameIn, oldName, newName string) gofuse.Status {
	return fs.submit(func() gofuse.Status {
		item, err := fs.store.GetChild(input.InHeader.NodeId, oldName)
		if err != nil {
			return gofuse.ENOENT
		}
		newParent, err := fs.store.GetByInode(input.Newdir)
		if err != nil {
			return gofuse.ENOENT
		}

		op := store.OpRename
		if input.InHeader.NodeId != input.Newdir {
			op = store.OpMove
		}

		item.Name = newName
		item.ParentInode = newParent.Inode
		item.ParentRemoteID = newParent.RemoteID
		item.SyncState = store.SyncDirty
		if err := fs.store.Upsert(&item); err != nil {
			return gofuse.EIO
		}
		if _, err := fs.store.EnqueueProcessing(item.RemoteID, op, store.ChangeLocal, item); err != nil {
			return gofuse.EIO
		}
		return gofuse.OK
	})
}
