package fuse

import (
	"strings"

	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/auriora/onedrivefs/internal/store"
)

// Lookup resolves name under header.NodeId. Both the suffixed placeholder
// name and the real name resolve to the same underlying item;
// the suffixed form is only accepted while the item actually needs one.
func (fs *FS) Lookup(cancel <-chan struct{}, header *gofuse.InHeader, name string, out *gofuse.EntryOut) gofuse.Status {
	return fs.submit(func() gofuse.Status {
		realName := name
		wantPlaceholder := false
		if strings.HasSuffix(name, placeholderSuffix) {
			realName = strings.TrimSuffix(name, placeholderSuffix)
			wantPlaceholder = true
		}

		child, err := fs.store.GetChild(header.NodeId, realName)
		if err != nil {
			return gofuse.ENOENT
		}
		if wantPlaceholder && !needsPlaceholder(child) {
			return gofuse.ENOENT
		}

		nodeID := child.Inode
		if wantPlaceholder {
			nodeID |= placeholderBit
		}
		fillEntry(out, nodeID, child)
		return gofuse.OK
	})
}

func (fs *FS) GetAttr(cancel <-chan struct{}, input *gofuse.GetAttrIn, out *gofuse.AttrOut) gofuse.Status {
	return fs.submit(func() gofuse.Status {
		item, _, status := fs.resolve(input.NodeId)
		if !status.Ok() {
			return status
		}
		fillAttr(&out.Attr, item)
		return gofuse.OK
	})
}

// SetAttr handles truncation (the only attribute change that has content
// consequences); other requested fields (mode, times) are accepted and
// reflected back without being persisted, since OneDrive has no concept of
// POSIX permission bits.
func (fs *FS) SetAttr(cancel <-chan struct{}, input *gofuse.SetAttrIn, out *gofuse.AttrOut) gofuse.Status {
	return fs.submit(func() gofuse.Status {
		item, placeholder, status := fs.resolve(input.NodeId)
		if !status.Ok() {
			return status
		}
		if placeholder {
			return gofuse.EACCES
		}

		if input.Valid&gofuse.FATTR_SIZE != 0 {
			f, err := fs.cache.Open(item.RemoteID)
			if err != nil {
				return gofuse.EIO
			}
			defer f.Close()
			if err := f.Truncate(int64(input.Size)); err != nil {
				return gofuse.EIO
			}
			item.Size = input.Size
			item.SyncState = store.SyncDirty
			if err := fs.store.Upsert(&item); err != nil {
				return gofuse.EIO
			}
		}

		fillAttr(&out.Attr, item)
		return gofuse.OK
	})
}

func (fs *FS) Access(cancel <-chan struct{}, input *gofuse.AccessIn) gofuse.Status {
	return gofuse.OK
}
