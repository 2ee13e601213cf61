package fuse

import (
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/auriora/onedrivefs/internal/store"
)

const (
	fileMode = syscall.S_IFREG | 0644
	dirMode  = syscall.S_IFDIR | 0755
)

// fillAttr populates out from a store item. A placeholder file reports the
// remote size even though it has no local content yet.
func fillAttr(out *gofuse.Attr, item store.Item) {
	out.Ino = item.Inode
	out.Size = item.Size
	out.Mtime = uint64(item.MTime.Unix())
	out.Ctime = uint64(item.CTime.Unix())
	out.Atime = out.Mtime
	if item.Kind == store.KindFolder {
		out.Mode = dirMode
		out.Nlink = 2
	} else {
		out.Mode = fileMode
		out.Nlink = 1
	}
}

func fillEntry(out *gofuse.EntryOut, nodeID uint64, item store.Item) {
	out.NodeId = nodeID
	out.Generation = 1
	fillAttr(&out.Attr, item)
}

// displayName is the name an item should appear under in a directory
// listing: a file that isn't fully downloaded yet is shown suffixed;
// folders and present files use their real name.
func displayName(item store.Item) string {
	if item.Kind == store.KindFile && needsPlaceholder(item) {
		return item.Name + placeholderSuffix
	}
	return item.Name
}

func needsPlaceholder(item store.Item) bool {
	return item.DownloadState == store.DownloadAbsent || item.DownloadState == store.DownloadStale
}
