// Package graph defines the Remote Port: the typed capability interface the
// core depends on for all cloud interaction (delta, CRUD, upload, download,
// move/rename). The core never imports an HTTP client directly - it depends
// on RemoteClient, which this package also implements over net/http.
package graph

import "time"

// RemoteItem mirrors the wire shape of a remote drive item: enough of the
// OneDrive driveItem resource (name, size, parentReference, file/folder
// facets, hashes, ETag/CTag) for the sync engine to drive conflict detection
// without depending on transport details.
type RemoteItem struct {
	ID       string
	Name     string
	ETag     string
	CTag     string
	ParentID string
	Size     uint64
	ModTime  time.Time
	CTime    time.Time
	IsFolder bool
	Deleted  bool
	// QuickXorHash is the remote content hash. It is copied into
	// store.Item.QuickXorHash; nothing compares it against local content.
	QuickXorHash string
}

// PatchSpec describes a rename/move/metadata patch. Nil fields are left
// unchanged by the remote.
type PatchSpec struct {
	Name     *string
	ParentID *string
	ModTime  *time.Time
}

// DeltaPage is one page of the delta stream. NextCursor is the opaque token
// to resume from on the following call; Items may contain tombstones
// (Deleted=true) and may repeat items already seen - consumers must be
// idempotent.
type DeltaPage struct {
	Items      []RemoteItem
	NextCursor string
	// More indicates another page must be fetched before this delta cycle
	// is complete; NextCursor should be used for that follow-up call too,
	// but only the cursor from the final page (More=false) is durable.
	More bool
}
