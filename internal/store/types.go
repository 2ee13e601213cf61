package store

import "time"

// Kind distinguishes files from folders.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Source indicates which side last authored an Item record.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
	SourceMerged Source = "merged"
)

// SyncState is the per-item synchronization state machine position.
type SyncState string

const (
	SyncSynced      SyncState = "synced"
	SyncDirty       SyncState = "dirty"
	SyncDownloading SyncState = "downloading"
	SyncUploading   SyncState = "uploading"
	SyncConflicted  SyncState = "conflicted"
	SyncError       SyncState = "error"
)

// DownloadState tracks whether the Content Cache has the item's current body.
type DownloadState string

const (
	DownloadAbsent  DownloadState = "absent"
	DownloadPresent DownloadState = "present"
	DownloadStale   DownloadState = "stale"
)

// RootInode is the fixed inode number of the filesystem root.
const RootInode uint64 = 1

// Item is the durable unit of the metadata store.
type Item struct {
	RemoteID       string        `json:"remote_id"`
	ETag           string        `json:"etag"`
	CTag           string        `json:"ctag"`
	ParentRemoteID string        `json:"parent_remote_id"`
	Name           string        `json:"name"`
	Kind           Kind          `json:"kind"`
	Size           uint64        `json:"size"`
	MTime          time.Time     `json:"mtime"`
	CTime          time.Time     `json:"ctime"`
	Deleted        bool          `json:"deleted"`
	Inode          uint64        `json:"inode"`
	ParentInode    uint64        `json:"parent_inode"`
	VirtualPath    string        `json:"virtual_path"`
	Source         Source        `json:"source"`
	SyncState      SyncState     `json:"sync_state"`
	DownloadState  DownloadState `json:"download_state"`
	QuickXorHash   string        `json:"quick_xor_hash"`
}

// IsRoot reports whether this item is the synthetic root folder.
func (it *Item) IsRoot() bool { return it.Inode == RootInode }

// Op enumerates the processing-item operation tags.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpMove   Op = "move"
	OpRename Op = "rename"
)

// ChangeType distinguishes which side originated a ProcessingItem.
type ChangeType string

const (
	ChangeRemote ChangeType = "remote"
	ChangeLocal  ChangeType = "local"
)

// ProcessingStatus is the lifecycle position of a ProcessingItem.
type ProcessingStatus string

const (
	StatusNew        ProcessingStatus = "new"
	StatusValidated  ProcessingStatus = "validated"
	StatusConflicted ProcessingStatus = "conflicted"
	StatusError      ProcessingStatus = "error"
	StatusDone       ProcessingStatus = "done"
)

// ProcessingItem is a durable queue entry describing a pending change from
// either side.
type ProcessingItem struct {
	ID               uint64           `json:"id"`
	RemoteID         string           `json:"remote_id"`
	Op               Op               `json:"op"`
	ChangeType       ChangeType       `json:"change_type"`
	Status           ProcessingStatus `json:"status"`
	ValidationErrors []string         `json:"validation_errors"`
	RetryCount       int              `json:"retry_count"`
	Payload          Item             `json:"payload"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// DownloadStatus is the lifecycle position of a DownloadQueueEntry.
type DownloadStatus string

const (
	DownloadPending DownloadStatus = "pending"
	DownloadRunning DownloadStatus = "running"
	DownloadDone    DownloadStatus = "done"
	DownloadFailed  DownloadStatus = "failed"
)

// DownloadQueueEntry tracks an in-flight or pending content download.
// At most one entry per remote_id may be in a non-terminal status.
type DownloadQueueEntry struct {
	ID          uint64         `json:"id"`
	RemoteID    string         `json:"remote_id"`
	LocalInode  uint64         `json:"local_inode"`
	Priority    int            `json:"priority"`
	Status      DownloadStatus `json:"status"`
	RetryCount  int            `json:"retry_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the entry has left the active queue.
func (d DownloadQueueEntry) IsTerminal() bool {
	return d.Status == DownloadDone || d.Status == DownloadFailed
}

// DeltaCursor is the persisted remote change-stream position.
type DeltaCursor struct {
	Token      string    `json:"token"`
	LastSyncAt time.Time `json:"last_sync_at"`
}
