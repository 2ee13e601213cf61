package sync

// ConflictTag names a specific disagreement between local and remote state
// found by conflict detection. Remote tags describe a disagreement
// surfaced while applying a remote-origin change; local tags are their
// mirror image, surfaced while applying a local-origin change.
type ConflictTag string

const (
	ConflictCreateOnCreate        ConflictTag = "create_on_create"
	ConflictModifyOnModify        ConflictTag = "modify_on_modify"
	ConflictModifyOnDelete        ConflictTag = "modify_on_delete"
	ConflictModifyOnParentDelete  ConflictTag = "modify_on_parent_delete"
	ConflictDeleteOnModify        ConflictTag = "delete_on_modify"
	ConflictRenameOrMoveOnExisting ConflictTag = "rename_or_move_on_existing"
	ConflictMoveOnMove            ConflictTag = "move_on_move"
	ConflictMoveToDeletedParent   ConflictTag = "move_to_deleted_parent"

	ConflictCreateOnExisting      ConflictTag = "create_on_existing"
	ConflictModifyOnDeleted       ConflictTag = "modify_on_deleted"
	ConflictModifyOnModified      ConflictTag = "modify_on_modified"
	ConflictDeleteOnModified      ConflictTag = "delete_on_modified"
	ConflictRenameOrMoveToExisting ConflictTag = "rename_or_move_to_existing"
	ConflictRenameOrMoveOfDeleted ConflictTag = "rename_or_move_of_deleted"
)

// AutoResolvable reports whether the resolver may fix this conflict itself
// by restoring a locally-deleted ancestor chain. Every other tag, remote or
// local, requires a human to resolve it.
func (t ConflictTag) AutoResolvable() bool {
	return t == ConflictModifyOnParentDelete || t == ConflictMoveToDeletedParent
}

// Download queue priorities, recorded on each DownloadQueueEntry.
// PriorityForeground marks a fetch a FUSE open is blocked on;
// PriorityBackground marks an entry queued on remote create or on a stale
// remote update. Nothing orders or services the queue by priority.
const (
	PriorityForeground = 0
	PriorityBackground = 10
)

// Config carries the operator-tunable knobs the processor needs but the
// metadata store and remote port do not.
type Config struct {
	// LargeUploadThreshold is the content size, in bytes, above which a
	// local create/update uses the chunked resumable upload path instead
	// of a single small-file PUT.
	LargeUploadThreshold uint64
	// DownloadFolders lists virtual-path prefixes whose files get a
	// download-queue entry on remote create; that entry is not fetched by
	// itself, and every file stays a placeholder until its placeholder name
	// is opened.
	DownloadFolders []string
}

// DefaultLargeUploadThreshold matches the conventional OneDrive small-file
// upload ceiling.
const DefaultLargeUploadThreshold uint64 = 4 * 1024 * 1024
