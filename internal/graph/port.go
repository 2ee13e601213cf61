package graph

import (
	"context"
	"errors"
	"io"
)

// ErrInteractionRequired is returned by a BearerSource when the user must
// complete an interactive auth flow (e.g. re-consent) before a token can be
// issued. The core never attempts to resolve this itself; it surfaces
// authenticated=false via the Status Port until a caller resolves it
// out-of-band.
var ErrInteractionRequired = errors.New("graph: user interaction required to obtain bearer token")

// BearerSource is the sole capability the core requires from the auth
// collaborator. OAuth2/PKCE acquisition and refresh live entirely outside
// this module.
type BearerSource interface {
	FetchBearer(ctx context.Context) (string, error)
}

// RemoteClient is the Remote Port: a typed capability interface
// the sync core depends on. All calls are expected to carry a bearer token
// obtained internally from a BearerSource: the core never persists the
// token itself.
type RemoteClient interface {
	// Delta returns the next page of the remote change stream starting
	// from cursor (empty string requests a full initial delta).
	Delta(ctx context.Context, cursor string) (DeltaPage, error)

	GetItem(ctx context.Context, remoteID string) (RemoteItem, error)
	ListChildren(ctx context.Context, remoteID string) ([]RemoteItem, error)

	Download(ctx context.Context, remoteID string) (io.ReadCloser, error)
	DownloadRange(ctx context.Context, remoteID string, offset, length int64) (io.ReadCloser, error)

	UploadSmall(ctx context.Context, parentID, name string, content []byte) (RemoteItem, error)
	// UploadLarge uploads size bytes read from content. The HTTP Client
	// sends them in chunks through a server-issued upload session, opening
	// a new session on every call; an interrupted upload is not resumed.
	UploadLarge(ctx context.Context, parentID, name string, content io.Reader, size int64) (RemoteItem, error)

	CreateFolder(ctx context.Context, parentID, name string) (RemoteItem, error)
	Patch(ctx context.Context, remoteID string, patch PatchSpec) (RemoteItem, error)
	Delete(ctx context.Context, remoteID string) error
}
