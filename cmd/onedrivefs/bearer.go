package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/auriora/onedrivefs/internal/graph"
)

// fileBearerSource reads a bearer token from a flat file on disk. OAuth2/PKCE
// acquisition and refresh are out of scope for this daemon; an external
// process (a login helper, a systemd credential, a manual paste) is expected
// to keep the token file current. A missing or empty file is reported as
// ErrInteractionRequired so the Status Port surfaces authenticated=false
// instead of the daemon spinning on a hard error.
type fileBearerSource struct {
	path string
	mu   sync.Mutex
}

func newFileBearerSource(path string) *fileBearerSource {
	return &fileBearerSource{path: path}
}

func (f *fileBearerSource) FetchBearer(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", graph.ErrInteractionRequired
		}
		return "", fmt.Errorf("read bearer token file: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", graph.ErrInteractionRequired
	}
	return token, nil
}
