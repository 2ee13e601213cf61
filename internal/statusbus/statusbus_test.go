package statusbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriora/onedrivefs/internal/status"
)

func TestLateSubscriberGetsLastSnapshot(t *testing.T) {
	b := New()
	b.Publish(status.Snapshot{Online: true, SyncState: status.SyncRunning})

	ch, unsub := b.Subscribe()
	defer unsub()

	select {
	case snap := <-ch:
		assert.True(t, snap.Online)
	default:
		t.Fatal("expected the last published snapshot to be delivered immediately")
	}
}

func TestPublishOverwritesUnreadSnapshot(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish(status.Snapshot{SyncState: status.SyncRunning})
	b.Publish(status.Snapshot{SyncState: status.SyncError, HasConflicts: true})

	snap := <-ch
	require.Equal(t, status.SyncError, snap.SyncState)
	assert.True(t, snap.HasConflicts)

	select {
	case <-ch:
		t.Fatal("only the latest snapshot should be buffered")
	default:
	}
}
