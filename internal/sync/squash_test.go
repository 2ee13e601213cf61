package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auriora/onedrivefs/internal/store"
)

func pitem(id uint64, remoteID string, op store.Op, name string) store.ProcessingItem {
	return store.ProcessingItem{
		ID:         id,
		RemoteID:   remoteID,
		Op:         op,
		ChangeType: store.ChangeLocal,
		Status:     store.StatusNew,
		Payload:    store.Item{RemoteID: remoteID, Name: name},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestSquashCreateThenDeleteRemovesBoth(t *testing.T) {
	in := []store.ProcessingItem{
		pitem(1, "temp-1", store.OpCreate, "a.txt"),
		pitem(2, "temp-1", store.OpDelete, "a.txt"),
	}
	out := Squash(in)
	assert.Empty(t, out)
}

func TestSquashCreateThenUpdatesFoldIntoCreate(t *testing.T) {
	in := []store.ProcessingItem{
		pitem(1, "temp-1", store.OpCreate, "a.txt"),
		pitem(2, "temp-1", store.OpRename, "b.txt"),
		pitem(3, "temp-1", store.OpUpdate, "b.txt"),
	}
	out := Squash(in)
	require.Len(t, out, 1)
	assert.Equal(t, store.OpCreate, out[0].Op)
	assert.Equal(t, uint64(1), out[0].ID)
	assert.Equal(t, "b.txt", out[0].Payload.Name)
}

func TestSquashConsecutiveUpdatesKeepLast(t *testing.T) {
	in := []store.ProcessingItem{
		pitem(1, "r1", store.OpUpdate, "a.txt"),
		pitem(2, "r1", store.OpUpdate, "a.txt"),
		pitem(3, "r1", store.OpUpdate, "a.txt"),
	}
	out := Squash(in)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(3), out[0].ID)
}

func TestSquashDoesNotCrossUnrelatedDelete(t *testing.T) {
	in := []store.ProcessingItem{
		pitem(1, "r1", store.OpUpdate, "a.txt"),
		pitem(2, "r1", store.OpDelete, "a.txt"),
	}
	out := Squash(in)
	require.Len(t, out, 2, "a delete not immediately preceded by a create must survive squashing")
}

func TestSquashInterleavedItemsPreserveEachOthersRuns(t *testing.T) {
	in := []store.ProcessingItem{
		pitem(1, "r1", store.OpUpdate, "a.txt"),
		pitem(2, "r2", store.OpCreate, "b.txt"),
		pitem(3, "r1", store.OpUpdate, "a.txt"),
		pitem(4, "r2", store.OpDelete, "b.txt"),
	}
	out := Squash(in)
	require.Len(t, out, 1, "r2's create+delete squash away entirely, leaving only r1's collapsed update")
	assert.Equal(t, "r1", out[0].RemoteID)
	assert.Equal(t, uint64(3), out[0].ID)
}

func TestSquashIsIdempotent(t *testing.T) {
	in := []store.ProcessingItem{
		pitem(1, "r1", store.OpCreate, "a.txt"),
		pitem(2, "r1", store.OpRename, "b.txt"),
		pitem(3, "r2", store.OpUpdate, "c.txt"),
		pitem(4, "r2", store.OpUpdate, "c.txt"),
	}
	once := Squash(in)
	twice := Squash(once)
	assert.Equal(t, once, twice)
}
