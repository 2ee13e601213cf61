// Package statusbus is the in-process pub/sub fan-out for status.Snapshot
// values, consumed by transport adapters such as
// internal/dbusstatus. Publishing never blocks on a slow subscriber: each
// subscriber gets its own buffered channel and a stale value is simply
// overwritten if it hasn't been drained by the next publish.
package statusbus

import (
	"sync"

	"github.com/auriora/onedrivefs/internal/status"
)

// Bus fans out status snapshots to any number of subscribers and keeps the
// most recently published snapshot for late joiners.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan status.Snapshot
	nextID      int
	last        status.Snapshot
	haveLast    bool
}

func New() *Bus {
	return &Bus{subscribers: map[int]chan status.Snapshot{}}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is buffered (size 1) and holds only the
// latest snapshot: Publish drops the previous buffered value rather than
// blocking if the subscriber hasn't read it yet.
func (b *Bus) Subscribe() (<-chan status.Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan status.Snapshot, 1)
	if b.haveLast {
		ch <- b.last
	}
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish broadcasts snap to every current subscriber.
func (b *Bus) Publish(snap status.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = snap
	b.haveLast = true
	for _, ch := range b.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
