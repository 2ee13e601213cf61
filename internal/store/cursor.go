package store

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var cursorKey = []byte("cursor")

// ReadCursor returns the persisted delta cursor, or a zero-value cursor if
// none has been written yet (first run).
func (s *Store) ReadCursor() (DeltaCursor, error) {
	var cursor DeltaCursor
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCursor).Get(cursorKey)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &cursor)
	})
	return cursor, err
}

// WriteCursor persists the cursor, last-writer-wins. Callers
// must only call this after all ingested items for the page have been
// committed to the processing queue, so a crash before this point replays
// the same page idempotently.
func (s *Store) WriteCursor(token string) error {
	cursor := DeltaCursor{Token: token, LastSyncAt: time.Now()}
	raw, err := json.Marshal(cursor)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCursor).Put(cursorKey, raw)
	})
}
