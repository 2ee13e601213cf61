package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

func encodeDownload(d *DownloadQueueEntry) ([]byte, error) { return json.Marshal(d) }

func decodeDownload(b []byte) (DownloadQueueEntry, error) {
	var d DownloadQueueEntry
	err := json.Unmarshal(b, &d)
	return d, err
}

// EnqueueDownload inserts a download queue entry, refusing to create a
// second non-terminal entry for the same remote id. If one already exists it is
// returned unchanged.
func (s *Store) EnqueueDownload(remoteID string, localInode uint64, priority int) (DownloadQueueEntry, error) {
	var result DownloadQueueEntry
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDownloads)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			existing, err := decodeDownload(v)
			if err != nil {
				return err
			}
			if existing.RemoteID == remoteID && !existing.IsTerminal() {
				result = existing
				return nil
			}
		}
		id, err := s.nextID(tx, "download")
		if err != nil {
			return err
		}
		now := time.Now()
		result = DownloadQueueEntry{
			ID:         id,
			RemoteID:   remoteID,
			LocalInode: localInode,
			Priority:   priority,
			Status:     DownloadPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		raw, err := encodeDownload(&result)
		if err != nil {
			return err
		}
		return b.Put(encodeUint64(id), raw)
	})
	return result, err
}

// UpdateDownloadStatus transitions a download queue entry.
func (s *Store) UpdateDownloadStatus(id uint64, status DownloadStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDownloads)
		raw := b.Get(encodeUint64(id))
		if raw == nil {
			return ErrNotFound
		}
		d, err := decodeDownload(raw)
		if err != nil {
			return err
		}
		d.Status = status
		d.UpdatedAt = time.Now()
		if status == DownloadFailed {
			d.RetryCount++
		}
		updated, err := encodeDownload(&d)
		if err != nil {
			return err
		}
		return b.Put(encodeUint64(id), updated)
	})
}

// GetActiveDownload returns the non-terminal download entry for remoteID,
// if any.
func (s *Store) GetActiveDownload(remoteID string) (DownloadQueueEntry, bool) {
	var found DownloadQueueEntry
	var ok bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDownloads).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			d, err := decodeDownload(v)
			if err != nil {
				return err
			}
			if d.RemoteID == remoteID && !d.IsTerminal() {
				found, ok = d, true
				return nil
			}
		}
		return nil
	})
	return found, ok
}

func rekeyDownloads(tx *bolt.Tx, oldRemoteID, newRemoteID string) error {
	b := tx.Bucket(bucketDownloads)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		d, err := decodeDownload(v)
		if err != nil {
			return err
		}
		if d.RemoteID != oldRemoteID {
			continue
		}
		d.RemoteID = newRemoteID
		updated, err := encodeDownload(&d)
		if err != nil {
			return err
		}
		if err := b.Put(k, updated); err != nil {
			return err
		}
	}
	return nil
}

// AssertNoReferences is a test/debug helper validating that no
// ProcessingItem or DownloadQueueEntry references oldRemoteID after a
// rekey.
func (s *Store) AssertNoReferences(remoteID string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		pc := tx.Bucket(bucketProcessing).Cursor()
		for k, v := pc.First(); k != nil; k, v = pc.Next() {
			p, err := decodeProcessing(v)
			if err != nil {
				return err
			}
			if p.RemoteID == remoteID {
				return fmt.Errorf("store: processing item %d still references %s", p.ID, remoteID)
			}
		}
		dc := tx.Bucket(bucketDownloads).Cursor()
		for k, v := dc.First(); k != nil; k, v = dc.Next() {
			d, err := decodeDownload(v)
			if err != nil {
				return err
			}
			if d.RemoteID == remoteID {
				return fmt.Errorf("store: download entry %d still references %s", d.ID, remoteID)
			}
		}
		return nil
	})
}
