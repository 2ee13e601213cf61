package store

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

func encodeProcessing(p *ProcessingItem) ([]byte, error) { return json.Marshal(p) }

func decodeProcessing(b []byte) (ProcessingItem, error) {
	var p ProcessingItem
	err := json.Unmarshal(b, &p)
	return p, err
}

// EnqueueProcessing creates a new ProcessingItem with status=new. To keep
// delta redelivery idempotent, a caller that already holds an identical
// (remote_id, op, change_type, etag) entry in a non-terminal status should
// check FindPendingByKey first and skip re-enqueueing.
func (s *Store) EnqueueProcessing(remoteID string, op Op, changeType ChangeType, payload Item) (ProcessingItem, error) {
	var created ProcessingItem
	err := s.db.Update(func(tx *bolt.Tx) error {
		id, err := s.nextID(tx, "processing")
		if err != nil {
			return err
		}
		now := time.Now()
		created = ProcessingItem{
			ID:         id,
			RemoteID:   remoteID,
			Op:         op,
			ChangeType: changeType,
			Status:     StatusNew,
			Payload:    payload,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		raw, err := encodeProcessing(&created)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProcessing).Put(encodeUint64(id), raw)
	})
	return created, err
}

// FindPendingByKey returns a non-terminal ProcessingItem matching remoteID,
// op, changeType, and the payload's etag, used to dedupe idempotent
// redelivery of the same delta.
func (s *Store) FindPendingByKey(remoteID string, op Op, changeType ChangeType, etag string) (ProcessingItem, bool) {
	all, _ := s.listProcessing(changeType)
	for _, p := range all {
		if p.RemoteID == remoteID && p.Op == op && p.Payload.ETag == etag &&
			(p.Status == StatusNew || p.Status == StatusValidated) {
			return p, true
		}
	}
	return ProcessingItem{}, false
}

// FindPendingOp returns a non-terminal ProcessingItem for remoteID/op on the
// given side regardless of its payload etag, used by conflict detection to
// check whether the other side also has a pending operation on the same
// item.
func (s *Store) FindPendingOp(remoteID string, op Op, changeType ChangeType) (ProcessingItem, bool) {
	all, _ := s.listProcessing(changeType)
	for _, p := range all {
		if p.RemoteID == remoteID && p.Op == op && (p.Status == StatusNew || p.Status == StatusValidated) {
			return p, true
		}
	}
	return ProcessingItem{}, false
}

// NextUnprocessed returns all processing items of the given change type that
// are still in status=new, in insertion (queue) order.
func (s *Store) NextUnprocessed(changeType ChangeType) ([]ProcessingItem, error) {
	all, err := s.listProcessing(changeType)
	if err != nil {
		return nil, err
	}
	var result []ProcessingItem
	for _, p := range all {
		if p.Status == StatusNew {
			result = append(result, p)
		}
	}
	return result, nil
}

// CountConflicted reports how many queued items across both change types
// are stuck waiting on manual conflict resolution, for the Status Port.
func (s *Store) CountConflicted() (int, error) {
	count := 0
	for _, changeType := range []ChangeType{ChangeRemote, ChangeLocal} {
		all, err := s.listProcessing(changeType)
		if err != nil {
			return 0, err
		}
		for _, p := range all {
			if p.Status == StatusConflicted {
				count++
			}
		}
	}
	return count, nil
}

func (s *Store) listProcessing(changeType ChangeType) ([]ProcessingItem, error) {
	var result []ProcessingItem
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketProcessing).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			p, err := decodeProcessing(v)
			if err != nil {
				return err
			}
			if p.ChangeType == changeType {
				result = append(result, p)
			}
		}
		return nil
	})
	return result, err
}

// UpdateStatus transitions a ProcessingItem's status.
func (s *Store) UpdateStatus(id uint64, status ProcessingStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketProcessing).Get(encodeUint64(id))
		if raw == nil {
			return ErrNotFound
		}
		p, err := decodeProcessing(raw)
		if err != nil {
			return err
		}
		p.Status = status
		p.UpdatedAt = time.Now()
		updated, err := encodeProcessing(&p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProcessing).Put(encodeUint64(id), updated)
	})
}

// SetValidationErrors records the retry cause and increments the retry
// counter, used when a transient failure sends the item back to new.
func (s *Store) SetValidationErrors(id uint64, errs []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketProcessing).Get(encodeUint64(id))
		if raw == nil {
			return ErrNotFound
		}
		p, err := decodeProcessing(raw)
		if err != nil {
			return err
		}
		p.ValidationErrors = errs
		p.RetryCount++
		p.UpdatedAt = time.Now()
		updated, err := encodeProcessing(&p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProcessing).Put(encodeUint64(id), updated)
	})
}

// DeleteProcessing removes a queue row outright (used by squashing, which
// removes create+delete pairs entirely rather than marking them done).
func (s *Store) DeleteProcessing(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProcessing).Delete(encodeUint64(id))
	})
}

// ReplaceProcessing overwrites an existing row in place, used by squashing
// to collapse a run of records into a single surviving one without
// disturbing its queue position.
func (s *Store) ReplaceProcessing(p ProcessingItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		raw, err := encodeProcessing(&p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProcessing).Put(encodeUint64(p.ID), raw)
	})
}

// Vacuum deletes done ProcessingItems older than olderThan, run periodically
// by the Scheduler's housekeeping task so the queue doesn't grow unbounded.
func (s *Store) Vacuum(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProcessing)
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			p, err := decodeProcessing(v)
			if err != nil {
				return err
			}
			if p.Status == StatusDone && p.UpdatedAt.Before(cutoff) {
				key := append([]byte{}, k...)
				toDelete = append(toDelete, key)
			}
		}
		for _, key := range toDelete {
			if err := b.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func rekeyProcessing(tx *bolt.Tx, oldRemoteID, newRemoteID string) error {
	b := tx.Bucket(bucketProcessing)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		p, err := decodeProcessing(v)
		if err != nil {
			return err
		}
		if p.RemoteID != oldRemoteID {
			continue
		}
		p.RemoteID = newRemoteID
		p.Payload.RemoteID = newRemoteID
		updated, err := encodeProcessing(&p)
		if err != nil {
			return err
		}
		if err := b.Put(k, updated); err != nil {
			return err
		}
	}
	return nil
}
