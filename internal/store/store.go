// Package store implements the Metadata Store: the durable,
// transactional mapping of remote items and filesystem metadata, the
// processing queue, the download queue, and the delta cursor. It is the
// sole long-lived shared-state owner in the system - every other
// component holds only a handle to it.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/auriora/onedrivefs/internal/logging"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketItems         = []byte("items")
	bucketItemsByRemote = []byte("items_by_remote") // remote_id -> inode
	bucketChildren      = []byte("children")        // parent_inode -> JSON []uint64 child inodes, ordered
	bucketProcessing    = []byte("processing")
	bucketDownloads     = []byte("downloads")
	bucketCursor        = []byte("cursor")
	bucketCounters      = []byte("counters")
)

// Store is a transactional metadata store backed by a single bbolt file.
// A single writer is active at a time (bolt.DB's own guarantee); unlimited
// concurrent readers are served from bolt's MVCC snapshots plus the
// read-through TTL cache layered in front of the Get* methods.
type Store struct {
	db    *bolt.DB
	cache *ttlCache
}

// Open creates or opens the metadata store at path, creating all buckets
// and seeding the root item (inode 1) on first use.
func Open(path string, cacheTTL time.Duration) (*Store, error) {
	logger := logging.For("store")

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	var db *bolt.DB
	var err error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		db, err = bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
		if err == nil {
			break
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("failed to open metadata store, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketItems, bucketItemsByRemote, bucketChildren, bucketProcessing, bucketDownloads, bucketCursor, bucketCounters} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	s := &Store{db: db, cache: newTTLCache(cacheTTL)}
	if err := s.seedInodeCounter(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ensureRoot(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// seedInodeCounter sets the "inode" counter to RootInode if it has never
// been written, so the first call to nextID(tx, "inode") for a genuinely
// new item returns RootInode+1 rather than colliding with root's own
// hardcoded inode. This must run before ensureRoot's Upsert, since root
// is inserted with a preset Inode and never goes through the nextID path
// itself.
func (s *Store) seedInodeCounter() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		if b.Get([]byte("inode")) != nil {
			return nil
		}
		return b.Put([]byte("inode"), encodeUint64(RootInode))
	})
}

func (s *Store) ensureRoot() error {
	if _, err := s.GetByInode(RootInode); err == nil {
		return nil
	}
	root := Item{
		RemoteID:      "root",
		Name:          "",
		Kind:          KindFolder,
		Inode:         RootInode,
		VirtualPath:   "",
		Source:        SourceRemote,
		SyncState:     SyncSynced,
		DownloadState: DownloadAbsent,
		MTime:         time.Now(),
		CTime:         time.Now(),
	}
	return s.Upsert(&root)
}

// Close flushes and closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// nextID allocates a monotonically increasing counter value keyed by name,
// used for inodes and processing/download queue ids.
func (s *Store) nextID(tx *bolt.Tx, name string) (uint64, error) {
	b := tx.Bucket(bucketCounters)
	key := []byte(name)
	current := b.Get(key)
	var n uint64
	if current != nil {
		n = decodeUint64(current)
	}
	n++
	return n, b.Put(key, encodeUint64(n))
}

// NextInode allocates the next unused 64-bit inode. Root is always 1;
// inodes are never reused after deletion. The counter is seeded to
// RootInode by Open, before root itself or any other item is ever
// written, so this always returns RootInode+1 or higher.
func (s *Store) NextInode() (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		id, err = s.nextID(tx, "inode")
		return err
	})
	return id, err
}
