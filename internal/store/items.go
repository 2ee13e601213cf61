package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

func encodeItem(it *Item) ([]byte, error) { return json.Marshal(it) }

func decodeItem(b []byte) (Item, error) {
	var it Item
	err := json.Unmarshal(b, &it)
	return it, err
}

// ErrNotFound is returned by the Get* lookups when no matching item exists.
var ErrNotFound = fmt.Errorf("store: item not found")

// GetByInode returns a copy of the item with the given inode.
func (s *Store) GetByInode(inode uint64) (Item, error) {
	if cached, ok := s.cache.get(inodeKey(inode)); ok {
		return cached, nil
	}
	var it Item
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketItems).Get(encodeUint64(inode))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		it, err = decodeItem(raw)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	s.cache.put(inodeKey(inode), it)
	return it, nil
}

// GetByRemoteID returns the item carrying the given remote id.
func (s *Store) GetByRemoteID(remoteID string) (Item, error) {
	if cached, ok := s.cache.get(remoteKey(remoteID)); ok {
		return cached, nil
	}
	var it Item
	err := s.db.View(func(tx *bolt.Tx) error {
		inodeRaw := tx.Bucket(bucketItemsByRemote).Get([]byte(remoteID))
		if inodeRaw == nil {
			return ErrNotFound
		}
		raw := tx.Bucket(bucketItems).Get(inodeRaw)
		if raw == nil {
			return ErrNotFound
		}
		var err error
		it, err = decodeItem(raw)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	s.cache.put(remoteKey(remoteID), it)
	return it, nil
}

// GetByPath returns the item at the given denormalized virtual path.
func (s *Store) GetByPath(path string) (Item, error) {
	if cached, ok := s.cache.get(pathKey(path)); ok {
		return cached, nil
	}
	var found Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketItems).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			it, err := decodeItem(v)
			if err != nil {
				return err
			}
			if !it.Deleted && it.VirtualPath == path {
				found = it
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return Item{}, err
	}
	s.cache.put(pathKey(path), found)
	return found, nil
}

// GetChild looks up a non-deleted child by (parent_inode, name), the
// uniqueness key enforced among live siblings.
func (s *Store) GetChild(parentInode uint64, name string) (Item, error) {
	if cached, ok := s.cache.get(parentNameKey(parentInode, name)); ok {
		return cached, nil
	}
	children, err := s.ListChildren(parentInode)
	if err != nil {
		return Item{}, err
	}
	for _, child := range children {
		if child.Name == name {
			s.cache.put(parentNameKey(parentInode, name), child)
			return child, nil
		}
	}
	return Item{}, ErrNotFound
}

// ListChildren returns all non-deleted children of parentInode, in the
// order recorded at insertion.
func (s *Store) ListChildren(parentInode uint64) ([]Item, error) {
	var result []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		childInodes, err := readChildList(tx, parentInode)
		if err != nil {
			return err
		}
		for _, inode := range childInodes {
			raw := tx.Bucket(bucketItems).Get(encodeUint64(inode))
			if raw == nil {
				continue
			}
			it, err := decodeItem(raw)
			if err != nil {
				return err
			}
			if !it.Deleted {
				result = append(result, it)
			}
		}
		return nil
	})
	return result, err
}

func readChildList(tx *bolt.Tx, parentInode uint64) ([]uint64, error) {
	raw := tx.Bucket(bucketChildren).Get(encodeUint64(parentInode))
	if raw == nil {
		return nil, nil
	}
	var list []uint64
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func writeChildList(tx *bolt.Tx, parentInode uint64, list []uint64) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketChildren).Put(encodeUint64(parentInode), raw)
}

func appendChild(tx *bolt.Tx, parentInode, childInode uint64) error {
	list, err := readChildList(tx, parentInode)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == childInode {
			return nil
		}
	}
	list = append(list, childInode)
	return writeChildList(tx, parentInode, list)
}

func removeChild(tx *bolt.Tx, parentInode, childInode uint64) error {
	list, err := readChildList(tx, parentInode)
	if err != nil {
		return err
	}
	out := list[:0]
	for _, existing := range list {
		if existing != childInode {
			out = append(out, existing)
		}
	}
	return writeChildList(tx, parentInode, out)
}

// Upsert inserts or updates an item. If item.Inode is zero, a new inode is
// assigned. Renaming or moving an item (name or parent inode change)
// recomputes its own virtual_path and recurses into descendants so every
// virtual_path still matches the parent chain after the transaction
// commits. Name uniqueness within a parent is enforced against
// non-deleted siblings.
func (s *Store) Upsert(item *Item) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		isNew := item.Inode == 0
		if isNew {
			id, err := s.nextID(tx, "inode")
			if err != nil {
				return err
			}
			item.Inode = id
		}

		var previous *Item
		if raw := tx.Bucket(bucketItems).Get(encodeUint64(item.Inode)); raw != nil {
			prev, err := decodeItem(raw)
			if err != nil {
				return err
			}
			previous = &prev
			s.cache.purgeItem(prev)
		}

		if !item.IsRoot() {
			if err := enforceNameUniqueness(tx, item); err != nil {
				return err
			}
			item.VirtualPath = computeVirtualPath(tx, item.ParentInode, item.Name)
		}

		if err := s.writeItem(tx, item); err != nil {
			return err
		}

		if previous == nil {
			if !item.IsRoot() {
				if err := appendChild(tx, item.ParentInode, item.Inode); err != nil {
					return err
				}
			}
		} else if previous.ParentInode != item.ParentInode || (previous.Deleted && !item.Deleted) {
			if err := removeChild(tx, previous.ParentInode, item.Inode); err != nil {
				return err
			}
			if err := appendChild(tx, item.ParentInode, item.Inode); err != nil {
				return err
			}
		}

		if previous == nil || previous.VirtualPath != item.VirtualPath {
			if err := recomputeDescendantPaths(tx, s.cache, item.Inode, item.VirtualPath); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) writeItem(tx *bolt.Tx, item *Item) error {
	raw, err := encodeItem(item)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketItems).Put(encodeUint64(item.Inode), raw); err != nil {
		return err
	}
	if item.RemoteID != "" {
		if err := tx.Bucket(bucketItemsByRemote).Put([]byte(item.RemoteID), encodeUint64(item.Inode)); err != nil {
			return err
		}
	}
	s.cache.purgeItem(*item)
	return nil
}

func enforceNameUniqueness(tx *bolt.Tx, item *Item) error {
	childInodes, err := readChildList(tx, item.ParentInode)
	if err != nil {
		return err
	}
	for _, inode := range childInodes {
		if inode == item.Inode {
			continue
		}
		raw := tx.Bucket(bucketItems).Get(encodeUint64(inode))
		if raw == nil {
			continue
		}
		sibling, err := decodeItem(raw)
		if err != nil {
			return err
		}
		if !sibling.Deleted && sibling.Name == item.Name {
			return fmt.Errorf("store: name %q already exists under parent inode %d", item.Name, item.ParentInode)
		}
	}
	return nil
}

func computeVirtualPath(tx *bolt.Tx, parentInode uint64, name string) string {
	if parentInode == RootInode || parentInode == 0 {
		return "/" + name
	}
	raw := tx.Bucket(bucketItems).Get(encodeUint64(parentInode))
	if raw == nil {
		return "/" + name
	}
	parent, err := decodeItem(raw)
	if err != nil {
		return "/" + name
	}
	if parent.VirtualPath == "" {
		return "/" + name
	}
	return parent.VirtualPath + "/" + name
}

// recomputeDescendantPaths rewrites virtual_path for every descendant of
// inode after its own virtual_path has just been written.
func recomputeDescendantPaths(tx *bolt.Tx, cache *ttlCache, inode uint64, newPath string) error {
	childInodes, err := readChildList(tx, inode)
	if err != nil {
		return err
	}
	for _, childInode := range childInodes {
		raw := tx.Bucket(bucketItems).Get(encodeUint64(childInode))
		if raw == nil {
			continue
		}
		child, err := decodeItem(raw)
		if err != nil {
			return err
		}
		cache.purgeItem(child)
		child.VirtualPath = newPath + "/" + child.Name
		updated, err := encodeItem(&child)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketItems).Put(encodeUint64(childInode), updated); err != nil {
			return err
		}
		cache.purgeItem(child)
		if err := recomputeDescendantPaths(tx, cache, childInode, child.VirtualPath); err != nil {
			return err
		}
	}
	return nil
}

// MarkDeleted tombstones the item carrying remoteID.
// The caller is responsible for cascading to children in post-order before
// calling this on a folder, and for evicting cache/queue entries.
func (s *Store) MarkDeleted(remoteID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		inodeRaw := tx.Bucket(bucketItemsByRemote).Get([]byte(remoteID))
		if inodeRaw == nil {
			return ErrNotFound
		}
		raw := tx.Bucket(bucketItems).Get(inodeRaw)
		if raw == nil {
			return ErrNotFound
		}
		it, err := decodeItem(raw)
		if err != nil {
			return err
		}
		it.Deleted = true
		updated, err := encodeItem(&it)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketItems).Put(inodeRaw, updated); err != nil {
			return err
		}
		s.cache.purgeItem(it)
		return removeChild(tx, it.ParentInode, it.Inode)
	})
}

// Rekey atomically rewrites every reference to oldRemoteID (the item record,
// the secondary index, and all ProcessingItem/DownloadQueueEntry rows) to
// newRemoteID. This is the store-side half of a temp-to-real id swap: the
// content cache's blob rename is performed separately by the caller under
// the same logical operation.
func (s *Store) Rekey(oldRemoteID, newRemoteID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		inodeRaw := tx.Bucket(bucketItemsByRemote).Get([]byte(oldRemoteID))
		if inodeRaw == nil {
			return ErrNotFound
		}
		raw := tx.Bucket(bucketItems).Get(inodeRaw)
		if raw == nil {
			return ErrNotFound
		}
		it, err := decodeItem(raw)
		if err != nil {
			return err
		}
		s.cache.purgeItem(it)
		it.RemoteID = newRemoteID
		it.Source = SourceMerged
		updated, err := encodeItem(&it)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketItems).Put(inodeRaw, updated); err != nil {
			return err
		}
		if err := tx.Bucket(bucketItemsByRemote).Delete([]byte(oldRemoteID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketItemsByRemote).Put([]byte(newRemoteID), inodeRaw); err != nil {
			return err
		}

		if err := rekeyProcessing(tx, oldRemoteID, newRemoteID); err != nil {
			return err
		}
		return rekeyDownloads(tx, oldRemoteID, newRemoteID)
	})
}
