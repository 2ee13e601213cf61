// Package sync implements the Sync Processor: the two-phase
// engine that drains remote ProcessingItems, then local ones, detecting and
// auto-resolving conflicts and dispatching per-operation semantics.
package sync

import (
	"sort"

	"github.com/auriora/onedrivefs/internal/store"
)

// Squash compresses contiguous per-item runs in a local-phase queue
// before processing begins. It groups records by RemoteID
// (the item's current identity, temp or real), applies the five squash
// rules to each item's own subsequence independently, and reassembles the
// result in the original queue order of each surviving record's first
// contributing entry. Squashing never crosses a delete that wasn't
// immediately preceded by a create, and Squash is idempotent:
// Squash(Squash(q)) == Squash(q), because a squashed group contains no
// further adjacent same-type run and no create immediately followed by
// update/rename/move.
func Squash(items []store.ProcessingItem) []store.ProcessingItem {
	groups, order := groupByItem(items)

	var result []store.ProcessingItem
	firstOf := map[uint64]uint64{}
	for _, key := range order {
		result = append(result, squashGroup(groups[key], firstOf)...)
	}
	sort.SliceStable(result, func(a, b int) bool { return firstOf[result[a].ID] < firstOf[result[b].ID] })
	return result
}

func groupByItem(items []store.ProcessingItem) (map[string][]store.ProcessingItem, []string) {
	groups := map[string][]store.ProcessingItem{}
	var order []string
	for _, it := range items {
		if _, seen := groups[it.RemoteID]; !seen {
			order = append(order, it.RemoteID)
		}
		groups[it.RemoteID] = append(groups[it.RemoteID], it)
	}
	return groups, order
}

func squashGroup(group []store.ProcessingItem, firstOf map[uint64]uint64) []store.ProcessingItem {
	var result []store.ProcessingItem
	i := 0
	for i < len(group) {
		rec := group[i]

		if rec.Op == store.OpCreate {
			final := rec
			j := i + 1
			for j < len(group) && isMutationOp(group[j].Op) {
				final = mergeIntoCreate(final, group[j])
				j++
			}
			if j < len(group) && group[j].Op == store.OpDelete {
				// create ... delete: the item never needs to exist remotely.
				i = j + 1
				continue
			}
			firstOf[final.ID] = rec.ID
			result = append(result, final)
			i = j
			continue
		}

		if isMutationOp(rec.Op) {
			last := rec
			j := i
			for j+1 < len(group) && group[j+1].Op == rec.Op {
				j++
				last = group[j]
			}
			firstOf[last.ID] = rec.ID
			result = append(result, last)
			i = j + 1
			continue
		}

		// delete (not preceded by a create in this group) or any other
		// terminal op stands alone.
		firstOf[rec.ID] = rec.ID
		result = append(result, rec)
		i++
	}
	return result
}

func isMutationOp(op store.Op) bool {
	return op == store.OpUpdate || op == store.OpRename || op == store.OpMove
}

// mergeIntoCreate folds a following update/rename/move into a create
// record, keeping the final name, parent, and content (payload) as of the
// last record seen.
func mergeIntoCreate(create, next store.ProcessingItem) store.ProcessingItem {
	merged := create
	merged.Payload.Name = next.Payload.Name
	merged.Payload.ParentRemoteID = next.Payload.ParentRemoteID
	merged.Payload.ParentInode = next.Payload.ParentInode
	if next.Op == store.OpUpdate {
		merged.Payload.Size = next.Payload.Size
		merged.Payload.MTime = next.Payload.MTime
		merged.Payload.QuickXorHash = next.Payload.QuickXorHash
	}
	merged.UpdatedAt = next.UpdatedAt
	return merged
}
