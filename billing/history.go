package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// HISTORY - Bounded undo archive of whole-collection snapshots
// =============================================================================

// MaxArchives is the number of snapshots the undo archive retains.
const MaxArchives = 50

// HistoryItem is one snapshot of the full room collection.
type HistoryItem struct {
	Data []Room `json:"data"`
	Desc string `json:"desc"`
	Time string `json:"time"`
}

// HistoryState is the undo archive plus the present collection.
//
// Invariants after every Commit:
//   - len(Archives) <= MaxArchives
//   - Archives[0].Data equals Present
//   - Archives are newest first
//
// Archived data is deep-copied on the way in, so nothing that happens to
// Present afterwards can change what an archive entry recorded.
type HistoryState struct {
	Archives []HistoryItem `json:"archives"`
	Present  []Room        `json:"present"`
}

// NewHistory starts a history whose only archive is rooms labelled desc.
func NewHistory(rooms []Room, desc string, now time.Time) HistoryState {
	return HistoryState{}.Commit(rooms, desc, now)
}

// Commit returns a new state with rooms as the present and a new newest
// archive entry. The oldest entry is dropped once MaxArchives is exceeded.
// The receiver is not modified.
func (h HistoryState) Commit(rooms []Room, desc string, now time.Time) HistoryState {
	data := CloneRooms(rooms)
	if data == nil {
		data = []Room{}
	}
	item := HistoryItem{
		Data: data,
		Desc: desc,
		Time: formatArchiveTime(now),
	}

	n := len(h.Archives) + 1
	if n > MaxArchives {
		n = MaxArchives
	}
	archives := make([]HistoryItem, 0, n)
	archives = append(archives, item)
	for _, a := range h.Archives {
		if len(archives) == n {
			break
		}
		archives = append(archives, a)
	}

	return HistoryState{Archives: archives, Present: data}
}

// Restore commits a copy of the archive entry at index as the new present.
// Entries at and around index are kept: restoring is itself undoable.
func (h HistoryState) Restore(index int, now time.Time) (HistoryState, error) {
	if index < 0 || index >= len(h.Archives) {
		return h, fmt.Errorf("%w: index %d of %d", ErrArchiveNotFound, index, len(h.Archives))
	}
	item := h.Archives[index]
	return h.Commit(item.Data, RestoreDesc(item.Desc), now), nil
}

// Item returns a copy of the archive entry at index.
func (h HistoryState) Item(index int) (HistoryItem, bool) {
	if index < 0 || index >= len(h.Archives) {
		return HistoryItem{}, false
	}
	item := h.Archives[index]
	item.Data = CloneRooms(item.Data)
	return item, true
}

// RestoreDesc labels the archive entry created by restoring desc.
func RestoreDesc(desc string) string {
	return "restore to: " + desc
}

func formatArchiveTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
