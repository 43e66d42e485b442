package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// ACTIONS - Named collection operations, one commit each
// =============================================================================
//
// Change functions passed to apply run with b.mu held, so they read
// b.defaults and b.settlerLocked() directly.

// AddRoom adds a single room. A duplicate room number is rejected and the
// collection is left unchanged.
func (b *Book) AddRoom(draft RoomDraft) (Room, error) {
	var added Room
	_, err := b.applyDesc(OriginLocal, func(present []Room) ([]Room, string, error) {
		room, err := NewRoom(b.newID(), draft, b.defaults, b.scheduler, b.now())
		if err != nil {
			return nil, "", err
		}
		if err := checkUnique(present, room.RoomNo, ""); err != nil {
			return nil, "", err
		}
		added = room
		return append(present, room), "add " + room.RoomNo, nil
	})
	if err != nil {
		return Room{}, err
	}
	return added.Clone(), nil
}

// AddRooms adds a batch of drafts, skipping room numbers that already exist
// or repeat within the batch. If nothing is left, ErrNoNewRooms.
func (b *Book) AddRooms(drafts []RoomDraft) ([]Room, error) {
	var added []Room
	_, err := b.applyDesc(OriginLocal, func(present []Room) ([]Room, string, error) {
		unique := UniqueDrafts(present, drafts)
		if len(unique) == 0 {
			return nil, "", ErrNoNewRooms
		}
		now := b.now()
		for _, d := range unique {
			room, err := NewRoom(b.newID(), d, b.defaults, b.scheduler, now)
			if err != nil {
				return nil, "", err
			}
			added = append(added, room)
		}
		return append(present, added...), fmt.Sprintf("batch add %d rooms", len(added)), nil
	})
	if err != nil {
		return nil, err
	}
	return CloneRooms(added), nil
}

// SaveRoom merges patch into the room with id.
func (b *Book) SaveRoom(id string, patch RoomPatch) (Room, error) {
	return b.updateRoom(id, func(r Room) (Room, string, error) {
		return b.saveRoom(r, patch)
	})
}

func (b *Book) saveRoom(r Room, patch RoomPatch) (Room, string, error) {
	next, err := patch.Apply(r)
	if err != nil {
		return r, "", err
	}
	next.LastUpdated = b.now().UTC().Format(time.RFC3339)
	return next, "update room info", nil
}

// DeleteRoom removes one room.
func (b *Book) DeleteRoom(id string) error {
	_, err := b.Apply("delete room", func(present []Room) ([]Room, error) {
		i := FindRoom(present, id)
		if i < 0 {
			return nil, ErrRoomNotFound
		}
		return append(present[:i], present[i+1:]...), nil
	})
	return err
}

// DeleteRooms removes every room whose id is listed. Unknown ids are ignored.
func (b *Book) DeleteRooms(ids []string) ([]Room, error) {
	drop := idSet(ids)
	return b.Apply(fmt.Sprintf("batch delete %d items", len(drop)), func(present []Room) ([]Room, error) {
		out := present[:0]
		for _, r := range present {
			if !drop[r.ID] {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

// SetPayDay moves the listed rooms to a new pay-day. Their current period
// is kept; the new pay-day applies from the next fresh period.
func (b *Book) SetPayDay(ids []string, day Day) ([]Room, error) {
	if !validPayDay(day) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPayDay, day)
	}
	sel := idSet(ids)
	return b.Apply("batch change pay day", func(present []Room) ([]Room, error) {
		for i := range present {
			if sel[present[i].ID] {
				present[i].PayDay = day
			}
		}
		return present, nil
	})
}

// SettleRooms starts a new month for every room matching target: "all" or
// a pay-day given as a number or a numeric string. It returns the new
// collection and the ids of the rooms it settled. An invalid target is
// rejected before anything is committed.
func (b *Book) SettleRooms(target any) ([]Room, []string, error) {
	match, err := SettleTarget(target)
	if err != nil {
		return nil, nil, err
	}
	settled := []string{}
	rooms, err := b.Apply("start new month", func(present []Room) ([]Room, error) {
		for _, r := range present {
			if match(r) {
				settled = append(settled, r.ID)
			}
		}
		return b.settlerLocked().SettleMany(present, match), nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rooms, settled, nil
}

// SettleRoom starts a new month for one room.
func (b *Book) SettleRoom(id string) (Room, error) {
	return b.updateRoom(id, func(r Room) (Room, string, error) {
		return b.settlerLocked().Settle(r), "settle: " + r.RoomNo, nil
	})
}

// MoveOut vacates a room, optionally marking the deposit returned.
func (b *Book) MoveOut(id string, returnDeposit bool) (Room, error) {
	return b.updateRoom(id, func(r Room) (Room, string, error) {
		return MoveOut(r, returnDeposit), fmt.Sprintf("room %s moved out", r.RoomNo), nil
	})
}

// SetStatus records payment (or un-records it).
func (b *Book) SetStatus(id string, status PaymentStatus) (Room, error) {
	return b.updateRoom(id, func(r Room) (Room, string, error) {
		next, err := SetStatus(r, status)
		if err != nil {
			return r, "", err
		}
		next.LastUpdated = b.now().UTC().Format(time.RFC3339)
		return next, fmt.Sprintf("mark %s %s", r.RoomNo, status), nil
	})
}

// ===== HELPERS =====

// updateRoom commits a change to the single room with id. Renaming a room
// onto another room's number is rejected.
func (b *Book) updateRoom(id string, fn func(Room) (Room, string, error)) (Room, error) {
	var updated Room
	_, err := b.applyDesc(OriginLocal, func(present []Room) ([]Room, string, error) {
		i := FindRoom(present, id)
		if i < 0 {
			return nil, "", ErrRoomNotFound
		}
		next, desc, err := fn(present[i])
		if err != nil {
			return nil, "", err
		}
		if next.RoomNo != present[i].RoomNo {
			if err := checkUnique(present, next.RoomNo, id); err != nil {
				return nil, "", err
			}
		}
		present[i] = next
		updated = next
		return present, desc, nil
	})
	if err != nil {
		return Room{}, err
	}
	return updated.Clone(), nil
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
