package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SETTLER - Closes a room's period and opens the next one
// =============================================================================

// Settler advances rooms to their next billing period.
//
// Per room:
//  1. Freeze the current bill into a BillRecord (total from Compute)
//  2. Append it to the room's bill history
//  3. Roll meters: a non-empty current reading becomes the previous one
//  4. Reset payment status to unpaid
//  5. Open the next period from the old period end
//
// Settlement does not require prior payment: unpaid rooms roll over too.
type Settler struct {
	Scheduler *Scheduler
	Defaults  Defaults

	// NewID generates bill record ids.
	NewID func() string
}

// NewSettler creates a Settler with uuid record ids.
func NewSettler(scheduler *Scheduler, defaults Defaults) *Settler {
	return &Settler{
		Scheduler: scheduler,
		Defaults:  defaults,
		NewID:     uuid.NewString,
	}
}

func (s *Settler) now() time.Time {
	if s.Scheduler != nil && s.Scheduler.Now != nil {
		return s.Scheduler.Now()
	}
	return time.Now()
}

// Record builds the BillRecord that settling room would archive.
func (s *Settler) Record(room Room) BillRecord {
	return BillRecord{
		ID:           s.NewID(),
		RecordedAt:   s.now().UTC().Format(time.RFC3339),
		StartDate:    room.BillStartDate,
		EndDate:      room.BillEndDate,
		Rent:         room.Rent,
		ElecPrev:     room.ElecPrev,
		ElecCurr:     room.ElecCurr,
		WaterPrev:    room.WaterPrev,
		WaterCurr:    room.WaterCurr,
		ExtraFees:    cloneFees(room.ExtraFees),
		Total:        NewNumber(ComputeTotal(room, s.Defaults)),
		TenantName:   room.TenantName,
		TenantPhone:  room.TenantPhone,
		TenantIDCard: room.TenantIDCard,
		RoomNo:       room.RoomNo,
	}
}

// Settle returns room advanced to its next period. The input is not modified.
func (s *Settler) Settle(room Room) Room {
	next := room.Clone()

	next.BillHistory = append(next.BillHistory, s.Record(room))

	if room.ElecCurr.IsSet() {
		next.ElecPrev = NewNumber(room.ElecCurr.Value())
	}
	next.ElecCurr = ""
	if room.WaterCurr.IsSet() {
		next.WaterPrev = NewNumber(room.WaterCurr.Value())
	}
	next.WaterCurr = ""

	next.Status = StatusUnpaid

	period := s.Scheduler.ComputePeriod(room.PayDay, room.BillEndDate)
	next.BillStartDate = period.Start
	next.BillEndDate = period.End
	return next
}

// SettleMany settles every room matching match and passes the rest through
// unchanged. Order is preserved.
func (s *Settler) SettleMany(rooms []Room, match Predicate) []Room {
	out := make([]Room, len(rooms))
	for i, r := range rooms {
		if match(r) {
			out[i] = s.Settle(r)
		} else {
			out[i] = r
		}
	}
	return out
}

// =============================================================================
// PREDICATES - Which rooms a batch settlement touches
// =============================================================================

type Predicate func(Room) bool

// AllRooms matches every room.
func AllRooms() Predicate {
	return func(Room) bool { return true }
}

// PayDayIs matches rooms billed on target. Both sides are coerced to
// integers first: stored pay-days may be strings from old data and the
// target may come from a form field. A target outside 1-31 matches nothing.
func PayDayIs(target any) Predicate {
	want := DayOf(target)
	if !validPayDay(want) {
		return func(Room) bool { return false }
	}
	return func(r Room) bool {
		return r.PayDay.Int() == int(want)
	}
}

// SettleTarget parses a batch settlement target: "all" (or empty) matches
// every room, anything else must coerce to a pay-day in 1-31.
func SettleTarget(target any) (Predicate, error) {
	if s, ok := target.(string); ok && (strings.TrimSpace(s) == "" || s == "all") {
		return AllRooms(), nil
	}
	if !validPayDay(DayOf(target)) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayDay, target)
	}
	return PayDayIs(target), nil
}

// =============================================================================
// SIDE TRANSITIONS
// =============================================================================

// MoveOut returns room vacated: tenant identity and extra fees cleared,
// status unpaid. Billing configuration (rent, pay-day, prices), readings
// and bill history stay. With returnDeposit the deposit becomes "0".
func MoveOut(room Room, returnDeposit bool) Room {
	next := room.Clone()
	if returnDeposit {
		next.Deposit = "0"
	}
	next.TenantName = ""
	next.TenantPhone = ""
	next.TenantIDCard = ""
	next.ExtraFees = []ExtraFee{}
	next.Status = StatusUnpaid
	return next
}

// SetStatus records a payment status change (unpaid -> paid on payment).
func SetStatus(room Room, status PaymentStatus) (Room, error) {
	if !status.Valid() {
		return room, ErrInvalidStatus
	}
	next := room.Clone()
	next.Status = status
	return next, nil
}
