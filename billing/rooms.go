package billing

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROOM CREATION
// =============================================================================

// UnnamedRoom is the room number given to a draft without one.
const UnnamedRoom = "unnamed"

// RoomDraft is the user-supplied part of a new room.
type RoomDraft struct {
	RoomNo          string  `json:"roomNo"`
	Rent            Numeric `json:"rent"`
	Deposit         Numeric `json:"deposit"`
	PayDay          Day     `json:"payDay"`
	MoveInDate      string  `json:"moveInDate,omitempty"`
	FixedElecPrice  Numeric `json:"fixedElecPrice,omitempty"`
	FixedWaterPrice Numeric `json:"fixedWaterPrice,omitempty"`
}

func validPayDay(d Day) bool {
	return d >= 1 && d <= 31
}

// NewRoom builds a fresh room from a draft. Rent falls back to the default
// rent, pay-day to the 1st. The first period comes from the scheduler, both
// meters start at zero and no current readings are recorded.
func NewRoom(id string, draft RoomDraft, defaults Defaults, scheduler *Scheduler, now time.Time) (Room, error) {
	payDay := draft.PayDay
	if payDay == 0 {
		payDay = 1
	}
	if !validPayDay(payDay) {
		return Room{}, fmt.Errorf("%w: %d", ErrInvalidPayDay, payDay)
	}

	roomNo := normalizeRoomNo(draft.RoomNo)
	rent := draft.Rent
	if !rent.IsSet() {
		rent = defaults.DefaultRent
	}

	period := scheduler.ComputePeriod(payDay, Date{})
	return Room{
		ID:              id,
		RoomNo:          roomNo,
		Rent:            rent,
		Deposit:         draft.Deposit,
		PayDay:          payDay,
		MoveInDate:      draft.MoveInDate,
		FixedElecPrice:  draft.FixedElecPrice,
		FixedWaterPrice: draft.FixedWaterPrice,
		ElecCurr:        "",
		WaterCurr:       "",
		ExtraFees:       []ExtraFee{},
		Status:          StatusUnpaid,
		LastUpdated:     now.UTC().Format(time.RFC3339),
		BillStartDate:   period.Start,
		BillEndDate:     period.End,
		BillHistory:     []BillRecord{},
	}, nil
}

// normalizeRoomNo trims s; a blank room number becomes UnnamedRoom.
func normalizeRoomNo(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnnamedRoom
	}
	return s
}

// checkUnique fails if roomNo is used by any room other than skipID.
// Stored numbers are compared in normalized form.
func checkUnique(rooms []Room, roomNo, skipID string) error {
	for _, r := range rooms {
		if normalizeRoomNo(r.RoomNo) == roomNo && r.ID != skipID {
			return &DuplicateRoomError{RoomNo: roomNo, ExistingID: r.ID}
		}
	}
	return nil
}

// UniqueDrafts drops drafts whose room number already exists in rooms or
// appears earlier in the same batch. Room numbers are compared the way
// NewRoom stores them, and the returned drafts carry the normalized number.
func UniqueDrafts(rooms []Room, drafts []RoomDraft) []RoomDraft {
	seen := make(map[string]bool, len(rooms)+len(drafts))
	for _, r := range rooms {
		seen[normalizeRoomNo(r.RoomNo)] = true
	}
	out := make([]RoomDraft, 0, len(drafts))
	for _, d := range drafts {
		no := normalizeRoomNo(d.RoomNo)
		if seen[no] {
			continue
		}
		seen[no] = true
		d.RoomNo = no
		out = append(out, d)
	}
	return out
}

// =============================================================================
// BATCH GENERATION
// =============================================================================

// BatchSpec describes a block of rooms: floors FloorStart..FloorEnd with
// PerFloor rooms each, numbered <Prefix><floor><NN>.
type BatchSpec struct {
	Prefix          string  `json:"prefix"`
	FloorStart      int     `json:"floorStart"`
	FloorEnd        int     `json:"floorEnd"`
	PerFloor        int     `json:"perFloor"`
	Rent            Numeric `json:"rent"`
	Deposit         Numeric `json:"deposit"`
	PayDay          Day     `json:"payDay"`
	FixedElecPrice  Numeric `json:"fixedElecPrice,omitempty"`
	FixedWaterPrice Numeric `json:"fixedWaterPrice,omitempty"`
}

// maxBatchRooms bounds a single generated batch.
const maxBatchRooms = 2000

// PreviewBatch expands spec into drafts without touching any collection.
func PreviewBatch(spec BatchSpec) ([]RoomDraft, error) {
	if spec.FloorStart < 0 || spec.FloorEnd < spec.FloorStart || spec.PerFloor < 1 {
		return nil, fmt.Errorf("%w: floors %d-%d, %d per floor", ErrInvalidBatch, spec.FloorStart, spec.FloorEnd, spec.PerFloor)
	}
	// Each factor is bounded before multiplying so the product cannot wrap.
	if spec.FloorEnd-spec.FloorStart >= maxBatchRooms || spec.PerFloor > maxBatchRooms {
		return nil, fmt.Errorf("%w: more than %d rooms", ErrInvalidBatch, maxBatchRooms)
	}
	floors := spec.FloorEnd - spec.FloorStart + 1
	if floors*spec.PerFloor > maxBatchRooms {
		return nil, fmt.Errorf("%w: %d rooms exceeds %d", ErrInvalidBatch, floors*spec.PerFloor, maxBatchRooms)
	}
	if spec.PayDay != 0 && !validPayDay(spec.PayDay) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPayDay, spec.PayDay)
	}

	drafts := make([]RoomDraft, 0, floors*spec.PerFloor)
	for f := spec.FloorStart; f <= spec.FloorEnd; f++ {
		for r := 1; r <= spec.PerFloor; r++ {
			drafts = append(drafts, RoomDraft{
				RoomNo:          fmt.Sprintf("%s%d%02d", spec.Prefix, f, r),
				Rent:            spec.Rent,
				Deposit:         spec.Deposit,
				PayDay:          spec.PayDay,
				FixedElecPrice:  spec.FixedElecPrice,
				FixedWaterPrice: spec.FixedWaterPrice,
			})
		}
	}
	return drafts, nil
}

// =============================================================================
// ROOM EDITS
// =============================================================================

// RoomPatch is a partial room update. Nil fields are left alone.
type RoomPatch struct {
	RoomNo          *string        `json:"roomNo,omitempty"`
	Rent            *Numeric       `json:"rent,omitempty"`
	Deposit         *Numeric       `json:"deposit,omitempty"`
	PayDay          *Day           `json:"payDay,omitempty"`
	MoveInDate      *string        `json:"moveInDate,omitempty"`
	TenantName      *string        `json:"tenantName,omitempty"`
	TenantPhone     *string        `json:"tenantPhone,omitempty"`
	TenantIDCard    *string        `json:"tenantIdCard,omitempty"`
	FixedElecPrice  *Numeric       `json:"fixedElecPrice,omitempty"`
	FixedWaterPrice *Numeric       `json:"fixedWaterPrice,omitempty"`
	ElecPrev        *Number        `json:"elecPrev,omitempty"`
	ElecCurr        *Numeric       `json:"elecCurr,omitempty"`
	WaterPrev       *Number        `json:"waterPrev,omitempty"`
	WaterCurr       *Numeric       `json:"waterCurr,omitempty"`
	ExtraFees       *[]ExtraFee    `json:"extraFees,omitempty"`
	Status          *PaymentStatus `json:"status,omitempty"`
	BillStartDate   *Date          `json:"billStartDate,omitempty"`
	BillEndDate     *Date          `json:"billEndDate,omitempty"`
}

// Apply returns room with the patch merged in.
func (p RoomPatch) Apply(room Room) (Room, error) {
	next := room.Clone()
	if p.RoomNo != nil {
		next.RoomNo = normalizeRoomNo(*p.RoomNo)
	}
	if p.PayDay != nil {
		if !validPayDay(*p.PayDay) {
			return room, fmt.Errorf("%w: %d", ErrInvalidPayDay, *p.PayDay)
		}
		next.PayDay = *p.PayDay
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return room, ErrInvalidStatus
		}
		next.Status = *p.Status
	}
	setIf(&next.Rent, p.Rent)
	setIf(&next.Deposit, p.Deposit)
	setIf(&next.MoveInDate, p.MoveInDate)
	setIf(&next.TenantName, p.TenantName)
	setIf(&next.TenantPhone, p.TenantPhone)
	setIf(&next.TenantIDCard, p.TenantIDCard)
	setIf(&next.FixedElecPrice, p.FixedElecPrice)
	setIf(&next.FixedWaterPrice, p.FixedWaterPrice)
	setIf(&next.ElecPrev, p.ElecPrev)
	setIf(&next.ElecCurr, p.ElecCurr)
	setIf(&next.WaterPrev, p.WaterPrev)
	setIf(&next.WaterCurr, p.WaterCurr)
	setIf(&next.BillStartDate, p.BillStartDate)
	setIf(&next.BillEndDate, p.BillEndDate)
	if p.ExtraFees != nil {
		next.ExtraFees = cloneFees(*p.ExtraFees)
	}
	return next, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// FindRoom returns the index of the room with id, or -1.
func FindRoom(rooms []Room, id string) int {
	for i, r := range rooms {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// FindRoomNo returns the index of the room numbered roomNo, or -1.
func FindRoomNo(rooms []Room, roomNo string) int {
	for i, r := range rooms {
		if r.RoomNo == roomNo {
			return i
		}
	}
	return -1
}

// =============================================================================
// QUERIES - Read-only views over a collection
// =============================================================================

// OtherBuilding groups room numbers without a building prefix.
const OtherBuilding = "other"

var buildingPrefix = regexp.MustCompile(`^(\D+)\d+`)

// BuildingOf derives a building label from a room number: the non-digit
// prefix before the first digits, with '-' and '_' removed. "A-101" is in
// building "A", "305" is in OtherBuilding.
func BuildingOf(roomNo string) string {
	m := buildingPrefix.FindStringSubmatch(roomNo)
	if m == nil {
		return OtherBuilding
	}
	return strings.NewReplacer("-", "", "_", "").Replace(m[1])
}

// Buildings lists the distinct building labels in rooms, sorted.
func Buildings(rooms []Room) []string {
	set := map[string]bool{}
	for _, r := range rooms {
		set[BuildingOf(r.RoomNo)] = true
	}
	out := make([]string, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Filter narrows a room list. Zero fields match everything.
type Filter struct {
	Query    string // case-insensitive substring of the room number
	Building string
	PayDay   Day
}

// Apply returns the rooms matching every set criterion, in input order.
func (f Filter) Apply(rooms []Room) []Room {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]Room, 0, len(rooms))
	for _, r := range rooms {
		if q != "" && !strings.Contains(strings.ToLower(r.RoomNo), q) {
			continue
		}
		if f.Building != "" && BuildingOf(r.RoomNo) != f.Building {
			continue
		}
		if f.PayDay != 0 && r.PayDay.Int() != f.PayDay.Int() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// PayDayGroup counts rooms sharing a pay-day.
type PayDayGroup struct {
	PayDay int `json:"payDay"`
	Count  int `json:"count"`
}

// PayDayGroups counts rooms per pay-day, ordered by day.
func PayDayGroups(rooms []Room) []PayDayGroup {
	counts := map[int]int{}
	for _, r := range rooms {
		counts[r.PayDay.Int()]++
	}
	out := make([]PayDayGroup, 0, len(counts))
	for d, n := range counts {
		out = append(out, PayDayGroup{PayDay: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PayDay < out[j].PayDay })
	return out
}

// Summary totals the amounts due across a list of rooms.
type Summary struct {
	Rooms     int             `json:"rooms"`
	Paid      int             `json:"paid"`
	Unpaid    int             `json:"unpaid"`
	Expected  decimal.Decimal `json:"expected"`
	Collected decimal.Decimal `json:"collected"`
}

// Summarize computes expected (all rooms) and collected (paid rooms) totals.
func Summarize(rooms []Room, defaults Defaults) Summary {
	s := Summary{Expected: decimal.Zero, Collected: decimal.Zero}
	for _, r := range rooms {
		total := ComputeTotal(r, defaults)
		s.Rooms++
		s.Expected = s.Expected.Add(total)
		if r.Status == StatusPaid {
			s.Paid++
			s.Collected = s.Collected.Add(total)
		} else {
			s.Unpaid++
		}
	}
	return s
}

// SortRooms orders rooms by room number in natural order ("2" < "10").
// With unpaidFirst, unpaid rooms come before paid ones.
func SortRooms(rooms []Room, unpaidFirst bool) {
	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := rooms[i], rooms[j]
		if unpaidFirst && a.Status != b.Status {
			return a.Status != StatusPaid
		}
		return NaturalLess(a.RoomNo, b.RoomNo)
	})
}

// NaturalLess compares strings chunk by chunk, digit runs by numeric value
// and everything else case-insensitively.
func NaturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, ra := nextChunk(a)
		cb, rb := nextChunk(b)
		if c := compareChunk(ca, cb); c != 0 {
			return c < 0
		}
		a, b = ra, rb
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func nextChunk(s string) (string, string) {
	digits := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digits {
		i++
	}
	return s[:i], s[i:]
}

func compareChunk(a, b string) int {
	if isDigit(a[0]) && isDigit(b[0]) {
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			return len(ta) - len(tb)
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
		return len(a) - len(b)
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// ProjectBill renders a settled bill in room shape, so a historical period
// can be itemized with Compute. Billing configuration (fixed prices) comes
// from the current room; the period is shown as paid.
func ProjectBill(current Room, rec BillRecord) Room {
	p := current.Clone()
	p.ID = rec.ID
	p.RoomNo = rec.RoomNo
	p.Rent = rec.Rent
	p.ElecPrev = rec.ElecPrev
	p.ElecCurr = rec.ElecCurr
	p.WaterPrev = rec.WaterPrev
	p.WaterCurr = rec.WaterCurr
	p.ExtraFees = cloneFees(rec.ExtraFees)
	p.BillStartDate = rec.StartDate
	p.BillEndDate = rec.EndDate
	p.TenantName = rec.TenantName
	p.TenantPhone = rec.TenantPhone
	p.TenantIDCard = rec.TenantIDCard
	p.Deposit = "0"
	p.PayDay = 1
	p.Status = StatusPaid
	p.LastUpdated = rec.RecordedAt
	p.BillHistory = nil
	return p
}

// FindBill returns the bill record with id from room's history.
func FindBill(room Room, id string) (BillRecord, bool) {
	for _, rec := range room.BillHistory {
		if rec.ID == id {
			return rec.clone(), true
		}
	}
	return BillRecord{}, false
}

// ParsePayDay reads a pay-day from user text. It rejects values outside 1-31.
func ParsePayDay(s string) (Day, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !validPayDay(Day(n)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPayDay, s)
	}
	return Day(n), nil
}
