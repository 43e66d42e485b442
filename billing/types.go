/*
Package billing provides the billing cycle and state-history engine.

PURPOSE:
  A landlord tracks rooms through recurring monthly billing cycles. This
  package holds the rules that turn raw room fields (meter readings, prices,
  extra fees, rent) into an amount due, the settlement step that freezes a
  bill into history and opens the next period, and the bounded undo history
  that wraps every accepted change to the room collection.

KEY CONCEPTS IN THIS FILE (types.go):
  - Room: One rentable unit and its current billing state
  - BillRecord: Immutable snapshot of one settled billing period
  - ExtraFee: Free-form line item added to a bill (cleaning, internet...)
  - Defaults: Global fallback prices and rent

DESIGN PRINCIPLES:
  1. Total-safe input: Every numeric field may arrive as text from persisted
     JSON. Bad values become zero, they never fail a calculation.
  2. Precision: Money and readings use decimal.Decimal.
  3. Single writer: The room collection only changes through Book.Apply.
  4. Two retention policies: a room's bill history is unbounded, the global
     undo archive is capped at MaxArchives.

SEE ALSO:
  - calculator.go: Amount due for a room
  - period.go: Billing period computation
  - settlement.go: Closing a period into a BillRecord
  - history.go: Undo archive
  - book.go: Concurrency-safe owner of the present collection
*/
package billing

// =============================================================================
// PAYMENT STATUS
// =============================================================================

type PaymentStatus string

const (
	StatusUnpaid PaymentStatus = "unpaid"
	StatusPaid   PaymentStatus = "paid"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	return s == StatusPaid || s == StatusUnpaid
}

// =============================================================================
// ROOM
// =============================================================================

// ExtraFee is one named line item on a room's bill. Amount may be negative
// (a discount) and is summed as-is.
type ExtraFee struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Amount Numeric `json:"amount"`
}

// Room is one billable rental unit.
//
// RoomNo is the natural key: it is unique within the active collection,
// checked when rooms are added. Current meter readings are text so that an
// unread meter ("") stays distinguishable from a real zero reading ("0").
type Room struct {
	ID         string  `json:"id"`
	RoomNo     string  `json:"roomNo"`
	Rent       Numeric `json:"rent"`
	Deposit    Numeric `json:"deposit"`
	PayDay     Day     `json:"payDay"`
	MoveInDate string  `json:"moveInDate,omitempty"`

	TenantName   string `json:"tenantName,omitempty"`
	TenantPhone  string `json:"tenantPhone,omitempty"`
	TenantIDCard string `json:"tenantIdCard,omitempty"`

	FixedElecPrice  Numeric `json:"fixedElecPrice,omitempty"`
	FixedWaterPrice Numeric `json:"fixedWaterPrice,omitempty"`

	ElecPrev  Number  `json:"elecPrev"`
	ElecCurr  Numeric `json:"elecCurr"`
	WaterPrev Number  `json:"waterPrev"`
	WaterCurr Numeric `json:"waterCurr"`

	ExtraFees   []ExtraFee    `json:"extraFees"`
	Status      PaymentStatus `json:"status"`
	LastUpdated string        `json:"lastUpdated"`

	BillStartDate Date `json:"billStartDate"`
	BillEndDate   Date `json:"billEndDate"`

	BillHistory []BillRecord `json:"billHistory"`
}

// Period returns the room's current billing window.
func (r Room) Period() Period {
	return Period{Start: r.BillStartDate, End: r.BillEndDate}
}

// Clone returns a deep copy. Archives hold clones so that later edits never
// reach back into history.
func (r Room) Clone() Room {
	c := r
	c.ExtraFees = cloneFees(r.ExtraFees)
	if r.BillHistory != nil {
		c.BillHistory = make([]BillRecord, len(r.BillHistory))
		for i, rec := range r.BillHistory {
			c.BillHistory[i] = rec.clone()
		}
	}
	return c
}

// CloneRooms deep-copies a collection. A nil input stays nil.
func CloneRooms(rooms []Room) []Room {
	if rooms == nil {
		return nil
	}
	out := make([]Room, len(rooms))
	for i, r := range rooms {
		out[i] = r.Clone()
	}
	return out
}

func cloneFees(fees []ExtraFee) []ExtraFee {
	if fees == nil {
		return nil
	}
	out := make([]ExtraFee, len(fees))
	copy(out, fees)
	return out
}

// =============================================================================
// BILL RECORD - Frozen settled period
// =============================================================================

// BillRecord is created by settlement only and never mutated afterwards.
type BillRecord struct {
	ID         string `json:"id"`
	RecordedAt string `json:"recordedAt"`
	StartDate  Date   `json:"startDate"`
	EndDate    Date   `json:"endDate"`

	Rent      Numeric    `json:"rent"`
	ElecPrev  Number     `json:"elecPrev"`
	ElecCurr  Numeric    `json:"elecCurr"`
	WaterPrev Number     `json:"waterPrev"`
	WaterCurr Numeric    `json:"waterCurr"`
	ExtraFees []ExtraFee `json:"extraFees"`
	Total     Number     `json:"total"`

	TenantName   string `json:"tenantName,omitempty"`
	TenantPhone  string `json:"tenantPhone,omitempty"`
	TenantIDCard string `json:"tenantIdCard,omitempty"`
	RoomNo       string `json:"roomNo"`
}

func (b BillRecord) clone() BillRecord {
	c := b
	c.ExtraFees = cloneFees(b.ExtraFees)
	return c
}

// =============================================================================
// DEFAULTS - Global configuration
// =============================================================================

// Defaults holds the global fallbacks: unit prices used when a room has no
// fixed price, and the rent pre-filled for new rooms.
type Defaults struct {
	ElecPrice   Numeric `json:"elecPrice"`
	WaterPrice  Numeric `json:"waterPrice"`
	DefaultRent Numeric `json:"defaultRent"`
}
