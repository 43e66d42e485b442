/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Rooms are returned in
  their stored shape plus computed fields (building, itemized charges), so a
  client never recomputes a total itself.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags, checked in decode().
  Domain rules (duplicate room numbers, batch sizes) stay in billing and
  surface as billing errors.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Stored room shape
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/rent-ledger/billing"
)

// =============================================================================
// ROOMS
// =============================================================================

// RoomDTO is a room with its computed charges.
type RoomDTO struct {
	billing.Room
	Building  string       `json:"building"`
	Breakdown BreakdownDTO `json:"breakdown"`
}

// BreakdownDTO itemizes the amount due.
type BreakdownDTO struct {
	Rent        decimal.Decimal `json:"rent"`
	Electricity MeterDTO        `json:"electricity"`
	Water       MeterDTO        `json:"water"`
	Extras      decimal.Decimal `json:"extras"`
	Total       decimal.Decimal `json:"total"`
}

// MeterDTO is one priced meter. Shown is false when nothing was used and
// no reading was taken.
type MeterDTO struct {
	Usage     decimal.Decimal `json:"usage"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Amount    decimal.Decimal `json:"amount"`
	Shown     bool            `json:"shown"`
}

func toRoomDTO(r billing.Room, defaults billing.Defaults) RoomDTO {
	b := billing.Compute(r, defaults)
	return RoomDTO{
		Room:     r,
		Building: billing.BuildingOf(r.RoomNo),
		Breakdown: BreakdownDTO{
			Rent:        b.Rent,
			Electricity: toMeterDTO(b.Electricity),
			Water:       toMeterDTO(b.Water),
			Extras:      b.Extras,
			Total:       b.Total,
		},
	}
}

func toMeterDTO(m billing.MeterCharge) MeterDTO {
	return MeterDTO{Usage: m.Usage, UnitPrice: m.UnitPrice, Amount: m.Amount, Shown: m.Shown()}
}

func toRoomDTOs(rooms []billing.Room, defaults billing.Defaults) []RoomDTO {
	out := make([]RoomDTO, len(rooms))
	for i, r := range rooms {
		out[i] = toRoomDTO(r, defaults)
	}
	return out
}

// CreateRoomRequest is the body of POST /api/rooms.
type CreateRoomRequest struct {
	RoomNo          string          `json:"roomNo" validate:"max=64"`
	Rent            billing.Numeric `json:"rent"`
	Deposit         billing.Numeric `json:"deposit"`
	PayDay          billing.Day     `json:"payDay" validate:"omitempty,min=1,max=31"`
	MoveInDate      string          `json:"moveInDate"`
	FixedElecPrice  billing.Numeric `json:"fixedElecPrice"`
	FixedWaterPrice billing.Numeric `json:"fixedWaterPrice"`
}

func (r CreateRoomRequest) draft() billing.RoomDraft {
	return billing.RoomDraft{
		RoomNo:          r.RoomNo,
		Rent:            r.Rent,
		Deposit:         r.Deposit,
		PayDay:          r.PayDay,
		MoveInDate:      r.MoveInDate,
		FixedElecPrice:  r.FixedElecPrice,
		FixedWaterPrice: r.FixedWaterPrice,
	}
}

// AddRoomsRequest is the body of POST /api/rooms/batch.
type AddRoomsRequest struct {
	Rooms []CreateRoomRequest `json:"rooms" validate:"required,min=1,dive"`
}

// BatchPreviewRequest is the body of POST /api/rooms/batch/preview.
type BatchPreviewRequest struct {
	Prefix          string          `json:"prefix" validate:"max=16"`
	FloorStart      int             `json:"floorStart" validate:"min=0,max=999"`
	FloorEnd        int             `json:"floorEnd" validate:"gtefield=FloorStart,max=999"`
	PerFloor        int             `json:"perFloor" validate:"min=1,max=99"`
	Rent            billing.Numeric `json:"rent"`
	Deposit         billing.Numeric `json:"deposit"`
	PayDay          billing.Day     `json:"payDay" validate:"omitempty,min=1,max=31"`
	FixedElecPrice  billing.Numeric `json:"fixedElecPrice"`
	FixedWaterPrice billing.Numeric `json:"fixedWaterPrice"`
}

func (r BatchPreviewRequest) spec() billing.BatchSpec {
	return billing.BatchSpec{
		Prefix:          r.Prefix,
		FloorStart:      r.FloorStart,
		FloorEnd:        r.FloorEnd,
		PerFloor:        r.PerFloor,
		Rent:            r.Rent,
		Deposit:         r.Deposit,
		PayDay:          r.PayDay,
		FixedElecPrice:  r.FixedElecPrice,
		FixedWaterPrice: r.FixedWaterPrice,
	}
}

// IDsRequest selects rooms for a batch operation.
type IDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// PayDayRequest is the body of POST /api/rooms/pay-day.
type PayDayRequest struct {
	IDs    []string    `json:"ids" validate:"required,min=1,dive,required"`
	PayDay billing.Day `json:"payDay" validate:"min=1,max=31"`
}

// MoveOutRequest is the body of POST /api/rooms/{id}/move-out.
type MoveOutRequest struct {
	ReturnDeposit bool `json:"returnDeposit"`
}

// StatusRequest is the body of POST /api/rooms/{id}/status.
type StatusRequest struct {
	Status billing.PaymentStatus `json:"status" validate:"required,oneof=paid unpaid"`
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// SettleRequest is the body of POST /api/settlements. Target is "all" or a
// pay-day as a number or a numeric string.
type SettleRequest struct {
	Target any `json:"target"`
}

// SettleResponse reports a batch settlement.
type SettleResponse struct {
	Settled int       `json:"settled"`
	Rooms   []RoomDTO `json:"rooms"`
}

// BillDTO is a historical bill projected into room shape and itemized.
type BillDTO struct {
	Record billing.BillRecord `json:"record"`
	Room   RoomDTO            `json:"room"`
}

// =============================================================================
// HISTORY
// =============================================================================

// ArchiveDTO lists an undo archive entry without its data.
type ArchiveDTO struct {
	Index int    `json:"index"`
	Desc  string `json:"desc"`
	Time  string `json:"time"`
	Rooms int    `json:"rooms"`
}

// =============================================================================
// SUMMARY
// =============================================================================

// SummaryDTO is the dashboard view of a filtered room list.
type SummaryDTO struct {
	billing.Summary
	Buildings []string              `json:"buildings"`
	PayDays   []billing.PayDayGroup `json:"payDays"`
}

// =============================================================================
// SESSION
// =============================================================================

// SessionRequest is the body of POST /api/session.
type SessionRequest struct {
	UserID      string `json:"userId" validate:"required,max=128"`
	AccessToken string `json:"accessToken"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
