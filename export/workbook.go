// Package export renders rooms and settled bills as Excel workbooks.
package export

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/rent-ledger/billing"
)

const (
	BillsSheet = "Bills"
	RoomsSheet = "Rooms"
)

// BillHeader is the header row of the bills sheet.
var BillHeader = []string{
	"Bill ID",
	"Room",
	"Tenant",
	"Start",
	"End",
	"Rent",
	"Elec Prev",
	"Elec Curr",
	"Water Prev",
	"Water Curr",
	"Extras",
	"Total",
	"Recorded At",
}

// RoomHeader is the header row of the rooms sheet.
var RoomHeader = []string{
	"Room",
	"Building",
	"Tenant",
	"Phone",
	"Pay Day",
	"Period Start",
	"Period End",
	"Rent",
	"Deposit",
	"Elec",
	"Water",
	"Extras",
	"Total",
	"Status",
}

// Bills renders a room's bill history, oldest first, one row per record.
func Bills(room billing.Room) ([]byte, error) {
	rows := make([][]any, 0, len(room.BillHistory))
	for _, rec := range room.BillHistory {
		rows = append(rows, []any{
			rec.ID,
			rec.RoomNo,
			rec.TenantName,
			rec.StartDate.String(),
			rec.EndDate.String(),
			num(rec.Rent.Value()),
			num(rec.ElecPrev.Decimal),
			text(rec.ElecCurr),
			num(rec.WaterPrev.Decimal),
			text(rec.WaterCurr),
			num(billing.ExtrasTotal(rec.ExtraFees)),
			num(rec.Total.Decimal),
			rec.RecordedAt,
		})
	}
	return render(BillsSheet, BillHeader, rows)
}

// Rooms renders the current state of every room with its computed charges.
func Rooms(rooms []billing.Room, defaults billing.Defaults) ([]byte, error) {
	rows := make([][]any, 0, len(rooms))
	for _, r := range rooms {
		b := billing.Compute(r, defaults)
		rows = append(rows, []any{
			r.RoomNo,
			billing.BuildingOf(r.RoomNo),
			r.TenantName,
			r.TenantPhone,
			r.PayDay.Int(),
			r.BillStartDate.String(),
			r.BillEndDate.String(),
			num(b.Rent),
			num(r.Deposit.Value()),
			num(b.Electricity.Amount),
			num(b.Water.Amount),
			num(b.Extras),
			num(b.Total),
			string(r.Status),
		})
	}
	return render(RoomsSheet, RoomHeader, rows)
}

func num(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// text keeps an unread meter as an empty cell.
func text(n billing.Numeric) any {
	if !n.IsSet() {
		return nil
	}
	return num(n.Value())
}

func render(sheet string, header []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return nil, fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", last, 14); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range rows {
		for j, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
