package billing

import "github.com/shopspring/decimal"

// =============================================================================
// CALCULATOR - Amount due for one room
// =============================================================================

// MeterCharge is the priced usage of one meter.
type MeterCharge struct {
	Prev      decimal.Decimal
	Curr      decimal.Decimal
	Usage     decimal.Decimal // Curr - Prev, may be negative (meter reset, typo)
	Billable  decimal.Decimal // max(0, Usage)
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal // Billable * UnitPrice
	Recorded  bool            // a current reading was entered, even "0"
}

// Shown reports whether a bill should list this meter: either something was
// used or a reading was taken this period.
func (m MeterCharge) Shown() bool {
	return m.Usage.IsPositive() || m.Recorded
}

// Breakdown itemizes a room's amount due.
type Breakdown struct {
	Rent        decimal.Decimal
	Electricity MeterCharge
	Water       MeterCharge
	Extras      decimal.Decimal
	Total       decimal.Decimal
}

// Compute itemizes the amount due for room. It never fails; unparsable
// fields count as zero.
func Compute(room Room, defaults Defaults) Breakdown {
	b := Breakdown{
		Rent:        room.Rent.Value(),
		Electricity: meterCharge(room.ElecPrev, room.ElecCurr, unitPrice(room.FixedElecPrice, defaults.ElecPrice)),
		Water:       meterCharge(room.WaterPrev, room.WaterCurr, unitPrice(room.FixedWaterPrice, defaults.WaterPrice)),
		Extras:      ExtrasTotal(room.ExtraFees),
	}
	total := b.Rent.Add(b.Electricity.Amount).Add(b.Water.Amount).Add(b.Extras)
	b.Total = decimal.Max(decimal.Zero, total)
	return b
}

// ComputeTotal returns the amount due for room.
func ComputeTotal(room Room, defaults Defaults) decimal.Decimal {
	return Compute(room, defaults).Total
}

// ExtrasTotal sums extra fee amounts. Negative amounts subtract.
func ExtrasTotal(fees []ExtraFee) decimal.Decimal {
	sum := decimal.Zero
	for _, f := range fees {
		sum = sum.Add(f.Amount.Value())
	}
	return sum
}

func meterCharge(prev Number, curr Numeric, price decimal.Decimal) MeterCharge {
	m := MeterCharge{
		Prev:      prev.Decimal,
		Curr:      curr.Value(),
		UnitPrice: price,
		Recorded:  curr.IsSet(),
	}
	m.Usage = m.Curr.Sub(m.Prev)
	m.Billable = decimal.Max(decimal.Zero, m.Usage)
	m.Amount = m.Billable.Mul(price)
	return m
}

// unitPrice picks the room's fixed price, then the global default, then zero.
func unitPrice(fixed, fallback Numeric) decimal.Decimal {
	if fixed.IsSet() {
		return fixed.Value()
	}
	return fallback.Value()
}
