package billing_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/billing"
)

func newTestSettler() *billing.Settler {
	s := billing.NewSettler(&billing.Scheduler{Now: fixedClock(2024, time.February, 16)}, defaults())
	s.NewID = seqIDs("bill")
	return s
}

// =============================================================================
// SETTLEMENT TESTS
// =============================================================================

func TestSettle_RecordsBillAndRollsMeters(t *testing.T) {
	// GIVEN: A room with readings 100->150 and 10->12 for Jan 15 - Feb 15
	// WHEN: Settling
	// THEN: One bill is archived with the computed total, meters roll,
	//       and the next period starts at the old end

	room := occupiedRoom()
	want := billing.ComputeTotal(room, defaults())

	next := newTestSettler().Settle(room)

	require.Len(t, next.BillHistory, 1)
	rec := next.BillHistory[0]
	assert.Equal(t, "bill-1", rec.ID)
	assert.True(t, rec.Total.Equal(want), "total %s, want %s", rec.Total, want)
	assert.Equal(t, "2024-01-15", rec.StartDate.String())
	assert.Equal(t, "2024-02-15", rec.EndDate.String())
	assert.Equal(t, billing.Numeric("150"), rec.ElecCurr)
	assert.Equal(t, "A101", rec.RoomNo)
	assert.Equal(t, "Li Wei", rec.TenantName)
	assert.Equal(t, "2024-02-16T09:30:00Z", rec.RecordedAt)
	assert.Len(t, rec.ExtraFees, 2)

	assertDecimal(t, "150", next.ElecPrev.Decimal)
	assertDecimal(t, "12", next.WaterPrev.Decimal)
	assert.False(t, next.ElecCurr.IsSet())
	assert.False(t, next.WaterCurr.IsSet())
	assert.Equal(t, billing.StatusUnpaid, next.Status)
	assert.Equal(t, "2024-02-15", next.BillStartDate.String())
	assert.Equal(t, "2024-03-15", next.BillEndDate.String())

	// Extra fees carry over into the new period.
	assert.Len(t, next.ExtraFees, 2)
}

func TestSettle_DoesNotModifyInput(t *testing.T) {
	room := occupiedRoom()

	next := newTestSettler().Settle(room)
	next.ExtraFees[0].Name = "changed"
	next.BillHistory[0].ExtraFees[0].Name = "changed too"

	assert.Empty(t, room.BillHistory)
	assert.Equal(t, "internet", room.ExtraFees[0].Name)
	assert.Equal(t, billing.Numeric("150"), room.ElecCurr)
}

func TestSettle_UnreadMeterKeepsPrevious(t *testing.T) {
	room := occupiedRoom()
	room.ElecCurr = ""
	room.WaterCurr = "0"

	next := newTestSettler().Settle(room)

	assertDecimal(t, "100", next.ElecPrev.Decimal)
	// A recorded zero is a real reading and does roll.
	assertDecimal(t, "0", next.WaterPrev.Decimal)
}

func TestSettle_PaidRoomResetsToUnpaid(t *testing.T) {
	room := occupiedRoom()
	room.Status = billing.StatusPaid

	next := newTestSettler().Settle(room)

	assert.Equal(t, billing.StatusUnpaid, next.Status)
}

func TestSettle_HistoryAccumulatesUnbounded(t *testing.T) {
	s := newTestSettler()
	room := occupiedRoom()
	for i := 0; i < billing.MaxArchives+5; i++ {
		room = s.Settle(room)
	}
	assert.Len(t, room.BillHistory, billing.MaxArchives+5)
	assert.Equal(t, room.BillHistory[0].EndDate, room.BillHistory[1].StartDate)
}

func TestSettleMany_PayDayPredicate(t *testing.T) {
	// GIVEN: Two rooms on the 15th (one stored as a string) and one on the 1st
	a := occupiedRoom()
	b := occupiedRoom()
	b.ID, b.RoomNo = "r2", "A102"
	require.NoError(t, json.Unmarshal([]byte(`"15"`), &b.PayDay))
	c := occupiedRoom()
	c.ID, c.RoomNo, c.PayDay = "r3", "A103", 1

	// WHEN: Settling target "15" (a string, as from a form field)
	out := newTestSettler().SettleMany([]billing.Room{a, b, c}, billing.PayDayIs("15"))

	// THEN: Both 15th rooms settle, the other is untouched
	assert.Len(t, out[0].BillHistory, 1)
	assert.Len(t, out[1].BillHistory, 1)
	assert.Empty(t, out[2].BillHistory)
	assert.Equal(t, c.BillEndDate, out[2].BillEndDate)
}

func TestSettleTarget(t *testing.T) {
	r15 := billing.Room{PayDay: 15}
	r1 := billing.Room{}

	target := func(v any) billing.Predicate {
		t.Helper()
		match, err := billing.SettleTarget(v)
		require.NoError(t, err)
		return match
	}

	assert.True(t, target("all")(r1))
	assert.True(t, target("all")(r15))
	assert.True(t, target(15)(r15))
	assert.True(t, target("15")(r15))
	assert.False(t, target(15)(r1))
	// Unset pay-day means the 1st.
	assert.True(t, target("1")(r1))
}

func TestSettleTarget_Invalid(t *testing.T) {
	for _, v := range []any{"abc", 0, "0", 32, -1, nil, "99999999999999999999999"} {
		_, err := billing.SettleTarget(v)
		assert.ErrorIs(t, err, billing.ErrInvalidPayDay, "%v", v)
	}

	// PayDayIs alone never clamps a bad target onto the 1st.
	assert.False(t, billing.PayDayIs("abc")(billing.Room{PayDay: 1}))
}

func TestMoveOut(t *testing.T) {
	room := occupiedRoom()
	room.Status = billing.StatusPaid
	room.BillHistory = []billing.BillRecord{{ID: "old"}}

	kept := billing.MoveOut(room, false)
	returned := billing.MoveOut(room, true)

	assert.Equal(t, billing.Numeric("2000"), kept.Deposit)
	assert.Equal(t, billing.Numeric("0"), returned.Deposit)
	for _, r := range []billing.Room{kept, returned} {
		assert.Empty(t, r.TenantName)
		assert.Empty(t, r.TenantPhone)
		assert.Empty(t, r.TenantIDCard)
		assert.Empty(t, r.ExtraFees)
		assert.Equal(t, billing.StatusUnpaid, r.Status)
		assert.Equal(t, room.Rent, r.Rent)
		assert.Equal(t, room.PayDay, r.PayDay)
		assert.Len(t, r.BillHistory, 1)
	}
	assert.Equal(t, "Li Wei", room.TenantName)
}

func TestSetStatus(t *testing.T) {
	room, err := billing.SetStatus(occupiedRoom(), billing.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, room.Status)

	_, err = billing.SetStatus(room, "refunded")
	assert.ErrorIs(t, err, billing.ErrInvalidStatus)
}
