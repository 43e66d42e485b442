package billing_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/rent-ledger/billing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func fixedClock(y int, m time.Month, d int) func() time.Time {
	t := time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func date(y int, m time.Month, d int) billing.Date {
	return billing.NewDate(y, m, d)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// assertDecimal compares by value, not representation ("75" == "75.0").
func assertDecimal(t *testing.T, want string, got decimal.Decimal, context ...any) {
	t.Helper()
	msg := fmt.Sprintf("want %s, got %s", want, got)
	if len(context) > 0 {
		msg += ": " + fmt.Sprintf(context[0].(string), context[1:]...)
	}
	assert.True(t, dec(want).Equal(got), msg)
}

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func defaults() billing.Defaults {
	return billing.Defaults{ElecPrice: "1.5", WaterPrice: "5", DefaultRent: "1000"}
}

func occupiedRoom() billing.Room {
	return billing.Room{
		ID:            "r1",
		RoomNo:        "A101",
		Rent:          "1000",
		Deposit:       "2000",
		PayDay:        15,
		TenantName:    "Li Wei",
		TenantPhone:   "13800000000",
		TenantIDCard:  "110101199001011234",
		ElecPrev:      billing.NumberOf(100),
		ElecCurr:      "150",
		WaterPrev:     billing.NumberOf(10),
		WaterCurr:     "12",
		ExtraFees:     []billing.ExtraFee{{ID: 1, Name: "internet", Amount: "50"}, {ID: 2, Name: "discount", Amount: "-20"}},
		Status:        billing.StatusUnpaid,
		BillStartDate: date(2024, time.January, 15),
		BillEndDate:   date(2024, time.February, 15),
		BillHistory:   []billing.BillRecord{},
	}
}

func newTestBook(t *testing.T, rooms ...billing.Room) *billing.Book {
	t.Helper()
	sched := &billing.Scheduler{Now: fixedClock(2024, time.March, 10)}
	state := billing.AppState{
		History: billing.NewHistory(rooms, billing.InitialDesc, sched.Now()),
		Config:  defaults(),
	}
	return billing.NewBook(state,
		billing.WithScheduler(sched),
		billing.WithIDGenerator(seqIDs("id")),
	)
}

func roomNos(rooms []billing.Room) []string {
	out := make([]string, len(rooms))
	for i, r := range rooms {
		out[i] = r.RoomNo
	}
	return out
}
