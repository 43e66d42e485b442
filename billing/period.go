package billing

import "time"

// =============================================================================
// PERIOD - One billing window
// =============================================================================

// Period is a billing window [Start, End]. End of one period is the Start
// of the next, so consecutive periods share their boundary date.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// Next returns the period that follows p: it starts where p ends.
func (p Period) Next() Period {
	return Period{Start: p.End, End: p.End.AddMonths(1)}
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// SCHEDULER - Computes billing windows from a pay-day
// =============================================================================

// Scheduler computes billing periods. Now is the clock used to decide which
// month a fresh room's first period falls in; tests pin it.
type Scheduler struct {
	Now func() time.Time
}

// NewScheduler returns a Scheduler on the wall clock.
func NewScheduler() *Scheduler {
	return &Scheduler{Now: time.Now}
}

// Today returns the current calendar date.
func (s *Scheduler) Today() Date {
	if s == nil || s.Now == nil {
		return DateOf(time.Now())
	}
	return DateOf(s.Now())
}

// ComputePeriod returns the billing window for a room.
//
// With a prior period end, the new period continues from it for one
// calendar month. Without one, the period is anchored on payDay in the
// current month, or in the previous month when today is still before
// payDay. A pay-day below 1 bills on the 1st.
func (s *Scheduler) ComputePeriod(payDay Day, priorEnd Date) Period {
	if !priorEnd.IsZero() {
		return Period{Start: priorEnd, End: priorEnd.AddMonths(1)}
	}

	today := s.Today()
	start := NewDate(today.Year(), today.Month(), payDay.Int())
	if today.Day() < payDay.Int() {
		start = start.AddMonths(-1)
	}
	return Period{Start: start, End: start.AddMonths(1)}
}
