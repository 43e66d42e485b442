package billing

import (
	"bytes"
	"encoding/json"
	"time"
)

// =============================================================================
// DATE - Calendar date without time of day
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar date. All billing arithmetic is calendar-month
// arithmetic on Dates; there is no time-of-day component. The zero Date
// means "not set".
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day, reading the calendar date in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate reads a YYYY-MM-DD string, also accepting a full RFC 3339
// timestamp. Unparsable input yields the zero Date and false.
func ParseDate(s string) (Date, bool) {
	if s == "" {
		return Date{}, false
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), true
	}
	return Date{}, false
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

// AddMonths uses time.AddDate normalization: a day that does not exist in
// the target month rolls forward (Jan 31 + 1 month = Mar 2 or Mar 3).
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON never fails: malformed or missing dates decode as unset.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) || json.Unmarshal(data, &s) != nil {
		*d = Date{}
		return nil
	}
	*d, _ = ParseDate(s)
	return nil
}
