package billing

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TOTAL-SAFE NUMERIC COERCION
// =============================================================================

// leadingNumber matches the numeric prefix of a string the way a lenient
// float parser does: "12.5kWh" reads as 12.5, "abc" reads as nothing.
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// ToNumber converts any value that may hold a number into a decimal.
// It never fails: nil, empty strings, garbage and non-finite floats all
// become zero. Strings use their leading numeric prefix.
func ToNumber(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return x
	case Number:
		return x.Decimal
	case Numeric:
		return parseLeading(string(x))
	case Day:
		return decimal.NewFromInt(int64(x))
	case string:
		return parseLeading(x)
	case json.Number:
		return parseLeading(string(x))
	case int:
		return decimal.NewFromInt(int64(x))
	case int32:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	default:
		return decimal.Zero
	}
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func parseLeading(s string) decimal.Decimal {
	m := leadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return decimal.Zero
	}
	m = strings.TrimPrefix(m, "+")
	if i := strings.IndexAny(m, "eE"); i > 0 && m[i-1] == '.' {
		m = m[:i-1] + m[i:]
	}
	m = strings.TrimSuffix(m, ".")
	if strings.HasPrefix(m, ".") || strings.HasPrefix(m, "-.") {
		m = strings.Replace(m, ".", "0.", 1)
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// NUMERIC - User-entered decimal kept as text
// =============================================================================

// Numeric holds a user-entered numeric field as text. The empty string means
// "not set", which matters for meter readings and fixed prices. It decodes
// from JSON strings or numbers; anything else decodes as unset.
type Numeric string

// Value returns the total-safe decimal value (unset reads as zero).
func (n Numeric) Value() decimal.Decimal { return ToNumber(n) }

// IsSet reports whether the field holds any text at all.
func (n Numeric) IsSet() bool { return strings.TrimSpace(string(n)) != "" }

func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = ""
			return nil
		}
		*n = Numeric(s)
		return nil
	}
	if data[0] == '-' || (data[0] >= '0' && data[0] <= '9') {
		*n = Numeric(data)
		return nil
	}
	*n = ""
	return nil
}

// =============================================================================
// NUMBER - Decimal stored as a JSON number
// =============================================================================

// Number is a decimal that encodes as a bare JSON number and decodes
// leniently from numbers, numeric strings or garbage (zero).
type Number struct {
	decimal.Decimal
}

// NewNumber wraps a decimal.
func NewNumber(d decimal.Decimal) Number { return Number{Decimal: d} }

// NumberOf coerces any value through ToNumber.
func NumberOf(v any) Number { return Number{Decimal: ToNumber(v)} }

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

func (n *Number) UnmarshalJSON(data []byte) error {
	n.Decimal = ToNumber(rawScalar(data))
	return nil
}

// =============================================================================
// DAY - Recurring day of month
// =============================================================================

// Day is a pay-day (day of month). Persisted data may carry it as a number
// or as a string; both decode to the same integer.
type Day int

// Int returns the day clamped to at least 1. Zero means "unset" and bills
// on the 1st.
func (d Day) Int() int {
	if d < 1 {
		return 1
	}
	return int(d)
}

func (d Day) String() string { return strconv.Itoa(int(d)) }

func (d *Day) UnmarshalJSON(data []byte) error {
	*d = DayOf(rawScalar(data))
	return nil
}

// maxDayValue bounds DayOf so out-of-range numbers cannot wrap into 1-31.
var maxDayValue = decimal.NewFromInt(1 << 16)

// DayOf coerces any value into a Day through ToNumber. Values too large to
// be a day become 0.
func DayOf(v any) Day {
	n := ToNumber(v)
	if n.Abs().GreaterThan(maxDayValue) {
		return 0
	}
	return Day(n.IntPart())
}

// rawScalar turns a JSON scalar into a Go value ToNumber understands.
// Strings are unquoted, numbers stay as json.Number, everything else is nil.
func rawScalar(data []byte) any {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch {
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		return s
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		return json.Number(data)
	default:
		return nil
	}
}
