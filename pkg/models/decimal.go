package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimal is a numeric market reading that is either a value or explicitly
// unavailable. The zero value is unavailable, so a field that was never
// populated can not be mistaken for a real 0.00 reading.
type Decimal struct {
	decimal.NullDecimal
}

var hundred = decimal.NewFromInt(100)

// Dec wraps v. NaN and ±Inf become unavailable.
func Dec(v float64) Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Decimal{}
	}
	return DecFrom(decimal.NewFromFloat(v))
}

// DecFrom wraps an exact decimal value.
func DecFrom(d decimal.Decimal) Decimal {
	return Decimal{decimal.NewNullDecimal(d)}
}

// Unavailable returns the explicit "no reading" marker.
func Unavailable() Decimal { return Decimal{} }

// Float64 returns the value and whether it is available.
func (d Decimal) Float64() (float64, bool) {
	if !d.Valid {
		return 0, false
	}
	f, _ := d.Decimal.Float64()
	return f, true
}

// Equal reports whether both readings are unavailable or both hold the same
// value.
func (d Decimal) Equal(o Decimal) bool {
	if d.Valid != o.Valid {
		return false
	}
	return !d.Valid || d.Decimal.Equal(o.Decimal)
}

// PercentOf returns d / base × 100. ok is false when either side is
// unavailable or base is zero.
func (d Decimal) PercentOf(base Decimal) (Decimal, bool) {
	if !d.Valid || !base.Valid || base.Decimal.IsZero() {
		return Decimal{}, false
	}
	return DecFrom(d.Decimal.Div(base.Decimal).Mul(hundred)), true
}

// Format renders the value with the given precision, or "-" when unavailable.
func (d Decimal) Format(prec int) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(int32(prec))
}

// String renders with two decimals.
func (d Decimal) String() string { return d.Format(2) }

// MarshalJSON encodes the value as a bare JSON number and unavailable
// readings as null.
func (d Decimal) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return []byte(d.Decimal.String()), nil
}

// UnmarshalJSON accepts numbers, numeric strings ("1,234.50", " 0.73 ",
// "-2.1%") and null. Placeholder strings such as "-" or "" decode as
// unavailable; any other non-numeric string is an error.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = Decimal{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, ok, err := ParseDecimalString(s)
		if err != nil {
			return err
		}
		if !ok {
			*d = Decimal{}
			return nil
		}
		*d = DecFrom(v)
		return nil
	}

	v, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("decimal: %w", err)
	}
	*d = DecFrom(v)
	return nil
}

// ParseDecimalString parses the loosely formatted numbers found in exchange
// feeds. ok is false for placeholder values that mean "no reading".
func ParseDecimalString(s string) (v decimal.Decimal, ok bool, err error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	switch s {
	case "", "-", "--", "NA", "N/A", "nan", "NaN":
		return decimal.Zero, false, nil
	}

	v, err = decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("decimal %q: %w", s, err)
	}
	return v, true, nil
}
