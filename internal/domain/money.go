package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money amounts are carried internally as int64 cents so settlement
// arithmetic is exact integer math. The wire format is a decimal string
// with 2 decimal places ("100.00"); conversion in both directions goes
// through shopspring/decimal, never binary floating point.

var centsFactor = decimal.NewFromInt(100)

// ParseCents parses a decimal string into cents. It rejects values with
// more than 2 decimal places and values that overflow int64.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid monetary value %q", s)
	}
	scaled := d.Mul(centsFactor)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("monetary value %q out of range", s)
	}
	return scaled.IntPart(), nil
}

// FormatCents renders cents as a decimal string with exactly 2 decimal
// places, e.g. 10000 → "100.00".
func FormatCents(c int64) string {
	return decimal.New(c, -2).StringFixed(2)
}
