package ledger

import "github.com/shopspring/decimal"

// JSONAmount renders a decimal as a quoted string with exactly two
// fractional digits, the scale of every amount column.
type JSONAmount decimal.Decimal

func (a JSONAmount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + decimal.Decimal(a).StringFixed(2) + `"`), nil
}
