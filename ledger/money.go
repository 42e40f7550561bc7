/*
money.go - Integer minor-unit money

PURPOSE:
  All money arithmetic in the engine is done in int64 minor currency units
  (pence, cents) to avoid floating-point rounding. shopspring/decimal is
  used only at the boundary, to parse human input like "12.34" exactly.

ROUNDING POLICY:
  A debt split evenly among N debtors uses floor division per debtor. The
  sum of shares can therefore fall short of the recorded total by up to
  N-1 minor units. This loss is accepted, not corrected.

SEE ALSO:
  - editor.go: SplitDebt applies the floor-split policy
  - balances:  aggregation sums Amounts directly
*/
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a quantity of money in minor currency units (pence, cents).
type Amount int64

// ParseAmount parses a major-unit decimal string ("12.34") into minor units.
// More than two fractional digits is rejected rather than rounded.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than two decimal places", s)
	}
	return Amount(minor.IntPart()), nil
}

// String formats the amount in major units with two decimal places.
func (a Amount) String() string {
	return decimal.New(int64(a), -2).StringFixed(2)
}

// Split returns the per-debtor share when the amount is divided evenly
// among n debtors: floor division, never negative n.
func (a Amount) Split(n int) Amount {
	if n <= 0 {
		return 0
	}
	return a / Amount(n)
}
