// Package units converts between decimal currency amounts and the remote
// ledger's fixed-point integer unit (18 fractional digits, as wei is to ether).
package units

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of one base unit.
const Decimals = 18

// ToBaseUnits scales d to base units. Digits beyond Decimals are truncated.
func ToBaseUnits(d decimal.Decimal) *big.Int {
	return d.Shift(Decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts base units back to a decimal amount. A nil value is zero.
func FromBaseUnits(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}
