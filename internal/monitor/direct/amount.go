package direct

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a human decimal amount into the token's smallest
// integer unit, given its on-chain decimals.
func ParseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	scaled := amount.Shift(int32(decimals))
	return scaled.BigInt()
}

// InBand reports whether observed falls within spec §4.D.1's matching
// window: 1% under to 10% over the expected amount.
func InBand(expected, observed *big.Int) bool {
	if observed.Sign() < 0 {
		return false
	}
	lower := new(big.Int).Mul(expected, big.NewInt(99))
	lower.Div(lower, big.NewInt(100))

	upper := new(big.Int).Mul(expected, big.NewInt(110))
	upper.Div(upper, big.NewInt(100))

	return observed.Cmp(lower) >= 0 && observed.Cmp(upper) <= 0
}
