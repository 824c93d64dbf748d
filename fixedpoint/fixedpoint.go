// Package fixedpoint converts between raw integer token amounts and
// decimal-scaled values without ever touching binary floating point.
// Raw amounts are *big.Int in the token's smallest unit; human-scale
// values are shopspring decimals.
//
// Every conversion of a computed value back to raw units truncates toward
// zero. A spend amount rounded up can exceed what the caller holds and
// invalidate the transaction on-chain, so the pipeline always errs low.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned when a price would be derived from a zero
// input amount.
var ErrDivisionByZero = errors.New("division by zero")

func init() {
	// Chained raw -> decimal -> multiply -> raw conversions across 18-decimal
	// tokens need well over the default 16 digits of division precision.
	if decimal.DivisionPrecision < 50 {
		decimal.DivisionPrecision = 50
	}
}

// ToRaw converts a decimal-scaled value into raw integer units by shifting
// the decimal point right by decimalPlaces and truncating toward zero.
func ToRaw(value decimal.Decimal, decimalPlaces int32) *big.Int {
	return value.Shift(decimalPlaces).Truncate(0).BigInt()
}

// ToDecimal converts a raw integer amount into its decimal-scaled value.
// The conversion is exact for any magnitude.
func ToDecimal(raw *big.Int, decimalPlaces int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimalPlaces)
}

// Price returns the output-per-input price of a swap, with both sides
// decimal-scaled before dividing.
func Price(amountInRaw, amountOutRaw *big.Int, decimalsIn, decimalsOut int32) (decimal.Decimal, error) {
	in := ToDecimal(amountInRaw, decimalsIn)
	if in.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	out := ToDecimal(amountOutRaw, decimalsOut)
	return out.Div(in), nil
}

// OutputFromPrice applies a price to a raw input amount and returns the raw
// output amount, truncated toward zero.
func OutputFromPrice(amountInRaw *big.Int, price decimal.Decimal, decimalsIn, decimalsOut int32) *big.Int {
	out := ToDecimal(amountInRaw, decimalsIn).Mul(price)
	return ToRaw(out, decimalsOut)
}

// IsProfitable reports whether profit minus cost clears the threshold.
// Equality with the threshold does not count.
func IsProfitable(profitRaw, costRaw, thresholdRaw *big.Int) bool {
	net := new(big.Int).Sub(profitRaw, costRaw)
	return net.Cmp(thresholdRaw) > 0
}
