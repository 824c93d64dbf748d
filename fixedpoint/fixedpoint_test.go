package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestToRaw(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals int32
		want     string
	}{
		{"one whole 18dp token", "1", 18, "1000000000000000000"},
		{"truncates not rounds", "1.9999999999999999999", 18, "1999999999999999999"},
		{"6dp token", "2500.5", 6, "2500500000"},
		{"8dp token", "0.00000001", 8, "1"},
		{"sub-unit dust truncated", "0.0000000000000000001", 18, "0"},
		{"zero", "0", 18, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToRaw(mustDecimal(t, tt.value), tt.decimals)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestToDecimal(t *testing.T) {
	raw, ok := new(big.Int).SetString("1234567890123456789012345678", 10)
	require.True(t, ok)

	got := ToDecimal(raw, 18)
	assert.Equal(t, "1234567890.123456789012345678", got.String())

	// Magnitudes past float64's exact-integer range stay exact.
	back := ToRaw(got, 18)
	assert.Equal(t, raw.String(), back.String())
}

func TestRoundTripConversion(t *testing.T) {
	samples := []string{
		"0",
		"1",
		"999999",
		"1000000000000000000",
		"123456789012345678901234567890",
		"7",
	}
	for _, s := range samples {
		for _, d := range []int32{6, 8, 18} {
			raw, ok := new(big.Int).SetString(s, 10)
			require.True(t, ok)

			got := ToRaw(ToDecimal(raw, d), d)
			assert.Equal(t, raw.String(), got.String(), "raw=%s decimals=%d", s, d)
		}
	}
}

func TestPrice(t *testing.T) {
	// 10 WETH (18dp) in, 20000 USDC (6dp) out => price 2000.
	amountIn := ToRaw(mustDecimal(t, "10"), 18)
	amountOut := ToRaw(mustDecimal(t, "20000"), 6)

	price, err := Price(amountIn, amountOut, 18, 6)
	require.NoError(t, err)
	assert.True(t, price.Equal(mustDecimal(t, "2000")), "got %s", price)
}

func TestPriceDivisionByZero(t *testing.T) {
	_, err := Price(big.NewInt(0), big.NewInt(100), 18, 6)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestOutputFromPrice(t *testing.T) {
	// 3 tokens at price 1999.999999 into a 6dp token.
	amountIn := ToRaw(mustDecimal(t, "3"), 18)
	price := mustDecimal(t, "1999.999999")

	out := OutputFromPrice(amountIn, price, 18, 6)
	assert.Equal(t, "5999999997", out.String())
}

func TestOutputFromPriceTruncates(t *testing.T) {
	// 1 unit of a 0dp token at price 0.9999999 of a 0dp token truncates to 0.
	out := OutputFromPrice(big.NewInt(1), mustDecimal(t, "0.9999999"), 0, 0)
	assert.Equal(t, "0", out.String())
}

func TestIsProfitable(t *testing.T) {
	assert.True(t, IsProfitable(big.NewInt(100), big.NewInt(40), big.NewInt(50)))
	assert.False(t, IsProfitable(big.NewInt(100), big.NewInt(50), big.NewInt(50)), "equality must not count")
	assert.False(t, IsProfitable(big.NewInt(10), big.NewInt(40), big.NewInt(0)))
}
