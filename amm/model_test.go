package amm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/arbscan/types"
)

var (
	weth = types.Token{Address: common.HexToAddress("0x1"), Symbol: "WETH", Decimals: 18}
	usdc = types.Token{Address: common.HexToAddress("0x2"), Symbol: "USDC", Decimals: 6}
)

func scaled(base int64, decimals int32) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(base), exp)
}

func TestAmountOutClosedForm(t *testing.T) {
	// reserveIn = 1000e18, reserveOut = 2000e6, amountIn = 10e18, fee 0.3%.
	reserveIn := scaled(1000, 18)
	reserveOut := scaled(2000, 6)
	amountIn := scaled(10, 18)

	got, err := AmountOut(amountIn, reserveIn, reserveOut, 30)
	require.NoError(t, err)

	// floor(afterFee*reserveOut / (reserveIn*10000 + afterFee))
	afterFee := new(big.Int).Mul(amountIn, big.NewInt(9970))
	num := new(big.Int).Mul(afterFee, reserveOut)
	den := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(10000)), afterFee)
	want := new(big.Int).Div(num, den)

	assert.Equal(t, want.String(), got.String())
}

func TestAmountOutNeverExceedsExact(t *testing.T) {
	reserveIn := scaled(1000, 18)
	reserveOut := scaled(2000, 6)
	amountIn := scaled(7, 18)

	got, err := AmountOut(amountIn, reserveIn, reserveOut, 30)
	require.NoError(t, err)

	// Compare against the rational result: out*den <= afterFee*reserveOut.
	afterFee := new(big.Int).Mul(amountIn, big.NewInt(9970))
	den := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(10000)), afterFee)
	lhs := new(big.Int).Mul(got, den)
	rhs := new(big.Int).Mul(afterFee, reserveOut)
	assert.True(t, lhs.Cmp(rhs) <= 0, "output exceeds infinite-precision result")
}

func TestFeeMonotonicity(t *testing.T) {
	reserveIn := scaled(1000, 18)
	reserveOut := scaled(2000, 6)
	amountIn := scaled(10, 18)

	prev, err := AmountOut(amountIn, reserveIn, reserveOut, 0)
	require.NoError(t, err)

	for _, fee := range []int64{5, 30, 100, 500, 3000} {
		out, err := AmountOut(amountIn, reserveIn, reserveOut, fee)
		require.NoError(t, err)
		assert.True(t, out.Cmp(prev) < 0, "fee %d did not strictly decrease output", fee)
		prev = out
	}
}

func TestAmountOutErrors(t *testing.T) {
	reserve := scaled(1000, 18)

	_, err := AmountOut(big.NewInt(0), reserve, reserve, 30)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = AmountOut(big.NewInt(-1), reserve, reserve, 30)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = AmountOut(big.NewInt(1), big.NewInt(0), reserve, 30)
	assert.ErrorIs(t, err, ErrIlliquidPool)

	_, err = AmountOut(big.NewInt(1), reserve, big.NewInt(0), 30)
	assert.ErrorIs(t, err, ErrIlliquidPool)
}

func TestConstantProductQuotePrice(t *testing.T) {
	reserveIn := scaled(1000, 18)
	reserveOut := scaled(2000000, 6)
	amountIn := scaled(1, 18)

	quote, err := ConstantProductQuote(weth, usdc, "uniswap", amountIn, reserveIn, reserveOut, 30)
	require.NoError(t, err)

	assert.Equal(t, "uniswap", quote.Venue)
	assert.Equal(t, amountIn.String(), quote.AmountIn.String())

	// Price is derived from the pre-fee input: close to 2000 USDC/WETH but
	// strictly below the marginal price because of fee and slippage.
	assert.True(t, quote.Price.LessThan(decimal.NewFromInt(2000)))
	assert.True(t, quote.Price.GreaterThan(decimal.NewFromInt(1990)))
}

func TestSqrtPriceQuote(t *testing.T) {
	// sqrtPriceX96 == 2^96 means a raw 1:1 price.
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	price, err := SqrtPriceQuote(q96, 18, 18)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1)), "got %s", price)

	// With a 6dp token1 the human price shifts by 10^(18-6).
	price, err = SqrtPriceQuote(q96, 18, 6)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.New(1, 12)), "got %s", price)

	_, err = SqrtPriceQuote(big.NewInt(0), 18, 6)
	assert.ErrorIs(t, err, ErrIlliquidPool)
}
