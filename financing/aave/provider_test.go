package aave

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticCaller struct {
	out *big.Int
	err error
}

func (c *staticCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return common.LeftPadBytes(c.out.Bytes(), 32), nil
}

func TestLiquidityReadsReserveData(t *testing.T) {
	p, err := New(&staticCaller{out: big.NewInt(5e6)}, common.HexToAddress("0x1"), zap.NewNop())
	require.NoError(t, err)

	liquidity, err := p.Liquidity(context.Background(), common.HexToAddress("0x2"))
	require.NoError(t, err)
	assert.Equal(t, "5000000", liquidity.String())
}

func TestLiquidityPropagatesCallFailure(t *testing.T) {
	p, err := New(&staticCaller{err: errors.New("rpc down")}, common.HexToAddress("0x1"), zap.NewNop())
	require.NoError(t, err)

	_, err = p.Liquidity(context.Background(), common.HexToAddress("0x2"))
	assert.ErrorContains(t, err, "getReserveData call failed")
}

func TestLoanCallDataPacksArguments(t *testing.T) {
	p, err := New(&staticCaller{out: big.NewInt(1)}, common.HexToAddress("0x1"), zap.NewNop())
	require.NoError(t, err)

	data, err := p.LoanCallData(
		common.HexToAddress("0xa"), common.HexToAddress("0xb"), big.NewInt(1e18), []byte{0xff})
	require.NoError(t, err)
	assert.Greater(t, len(data), 4, "selector plus encoded arguments")

	_, err = p.LoanCallData(common.HexToAddress("0xa"), common.HexToAddress("0xb"), big.NewInt(0), nil)
	assert.ErrorContains(t, err, "invalid loan amount")
}

func TestProviderIdentity(t *testing.T) {
	pool := common.HexToAddress("0x1")
	p, err := New(&staticCaller{out: big.NewInt(1)}, pool, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "aave", p.Name())
	assert.Equal(t, pool, p.Address())
	assert.Equal(t, int64(9), p.FeeBps())
}
