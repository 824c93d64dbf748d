package cmd

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/arbscan/types"
)

func TestPairGroupsBucketsByBaseScale(t *testing.T) {
	weth := types.Token{Address: common.HexToAddress("0x1"), Symbol: "WETH", Decimals: 18}
	wbtc := types.Token{Address: common.HexToAddress("0x2"), Symbol: "WBTC", Decimals: 8}
	usdc := types.Token{Address: common.HexToAddress("0x3"), Symbol: "USDC", Decimals: 6}
	dai := types.Token{Address: common.HexToAddress("0x4"), Symbol: "DAI", Decimals: 18}

	groups := pairGroups([]types.TokenPair{
		{A: weth, B: usdc},
		{A: wbtc, B: usdc},
		{A: dai, B: usdc},
	})
	require.Len(t, groups, 2)

	// Ascending scale, one raw probe amount valid per group.
	assert.EqualValues(t, 8, groups[0].decimals)
	require.Len(t, groups[0].pairs, 1)
	assert.Equal(t, "WBTC", groups[0].pairs[0].A.Symbol)

	assert.EqualValues(t, 18, groups[1].decimals)
	assert.Len(t, groups[1].pairs, 2)
}

func TestPairGroupsEmpty(t *testing.T) {
	assert.Empty(t, pairGroups(nil))
}

func TestProbeAmountConvertsWholeTokens(t *testing.T) {
	amount, err := probeAmount("10", 6)
	require.NoError(t, err)
	assert.Equal(t, "10000000", amount.String())

	_, err = probeAmount("not-a-size", 6)
	assert.Error(t, err)
}
