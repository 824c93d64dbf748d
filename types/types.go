package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token is immutable reference data for a traded asset. Decimals is the
// number of smallest-unit digits that make up one whole token.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals int32
}

// TokenPair is a pair of tokens to scan. A is the token the round trip
// starts and ends in.
type TokenPair struct {
	A Token
	B Token
}

func (p TokenPair) String() string {
	return p.A.Symbol + "/" + p.B.Symbol
}

// Opportunity represents a detected two-leg arbitrage: buy B with A on
// BuyVenue, sell B back for A on SellVenue. Amounts are raw integer units
// of TokenA. ProfitPercent is computed before financing cost; profit after
// financing and gas lives in financing.Evaluation.
type Opportunity struct {
	TokenA         Token
	TokenB         Token
	BuyVenue       string
	SellVenue      string
	BuyPrice       decimal.Decimal
	SellPrice      decimal.Decimal
	AmountIn       *big.Int
	ExpectedProfit *big.Int
	ProfitPercent  decimal.Decimal
	Route          []string
	Timestamp      time.Time
}
