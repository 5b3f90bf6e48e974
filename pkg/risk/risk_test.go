package risk

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/vault"
	"github.com/luxdex/core/pkg/x18"
)

type fixedMark struct{ price x18.Num }

func (f fixedMark) Mark(string) (x18.Num, error) { return f.price, nil }

func acct(n byte) types.AccountID {
	var addr common.Address
	addr[19] = n
	return types.MainAccount(addr)
}

func newTestEngine(mark x18.Num) (*vault.Vault, *Engine) {
	v := vault.New(fixedMark{price: mark}, nil)
	_ = v.Markets.CreateMarket(vault.MarketConfig{
		SymbolID:              "BTC-USD",
		Currency:              "USD",
		InitialMarginFrac:     x18.FromFloat64(0.1),
		MaintenanceMarginFrac: x18.FromFloat64(0.05),
		PenaltyRate:           x18.FromFloat64(0.02),
		LiquidatorShare:       x18.FromFloat64(0.5),
		FundingInterval:       3600,
	})
	return v, New(v)
}

func order(accountID types.AccountID, isBuy bool, qty x18.Num, reduceOnly bool) *types.Order {
	side := types.Buy
	if !isBuy {
		side = types.Sell
	}
	return &types.Order{
		SymbolID:   "BTC-USD",
		Account:    accountID,
		Side:       side,
		Quantity:   qty,
		ReduceOnly: reduceOnly,
	}
}

func TestPreTradeCheckAllowsWithinMargin(t *testing.T) {
	v, r := newTestEngine(x18.FromInt64(100))
	require.NoError(t, v.Deposit(acct(1), "USD", x18.FromInt64(1000)))

	err := r.PreTradeCheck(order(acct(1), true, x18.FromInt64(10), false))
	assert.NoError(t, err)
}

func TestPreTradeCheckRejectsBeyondInitialMargin(t *testing.T) {
	v, r := newTestEngine(x18.FromInt64(100))
	require.NoError(t, v.Deposit(acct(1), "USD", x18.FromInt64(100)))

	// 1000 units @ 100 = 100000 notional, * 10% initial margin = 10000 used
	// margin, far beyond the 100 deposited.
	err := r.PreTradeCheck(order(acct(1), true, x18.FromInt64(1000), false))
	assert.Error(t, err)
}

func TestPreTradeCheckReduceOnlyRejectsGrowth(t *testing.T) {
	v, r := newTestEngine(x18.FromInt64(100))
	require.NoError(t, v.Deposit(acct(1), "USD", x18.FromInt64(100000)))

	err := r.PreTradeCheck(order(acct(1), true, x18.FromInt64(1), true))
	assert.Error(t, err)
}

func TestPreTradeCheckReduceOnlyAllowsShrinking(t *testing.T) {
	v, r := newTestEngine(x18.FromInt64(100))
	require.NoError(t, v.Deposit(acct(1), "USD", x18.FromInt64(100000)))
	require.NoError(t, v.Deposit(acct(2), "USD", x18.FromInt64(100000)))

	errs := v.ApplyFills([]vault.Settlement{{
		Maker: acct(2), Taker: acct(1), SymbolID: "BTC-USD",
		TakerIsBuy: true, Size: x18.FromInt64(10), Price: x18.FromInt64(100),
	}})
	require.NoError(t, errs[0])

	err := r.PreTradeCheck(order(acct(1), false, x18.FromInt64(5), true))
	assert.NoError(t, err)
}

func TestMaxOrderSizeScalesWithFreeMargin(t *testing.T) {
	v, r := newTestEngine(x18.FromInt64(100))
	require.NoError(t, v.Deposit(acct(1), "USD", x18.FromInt64(1000)))

	size, err := r.MaxOrderSize(acct(1), "BTC-USD", true)
	require.NoError(t, err)
	// free margin 1000 / (100 * 0.1) = 100
	assert.True(t, size.Cmp(x18.FromInt64(100)) == 0)
}

func TestIsBankruptWhenCollateralNegative(t *testing.T) {
	v, r := newTestEngine(x18.FromInt64(100))
	// 100 collateral exactly covers the 10% initial margin on a 10 @ 100
	// position, so the fill itself passes the vault's margin check.
	require.NoError(t, v.Deposit(acct(1), "USD", x18.FromInt64(100)))
	require.NoError(t, v.Deposit(acct(2), "USD", x18.FromInt64(100000)))

	errs := v.ApplyFills([]vault.Settlement{{
		Maker: acct(2), Taker: acct(1), SymbolID: "BTC-USD",
		TakerIsBuy: true, Size: x18.FromInt64(10), Price: x18.FromInt64(100),
	}})
	require.NoError(t, errs[0])

	// A funding rate large enough that the 1000 payment on a 10-unit @ 100
	// mark position outruns the 100-unit collateral deposit outright.
	require.NoError(t, v.AccrueFunding("BTC-USD", x18.FromFloat64(1), 3600))

	bankrupt, err := r.IsBankrupt(acct(1))
	require.NoError(t, err)
	assert.True(t, bankrupt)
}
