// Package vault implements the clearinghouse (§4.4): accounts, collateral
// balances, perpetual positions, margin accounting, fee application, and
// liquidation with an insurance fund and auto-deleverage fallback.
package vault

import (
	"sync"

	"go.uber.org/zap"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// MarkSource is the vault's narrow dependency on the feed (§9: "the source
// binds Feed to Oracle by reference and Vault calls into Feed for mark
// prices... implement as dependency injection with a narrow pure interface
// for each"). *feed.Feed satisfies this via its Mark method.
type MarkSource interface {
	Mark(symbolID string) (x18.Num, error)
}

// Settlement is one matched fill handed from the engine to the vault
// (§4.4 apply_fills).
type Settlement struct {
	Maker       types.AccountID
	Taker       types.AccountID
	SymbolID    string
	TakerIsBuy  bool
	Size        x18.Num // unsigned fill quantity
	Price       x18.Num
	MakerFee    x18.Num // may be negative (rebate)
	TakerFee    x18.Num
	Timestamp   int64
}

// MarginInfo is the result of GetMarginInfo (§4.4).
type MarginInfo struct {
	TotalCollateral   x18.Num
	UsedMargin        x18.Num
	FreeMargin        x18.Num
	MarginRatio       x18.Num
	MaintenanceMargin x18.Num
	Liquidatable      bool
}

// Vault holds every account and market and the shared insurance fund. Lock
// discipline follows §5: one mutex per account (Account.mu) plus the
// registry's own lock for market config, acquired account-then-market on
// settlement paths that touch both.
type Vault struct {
	mu       sync.RWMutex
	accounts map[types.AccountID]*Account

	Markets   *MarketRegistry
	Insurance *Insurance
	Mark      MarkSource

	log *zap.Logger
}

// New creates a vault reading mark prices from mark.
func New(mark MarkSource, log *zap.Logger) *Vault {
	return &Vault{
		accounts:  make(map[types.AccountID]*Account),
		Markets:   NewMarketRegistry(),
		Insurance: NewInsurance(),
		Mark:      mark,
		log:       log,
	}
}

func (v *Vault) accountFor(id types.AccountID) *Account {
	v.mu.Lock()
	a, ok := v.accounts[id]
	if !ok {
		a = NewAccount(id)
		v.accounts[id] = a
	}
	v.mu.Unlock()
	return a
}

// GetAccount returns the account for id, creating it lazily (§3: "Positions
// are created lazily on first fill"; accounts follow the same convention
// here for deposit-before-trade flows).
func (v *Vault) GetAccount(id types.AccountID) *Account {
	return v.accountFor(id)
}

// Deposit credits currency into account's balance.
func (v *Vault) Deposit(id types.AccountID, currency string, amount x18.Num) error {
	if !amount.IsPos() {
		return types.Err(types.CodeInvalidTickRange, "deposit amount must be positive")
	}
	a := v.accountFor(id)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addBalance(currency, amount)
	return nil
}

// Withdraw debits currency from account's balance, rejected if it would
// drive free margin negative given open positions (§4.4).
func (v *Vault) Withdraw(id types.AccountID, currency string, amount x18.Num) error {
	if !amount.IsPos() {
		return types.Err(types.CodeInvalidTickRange, "withdraw amount must be positive")
	}
	a := v.accountFor(id)
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balance(currency).Lt(amount) {
		return types.Err(types.CodeInsufficientBalance, "insufficient %s balance", currency)
	}
	info, err := v.marginInfoLocked(a)
	if err != nil {
		return err
	}
	if info.FreeMargin.Sub(amount).IsNeg() {
		return types.Err(types.CodeInsufficientMargin, "withdrawal would reduce free margin below zero")
	}
	a.addBalance(currency, amount.Neg())
	return nil
}

// Transfer moves amount of currency from `from` to `to`, subject to the
// same free-margin check as Withdraw.
func (v *Vault) Transfer(from, to types.AccountID, currency string, amount x18.Num) error {
	if err := v.Withdraw(from, currency, amount); err != nil {
		return err
	}
	return v.Deposit(to, currency, amount)
}
