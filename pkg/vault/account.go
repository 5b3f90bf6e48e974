package vault

import (
	"sync"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// Position is one account's signed exposure in one market (§3: "positions
// carry signed size; the side tag is redundant with the sign").
type Position struct {
	SymbolID           string
	Size               x18.Num // signed: positive long, negative short
	EntryPrice         x18.Num
	AccumulatedFunding x18.Num
	LastFundingAt      int64 // ns
}

// IsFlat reports whether the position has been fully closed.
func (p *Position) IsFlat() bool { return p.Size.IsZero() }

// Notional returns |size| * price.
func (p *Position) Notional(price x18.Num) x18.Num {
	return p.Size.Abs().Mul(price)
}

// UnrealizedPnL returns (price - entry) * size, which is negative for a
// short position whose mark has risen above its entry.
func (p *Position) UnrealizedPnL(price x18.Num) x18.Num {
	return price.Sub(p.EntryPrice).Mul(p.Size)
}

// Leverage returns this position's notional at price divided by the
// caller-supplied accountEquity, or zero when accountEquity is zero.
func (p *Position) Leverage(price, accountEquity x18.Num) x18.Num {
	if accountEquity.IsZero() {
		return x18.Zero()
	}
	return p.Notional(price).Div(accountEquity)
}

// Account is one risk unit's balances and open positions (§3's AccountID:
// main address + sub-account index; each sub-account is its own risk
// unit).
type Account struct {
	mu sync.Mutex

	ID        types.AccountID
	Balances  map[string]x18.Num // currency -> balance
	Positions map[string]*Position
}

// NewAccount creates an empty account.
func NewAccount(id types.AccountID) *Account {
	return &Account{
		ID:        id,
		Balances:  make(map[string]x18.Num),
		Positions: make(map[string]*Position),
	}
}

func (a *Account) balance(currency string) x18.Num {
	return a.Balances[currency]
}

func (a *Account) addBalance(currency string, delta x18.Num) {
	a.Balances[currency] = a.balance(currency).Add(delta)
}

func (a *Account) positionFor(symbolID string) *Position {
	p, ok := a.Positions[symbolID]
	if !ok {
		p = &Position{SymbolID: symbolID}
		a.Positions[symbolID] = p
	}
	return p
}

// Position returns a snapshot of the account's position in symbolID, or the
// zero (flat) position if none exists yet. Safe to call without holding the
// account's lock from outside the package; it takes its own lock.
func (a *Account) Position(symbolID string) Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.Positions[symbolID]; ok {
		return *p
	}
	return Position{SymbolID: symbolID}
}
