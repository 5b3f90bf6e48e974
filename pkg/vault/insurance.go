package vault

import (
	"sync"

	"github.com/luxdex/core/pkg/x18"
)

// Insurance is the singleton backstop balance used to absorb liquidation
// shortfalls before auto-deleverage is invoked (§4.4 "insurance fund").
type Insurance struct {
	mu      sync.Mutex
	balance x18.Num
}

// NewInsurance creates an empty fund.
func NewInsurance() *Insurance {
	return &Insurance{}
}

// Contribute adds amount to the fund (liquidation penalties, admin top-ups).
func (i *Insurance) Contribute(amount x18.Num) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.balance = i.balance.Add(amount)
}

// Withdraw draws amount from the fund, capped at the current balance; it
// returns however much was actually available (§4.4: "drawn down" — the
// fund never goes negative, the shortfall beyond it falls to ADL).
func (i *Insurance) Withdraw(amount x18.Num) x18.Num {
	i.mu.Lock()
	defer i.mu.Unlock()
	drawn := x18.Min(amount, i.balance)
	i.balance = i.balance.Sub(drawn)
	return drawn
}

// Balance returns the fund's current balance.
func (i *Insurance) Balance() x18.Num {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.balance
}
