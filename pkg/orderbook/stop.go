package orderbook

import (
	"sync"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// StopBook is the book's conditional-order sub-component (§4.2 "Stop
// orders"): resting stop/stop-limit/take orders held in a map keyed by
// order id, so cancel-by-id is a single lookup. CheckTriggers scans every
// resting order against the last-trade price after each match; orders are
// not indexed by stop price.
type StopBook struct {
	mu     sync.Mutex
	orders map[uint64]*types.Order
}

// NewStopBook creates an empty stop book.
func NewStopBook() *StopBook {
	return &StopBook{orders: make(map[uint64]*types.Order)}
}

// Add rests a conditional order in the stop book.
func (s *StopBook) Add(o *types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

// Cancel removes a conditional order by id.
func (s *StopBook) Cancel(orderID uint64) (*types.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, false
	}
	delete(s.orders, orderID)
	o.Status = types.StatusCancelled
	return o, true
}

// CheckTriggers evaluates every resting conditional order against the new
// last-trade price and returns the ones that fired, converted to their
// active form (market or limit) and ready to be re-submitted through
// Book.Place. Buy-side conditionals fire on an upward cross; sell-side on a
// downward cross (§4.2).
func (s *StopBook) CheckTriggers(lastPrice x18.Num) []*types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fired []*types.Order
	for id, o := range s.orders {
		if !Triggered(o.Side, o.StopPrice, lastPrice) {
			continue
		}
		delete(s.orders, id)
		o.Status = types.StatusTriggered
		fired = append(fired, toActiveOrder(o))
	}
	return fired
}

// Triggered reports whether a conditional order on side with stopPrice
// should fire given reference (last-trade or mark price, per configuration
// — §4.6 and §9's open question on trigger reference). Buy triggers fire
// when reference >= trigger; sell triggers fire when reference <= trigger.
func Triggered(side types.Side, stopPrice, reference x18.Num) bool {
	if side == types.Buy {
		return reference.Gte(stopPrice)
	}
	return reference.Lte(stopPrice)
}

// toActiveOrder converts a fired conditional order into the order that gets
// re-submitted to the continuous book: Stop/TakeMarket become Market
// orders, StopLimit/TakeLimit become Limit orders at their existing Price.
func toActiveOrder(o *types.Order) *types.Order {
	cp := o.Clone()
	switch o.Type {
	case types.Stop, types.TakeMarket:
		cp.Type = types.Market
		cp.TIF = types.IOC
	case types.StopLimit, types.TakeLimit:
		cp.Type = types.Limit
	}
	cp.Status = types.StatusNew
	return cp
}

// Len returns the number of resting conditional orders.
func (s *StopBook) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}
