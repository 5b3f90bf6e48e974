// Package orderbook implements the per-symbol central limit order book:
// price-time priority matching, TIF/order-type semantics, self-trade
// prevention, O(1) cancel, and the optional auction and pro-rata matchers
// (spec §4.2).
package orderbook

import (
	"sync"

	"go.uber.org/zap"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// MatchMode selects the matcher used at a crossing price level. PriceTime is
// the default continuous-matching mode; ProRata and the Auction type (see
// auction.go) are gated alternates per §9's "Auction and pro-rata as
// alternate matchers" design note.
type MatchMode int8

const (
	PriceTime MatchMode = iota
	ProRata
)

type orderLoc struct {
	side  types.Side
	price x18.Num
}

// Book is a single symbol's order book: bid/ask price levels, an O(1)
// order-id index, and an attached stop-order sub-component.
type Book struct {
	mu sync.RWMutex

	SymbolID string
	Mode     MatchMode

	bids *bookSide
	asks *bookSide

	index  map[uint64]orderLoc
	orders map[uint64]*types.Order

	lastPrice x18.Num
	tradeSeq  uint64

	Stops *StopBook

	log *zap.Logger
}

// NewBook creates an empty book for symbolID using price-time matching.
func NewBook(symbolID string, log *zap.Logger) *Book {
	return &Book{
		SymbolID:  symbolID,
		Mode:      PriceTime,
		bids:      newBookSide(true),
		asks:      newBookSide(false),
		index:     make(map[uint64]orderLoc),
		orders:    make(map[uint64]*types.Order),
		lastPrice: x18.Zero(),
		Stops:     NewStopBook(),
		log:       log,
	}
}

func (b *Book) sideFor(s types.Side) *bookSide {
	if s == types.Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) oppositeFor(s types.Side) *bookSide {
	if s == types.Buy {
		return b.asks
	}
	return b.bids
}

// validate checks the invariants §3 places on a new order before any
// matching is attempted. Validation failures are rejected at the boundary
// with no state change (§7 "Validation" taxonomy entry).
func validate(o *types.Order) *types.Error {
	if o.Quantity.Sign() <= 0 {
		return types.Err(types.CodeInvalidTickRange, "quantity must be positive")
	}
	if (o.Type == types.Limit || o.Type == types.StopLimit) && !o.Price.IsPos() {
		return types.Err(types.CodeInvalidTickRange, "price must be positive for limit orders")
	}
	if o.Type.IsConditional() && !o.StopPrice.IsPos() {
		return types.Err(types.CodeInvalidTickRange, "stop price must be positive for stop orders")
	}
	return nil
}

// Place matches an incoming order under price-time (or pro-rata) priority,
// resting, cancelling, or rejecting any residual per its TIF, then checks
// the stop book against the new last-trade price and recursively places any
// triggered conditional orders. See spec §4.2.
func (b *Book) Place(o *types.Order, lst Listener) ([]types.Trade, error) {
	if lst == nil {
		lst = defaultListener
	}
	if err := validate(o); err != nil {
		o.Status = types.StatusRejected
		return nil, err
	}

	if o.Type.IsConditional() {
		if err := b.Stops.Add(o); err != nil {
			o.Status = types.StatusRejected
			return nil, err
		}
		o.Status = types.StatusNew
		return nil, nil
	}

	b.mu.Lock()
	trades := b.matchLocked(o, lst)
	lastPrice := b.lastPrice
	b.mu.Unlock()

	if len(trades) > 0 {
		triggered := b.Stops.CheckTriggers(lastPrice)
		for _, child := range triggered {
			childTrades, err := b.Place(child, lst)
			if err != nil && b.log != nil {
				b.log.Error("triggered stop order rejected", zap.Uint64("order_id", child.ID), zap.Error(err))
			}
			trades = append(trades, childTrades...)
		}
	}
	return trades, nil
}

// fokAvailable sums resting quantity reachable by o at an acceptable price,
// for the FOK pre-check (§4.2 "FOK pre-check"). Caller must hold at least a
// read lock.
func (b *Book) fokAvailable(o *types.Order) x18.Num {
	opp := b.oppositeFor(o.Side)
	total := x18.Zero()
	for _, lv := range opp.orderedLevels() {
		if o.Type != types.Market {
			if o.Side == types.Buy && o.Price.Lt(lv.price) {
				break
			}
			if o.Side == types.Sell && o.Price.Gt(lv.price) {
				break
			}
		}
		total = total.Add(lv.totalQty)
		if total.Gte(o.Quantity) {
			break
		}
	}
	return total
}

// matchLocked performs the core matching walk. Caller must hold b.mu
// exclusively.
func (b *Book) matchLocked(o *types.Order, lst Listener) []types.Trade {
	if o.TIF == types.FOK {
		if b.fokAvailable(o).Lt(o.Quantity) {
			o.Status = types.StatusRejected
			return nil
		}
	}

	var trades []types.Trade
	opp := b.oppositeFor(o.Side)

	for o.Remaining().IsPos() {
		bestPrice, ok := opp.best()
		if !ok {
			break
		}
		if !b.crosses(o, bestPrice) {
			break
		}
		lv := opp.levels[priceKey(bestPrice)]
		if lv.empty() {
			opp.collapseIfEmpty(bestPrice)
			continue
		}

		if b.Mode == ProRata && len(lv.orders) > 1 {
			trades = append(trades, b.matchProRataLevel(o, opp, lv, lst)...)
			continue
		}

		trade, done := b.matchFrontOfLevel(o, opp, lv, lst)
		if trade != nil {
			trades = append(trades, *trade)
		}
		if done {
			continue
		}
	}

	b.finalizeResidual(o, lst)
	return trades
}

// crosses reports whether o's price is willing to trade at bestPrice.
func (b *Book) crosses(o *types.Order, bestPrice x18.Num) bool {
	if o.Type == types.Market {
		return true
	}
	if o.Side == types.Buy {
		return o.Price.Gte(bestPrice)
	}
	return o.Price.Lte(bestPrice)
}

// matchFrontOfLevel matches against (or STP-cancels) the order at the front
// of lv, returning the resulting trade (nil if the front was cancelled for
// STP) and whether the level's front changed without a trade. The caller
// loops again either way, re-checking the best price and crossing.
func (b *Book) matchFrontOfLevel(o *types.Order, opp *bookSide, lv *level, lst Listener) (*types.Trade, bool) {
	maker := lv.orders[0]

	// Self-trade prevention: cancel the resting order, keep matching at
	// this price (§4.2 "Self-trade prevention", §9 — resting-cancel only).
	if o.STPGroup != 0 && maker.STPGroup == o.STPGroup {
		cancelled := lv.cancelAt(0)
		cancelled.Status = types.StatusCancelled
		b.removeIndex(cancelled.ID)
		notify(b.log, func() { lst.OnOrderCancelled(cancelled) })
		opp.collapseIfEmpty(lv.price)
		return nil, true
	}

	fillQty := x18.Min(o.Remaining(), maker.Remaining())
	price := maker.Price // passive quoting: trade at the resting order's price

	maker = lv.fillFront(fillQty)
	o.Filled = o.Filled.Add(fillQty)

	b.tradeSeq++
	trade := types.Trade{
		ID:            b.tradeSeq,
		SymbolID:      b.SymbolID,
		Price:         price,
		Quantity:      fillQty,
		AggressorSide: o.Side,
		Timestamp:     o.Timestamp,
	}
	if o.Side == types.Buy {
		trade.BuyOrderID, trade.SellOrderID = o.ID, maker.ID
		trade.BuyAccount, trade.SellAccount = o.Account, maker.Account
	} else {
		trade.BuyOrderID, trade.SellOrderID = maker.ID, o.ID
		trade.BuyAccount, trade.SellAccount = maker.Account, o.Account
	}
	b.lastPrice = price
	notify(b.log, func() { lst.OnTrade(trade) })

	if maker.Remaining().IsZero() {
		maker.Status = types.StatusFilled
		b.removeIndex(maker.ID)
		notify(b.log, func() { lst.OnOrderFilled(maker) })
		opp.collapseIfEmpty(lv.price)
	} else {
		maker.Status = types.StatusPartial
		notify(b.log, func() { lst.OnOrderPartiallyFilled(maker, fillQty) })
	}

	return &trade, false
}

// matchProRataLevel allocates the aggressor's remaining quantity across all
// resting orders at lv proportionally to their remaining size, distributing
// any integer-division remainder in FIFO order (§4.2 "Pro-rata mode").
func (b *Book) matchProRataLevel(o *types.Order, opp *bookSide, lv *level, lst Listener) []types.Trade {
	avail := x18.Min(o.Remaining(), lv.totalQty)
	if avail.IsZero() {
		return nil
	}

	n := len(lv.orders)
	allocs := make([]x18.Num, n)
	allocated := x18.Zero()
	for i, maker := range lv.orders {
		share := avail.Mul(maker.Remaining()).Div(lv.totalQty)
		allocs[i] = share
		allocated = allocated.Add(share)
	}
	// Distribute rounding remainder in FIFO order, one unit of quantity at
	// a time isn't meaningful at X18 precision, so hand the whole remainder
	// to the first order(s) in FIFO order until exhausted.
	remainder := avail.Sub(allocated)
	for i := 0; i < n && remainder.IsPos(); i++ {
		take := x18.Min(remainder, lv.orders[i].Remaining().Sub(allocs[i]))
		if take.IsNeg() {
			continue
		}
		allocs[i] = allocs[i].Add(take)
		remainder = remainder.Sub(take)
	}

	var trades []types.Trade
	// Apply fills back-to-front so indices into lv.orders stay valid as
	// fully-filled makers are removed.
	for i := n - 1; i >= 0; i-- {
		qty := allocs[i]
		if !qty.IsPos() {
			continue
		}
		maker := lv.orders[i]
		price := maker.Price
		maker.Filled = maker.Filled.Add(qty)
		lv.totalQty = lv.totalQty.Sub(qty)
		o.Filled = o.Filled.Add(qty)

		b.tradeSeq++
		trade := types.Trade{
			ID:            b.tradeSeq,
			SymbolID:      b.SymbolID,
			Price:         price,
			Quantity:      qty,
			AggressorSide: o.Side,
			Timestamp:     o.Timestamp,
		}
		if o.Side == types.Buy {
			trade.BuyOrderID, trade.SellOrderID = o.ID, maker.ID
			trade.BuyAccount, trade.SellAccount = o.Account, maker.Account
		} else {
			trade.BuyOrderID, trade.SellOrderID = maker.ID, o.ID
			trade.BuyAccount, trade.SellAccount = maker.Account, o.Account
		}
		b.lastPrice = price
		trades = append([]types.Trade{trade}, trades...)
		notify(b.log, func() { lst.OnTrade(trade) })

		if maker.Remaining().IsZero() {
			maker.Status = types.StatusFilled
			lv.orders = append(lv.orders[:i], lv.orders[i+1:]...)
			b.removeIndex(maker.ID)
			notify(b.log, func() { lst.OnOrderFilled(maker) })
		} else {
			maker.Status = types.StatusPartial
			notify(b.log, func() { lst.OnOrderPartiallyFilled(maker, qty) })
		}
	}
	opp.collapseIfEmpty(lv.price)
	return trades
}

// finalizeResidual applies TIF/order-type policy to whatever quantity is
// left unmatched on o (§4.2 TIF table).
func (b *Book) finalizeResidual(o *types.Order, lst Listener) {
	remaining := o.Remaining()
	if remaining.IsZero() {
		o.Status = types.StatusFilled
		return
	}

	switch {
	case o.Type == types.Market:
		o.Status = statusForPartial(o)
		return
	case o.TIF == types.IOC:
		o.Status = statusForPartial(o)
		return
	case o.TIF == types.FOK:
		// Reached only if matchLocked's pre-check passed but a race left a
		// residual; treat conservatively as a reject with whatever matched
		// (should not happen under the single-writer-lock discipline).
		o.Status = types.StatusRejected
		return
	default: // GTC, GTD, DAY: rest the residual
		b.restLocked(o)
		if o.Filled.IsPos() {
			o.Status = types.StatusPartial
		} else {
			o.Status = types.StatusNew
		}
	}
}

func statusForPartial(o *types.Order) types.OrderStatus {
	if o.Filled.IsPos() {
		return types.StatusPartial
	}
	return types.StatusCancelled
}

func (b *Book) restLocked(o *types.Order) {
	side := b.sideFor(o.Side)
	lv := side.getOrCreateLevel(o.Price)
	lv.push(o)
	b.index[o.ID] = orderLoc{side: o.Side, price: o.Price}
	b.orders[o.ID] = o
}

func (b *Book) removeIndex(id uint64) {
	delete(b.index, id)
	delete(b.orders, id)
}

// Cancel removes a resting order in O(1) via the order-id index.
func (b *Book) Cancel(orderID uint64) (*types.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelLocked(orderID)
}

func (b *Book) cancelLocked(orderID uint64) (*types.Order, bool) {
	loc, ok := b.index[orderID]
	if !ok {
		if o, ok := b.Stops.Cancel(orderID); ok {
			return o, true
		}
		return nil, false
	}
	side := b.sideFor(loc.side)
	lv := side.levels[priceKey(loc.price)]
	if lv == nil {
		return nil, false
	}
	i := lv.findIndex(orderID)
	if i < 0 {
		return nil, false
	}
	o := lv.cancelAt(i)
	side.collapseIfEmpty(loc.price)
	b.removeIndex(orderID)
	o.Status = types.StatusCancelled
	return o, true
}

// Modify is cancel-and-replace: the order loses time priority even when the
// price is unchanged (§4.2). If newQuantity <= filled, the order is
// cancelled outright.
func (b *Book) Modify(orderID uint64, newPrice, newQuantity x18.Num, lst Listener) (*types.Order, []types.Trade, error) {
	b.mu.Lock()
	old, ok := b.cancelLocked(orderID)
	b.mu.Unlock()
	if !ok {
		return nil, nil, types.Err(types.CodeOrderNotFound, "order %d not found", orderID)
	}

	if newQuantity.Lte(old.Filled) {
		old.Status = types.StatusCancelled
		return old, nil, nil
	}

	replacement := &types.Order{
		ID:        old.ID,
		SymbolID:  old.SymbolID,
		Account:   old.Account,
		Side:      old.Side,
		Type:      old.Type,
		TIF:       old.TIF,
		Price:     newPrice,
		Quantity:  newQuantity,
		Filled:    old.Filled,
		StopPrice: old.StopPrice,
		STPGroup:  old.STPGroup,
		ClientOID: old.ClientOID,
		HasOID:    old.HasOID,
		GroupID:   old.GroupID,
		GroupType: old.GroupType,
		Timestamp: old.Timestamp,
	}
	trades, err := b.Place(replacement, lst)
	return replacement, trades, err
}

// GetOrder looks up a resting order by id.
func (b *Book) GetOrder(orderID uint64) (*types.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[orderID]
	return o, ok
}

// BestBid returns the highest resting bid price.
func (b *Book) BestBid() (x18.Num, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.best()
}

// BestAsk returns the lowest resting ask price.
func (b *Book) BestAsk() (x18.Num, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.best()
}

// Spread returns ask - bid, and false if either side is empty.
func (b *Book) Spread() (x18.Num, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, ok1 := b.bids.best()
	ask, ok2 := b.asks.best()
	if !ok1 || !ok2 {
		return x18.Zero(), false
	}
	return ask.Sub(bid), true
}

// MidPrice returns (bid+ask)/2, or zero if either side is empty.
func (b *Book) MidPrice() (x18.Num, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bid, ok1 := b.bids.best()
	ask, ok2 := b.asks.best()
	if !ok1 || !ok2 {
		return x18.Zero(), false
	}
	return bid.Add(ask).Div(x18.FromInt64(2)), true
}

// LastPrice returns the most recent trade price.
func (b *Book) LastPrice() x18.Num {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastPrice
}

// Depth returns up to n price levels per side, best price first.
func (b *Book) Depth(n int) (bids []PriceLevel, asks []PriceLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i, lv := range b.bids.orderedLevels() {
		if i >= n {
			break
		}
		bids = append(bids, PriceLevel{Price: lv.price, Qty: lv.totalQty})
	}
	for i, lv := range b.asks.orderedLevels() {
		if i >= n {
			break
		}
		asks = append(asks, PriceLevel{Price: lv.price, Qty: lv.totalQty})
	}
	return bids, asks
}

// OrderCount returns the number of resting orders on the continuous book
// (excluding the stop book).
func (b *Book) OrderCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}
