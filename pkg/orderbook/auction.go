package orderbook

import (
	"sort"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// Auction is the book's optional secondary matcher (§4.2 "Auction mode"):
// given a snapshot of interest on both sides, it finds the clearing price
// that maximises matched volume, tie-broken by minimal absolute imbalance,
// then executes all aggressorless trades at that price in time-priority
// order. It is gated behind its own entry point — the default path remains
// continuous price-time matching in Book.
type Auction struct {
	bids []*types.Order
	asks []*types.Order
}

// NewAuction creates an empty auction batch.
func NewAuction() *Auction {
	return &Auction{}
}

// AddInterest registers one side's interest for the next Clear call.
func (a *Auction) AddInterest(o *types.Order) {
	if o.Side == types.Buy {
		a.bids = append(a.bids, o)
	} else {
		a.asks = append(a.asks, o)
	}
}

// candidatePrices returns the distinct union of all bid and ask prices.
func (a *Auction) candidatePrices() []x18.Num {
	seen := make(map[string]x18.Num)
	for _, o := range a.bids {
		seen[priceKey(o.Price)] = o.Price
	}
	for _, o := range a.asks {
		seen[priceKey(o.Price)] = o.Price
	}
	out := make([]x18.Num, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lt(out[j]) })
	return out
}

func sumAtOrBetter(orders []*types.Order, side types.Side, p x18.Num) x18.Num {
	total := x18.Zero()
	for _, o := range orders {
		if side == types.Buy && o.Price.Gte(p) {
			total = total.Add(o.Remaining())
		} else if side == types.Sell && o.Price.Lte(p) {
			total = total.Add(o.Remaining())
		}
	}
	return total
}

// Clear computes the clearing price and executes the auction, returning the
// resulting trades. ok is false if no price clears any volume.
func (a *Auction) Clear() (clearing x18.Num, trades []types.Trade, ok bool) {
	candidates := a.candidatePrices()
	if len(candidates) == 0 {
		return x18.Zero(), nil, false
	}

	var bestPrice x18.Num
	bestVolume := x18.Zero()
	var bestImbalance x18.Num
	haveBest := false

	for _, p := range candidates {
		bidQty := sumAtOrBetter(a.bids, types.Buy, p)
		askQty := sumAtOrBetter(a.asks, types.Sell, p)
		vol := x18.Min(bidQty, askQty)
		imbalance := bidQty.Sub(askQty).Abs()

		if !haveBest || vol.Gt(bestVolume) || (vol.Cmp(bestVolume) == 0 && imbalance.Lt(bestImbalance)) {
			bestPrice, bestVolume, bestImbalance = p, vol, imbalance
			haveBest = true
		}
	}

	if !haveBest || bestVolume.IsZero() {
		return x18.Zero(), nil, false
	}

	buyers := filterAndSort(a.bids, types.Buy, bestPrice)
	sellers := filterAndSort(a.asks, types.Sell, bestPrice)

	remaining := bestVolume
	bi, si := 0, 0
	var seq uint64
	for remaining.IsPos() && bi < len(buyers) && si < len(sellers) {
		buyer, seller := buyers[bi], sellers[si]
		fillQty := x18.Min(x18.Min(buyer.Remaining(), seller.Remaining()), remaining)
		if fillQty.IsZero() {
			if buyer.Remaining().IsZero() {
				bi++
			}
			if seller.Remaining().IsZero() {
				si++
			}
			continue
		}

		buyer.Filled = buyer.Filled.Add(fillQty)
		seller.Filled = seller.Filled.Add(fillQty)
		remaining = remaining.Sub(fillQty)

		seq++
		trades = append(trades, types.Trade{
			ID:          seq,
			Price:       bestPrice,
			Quantity:    fillQty,
			BuyOrderID:  buyer.ID,
			SellOrderID: seller.ID,
			BuyAccount:  buyer.Account,
			SellAccount: seller.Account,
			Timestamp:   buyer.Timestamp,
		})

		if buyer.Remaining().IsZero() {
			buyer.Status = types.StatusFilled
			bi++
		} else {
			buyer.Status = types.StatusPartial
		}
		if seller.Remaining().IsZero() {
			seller.Status = types.StatusFilled
			si++
		} else {
			seller.Status = types.StatusPartial
		}
	}

	return bestPrice, trades, true
}

// filterAndSort returns orders on side eligible at clearing price p, in
// time-priority (timestamp, then id) order.
func filterAndSort(orders []*types.Order, side types.Side, p x18.Num) []*types.Order {
	var out []*types.Order
	for _, o := range orders {
		if side == types.Buy && o.Price.Gte(p) {
			out = append(out, o)
		} else if side == types.Sell && o.Price.Lte(p) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}
