package orderbook

import (
	"testing"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

func auctionOrder(id uint64, seed byte, side types.Side, price, qty int64) *types.Order {
	return &types.Order{
		ID:       id,
		SymbolID: "BTC-USD",
		Account:  acct(seed),
		Side:     side,
		Type:     types.Limit,
		Price:    x18.FromInt64(price),
		Quantity: x18.FromInt64(qty),
	}
}

func TestAuctionClearsAtMaxVolumePrice(t *testing.T) {
	a := NewAuction()
	a.AddInterest(auctionOrder(1, 1, types.Buy, 105, 10))
	a.AddInterest(auctionOrder(2, 2, types.Buy, 103, 5))
	a.AddInterest(auctionOrder(3, 3, types.Sell, 100, 8))
	a.AddInterest(auctionOrder(4, 4, types.Sell, 104, 10))

	price, trades, ok := a.Clear()
	if !ok {
		t.Fatal("expected a clearing price")
	}
	if price.Cmp(x18.FromInt64(104)) != 0 {
		t.Fatalf("clearing price = %v, want 104 (max volume point)", price)
	}
	total := x18.Zero()
	for _, tr := range trades {
		if tr.Price.Cmp(price) != 0 {
			t.Fatalf("trade not at clearing price: %+v", tr)
		}
		total = total.Add(tr.Quantity)
	}
	if total.Cmp(x18.FromInt64(10)) != 0 {
		t.Fatalf("total matched = %v, want 10", total)
	}
}

func TestAuctionNoCrossReturnsNotOK(t *testing.T) {
	a := NewAuction()
	a.AddInterest(auctionOrder(1, 1, types.Buy, 90, 10))
	a.AddInterest(auctionOrder(2, 2, types.Sell, 100, 10))

	_, trades, ok := a.Clear()
	if ok {
		t.Fatal("expected no clearing price when bid < ask everywhere")
	}
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
}

func TestAuctionEmptyBatch(t *testing.T) {
	a := NewAuction()
	_, trades, ok := a.Clear()
	if ok || trades != nil {
		t.Fatalf("expected no-op on empty batch, got ok=%v trades=%v", ok, trades)
	}
}

func TestAuctionFIFOWithinPriceLevel(t *testing.T) {
	a := NewAuction()
	first := auctionOrder(1, 1, types.Buy, 100, 5)
	first.Timestamp = 1
	second := auctionOrder(2, 2, types.Buy, 100, 5)
	second.Timestamp = 2
	a.AddInterest(first)
	a.AddInterest(second)
	a.AddInterest(auctionOrder(3, 3, types.Sell, 100, 5))

	_, trades, ok := a.Clear()
	if !ok || len(trades) != 1 {
		t.Fatalf("expected exactly 1 trade, got ok=%v trades=%+v", ok, trades)
	}
	if trades[0].BuyOrderID != 1 {
		t.Fatalf("expected earlier-timestamp order 1 to be filled first, got buyer=%d", trades[0].BuyOrderID)
	}
}
