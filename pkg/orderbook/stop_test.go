package orderbook

import (
	"testing"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

func TestStopOrderTriggersOnLastTradeCross(t *testing.T) {
	b := NewBook("BTC-USD", nil)

	stop := &types.Order{
		ID: 1, SymbolID: "BTC-USD", Account: acct(1),
		Side: types.Buy, Type: types.Stop, TIF: types.IOC,
		Quantity: x18.FromInt64(5), StopPrice: x18.FromInt64(110),
	}
	if _, err := b.Place(stop, nil); err != nil {
		t.Fatalf("unexpected error resting stop: %v", err)
	}
	if b.Stops.Len() != 1 {
		t.Fatalf("expected 1 resting stop, got %d", b.Stops.Len())
	}

	b.Place(limitOrder(2, 2, types.Sell, 110, 10, types.GTC), nil)
	trades, err := b.Place(limitOrder(3, 3, types.Buy, 110, 10, types.GTC), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) < 1 {
		t.Fatal("expected at least the direct trade between orders 2 and 3")
	}
	if b.Stops.Len() != 0 {
		t.Fatalf("expected stop to have fired, got %d still resting", b.Stops.Len())
	}
}

func TestStopBookCancel(t *testing.T) {
	s := NewStopBook()
	o := &types.Order{ID: 1, Side: types.Sell, Type: types.StopLimit, StopPrice: x18.FromInt64(90), Price: x18.FromInt64(89)}
	s.Add(o)
	cancelled, ok := s.Cancel(1)
	if !ok || cancelled.Status != types.StatusCancelled {
		t.Fatalf("cancel failed: %+v ok=%v", cancelled, ok)
	}
	if s.Len() != 0 {
		t.Fatalf("expected 0 resting after cancel, got %d", s.Len())
	}
}

func TestTriggeredDirectionality(t *testing.T) {
	if !Triggered(types.Buy, x18.FromInt64(100), x18.FromInt64(100)) {
		t.Fatal("buy stop should trigger when reference equals stop price")
	}
	if Triggered(types.Buy, x18.FromInt64(100), x18.FromInt64(99)) {
		t.Fatal("buy stop should not trigger below stop price")
	}
	if !Triggered(types.Sell, x18.FromInt64(100), x18.FromInt64(100)) {
		t.Fatal("sell stop should trigger when reference equals stop price")
	}
	if Triggered(types.Sell, x18.FromInt64(100), x18.FromInt64(101)) {
		t.Fatal("sell stop should not trigger above stop price")
	}
}

func TestStopLimitFiresAsLimitOrder(t *testing.T) {
	o := &types.Order{ID: 1, Side: types.Buy, Type: types.StopLimit, StopPrice: x18.FromInt64(100), Price: x18.FromInt64(101), Quantity: x18.FromInt64(5)}
	active := toActiveOrder(o)
	if active.Type != types.Limit {
		t.Fatalf("expected Limit, got %v", active.Type)
	}
	if active.Price.Cmp(x18.FromInt64(101)) != 0 {
		t.Fatalf("expected price preserved at 101, got %v", active.Price)
	}
}

func TestStopFiresAsMarketOrder(t *testing.T) {
	o := &types.Order{ID: 1, Side: types.Sell, Type: types.Stop, StopPrice: x18.FromInt64(100), Quantity: x18.FromInt64(5)}
	active := toActiveOrder(o)
	if active.Type != types.Market || active.TIF != types.IOC {
		t.Fatalf("expected Market/IOC, got %v/%v", active.Type, active.TIF)
	}
}
