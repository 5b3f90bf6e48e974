package engine

import (
	"testing"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

func acct(n byte) types.AccountID {
	var a types.Address
	a[19] = n
	return types.MainAccount(a)
}

func order(id uint64, symbol string, seed byte, side types.Side, price, qty int64) *types.Order {
	return &types.Order{
		ID: id, SymbolID: symbol, Account: acct(seed), Side: side,
		Type: types.Limit, TIF: types.GTC,
		Price: x18.FromInt64(price), Quantity: x18.FromInt64(qty),
	}
}

func TestPlaceOrderRoutesToSymbolBook(t *testing.T) {
	e := New(nil, nil)
	e.AddSymbol("BTC-USD")

	if _, err := e.PlaceOrder(order(1, "BTC-USD", 1, types.Buy, 100, 10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trades, err := e.PlaceOrder(order(2, "BTC-USD", 2, types.Sell, 100, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	stats := e.GetStats()
	if stats.OrdersPlaced != 2 || stats.Trades != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPlaceOrderUnknownSymbolRejected(t *testing.T) {
	e := New(nil, nil)
	_, err := e.PlaceOrder(order(1, "ETH-USD", 1, types.Buy, 100, 10))
	if types.CodeOf(err) != types.CodeMarketNotFound {
		t.Fatalf("expected CodeMarketNotFound, got %v", err)
	}
	if e.GetStats().OrdersRejected != 1 {
		t.Fatalf("expected 1 rejected, got %+v", e.GetStats())
	}
}

func TestRemoveSymbolFailsWithRestingOrders(t *testing.T) {
	e := New(nil, nil)
	e.AddSymbol("BTC-USD")
	e.PlaceOrder(order(1, "BTC-USD", 1, types.Buy, 100, 10))

	if err := e.RemoveSymbol("BTC-USD"); err == nil {
		t.Fatal("expected error removing a symbol with resting orders")
	}
	e.CancelOrder("BTC-USD", 1)
	if err := e.RemoveSymbol("BTC-USD"); err != nil {
		t.Fatalf("unexpected error removing empty symbol: %v", err)
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	e := New(nil, nil)
	e.AddSymbol("BTC-USD")
	_, err := e.CancelOrder("BTC-USD", 999)
	if types.CodeOf(err) != types.CodeOrderNotFound {
		t.Fatalf("expected CodeOrderNotFound, got %v", err)
	}
}

func TestProcessBatchGroupsBySymbolAndPreservesOrder(t *testing.T) {
	e := New(nil, nil)
	e.AddSymbol("BTC-USD")
	e.AddSymbol("ETH-USD")

	ops := []BatchOp{
		{Kind: OpPlace, Order: order(1, "BTC-USD", 1, types.Buy, 100, 10)},
		{Kind: OpPlace, Order: order(2, "ETH-USD", 2, types.Buy, 50, 10)},
		{Kind: OpPlace, Order: order(3, "BTC-USD", 3, types.Sell, 100, 10)},
		{Kind: OpCancel, SymbolID: "ETH-USD", OrderID: 2},
	}
	res := e.ProcessBatch(ops)
	if len(res.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(res.Results))
	}
	if res.Results[2].Err != nil || len(res.Results[2].Trades) != 1 {
		t.Fatalf("expected BTC cross to trade, got %+v", res.Results[2])
	}
	if res.Results[3].Err != nil {
		t.Fatalf("expected ETH cancel to succeed, got %v", res.Results[3].Err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected batch-level trades to have 1 entry, got %d", len(res.Trades))
	}
}

func TestProcessBatchOneFailureDoesNotRollbackOthers(t *testing.T) {
	e := New(nil, nil)
	e.AddSymbol("BTC-USD")

	ops := []BatchOp{
		{Kind: OpCancel, SymbolID: "BTC-USD", OrderID: 999}, // fails: not found
		{Kind: OpPlace, Order: order(1, "BTC-USD", 1, types.Buy, 100, 10)},
	}
	res := e.ProcessBatch(ops)
	if res.Results[0].Err == nil {
		t.Fatal("expected first op to fail")
	}
	if res.Results[1].Err != nil {
		t.Fatalf("second op should have succeeded despite first failing: %v", res.Results[1].Err)
	}
	if _, err := e.GetOrder("BTC-USD", 1); err != nil {
		t.Fatalf("order 1 should be resting: %v", err)
	}
}

func TestAsyncModePreservesPerSymbolOrdering(t *testing.T) {
	e := New(nil, nil)
	e.AddSymbol("BTC-USD")
	e.EnableAsync(4)
	defer e.StopAsync()

	done1 := e.SubmitAsync(BatchOp{Kind: OpPlace, Order: order(1, "BTC-USD", 1, types.Buy, 100, 10)})
	r1 := <-done1
	if r1.Err != nil {
		t.Fatalf("unexpected error: %v", r1.Err)
	}

	done2 := e.SubmitAsync(BatchOp{Kind: OpPlace, Order: order(2, "BTC-USD", 2, types.Sell, 100, 10)})
	r2 := <-done2
	if r2.Err != nil || len(r2.Trades) != 1 {
		t.Fatalf("expected a trade once both orders submitted, got %+v", r2)
	}
}

func TestBestBidAskAndDepth(t *testing.T) {
	e := New(nil, nil)
	e.AddSymbol("BTC-USD")
	e.PlaceOrder(order(1, "BTC-USD", 1, types.Buy, 99, 10))
	e.PlaceOrder(order(2, "BTC-USD", 2, types.Buy, 100, 5))
	e.PlaceOrder(order(3, "BTC-USD", 3, types.Sell, 105, 5))

	bid, err := e.BestBid("BTC-USD")
	if err != nil || bid.Cmp(x18.FromInt64(100)) != 0 {
		t.Fatalf("best bid = %v, err=%v, want 100", bid, err)
	}
	ask, err := e.BestAsk("BTC-USD")
	if err != nil || ask.Cmp(x18.FromInt64(105)) != 0 {
		t.Fatalf("best ask = %v, err=%v, want 105", ask, err)
	}
	bids, asks, err := e.GetDepth("BTC-USD", 5)
	if err != nil || len(bids) != 2 || len(asks) != 1 {
		t.Fatalf("unexpected depth: bids=%v asks=%v err=%v", bids, asks, err)
	}
}
