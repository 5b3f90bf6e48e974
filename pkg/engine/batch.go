package engine

import "github.com/luxdex/core/pkg/types"

// OpKind discriminates the operation carried by a BatchOp.
type OpKind int8

const (
	OpPlace OpKind = iota
	OpCancel
	OpModify
)

// BatchOp is one operation in a ProcessBatch call. For OpModify, Order
// carries the desired new Price/Quantity; the rest of its fields are
// ignored in favour of the resting order's own state.
type BatchOp struct {
	Kind     OpKind
	Order    *types.Order
	SymbolID string
	OrderID  uint64
}

// OpResult is the per-operation outcome of a batch entry.
type OpResult struct {
	Kind   OpKind
	Order  *types.Order
	Trades []types.Trade
	Err    error
}

// BatchResult aggregates a ProcessBatch call: per-operation outcomes in
// submission order, plus the union of all trades across every symbol.
type BatchResult struct {
	Results []OpResult
	Trades  []types.Trade
}

// ProcessBatch groups ops by symbol_id to improve locality, then applies
// each symbol's group in submission order (§4.3 "Batch processing").
// Atomicity is per-operation, not batch-wide: one entry's failure does not
// roll back prior entries, matching the spec's explicit contract.
func (e *Engine) ProcessBatch(ops []BatchOp) BatchResult {
	groups := make(map[string][]int)
	order := make([]string, 0)
	for i, op := range ops {
		sym := op.SymbolID
		if op.Kind == OpPlace && op.Order != nil {
			sym = op.Order.SymbolID
		}
		if _, seen := groups[sym]; !seen {
			order = append(order, sym)
		}
		groups[sym] = append(groups[sym], i)
	}

	res := BatchResult{Results: make([]OpResult, len(ops))}
	for _, sym := range order {
		for _, i := range groups[sym] {
			res.Results[i] = e.applyOne(ops[i])
			res.Trades = append(res.Trades, res.Results[i].Trades...)
		}
	}
	return res
}

func (e *Engine) applyOne(op BatchOp) OpResult {
	switch op.Kind {
	case OpPlace:
		trades, err := e.PlaceOrder(op.Order)
		return OpResult{Kind: OpPlace, Order: op.Order, Trades: trades, Err: err}
	case OpCancel:
		o, err := e.CancelOrder(op.SymbolID, op.OrderID)
		return OpResult{Kind: OpCancel, Order: o, Err: err}
	case OpModify:
		replacement, trades, err := e.ModifyOrder(op.SymbolID, op.OrderID, op.Order.Price, op.Order.Quantity)
		return OpResult{Kind: OpModify, Order: replacement, Trades: trades, Err: err}
	default:
		return OpResult{Kind: op.Kind, Err: types.Err(types.CodeInvalidTickRange, "unknown batch op kind %d", op.Kind)}
	}
}
