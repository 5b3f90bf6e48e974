package types

import "github.com/luxdex/core/pkg/x18"

// ClientOID is an optional 16-byte client-supplied order identifier.
type ClientOID [16]byte

// Order is the core order record shared by the book, the engine, and the
// vault's pre-trade checks. See spec §3 for the field-level invariants:
// 0 <= Filled <= Quantity; Status == StatusFilled iff Filled == Quantity;
// Price > 0 for limit orders; stop orders carry a positive StopPrice.
type Order struct {
	ID        uint64
	SymbolID  string
	Account   AccountID
	Side      Side
	Type      OrderType
	TIF       TIF
	Price     x18.Num
	Quantity  x18.Num
	Filled    x18.Num
	StopPrice x18.Num

	// STPGroup is the self-trade-prevention tag; zero disables STP.
	STPGroup uint64

	// ReduceOnly rejects the order if it would grow the account's position
	// past zero rather than only shrinking or flattening it (§4.7).
	ReduceOnly bool

	Status OrderStatus

	ClientOID  ClientOID
	HasOID     bool
	GroupID    uint64
	GroupType  string

	Timestamp  int64 // ns
	ExpireTime int64 // ns; used by GTD, checked by an external scheduler
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() x18.Num {
	return o.Quantity.Sub(o.Filled)
}

// IsBuy reports whether the order is on the buy side.
func (o *Order) IsBuy() bool { return o.Side == Buy }

// IsResting reports whether the order can sit on the book awaiting a match.
func (o *Order) IsResting() bool {
	switch o.Status {
	case StatusNew, StatusPartial:
		return true
	default:
		return false
	}
}

// Clone returns a deep-enough copy for snapshotting (mutable fields are
// scalars/value types, so a shallow struct copy suffices).
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}

// Trade is an immutable, append-only fact emitted by a match.
type Trade struct {
	ID            uint64
	SymbolID      string
	BuyOrderID    uint64
	SellOrderID   uint64
	BuyAccount    AccountID
	SellAccount   AccountID
	Price         x18.Num
	Quantity      x18.Num
	AggressorSide Side
	Timestamp     int64
}
