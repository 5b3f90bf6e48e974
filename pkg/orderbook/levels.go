package orderbook

import (
	"container/heap"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// PriceLevel is a read-only snapshot of one price level: the price and the
// total resting quantity at it (§3: "total_quantity = Σ order.remaining()").
type PriceLevel struct {
	Price x18.Num
	Qty   x18.Num
}

// level is the mutable FIFO queue of orders resting at one price.
type level struct {
	price    x18.Num
	orders   []*types.Order // FIFO: orders[0] is the front of the queue
	totalQty x18.Num
}

func newLevel(price x18.Num) *level {
	return &level{price: price, totalQty: x18.Zero()}
}

func (l *level) push(o *types.Order) {
	l.orders = append(l.orders, o)
	l.totalQty = l.totalQty.Add(o.Remaining())
}

// cancelAt removes the order at index i without it having been filled,
// preserving FIFO order of the rest.
func (l *level) cancelAt(i int) *types.Order {
	o := l.orders[i]
	l.totalQty = l.totalQty.Sub(o.Remaining())
	l.orders = append(l.orders[:i], l.orders[i+1:]...)
	return o
}

// fillFront applies a fill of qty to the order at the front of the queue,
// popping it if the fill exhausts it. Callers must check len(l.orders) > 0.
func (l *level) fillFront(qty x18.Num) *types.Order {
	o := l.orders[0]
	o.Filled = o.Filled.Add(qty)
	l.totalQty = l.totalQty.Sub(qty)
	if o.Remaining().IsZero() {
		l.orders = l.orders[1:]
	}
	return o
}

func (l *level) findIndex(orderID uint64) int {
	for i, o := range l.orders {
		if o.ID == orderID {
			return i
		}
	}
	return -1
}

func (l *level) empty() bool { return len(l.orders) == 0 }

// priceKey returns a stable map key for an x18.Num price.
func priceKey(p x18.Num) string { return p.Raw().String() }

// bidPriceHeap is a max-heap over prices: best bid (highest price) on top.
type bidPriceHeap []x18.Num

func (h bidPriceHeap) Len() int            { return len(h) }
func (h bidPriceHeap) Less(i, j int) bool  { return h[i].Gt(h[j]) }
func (h bidPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *bidPriceHeap) Push(x interface{}) { *h = append(*h, x.(x18.Num)) }
func (h *bidPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// askPriceHeap is a min-heap over prices: best ask (lowest price) on top.
type askPriceHeap []x18.Num

func (h askPriceHeap) Len() int            { return len(h) }
func (h askPriceHeap) Less(i, j int) bool  { return h[i].Lt(h[j]) }
func (h askPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *askPriceHeap) Push(x interface{}) { *h = append(*h, x.(x18.Num)) }
func (h *askPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// bookSide holds one side (bids or asks) of the book: a price -> level map
// plus a heap for O(1) best-price reads, matching §9's "Price-level
// ordering" design note.
type bookSide struct {
	isBid  bool
	levels map[string]*level
	bidH   bidPriceHeap
	askH   askPriceHeap
}

func newBookSide(isBid bool) *bookSide {
	s := &bookSide{isBid: isBid, levels: make(map[string]*level)}
	if isBid {
		heap.Init(&s.bidH)
	} else {
		heap.Init(&s.askH)
	}
	return s
}

// best returns the best price on this side, or false if the side is empty.
// Stale heap entries (levels removed since being pushed) are popped lazily.
func (s *bookSide) best() (x18.Num, bool) {
	if s.isBid {
		for s.bidH.Len() > 0 {
			p := s.bidH[0]
			if lv, ok := s.levels[priceKey(p)]; ok && !lv.empty() {
				return p, true
			}
			heap.Pop(&s.bidH)
		}
		return x18.Zero(), false
	}
	for s.askH.Len() > 0 {
		p := s.askH[0]
		if lv, ok := s.levels[priceKey(p)]; ok && !lv.empty() {
			return p, true
		}
		heap.Pop(&s.askH)
	}
	return x18.Zero(), false
}

// getOrCreateLevel returns the level at price, creating and heap-pushing it
// if this is a new price point.
func (s *bookSide) getOrCreateLevel(price x18.Num) *level {
	key := priceKey(price)
	lv, ok := s.levels[key]
	if ok {
		return lv
	}
	lv = newLevel(price)
	s.levels[key] = lv
	if s.isBid {
		heap.Push(&s.bidH, price)
	} else {
		heap.Push(&s.askH, price)
	}
	return lv
}

// collapseIfEmpty removes a now-empty level from the map (the heap entry is
// left as a stale tombstone and skipped lazily by best()).
func (s *bookSide) collapseIfEmpty(price x18.Num) {
	key := priceKey(price)
	if lv, ok := s.levels[key]; ok && lv.empty() {
		delete(s.levels, key)
	}
}

// orderedLevels returns all non-empty levels best-price-first.
func (s *bookSide) orderedLevels() []*level {
	out := make([]*level, 0, len(s.levels))
	for _, lv := range s.levels {
		if !lv.empty() {
			out = append(out, lv)
		}
	}
	if s.isBid {
		sortLevels(out, func(a, b x18.Num) bool { return a.Gt(b) })
	} else {
		sortLevels(out, func(a, b x18.Num) bool { return a.Lt(b) })
	}
	return out
}

func sortLevels(levels []*level, less func(a, b x18.Num) bool) {
	// Insertion sort: level counts per symbol are small (tens to low
	// hundreds of distinct price points), so O(n^2) avoids pulling in
	// sort.Slice's reflection overhead for a hot read path.
	for i := 1; i < len(levels); i++ {
		j := i
		for j > 0 && less(levels[j].price, levels[j-1].price) {
			levels[j], levels[j-1] = levels[j-1], levels[j]
			j--
		}
	}
}

func (s *bookSide) orderCount() int {
	n := 0
	for _, lv := range s.levels {
		n += len(lv.orders)
	}
	return n
}
