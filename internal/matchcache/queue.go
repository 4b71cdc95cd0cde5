package matchcache

import (
	"container/heap"

	"github.com/anydex/anydex/internal/market"
)

// matchItem is one candidate counterparty waiting to be proposed a trade.
type matchItem struct {
	counterparty market.OrderID
	quantity     int64
	price        market.Price
	retries      int
	index        int // maintained by container/heap
}

// matchHeap orders pending matches by fewest retries first (so a match
// that has never failed is always tried before one that has been declined
// and re-queued), and within equal retries by price advantage: for an ask
// looking for bids, the highest bid price goes first; for a bid looking
// for asks, the lowest ask price goes first. This mirrors the retries-then-
// price ordering of the original match queue.
type matchHeap struct {
	items  []*matchItem
	isAsk  bool // true if the local order owning this queue is an ask
}

func newMatchHeap(isAsk bool) *matchHeap {
	return &matchHeap{isAsk: isAsk}
}

func (h *matchHeap) Len() int { return len(h.items) }

func (h *matchHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.retries != b.retries {
		return a.retries < b.retries
	}
	cmp, err := a.price.Compare(b.price)
	if err != nil || cmp == 0 {
		return false
	}
	if h.isAsk {
		// Looking for bids: higher bid price is better, goes first.
		return cmp > 0
	}
	// Looking for asks: lower ask price is better, goes first.
	return cmp < 0
}

func (h *matchHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *matchHeap) Push(x any) {
	it := x.(*matchItem)
	it.index = len(h.items)
	h.items = append(h.items, it)
}

func (h *matchHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	h.items = old[:n-1]
	return it
}

var _ heap.Interface = (*matchHeap)(nil)

// find returns the queued item for counterparty, or nil.
func (h *matchHeap) find(counterparty market.OrderID) *matchItem {
	for _, it := range h.items {
		if it.counterparty == counterparty {
			return it
		}
	}
	return nil
}

// removeItem removes it from the heap, maintaining heap invariants.
func (h *matchHeap) removeItem(it *matchItem) {
	if it.index < 0 || it.index >= len(h.items) {
		return
	}
	heap.Remove(h, it.index)
}

// remove drops the queued item for counterparty, if any.
func (h *matchHeap) remove(counterparty market.OrderID) {
	if it := h.find(counterparty); it != nil {
		h.removeItem(it)
	}
}
