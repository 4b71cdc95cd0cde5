package orderbook

import "github.com/anydex/anydex/internal/market"

// PriceLevel holds every TickEntry resting at a single price, in strict
// FIFO (time priority) order.
type PriceLevel struct {
	Price   market.Price
	entries []*TickEntry
	depth   int64 // sum of entries' Tick.Quantity()
}

// NewPriceLevel creates an empty price level at the given price.
func NewPriceLevel(price market.Price) *PriceLevel {
	return &PriceLevel{Price: price}
}

// Append adds an entry at the back of the FIFO queue (newest arrival).
func (pl *PriceLevel) Append(e *TickEntry) {
	pl.entries = append(pl.entries, e)
	pl.depth += e.Tick.Quantity()
}

// Remove deletes the entry for orderID from the level, if present.
// Reports whether an entry was removed.
func (pl *PriceLevel) Remove(orderID market.OrderID) bool {
	for i, e := range pl.entries {
		if e.Tick.OrderID == orderID {
			pl.depth -= e.Tick.Quantity()
			pl.entries = append(pl.entries[:i], pl.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Find returns the entry for orderID, or nil.
func (pl *PriceLevel) Find(orderID market.OrderID) *TickEntry {
	for _, e := range pl.entries {
		if e.Tick.OrderID == orderID {
			return e
		}
	}
	return nil
}

// Entries returns the level's entries in FIFO order. The slice must not be
// mutated by the caller.
func (pl *PriceLevel) Entries() []*TickEntry {
	return pl.entries
}

// Depth returns the level's total resting quantity.
func (pl *PriceLevel) Depth() int64 {
	return pl.depth
}

// Empty reports whether the level has no entries left.
func (pl *PriceLevel) Empty() bool {
	return len(pl.entries) == 0
}

// RecomputeDepth recalculates depth from scratch; used after an entry's
// underlying tick quantity changes in place (a partial fill).
func (pl *PriceLevel) RecomputeDepth() {
	var d int64
	for _, e := range pl.entries {
		d += e.Tick.Quantity()
	}
	pl.depth = d
}
