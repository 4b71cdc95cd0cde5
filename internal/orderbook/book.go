package orderbook

import (
	"time"

	"github.com/anydex/anydex/internal/market"
)

// Book is the full order book for a single asset pair direction: the ask
// side, the bid side, and the terminal-state sets needed to ignore stale
// gossip about orders that have already finished (spec.md §4.1; also see
// DESIGN.md's note on Open Question (b) — stale OrderbookSync ticks).
type Book struct {
	Asks *Side
	Bids *Side

	completedOrders map[market.OrderID]bool
	cancelledOrders map[market.OrderID]bool
}

// NewBook creates an empty order book.
func NewBook() *Book {
	return &Book{
		Asks:            NewSide(true),
		Bids:            NewSide(false),
		completedOrders: make(map[market.OrderID]bool),
		cancelledOrders: make(map[market.OrderID]bool),
	}
}

func (b *Book) side(isAsk bool) *Side {
	if isAsk {
		return b.Asks
	}
	return b.Bids
}

// IsTerminal reports whether orderID has already been recorded as completed
// or cancelled, and should therefore not be (re-)inserted.
func (b *Book) IsTerminal(orderID market.OrderID) bool {
	return b.completedOrders[orderID] || b.cancelledOrders[orderID]
}

// ApplyTick inserts or refreshes a tick in the book. It is a no-op for an
// order id already known to be completed or cancelled, so that a stale
// gossip message arriving after the terminal state is learned locally can
// never resurrect a dead order.
func (b *Book) ApplyTick(t *Tick) error {
	if b.IsTerminal(t.OrderID) {
		return nil
	}
	side := b.side(t.IsAsk)
	if existing := side.Find(t.OrderID); existing != nil {
		side.Remove(t.OrderID)
	}
	if t.Quantity() <= 0 {
		return nil
	}
	return side.Insert(NewTickEntry(t))
}

// RemoveOrder deletes an order's tick from whichever side it rests on,
// without marking it cancelled or completed.
func (b *Book) RemoveOrder(orderID market.OrderID, isAsk bool) bool {
	return b.side(isAsk).Remove(orderID)
}

// UpdateTick applies the effect of a (partial) trade to a resting tick:
// shrinks its remaining quantity by tradedQuantity and, if that exhausts
// it, removes it and marks the order completed. Calls are not deduplicated
// by trade: repeating a call for the same trade shrinks a partially filled
// tick again; once the order is exhausted (removed and recorded as
// completed) further calls have no effect.
func (b *Book) UpdateTick(orderID market.OrderID, isAsk bool, tradedQuantity int64) error {
	if b.IsTerminal(orderID) {
		return nil
	}
	side := b.side(isAsk)
	entry := side.Find(orderID)
	if entry == nil {
		return nil
	}
	remaining := entry.Tick.Pair.First.Amount - tradedQuantity
	if remaining <= 0 {
		side.Remove(orderID)
		b.completedOrders[orderID] = true
		return nil
	}
	scaled, err := entry.Tick.Pair.ProportionalDownscale(remaining)
	if err != nil {
		return err
	}
	entry.Tick.Pair = scaled
	if level, ok := side.levels.Get(side.byID[orderID]); ok {
		level.RecomputeDepth()
	}
	return nil
}

// CancelOrder removes an order from the book (if present) and marks it
// cancelled so that any later stale gossip about it is ignored.
func (b *Book) CancelOrder(orderID market.OrderID, isAsk bool) {
	b.side(isAsk).Remove(orderID)
	b.cancelledOrders[orderID] = true
}

// CompleteOrder removes an order from the book (if present) and marks it
// completed.
func (b *Book) CompleteOrder(orderID market.OrderID, isAsk bool) {
	b.side(isAsk).Remove(orderID)
	b.completedOrders[orderID] = true
}

// TickExists reports whether orderID currently rests in the book (on
// either side).
func (b *Book) TickExists(orderID market.OrderID) bool {
	return b.Asks.Exists(orderID) || b.Bids.Exists(orderID)
}

// GetOrderIDs returns every order id currently resting in the book.
func (b *Book) GetOrderIDs() []market.OrderID {
	ids := b.Asks.OrderIDs()
	ids = append(ids, b.Bids.OrderIDs()...)
	return ids
}

// PruneExpired walks both sides and removes every tick whose validity
// window has elapsed as of now, without marking it cancelled or completed,
// and returns the removed order ids.
func (b *Book) PruneExpired(now time.Time) []market.OrderID {
	var expired []market.OrderID
	for _, side := range []*Side{b.Asks, b.Bids} {
		var stale []market.OrderID
		side.Walk(func(level *PriceLevel) bool {
			for _, e := range level.Entries() {
				if !e.Tick.IsValid(now) {
					stale = append(stale, e.Tick.OrderID)
				}
			}
			return true
		})
		for _, id := range stale {
			side.Remove(id)
			expired = append(expired, id)
		}
	}
	return expired
}
