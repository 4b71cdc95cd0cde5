// Package orderbook implements the matchmaker-side replica of the network's
// orders (Ticks), organized into price levels and matched by price-time
// priority.
package orderbook

import (
	"time"

	"github.com/anydex/anydex/internal/market"
)

// Tick is a matchmaker's replica of a trader's order: enough information to
// match it against the rest of the book, but not the full local accounting
// an Order keeps (no concept of "reserved for this specific negotiation" —
// that lives in TickEntry.blocked).
type Tick struct {
	OrderID   market.OrderID
	IsAsk     bool
	Pair      market.AssetPair // remaining (unreserved) quantity, not original total
	Timestamp time.Time
	Timeout   time.Duration
}

// IsValid reports whether the tick is still within its validity window at
// the given time and offers a non-zero quantity.
func (t *Tick) IsValid(now time.Time) bool {
	if t.Pair.First.Amount <= 0 {
		return false
	}
	return !now.After(t.Timestamp.Add(t.Timeout))
}

// Price returns the unit price this tick is willing to trade at.
func (t *Tick) Price() (market.Price, error) {
	return t.Pair.Price()
}

// Quantity returns the tick's remaining quantity, in units of Pair.First.
func (t *Tick) Quantity() int64 {
	return t.Pair.First.Amount
}

// TickEntry is the order-book entry wrapping a Tick. blocked marks that the
// tick is currently reserved by an in-flight match proposal and must not be
// offered as a candidate to a second, concurrent match — this is the
// tie-break mechanism that keeps two simultaneous matching passes from both
// claiming the same liquidity before either negotiation resolves.
type TickEntry struct {
	Tick      *Tick
	blocked   bool
	blockedAt time.Time
}

// NewTickEntry wraps a tick for insertion into a PriceLevel.
func NewTickEntry(t *Tick) *TickEntry {
	return &TickEntry{Tick: t}
}

// Block marks the entry as reserved by an outstanding match proposal.
func (e *TickEntry) Block(now time.Time) {
	e.blocked = true
	e.blockedAt = now
}

// Unblock releases a reservation, making the entry eligible for matching
// again (the proposal it was blocked for was declined, timed out, or failed).
func (e *TickEntry) Unblock() {
	e.blocked = false
}

// IsBlocked reports whether the entry is currently reserved.
func (e *TickEntry) IsBlocked() bool {
	return e.blocked
}

// BlockedSince returns when the entry was last blocked; only meaningful
// when IsBlocked() is true.
func (e *TickEntry) BlockedSince() time.Time {
	return e.blockedAt
}
