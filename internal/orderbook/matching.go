package orderbook

import "github.com/anydex/anydex/internal/market"

// IncomingOrder is the candidate looking for counterparties: either a
// freshly placed order or a re-match attempt after a previous proposal was
// declined.
type IncomingOrder struct {
	OrderID           market.OrderID
	IsAsk             bool
	Pair              market.AssetPair // full pair at the order's limit price
	AvailableQuantity int64            // how much is still unreserved
}

// CandidateMatch is one resting entry the engine proposes to trade against,
// and the quantity (in units of the incoming order's Pair.First) to match.
type CandidateMatch struct {
	Entry    *TickEntry
	Quantity int64
}

// MatchingEngine implements price-time priority matching. It never mutates
// the book: Match is a pure read over the opposite side, returning
// candidates the caller (the MatchCache) may then attempt to reserve and
// negotiate. Mutation only happens once a negotiation actually succeeds,
// via Book.UpdateTick/CompleteOrder.
type MatchingEngine struct{}

// NewMatchingEngine constructs a MatchingEngine. It carries no state.
func NewMatchingEngine() *MatchingEngine {
	return &MatchingEngine{}
}

// Match walks the side opposite to incoming.IsAsk in best-price-then-time
// order, skipping blocked entries and the incoming order's own id (callers
// that want to match their own orders set firstMatchesOwnOrders and handle
// that case before calling Match), accumulating candidates until
// incoming.AvailableQuantity is covered or the book runs out of acceptable
// liquidity.
func (e *MatchingEngine) Match(book *Book, incoming IncomingOrder) ([]CandidateMatch, error) {
	opposite := book.side(!incoming.IsAsk)
	incomingPrice, err := incoming.Pair.Price()
	if err != nil {
		return nil, err
	}

	var (
		candidates []CandidateMatch
		remaining  = incoming.AvailableQuantity
	)

	opposite.Walk(func(level *PriceLevel) bool {
		for _, entry := range level.Entries() {
			if remaining <= 0 {
				return false
			}
			if entry.IsBlocked() {
				continue
			}
			if entry.Tick.OrderID == incoming.OrderID {
				continue
			}
			restingPrice, err := entry.Tick.Price()
			if err != nil {
				continue
			}
			if !priceCrosses(incoming.IsAsk, incomingPrice, restingPrice) {
				// Prices no longer cross here; levels are visited
				// best-first, so no later level can cross either and the
				// walk stops.
				return false
			}
			qty := entry.Tick.Quantity()
			if qty > remaining {
				qty = remaining
			}
			candidates = append(candidates, CandidateMatch{Entry: entry, Quantity: qty})
			remaining -= qty
		}
		return remaining > 0
	})

	return candidates, nil
}

// priceCrosses reports whether a resting order at restingPrice is willing
// to trade against an incoming order of the given side at incomingPrice:
// an incoming ask crosses a resting bid if the bid's price is at least the
// ask's price; an incoming bid crosses a resting ask if the ask's price is
// at most the bid's price.
func priceCrosses(incomingIsAsk bool, incomingPrice, restingPrice market.Price) bool {
	cmp, err := restingPrice.Compare(incomingPrice)
	if err != nil {
		return false
	}
	if incomingIsAsk {
		return cmp >= 0 // resting bid price >= incoming ask price
	}
	return cmp <= 0 // resting ask price <= incoming bid price
}
