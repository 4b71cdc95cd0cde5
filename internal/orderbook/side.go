package orderbook

import (
	"github.com/anydex/anydex/internal/market"
	"github.com/tidwall/btree"
)

// priceScale is the number of decimal places retained when a Price is
// reduced to an integer btree key.
const priceScale = 8

// Side is one half of a Book (all asks, or all bids): price levels ordered
// for fast best-price extraction plus successor/predecessor walks, backed
// by an ordered btree index instead of a linear scan.
type Side struct {
	isAsk  bool
	levels *btree.Map[int64, *PriceLevel]
	byID   map[market.OrderID]int64 // orderID -> price key, for O(1) cancel
}

// NewSide creates an empty Side. isAsk determines the "best price" direction:
// asks' best price is the lowest, bids' best price is the highest.
func NewSide(isAsk bool) *Side {
	return &Side{
		isAsk:  isAsk,
		levels: btree.NewMap[int64, *PriceLevel](32),
		byID:   make(map[market.OrderID]int64),
	}
}

func (s *Side) keyFor(p market.Price) int64 {
	return p.ScaledKey(priceScale)
}

// Insert adds a tick entry to the side, creating its price level if needed.
func (s *Side) Insert(e *TickEntry) error {
	price, err := e.Tick.Price()
	if err != nil {
		return err
	}
	key := s.keyFor(price)
	level, ok := s.levels.Get(key)
	if !ok {
		level = NewPriceLevel(price)
		s.levels.Set(key, level)
	}
	level.Append(e)
	s.byID[e.Tick.OrderID] = key
	return nil
}

// Remove deletes the entry for orderID, pruning its price level if it
// becomes empty. Reports whether anything was removed.
func (s *Side) Remove(orderID market.OrderID) bool {
	key, ok := s.byID[orderID]
	if !ok {
		return false
	}
	level, ok := s.levels.Get(key)
	if !ok {
		delete(s.byID, orderID)
		return false
	}
	removed := level.Remove(orderID)
	if level.Empty() {
		s.levels.Delete(key)
	}
	delete(s.byID, orderID)
	return removed
}

// Find returns the entry for orderID, or nil.
func (s *Side) Find(orderID market.OrderID) *TickEntry {
	key, ok := s.byID[orderID]
	if !ok {
		return nil
	}
	level, ok := s.levels.Get(key)
	if !ok {
		return nil
	}
	return level.Find(orderID)
}

// Exists reports whether orderID currently rests on this side.
func (s *Side) Exists(orderID market.OrderID) bool {
	_, ok := s.byID[orderID]
	return ok
}

// Best returns the price level with the most favorable price for this side
// (lowest for asks, highest for bids), or nil if the side is empty.
func (s *Side) Best() *PriceLevel {
	var best *PriceLevel
	if s.isAsk {
		s.levels.Ascend(0, func(_ int64, v *PriceLevel) bool {
			best = v
			return false
		})
	} else {
		s.Walk(func(v *PriceLevel) bool {
			best = v
			return false
		})
	}
	return best
}

// Walk visits price levels in order of price favorability (best price
// first) until fn returns false.
func (s *Side) Walk(fn func(level *PriceLevel) bool) {
	if s.isAsk {
		s.levels.Scan(func(_ int64, v *PriceLevel) bool { return fn(v) })
		return
	}
	// Descending: the generic Map's Scan always walks ascending, so reverse
	// manually for the bid side.
	keys := make([]int64, 0, s.levels.Len())
	s.levels.Scan(func(k int64, _ *PriceLevel) bool {
		keys = append(keys, k)
		return true
	})
	for i := len(keys) - 1; i >= 0; i-- {
		level, ok := s.levels.Get(keys[i])
		if !ok {
			continue
		}
		if !fn(level) {
			return
		}
	}
}

// Len returns the number of distinct price levels.
func (s *Side) Len() int {
	return s.levels.Len()
}

// OrderIDs returns every order id currently resting on this side.
func (s *Side) OrderIDs() []market.OrderID {
	ids := make([]market.OrderID, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	return ids
}
