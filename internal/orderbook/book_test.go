package orderbook

import (
	"testing"
	"time"

	"github.com/anydex/anydex/internal/market"
)

func tick(t *testing.T, trader byte, number uint32, isAsk bool, first, second int64, ts time.Time) *Tick {
	t.Helper()
	pair, err := market.NewAssetPair(
		market.AssetAmount{Amount: first, AssetID: "BTC"},
		market.AssetAmount{Amount: second, AssetID: "USD"},
	)
	if err != nil {
		t.Fatalf("NewAssetPair: %v", err)
	}
	id := market.OrderID{OrderNumber: market.OrderNumber(number)}
	id.TraderID[0] = trader
	return &Tick{OrderID: id, IsAsk: isAsk, Pair: pair, Timestamp: ts, Timeout: time.Hour}
}

func TestSideBestPriceOrdering(t *testing.T) {
	now := time.Now()
	asks := NewSide(true)
	cheap := tick(t, 1, 1, true, 10, 90, now)  // price 9
	mid := tick(t, 2, 2, true, 10, 95, now)    // price 9.5
	expensive := tick(t, 3, 3, true, 10, 100, now) // price 10

	for _, tk := range []*Tick{expensive, cheap, mid} {
		if err := asks.Insert(NewTickEntry(tk)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	best := asks.Best()
	if best == nil || best.Entries()[0].Tick.OrderID != cheap.OrderID {
		t.Fatalf("expected cheapest ask to be best, got %+v", best)
	}
}

func TestBookApplyTickIgnoresTerminalOrders(t *testing.T) {
	now := time.Now()
	book := NewBook()
	tk := tick(t, 1, 1, true, 10, 100, now)
	book.CancelOrder(tk.OrderID, true)

	if err := book.ApplyTick(tk); err != nil {
		t.Fatalf("ApplyTick: %v", err)
	}
	if book.TickExists(tk.OrderID) {
		t.Fatal("cancelled order should not be resurrected by a stale ApplyTick")
	}
}

func TestBookUpdateTickPartialThenComplete(t *testing.T) {
	now := time.Now()
	book := NewBook()
	tk := tick(t, 1, 1, true, 10, 100, now)
	if err := book.ApplyTick(tk); err != nil {
		t.Fatalf("ApplyTick: %v", err)
	}

	if err := book.UpdateTick(tk.OrderID, true, 4); err != nil {
		t.Fatalf("UpdateTick: %v", err)
	}
	entry := book.Asks.Find(tk.OrderID)
	if entry == nil || entry.Tick.Quantity() != 6 {
		t.Fatalf("expected remaining quantity 6, got %+v", entry)
	}

	if err := book.UpdateTick(tk.OrderID, true, 6); err != nil {
		t.Fatalf("UpdateTick: %v", err)
	}
	if book.TickExists(tk.OrderID) {
		t.Fatal("fully traded tick should be removed from the book")
	}
	if !book.IsTerminal(tk.OrderID) {
		t.Fatal("fully traded tick should be marked completed")
	}

	// Idempotent: a second UpdateTick for the same (now terminal) order is a no-op.
	if err := book.UpdateTick(tk.OrderID, true, 1); err != nil {
		t.Fatalf("UpdateTick on terminal order: %v", err)
	}
}

func TestMatchingEngineCrossingPriceTime(t *testing.T) {
	now := time.Now()
	book := NewBook()

	first := tick(t, 1, 1, false, 10, 100, now)             // bid, price 10, first in
	second := tick(t, 2, 2, false, 10, 100, now.Add(time.Second)) // bid, price 10, second in
	better := tick(t, 3, 3, false, 5, 55, now)                // bid, price 11, best price

	for _, tk := range []*Tick{first, second, better} {
		if err := book.ApplyTick(tk); err != nil {
			t.Fatalf("ApplyTick: %v", err)
		}
	}

	incomingPair, err := market.NewAssetPair(
		market.AssetAmount{Amount: 12, AssetID: "BTC"},
		market.AssetAmount{Amount: 108, AssetID: "USD"}, // ask price 9: crosses everything
	)
	if err != nil {
		t.Fatalf("NewAssetPair: %v", err)
	}

	engine := NewMatchingEngine()
	candidates, err := engine.Match(book, IncomingOrder{
		OrderID:           market.OrderID{OrderNumber: 99},
		IsAsk:             true,
		Pair:              incomingPair,
		AvailableQuantity: 12,
	})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates (best price first, then FIFO), got %d: %+v", len(candidates), candidates)
	}
	if candidates[0].Entry.Tick.OrderID != better.OrderID {
		t.Fatalf("expected best-priced bid first, got %v", candidates[0].Entry.Tick.OrderID)
	}
	if candidates[0].Quantity != 5 {
		t.Fatalf("expected full 5 quantity from best bid, got %d", candidates[0].Quantity)
	}
	if candidates[1].Entry.Tick.OrderID != first.OrderID {
		t.Fatalf("expected time-priority tie broken in favor of first arrival, got %v", candidates[1].Entry.Tick.OrderID)
	}
	if candidates[1].Quantity != 7 {
		t.Fatalf("expected remaining 7 quantity from first bid, got %d", candidates[1].Quantity)
	}
}

func TestMatchingEngineSkipsBlockedEntries(t *testing.T) {
	now := time.Now()
	book := NewBook()
	tk := tick(t, 1, 1, false, 10, 100, now)
	if err := book.ApplyTick(tk); err != nil {
		t.Fatalf("ApplyTick: %v", err)
	}
	book.Bids.Find(tk.OrderID).Block(now)

	incomingPair, _ := market.NewAssetPair(
		market.AssetAmount{Amount: 10, AssetID: "BTC"},
		market.AssetAmount{Amount: 90, AssetID: "USD"},
	)
	engine := NewMatchingEngine()
	candidates, err := engine.Match(book, IncomingOrder{
		OrderID:           market.OrderID{OrderNumber: 2},
		IsAsk:             true,
		Pair:              incomingPair,
		AvailableQuantity: 10,
	})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected blocked entry to be skipped, got %+v", candidates)
	}
}
