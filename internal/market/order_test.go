package market

import (
	"testing"
	"time"
)

func mustPair(t *testing.T, first, second AssetAmount) AssetPair {
	t.Helper()
	p, err := NewAssetPair(first, second)
	if err != nil {
		t.Fatalf("NewAssetPair: %v", err)
	}
	return p
}

func TestOrderReserveAndTrade(t *testing.T) {
	pair := mustPair(t, AssetAmount{Amount: 100, AssetID: "BTC"}, AssetAmount{Amount: 1000, AssetID: "USD"})
	id := OrderID{OrderNumber: 1}
	counterparty := OrderID{OrderNumber: 2}
	o := NewOrder(id, true, pair, time.Minute, time.Now())
	o.Verify()

	if o.Available() != 100 {
		t.Fatalf("Available() = %d, want 100", o.Available())
	}

	if err := o.Reserve(counterparty, 40); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if o.Available() != 60 {
		t.Fatalf("Available() after reserve = %d, want 60", o.Available())
	}

	if err := o.RecordTrade(counterparty, 40, 400); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	if o.Traded() != 40 || o.Received() != 400 {
		t.Fatalf("traded/received = %d/%d, want 40/400", o.Traded(), o.Received())
	}
	if o.Status() != StatusOpen {
		t.Fatalf("Status() = %v, want open", o.Status())
	}
}

func TestOrderReserveExceedsAvailable(t *testing.T) {
	pair := mustPair(t, AssetAmount{Amount: 10, AssetID: "BTC"}, AssetAmount{Amount: 100, AssetID: "USD"})
	o := NewOrder(OrderID{OrderNumber: 1}, false, pair, time.Minute, time.Now())
	if err := o.Reserve(OrderID{OrderNumber: 2}, 20); err == nil {
		t.Fatal("expected error reserving more than available")
	}
}

func TestOrderCompletesWhenFullyTraded(t *testing.T) {
	pair := mustPair(t, AssetAmount{Amount: 5, AssetID: "BTC"}, AssetAmount{Amount: 50, AssetID: "USD"})
	o := NewOrder(OrderID{OrderNumber: 1}, true, pair, time.Minute, time.Now())
	counterparty := OrderID{OrderNumber: 2}
	if err := o.Reserve(counterparty, 5); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := o.RecordTrade(counterparty, 5, 50); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	if o.Status() != StatusCompleted {
		t.Fatalf("Status() = %v, want completed", o.Status())
	}
	if err := o.Reserve(OrderID{OrderNumber: 3}, 1); err == nil {
		t.Fatal("expected error reserving against a completed order")
	}
}

func TestOrderHasAcceptablePrice(t *testing.T) {
	// Ask offering 10 BTC for at least 100 USD (price 10 USD/BTC).
	ask := NewOrder(OrderID{OrderNumber: 1}, true,
		mustPair(t, AssetAmount{Amount: 10, AssetID: "BTC"}, AssetAmount{Amount: 100, AssetID: "USD"}),
		time.Minute, time.Now())

	better := mustPair(t, AssetAmount{Amount: 10, AssetID: "BTC"}, AssetAmount{Amount: 120, AssetID: "USD"})
	if !ask.HasAcceptablePrice(better) {
		t.Fatal("ask should accept a better (higher) price")
	}

	worse := mustPair(t, AssetAmount{Amount: 10, AssetID: "BTC"}, AssetAmount{Amount: 50, AssetID: "USD"})
	if ask.HasAcceptablePrice(worse) {
		t.Fatal("ask should reject a worse (lower) price")
	}

	// Bid offering at most 100 USD for 10 BTC.
	bid := NewOrder(OrderID{OrderNumber: 2}, false,
		mustPair(t, AssetAmount{Amount: 10, AssetID: "BTC"}, AssetAmount{Amount: 100, AssetID: "USD"}),
		time.Minute, time.Now())
	if !bid.HasAcceptablePrice(worse) {
		t.Fatal("bid should accept a better (lower) price")
	}
	if bid.HasAcceptablePrice(better) {
		t.Fatal("bid should reject a worse (higher) price")
	}
}

func TestOrderIDBytesRoundTrip(t *testing.T) {
	id := OrderID{OrderNumber: 42}
	id.TraderID[0] = 0xAB
	b := id.Bytes()
	got, err := OrderIDFromBytes(b)
	if err != nil {
		t.Fatalf("OrderIDFromBytes: %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, id)
	}
}
