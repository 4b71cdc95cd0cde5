package wire

import (
	"testing"
	"time"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation"
)

func TestOrderWireRoundTrip(t *testing.T) {
	pair, err := market.NewAssetPair(
		market.AssetAmount{Amount: 10, AssetID: "BTC"},
		market.AssetAmount{Amount: 100, AssetID: "USD"},
	)
	if err != nil {
		t.Fatalf("NewAssetPair: %v", err)
	}
	id := market.OrderID{OrderNumber: 7}
	ow := NewOrderWire(id, true, pair, time.Now(), time.Minute)

	encoded, err := Encode(TagOrder, ow)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := DecodeEnvelope(encoded)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Tag != TagOrder {
		t.Fatalf("Tag = %d, want %d", env.Tag, TagOrder)
	}
	var got OrderWire
	if err := DecodePayload(env, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	gotID, err := got.OrderIDValue()
	if err != nil {
		t.Fatalf("OrderIDValue: %v", err)
	}
	if gotID != id {
		t.Fatalf("order id mismatch: got %v, want %v", gotID, id)
	}
	gotPair, err := got.Pair()
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if gotPair != pair {
		t.Fatalf("pair mismatch: got %+v, want %+v", gotPair, pair)
	}
}

func TestProposeTradeWireRoundTrip(t *testing.T) {
	pair, _ := market.NewAssetPair(
		market.AssetAmount{Amount: 5, AssetID: "BTC"},
		market.AssetAmount{Amount: 50, AssetID: "USD"},
	)
	msg := negotiation.ProposeTrade{
		ProposalID: negotiation.NewProposalID(),
		Proposer:   market.OrderID{OrderNumber: 1},
		Recipient:  market.OrderID{OrderNumber: 2},
		Pair:       pair,
		Timestamp:  time.Now(),
	}
	w := NewProposeTradeWire(msg)
	back, err := w.ToMessage()
	if err != nil {
		t.Fatalf("ToMessage: %v", err)
	}
	if back.Proposer != msg.Proposer || back.Recipient != msg.Recipient {
		t.Fatalf("round trip mismatch: got %+v, want %+v", back, msg)
	}
}
