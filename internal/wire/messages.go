// Package wire defines the gob-encoded envelopes exchanged between peers:
// one wrapper type per message tag, following the same encode/decode
// helper pattern the node's original consensus wire layer used.
package wire

import (
	"fmt"
	"time"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation"
)

// Tag identifies the kind of message carried by an Envelope.
type Tag byte

const (
	TagCancelOrder      Tag = 5
	TagOrder            Tag = 6
	TagMatch            Tag = 7
	TagMatchDecline     Tag = 9
	TagProposeTrade     Tag = 10
	TagDeclineTrade     Tag = 11
	TagCounterTrade     Tag = 12
	TagStartTrade       Tag = 13
	TagOrderbookSyncReq Tag = 19
	TagOrderbookSyncRes Tag = 19
	TagPing             Tag = 20
	TagPong             Tag = 21
	TagCompletedTrade   Tag = 23
)

// OrderWire announces a new or refreshed tick to the gossip topic.
type OrderWire struct {
	OrderID   []byte // market.OrderID.Bytes()
	IsAsk     bool
	FirstAsset, SecondAsset string
	FirstAmount, SecondAmount int64
	Timestamp int64 // unix millis
	TimeoutMS int64
}

// OrderIDValue decodes the wire order id. Callers in internal/trader build
// the concrete orderbook.Tick themselves, since wire must not depend on
// orderbook.
func (w OrderWire) OrderIDValue() (market.OrderID, error) {
	return market.OrderIDFromBytes(w.OrderID)
}

func (w OrderWire) Pair() (market.AssetPair, error) {
	return market.NewAssetPair(
		market.AssetAmount{Amount: w.FirstAmount, AssetID: w.FirstAsset},
		market.AssetAmount{Amount: w.SecondAmount, AssetID: w.SecondAsset},
	)
}

func NewOrderWire(id market.OrderID, isAsk bool, pair market.AssetPair, ts time.Time, timeout time.Duration) OrderWire {
	return OrderWire{
		OrderID:      id.Bytes(),
		IsAsk:        isAsk,
		FirstAsset:   pair.First.AssetID,
		SecondAsset:  pair.Second.AssetID,
		FirstAmount:  pair.First.Amount,
		SecondAmount: pair.Second.Amount,
		Timestamp:    ts.UnixMilli(),
		TimeoutMS:    timeout.Milliseconds(),
	}
}

func (w OrderWire) TimestampValue() time.Time { return time.UnixMilli(w.Timestamp) }
func (w OrderWire) TimeoutValue() time.Duration { return time.Duration(w.TimeoutMS) * time.Millisecond }

// CancelOrderWire announces an order's withdrawal.
type CancelOrderWire struct {
	OrderID []byte
}

// CompletedTradeWire announces a trade's settlement completion, so every
// matchmaker holding either side's tick can remove it.
type CompletedTradeWire struct {
	OrderID, Counterparty []byte
	TradedAmount          int64
}

// ProposeTradeWire, CounterTradeWire, DeclineTradeWire, StartTradeWire carry
// the negotiation.* messages over the wire.
type ProposeTradeWire struct {
	ProposalID            string
	Proposer, Recipient    []byte
	FirstAsset, SecondAsset string
	FirstAmount, SecondAmount int64
	Timestamp             int64

	// ProposerAddress/RecipientAddress carry whichever settlement
	// addresses this particular message's sender already knows: a Propose
	// only fills ProposerAddress, a Counter only fills RecipientAddress, a
	// Start fills both (see negotiation.ProposeTrade/CounterTrade/StartTrade).
	ProposerAddress  string
	RecipientAddress string
}

type CounterTradeWire ProposeTradeWire

type DeclineTradeWire struct {
	ProposalID          string
	Proposer, Recipient []byte
	Reason              int
	Timestamp           int64
}

type StartTradeWire ProposeTradeWire

func pairWireFields(p market.AssetPair) (string, string, int64, int64) {
	return p.First.AssetID, p.Second.AssetID, p.First.Amount, p.Second.Amount
}

func NewProposeTradeWire(m negotiation.ProposeTrade) ProposeTradeWire {
	fa, sa, fq, sq := pairWireFields(m.Pair)
	return ProposeTradeWire{
		ProposalID: string(m.ProposalID), Proposer: m.Proposer.Bytes(), Recipient: m.Recipient.Bytes(),
		FirstAsset: fa, SecondAsset: sa, FirstAmount: fq, SecondAmount: sq,
		Timestamp:      m.Timestamp.UnixMilli(),
		ProposerAddress: m.ProposerAddress,
	}
}

func (w ProposeTradeWire) ToMessage() (negotiation.ProposeTrade, error) {
	proposer, err := market.OrderIDFromBytes(w.Proposer)
	if err != nil {
		return negotiation.ProposeTrade{}, err
	}
	recipient, err := market.OrderIDFromBytes(w.Recipient)
	if err != nil {
		return negotiation.ProposeTrade{}, err
	}
	pair, err := market.NewAssetPair(
		market.AssetAmount{Amount: w.FirstAmount, AssetID: w.FirstAsset},
		market.AssetAmount{Amount: w.SecondAmount, AssetID: w.SecondAsset},
	)
	if err != nil {
		return negotiation.ProposeTrade{}, err
	}
	return negotiation.ProposeTrade{
		ProposalID:      negotiation.ProposalID(w.ProposalID),
		Proposer:        proposer,
		Recipient:       recipient,
		Pair:            pair,
		Timestamp:       time.UnixMilli(w.Timestamp),
		ProposerAddress: w.ProposerAddress,
	}, nil
}

// MatchWire is sent by a matchmaker directly to a trader it believes can
// trade with CounterpartyOrderID: a matchmaker holds ticks belonging to
// neither of its own local orders, so it carries the full counterparty
// tick (the recipient may never have seen it) alongside the recipient's
// own order id and the matchmaker's own trader id, so the recipient's
// MatchCache can later thank the matchmaker that introduced the trade.
type MatchWire struct {
	RecipientOrderID    []byte
	CounterpartyOrderID []byte
	IsAsk               bool
	FirstAsset, SecondAsset string
	FirstAmount, SecondAmount int64
	Timestamp           int64
	TimeoutMS           int64
	MatchmakerTraderID  []byte
}

// NewMatchWire builds a MatchWire announcing that counterparty may be able
// to trade against recipient, as found by matchmaker.
func NewMatchWire(recipient, counterparty market.OrderID, isAsk bool, pair market.AssetPair, ts time.Time, timeout time.Duration, matchmaker market.TraderID) MatchWire {
	return MatchWire{
		RecipientOrderID:    recipient.Bytes(),
		CounterpartyOrderID: counterparty.Bytes(),
		IsAsk:               isAsk,
		FirstAsset:          pair.First.AssetID,
		SecondAsset:         pair.Second.AssetID,
		FirstAmount:         pair.First.Amount,
		SecondAmount:        pair.Second.Amount,
		Timestamp:           ts.UnixMilli(),
		TimeoutMS:           timeout.Milliseconds(),
		MatchmakerTraderID:  matchmaker[:],
	}
}

func (w MatchWire) RecipientOrderIDValue() (market.OrderID, error) {
	return market.OrderIDFromBytes(w.RecipientOrderID)
}

func (w MatchWire) CounterpartyOrderIDValue() (market.OrderID, error) {
	return market.OrderIDFromBytes(w.CounterpartyOrderID)
}

func (w MatchWire) Pair() (market.AssetPair, error) {
	return market.NewAssetPair(
		market.AssetAmount{Amount: w.FirstAmount, AssetID: w.FirstAsset},
		market.AssetAmount{Amount: w.SecondAmount, AssetID: w.SecondAsset},
	)
}

func (w MatchWire) MatchmakerTraderIDValue() (market.TraderID, error) {
	return traderIDFromBytes(w.MatchmakerTraderID)
}

func (w MatchWire) TimestampValue() time.Time    { return time.UnixMilli(w.Timestamp) }
func (w MatchWire) TimeoutValue() time.Duration  { return time.Duration(w.TimeoutMS) * time.Millisecond }

func traderIDFromBytes(b []byte) (market.TraderID, error) {
	var t market.TraderID
	if len(b) != len(t) {
		return market.TraderID{}, fmt.Errorf("wire: trader id must be %d bytes, got %d", len(t), len(b))
	}
	copy(t[:], b)
	return t, nil
}

// MatchDeclineWire answers a MatchWire the recipient's order cannot (or no
// longer can) trade against, so the matchmaker can drop the tick or retry
// elsewhere.
type MatchDeclineWire struct {
	TraderID         []byte
	Timestamp        int64
	OrderID          []byte
	OtherOrderID     []byte
	Reason           int
}

func NewMatchDeclineWire(local, other market.OrderID, reason negotiation.DeclineReason, ts time.Time) MatchDeclineWire {
	return MatchDeclineWire{
		TraderID:     local.TraderID[:],
		Timestamp:    ts.UnixMilli(),
		OrderID:      local.Bytes(),
		OtherOrderID: other.Bytes(),
		Reason:       int(reason),
	}
}

func (w MatchDeclineWire) OrderIDValue() (market.OrderID, error)      { return market.OrderIDFromBytes(w.OrderID) }
func (w MatchDeclineWire) OtherOrderIDValue() (market.OrderID, error) { return market.OrderIDFromBytes(w.OtherOrderID) }
func (w MatchDeclineWire) ReasonValue() negotiation.DeclineReason     { return negotiation.DeclineReason(w.Reason) }
func (w MatchDeclineWire) TimestampValue() time.Time                 { return time.UnixMilli(w.Timestamp) }

// PingWire/PongWire implement matchmaker liveness probing.
type PingWire struct {
	Nonce uint64
}

type PongWire struct {
	Nonce uint64
}

// OrderbookSyncRequestWire carries a Bloom filter of order ids the
// requester already knows about, so the reply need only include ticks
// probably missing from it.
type OrderbookSyncRequestWire struct {
	BloomFilter []byte
	NumHashes   uint
	NumBits     uint
}

// OrderbookSyncResponseWire carries the sampled ticks the responder
// believes the requester is missing.
type OrderbookSyncResponseWire struct {
	Orders []OrderWire
}
