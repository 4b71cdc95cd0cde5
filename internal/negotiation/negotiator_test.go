package negotiation

import (
	"testing"
	"time"

	"github.com/anydex/anydex/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pair(t *testing.T, firstQty, secondQty int64) market.AssetPair {
	t.Helper()
	p, err := market.NewAssetPair(
		market.AssetAmount{Amount: firstQty, AssetID: "BTC"},
		market.AssetAmount{Amount: secondQty, AssetID: "USD"},
	)
	require.NoError(t, err)
	return p
}

func TestReceiveProposeTradeFullFill(t *testing.T) {
	recipient := market.NewOrder(market.OrderID{OrderNumber: 2}, false, pair(t, 10, 100), time.Minute, time.Now())
	recipient.Verify()

	msg := ProposeTrade{
		ProposalID: NewProposalID(),
		Proposer:   market.OrderID{OrderNumber: 1},
		Recipient:  recipient.OrderID,
		Pair:       pair(t, 10, 100),
		Timestamp:  time.Now(),
	}

	resp, err := ReceiveProposeTrade(recipient, msg, false, time.Now(), "")
	require.NoError(t, err)
	assert.Equal(t, DecisionStart, resp.Decision)
	assert.Equal(t, int64(10), recipient.Reserved())
}

func TestReceiveProposeTradePartialFillCounters(t *testing.T) {
	recipient := market.NewOrder(market.OrderID{OrderNumber: 2}, false, pair(t, 4, 40), time.Minute, time.Now())
	recipient.Verify()

	msg := ProposeTrade{
		ProposalID: NewProposalID(),
		Proposer:   market.OrderID{OrderNumber: 1},
		Recipient:  recipient.OrderID,
		Pair:       pair(t, 10, 100),
		Timestamp:  time.Now(),
	}

	resp, err := ReceiveProposeTrade(recipient, msg, false, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, DecisionCounter, resp.Decision)
	assert.Equal(t, int64(4), resp.Counter.Pair.First.Amount)
	assert.Equal(t, int64(4), recipient.Reserved())
}

func TestReceiveProposeTradeDeclinesCompletedOrder(t *testing.T) {
	recipient := market.NewOrder(market.OrderID{OrderNumber: 2}, false, pair(t, 1, 10), time.Minute, time.Now())
	recipient.Verify()
	require.NoError(t, recipient.Reserve(market.OrderID{OrderNumber: 9}, 1))
	require.NoError(t, recipient.RecordTrade(market.OrderID{OrderNumber: 9}, 1, 10))

	msg := ProposeTrade{
		ProposalID: NewProposalID(),
		Proposer:   market.OrderID{OrderNumber: 1},
		Recipient:  recipient.OrderID,
		Pair:       pair(t, 1, 10),
		Timestamp:  time.Now(),
	}
	resp, err := ReceiveProposeTrade(recipient, msg, false, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, DecisionDecline, resp.Decision)
	assert.Equal(t, ReasonOrderCompleted, resp.Decline.Reason)
}

func TestCrossedProposalAskYields(t *testing.T) {
	ask := market.NewOrder(market.OrderID{OrderNumber: 2}, true, pair(t, 10, 100), time.Minute, time.Now())
	ask.Verify()
	msg := ProposeTrade{
		ProposalID: NewProposalID(),
		Proposer:   market.OrderID{OrderNumber: 1},
		Recipient:  ask.OrderID,
		Pair:       pair(t, 10, 100),
		Timestamp:  time.Now(),
	}
	resp, err := ReceiveProposeTrade(ask, msg, true, time.Now(), "")
	require.NoError(t, err)
	assert.NotEqual(t, DecisionDecline, resp.Decision, "ask should yield its own proposal and accept the incoming one")
}

func TestCrossedProposalBidDeclines(t *testing.T) {
	bid := market.NewOrder(market.OrderID{OrderNumber: 2}, false, pair(t, 10, 100), time.Minute, time.Now())
	bid.Verify()
	msg := ProposeTrade{
		ProposalID: NewProposalID(),
		Proposer:   market.OrderID{OrderNumber: 1},
		Recipient:  bid.OrderID,
		Pair:       pair(t, 10, 100),
		Timestamp:  time.Now(),
	}
	resp, err := ReceiveProposeTrade(bid, msg, true, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, DecisionDecline, resp.Decision)
	assert.Equal(t, ReasonAlreadyTrading, resp.Decline.Reason)
}

func TestReceiveCounterTradeRejectsUnacceptablePrice(t *testing.T) {
	proposer := market.NewOrder(market.OrderID{OrderNumber: 1}, true, pair(t, 10, 100), time.Minute, time.Now())
	proposer.Verify()

	msg := CounterTrade{
		ProposalID: NewProposalID(),
		Proposer:   proposer.OrderID,
		Recipient:  market.OrderID{OrderNumber: 2},
		Pair:       pair(t, 10, 50), // worse price for an ask
		Timestamp:  time.Now(),
	}
	resp, err := ReceiveCounterTrade(proposer, msg, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, DecisionDecline, resp.Decision)
	assert.Equal(t, ReasonUnacceptablePrice, resp.Decline.Reason)
}

func TestReceiveDeclineTradeReleasesReservation(t *testing.T) {
	proposer := market.NewOrder(market.OrderID{OrderNumber: 1}, true, pair(t, 10, 100), time.Minute, time.Now())
	proposer.Verify()
	recipientID := market.OrderID{OrderNumber: 2}
	require.NoError(t, proposer.Reserve(recipientID, 10))

	ReceiveDeclineTrade(proposer, DeclineTrade{
		Proposer:  proposer.OrderID,
		Recipient: recipientID,
		Reason:    ReasonOther,
		Timestamp: time.Now(),
	})
	assert.Equal(t, int64(0), proposer.Reserved())
}
