package negotiation

import (
	"time"

	"github.com/anydex/anydex/internal/market"
)

// Decision is the outcome of handling an inbound negotiation message: which
// reply (if any) the local trader should send next.
type Decision int

const (
	// DecisionDecline means a DeclineTrade should be sent and the
	// negotiation is over.
	DecisionDecline Decision = iota
	// DecisionCounter means only part of the proposed quantity could be
	// filled; a CounterTrade at the same price but smaller quantity is sent.
	DecisionCounter
	// DecisionStart means the full (possibly already-countered) quantity
	// was reserved and a StartTrade should be sent to begin settlement.
	DecisionStart
)

// Response bundles the Decision with the single outbound message it implies.
type Response struct {
	Decision Decision
	Decline  *DeclineTrade
	Counter  *CounterTrade
	Start    *StartTrade
}

// ShouldYieldCrossedProposal implements the tie-break for the case where
// two traders simultaneously propose trades to each other for two
// different order pairs: the ask side yields its own outstanding proposal
// and accepts the incoming one instead, rather than both sides declining
// or both proceeding and double-reserving.
func ShouldYieldCrossedProposal(localIsAsk bool) bool {
	return localIsAsk
}

// ReceiveProposeTrade handles an inbound ProposeTrade against the
// recipient's local order. It reserves quantity on local before returning
// success, rolling the reservation back on any failure path, so that two
// concurrent proposals can never both believe they reserved the same
// liquidity. crossedProposal indicates the recipient already has an
// outstanding proposal of its own to msg.Proposer for a different order;
// per ShouldYieldCrossedProposal, only a bid-side recipient declines in
// that situation — an ask-side recipient yields and proceeds normally
// (the caller is responsible for also withdrawing the local outstanding
// proposal that is being yielded).
func ReceiveProposeTrade(local *market.Order, msg ProposeTrade, crossedProposal bool, now time.Time, localAddress string) (Response, error) {
	if reason, ok := terminalDeclineReason(local, now); ok {
		return declineResponse(msg.ProposalID, msg.Proposer, msg.Recipient, reason, now), nil
	}
	if crossedProposal && !ShouldYieldCrossedProposal(local.IsAsk) {
		return declineResponse(msg.ProposalID, msg.Proposer, msg.Recipient, ReasonAlreadyTrading, now), nil
	}

	// msg.Pair is expressed from the proposer's side (First = what the
	// proposer gives up). From the recipient's side the legs are flipped.
	recipientPair, err := market.NewAssetPair(msg.Pair.Second, msg.Pair.First)
	if err != nil {
		return Response{}, err
	}

	requested := recipientPair.First.Amount
	available := local.Available()
	if available <= 0 {
		return declineResponse(msg.ProposalID, msg.Proposer, msg.Recipient, ReasonOrderReserved, now), nil
	}

	if requested <= available {
		if err := local.Reserve(msg.Proposer, requested); err != nil {
			return declineResponse(msg.ProposalID, msg.Proposer, msg.Recipient, ReasonOther, now), nil
		}
		return startResponse(msg.ProposalID, msg.Proposer, msg.Recipient, msg.Pair, msg.ProposerAddress, localAddress, now), nil
	}

	// Partial fill: counter with the recipient's (smaller) available
	// quantity at the same price.
	downscaled, err := recipientPair.ProportionalDownscale(available)
	if err != nil {
		return Response{}, err
	}
	if err := local.Reserve(msg.Proposer, downscaled.First.Amount); err != nil {
		return declineResponse(msg.ProposalID, msg.Proposer, msg.Recipient, ReasonOther, now), nil
	}
	counterPair, err := market.NewAssetPair(downscaled.Second, downscaled.First)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Decision: DecisionCounter,
		Counter: &CounterTrade{
			ProposalID:       msg.ProposalID,
			Proposer:         msg.Proposer,
			Recipient:        msg.Recipient,
			Pair:             counterPair,
			Timestamp:        now,
			RecipientAddress: localAddress,
		},
	}, nil
}

// ReceiveCounterTrade handles an inbound CounterTrade on the original
// proposer's side. Per spec, the proposer is the only side that re-checks
// the acceptable-price constraint at this step (the recipient's initial
// Propose handling trusts the matchmaker's crossing check; this second
// check guards against a counterparty countering with a price the
// proposer's own order would no longer accept, not just a smaller
// quantity).
func ReceiveCounterTrade(local *market.Order, msg CounterTrade, now time.Time, localAddress string) (Response, error) {
	if reason, ok := terminalDeclineReason(local, now); ok {
		return declineResponse(msg.ProposalID, msg.Proposer, msg.Recipient, reason, now), nil
	}
	if !local.HasAcceptablePrice(msg.Pair) {
		return declineResponse(msg.ProposalID, msg.Proposer, msg.Recipient, ReasonUnacceptablePrice, now), nil
	}
	quantity := msg.Pair.First.Amount
	if quantity > local.Available() {
		return declineResponse(msg.ProposalID, msg.Proposer, msg.Recipient, ReasonNoAvailableQuantity, now), nil
	}
	if err := local.Reserve(msg.Recipient, quantity); err != nil {
		return declineResponse(msg.ProposalID, msg.Proposer, msg.Recipient, ReasonOther, now), nil
	}
	return startResponse(msg.ProposalID, msg.Proposer, msg.Recipient, msg.Pair, localAddress, msg.RecipientAddress, now), nil
}

// ReceiveStartTrade finalizes a negotiation on whichever side receives the
// StartTrade rather than having sent it (the side that sent Start already
// reserved its quantity while producing the message). It builds the
// Transaction that settlement will execute against.
func ReceiveStartTrade(local *market.Order, msg StartTrade, now time.Time) (Transaction, error) {
	counterparty := msg.Proposer
	asSide := msg.Recipient
	if local.OrderID == msg.Proposer {
		counterparty = msg.Recipient
		asSide = msg.Proposer
	}
	if local.ReservedFor(counterparty) == 0 {
		pair := msg.Pair
		if asSide == msg.Recipient {
			var err error
			pair, err = market.NewAssetPair(msg.Pair.Second, msg.Pair.First)
			if err != nil {
				return Transaction{}, err
			}
		}
		if err := local.Reserve(counterparty, pair.First.Amount); err != nil {
			return Transaction{}, err
		}
	}
	return NewTransaction(msg, asSide), nil
}

// ReceiveDeclineTrade releases whatever reservation the local order made
// for this proposal, leaving retry scheduling to the caller (MatchCache).
func ReceiveDeclineTrade(local *market.Order, msg DeclineTrade) {
	counterparty := msg.Recipient
	if local.OrderID == msg.Recipient {
		counterparty = msg.Proposer
	}
	_ = local.Release(counterparty)
}

func terminalDeclineReason(local *market.Order, now time.Time) (DeclineReason, bool) {
	switch local.Status() {
	case market.StatusCompleted:
		return ReasonOrderCompleted, true
	case market.StatusCancelled:
		return ReasonOrderCancelled, true
	case market.StatusExpired:
		return ReasonOrderInvalid, true
	}
	if local.IsExpired(now) {
		return ReasonOrderInvalid, true
	}
	return 0, false
}

func declineResponse(id ProposalID, proposer, recipient market.OrderID, reason DeclineReason, now time.Time) Response {
	return Response{
		Decision: DecisionDecline,
		Decline: &DeclineTrade{
			ProposalID: id,
			Proposer:   proposer,
			Recipient:  recipient,
			Reason:     reason,
			Timestamp:  now,
		},
	}
}

func startResponse(id ProposalID, proposer, recipient market.OrderID, pair market.AssetPair, proposerAddress, recipientAddress string, now time.Time) Response {
	return Response{
		Decision: DecisionStart,
		Start: &StartTrade{
			ProposalID:       id,
			Proposer:         proposer,
			Recipient:        recipient,
			Pair:             pair,
			Timestamp:        now,
			ProposerAddress:  proposerAddress,
			RecipientAddress: recipientAddress,
		},
	}
}
