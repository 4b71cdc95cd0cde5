// Package negotiation implements the bilateral trade negotiation protocol:
// Propose, Counter, Decline and Start messages exchanged directly between
// two traders once a matchmaker has suggested they may be able to trade.
package negotiation

import (
	"time"

	"github.com/anydex/anydex/internal/market"
	"github.com/google/uuid"
)

// DeclineReason enumerates why a trader refused a proposed or countered
// trade, so the other side's MatchCache can decide whether the match is
// worth retrying.
type DeclineReason int

const (
	// ReasonOther covers any refusal without a more specific reason.
	ReasonOther DeclineReason = iota
	// ReasonOrderCompleted means the recipient's order has already traded
	// its full quantity.
	ReasonOrderCompleted
	// ReasonOrderCancelled means the recipient's order was withdrawn.
	ReasonOrderCancelled
	// ReasonOrderInvalid means the recipient's order has expired or fails
	// validation.
	ReasonOrderInvalid
	// ReasonUnacceptablePrice means the countered terms violate the
	// proposer's limit price.
	ReasonUnacceptablePrice
	// ReasonAlreadyTrading means the recipient is already negotiating with
	// this same counterparty order and cannot start a second negotiation.
	ReasonAlreadyTrading
	// ReasonOrderReserved means the recipient's order is open but has no
	// available (unreserved) quantity left right now — unlike
	// ReasonOrderCompleted this is expected to clear once an outstanding
	// negotiation elsewhere finishes or times out, so it is worth retrying.
	ReasonOrderReserved
	// ReasonNoAvailableQuantity means the proposer's own order can no
	// longer cover the quantity a counter-trade asked for. Unlike
	// ReasonOrderReserved this does not escalate the retry count: the
	// counterparty isn't at fault, so retrying sooner wouldn't help either.
	ReasonNoAvailableQuantity
	// ReasonAddressLookupFail means the counterparty's peer could not be
	// located (DHT/directory lookup failure) to deliver the message at all.
	ReasonAddressLookupFail
)

func (r DeclineReason) String() string {
	switch r {
	case ReasonOrderCompleted:
		return "order_completed"
	case ReasonOrderCancelled:
		return "order_cancelled"
	case ReasonOrderInvalid:
		return "order_invalid"
	case ReasonUnacceptablePrice:
		return "unacceptable_price"
	case ReasonAlreadyTrading:
		return "already_trading"
	case ReasonOrderReserved:
		return "order_reserved"
	case ReasonNoAvailableQuantity:
		return "no_available_quantity"
	case ReasonAddressLookupFail:
		return "address_lookup_fail"
	default:
		return "other"
	}
}

// ProposalID uniquely identifies one negotiation attempt (a Propose and
// everything that follows from it — a Counter, a Decline, or a Start).
type ProposalID string

// NewProposalID generates a fresh, non-sequential proposal id.
func NewProposalID() ProposalID {
	return ProposalID(uuid.NewString())
}

// ProposeTrade is sent by a trader to a counterparty it was matched with,
// offering to trade the given pair (expressed from the proposer's side:
// Pair.First is what the proposer gives up).
type ProposeTrade struct {
	ProposalID ProposalID
	Proposer   market.OrderID
	Recipient  market.OrderID
	Pair       market.AssetPair
	Timestamp  time.Time

	// ProposerAddress is where the proposer wants Pair.Second paid once the
	// trade settles. The recipient doesn't know its own settlement address
	// is needed until it decides how to respond, so it travels back in the
	// Counter/Start reply instead of here.
	ProposerAddress string
}

// CounterTrade is the recipient's reply when it cannot fill the full
// proposed quantity but can fill a smaller amount at the same price.
type CounterTrade struct {
	ProposalID ProposalID
	Proposer   market.OrderID
	Recipient  market.OrderID
	Pair       market.AssetPair // recipient's offered (possibly reduced) quantity
	Timestamp  time.Time

	// RecipientAddress is where the recipient (this message's sender)
	// wants its own Pair.Second paid once the trade settles.
	RecipientAddress string
}

// DeclineTrade ends a negotiation attempt without a trade.
type DeclineTrade struct {
	ProposalID ProposalID
	Proposer   market.OrderID
	Recipient  market.OrderID
	Reason     DeclineReason
	Timestamp  time.Time
}

// StartTrade confirms both sides agree on final terms and settlement
// should begin.
type StartTrade struct {
	ProposalID ProposalID
	Proposer   market.OrderID
	Recipient  market.OrderID
	Pair       market.AssetPair
	Timestamp  time.Time

	// ProposerAddress/RecipientAddress carry both sides' settlement
	// addresses so that whichever side receives this message (it may be
	// either, depending on who decided to Start) can pay the other leg
	// without a further round trip.
	ProposerAddress  string
	RecipientAddress string
}
