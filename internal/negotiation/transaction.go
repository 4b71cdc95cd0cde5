package negotiation

import (
	"time"

	"github.com/anydex/anydex/internal/market"
	"github.com/google/uuid"
)

// TransactionID identifies a settled or settling transaction across both
// parties and the matchmaker(s) that disseminate its completion.
type TransactionID string

// NewTransactionID generates a fresh transaction id.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// Transaction is the agreed outcome of a successful negotiation: both
// parties' order ids and the asset pair that will move between them,
// expressed from OrderID's perspective (Pair.First leaves OrderID,
// Pair.Second arrives).
type Transaction struct {
	TransactionID TransactionID
	OrderID       market.OrderID
	Counterparty  market.OrderID
	Pair          market.AssetPair
	Timestamp     time.Time

	// CounterpartyAddress is where Pair.First must be paid to settle this
	// side's leg, carried here from the StartTrade handshake rather than
	// assumed to be the local trader's own address.
	CounterpartyAddress string

	Payments []Payment
}

// NewTransaction builds a Transaction from a confirmed StartTrade, from the
// perspective of the given side (proposer or recipient).
func NewTransaction(start StartTrade, asSide market.OrderID) Transaction {
	pair := start.Pair
	counterparty := start.Recipient
	counterpartyAddress := start.RecipientAddress
	if asSide == start.Recipient {
		// Flip: from the recipient's perspective, the legs run the other way.
		pair, _ = market.NewAssetPair(start.Pair.Second, start.Pair.First)
		counterparty = start.Proposer
		counterpartyAddress = start.ProposerAddress
	}
	return Transaction{
		TransactionID:       NewTransactionID(),
		OrderID:             asSide,
		Counterparty:        counterparty,
		Pair:                pair,
		Timestamp:           start.Timestamp,
		CounterpartyAddress: counterpartyAddress,
	}
}

// IsComplete reports whether enough payments have been recorded to cover
// both legs of the transaction.
func (t *Transaction) IsComplete() bool {
	var first, second int64
	for _, p := range t.Payments {
		if p.Amount.AssetID == t.Pair.First.AssetID {
			first += p.Amount.Amount
		} else if p.Amount.AssetID == t.Pair.Second.AssetID {
			second += p.Amount.Amount
		}
	}
	return first >= t.Pair.First.Amount && second >= t.Pair.Second.Amount
}

// AddPayment records a wallet payment against this transaction.
func (t *Transaction) AddPayment(p Payment) {
	t.Payments = append(t.Payments, p)
}
