package negotiation

import (
	"time"

	"github.com/anydex/anydex/internal/market"
)

// Payment is a single on-chain (or otherwise wallet-mediated) transfer made
// to settle one leg of a Transaction.
type Payment struct {
	TransactionID TransactionID
	Amount        market.AssetAmount
	Address       string // wallet-specific destination address
	WalletTxID    string // wallet adapter's transaction identifier, once sent
	Timestamp     time.Time
	Confirmed     bool
}

// NewPayment constructs a pending (unconfirmed) payment.
func NewPayment(txID TransactionID, amount market.AssetAmount, address string, ts time.Time) Payment {
	return Payment{TransactionID: txID, Amount: amount, Address: address, Timestamp: ts}
}
