// Package settlement drives a confirmed Transaction through payment and
// confirmation, idempotent on transaction id so a crash-and-restart never
// double-pays a leg that already went out.
package settlement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/anydex/anydex/internal/negotiation"
	"github.com/anydex/anydex/internal/wallet"
)

// Store is the subset of internal/storage.Store settlement needs, kept
// narrow so tests can fake it without a real Pebble database.
type Store interface {
	FindTransaction(id negotiation.TransactionID) (negotiation.Transaction, bool, error)
	SaveTransaction(txn negotiation.Transaction) error
	FindPaymentsByTransaction(id negotiation.TransactionID) ([]negotiation.Payment, error)
	SavePayment(seq uint64, p negotiation.Payment) error
}

// Driver pays out the local leg of settled transactions and polls wallet
// adapters for confirmation, grounded on the trading engine's own
// post-trade settlement loop.
type Driver struct {
	store   Store
	wallets map[string]wallet.Adapter // by AssetID
	log     *zap.SugaredLogger
}

// NewDriver builds a Driver over the given wallet adapters, one per asset id.
func NewDriver(store Store, wallets map[string]wallet.Adapter, log *zap.SugaredLogger) *Driver {
	return &Driver{store: store, wallets: wallets, log: log}
}

// Settle pays the leg of txn owed to the counterparty (Pair.First, in
// txn's own First/Second convention — see negotiation.Transaction), unless
// a payment for this transaction has already been sent.
func (d *Driver) Settle(ctx context.Context, txn negotiation.Transaction) error {
	existing, err := d.store.FindPaymentsByTransaction(txn.TransactionID)
	if err != nil {
		return fmt.Errorf("settlement: checking existing payments: %w", err)
	}
	for _, p := range existing {
		if !p.Confirmed {
			return d.pollConfirmation(ctx, p)
		}
	}
	if len(existing) > 0 {
		return nil // already paid and confirmed
	}

	owed := txn.Pair.First
	adapter, ok := d.wallets[owed.AssetID]
	if !ok {
		return fmt.Errorf("settlement: no wallet adapter for asset %q", owed.AssetID)
	}

	counterpartyAddr, err := counterpartyAddress(ctx, adapter, txn)
	if err != nil {
		return err
	}

	txID, err := adapter.Pay(ctx, counterpartyAddr, owed)
	if err != nil {
		return fmt.Errorf("settlement: paying %s: %w", owed.AssetID, err)
	}

	payment := negotiation.NewPayment(txn.TransactionID, owed, counterpartyAddr, txn.Timestamp)
	payment.WalletTxID = txID
	if err := d.store.SavePayment(1, payment); err != nil {
		return fmt.Errorf("settlement: recording payment: %w", err)
	}
	txn.AddPayment(payment)
	if err := d.store.SaveTransaction(txn); err != nil {
		return fmt.Errorf("settlement: updating transaction: %w", err)
	}
	if d.log != nil {
		d.log.Infow("settlement_paid", "txn", txn.TransactionID, "asset", owed.AssetID, "wallet_tx", txID)
	}
	return nil
}

// counterpartyAddress returns where txn.Pair.First must be paid, carried on
// the Transaction since the StartTrade handshake.
func counterpartyAddress(ctx context.Context, adapter wallet.Adapter, txn negotiation.Transaction) (string, error) {
	if txn.CounterpartyAddress == "" {
		return "", fmt.Errorf("settlement: transaction %s has no counterparty address", txn.TransactionID)
	}
	return txn.CounterpartyAddress, nil
}

// pollConfirmation checks whether payment p has reached finality in its
// wallet adapter and, once it has, marks it confirmed.
func (d *Driver) pollConfirmation(ctx context.Context, p negotiation.Payment) error {
	adapter, ok := d.wallets[p.Amount.AssetID]
	if !ok {
		return fmt.Errorf("settlement: no wallet adapter for asset %q", p.Amount.AssetID)
	}
	confirmed, err := adapter.IsConfirmed(ctx, p.WalletTxID)
	if err != nil {
		return fmt.Errorf("settlement: checking confirmation: %w", err)
	}
	if !confirmed {
		return nil
	}
	p.Confirmed = true
	// Re-fetch and update the transaction's payment list to persist the
	// confirmation.
	txn, ok, err := d.fetchTransaction(p.TransactionID)
	if err != nil || !ok {
		return err
	}
	for i := range txn.Payments {
		if txn.Payments[i].WalletTxID == p.WalletTxID {
			txn.Payments[i].Confirmed = true
		}
	}
	return d.store.SaveTransaction(txn)
}

func (d *Driver) fetchTransaction(id negotiation.TransactionID) (negotiation.Transaction, bool, error) {
	return d.store.FindTransaction(id)
}

// IsSettled reports whether txn has a confirmed payment recorded.
func (d *Driver) IsSettled(id negotiation.TransactionID) (bool, error) {
	payments, err := d.store.FindPaymentsByTransaction(id)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.Confirmed {
			return true, nil
		}
	}
	return false, nil
}
