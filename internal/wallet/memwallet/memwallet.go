// Package memwallet is a reference in-memory wallet.Adapter implementation
// used for tests and local development; it settles instantly and never
// touches a real chain.
package memwallet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/wallet"
)

// Wallet is a thread-safe in-memory wallet.Adapter for a single asset.
type Wallet struct {
	assetID string
	address string

	mu      sync.Mutex
	balance int64

	txCounter int64
	txs       map[string]bool
}

var _ wallet.Adapter = (*Wallet)(nil)

// New creates a Wallet for assetID at the given address, pre-funded with
// initialBalance.
func New(assetID, address string, initialBalance int64) *Wallet {
	return &Wallet{
		assetID: assetID,
		address: address,
		balance: initialBalance,
		txs:     make(map[string]bool),
	}
}

func (w *Wallet) AssetID() string { return w.assetID }

func (w *Wallet) Address(context.Context) (string, error) {
	return w.address, nil
}

func (w *Wallet) Balance(context.Context) (market.AssetAmount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return market.AssetAmount{Amount: w.balance, AssetID: w.assetID}, nil
}

func (w *Wallet) Pay(_ context.Context, _ string, amount market.AssetAmount) (string, error) {
	if amount.AssetID != w.assetID {
		return "", fmt.Errorf("memwallet: asset mismatch, wallet holds %s got %s", w.assetID, amount.AssetID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if amount.Amount > w.balance {
		return "", fmt.Errorf("memwallet: insufficient balance: have %d, need %d", w.balance, amount.Amount)
	}
	w.balance -= amount.Amount
	id := atomic.AddInt64(&w.txCounter, 1)
	txID := fmt.Sprintf("mem-%s-%d", w.assetID, id)
	w.txs[txID] = true
	return txID, nil
}

func (w *Wallet) IsConfirmed(_ context.Context, txID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.txs[txID], nil
}

func (w *Wallet) MinConfirmations() int { return 0 }

// Credit adds amount to the wallet's balance, as if a counterparty's
// payment had been received.
func (w *Wallet) Credit(amount int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance += amount
}
