// Package wallet defines the narrow interface the settlement driver uses to
// move funds, deliberately kept free of any specific chain's SDK so new
// asset types can be added without touching negotiation or settlement code.
package wallet

import (
	"context"

	"github.com/anydex/anydex/internal/market"
)

// Adapter is implemented once per asset id. Settlement never constructs
// transactions itself; it only calls through this interface.
type Adapter interface {
	// AssetID is the asset this adapter moves, e.g. "BTC" or "DUM1".
	AssetID() string

	// Address returns this trader's receiving address for the asset.
	Address(ctx context.Context) (string, error)

	// Balance returns the trader's available balance of the asset.
	Balance(ctx context.Context) (market.AssetAmount, error)

	// Pay sends amount to address, returning the adapter-specific
	// transaction identifier once the transfer is broadcast (not
	// necessarily confirmed).
	Pay(ctx context.Context, address string, amount market.AssetAmount) (txID string, err error)

	// IsConfirmed reports whether a previously returned txID has reached
	// the asset's notion of finality.
	IsConfirmed(ctx context.Context, txID string) (bool, error)

	// MinConfirmations is how many confirmations IsConfirmed requires.
	MinConfirmations() int
}
