package market

import (
	"errors"
	"fmt"
)

// ErrAssetMismatch is returned whenever an arithmetic operation is attempted
// between AssetAmounts of different asset ids.
var ErrAssetMismatch = errors.New("market: asset id mismatch")

// AssetAmount is an exact integer quantity of some asset, identified by its
// asset id (e.g. "BTC", "DUM1"). Amounts are denominated in the asset's
// smallest indivisible unit; scaling to a human-readable quantity is the
// caller's concern.
type AssetAmount struct {
	Amount  int64
	AssetID string
}

// NewAssetAmount constructs an AssetAmount, rejecting negative amounts.
func NewAssetAmount(amount int64, assetID string) (AssetAmount, error) {
	if amount < 0 {
		return AssetAmount{}, fmt.Errorf("market: negative asset amount %d", amount)
	}
	if assetID == "" {
		return AssetAmount{}, errors.New("market: empty asset id")
	}
	return AssetAmount{Amount: amount, AssetID: assetID}, nil
}

func (a AssetAmount) sameAsset(b AssetAmount) error {
	if a.AssetID != b.AssetID {
		return fmt.Errorf("%w: %s != %s", ErrAssetMismatch, a.AssetID, b.AssetID)
	}
	return nil
}

// Add returns a + b. Both must share an asset id.
func (a AssetAmount) Add(b AssetAmount) (AssetAmount, error) {
	if err := a.sameAsset(b); err != nil {
		return AssetAmount{}, err
	}
	return AssetAmount{Amount: a.Amount + b.Amount, AssetID: a.AssetID}, nil
}

// Sub returns a - b. Both must share an asset id; the result may not be
// negative.
func (a AssetAmount) Sub(b AssetAmount) (AssetAmount, error) {
	if err := a.sameAsset(b); err != nil {
		return AssetAmount{}, err
	}
	if a.Amount < b.Amount {
		return AssetAmount{}, fmt.Errorf("market: subtraction underflow: %d - %d", a.Amount, b.Amount)
	}
	return AssetAmount{Amount: a.Amount - b.Amount, AssetID: a.AssetID}, nil
}

// Compare returns -1, 0 or 1 as a is less than, equal to, or greater than b.
// Both must share an asset id.
func (a AssetAmount) Compare(b AssetAmount) (int, error) {
	if err := a.sameAsset(b); err != nil {
		return 0, err
	}
	switch {
	case a.Amount < b.Amount:
		return -1, nil
	case a.Amount > b.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

func (a AssetAmount) String() string {
	return fmt.Sprintf("%d %s", a.Amount, a.AssetID)
}
