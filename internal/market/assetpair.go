package market

import (
	"errors"
	"fmt"
)

// AssetPair couples two AssetAmounts being exchanged. It is always stored
// in canonical order: First.AssetID < Second.AssetID, regardless of which
// side a trader calls "base" or "quote" — this mirrors the original
// implementation's rule that the pair's identity does not depend on trade
// direction, only the asset ids do.
type AssetPair struct {
	First  AssetAmount
	Second AssetAmount
}

// NewAssetPair builds a canonicalized AssetPair from two amounts, swapping
// them if necessary so First.AssetID < Second.AssetID.
func NewAssetPair(a, b AssetAmount) (AssetPair, error) {
	if a.AssetID == b.AssetID {
		return AssetPair{}, errors.New("market: asset pair requires two distinct assets")
	}
	if a.AssetID < b.AssetID {
		return AssetPair{First: a, Second: b}, nil
	}
	return AssetPair{First: b, Second: a}, nil
}

// Price returns the unit price this pair implies: units of Second per unit
// of First.
func (p AssetPair) Price() (Price, error) {
	return PriceFromAssetPair(p)
}

// ProportionalDownscale scales the pair down so that First's amount equals
// firstAmount, keeping the Second/First ratio fixed (round down). Used when
// only a partial quantity of an order can be matched.
func (p AssetPair) ProportionalDownscale(firstAmount int64) (AssetPair, error) {
	if firstAmount < 0 || firstAmount > p.First.Amount {
		return AssetPair{}, fmt.Errorf("market: downscale amount %d out of range [0,%d]", firstAmount, p.First.Amount)
	}
	if p.First.Amount == 0 {
		return AssetPair{}, errors.New("market: cannot downscale a zero-quantity pair")
	}
	secondAmount := (p.Second.Amount * firstAmount) / p.First.Amount
	return AssetPair{
		First:  AssetAmount{Amount: firstAmount, AssetID: p.First.AssetID},
		Second: AssetAmount{Amount: secondAmount, AssetID: p.Second.AssetID},
	}, nil
}

// ProportionalDownscaleSecond scales the pair down so that Second's amount
// equals secondAmount, keeping the Second/First ratio fixed (round down).
// The mirror of ProportionalDownscale, for callers anchoring a partial fill
// on the Second leg rather than the First.
func (p AssetPair) ProportionalDownscaleSecond(secondAmount int64) (AssetPair, error) {
	if secondAmount < 0 || secondAmount > p.Second.Amount {
		return AssetPair{}, fmt.Errorf("market: downscale amount %d out of range [0,%d]", secondAmount, p.Second.Amount)
	}
	if p.Second.Amount == 0 {
		return AssetPair{}, errors.New("market: cannot downscale a zero-quantity pair")
	}
	firstAmount := (p.First.Amount * secondAmount) / p.Second.Amount
	return AssetPair{
		First:  AssetAmount{Amount: firstAmount, AssetID: p.First.AssetID},
		Second: AssetAmount{Amount: secondAmount, AssetID: p.Second.AssetID},
	}, nil
}

// Add combines two pairs covering the same two assets, summing both legs.
func (p AssetPair) Add(o AssetPair) (AssetPair, error) {
	if p.First.AssetID != o.First.AssetID || p.Second.AssetID != o.Second.AssetID {
		return AssetPair{}, fmt.Errorf("%w: asset pair mismatch", ErrAssetMismatch)
	}
	first, err := p.First.Add(o.First)
	if err != nil {
		return AssetPair{}, err
	}
	second, err := p.Second.Add(o.Second)
	if err != nil {
		return AssetPair{}, err
	}
	return AssetPair{First: first, Second: second}, nil
}

func (p AssetPair) String() string {
	return fmt.Sprintf("%s for %s", p.First, p.Second)
}
