package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price is a price of one asset expressed in units of another:
// NumeratorAsset per DenominatorAsset. Value is a rounded decimal
// projection used for comparisons and as the orderbook's btree level key;
// Numerator/Denominator preserve the exact integer pair (Second.Amount,
// First.Amount) a Price was derived from, for callers that need the exact
// rational rather than Value's fixed-precision rounding (e.g. re-deriving
// an AssetPair from a price without accumulating rounding error). A Price
// built directly via NewPrice rather than PriceFromAssetPair has no such
// pair and leaves both at zero.
type Price struct {
	Value           decimal.Decimal
	NumeratorAsset  string
	DenominatorAsset string

	Numerator   int64
	Denominator int64
}

// NewPrice builds a Price from a decimal value and the two asset ids it
// relates, with no backing exact integer pair.
func NewPrice(value decimal.Decimal, numeratorAsset, denominatorAsset string) Price {
	return Price{Value: value, NumeratorAsset: numeratorAsset, DenominatorAsset: denominatorAsset}
}

// PriceFromAssetPair derives the unit price implied by an AssetPair: how
// many units of Second.AssetID one unit of First.AssetID costs. The exact
// (Second.Amount, First.Amount) integer pair is retained alongside the
// rounded decimal projection.
func PriceFromAssetPair(pair AssetPair) (Price, error) {
	if pair.First.Amount == 0 {
		return Price{}, fmt.Errorf("market: cannot derive price from zero-quantity pair")
	}
	num := decimal.NewFromInt(pair.Second.Amount)
	denom := decimal.NewFromInt(pair.First.Amount)
	value := num.DivRound(denom, 18)
	p := NewPrice(value, pair.Second.AssetID, pair.First.AssetID)
	p.Numerator = pair.Second.Amount
	p.Denominator = pair.First.Amount
	return p, nil
}

func (p Price) sameAssets(o Price) bool {
	return p.NumeratorAsset == o.NumeratorAsset && p.DenominatorAsset == o.DenominatorAsset
}

// Compare returns -1, 0, 1 for p < o, p == o, p > o. Both prices must
// relate the same asset pair in the same direction.
func (p Price) Compare(o Price) (int, error) {
	if !p.sameAssets(o) {
		return 0, fmt.Errorf("%w: price assets (%s/%s) vs (%s/%s)", ErrAssetMismatch,
			p.NumeratorAsset, p.DenominatorAsset, o.NumeratorAsset, o.DenominatorAsset)
	}
	return p.Value.Cmp(o.Value), nil
}

// LessThan reports whether p < o, panicking if the asset pairs differ
// (callers are expected to only compare prices drawn from the same book).
func (p Price) LessThan(o Price) bool {
	c, err := p.Compare(o)
	if err != nil {
		panic(err)
	}
	return c < 0
}

func (p Price) String() string {
	return fmt.Sprintf("%s %s/%s", p.Value.String(), p.NumeratorAsset, p.DenominatorAsset)
}

// ScaledKey returns a fixed-point integer key suitable for use as an
// ordered map key (the orderbook's Side uses this to index price levels in
// a btree). scale is the number of decimal places retained.
func (p Price) ScaledKey(scale int32) int64 {
	scaled := p.Value.Shift(scale).Round(0)
	return scaled.IntPart()
}
