// Package clearing implements pluggable policies deciding whether a trader
// should begin negotiating with a given counterparty at all, independent of
// whether a price/quantity match exists.
package clearing

import (
	"context"

	"github.com/anydex/anydex/internal/market"
)

// Policy decides whether the local trader should trade with counterparty.
type Policy interface {
	ShouldTrade(ctx context.Context, counterparty market.TraderID) (bool, error)
}

// AlwaysTrade is the default, permissive policy.
type AlwaysTrade struct{}

func (AlwaysTrade) ShouldTrade(context.Context, market.TraderID) (bool, error) {
	return true, nil
}
