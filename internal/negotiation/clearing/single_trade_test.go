package clearing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation"
	"github.com/anydex/anydex/internal/provenance"
)

type fakeFetcher struct {
	chains map[market.TraderID]*provenance.Chain
	err    error
}

func (f fakeFetcher) FetchChain(ctx context.Context, trader market.TraderID) (*provenance.Chain, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chains[trader], nil
}

func TestSingleTradeClearingPolicyAllowsCleanChain(t *testing.T) {
	trader := market.TraderID{0x01}
	chain := provenance.NewChain(trader)
	chain.Append(provenance.RecordTxInit, negotiation.TransactionID("tx-1"))
	chain.Append(provenance.RecordTxDone, negotiation.TransactionID("tx-1"))

	p := NewSingleTradeClearingPolicy(fakeFetcher{chains: map[market.TraderID]*provenance.Chain{trader: chain}})
	ok, err := p.ShouldTrade(context.Background(), trader)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSingleTradeClearingPolicyRefusesOpenTransaction(t *testing.T) {
	trader := market.TraderID{0x02}
	chain := provenance.NewChain(trader)
	chain.Append(provenance.RecordTxInit, negotiation.TransactionID("tx-open"))

	p := NewSingleTradeClearingPolicy(fakeFetcher{chains: map[market.TraderID]*provenance.Chain{trader: chain}})
	ok, err := p.ShouldTrade(context.Background(), trader)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSingleTradeClearingPolicyAllowsUnknownTrader(t *testing.T) {
	trader := market.TraderID{0x03}
	p := NewSingleTradeClearingPolicy(fakeFetcher{chains: map[market.TraderID]*provenance.Chain{}})
	ok, err := p.ShouldTrade(context.Background(), trader)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSingleTradeClearingPolicyPropagatesFetchError(t *testing.T) {
	trader := market.TraderID{0x04}
	p := NewSingleTradeClearingPolicy(fakeFetcher{err: errors.New("network down")})
	ok, err := p.ShouldTrade(context.Background(), trader)
	require.Error(t, err)
	require.False(t, ok)
}
