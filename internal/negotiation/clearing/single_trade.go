package clearing

import (
	"context"
	"fmt"
	"sync"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/provenance"
)

// ChainFetcher resolves and retrieves a counterparty's provenance chain,
// standing in for the original implementation's TrustChain crawl over the
// network (contract-only collaborator per spec.md §1).
type ChainFetcher interface {
	FetchChain(ctx context.Context, trader market.TraderID) (*provenance.Chain, error)
}

// SingleTradeClearingPolicy limits a counterparty to a single outstanding
// trade at once, by inspecting its provenance chain for any transaction
// that is still open (initiated or paid but not done).
type SingleTradeClearingPolicy struct {
	fetcher ChainFetcher

	mu              sync.Mutex
	currentlyCrawling map[market.TraderID]bool
}

// NewSingleTradeClearingPolicy builds a policy that fetches chains via fetcher.
func NewSingleTradeClearingPolicy(fetcher ChainFetcher) *SingleTradeClearingPolicy {
	return &SingleTradeClearingPolicy{
		fetcher:           fetcher,
		currentlyCrawling: make(map[market.TraderID]bool),
	}
}

// ShouldTrade crawls trader's chain and refuses to trade if any of its
// transactions are still open, or if a crawl of this same trader is
// already in progress for a different proposed order (refusing to trade
// for this one too, same as the original implementation).
func (p *SingleTradeClearingPolicy) ShouldTrade(ctx context.Context, trader market.TraderID) (bool, error) {
	p.mu.Lock()
	if p.currentlyCrawling[trader] {
		p.mu.Unlock()
		return false, nil
	}
	p.currentlyCrawling[trader] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.currentlyCrawling, trader)
		p.mu.Unlock()
	}()

	chain, err := p.fetcher.FetchChain(ctx, trader)
	if err != nil {
		return false, fmt.Errorf("clearing: fetching chain for %s: %w", trader, err)
	}
	if chain == nil {
		return false, nil
	}
	if err := chain.Verify(); err != nil {
		return false, fmt.Errorf("clearing: invalid chain for %s: %w", trader, err)
	}
	return len(chain.OpenTransactions()) == 0, nil
}

var _ Policy = (*SingleTradeClearingPolicy)(nil)
