// Package tests drives whole trading nodes end to end over real libp2p
// connections, black-box through the same surface a REST client or another
// peer would see, the way the teacher's tests package exercises its
// consensus engine through mock stores rather than internals.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anydex/anydex/internal/config"
	"github.com/anydex/anydex/internal/directory"
	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation/clearing"
	"github.com/anydex/anydex/internal/p2p"
	"github.com/anydex/anydex/internal/restapi"
	"github.com/anydex/anydex/internal/storage"
	"github.com/anydex/anydex/internal/trader"
	"github.com/anydex/anydex/internal/wallet"
	ourcrypto "github.com/anydex/anydex/pkg/crypto"
)

// identity bundles a keypair with the TraderID it derives.
type identity struct {
	signer *ourcrypto.Signer
	id     market.TraderID
}

func newIdentity(t *testing.T) identity {
	t.Helper()
	signer, err := ourcrypto.GenerateKey()
	require.NoError(t, err)
	return identity{signer: signer, id: market.TraderIDFromAddress(signer.Address())}
}

func (id identity) order(t *testing.T, isAsk bool, firstAsset string, firstAmount int64, secondAsset string, secondAmount, timeoutSec int64) restapi.OrderRequest {
	t.Helper()
	req := restapi.OrderRequest{
		Trader: id.id.String(), IsAsk: isAsk,
		FirstAsset: firstAsset, FirstAmount: firstAmount,
		SecondAsset: secondAsset, SecondAmount: secondAmount,
		TimeoutSec: timeoutSec,
	}
	require.NoError(t, req.Sign(id.signer))
	return req
}

// node is one full trading peer: its identity, its Trader, and the raw
// libp2p network underneath it.
type node struct {
	id  identity
	tr  *trader.Trader
	net *p2p.Network
	dir *directory.Directory
}

// newNode builds a node with its own storage, host, and directory. wallets
// may be nil for nodes that never settle (e.g. a pure matchmaker).
func newNode(t *testing.T, id identity, wallets map[string]wallet.Adapter) *node {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	net, err := p2p.New(ctx, p2p.Config{ListenAddr: "/ip4/127.0.0.1/tcp/0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = net.Host().Close() })

	cfg := config.Default()
	cfg.Matching.MatchWindow = 0
	cfg.Sync.SyncPolicy = config.SyncNone

	dir := directory.New()
	tr, err := trader.New(id.id, cfg, store, net, dir, wallets, clearing.AlwaysTrade{}, zap.NewNop().Sugar())
	require.NoError(t, err)

	return &node{id: id, tr: tr, net: net, dir: dir}
}

// mesh fully connects every node to every other node and teaches each
// node's directory how to reach every other trader id, mirroring what a
// real deployment's bootstrap/discovery step would establish first.
func mesh(t *testing.T, nodes ...*node) {
	t.Helper()
	for i, a := range nodes {
		for j, b := range nodes {
			if i == j {
				continue
			}
			a.dir.Update(b.id.id, b.net.Host().ID())
			connect(t, a.net, b.net)
		}
	}
}

func connect(t *testing.T, a, b *p2p.Network) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Host().Connect(ctx, peer.AddrInfo{ID: b.Host().ID(), Addrs: b.Host().Addrs()})
}

func startAll(t *testing.T, nodes ...*node) {
	t.Helper()
	ctx := context.Background()
	for _, n := range nodes {
		n.tr.Start(ctx)
		tr := n.tr
		t.Cleanup(func() { _ = tr.Stop() })
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func tickCount(t *testing.T, n *node, pairKey string) int {
	t.Helper()
	book, ok := n.tr.Orderbook(pairKey)
	if !ok {
		return 0
	}
	return len(book.GetOrderIDs())
}

func orderStatus(t *testing.T, n *node, who market.TraderID, id market.OrderID) (market.Status, bool) {
	t.Helper()
	snaps, err := n.tr.OrdersByTrader(who)
	require.NoError(t, err)
	for _, s := range snaps {
		if s.OrderID == id {
			return s.Status, true
		}
	}
	return 0, false
}

func wallets(pairs ...wallet.Adapter) map[string]wallet.Adapter {
	out := make(map[string]wallet.Adapter, len(pairs))
	for _, a := range pairs {
		out[a.AssetID()] = a
	}
	return out
}
