package trader

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
	"github.com/anydex/anydex/internal/wallet"
	"github.com/anydex/anydex/internal/wallet/memwallet"
	ourcrypto "github.com/anydex/anydex/pkg/crypto"
)

// testIdentity bundles a keypair with the TraderID it derives, so tests can
// both address orders to it and sign them.
type testIdentity struct {
	signer *ourcrypto.Signer
	id     market.TraderID
}

func newTestIdentity(t *testing.T) testIdentity {
	t.Helper()
	signer, err := ourcrypto.GenerateKey()
	require.NoError(t, err)
	return testIdentity{signer: signer, id: market.TraderIDFromAddress(signer.Address())}
}

func (ti testIdentity) signedOrder(t *testing.T, isAsk bool, firstAsset string, firstAmount int64, secondAsset string, secondAmount, timeoutSec int64) restapi.OrderRequest {
	t.Helper()
	req := restapi.OrderRequest{
		Trader: ti.id.String(), IsAsk: isAsk,
		FirstAsset: firstAsset, FirstAmount: firstAmount,
		SecondAsset: secondAsset, SecondAmount: secondAmount,
		TimeoutSec: timeoutSec,
	}
	require.NoError(t, req.Sign(ti.signer))
	return req
}

func newTestTrader(t *testing.T, id market.TraderID, wallets map[string]wallet.Adapter) (*Trader, *p2p.Network) {
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

	tr, err := New(id, cfg, store, net, directory.New(), wallets, clearing.AlwaysTrade{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	return tr, net
}

func connectHosts(t *testing.T, a, b *p2p.Network) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Host().Connect(ctx, peer.AddrInfo{ID: b.Host().ID(), Addrs: b.Host().Addrs()})
	require.NoError(t, err)
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

// TestTraderSubmitAndCancelOrder exercises the single-node path: a signed
// order submitted through the REST-facing Engine surface lands in the book,
// and cancelling it removes the tick again.
func TestTraderSubmitAndCancelOrder(t *testing.T) {
	alice := newTestIdentity(t)
	tr, _ := newTestTrader(t, alice.id, nil)
	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	orderID, err := tr.SubmitOrder(alice.signedOrder(t, true, "BTC", 10, "USD", 100, 60))
	require.NoError(t, err)
	require.Equal(t, alice.id, orderID.TraderID)

	book, ok := tr.Orderbook("BTC/USD")
	require.True(t, ok)
	require.True(t, book.TickExists(orderID))

	require.NoError(t, tr.CancelOrder(alice.id, orderID))
	require.False(t, book.TickExists(orderID))
}

// TestTraderSubmitRejectsForeignTrader ensures a node only accepts orders
// for the single local identity it was constructed for.
func TestTraderSubmitRejectsForeignTrader(t *testing.T) {
	alice := newTestIdentity(t)
	mallory := newTestIdentity(t)
	tr, _ := newTestTrader(t, alice.id, nil)
	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	_, err := tr.SubmitOrder(mallory.signedOrder(t, true, "BTC", 10, "USD", 100, 60))
	require.Error(t, err)
}

// TestTraderSubmitRejectsForgedSignature ensures a request claiming to be
// from a trader it wasn't actually signed by is rejected even when the
// claimed trader matches the node's own identity.
func TestTraderSubmitRejectsForgedSignature(t *testing.T) {
	alice := newTestIdentity(t)
	mallory := newTestIdentity(t)
	tr, _ := newTestTrader(t, alice.id, nil)
	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	forged := mallory.signedOrder(t, true, "BTC", 10, "USD", 100, 60)
	forged.Trader = alice.id.String() // claim Alice's identity, keep Mallory's signature

	_, err := tr.SubmitOrder(forged)
	require.Error(t, err)
}

// TestTraderSubmitRejectsInsufficientFunds checks a configured wallet
// adapter actually gates order submission.
func TestTraderSubmitRejectsInsufficientFunds(t *testing.T) {
	alice := newTestIdentity(t)
	btcWallet := memwallet.New("BTC", "addr-1", 5)
	tr, _ := newTestTrader(t, alice.id, map[string]wallet.Adapter{"BTC": btcWallet})
	ctx := context.Background()
	tr.Start(ctx)
	defer tr.Stop()

	_, err := tr.SubmitOrder(alice.signedOrder(t, true, "BTC", 10, "USD", 100, 60))
	require.Error(t, err)
}

// TestTraderEndToEndMatch connects two nodes over real libp2p streams and
// gossipsub topics, each trading for a distinct identity, and drives a full
// propose -> start -> settle round trip: node A asks 10 BTC for 100 USD,
// node B syncs the order over gossip, submits a crossing bid, and both
// sides should end up with a saved transaction and a completed order.
func TestTraderEndToEndMatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libp2p round trip in short mode")
	}

	alice := newTestIdentity(t)
	bob := newTestIdentity(t)

	walletsA := map[string]wallet.Adapter{
		"BTC": memwallet.New("BTC", "addr-a-btc", 10),
		"USD": memwallet.New("USD", "addr-a-usd", 0),
	}
	walletsB := map[string]wallet.Adapter{
		"BTC": memwallet.New("BTC", "addr-b-btc", 0),
		"USD": memwallet.New("USD", "addr-b-usd", 100),
	}

	trA, netA := newTestTrader(t, alice.id, walletsA)
	trB, netB := newTestTrader(t, bob.id, walletsB)

	trA.dir.Update(bob.id, netB.Host().ID())
	trB.dir.Update(alice.id, netA.Host().ID())

	connectHosts(t, netA, netB)

	ctx := context.Background()
	trA.Start(ctx)
	defer trA.Stop()
	trB.Start(ctx)
	defer trB.Stop()

	_, err := trA.SubmitOrder(alice.signedOrder(t, true, "BTC", 10, "USD", 100, 300))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool {
		book, ok := trB.Orderbook("BTC/USD")
		return ok && len(book.GetOrderIDs()) == 1
	})

	bidID, err := trB.SubmitOrder(bob.signedOrder(t, false, "BTC", 10, "USD", 100, 300))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool {
		txns, err := trB.TradesByTrader(bob.id)
		return err == nil && len(txns) == 1
	})

	txns, err := trB.TradesByTrader(bob.id)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, int64(10), txns[0].Pair.First.Amount)

	var recipient *market.Order
	trB.do(func() { recipient = trB.localOrders[bidID] })
	require.NotNil(t, recipient)
	require.True(t, recipient.IsComplete())
}
