package tests

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/wallet/memwallet"
)

// Each scenario below plays out over three real libp2p nodes: A and C hold
// the local orders, B holds neither and exists purely to relay ticks and
// act as matchmaker, the way a long-lived neighbour node would in a real
// deployment. mesh connects every pair of nodes (A-C included) and
// pre-populates each node's directory, so gossipsub carries a tick from
// one side to the other.

// TestScenarioS1MatchAndFullySettle: A asks 10 DUM1 for 10 DUM2, C bids the
// same; B introduces both sides as a match. Expect both transactions to
// complete and both ticks to clear from B's book.
func TestScenarioS1MatchAndFullySettle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libp2p scenario in short mode")
	}
	a, b, c := newIdentity(t), newIdentity(t), newIdentity(t)

	nodeA := newNode(t, a, wallets(
		memwallet.New("DUM1", "addr-a-dum1", 10),
		memwallet.New("DUM2", "addr-a-dum2", 0),
	))
	nodeB := newNode(t, b, nil)
	nodeC := newNode(t, c, wallets(
		memwallet.New("DUM1", "addr-c-dum1", 0),
		memwallet.New("DUM2", "addr-c-dum2", 10),
	))
	mesh(t, nodeA, nodeB, nodeC)
	startAll(t, nodeA, nodeB, nodeC)

	askID, err := nodeA.tr.SubmitOrder(a.order(t, true, "DUM1", 10, "DUM2", 10, 3600))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool { return tickCount(t, nodeB, "DUM1/DUM2") == 1 })

	bidID, err := nodeC.tr.SubmitOrder(c.order(t, false, "DUM1", 10, "DUM2", 10, 3600))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool {
		st, ok := orderStatus(t, nodeA, a.id, askID)
		return ok && st == market.StatusCompleted
	})
	waitFor(t, 5*time.Second, func() bool {
		st, ok := orderStatus(t, nodeC, c.id, bidID)
		return ok && st == market.StatusCompleted
	})

	txns, err := nodeA.tr.TradesByTrader(a.id)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, int64(10), txns[0].Pair.First.Amount)
	require.Equal(t, int64(10), txns[0].Pair.Second.Amount)

	waitFor(t, 5*time.Second, func() bool { return tickCount(t, nodeB, "DUM1/DUM2") == 0 })
}

// TestScenarioS2PartialFill: A asks 10 for 10, C bids only 2; the trade
// downscales, A stays open with 8 left, and a second bid for the remainder
// closes A out.
func TestScenarioS2PartialFill(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libp2p scenario in short mode")
	}
	a, b, c := newIdentity(t), newIdentity(t), newIdentity(t)

	nodeA := newNode(t, a, wallets(
		memwallet.New("DUM1", "addr-a-dum1", 10),
		memwallet.New("DUM2", "addr-a-dum2", 0),
	))
	nodeB := newNode(t, b, nil)
	nodeC := newNode(t, c, wallets(
		memwallet.New("DUM1", "addr-c-dum1", 0),
		memwallet.New("DUM2", "addr-c-dum2", 10),
	))
	mesh(t, nodeA, nodeB, nodeC)
	startAll(t, nodeA, nodeB, nodeC)

	askID, err := nodeA.tr.SubmitOrder(a.order(t, true, "DUM1", 10, "DUM2", 10, 3600))
	require.NoError(t, err)
	waitFor(t, 5*time.Second, func() bool { return tickCount(t, nodeB, "DUM1/DUM2") == 1 })

	_, err = nodeC.tr.SubmitOrder(c.order(t, false, "DUM1", 2, "DUM2", 2, 3600))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool {
		txns, err := nodeA.tr.TradesByTrader(a.id)
		return err == nil && len(txns) == 1
	})

	waitFor(t, 5*time.Second, func() bool {
		snaps, err := nodeA.tr.OrdersByTrader(a.id)
		if err != nil {
			return false
		}
		for _, s := range snaps {
			if s.OrderID == askID {
				return s.Traded == 2 && s.Status == market.StatusOpen
			}
		}
		return false
	})

	second := newIdentity(t)
	nodeD := newNode(t, second, wallets(
		memwallet.New("DUM1", "addr-d-dum1", 0),
		memwallet.New("DUM2", "addr-d-dum2", 8),
	))
	mesh(t, nodeA, nodeD)
	mesh(t, nodeB, nodeD)
	startAll(t, nodeD)

	_, err = nodeD.tr.SubmitOrder(second.order(t, false, "DUM1", 8, "DUM2", 8, 3600))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool {
		st, ok := orderStatus(t, nodeA, a.id, askID)
		return ok && st == market.StatusCompleted
	})
}

// TestScenarioS3DeclineCompletedOrder: A's order completes through an
// earlier trade before B's Match for a new counterparty reaches it. A must
// decline the stale introduction so B drops the tick instead of retrying a
// dead order.
func TestScenarioS3DeclineCompletedOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libp2p scenario in short mode")
	}
	a, b, c, d := newIdentity(t), newIdentity(t), newIdentity(t), newIdentity(t)

	nodeA := newNode(t, a, wallets(
		memwallet.New("DUM1", "addr-a-dum1", 1),
		memwallet.New("DUM2", "addr-a-dum2", 0),
	))
	nodeB := newNode(t, b, nil)
	nodeC := newNode(t, c, wallets(
		memwallet.New("DUM1", "addr-c-dum1", 0),
		memwallet.New("DUM2", "addr-c-dum2", 1),
	))
	nodeD := newNode(t, d, wallets(
		memwallet.New("DUM1", "addr-d-dum1", 0),
		memwallet.New("DUM2", "addr-d-dum2", 1),
	))
	mesh(t, nodeA, nodeB, nodeC, nodeD)
	startAll(t, nodeA, nodeB, nodeC, nodeD)

	askID, err := nodeA.tr.SubmitOrder(a.order(t, true, "DUM1", 1, "DUM2", 1, 3600))
	require.NoError(t, err)
	waitFor(t, 5*time.Second, func() bool { return tickCount(t, nodeB, "DUM1/DUM2") == 1 })

	// D trades the ask to completion first, so by the time C's bid
	// reaches B the introduction B sends A describes a dead order.
	_, err = nodeD.tr.SubmitOrder(d.order(t, false, "DUM1", 1, "DUM2", 1, 3600))
	require.NoError(t, err)
	waitFor(t, 5*time.Second, func() bool {
		st, ok := orderStatus(t, nodeA, a.id, askID)
		return ok && st == market.StatusCompleted
	})

	bidID, err := nodeC.tr.SubmitOrder(c.order(t, false, "DUM1", 1, "DUM2", 1, 3600))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool { return tickCount(t, nodeB, "DUM1/DUM2") == 0 })

	// C's bid never had anything left to trade against: whether B's tick for
	// A was already gone or A declined a stale Match just now, C's own
	// order must still be sitting open rather than having traded twice.
	st, ok := orderStatus(t, nodeC, c.id, bidID)
	require.True(t, ok)
	require.Equal(t, market.StatusOpen, st)
}

// TestScenarioS4CancelRace: A posts then immediately cancels before C's
// crossing bid arrives. No transaction must be created and B's book ends
// empty.
func TestScenarioS4CancelRace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libp2p scenario in short mode")
	}
	a, b, c := newIdentity(t), newIdentity(t), newIdentity(t)

	nodeA := newNode(t, a, wallets(memwallet.New("DUM1", "addr-a-dum1", 2)))
	nodeB := newNode(t, b, nil)
	nodeC := newNode(t, c, wallets(memwallet.New("DUM2", "addr-c-dum2", 2)))
	mesh(t, nodeA, nodeB, nodeC)
	startAll(t, nodeA, nodeB, nodeC)

	askID, err := nodeA.tr.SubmitOrder(a.order(t, true, "DUM1", 2, "DUM2", 2, 3600))
	require.NoError(t, err)
	require.NoError(t, nodeA.tr.CancelOrder(a.id, askID))

	_, err = nodeC.tr.SubmitOrder(c.order(t, false, "DUM1", 2, "DUM2", 2, 3600))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool { return tickCount(t, nodeB, "DUM1/DUM2") == 0 })

	txns, err := nodeA.tr.TradesByTrader(a.id)
	require.NoError(t, err)
	require.Empty(t, txns)
}

// TestScenarioS5CrossedProposals: A (bid) and C (ask) cross on the same
// quantity and each dispatches a proposal to the other at roughly the same
// time. Exactly one transaction should land on each side rather than two.
func TestScenarioS5CrossedProposals(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping libp2p scenario in short mode")
	}
	a, c := newIdentity(t), newIdentity(t)

	nodeA := newNode(t, a, wallets(
		memwallet.New("DUM1", "addr-a-dum1", 0),
		memwallet.New("DUM2", "addr-a-dum2", 1),
	))
	nodeC := newNode(t, c, wallets(
		memwallet.New("DUM1", "addr-c-dum1", 1),
		memwallet.New("DUM2", "addr-c-dum2", 0),
	))
	mesh(t, nodeA, nodeC)
	startAll(t, nodeA, nodeC)

	// Submit both sides concurrently so each discovers the other as a fresh
	// incoming tick and proposes independently, rather than one resting
	// quietly before the other ever shows up.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := nodeA.tr.SubmitOrder(a.order(t, false, "DUM1", 1, "DUM2", 1, 3600))
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := nodeC.tr.SubmitOrder(c.order(t, true, "DUM1", 1, "DUM2", 1, 3600))
		require.NoError(t, err)
	}()
	wg.Wait()

	waitFor(t, 5*time.Second, func() bool {
		txns, err := nodeA.tr.TradesByTrader(a.id)
		return err == nil && len(txns) == 1
	})
	waitFor(t, 5*time.Second, func() bool {
		txns, err := nodeC.tr.TradesByTrader(c.id)
		return err == nil && len(txns) == 1
	})

	txnsA, err := nodeA.tr.TradesByTrader(a.id)
	require.NoError(t, err)
	require.Len(t, txnsA, 1)
	txnsC, err := nodeC.tr.TradesByTrader(c.id)
	require.NoError(t, err)
	require.Len(t, txnsC, 1)
}
