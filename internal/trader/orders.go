package trader

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/matchcache"
	"github.com/anydex/anydex/internal/negotiation"
	"github.com/anydex/anydex/internal/orderbook"
	"github.com/anydex/anydex/internal/restapi"
	"github.com/anydex/anydex/internal/wire"
)

var _ restapi.Engine = (*Trader)(nil)

// Pairs lists every asset pair a book has been opened for.
func (tr *Trader) Pairs() []string {
	tr.booksMu.RLock()
	defer tr.booksMu.RUnlock()
	out := make([]string, 0, len(tr.books))
	for k := range tr.books {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Orderbook returns the live book for pairKey. Callers must treat the
// returned book as read-only and short-lived: the RLock taken here is
// released before the caller walks it, so a concurrent trade on the loop
// goroutine can interleave with a long-running Walk. This is an accepted
// simplification — the teacher's own REST layer has the same single-writer,
// best-effort-reader shape for in-memory state.
func (tr *Trader) Orderbook(pairKey string) (*orderbook.Book, bool) {
	tr.booksMu.RLock()
	defer tr.booksMu.RUnlock()
	b, ok := tr.books[pairKey]
	return b, ok
}

// SubmitOrder validates and inserts a new local order, then runs the
// matching sweep against the current book.
func (tr *Trader) SubmitOrder(req restapi.OrderRequest) (market.OrderID, error) {
	var id market.OrderID
	var outErr error
	tr.do(func() {
		id, outErr = tr.submitOrderLocked(req)
	})
	return id, outErr
}

func (tr *Trader) submitOrderLocked(req restapi.OrderRequest) (market.OrderID, error) {
	trader, err := market.TraderIDFromHex(req.Trader)
	if err != nil {
		return market.OrderID{}, fmt.Errorf("trader: invalid trader id: %w", err)
	}
	if trader != tr.id {
		return market.OrderID{}, fmt.Errorf("trader: node only accepts orders for its own identity")
	}
	if err := req.VerifySignature(); err != nil {
		return market.OrderID{}, err
	}
	pair, err := market.NewAssetPair(
		market.AssetAmount{Amount: req.FirstAmount, AssetID: req.FirstAsset},
		market.AssetAmount{Amount: req.SecondAmount, AssetID: req.SecondAsset},
	)
	if err != nil {
		return market.OrderID{}, err
	}

	if err := tr.checkFunds(req.IsAsk, pair); err != nil {
		return market.OrderID{}, err
	}

	num, err := tr.store.NextOrderNumber(trader)
	if err != nil {
		return market.OrderID{}, err
	}
	id := market.OrderID{TraderID: trader, OrderNumber: num}
	order := market.NewOrder(id, req.IsAsk, pair, time.Duration(req.TimeoutSec)*time.Second, time.Now())
	order.Verify()

	tr.localOrders[id] = order
	pk := pairKeyFor(pair)
	if tr.ownByPair[pk] == nil {
		tr.ownByPair[pk] = make(map[market.OrderID]bool)
	}
	tr.ownByPair[pk][id] = true

	tick := &orderbook.Tick{OrderID: id, IsAsk: order.IsAsk, Pair: order.Pair, Timestamp: order.Timestamp, Timeout: order.Timeout}
	tr.withBooksWrite(func() {
		_ = tr.bookFor(pk).ApplyTick(tick)
	})
	tr.persistOrder(order)

	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()
	if err := tr.net.BroadcastOrder(ctx, wire.NewOrderWire(id, order.IsAsk, order.Pair, order.Timestamp, order.Timeout)); err != nil && tr.log != nil {
		tr.log.Warnw("broadcast_order_failed", "order", id.String(), "err", err)
	}

	tr.matchOrder(order)
	return id, nil
}

// checkFunds verifies the trader's wallet for the asset it would give up
// (First if ask, Second if bid) holds at least the order's quantity. A
// missing wallet adapter is treated as unconfigured rather than a
// rejection, since not every asset in the examples needs a live adapter to
// exercise the matching/negotiation path in tests.
func (tr *Trader) checkFunds(isAsk bool, pair market.AssetPair) error {
	given := pair.First
	if !isAsk {
		given = pair.Second
	}
	adapter, ok := tr.wallets[given.AssetID]
	if !ok {
		return nil
	}
	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()
	balance, err := adapter.Balance(ctx)
	if err != nil {
		return fmt.Errorf("trader: checking balance for %s: %w", given.AssetID, err)
	}
	if balance.Amount < given.Amount {
		return fmt.Errorf("trader: insufficient %s balance: have %d, need %d", given.AssetID, balance.Amount, given.Amount)
	}
	return nil
}

// CancelOrder withdraws a local order, updates the book, and gossips the
// cancellation.
func (tr *Trader) CancelOrder(trader market.TraderID, id market.OrderID) error {
	var outErr error
	tr.do(func() {
		outErr = tr.cancelOrderLocked(trader, id)
	})
	return outErr
}

func (tr *Trader) cancelOrderLocked(trader market.TraderID, id market.OrderID) error {
	if trader != id.TraderID {
		return fmt.Errorf("trader: order id does not belong to trader")
	}
	order, ok := tr.localOrders[id]
	if !ok {
		return fmt.Errorf("trader: unknown local order %s", id.String())
	}
	order.Cancel()
	tr.withBooksWrite(func() {
		tr.bookFor(pairKeyFor(order.Pair)).CancelOrder(id, order.IsAsk)
	})
	tr.persistOrder(order)

	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()
	if err := tr.net.BroadcastCancelOrder(ctx, wire.CancelOrderWire{OrderID: id.Bytes()}); err != nil && tr.log != nil {
		tr.log.Warnw("broadcast_cancel_failed", "order", id.String(), "err", err)
	}
	return nil
}

// OrdersByTrader reads every order snapshot a trader has ever submitted
// directly from storage, bypassing the loop since Store is safe for
// concurrent reads.
func (tr *Trader) OrdersByTrader(trader market.TraderID) ([]market.OrderSnapshot, error) {
	return tr.store.FindOrdersByTrader(trader)
}

// TradesByTrader returns every settled/settling transaction touching any
// order the trader has created.
func (tr *Trader) TradesByTrader(trader market.TraderID) ([]negotiation.Transaction, error) {
	orders, err := tr.store.FindOrdersByTrader(trader)
	if err != nil {
		return nil, err
	}
	seen := make(map[negotiation.TransactionID]bool)
	var out []negotiation.Transaction
	for _, snap := range orders {
		txns, err := tr.store.FindTransactionsByOrder(snap.OrderID)
		if err != nil {
			continue
		}
		for _, txn := range txns {
			if seen[txn.TransactionID] {
				continue
			}
			seen[txn.TransactionID] = true
			out = append(out, txn)
		}
	}
	return out, nil
}

// cacheFor returns order's MatchCache, creating it on first use.
func (tr *Trader) cacheFor(orderID market.OrderID, isAsk bool) *matchcache.MatchCache {
	cache, ok := tr.caches[orderID]
	if !ok {
		cache = matchcache.NewMatchCache(orderID, isAsk, tr.cfg.Matching.MatchWindow, tr.cfg.Matching.MatchProcessBatchSize, maxMatchRetries)
		tr.caches[orderID] = cache
	}
	return cache
}

// purgeFromCaches drops any queued/outstanding candidate for counterparty
// across every local order's MatchCache, used once a remote order is known
// terminal (cancelled, or completed against a different counterparty)
// through a channel other than that order's own decline/timeout path.
func (tr *Trader) purgeFromCaches(counterparty market.OrderID) {
	for _, cache := range tr.caches {
		cache.RemoveOrder(counterparty)
	}
}

// armFlush arms (or fires immediately, if coalescing is disabled) the next
// Flush for orderID, per MatchCache.AddMatch's "caller arms a one-shot
// timer" contract.
func (tr *Trader) armFlush(orderID market.OrderID) {
	if tr.cfg.Matching.MatchWindow <= 0 {
		tr.flushCache(orderID)
		return
	}
	time.AfterFunc(tr.cfg.Matching.MatchWindow, func() {
		tr.enqueue(func() { tr.flushCache(orderID) })
	})
}

// matchOrder runs the matching engine for a single local order against its
// own book scan and feeds any candidates into its MatchCache, arming a
// coalescing flush per MatchCache.AddMatch's contract. These candidates were
// found by the order's own trader, not introduced by a remote matchmaker.
func (tr *Trader) matchOrder(order *market.Order) {
	if order == nil || order.Available() <= 0 {
		return
	}
	pk := pairKeyFor(order.Pair)
	incoming := orderbook.IncomingOrder{
		OrderID:           order.OrderID,
		IsAsk:             order.IsAsk,
		Pair:              order.Pair,
		AvailableQuantity: order.Available(),
	}

	tr.booksMu.RLock()
	book := tr.bookFor(pk)
	candidates, err := tr.match.Match(book, incoming)
	tr.booksMu.RUnlock()
	if err != nil {
		if tr.log != nil {
			tr.log.Warnw("match_failed", "order", order.OrderID.String(), "err", err)
		}
		return
	}
	if len(candidates) == 0 {
		return
	}

	cache := tr.cacheFor(order.OrderID, order.IsAsk)
	needsFlush := false
	for _, c := range candidates {
		price, err := c.Entry.Tick.Price()
		if err != nil {
			continue
		}
		if cache.AddMatch(c.Entry.Tick.OrderID, c.Quantity, price) {
			needsFlush = true
		}
	}
	if !needsFlush {
		return
	}
	tr.armFlush(order.OrderID)
}

// matchAllLocalOrders re-runs matchOrder for every local order resting on
// pairKey, used for first_matches_own_orders.
func (tr *Trader) matchAllLocalOrders(pairKey string) {
	for id := range tr.ownByPair[pairKey] {
		tr.matchOrder(tr.localOrders[id])
	}
}

// matchLocalOrdersAgainstTick re-runs matchOrder for every local order on
// the side opposite the just-arrived tick, the default (non
// first_matches_own_orders) behavior.
func (tr *Trader) matchLocalOrdersAgainstTick(pairKey string, tickIsAsk bool) {
	for id, order := range tr.localOrders {
		if order.IsAsk == tickIsAsk {
			continue
		}
		if _, ours := tr.ownByPair[pairKey][id]; !ours {
			continue
		}
		tr.matchOrder(order)
	}
}

// flushCache drains cache's ready batch and dispatches a ProposeTrade to
// each counterparty.
func (tr *Trader) flushCache(orderID market.OrderID) {
	cache, ok := tr.caches[orderID]
	if !ok {
		return
	}
	order, ok := tr.localOrders[orderID]
	if !ok {
		return
	}
	for _, req := range cache.Flush(time.Now()) {
		tr.sendProposal(order, cache, req)
	}
}

// sendProposal dispatches a ProposeTrade for req. If the counterparty's
// peer cannot be found in the directory at all, this is fed back to the
// cache as a decline with ReasonAddressLookupFail (re-queued with one more
// retry, up to the cache's retry limit) so the cache's bookkeeping doesn't
// go stale waiting for a reply that will never arrive.
func (tr *Trader) sendProposal(local *market.Order, cache *matchcache.MatchCache, req matchcache.OutstandingRequest) {
	pair, err := proposalPair(local, req.Quantity, req.Price)
	if err != nil {
		if tr.log != nil {
			tr.log.Warnw("proposal_pair_failed", "order", local.OrderID.String(), "err", err)
		}
		return
	}

	peerID, err := tr.dir.MustLookup(req.Counterparty.TraderID)
	if err != nil {
		if tr.log != nil {
			tr.log.Warnw("proposal_peer_unknown", "counterparty", req.Counterparty.String(), "err", err)
		}
		cache.ReceivedDecline(req.Counterparty, negotiation.ReasonAddressLookupFail)
		return
	}

	msg := negotiation.ProposeTrade{
		ProposalID:      req.ProposalID,
		Proposer:        local.OrderID,
		Recipient:       req.Counterparty,
		Pair:            pair,
		Timestamp:       time.Now(),
		ProposerAddress: tr.settleAddress(pair.Second.AssetID),
	}
	tr.pendingProposals[req.ProposalID] = local.OrderID

	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()
	if err := tr.net.SendProposeTrade(ctx, peerID, wire.NewProposeTradeWire(msg)); err != nil && tr.log != nil {
		tr.log.Warnw("send_propose_failed", "counterparty", req.Counterparty.String(), "err", err)
	}
}

// proposalPair builds the AssetPair a proposal should offer: quantity
// units of local's own First asset, at the given matched price.
func proposalPair(local *market.Order, quantity int64, price market.Price) (market.AssetPair, error) {
	secondAmount := decimal.NewFromInt(quantity).Mul(price.Value).Floor().IntPart()
	return market.NewAssetPair(
		market.AssetAmount{Amount: quantity, AssetID: local.Pair.First.AssetID},
		market.AssetAmount{Amount: secondAmount, AssetID: local.Pair.Second.AssetID},
	)
}
