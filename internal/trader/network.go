package trader

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/anydex/anydex/internal/config"
	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/orderbook"
	"github.com/anydex/anydex/internal/p2p"
	"github.com/anydex/anydex/internal/wire"
)

func (tr *Trader) onOrder(_ context.Context, w wire.OrderWire, from peer.ID) {
	tr.enqueue(func() { tr.handleInboundOrder(w, from) })
}

func (tr *Trader) onCancelOrder(_ context.Context, w wire.CancelOrderWire, from peer.ID) {
	tr.enqueue(func() { tr.handleInboundCancel(w) })
}

func (tr *Trader) onCompletedTrade(_ context.Context, w wire.CompletedTradeWire, from peer.ID) {
	tr.enqueue(func() { tr.handleInboundCompleted(w) })
}

func (tr *Trader) onPing(_ context.Context, w wire.PingWire, _ peer.ID) wire.PongWire {
	return wire.PongWire{Nonce: w.Nonce}
}

// onOrderbookSync answers a peer's sync request. It runs the actual book
// scan on the loop goroutine (via do) so BuildSyncResponse never observes a
// book mid-mutation, then returns the result to the blocked stream handler.
func (tr *Trader) onOrderbookSync(_ context.Context, req wire.OrderbookSyncRequestWire, _ peer.ID) wire.OrderbookSyncResponseWire {
	var resp wire.OrderbookSyncResponseWire
	tr.do(func() {
		tr.booksMu.RLock()
		defer tr.booksMu.RUnlock()
		for _, book := range tr.books {
			remaining := tr.cfg.Sync.NumOrderSync - len(resp.Orders)
			if remaining <= 0 {
				break
			}
			part, err := p2p.BuildSyncResponse(book, req, remaining)
			if err != nil {
				continue
			}
			resp.Orders = append(resp.Orders, part.Orders...)
		}
	})
	return resp
}

func (tr *Trader) handleInboundOrder(w wire.OrderWire, from peer.ID) {
	id, err := w.OrderIDValue()
	if err != nil || id.TraderID == tr.id {
		return
	}
	pair, err := w.Pair()
	if err != nil {
		return
	}
	tr.dir.Update(id.TraderID, from)

	pk := pairKeyFor(pair)
	tick := &orderbook.Tick{OrderID: id, IsAsk: w.IsAsk, Pair: pair, Timestamp: w.TimestampValue(), Timeout: w.TimeoutValue()}
	tr.withBooksWrite(func() {
		_ = tr.bookFor(pk).ApplyTick(tick)
	})
	tr.remoteIndex[id] = remoteLoc{pairKey: pk, isAsk: w.IsAsk}

	if tr.cfg.Matching.FirstMatchesOwnOrders {
		tr.matchAllLocalOrders(pk)
	} else {
		tr.matchLocalOrdersAgainstTick(pk, w.IsAsk)
	}
	tr.runMatchmaking(pk, id, w.IsAsk)
}

func (tr *Trader) handleInboundCancel(w wire.CancelOrderWire) {
	id, err := market.OrderIDFromBytes(w.OrderID)
	if err != nil || id.TraderID == tr.id {
		return
	}
	loc, ok := tr.remoteIndex[id]
	if !ok {
		return
	}
	tr.withBooksWrite(func() {
		tr.bookFor(loc.pairKey).CancelOrder(id, loc.isAsk)
	})
	delete(tr.remoteIndex, id)
	tr.purgeFromCaches(id)
}

func (tr *Trader) handleInboundCompleted(w wire.CompletedTradeWire) {
	id, err := market.OrderIDFromBytes(w.OrderID)
	if err != nil {
		return
	}
	if loc, ok := tr.remoteIndex[id]; ok {
		tr.withBooksWrite(func() {
			_ = tr.bookFor(loc.pairKey).UpdateTick(id, loc.isAsk, w.TradedAmount)
		})
		tr.purgeFromCaches(id)
	}

	// id just confirmed its own settlement completed; if id is the
	// counterparty of one of our own local orders, that is the only signal
	// we get that the leg it owed us has landed.
	counterparty, err := market.OrderIDFromBytes(w.Counterparty)
	if err != nil {
		return
	}
	if local, ok := tr.localOrders[counterparty]; ok {
		tr.recordCounterpartyLeg(local, id)
	}
}

// pruneLoop periodically expires ticks (and any local order behind them)
// whose validity window has elapsed.
func (tr *Trader) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tr.enqueue(tr.pruneExpired)
		case <-tr.tmb.Dying():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (tr *Trader) pruneExpired() {
	var expired []market.OrderID
	tr.withBooksWrite(func() {
		for _, book := range tr.books {
			expired = append(expired, book.PruneExpired(time.Now())...)
		}
	})
	for _, id := range expired {
		delete(tr.remoteIndex, id)
		if order, ok := tr.localOrders[id]; ok {
			order.Expire()
			tr.persistOrder(order)
		}
	}
}

// syncLoop periodically samples peers per the dissemination policy and
// requests an order book sync from each, applying any ticks learned that
// weren't already known locally.
func (tr *Trader) syncLoop(ctx context.Context) error {
	ticker := time.NewTicker(tr.cfg.Sync.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tr.runSyncRound(ctx)
		case <-tr.tmb.Dying():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (tr *Trader) runSyncRound(ctx context.Context) {
	candidates := tr.net.Peers()
	if len(candidates) == 0 {
		return
	}
	policy := p2p.PolicyNeighbours
	if tr.cfg.Dissemination.Policy == config.DisseminationRandom {
		policy = p2p.PolicyRandom
	}
	targets := p2p.SelectPeers(candidates, policy, tr.cfg.Dissemination.Fanout, nil)

	var known []market.OrderID
	tr.do(func() {
		tr.booksMu.RLock()
		defer tr.booksMu.RUnlock()
		for _, book := range tr.books {
			known = append(known, book.GetOrderIDs()...)
		}
	})
	req, err := p2p.BuildSyncRequest(known, syncBloomFPRate)
	if err != nil {
		if tr.log != nil {
			tr.log.Warnw("build_sync_request_failed", "err", err)
		}
		return
	}

	for _, target := range targets {
		resp, err := tr.net.RequestOrderbookSync(ctx, target, req)
		if err != nil {
			if tr.log != nil {
				tr.log.Warnw("orderbook_sync_failed", "peer", target.String(), "err", err)
			}
			continue
		}
		for _, w := range resp.Orders {
			w := w
			tr.enqueue(func() { tr.handleInboundOrder(w, target) })
		}
	}
}
