package trader

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation"
	"github.com/anydex/anydex/internal/orderbook"
	"github.com/anydex/anydex/internal/wire"
)

func (tr *Trader) onMatch(_ context.Context, w wire.MatchWire, from peer.ID) {
	tr.enqueue(func() { tr.handleMatch(w, from) })
}

func (tr *Trader) onMatchDecline(_ context.Context, w wire.MatchDeclineWire, from peer.ID) {
	tr.enqueue(func() { tr.handleMatchDecline(w) })
}

// runMatchmaking re-runs the matching engine treating tickID's own resting
// tick as the incoming order, purely from this trader's replica of the
// book. tickID belongs to neither of this trader's own orders (those are
// matched by matchOrder/matchAllLocalOrders/matchLocalOrdersAgainstTick
// instead); any crossing candidate found here is therefore a pairing
// between two traders other than this one, which this trader can only
// introduce by sending each side a Match wire message directly — it never
// negotiates on their behalf.
func (tr *Trader) runMatchmaking(pairKey string, tickID market.OrderID, isAsk bool) {
	if _, owned := tr.localOrders[tickID]; owned {
		return
	}

	tr.booksMu.RLock()
	book := tr.bookFor(pairKey)
	entry := tickEntry(book, tickID, isAsk)
	if entry == nil {
		tr.booksMu.RUnlock()
		return
	}
	incoming := orderbook.IncomingOrder{
		OrderID:           tickID,
		IsAsk:             isAsk,
		Pair:              entry.Tick.Pair,
		AvailableQuantity: entry.Tick.Quantity(),
	}
	candidates, err := tr.match.Match(book, incoming)
	tr.booksMu.RUnlock()
	if err != nil || len(candidates) == 0 {
		return
	}

	for _, c := range candidates {
		counterpartyID := c.Entry.Tick.OrderID
		if _, owned := tr.localOrders[counterpartyID]; owned {
			continue
		}
		tr.sendMatchNotice(tickID, counterpartyID, c.Entry.Tick.IsAsk, c.Entry.Tick.Pair, c.Entry.Tick.Timestamp, c.Entry.Tick.Timeout)
		tr.sendMatchNotice(counterpartyID, tickID, entry.Tick.IsAsk, entry.Tick.Pair, entry.Tick.Timestamp, entry.Tick.Timeout)
	}
}

// tickEntry looks up orderID on the given side of book.
func tickEntry(book *orderbook.Book, orderID market.OrderID, isAsk bool) *orderbook.TickEntry {
	if isAsk {
		return book.Asks.Find(orderID)
	}
	return book.Bids.Find(orderID)
}

// sendMatchNotice delivers a Match wire message to recipient, introducing
// counterparty (whose tick is described by the remaining parameters) as a
// candidate trade.
func (tr *Trader) sendMatchNotice(recipient, counterparty market.OrderID, counterpartyIsAsk bool, counterpartyPair market.AssetPair, ts time.Time, timeout time.Duration) {
	peerID, err := tr.dir.MustLookup(recipient.TraderID)
	if err != nil {
		if tr.log != nil {
			tr.log.Warnw("match_notice_peer_unknown", "recipient", recipient.String(), "err", err)
		}
		return
	}
	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()
	w := wire.NewMatchWire(recipient, counterparty, counterpartyIsAsk, counterpartyPair, ts, timeout, tr.id)
	if err := tr.net.SendMatch(ctx, peerID, w); err != nil && tr.log != nil {
		tr.log.Warnw("send_match_failed", "recipient", recipient.String(), "err", err)
	}
}

// handleMatch is this side's view of runMatchmaking's output: a matchmaker
// has introduced counterparty as a candidate for one of our own local
// orders. The counterparty's tick is learned here for the first time (or
// refreshed) and queued on the order's MatchCache with matchmaker
// attribution, so a later successful trade can report back to the
// matchmaker that introduced it.
func (tr *Trader) handleMatch(w wire.MatchWire, from peer.ID) {
	recipientID, err := w.RecipientOrderIDValue()
	if err != nil {
		return
	}
	local, ok := tr.localOrders[recipientID]
	if !ok {
		return
	}
	counterpartyID, err := w.CounterpartyOrderIDValue()
	if err != nil {
		return
	}
	pair, err := w.Pair()
	if err != nil {
		return
	}
	matchmaker, err := w.MatchmakerTraderIDValue()
	if err != nil {
		return
	}

	if local.IsComplete() {
		// The matchmaker's replica of our book is stale: this order already
		// settled elsewhere. Tell it directly so it drops the tick instead
		// of continuing to introduce a dead order.
		tr.sendMatchDeclineTo(from, local.OrderID, counterpartyID, negotiation.ReasonOrderCompleted)
		return
	}

	tick := &orderbook.Tick{OrderID: counterpartyID, IsAsk: w.IsAsk, Pair: pair, Timestamp: w.TimestampValue(), Timeout: w.TimeoutValue()}
	pk := pairKeyFor(local.Pair)
	tr.withBooksWrite(func() {
		_ = tr.bookFor(pk).ApplyTick(tick)
	})
	tr.remoteIndex[counterpartyID] = remoteLoc{pairKey: pk, isAsk: w.IsAsk}

	if local.Available() <= 0 {
		return
	}
	price, err := tick.Price()
	if err != nil {
		return
	}
	quantity := local.Available()
	if tick.Quantity() < quantity {
		quantity = tick.Quantity()
	}
	if quantity <= 0 {
		return
	}

	cache := tr.cacheFor(local.OrderID, local.IsAsk)
	if !cache.AddMatchFrom(counterpartyID, quantity, price, matchmaker) {
		return
	}
	tr.armFlush(local.OrderID)
}

// sendMatchDeclineTo replies directly to the peer that sent a Match,
// without a directory lookup, since the inbound stream already identifies
// it — used when the recipient order turns out to be terminal.
func (tr *Trader) sendMatchDeclineTo(to peer.ID, declined, other market.OrderID, reason negotiation.DeclineReason) {
	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()
	w := wire.NewMatchDeclineWire(declined, other, reason, time.Now())
	if err := tr.net.SendMatchDecline(ctx, to, w); err != nil && tr.log != nil {
		tr.log.Warnw("send_match_decline_failed", "order", declined.String(), "err", err)
	}
}

// handleMatchDecline answers this trader's own role as matchmaker: the
// order it introduced as a candidate turned out to be terminal, so its
// local replica of the book is brought up to date the same way a direct
// CancelOrder/CompletedTrade gossip message would.
func (tr *Trader) handleMatchDecline(w wire.MatchDeclineWire) {
	declinedID, err := w.OrderIDValue()
	if err != nil {
		return
	}
	loc, ok := tr.remoteIndex[declinedID]
	if !ok {
		return
	}
	switch w.ReasonValue() {
	case negotiation.ReasonOrderCompleted:
		tr.withBooksWrite(func() { tr.bookFor(loc.pairKey).CompleteOrder(declinedID, loc.isAsk) })
		delete(tr.remoteIndex, declinedID)
	case negotiation.ReasonOrderCancelled, negotiation.ReasonOrderInvalid:
		tr.withBooksWrite(func() { tr.bookFor(loc.pairKey).CancelOrder(declinedID, loc.isAsk) })
		delete(tr.remoteIndex, declinedID)
	}
}
