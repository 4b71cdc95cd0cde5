package trader

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation"
	"github.com/anydex/anydex/internal/provenance"
	"github.com/anydex/anydex/internal/wire"
)

// onProposeTrade etc. are installed into p2p.Handlers; each hands off to
// the loop goroutine immediately so negotiation state is only ever touched
// from one place.
func (tr *Trader) onProposeTrade(_ context.Context, w wire.ProposeTradeWire, from peer.ID) {
	tr.enqueue(func() { tr.handleProposeTrade(w, from) })
}

func (tr *Trader) onCounterTrade(_ context.Context, w wire.CounterTradeWire, from peer.ID) {
	tr.enqueue(func() { tr.handleCounterTrade(w, from) })
}

func (tr *Trader) onDeclineTrade(_ context.Context, w wire.DeclineTradeWire, from peer.ID) {
	tr.enqueue(func() { tr.handleDeclineTrade(w, from) })
}

func (tr *Trader) onStartTrade(_ context.Context, w wire.StartTradeWire, from peer.ID) {
	tr.enqueue(func() { tr.handleStartTrade(w, from) })
}

func (tr *Trader) handleProposeTrade(w wire.ProposeTradeWire, from peer.ID) {
	msg, err := w.ToMessage()
	if err != nil {
		return
	}
	tr.dir.Update(msg.Proposer.TraderID, from)

	local, ok := tr.localOrders[msg.Recipient]
	if !ok {
		tr.sendDecline(from, negotiation.DeclineTrade{
			ProposalID: msg.ProposalID, Proposer: msg.Proposer, Recipient: msg.Recipient,
			Reason: negotiation.ReasonOrderInvalid, Timestamp: time.Now(),
		})
		return
	}

	if ok, err := tr.clear.ShouldTrade(context.Background(), msg.Proposer.TraderID); err != nil || !ok {
		tr.sendDecline(from, negotiation.DeclineTrade{
			ProposalID: msg.ProposalID, Proposer: msg.Proposer, Recipient: msg.Recipient,
			Reason: negotiation.ReasonAlreadyTrading, Timestamp: time.Now(),
		})
		return
	}

	crossed := tr.hasCrossedProposal(local.OrderID, msg.Proposer)
	resp, err := negotiation.ReceiveProposeTrade(local, msg, crossed, time.Now(), tr.settleAddress(local.Pair.Second.AssetID))
	if err != nil {
		if tr.log != nil {
			tr.log.Warnw("receive_propose_failed", "order", local.OrderID.String(), "err", err)
		}
		return
	}
	tr.dispatchResponse(local, resp, from, msg.Proposer)
}

func (tr *Trader) handleCounterTrade(w wire.CounterTradeWire, from peer.ID) {
	base, err := wire.ProposeTradeWire(w).ToMessage()
	if err != nil {
		return
	}
	local, ok := tr.localOrders[base.Proposer]
	if !ok {
		return
	}
	msg := negotiation.CounterTrade{
		ProposalID: base.ProposalID, Proposer: base.Proposer, Recipient: base.Recipient,
		Pair: base.Pair, Timestamp: base.Timestamp, RecipientAddress: w.RecipientAddress,
	}
	resp, err := negotiation.ReceiveCounterTrade(local, msg, time.Now(), tr.settleAddress(local.Pair.Second.AssetID))
	if err != nil {
		if tr.log != nil {
			tr.log.Warnw("receive_counter_failed", "order", local.OrderID.String(), "err", err)
		}
		return
	}
	tr.dispatchResponse(local, resp, from, msg.Recipient)
}

func (tr *Trader) handleDeclineTrade(w wire.DeclineTradeWire, from peer.ID) {
	proposer, err := market.OrderIDFromBytes(w.Proposer)
	if err != nil {
		return
	}
	recipient, err := market.OrderIDFromBytes(w.Recipient)
	if err != nil {
		return
	}
	msg := negotiation.DeclineTrade{
		ProposalID: negotiation.ProposalID(w.ProposalID),
		Proposer:   proposer,
		Recipient:  recipient,
		Reason:     negotiation.DeclineReason(w.Reason),
		Timestamp:  time.UnixMilli(w.Timestamp),
	}

	local, counterparty := tr.localOrders[recipient], proposer
	if local == nil {
		local, counterparty = tr.localOrders[proposer], recipient
	}
	if local == nil {
		return
	}
	negotiation.ReceiveDeclineTrade(local, msg)
	if cache, ok := tr.caches[local.OrderID]; ok {
		cache.ReceivedDecline(counterparty, msg.Reason)
	}
	tr.persistOrder(local)
	_ = from
}

func (tr *Trader) handleStartTrade(w wire.StartTradeWire, from peer.ID) {
	base, err := wire.ProposeTradeWire(w).ToMessage()
	if err != nil {
		return
	}
	msg := negotiation.StartTrade{
		ProposalID: base.ProposalID, Proposer: base.Proposer, Recipient: base.Recipient,
		Pair: base.Pair, Timestamp: base.Timestamp,
		ProposerAddress: w.ProposerAddress, RecipientAddress: w.RecipientAddress,
	}
	local, ok := tr.localOrders[msg.Recipient]
	if !ok {
		local, ok = tr.localOrders[msg.Proposer]
	}
	if !ok {
		return
	}
	txn, err := negotiation.ReceiveStartTrade(local, msg, time.Now())
	if err != nil {
		if tr.log != nil {
			tr.log.Warnw("receive_start_failed", "order", local.OrderID.String(), "err", err)
		}
		return
	}
	counterparty := msg.Proposer
	if local.OrderID == msg.Proposer {
		counterparty = msg.Recipient
	}
	tr.finalizeTrade(local, txn, counterparty)
	_ = from
}

// dispatchResponse sends the single outbound message a Response implies and,
// on DecisionStart, finalizes the trade on this (deciding) side.
func (tr *Trader) dispatchResponse(local *market.Order, resp negotiation.Response, to peer.ID, counterpartyOrderID market.OrderID) {
	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()

	switch resp.Decision {
	case negotiation.DecisionDecline:
		tr.sendDecline(to, *resp.Decline)
	case negotiation.DecisionCounter:
		w := wire.CounterTradeWire(wire.NewProposeTradeWire(negotiation.ProposeTrade{
			ProposalID: resp.Counter.ProposalID, Proposer: resp.Counter.Proposer,
			Recipient: resp.Counter.Recipient, Pair: resp.Counter.Pair, Timestamp: resp.Counter.Timestamp,
		}))
		w.RecipientAddress = resp.Counter.RecipientAddress
		if err := tr.net.SendCounterTrade(ctx, to, w); err != nil && tr.log != nil {
			tr.log.Warnw("send_counter_failed", "err", err)
		}
	case negotiation.DecisionStart:
		w := wire.StartTradeWire(wire.NewProposeTradeWire(negotiation.ProposeTrade{
			ProposalID: resp.Start.ProposalID, Proposer: resp.Start.Proposer,
			Recipient: resp.Start.Recipient, Pair: resp.Start.Pair, Timestamp: resp.Start.Timestamp,
		}))
		w.ProposerAddress = resp.Start.ProposerAddress
		w.RecipientAddress = resp.Start.RecipientAddress
		if err := tr.net.SendStartTrade(ctx, to, w); err != nil && tr.log != nil {
			tr.log.Warnw("send_start_failed", "err", err)
		}
		txn := negotiation.NewTransaction(*resp.Start, local.OrderID)
		tr.finalizeTrade(local, txn, counterpartyOrderID)
	}
}

func (tr *Trader) sendDecline(to peer.ID, msg negotiation.DeclineTrade) {
	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()
	w := wire.DeclineTradeWire{
		ProposalID: string(msg.ProposalID),
		Proposer:   msg.Proposer.Bytes(),
		Recipient:  msg.Recipient.Bytes(),
		Reason:     int(msg.Reason),
		Timestamp:  msg.Timestamp.UnixMilli(),
	}
	if err := tr.net.SendDeclineTrade(ctx, to, w); err != nil && tr.log != nil {
		tr.log.Warnw("send_decline_failed", "err", err)
	}
}

// hasCrossedProposal reports whether this trader already has an outstanding
// proposal to proposerOrderID itself from a *different* local order's
// MatchCache than recipientOrderID's own.
func (tr *Trader) hasCrossedProposal(recipientOrderID, proposerOrderID market.OrderID) bool {
	for oid, cache := range tr.caches {
		if oid == recipientOrderID {
			continue
		}
		if _, ok := cache.GetOutstandingRequestWithOrderID(proposerOrderID); ok {
			return true
		}
	}
	return false
}

// finalizeTrade records a concluded negotiation's transaction and kicks off
// settlement. It does NOT yet update the local order's traded/received
// counters, touch the book, or announce completion — those only happen once
// settlement actually delivers both legs (see completeTrade), so a trade
// that fails to settle never gets reported as done.
func (tr *Trader) finalizeTrade(local *market.Order, txn negotiation.Transaction, counterpartyOrderID market.OrderID) {
	if cache, ok := tr.caches[local.OrderID]; ok {
		tr.notifyMatchmakers(local.OrderID, counterpartyOrderID, cache.DidTrade(counterpartyOrderID))
	}
	if err := tr.store.SaveTransaction(txn); err != nil && tr.log != nil {
		tr.log.Errorw("save_transaction_failed", "txn", txn.TransactionID, "err", err)
	}

	rec := tr.chain.Append(provenance.RecordTxInit, txn.TransactionID)
	if err := tr.store.SaveProvenanceRecord(tr.id, rec); err != nil && tr.log != nil {
		tr.log.Errorw("save_provenance_failed", "err", err)
	}

	if tr.settle != nil {
		go tr.runSettlement(txn)
	}
}

// runSettlement pays this side's leg and, once Settle reports success,
// hands control back to the loop goroutine to check whether both legs have
// now landed.
func (tr *Trader) runSettlement(txn negotiation.Transaction) {
	ctx, cancel := context.WithTimeout(context.Background(), networkCallTimeout)
	defer cancel()
	if err := tr.settle.Settle(ctx, txn); err != nil {
		if tr.log != nil {
			tr.log.Errorw("settlement_failed", "txn", txn.TransactionID, "err", err)
		}
		return
	}
	tr.enqueue(func() { tr.checkSettlementComplete(txn.TransactionID) })
}

// checkSettlementComplete re-reads txn from storage (runSettlement may have
// updated it on a different goroutine) and, if both legs are now recorded,
// completes the trade against the local order.
func (tr *Trader) checkSettlementComplete(id negotiation.TransactionID) {
	txn, ok, err := tr.store.FindTransaction(id)
	if err != nil || !ok || !txn.IsComplete() {
		return
	}
	local, ok := tr.localOrders[txn.OrderID]
	if !ok {
		return
	}
	tr.completeTrade(local, txn)
}

// completeTrade applies the effects of a trade whose settlement has been
// confirmed on both legs: updates the local order's traded/received
// counters, updates the book, records provenance, and broadcasts
// CompletedTradePayload so every matchmaker holding either tick can drop
// it and the counterparty can learn this side's leg landed (see
// recordCounterpartyLeg).
func (tr *Trader) completeTrade(local *market.Order, txn negotiation.Transaction) {
	if err := local.RecordTrade(txn.Counterparty, txn.Pair.First.Amount, txn.Pair.Second.Amount); err != nil {
		if tr.log != nil {
			tr.log.Warnw("record_trade_failed", "order", local.OrderID.String(), "err", err)
		}
		return
	}
	tr.persistOrder(local)

	rec := tr.chain.Append(provenance.RecordTxDone, txn.TransactionID)
	if err := tr.store.SaveProvenanceRecord(tr.id, rec); err != nil && tr.log != nil {
		tr.log.Errorw("save_provenance_failed", "err", err)
	}

	tr.withBooksWrite(func() {
		book := tr.bookFor(pairKeyFor(local.Pair))
		_ = book.UpdateTick(local.OrderID, local.IsAsk, txn.Pair.First.Amount)
		if local.IsComplete() {
			book.CompleteOrder(local.OrderID, local.IsAsk)
		}
	})

	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()
	completed := wire.CompletedTradeWire{
		OrderID: local.OrderID.Bytes(), Counterparty: txn.Counterparty.Bytes(),
		TradedAmount: txn.Pair.First.Amount,
	}
	if err := tr.net.BroadcastCompletedTrade(ctx, completed); err != nil && tr.log != nil {
		tr.log.Warnw("broadcast_completed_failed", "err", err)
	}
}

// recordCounterpartyLeg handles an inbound CompletedTradeWire from
// counterpartyOrderID (see handleInboundCompleted): since a wallet.Adapter
// has no way to observe an incoming payment, the counterparty's own
// broadcast of its settlement completing is the only signal this side has
// that its Pair.Second leg has actually arrived. It records that leg as a
// confirmed synthetic Payment, idempotent on Pair.Second's asset already
// being present, then re-checks IsComplete.
func (tr *Trader) recordCounterpartyLeg(local *market.Order, counterpartyOrderID market.OrderID) {
	txns, err := tr.store.FindTransactionsByOrder(local.OrderID)
	if err != nil {
		return
	}
	for _, txn := range txns {
		if txn.Counterparty != counterpartyOrderID {
			continue
		}
		already := false
		for _, p := range txn.Payments {
			if p.Amount.AssetID == txn.Pair.Second.AssetID {
				already = true
				break
			}
		}
		if already {
			return
		}
		payment := negotiation.NewPayment(txn.TransactionID, txn.Pair.Second, "", time.Now())
		payment.Confirmed = true
		payment.WalletTxID = "peer-confirmed"
		if err := tr.store.SavePayment(uint64(len(txn.Payments)+1), payment); err != nil {
			if tr.log != nil {
				tr.log.Errorw("record_peer_payment_failed", "txn", txn.TransactionID, "err", err)
			}
			return
		}
		txn.AddPayment(payment)
		if err := tr.store.SaveTransaction(txn); err != nil && tr.log != nil {
			tr.log.Errorw("save_transaction_failed", "txn", txn.TransactionID, "err", err)
		}
		if txn.IsComplete() {
			tr.completeTrade(local, txn)
		}
		return
	}
}

// settleAddress returns this trader's own wallet receiving address for
// assetID, used to tell a counterparty where to pay the leg it owes us.
// Returns "" if no wallet adapter is configured for the asset, which the
// receiving side treats as "unknown" rather than failing the negotiation
// outright — settlement itself will fail loudly later if the address never
// arrives by the time Settle needs it.
func (tr *Trader) settleAddress(assetID string) string {
	adapter, ok := tr.wallets[assetID]
	if !ok {
		return ""
	}
	ctx, cancel := tr.ctxWithTimeout()
	defer cancel()
	addr, err := adapter.Address(ctx)
	if err != nil {
		if tr.log != nil {
			tr.log.Warnw("settle_address_lookup_failed", "asset", assetID, "err", err)
		}
		return ""
	}
	return addr
}

// notifyMatchmakers tells every matchmaker that introduced counterparty as
// a candidate for local that the pairing concluded in a trade, reusing
// MatchDecline's ORDER_COMPLETED reason so the matchmaker drops its own
// bookkeeping for both ticks exactly as it would for any other terminal
// order.
func (tr *Trader) notifyMatchmakers(local, counterparty market.OrderID, matchmakers []market.TraderID) {
	for _, mm := range matchmakers {
		peerID, err := tr.dir.MustLookup(mm)
		if err != nil {
			continue
		}
		ctx, cancel := tr.ctxWithTimeout()
		w := wire.NewMatchDeclineWire(local, counterparty, negotiation.ReasonOrderCompleted, time.Now())
		if err := tr.net.SendMatchDecline(ctx, peerID, w); err != nil && tr.log != nil {
			tr.log.Warnw("notify_matchmaker_failed", "matchmaker", mm.String(), "err", err)
		}
		cancel()
	}
}
