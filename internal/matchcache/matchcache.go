// Package matchcache serializes the matches a matchmaker (or a trader
// matching its own order) proposes for one local order: candidates arrive
// faster than negotiations can resolve, so they are queued by priority,
// coalesced behind a short timer, and drained in bounded batches with
// at most one outstanding negotiation per counterparty order at a time.
package matchcache

import (
	"container/heap"
	"time"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation"
)

// OutstandingRequest is a proposal currently awaiting the counterparty's
// reply (Counter, Decline, or Start).
type OutstandingRequest struct {
	Counterparty market.OrderID
	ProposalID   negotiation.ProposalID
	Quantity     int64
	Price        market.Price
	Retries      int
	SentAt       time.Time
}

// MatchCache holds every pending and in-flight match for a single local
// order.
type MatchCache struct {
	OrderID market.OrderID
	IsAsk   bool

	window       time.Duration // how long to coalesce newly-added matches before a flush
	batchSize    int           // match_process_batch_size
	maxRetries   int

	queue       *matchHeap
	outstanding map[market.OrderID]*OutstandingRequest
	scheduled   bool // true once a coalescing flush has been armed by the caller

	// matchmakers records, per candidate counterparty, every matchmaker
	// trader id that has introduced it as a match for this order. A
	// counterparty discovered by the order's own trader (first_matches_own_
	// orders, or a proposal this trader initiated itself) has no entry here.
	matchmakers map[market.OrderID][]market.TraderID
}

// NewMatchCache creates an empty cache for orderID. window and batchSize
// correspond to the match_window / match_process_batch_size configuration
// options; maxRetries bounds how many times a declined-but-retryable match
// will be re-proposed before being dropped.
func NewMatchCache(orderID market.OrderID, isAsk bool, window time.Duration, batchSize, maxRetries int) *MatchCache {
	return &MatchCache{
		OrderID:     orderID,
		IsAsk:       isAsk,
		window:      window,
		batchSize:   batchSize,
		maxRetries:  maxRetries,
		queue:       newMatchHeap(isAsk),
		outstanding: make(map[market.OrderID]*OutstandingRequest),
		matchmakers: make(map[market.OrderID][]market.TraderID),
	}
}

// Window returns the coalescing window configured for this cache.
func (c *MatchCache) Window() time.Duration { return c.window }

// AddMatch enqueues (or updates, if already queued) a candidate
// counterparty. It returns true the first time a match lands in an
// otherwise-idle queue, signalling the caller should arm a one-shot timer
// for Window() before calling Flush — this is the coalescing behavior that
// lets several matches arriving in quick succession be drained together
// rather than negotiated one at a time.
func (c *MatchCache) AddMatch(counterparty market.OrderID, quantity int64, price market.Price) bool {
	if existing := c.queue.find(counterparty); existing != nil {
		existing.quantity = quantity
		existing.price = price
		return false
	}
	needsSchedule := c.queue.Len() == 0 && !c.scheduled
	heap.Push(c.queue, &matchItem{counterparty: counterparty, quantity: quantity, price: price})
	if needsSchedule {
		c.scheduled = true
	}
	return needsSchedule
}

// AddMatchFrom is AddMatch plus matchmaker bookkeeping: it additionally
// records that matchmaker introduced counterparty, so a later DidTrade can
// report back to every matchmaker responsible for a successful introduction.
func (c *MatchCache) AddMatchFrom(counterparty market.OrderID, quantity int64, price market.Price, matchmaker market.TraderID) bool {
	needsSchedule := c.AddMatch(counterparty, quantity, price)
	for _, m := range c.matchmakers[counterparty] {
		if m == matchmaker {
			return needsSchedule
		}
	}
	c.matchmakers[counterparty] = append(c.matchmakers[counterparty], matchmaker)
	return needsSchedule
}

// MatchmakersFor returns every matchmaker that has introduced counterparty
// as a candidate for this order, if any.
func (c *MatchCache) MatchmakersFor(counterparty market.OrderID) []market.TraderID {
	return c.matchmakers[counterparty]
}

// RemoveOrder drops every queued, outstanding, and matchmaker entry for
// orderID: a matchmaker has indicated the counterparty order no longer
// exists.
func (c *MatchCache) RemoveOrder(orderID market.OrderID) {
	c.queue.remove(orderID)
	delete(c.outstanding, orderID)
	delete(c.matchmakers, orderID)
}

// Flush drains up to batchSize ready candidates (skipping any counterparty
// already under negotiation) and returns the proposals to send. Callers
// should call ReceivedDecline / DidTrade as replies arrive, and call
// Flush again once the queue next becomes non-empty.
func (c *MatchCache) Flush(now time.Time) []OutstandingRequest {
	c.scheduled = false
	var sent []OutstandingRequest
	var deferred []*matchItem
	for len(sent) < c.batchSize && c.queue.Len() > 0 {
		it := heap.Pop(c.queue).(*matchItem)
		if c.hasOutstandingLocked(it.counterparty) {
			deferred = append(deferred, it)
			continue
		}
		req := &OutstandingRequest{
			Counterparty: it.counterparty,
			ProposalID:   negotiation.NewProposalID(),
			Quantity:     it.quantity,
			Price:        it.price,
			Retries:      it.retries,
			SentAt:       now,
		}
		c.outstanding[it.counterparty] = req
		sent = append(sent, *req)
	}
	for _, it := range deferred {
		heap.Push(c.queue, it)
	}
	return sent
}

// HasOutstandingRequestWithOrderID reports whether orderID is currently the
// counterparty of an in-flight proposal from this cache. The comparison is
// against each outstanding request's own counterparty id, not against the
// loop's own identity — fixing a latent bug in the implementation this was
// ported from, where a shadowed loop variable made the comparison always
// true and this check never actually filtered anything.
func (c *MatchCache) HasOutstandingRequestWithOrderID(orderID market.OrderID) bool {
	for itemOrderID := range c.outstanding {
		if itemOrderID == orderID {
			return true
		}
	}
	return false
}

// GetOutstandingRequestWithOrderID returns the outstanding request for
// orderID, if any, using the same corrected comparison as
// HasOutstandingRequestWithOrderID.
func (c *MatchCache) GetOutstandingRequestWithOrderID(orderID market.OrderID) (OutstandingRequest, bool) {
	for itemOrderID, req := range c.outstanding {
		if itemOrderID == orderID {
			return *req, true
		}
	}
	return OutstandingRequest{}, false
}

func (c *MatchCache) hasOutstandingLocked(orderID market.OrderID) bool {
	_, ok := c.outstanding[orderID]
	return ok
}

// ReceivedDecline processes a DeclineTrade for counterparty: the
// outstanding request is cleared. If the decline reason indicates the
// counterparty order is simply gone (completed, cancelled, or invalid) the
// match is dropped for good. ReasonNoAvailableQuantity re-queues at the
// same retry count (the counterparty wasn't at fault, so there's nothing
// to back off from); every other reason — including ReasonOrderReserved
// and ReasonAlreadyTrading, which are expected to clear on their own —
// re-queues with an incremented retry count, up to maxRetries.
func (c *MatchCache) ReceivedDecline(counterparty market.OrderID, reason negotiation.DeclineReason) {
	req, ok := c.outstanding[counterparty]
	if !ok {
		return
	}
	delete(c.outstanding, counterparty)

	switch reason {
	case negotiation.ReasonOrderCompleted, negotiation.ReasonOrderCancelled, negotiation.ReasonOrderInvalid:
		delete(c.matchmakers, counterparty)
		return
	case negotiation.ReasonNoAvailableQuantity:
		heap.Push(c.queue, &matchItem{
			counterparty: counterparty,
			quantity:     req.Quantity,
			price:        req.Price,
			retries:      req.Retries,
		})
		return
	}
	if req.Retries+1 > c.maxRetries {
		delete(c.matchmakers, counterparty)
		return
	}
	heap.Push(c.queue, &matchItem{
		counterparty: counterparty,
		quantity:     req.Quantity,
		price:        req.Price,
		retries:      req.Retries + 1,
	})
}

// DidTrade marks a negotiation with counterparty as successfully concluded,
// clearing it from the outstanding set. It will not be retried. The
// returned slice is every matchmaker that introduced counterparty as a
// candidate, for the caller to notify of the completed introduction.
func (c *MatchCache) DidTrade(counterparty market.OrderID) []market.TraderID {
	delete(c.outstanding, counterparty)
	matchmakers := c.matchmakers[counterparty]
	delete(c.matchmakers, counterparty)
	return matchmakers
}

// IsEmpty reports whether the cache has no queued or in-flight matches left.
func (c *MatchCache) IsEmpty() bool {
	return c.queue.Len() == 0 && len(c.outstanding) == 0
}

// QueueLen returns the number of matches waiting to be flushed.
func (c *MatchCache) QueueLen() int { return c.queue.Len() }

// OutstandingLen returns the number of in-flight proposals.
func (c *MatchCache) OutstandingLen() int { return len(c.outstanding) }
