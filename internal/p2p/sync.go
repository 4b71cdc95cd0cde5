package p2p

import (
	"bytes"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/orderbook"
	"github.com/anydex/anydex/internal/wire"
)

// BuildSyncRequest serializes a Bloom filter over the order ids a node
// already has a tick for, so a sync peer can reply with only the ticks it
// is probably missing (num_order_sync / sync_interval from the
// configuration table govern how often and how large this runs).
func BuildSyncRequest(knownOrderIDs []market.OrderID, falsePositiveRate float64) (wire.OrderbookSyncRequestWire, error) {
	n := uint(len(knownOrderIDs))
	if n == 0 {
		n = 1
	}
	filter := bloom.NewWithEstimates(n, falsePositiveRate)
	for _, id := range knownOrderIDs {
		filter.Add(id.Bytes())
	}

	var buf bytes.Buffer
	if _, err := filter.WriteTo(&buf); err != nil {
		return wire.OrderbookSyncRequestWire{}, err
	}
	return wire.OrderbookSyncRequestWire{
		BloomFilter: buf.Bytes(),
		NumHashes:   filter.K(),
		NumBits:     filter.Cap(),
	}, nil
}

// decodeFilter reconstructs the bloom.BloomFilter a request carried.
func decodeFilter(req wire.OrderbookSyncRequestWire) (*bloom.BloomFilter, error) {
	filter := &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(bytes.NewReader(req.BloomFilter)); err != nil {
		return nil, err
	}
	return filter, nil
}

// BuildSyncResponse scans book for every tick whose order id probably
// isn't a member of the requester's Bloom filter, capped at maxTicks.
func BuildSyncResponse(book *orderbook.Book, req wire.OrderbookSyncRequestWire, maxTicks int) (wire.OrderbookSyncResponseWire, error) {
	filter, err := decodeFilter(req)
	if err != nil {
		return wire.OrderbookSyncResponseWire{}, err
	}
	var out wire.OrderbookSyncResponseWire

	for _, side := range []*orderbook.Side{book.Asks, book.Bids} {
		side.Walk(func(level *orderbook.PriceLevel) bool {
			for _, entry := range level.Entries() {
				if len(out.Orders) >= maxTicks {
					return false
				}
				if filter.Test(entry.Tick.OrderID.Bytes()) {
					continue
				}
				out.Orders = append(out.Orders, wire.NewOrderWire(
					entry.Tick.OrderID, entry.Tick.IsAsk, entry.Tick.Pair,
					entry.Tick.Timestamp, entry.Tick.Timeout,
				))
			}
			return len(out.Orders) < maxTicks
		})
		if len(out.Orders) >= maxTicks {
			break
		}
	}
	return out, nil
}
