// Package storage persists orders, transactions, payments, and provenance
// records in a Pebble key-value store, keyed the same way the teacher's
// account/position/order/trade store was: one short prefix per entity
// kind, with the entity's natural identifiers appended so range scans can
// recover "all orders for a trader" or "all payments for a transaction"
// without a secondary index.
package storage

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation"
	"github.com/anydex/anydex/internal/provenance"
)

// Store is a Pebble-backed repository for the trading engine's durable
// state.
type Store struct {
	db *pebble.DB

	mu     sync.Mutex // guards the in-memory order-number counter cache
	seqCache map[market.TraderID]uint32
}

// Open opens (creating if absent) a Pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: opening pebble at %q: %w", path, err)
	}
	return &Store{db: db, seqCache: make(map[market.TraderID]uint32)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// NextOrderNumber returns trader's next order number (find_all/next_identity
// per spec.md's persistence layout) and durably records the advance so a
// restart never reissues a number.
func (s *Store) NextOrderNumber(trader market.TraderID) (market.OrderNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := orderSeqKey(trader.String())
	next := s.seqCache[trader] + 1

	val, closer, err := s.db.Get(key)
	if err == nil {
		stored := decodeUint32(val)
		closer.Close()
		if stored+1 > next {
			next = stored + 1
		}
	} else if err != pebble.ErrNotFound {
		return 0, fmt.Errorf("storage: reading order sequence: %w", err)
	}

	if err := s.db.Set(key, encodeUint32(next), pebble.Sync); err != nil {
		return 0, fmt.Errorf("storage: advancing order sequence: %w", err)
	}
	s.seqCache[trader] = next
	return market.OrderNumber(next), nil
}

// SaveOrder persists an order snapshot.
func (s *Store) SaveOrder(snap market.OrderSnapshot) error {
	data, err := encodeGob(snap)
	if err != nil {
		return fmt.Errorf("storage: encoding order: %w", err)
	}
	key := orderKey(snap.OrderID.TraderID.String(), uint32(snap.OrderID.OrderNumber))
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("storage: saving order: %w", err)
	}
	return nil
}

// FindOrder loads a single order by id. Returns (snap, false, nil) if absent.
func (s *Store) FindOrder(id market.OrderID) (market.OrderSnapshot, bool, error) {
	key := orderKey(id.TraderID.String(), uint32(id.OrderNumber))
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return market.OrderSnapshot{}, false, nil
	}
	if err != nil {
		return market.OrderSnapshot{}, false, fmt.Errorf("storage: loading order: %w", err)
	}
	defer closer.Close()

	var snap market.OrderSnapshot
	if err := decodeGob(val, &snap); err != nil {
		return market.OrderSnapshot{}, false, fmt.Errorf("storage: decoding order: %w", err)
	}
	return snap, true, nil
}

// FindOrdersByTrader returns every order a trader has ever created.
func (s *Store) FindOrdersByTrader(trader market.TraderID) ([]market.OrderSnapshot, error) {
	prefix := orderPrefix(trader.String())
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []market.OrderSnapshot
	for iter.First(); iter.Valid(); iter.Next() {
		var snap market.OrderSnapshot
		if err := decodeGob(iter.Value(), &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// DeleteOrder removes an order snapshot.
func (s *Store) DeleteOrder(id market.OrderID) error {
	key := orderKey(id.TraderID.String(), uint32(id.OrderNumber))
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return fmt.Errorf("storage: deleting order: %w", err)
	}
	return nil
}

// SaveTransaction persists a transaction and its order->transaction index
// entries, so it can be found from either party's order id.
func (s *Store) SaveTransaction(txn negotiation.Transaction) error {
	data, err := encodeGob(txn)
	if err != nil {
		return fmt.Errorf("storage: encoding transaction: %w", err)
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(txnKey(string(txn.TransactionID)), data, nil); err != nil {
		return err
	}
	if err := batch.Set(txnIndexKey(txn.OrderID.String(), string(txn.TransactionID)), nil, nil); err != nil {
		return err
	}
	if err := batch.Set(txnIndexKey(txn.Counterparty.String(), string(txn.TransactionID)), nil, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// FindTransaction loads a transaction by id.
func (s *Store) FindTransaction(id negotiation.TransactionID) (negotiation.Transaction, bool, error) {
	val, closer, err := s.db.Get(txnKey(string(id)))
	if err == pebble.ErrNotFound {
		return negotiation.Transaction{}, false, nil
	}
	if err != nil {
		return negotiation.Transaction{}, false, fmt.Errorf("storage: loading transaction: %w", err)
	}
	defer closer.Close()

	var txn negotiation.Transaction
	if err := decodeGob(val, &txn); err != nil {
		return negotiation.Transaction{}, false, fmt.Errorf("storage: decoding transaction: %w", err)
	}
	return txn, true, nil
}

// FindTransactionsByOrder returns every transaction involving orderID, on
// either side.
func (s *Store) FindTransactionsByOrder(orderID market.OrderID) ([]negotiation.Transaction, error) {
	prefix := txnIndexPrefix(orderID.String())
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []negotiation.Transaction
	for iter.First(); iter.Valid(); iter.Next() {
		txnID := string(iter.Key()[len(prefix):])
		txn, ok, err := s.FindTransaction(negotiation.TransactionID(txnID))
		if err != nil || !ok {
			continue
		}
		out = append(out, txn)
	}
	return out, nil
}

// SavePayment appends a payment record under its transaction.
func (s *Store) SavePayment(seq uint64, p negotiation.Payment) error {
	data, err := encodeGob(p)
	if err != nil {
		return fmt.Errorf("storage: encoding payment: %w", err)
	}
	key := paymentKey(string(p.TransactionID), seq)
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("storage: saving payment: %w", err)
	}
	return nil
}

// FindPaymentsByTransaction returns every payment recorded for a transaction,
// in the order they were appended.
func (s *Store) FindPaymentsByTransaction(id negotiation.TransactionID) ([]negotiation.Payment, error) {
	prefix := paymentPrefix(string(id))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []negotiation.Payment
	for iter.First(); iter.Valid(); iter.Next() {
		var p negotiation.Payment
		if err := decodeGob(iter.Value(), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SaveProvenanceRecord appends one record of trader's provenance chain.
func (s *Store) SaveProvenanceRecord(trader market.TraderID, r provenance.Record) error {
	data, err := encodeGob(r)
	if err != nil {
		return fmt.Errorf("storage: encoding provenance record: %w", err)
	}
	key := provenanceKey(trader.String(), r.Sequence)
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("storage: saving provenance record: %w", err)
	}
	return nil
}

// LoadProvenanceChain reconstructs trader's full chain from storage.
func (s *Store) LoadProvenanceChain(trader market.TraderID) (*provenance.Chain, error) {
	prefix := provenancePrefix(trader.String())
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	chain := provenance.NewChain(trader)
	for iter.First(); iter.Valid(); iter.Next() {
		var r provenance.Record
		if err := decodeGob(iter.Value(), &r); err != nil {
			continue
		}
		chain.Append(r.Type, r.TransactionID)
	}
	return chain, nil
}
