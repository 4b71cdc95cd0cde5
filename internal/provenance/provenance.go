// Package provenance is a scoped, local substitute for the full TrustChain
// crawl the original implementation performs before trading with an unknown
// counterparty: a per-trader, hash-chained record of that trader's
// transaction lifecycle (init -> payment -> done), queryable without a
// network crawl. Settlement is out of scope for atomic chain consensus
// (spec.md Non-goals), but SingleTradeClearingPolicy still needs *some*
// evidence a counterparty isn't mid-trade elsewhere, so each trader
// maintains this record of its own transactions and shares it on request.
package provenance

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/anydex/anydex/internal/market"
	"github.com/anydex/anydex/internal/negotiation"
)

// RecordType mirrors the three block types the original TrustChain crawl
// inspects.
type RecordType int

const (
	RecordTxInit RecordType = iota
	RecordTxPayment
	RecordTxDone
)

// Record is one entry in a trader's local hash chain.
type Record struct {
	Sequence      uint64
	Type          RecordType
	TransactionID negotiation.TransactionID
	PrevHash      [32]byte
	Hash          [32]byte
}

// Chain is one trader's append-only record list.
type Chain struct {
	TraderID market.TraderID
	records  []Record
}

// NewChain creates an empty chain for trader.
func NewChain(trader market.TraderID) *Chain {
	return &Chain{TraderID: trader}
}

// Append adds a new record of the given type for transactionID, computing
// its hash over the previous record's hash, so the chain cannot be
// reordered or have entries removed without detection.
func (c *Chain) Append(recType RecordType, transactionID negotiation.TransactionID) Record {
	var prev [32]byte
	seq := uint64(1)
	if len(c.records) > 0 {
		last := c.records[len(c.records)-1]
		prev = last.Hash
		seq = last.Sequence + 1
	}
	r := Record{Sequence: seq, Type: recType, TransactionID: transactionID, PrevHash: prev}
	r.Hash = hashRecord(r)
	c.records = append(c.records, r)
	return r
}

func hashRecord(r Record) [32]byte {
	buf := make([]byte, 0, 8+1+len(r.TransactionID)+32)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], r.Sequence)
	buf = append(buf, seqBytes[:]...)
	buf = append(buf, byte(r.Type))
	buf = append(buf, []byte(r.TransactionID)...)
	buf = append(buf, r.PrevHash[:]...)
	return [32]byte(crypto.Keccak256(buf))
}

// Records returns the chain's records in sequence order. The slice must
// not be mutated by the caller.
func (c *Chain) Records() []Record {
	return c.records
}

// Verify walks the chain checking every record's hash links correctly to
// its predecessor.
func (c *Chain) Verify() error {
	var prev [32]byte
	for _, r := range c.records {
		if r.PrevHash != prev {
			return fmt.Errorf("provenance: chain broken at sequence %d", r.Sequence)
		}
		if hashRecord(r) != r.Hash {
			return fmt.Errorf("provenance: record hash mismatch at sequence %d", r.Sequence)
		}
		prev = r.Hash
	}
	return nil
}

// OpenTransactions reports every transaction id whose most recent record is
// an init or payment without a matching done — i.e. still in flight. A
// trader should not be trusted with a second concurrent trade while any
// transaction is open, matching SingleTradeClearingPolicy's rule.
func (c *Chain) OpenTransactions() []negotiation.TransactionID {
	status := make(map[negotiation.TransactionID]RecordType)
	order := make([]negotiation.TransactionID, 0)
	for _, r := range c.records {
		if _, seen := status[r.TransactionID]; !seen {
			order = append(order, r.TransactionID)
		}
		status[r.TransactionID] = r.Type
	}
	var open []negotiation.TransactionID
	for _, id := range order {
		if status[id] != RecordTxDone {
			open = append(open, id)
		}
	}
	return open
}
