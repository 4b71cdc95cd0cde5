package storage

import "fmt"

// Key schema, mirroring the prefix-per-entity-kind convention used for
// account/position/order/trade keys, retargeted to AnyDex's entities:
//
//	ord:<traderHex>:<orderNumber, zero-padded>   -> market.OrderSnapshot
//	txn:<transactionID>                          -> negotiation.Transaction
//	txnidx:<orderID>:<transactionID>             -> "" (index: order -> its transactions)
//	pay:<transactionID>:<seq, zero-padded>       -> negotiation.Payment
//	prov:<traderHex>:<seq, zero-padded>          -> provenance.Record
//	seq:order:<traderHex>                        -> next order number (uint32)
const (
	prefixOrder      = "ord:"
	prefixTxn        = "txn:"
	prefixTxnIndex   = "txnidx:"
	prefixPayment    = "pay:"
	prefixProvenance = "prov:"
	prefixOrderSeq   = "seq:order:"
)

func orderKey(traderHex string, orderNumber uint32) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixOrder, traderHex, orderNumber))
}

func orderPrefix(traderHex string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, traderHex))
}

func txnKey(transactionID string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixTxn, transactionID))
}

func txnIndexKey(orderIDHex, transactionID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixTxnIndex, orderIDHex, transactionID))
}

func txnIndexPrefix(orderIDHex string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTxnIndex, orderIDHex))
}

func paymentKey(transactionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixPayment, transactionID, seq))
}

func paymentPrefix(transactionID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPayment, transactionID))
}

func provenanceKey(traderHex string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixProvenance, traderHex, seq))
}

func provenancePrefix(traderHex string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixProvenance, traderHex))
}

func orderSeqKey(traderHex string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixOrderSeq, traderHex))
}

// keyUpperBound returns the exclusive upper bound for a prefix range scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
