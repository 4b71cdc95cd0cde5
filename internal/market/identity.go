// Package market defines the core value types traded on AnyDex: asset
// amounts and pairs, prices, trader identities, and the Order accounting
// record.
package market

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TraderID identifies a trader on the network. It is shaped like a
// go-ethereum address: the low 20 bytes of keccak256(pubkey).
type TraderID [20]byte

// TraderIDFromAddress converts a go-ethereum address into a TraderID.
func TraderIDFromAddress(addr common.Address) TraderID {
	return TraderID(addr)
}

// Address returns the TraderID reinterpreted as a go-ethereum address.
func (t TraderID) Address() common.Address {
	return common.Address(t)
}

func (t TraderID) String() string {
	return t.Address().Hex()
}

// IsZero reports whether the trader id has never been set.
func (t TraderID) IsZero() bool {
	return t == TraderID{}
}

// TraderIDFromHex parses a "0x..."-prefixed or bare hex string into a TraderID.
func TraderIDFromHex(s string) (TraderID, error) {
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return TraderID{}, fmt.Errorf("invalid trader id hex: %w", err)
	}
	if len(b) != 20 {
		return TraderID{}, fmt.Errorf("trader id must be 20 bytes, got %d", len(b))
	}
	var t TraderID
	copy(t[:], b)
	return t, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// OrderNumber is a trader-local, monotonically increasing order sequence
// number. Combined with a TraderID it forms a globally unique OrderID.
type OrderNumber uint32

// OrderID globally identifies an order: the trader that created it, plus
// that trader's local order number.
type OrderID struct {
	TraderID    TraderID
	OrderNumber OrderNumber
}

// String renders the OrderID as "<trader-hex>.<number>", matching the
// original implementation's TraderId.OrderNumber textual form.
func (id OrderID) String() string {
	return fmt.Sprintf("%s.%d", id.TraderID.String(), uint32(id.OrderNumber))
}

// Bytes renders a fixed 24-byte encoding (20-byte trader id, big-endian
// uint32 order number) suitable for use as a storage/wire key.
func (id OrderID) Bytes() []byte {
	b := make([]byte, 24)
	copy(b[:20], id.TraderID[:])
	binary.BigEndian.PutUint32(b[20:], uint32(id.OrderNumber))
	return b
}

// OrderIDFromBytes parses the fixed 24-byte encoding produced by Bytes.
func OrderIDFromBytes(b []byte) (OrderID, error) {
	if len(b) != 24 {
		return OrderID{}, errors.New("order id must be 24 bytes")
	}
	var id OrderID
	copy(id.TraderID[:], b[:20])
	id.OrderNumber = OrderNumber(binary.BigEndian.Uint32(b[20:]))
	return id, nil
}
