package restapi

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/anydex/anydex/internal/market"
	ourcrypto "github.com/anydex/anydex/pkg/crypto"
)

// signablePayload is the subset of an OrderRequest a signature commits to —
// everything but the signature itself.
type signablePayload struct {
	Trader       string
	IsAsk        bool
	FirstAsset   string
	SecondAsset  string
	FirstAmount  int64
	SecondAmount int64
	TimeoutSec   int64
}

func (r OrderRequest) signingHash() ([]byte, error) {
	var buf bytes.Buffer
	payload := signablePayload{
		Trader: r.Trader, IsAsk: r.IsAsk,
		FirstAsset: r.FirstAsset, SecondAsset: r.SecondAsset,
		FirstAmount: r.FirstAmount, SecondAmount: r.SecondAmount,
		TimeoutSec: r.TimeoutSec,
	}
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("restapi: encoding order for signing: %w", err)
	}
	return ethcrypto.Keccak256(buf.Bytes()), nil
}

// Sign fills in r.Signature with signer's ECDSA signature over the order's
// fields, for use by order-submitting clients (see cmd/orderctl).
func (r *OrderRequest) Sign(signer *ourcrypto.Signer) error {
	hash, err := r.signingHash()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(hash)
	if err != nil {
		return fmt.Errorf("restapi: signing order: %w", err)
	}
	r.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// VerifySignature reports whether r.Signature recovers to r.Trader's address
// over the request's other fields (everything but Signature), so the engine
// can refuse to act on an order
// whose claimed submitter didn't actually authorize it.
func (r OrderRequest) VerifySignature() error {
	sigHex := strings.TrimPrefix(r.Signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("restapi: invalid signature encoding: %w", err)
	}
	hash, err := r.signingHash()
	if err != nil {
		return err
	}
	recovered, err := ourcrypto.RecoverAddress(hash, sig)
	if err != nil {
		return fmt.Errorf("restapi: recovering signer: %w", err)
	}
	trader, err := market.TraderIDFromHex(r.Trader)
	if err != nil {
		return fmt.Errorf("restapi: invalid trader id: %w", err)
	}
	if market.TraderIDFromAddress(recovered) != trader {
		return fmt.Errorf("restapi: signature does not match trader %s", r.Trader)
	}
	return nil
}
