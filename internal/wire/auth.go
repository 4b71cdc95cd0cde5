package wire

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	ourcrypto "github.com/anydex/anydex/pkg/crypto"
)

// SignedEnvelope pairs a wire Envelope with the sender's signature over its
// bytes, letting a recipient attribute a message to a trader identity
// before acting on it (e.g. before trusting a ProposeTrade's Proposer
// field).
type SignedEnvelope struct {
	Envelope  Envelope
	Signature []byte // 65-byte [R || S || V], see pkg/crypto.Signer.Sign
}

// Sign wraps tag/v into a signed envelope using signer's key.
func Sign(signer *ourcrypto.Signer, tag Tag, v any) (SignedEnvelope, error) {
	raw, err := gobEncode(v)
	if err != nil {
		return SignedEnvelope{}, fmt.Errorf("wire: encoding payload for tag %d: %w", tag, err)
	}
	env := Envelope{Tag: tag, Payload: raw}
	framed, err := gobEncode(env)
	if err != nil {
		return SignedEnvelope{}, err
	}
	hash := crypto.Keccak256Hash(framed)
	sig, err := signer.Sign(hash.Bytes())
	if err != nil {
		return SignedEnvelope{}, fmt.Errorf("wire: signing envelope: %w", err)
	}
	return SignedEnvelope{Envelope: env, Signature: sig}, nil
}

// Verify recovers the address whose key produced SignedEnvelope.Signature
// over its Envelope and returns it; it does not compare it against any
// expected trader.
func Verify(se SignedEnvelope) (recovered [20]byte, err error) {
	framed, err := gobEncode(se.Envelope)
	if err != nil {
		return recovered, err
	}
	hash := crypto.Keccak256Hash(framed)
	addr, err := ourcrypto.RecoverAddress(hash.Bytes(), se.Signature)
	if err != nil {
		return recovered, fmt.Errorf("wire: recovering signer: %w", err)
	}
	return [20]byte(addr), nil
}
