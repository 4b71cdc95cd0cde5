package wire

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

func init() {
	gob.Register(OrderWire{})
	gob.Register(CancelOrderWire{})
	gob.Register(CompletedTradeWire{})
	gob.Register(ProposeTradeWire{})
	gob.Register(CounterTradeWire{})
	gob.Register(DeclineTradeWire{})
	gob.Register(StartTradeWire{})
	gob.Register(PingWire{})
	gob.Register(PongWire{})
	gob.Register(OrderbookSyncRequestWire{})
	gob.Register(OrderbookSyncResponseWire{})
}

// Envelope is the outermost frame put on the wire: a tag identifying the
// payload's type, plus the gob-encoded payload itself.
type Envelope struct {
	Tag     Tag
	Payload []byte
}

// Encode gob-encodes v and wraps it in a tagged Envelope, ready to hand to
// a libp2p stream or pubsub publish call.
func Encode(tag Tag, v any) ([]byte, error) {
	payload, err := gobEncode(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding payload for tag %d: %w", tag, err)
	}
	return gobEncode(Envelope{Tag: tag, Payload: payload})
}

// DecodeEnvelope unwraps the outer Envelope frame, leaving the caller to
// decode Payload according to Tag.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := gobDecode(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decoding envelope: %w", err)
	}
	return env, nil
}

// DecodePayload decodes env.Payload into v, which must match the concrete
// type registered for env.Tag.
func DecodePayload(env Envelope, v any) error {
	return gobDecode(env.Payload, v)
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
