package event

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Message types, numerically equal to the WebSocket opcodes.
const (
	TextMessage   = 1
	BinaryMessage = 2
)

// Codec encodes envelopes for the wire.
type Codec interface {
	Name() string
	MessageType() int
	Encode(Envelope) ([]byte, error)
}

// SerializationError reports an envelope that could not be encoded.
type SerializationError struct {
	Codec string
	Type  string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("encode %s envelope as %s: %v", e.Type, e.Codec, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// JSON is the default codec: one JSON object per text message.
var JSON Codec = jsonCodec{}

// CBOR encodes the same fields as binary CBOR messages.
var CBOR Codec = newCBORCodec()

type jsonCodec struct{}

func (jsonCodec) Name() string     { return "json" }
func (jsonCodec) MessageType() int { return TextMessage }

func (c jsonCodec) Encode(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, &SerializationError{Codec: c.Name(), Type: env.Type, Err: err}
	}
	return b, nil
}

type cborCodec struct {
	mode cbor.EncMode
}

func newCBORCodec() cborCodec {
	// float64 timestamps must not be shortened to float32/float16
	mode, err := cbor.EncOptions{ShortestFloat: cbor.ShortestFloatNone}.EncMode()
	if err != nil {
		panic(err)
	}
	return cborCodec{mode: mode}
}

func (cborCodec) Name() string     { return "cbor" }
func (cborCodec) MessageType() int { return BinaryMessage }

func (c cborCodec) Encode(env Envelope) ([]byte, error) {
	b, err := c.mode.Marshal(env)
	if err != nil {
		return nil, &SerializationError{Codec: c.Name(), Type: env.Type, Err: err}
	}
	return b, nil
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
