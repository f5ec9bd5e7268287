// Package event defines the versioned envelope broadcast to subscribers.
package event

import (
	"time"

	"les02bridge/internal/can"
)

const (
	// ProtocolVersion is bumped only for incompatible changes; new fields are additive.
	ProtocolVersion = 1

	// Source identifies the sensor system in every envelope.
	Source = "les02"
)

// Event types. Only TypePositionSample is emitted by the bridge; the others
// are reserved by the protocol.
const (
	TypePositionSample = "position_sample"
	TypeRideStart      = "ride_start"
	TypeRideEnd        = "ride_end"
	TypeStatus         = "status"
	TypeError          = "error"
)

// Envelope is the wire-level unit sent to subscribers.
type Envelope struct {
	Proto   int     `json:"proto" cbor:"proto"`
	Type    string  `json:"type" cbor:"type"`
	TS      float64 `json:"ts" cbor:"ts"`
	Source  string  `json:"source" cbor:"source"`
	Payload Payload `json:"payload" cbor:"payload"`
}

// Payload is the event-type-specific body of an envelope. Each event type
// has exactly one payload shape.
type Payload interface {
	EventType() string
}

// PositionSample is the payload of a position_sample event.
type PositionSample struct {
	Channel     string `json:"channel" cbor:"channel"`
	PositionRaw uint32 `json:"position_raw" cbor:"position_raw"`
}

func (PositionSample) EventType() string { return TypePositionSample }

// New wraps p into an envelope stamped with ts.
func New(p Payload, ts time.Time) Envelope {
	return Envelope{
		Proto:   ProtocolVersion,
		Type:    p.EventType(),
		TS:      Timestamp(ts),
		Source:  Source,
		Payload: p,
	}
}

// Build turns a decoded sample into an envelope. Only position samples
// produce one; ok is false for every other kind.
func Build(ch can.Channel, s can.Sample, receivedAt time.Time) (env Envelope, ok bool) {
	pos, isPos := s.(can.Position)
	if !isPos {
		return Envelope{}, false
	}
	return New(PositionSample{Channel: ch.String(), PositionRaw: pos.Raw}, receivedAt), true
}

// Timestamp converts t to float seconds since the epoch.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
