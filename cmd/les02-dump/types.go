package main

import (
	"les02bridge/internal/can"
	"les02bridge/internal/event"
)

// FrameInfo stores a decoded frame with metadata for grouping
type FrameInfo struct {
	Frame       can.Frame
	Channel     can.Channel
	Kind        can.Kind
	Sample      can.Sample
	Err         error
	SequenceNum int // For maintaining order when timestamps are identical
}

// Discarded reports whether the listener would drop this frame.
func (f *FrameInfo) Discarded() bool {
	return f.Kind == can.KindUnknown || f.Err != nil
}

// Timestamp returns the receive time in float seconds.
func (f *FrameInfo) Timestamp() float64 {
	return event.Timestamp(f.Frame.ReceivedAt)
}
