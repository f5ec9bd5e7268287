// Package bridge moves frames from a blocking bus read loop into the
// non-blocking broadcast path.
//
// A dedicated goroutine reads, classifies and decodes frames and pushes the
// resulting envelopes into a bounded FIFO. A second goroutine drains the
// FIFO into a Sink. When the FIFO is full the oldest envelope is dropped
// and counted, so the reader never waits on subscribers.
package bridge

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"les02bridge/internal/can"
	"les02bridge/internal/event"
	"les02bridge/internal/metrics"
)

// DefaultCapacity is the handoff queue size. At the encoder's few hundred
// frames per second this is several seconds of backlog.
const DefaultCapacity = 4096

// ErrSourceExhausted marks the end of the frame source. It is fatal for the
// pipeline; restarting is left to the process supervisor.
var ErrSourceExhausted = errors.New("bridge: frame source exhausted")

// SourceError wraps the error that ended the frame source.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return ErrSourceExhausted.Error() + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() []error { return []error{ErrSourceExhausted, e.Err} }

// Sink receives envelopes in production order.
type Sink interface {
	Broadcast(env event.Envelope)
}

// Bridge connects a can.Source to a Sink.
type Bridge struct {
	src      can.Source
	log      *zap.Logger
	metrics  *metrics.Metrics
	capacity int
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithCapacity sets the handoff queue size. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// New returns a bridge reading from src.
func New(src can.Source, opts ...Option) *Bridge {
	b := &Bridge{
		src:      src,
		log:      zap.NewNop(),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = metrics.New(nil)
	}
	b.log = b.log.Named("bridge")
	return b
}

// Run pumps frames until the source ends or ctx is cancelled. Cancelling
// ctx closes the source. In both cases the envelopes already queued are
// delivered before Run returns.
//
// Run returns ctx.Err() after cancellation and a *SourceError otherwise.
func (b *Bridge) Run(ctx context.Context, sink Sink) error {
	queue := make(chan event.Envelope, b.capacity)
	readDone := make(chan struct{})

	var (
		g      errgroup.Group
		srcErr error
	)

	g.Go(func() error {
		select {
		case <-ctx.Done():
			if err := b.src.Close(); err != nil {
				b.log.Warn("close frame source", zap.Error(err))
			}
		case <-readDone:
		}
		return nil
	})

	g.Go(func() error {
		defer close(queue)
		defer close(readDone)
		srcErr = b.read(queue)
		return nil
	})

	g.Go(func() error {
		for env := range queue {
			b.metrics.HandoffDepth.Set(float64(len(queue)))
			sink.Broadcast(env)
		}
		return nil
	})

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		b.log.Info("bridge stopped")
		return err
	}
	if errors.Is(srcErr, io.EOF) {
		b.log.Info("frame source reached end of input")
	} else {
		b.log.Error("frame source failed", zap.Error(srcErr))
	}
	return &SourceError{Err: srcErr}
}

func (b *Bridge) read(queue chan event.Envelope) error {
	for {
		f, err := b.src.Receive()
		if err != nil {
			return err
		}
		if env, ok := b.process(f); ok {
			b.push(queue, env)
		}
	}
}

// process classifies and decodes one frame. Only position samples produce
// an envelope; everything else is counted and logged.
func (b *Bridge) process(f can.Frame) (event.Envelope, bool) {
	ch, kind := can.Classify(f.ID)
	if kind == can.KindUnknown {
		b.metrics.FramesDiscarded.WithLabelValues(metrics.ReasonUnknownID).Inc()
		b.log.Debug("discarded frame with unknown id", zap.Stringer("frame", f))
		return event.Envelope{}, false
	}

	s, err := can.Decode(kind, f.Len, f.Data)
	if err != nil {
		b.metrics.FramesDiscarded.WithLabelValues(metrics.ReasonLengthMismatch).Inc()
		b.log.Warn("discarded frame",
			zap.Stringer("frame", f),
			zap.Stringer("channel", ch),
			zap.Error(err))
		return event.Envelope{}, false
	}
	b.metrics.FramesReceived.WithLabelValues(kind.String(), ch.String()).Inc()

	env, ok := event.Build(ch, s, f.ReceivedAt)
	if !ok {
		b.logDiagnostic(ch, s)
	}
	return env, ok
}

func (b *Bridge) logDiagnostic(ch can.Channel, s can.Sample) {
	if ce := b.log.Check(zap.DebugLevel, "diagnostic frame"); ce != nil {
		fields := []zap.Field{zap.Stringer("kind", s.Kind()), zap.Stringer("channel", ch)}
		switch v := s.(type) {
		case can.Status:
			fields = append(fields, zap.Uint8("sub_status", v.SubStatus))
			if v.FirmwareCRC != nil {
				fields = append(fields, zap.Uint32("firmware_crc", *v.FirmwareCRC))
			}
		case can.Error:
			fields = append(fields, zap.Uint8("code", v.Code), zap.Binary("vendor_context", v.VendorContext[:]))
		case can.System:
			fields = append(fields, zap.Uint8("sub_status", v.SubStatus))
			if v.UnlockKey != nil {
				fields = append(fields, zap.Uint16("unlock_key", *v.UnlockKey))
			}
		}
		ce.Write(fields...)
	}
}

// push enqueues env, evicting the oldest queued envelope when full. Only
// the read goroutine calls it, so a freed slot stays free until the send.
func (b *Bridge) push(queue chan event.Envelope, env event.Envelope) {
	for {
		select {
		case queue <- env:
			b.metrics.HandoffDepth.Set(float64(len(queue)))
			return
		default:
		}

		select {
		case old := <-queue:
			b.metrics.HandoffDropped.Inc()
			b.log.Warn("handoff queue full, dropped oldest envelope",
				zap.Float64("ts", old.TS),
				zap.Int("capacity", cap(queue)))
		default:
		}
	}
}
