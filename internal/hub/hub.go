// Package hub fans envelopes out to every connected subscriber.
//
// The registry is owned by the goroutine running Hub.Run. Register,
// Unregister and Broadcast only pass requests to that goroutine, so a
// broadcast always sees a stable snapshot and a subscriber joining or
// leaving takes effect between two broadcasts.
package hub

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"les02bridge/internal/event"
	"les02bridge/internal/metrics"
)

// ErrSlowSubscriber is returned by Subscriber.Send when the subscriber
// cannot keep up. The hub drops it rather than buffering.
var ErrSlowSubscriber = errors.New("hub: subscriber too slow")

// Message is one encoded envelope. Type is event.TextMessage or
// event.BinaryMessage.
type Message struct {
	Type int
	Data []byte
}

// Subscriber is a live connection to one consumer.
type Subscriber interface {
	ID() string
	Send(Message) error
	Close() error
}

// Hub fans envelopes out to registered subscribers. The registry is owned
// by Run; the other methods hand work to it over channels.
type Hub struct {
	codec   event.Codec
	log     *zap.Logger
	metrics *metrics.Metrics

	register   chan Subscriber
	unregister chan Subscriber
	inbox      chan event.Envelope
	count      chan chan int

	subs map[Subscriber]struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// New returns a hub encoding envelopes with codec.
func New(codec event.Codec, opts ...Option) *Hub {
	h := &Hub{
		codec:      codec,
		log:        zap.NewNop(),
		register:   make(chan Subscriber),
		unregister: make(chan Subscriber),
		inbox:      make(chan event.Envelope),
		count:      make(chan chan int),
		subs:       make(map[Subscriber]struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.New(nil)
	}
	h.log = h.log.Named("hub")
	return h
}

// Run serves requests until ctx is cancelled, then closes every
// subscriber. Registrations arriving afterwards are closed immediately.
func (h *Hub) Run(ctx context.Context) error {
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			return h.closeAll()

		case s := <-h.register:
			h.subs[s] = struct{}{}
			h.metrics.Subscribers.Set(float64(len(h.subs)))
			h.log.Info("subscriber connected",
				zap.String("subscriber", s.ID()),
				zap.Int("subscribers", len(h.subs)))

		case s := <-h.unregister:
			h.remove(s, metrics.ReasonClosed, nil)

		case env := <-h.inbox:
			h.broadcast(env)

		case reply := <-h.count:
			reply <- len(h.subs)
		}
	}
}

// Register adds s. It is safe to call from any goroutine.
func (h *Hub) Register(s Subscriber) {
	select {
	case h.register <- s:
	case <-h.done:
		_ = s.Close()
	}
}

// Unregister removes and closes s. Removing an unknown subscriber is a no-op.
func (h *Hub) Unregister(s Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Broadcast delivers env to every registered subscriber. It returns once
// the hub has accepted env; envelopes are broadcast in call order.
// After the hub has stopped the envelope is discarded.
func (h *Hub) Broadcast(env event.Envelope) {
	select {
	case h.inbox <- env:
	case <-h.done:
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) broadcast(env event.Envelope) {
	h.metrics.Broadcasts.Inc()
	if len(h.subs) == 0 {
		return
	}

	data, err := h.codec.Encode(env)
	if err != nil {
		h.metrics.SerializationErrs.Inc()
		h.log.Error("skipping broadcast", zap.Error(err))
		return
	}
	msg := Message{Type: h.codec.MessageType(), Data: data}

	targets := make([]Subscriber, 0, len(h.subs))
	for s := range h.subs {
		targets = append(targets, s)
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, s := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Send(msg)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		reason := metrics.ReasonSendFailed
		if errors.Is(err, ErrSlowSubscriber) {
			reason = metrics.ReasonSlow
		}
		h.remove(targets[i], reason, err)
	}
}

func (h *Hub) remove(s Subscriber, reason string, cause error) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	h.metrics.Subscribers.Set(float64(len(h.subs)))
	h.metrics.SubscriberDrops.WithLabelValues(reason).Inc()

	fields := []zap.Field{
		zap.String("subscriber", s.ID()),
		zap.String("reason", reason),
		zap.Int("subscribers", len(h.subs)),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
		h.log.Warn("subscriber dropped", fields...)
	} else {
		h.log.Info("subscriber disconnected", fields...)
	}

	if err := s.Close(); err != nil {
		h.log.Debug("close subscriber", zap.String("subscriber", s.ID()), zap.Error(err))
	}
}

func (h *Hub) closeAll() error {
	var err error
	for s := range h.subs {
		err = multierr.Append(err, s.Close())
		delete(h.subs, s)
	}
	h.metrics.Subscribers.Set(0)
	h.log.Info("hub stopped")
	return err
}
