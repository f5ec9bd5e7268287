package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"les02bridge/internal/can"
	"les02bridge/internal/event"
	"les02bridge/internal/metrics"
)

type fakeSubscriber struct {
	id      string
	sendErr error

	mu     sync.Mutex
	got    []Message
	closed int
}

func newFake(id string) *fakeSubscriber { return &fakeSubscriber{id: id} }

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(m Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, m)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSubscriber) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.got...)
}

func (f *fakeSubscriber) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func startHub(t *testing.T, opts ...Option) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	h := New(event.JSON, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx) }()
	t.Cleanup(cancel)
	return h, cancel, errc
}

func position(raw uint32) event.Envelope {
	env, _ := event.Build(can.Master, can.Position{Raw: raw}, time.Unix(1700000000, 0))
	return env
}

func TestHub_BroadcastToAll(t *testing.T) {
	h, _, _ := startHub(t)

	subs := []*fakeSubscriber{newFake("a"), newFake("b"), newFake("c")}
	for _, s := range subs {
		h.Register(s)
	}
	require.Equal(t, 3, h.Len())

	h.Broadcast(position(150))
	h.Broadcast(position(151))
	require.Equal(t, 3, h.Len())

	want, err := event.JSON.Encode(position(150))
	require.NoError(t, err)

	for _, s := range subs {
		got := s.messages()
		require.Len(t, got, 2, s.id)
		assert.Equal(t, event.TextMessage, got[0].Type)
		assert.Equal(t, want, got[0].Data)
	}
}

func TestHub_FailureIsolation(t *testing.T) {
	const n = 5
	for k := 0; k < n; k++ {
		t.Run(fmt.Sprintf("failing_%d", k), func(t *testing.T) {
			m := metrics.New(nil)
			h, _, _ := startHub(t, WithMetrics(m))

			subs := make([]*fakeSubscriber, n)
			for i := range subs {
				subs[i] = newFake(fmt.Sprintf("sub-%d", i))
				if i == k {
					subs[i].sendErr = errors.New("write: broken pipe")
				}
				h.Register(subs[i])
			}

			h.Broadcast(position(42))
			assert.Equal(t, n-1, h.Len())

			for i, s := range subs {
				if i == k {
					assert.Empty(t, s.messages())
					assert.Equal(t, 1, s.closeCount())
					continue
				}
				assert.Len(t, s.messages(), 1)
				assert.Zero(t, s.closeCount())
			}
			assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriberDrops.WithLabelValues(metrics.ReasonSendFailed)))
			assert.Equal(t, float64(n-1), testutil.ToFloat64(m.Subscribers))

			// the removed subscriber gets nothing further
			h.Broadcast(position(43))
			assert.Empty(t, subs[k].messages())
		})
	}
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	m := metrics.New(nil)
	h, _, _ := startHub(t, WithMetrics(m))

	slow := newFake("slow")
	slow.sendErr = fmt.Errorf("outbox full: %w", ErrSlowSubscriber)
	fast := newFake("fast")
	h.Register(slow)
	h.Register(fast)

	h.Broadcast(position(1))
	assert.Equal(t, 1, h.Len())
	assert.Len(t, fast.messages(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriberDrops.WithLabelValues(metrics.ReasonSlow)))
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	h, _, _ := startHub(t)

	s := newFake("a")
	h.Register(s)
	h.Unregister(s)
	h.Unregister(s)
	h.Unregister(newFake("never-registered"))

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 1, s.closeCount())
}

func TestHub_LateSubscriberMissesEarlierEnvelopes(t *testing.T) {
	h, _, _ := startHub(t)

	early := newFake("early")
	h.Register(early)
	h.Broadcast(position(1))

	late := newFake("late")
	h.Register(late)
	h.Broadcast(position(2))
	h.Len() // barrier: the second broadcast has completed

	assert.Len(t, early.messages(), 2)
	assert.Len(t, late.messages(), 1)
}

func TestHub_ConcurrentRegistration(t *testing.T) {
	h, _, _ := startHub(t)

	var wg sync.WaitGroup
	subs := make([]*fakeSubscriber, 50)
	for i := range subs {
		subs[i] = newFake(fmt.Sprintf("sub-%d", i))
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, s := range subs {
			h.Register(s)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.Broadcast(position(uint32(i)))
		}
	}()
	wg.Wait()

	require.Equal(t, len(subs), h.Len())
	for _, s := range subs {
		got := s.messages()
		assert.LessOrEqual(t, len(got), 100)
		// no duplicates and in order
		for i := 1; i < len(got); i++ {
			assert.NotEqual(t, got[i-1].Data, got[i].Data)
		}
	}
}

type badPayload struct {
	C chan int `json:"c"`
}

func (badPayload) EventType() string { return "bad" }

func TestHub_SerializationErrorSkipsBroadcast(t *testing.T) {
	m := metrics.New(nil)
	h, _, _ := startHub(t, WithMetrics(m))

	s := newFake("a")
	h.Register(s)

	h.Broadcast(event.New(badPayload{C: make(chan int)}, time.Now()))
	h.Broadcast(position(7))
	assert.Equal(t, 1, h.Len())

	assert.Len(t, s.messages(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SerializationErrs))
}

func TestHub_StopClosesSubscribers(t *testing.T) {
	h, cancel, errc := startHub(t)

	a, b := newFake("a"), newFake("b")
	h.Register(a)
	h.Register(b)
	require.Equal(t, 2, h.Len())

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 1, a.closeCount())
	assert.Equal(t, 1, b.closeCount())

	// after stop: registrations are closed, broadcasts are discarded
	c := newFake("c")
	h.Register(c)
	assert.Equal(t, 1, c.closeCount())
	h.Broadcast(position(1))
	assert.Equal(t, 0, h.Len())
}
