// Package mock generates synthetic LES02 position frames. The generators
// implement can.Source and are interchangeable with a live bus.
package mock

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"les02bridge/internal/can"
)

// ids alternates between the Master and Slave position ids.
type ids struct {
	next uint16
}

func (i *ids) take() uint16 {
	id := can.BasePosition | i.next
	i.next ^= 1
	return id
}

// positionFrame encodes a 24-bit position, MSB first, byte 3 reserved.
func positionFrame(id uint16, pos uint32, at time.Time) can.Frame {
	pos &= 0xFFFFFF
	return can.NewFrame(id, []byte{byte(pos >> 16), byte(pos >> 8), byte(pos), 0x00}, at)
}

// sleeper waits on a clock and can be interrupted by close.
type sleeper struct {
	clock clock.Clock
	done  chan struct{}
	once  sync.Once
}

func newSleeper(c clock.Clock) *sleeper {
	if c == nil {
		c = clock.New()
	}
	return &sleeper{clock: c, done: make(chan struct{})}
}

func (s *sleeper) sleep(d time.Duration) error {
	select {
	case <-s.done:
		return can.ErrClosed
	default:
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-s.clock.After(d):
		return nil
	case <-s.done:
		return can.ErrClosed
	}
}

func (s *sleeper) close() {
	s.once.Do(func() { close(s.done) })
}
