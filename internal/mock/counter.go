package mock

import (
	"time"

	"github.com/benbjohnson/clock"

	"les02bridge/internal/can"
)

// Counter emits a position that grows by one with every frame, alternating
// Master and Slave ids at a fixed interval.
type Counter struct {
	interval time.Duration
	ids      ids
	position uint32
	*sleeper
}

// NewCounter returns a counter ticking every interval. A nil clock uses
// the wall clock.
func NewCounter(interval time.Duration, c clock.Clock) *Counter {
	return &Counter{
		interval: interval,
		sleeper:  newSleeper(c),
	}
}

// Receive waits one interval and returns the next frame.
func (c *Counter) Receive() (can.Frame, error) {
	if err := c.sleep(c.interval); err != nil {
		return can.Frame{}, err
	}
	c.position = (c.position + 1) & 0xFFFFFF
	return positionFrame(c.ids.take(), c.position, c.clock.Now()), nil
}

// Close stops the generator.
func (c *Counter) Close() error {
	c.close()
	return nil
}
