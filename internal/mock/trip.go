package mock

import (
	"errors"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"les02bridge/internal/can"
)

// ErrProfileTooShort is returned when the distance does not leave room to
// reach full speed and brake again.
var ErrProfileTooShort = errors.New("mock: distance too short for given acceleration")

// Profile describes an elevator ride with a trapezoidal velocity curve.
type Profile struct {
	Distance      float64 // m
	MaxVelocity   float64 // m/s
	Acceleration  float64 // m/s²
	FrequencyHz   float64
	Pause         time.Duration
	InitialDelay  time.Duration
	UnitsPerMeter float64
}

// DefaultProfile is a 10 m shaft travelled at up to 1.5 m/s.
func DefaultProfile() Profile {
	return Profile{
		Distance:      10,
		MaxVelocity:   1.5,
		Acceleration:  0.4,
		FrequencyHz:   10,
		Pause:         5 * time.Second,
		InitialDelay:  5 * time.Second,
		UnitsPerMeter: 1000,
	}
}

func (p Profile) step() float64 { return 1 / p.FrequencyHz }

// Trip rides up and down the shaft forever, pausing at each end.
type Trip struct {
	profile   Profile
	ids       ids
	direction float64
	pending   []uint32
	wait      time.Duration
	*sleeper
}

// NewTrip validates p and returns a generator. A nil clock uses the wall clock.
func NewTrip(p Profile, c clock.Clock) (*Trip, error) {
	if p.FrequencyHz <= 0 || p.MaxVelocity <= 0 || p.Acceleration <= 0 {
		return nil, errors.New("mock: frequency, velocity and acceleration must be positive")
	}
	tAcc := p.MaxVelocity / p.Acceleration
	dAcc := 0.5 * p.Acceleration * tAcc * tAcc
	if 2*dAcc > p.Distance {
		return nil, ErrProfileTooShort
	}
	return &Trip{
		profile:   p,
		direction: 1,
		wait:      p.InitialDelay,
		sleeper:   newSleeper(c),
	}, nil
}

// Receive returns the next position frame of the current trip.
func (t *Trip) Receive() (can.Frame, error) {
	if err := t.sleep(t.wait); err != nil {
		return can.Frame{}, err
	}
	if len(t.pending) == 0 {
		t.pending = t.profile.ride(t.direction)
		t.direction = -t.direction
	}

	pos := t.pending[0]
	t.pending = t.pending[1:]
	if len(t.pending) == 0 {
		t.wait = t.profile.Pause
	} else {
		t.wait = time.Duration(t.profile.step() * float64(time.Second))
	}

	return positionFrame(t.ids.take(), pos, t.clock.Now()), nil
}

// Close stops the generator.
func (t *Trip) Close() error {
	t.close()
	return nil
}

// ride returns every sampled position of one trip in encoder units.
// direction is +1 (up from 0) or -1 (down from Distance).
func (p Profile) ride(direction float64) []uint32 {
	dt := p.step()
	tAcc := p.MaxVelocity / p.Acceleration
	dAcc := 0.5 * p.Acceleration * tAcc * tAcc
	tConst := (p.Distance - 2*dAcc) / p.MaxVelocity

	position := 0.0
	if direction < 0 {
		position = p.Distance
	}

	var out []uint32
	advance := func(velocity float64) {
		position += velocity * dt * direction
		position = math.Max(0, math.Min(p.Distance, position))
		out = append(out, p.units(position))
	}

	for t := 0.0; t < tAcc; t += dt {
		advance(p.Acceleration * t)
	}
	for t := 0.0; t < tConst; t += dt {
		advance(p.MaxVelocity)
	}
	for t := 0.0; t < tAcc; t += dt {
		advance(p.MaxVelocity - p.Acceleration*t)
	}

	// land exactly on the end stop
	end := 0.0
	if direction > 0 {
		end = p.Distance
	}
	return append(out, p.units(end))
}

func (p Profile) units(meters float64) uint32 {
	return uint32(int64(meters*p.UnitsPerMeter)) & 0xFFFFFF
}
