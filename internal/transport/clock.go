// Package transport keeps the loop position of the step grid against wall
// clock time.
package transport

import (
	"math"
	"time"
)

const (
	// Steps is the number of grid columns in one loop.
	Steps = 32

	MinTempo     = 60
	MaxTempo     = 200
	DefaultTempo = 125
)

// Clock maps wall-clock time onto a cyclic 32-step loop. The loop spans 16
// beats, so each step is an eighth note.
//
// Clock is not safe for concurrent use; the owner serializes access.
type Clock struct {
	tempo    float64
	running  bool
	anchor   time.Time
	position float64 // [0,1)
	step     int
	lastStep int // -1 means no step has fired since the last reset
}

// NewClock returns a stopped clock at position 0.
func NewClock(tempo float64) *Clock {
	return &Clock{tempo: ClampTempo(tempo), lastStep: -1}
}

// ClampTempo limits bpm to [MinTempo, MaxTempo].
func ClampTempo(bpm float64) float64 {
	if math.IsNaN(bpm) {
		return DefaultTempo
	}
	return math.Min(MaxTempo, math.Max(MinTempo, bpm))
}

// LoopDuration is the length of one full pass over the grid.
func LoopDuration(tempo float64) time.Duration {
	beats := float64(Steps) / 2
	return time.Duration(math.Round(60 / tempo * beats * float64(time.Second)))
}

// StepDuration is the length of one grid step.
func StepDuration(tempo float64) time.Duration {
	return LoopDuration(tempo) / Steps
}

// Start begins running from position. It does nothing if the clock is
// already running.
func (c *Clock) Start(now time.Time, position float64) {
	if c.running {
		return
	}
	c.position = wrap(position)
	c.anchor = c.anchorFor(now, c.position)
	c.running = true
}

// Tick advances the clock to now and reports the current step and whether it
// differs from the step reported by the previous tick. A stopped clock never
// reports a change.
func (c *Clock) Tick(now time.Time) (step int, changed bool) {
	if !c.running {
		return c.step, false
	}
	c.advance(now)
	if c.step == c.lastStep {
		return c.step, false
	}
	c.lastStep = c.step
	return c.step, true
}

func (c *Clock) advance(now time.Time) {
	loop := LoopDuration(c.tempo)
	elapsed := now.Sub(c.anchor) % loop
	if elapsed < 0 {
		elapsed += loop
	}
	c.position = float64(elapsed) / float64(loop)
	c.step = min(Steps-1, int(c.position*Steps))
}

// Stop freezes the position and step. Stopping a stopped clock is a no-op.
func (c *Clock) Stop() {
	c.running = false
}

// Reset rewinds to step 0 and arms the next tick to fire step 0 again.
func (c *Clock) Reset(now time.Time) {
	c.position = 0
	c.step = 0
	c.lastStep = -1
	if c.running {
		c.anchor = now
	}
}

// SetTempo changes the tempo, clamped to the supported range. A running clock
// is re-anchored so the loop position is continuous across the change.
func (c *Clock) SetTempo(now time.Time, bpm float64) {
	if c.running {
		c.advance(now)
	}
	c.tempo = ClampTempo(bpm)
	if c.running {
		c.anchor = c.anchorFor(now, c.position)
	}
}

func (c *Clock) anchorFor(now time.Time, position float64) time.Time {
	offset := time.Duration(math.Round(position * float64(LoopDuration(c.tempo))))
	return now.Add(-offset)
}

func (c *Clock) Tempo() float64    { return c.tempo }
func (c *Clock) Running() bool     { return c.running }
func (c *Clock) Position() float64 { return c.position }
func (c *Clock) Step() int         { return c.step }

func wrap(p float64) float64 {
	p = math.Mod(p, 1)
	if p < 0 {
		p++
	}
	if p >= 1 {
		p = 0
	}
	return p
}
