package synth

import "math"

// ADSR is an amplitude envelope. Times are seconds, Sustain is a level.
type ADSR struct {
	Attack  float64
	Decay   float64
	Sustain float64
	Release float64
}

// Level returns the envelope value t seconds after note-on for a note held
// for gate seconds.
func (e ADSR) Level(t, gate float64) float64 {
	if t < 0 {
		return 0
	}
	if t < gate {
		return e.held(t)
	}
	if e.Release <= 0 {
		return 0
	}
	rt := t - gate
	if rt >= e.Release {
		return 0
	}
	return e.held(gate) * (1 - rt/e.Release)
}

// End is the time at which the envelope reaches silence.
func (e ADSR) End(gate float64) float64 {
	return gate + e.Release
}

func (e ADSR) held(t float64) float64 {
	if t < e.Attack {
		return t / e.Attack
	}
	t -= e.Attack
	if t < e.Decay {
		return 1 - (1-e.Sustain)*(t/e.Decay)
	}
	return e.Sustain
}

// expRamp follows the exponential ramp from v0 to v1 over dur seconds and
// holds v1 afterwards.
func expRamp(v0, v1, dur, t float64) float64 {
	if t <= 0 {
		return v0
	}
	if t >= dur {
		return v1
	}
	return v0 * math.Pow(v1/v0, t/dur)
}
