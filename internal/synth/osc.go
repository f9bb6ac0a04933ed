package synth

import "math"

// Waveform selects an oscillator shape.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveTriangle
	WaveSawtooth
	WaveSquare
	WavePulse
)

// oscillate returns the waveform value at phase (cycles, [0,1)). width is the
// duty cycle for WavePulse.
func oscillate(w Waveform, phase, width float64) float64 {
	switch w {
	case WaveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	case WaveSawtooth:
		return 2*phase - 1
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case WavePulse:
		if phase < width {
			return 1
		}
		return -1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// oscillator is a free-running phase accumulator.
type oscillator struct {
	wave  Waveform
	width float64
	phase float64
	rate  float64
}

func (o *oscillator) step(freq float64) float64 {
	v := oscillate(o.wave, o.phase, o.width)
	o.phase += freq / o.rate
	o.phase -= math.Floor(o.phase)
	return v
}
