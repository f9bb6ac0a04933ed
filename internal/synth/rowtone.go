package synth

// RowToneDuration is how long a built-in row tone sounds, in seconds.
const RowToneDuration = 0.5

// Built-in rows, by convention.
const (
	RowKick = iota
	RowSnare
	RowHats
	RowLead
)

type rowToneParams struct {
	wave         Waveform
	freq, freqTo float64 // freqTo == 0 means constant pitch
	gain         float64
	decay        float64
}

func rowToneFor(row int) rowToneParams {
	switch row {
	case RowKick:
		return rowToneParams{wave: WaveSine, freq: 150, freqTo: 0.01, gain: 1, decay: 0.5}
	case RowSnare:
		return rowToneParams{wave: WaveTriangle, freq: 200, gain: 0.5, decay: 0.2}
	case RowHats:
		return rowToneParams{wave: WaveSquare, freq: 800, gain: 0.1, decay: 0.1}
	default:
		return rowToneParams{wave: WaveSawtooth, freq: 440, gain: 0.2, decay: 0.3}
	}
}

// rowTone is the parametric drum/tone generator used for synth rows that
// have no notes and no sample.
type rowTone struct {
	params rowToneParams
	osc    oscillator
	rate   float64
	n      int
	stop   int
}

// NewRowTone returns the built-in tone for a grid row: 0 kick, 1 snare,
// 2 hats, anything else a short lead blip.
func NewRowTone(row, rate int) Voice {
	r := float64(rate)
	p := rowToneFor(row)
	return &rowTone{
		params: p,
		osc:    oscillator{wave: p.wave, rate: r},
		rate:   r,
		stop:   int(RowToneDuration * r),
	}
}

func (v *rowTone) Render(dst []float32) bool {
	p := v.params
	for i := 0; i+1 < len(dst); i += 2 {
		if v.n >= v.stop {
			return false
		}
		t := float64(v.n) / v.rate
		freq := p.freq
		if p.freqTo > 0 {
			freq = expRamp(p.freq, p.freqTo, p.decay, t)
		}
		s := float32(v.osc.step(freq) * expRamp(p.gain, 0.01, p.decay, t))
		dst[i] += s
		dst[i+1] += s
		v.n++
	}
	return v.n < v.stop
}
