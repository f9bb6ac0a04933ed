package synth

import (
	"math"
	"math/rand"
	"strings"
)

// Instrument selects the voice algorithm for tracks that carry notes.
type Instrument string

const (
	Trumpet       Instrument = "trumpet"
	SynthLead     Instrument = "synthLead"
	PluckedString Instrument = "pluckedString"
	SubBass       Instrument = "subBass"
	DrumMachine   Instrument = "drumMachine"
)

// Instruments lists every supported instrument in display order.
var Instruments = []Instrument{Trumpet, SynthLead, PluckedString, SubBass, DrumMachine}

// instrumentAliases maps the names older project files used.
var instrumentAliases = map[string]Instrument{
	"juno":   SynthLead,
	"guitar": PluckedString,
	"bass":   SubBass,
	"909":    DrumMachine,
}

// ParseInstrument resolves an instrument name or legacy alias.
func ParseInstrument(s string) (Instrument, bool) {
	for _, inst := range Instruments {
		if strings.EqualFold(s, string(inst)) {
			return inst, true
		}
	}
	if inst, ok := instrumentAliases[strings.ToLower(s)]; ok {
		return inst, true
	}
	return "", false
}

// UnmarshalText normalizes legacy aliases. Unknown names are kept verbatim and
// play with the default preset.
func (i *Instrument) UnmarshalText(b []byte) error {
	if inst, ok := ParseInstrument(string(b)); ok {
		*i = inst
		return nil
	}
	*i = Instrument(b)
	return nil
}

// Preset is a fixed timbre: oscillator plus envelope parameters.
type Preset struct {
	Name  Instrument
	Kind  PresetKind
	Wave  Waveform
	Width float64 // pulse duty cycle
	Env   ADSR
	Gain  float64
	Mono  bool

	// Plucked string
	AttackNoise float64
	Dampening   float64 // Hz
	Resonance   float64

	// Membrane
	PitchDecay float64 // seconds
	Octaves    float64

	// Filtered mono-synth
	FilterQ      float64
	FilterEnv    ADSR
	BaseFreq     float64
	FilterOctave float64
	FilterExp    float64
}

// PresetKind is the synthesis model a preset uses.
type PresetKind int

const (
	KindOscillator PresetKind = iota
	KindPluck
	KindMembrane
	KindFilteredMono
)

var presets = map[Instrument]Preset{
	SynthLead: {
		Name:  SynthLead,
		Kind:  KindOscillator,
		Wave:  WavePulse,
		Width: 0.2,
		Env:   ADSR{Attack: 0.05, Decay: 0.1, Sustain: 0.3, Release: 1},
		Gain:  0.3,
	},
	PluckedString: {
		Name:        PluckedString,
		Kind:        KindPluck,
		Env:         ADSR{Release: 1},
		Gain:        0.5,
		AttackNoise: 1,
		Dampening:   4000,
		Resonance:   0.7,
	},
	SubBass: {
		Name:         SubBass,
		Kind:         KindFilteredMono,
		Wave:         WaveSquare,
		Env:          ADSR{Attack: 0.005, Decay: 0.1, Sustain: 0.9, Release: 1},
		Gain:         0.3,
		Mono:         true,
		FilterQ:      6,
		FilterEnv:    ADSR{Attack: 0.06, Decay: 0.2, Sustain: 0.5, Release: 2},
		BaseFreq:     200,
		FilterOctave: 7,
		FilterExp:    2,
	},
	DrumMachine: {
		Name:       DrumMachine,
		Kind:       KindMembrane,
		Wave:       WaveSine,
		Env:        ADSR{Attack: 0.001, Decay: 0.4, Sustain: 0.01, Release: 1.4},
		Gain:       0.6,
		PitchDecay: 0.05,
		Octaves:    10,
	},
	Trumpet: {
		Name: Trumpet,
		Kind: KindOscillator,
		Wave: WaveSawtooth,
		Env:  ADSR{Attack: 0.05, Decay: 0.1, Sustain: 0.3, Release: 1},
		Gain: 0.3,
	},
}

// PresetFor returns the preset for inst, falling back to the trumpet lead.
func PresetFor(inst Instrument) Preset {
	if p, ok := presets[inst]; ok {
		return p
	}
	return presets[Trumpet]
}

// Tail is how long a note keeps sounding after its gate closes.
func (p Preset) Tail() float64 {
	if p.Kind == KindFilteredMono {
		return math.Max(p.Env.Release, p.FilterEnv.Release)
	}
	return p.Env.Release
}

func (p Preset) newGenerator(ev Event, rate int) generator {
	r := float64(rate)
	switch p.Kind {
	case KindPluck:
		return newPluck(p, ev, r)
	case KindMembrane:
		return &membrane{p: p, ev: ev, osc: oscillator{wave: p.Wave, rate: r}, rate: r}
	case KindFilteredMono:
		return &filteredMono{p: p, ev: ev, osc: oscillator{wave: p.Wave, rate: r}, rate: r}
	default:
		return &enveloped{p: p, ev: ev, osc: oscillator{wave: p.Wave, width: p.Width, rate: r}, rate: r}
	}
}

// enveloped is a plain oscillator through the amplitude envelope.
type enveloped struct {
	p    Preset
	ev   Event
	osc  oscillator
	rate float64
	n    int
}

func (g *enveloped) next() float64 {
	t := float64(g.n) / g.rate
	g.n++
	return g.osc.step(g.ev.Freq) * g.p.Env.Level(t, g.ev.Duration)
}

func (g *enveloped) finished() bool {
	return float64(g.n)/g.rate >= g.p.Env.End(g.ev.Duration)
}

// membrane sweeps the oscillator from Octaves times the note frequency down
// to the note over PitchDecay.
type membrane struct {
	p    Preset
	ev   Event
	osc  oscillator
	rate float64
	n    int
}

func (g *membrane) next() float64 {
	t := float64(g.n) / g.rate
	g.n++
	freq := expRamp(g.ev.Freq*g.p.Octaves, g.ev.Freq, g.p.PitchDecay, t)
	return g.osc.step(freq) * g.p.Env.Level(t, g.ev.Duration)
}

func (g *membrane) finished() bool {
	return float64(g.n)/g.rate >= g.p.Env.End(g.ev.Duration)
}

// filteredMono runs the oscillator through two cascaded resonant low-pass
// sections (24 dB/oct) whose cutoff follows the filter envelope.
type filteredMono struct {
	p    Preset
	ev   Event
	osc  oscillator
	rate float64
	n    int
	lp1  biquad
	lp2  biquad
}

func (g *filteredMono) next() float64 {
	t := float64(g.n) / g.rate
	if g.n%32 == 0 {
		env := math.Pow(g.p.FilterEnv.Level(t, g.ev.Duration), g.p.FilterExp)
		cutoff := g.p.BaseFreq * math.Pow(2, g.p.FilterOctave*env)
		g.lp1.setLowpass(cutoff, g.p.FilterQ, g.rate)
		g.lp2.setLowpass(cutoff, math.Sqrt2/2, g.rate)
	}
	g.n++
	x := g.osc.step(g.ev.Freq) * g.p.Env.Level(t, g.ev.Duration)
	return g.lp2.process(g.lp1.process(x))
}

func (g *filteredMono) finished() bool {
	return float64(g.n)/g.rate >= g.p.Env.End(g.ev.Duration)
}

// pluck is a Karplus-Strong string: a noise burst circulating through a
// damped delay line one period long.
type pluck struct {
	p    Preset
	ev   Event
	rate float64
	ring []float64
	idx  int
	damp onePole
	n    int
	end  int
}

func newPluck(p Preset, ev Event, rate float64) *pluck {
	period := max(2, int(rate/math.Max(ev.Freq, 20)))
	g := &pluck{
		p:    p,
		ev:   ev,
		rate: rate,
		ring: make([]float64, period),
		damp: newOnePole(p.Dampening, rate),
		end:  int(p.Env.End(ev.Duration) * rate),
	}
	for i := range g.ring {
		g.ring[i] = (rand.Float64()*2 - 1) * p.AttackNoise
	}
	return g
}

func (g *pluck) next() float64 {
	y := g.ring[g.idx]
	g.ring[g.idx] = g.damp.process(y) * g.feedback()
	g.idx = (g.idx + 1) % len(g.ring)
	g.n++
	return y
}

// feedback holds Resonance while the gate is open, then ramps to zero over
// the release.
func (g *pluck) feedback() float64 {
	t := float64(g.n) / g.rate
	if t < g.ev.Duration {
		return g.p.Resonance
	}
	rt := (t - g.ev.Duration) / g.p.Env.Release
	return g.p.Resonance * math.Max(0, 1-rt)
}

func (g *pluck) finished() bool {
	return g.n >= g.end
}
