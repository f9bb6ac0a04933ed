// Package dispatch turns grid hits into sounding voices and tracks them until
// they are released.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/satindergrewal/beatgrid/internal/audio"
	"github.com/satindergrewal/beatgrid/internal/sequencer"
	"github.com/satindergrewal/beatgrid/internal/synth"
)

// DefaultReleaseTail is how long a voice is kept after its last note ends.
const DefaultReleaseTail = 500 * time.Millisecond

// AudioOutput is where voices sound.
type AudioOutput interface {
	// Activate prepares the output. It is called before the first voice
	// starts and must be safe to call more than once.
	Activate() error
	Start(v synth.Voice)
	Stop(v synth.Voice)
}

// Timer is a pending release.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SampleLoader fetches and decodes the audio behind a sample reference.
type SampleLoader func(ctx context.Context, ref string) (audio.Buffer, error)

type entry struct {
	voice synth.Voice
	timer Timer
}

// Dispatcher starts voices for hits and releases each one exactly once,
// either when its release timer fires or on StopAll.
type Dispatcher struct {
	out   AudioOutput
	rate  int
	tail  time.Duration
	after AfterFunc
	load  SampleLoader

	activateMu sync.Mutex
	activated  bool

	mu      sync.Mutex
	voices  map[*entry]struct{}
	samples map[string]audio.Buffer
}

// New creates a dispatcher rendering at rate Hz into out. load may be nil
// when no sample tracks are used.
func New(out AudioOutput, rate int, tail time.Duration, load SampleLoader) *Dispatcher {
	if tail <= 0 {
		tail = DefaultReleaseTail
	}
	return &Dispatcher{
		out:     out,
		rate:    rate,
		tail:    tail,
		after:   realAfterFunc,
		load:    load,
		voices:  make(map[*entry]struct{}),
		samples: make(map[string]audio.Buffer),
	}
}

// DispatchStep plays every hit of one step.
func (d *Dispatcher) DispatchStep(hits []sequencer.Hit) {
	for _, h := range hits {
		d.Dispatch(h)
	}
}

// Dispatch plays one hit. Anything that cannot sound is logged and dropped.
func (d *Dispatcher) Dispatch(h sequencer.Hit) {
	t := h.Track
	switch {
	case t.Instrument != "" && len(h.Notes) > 0:
		events, end := noteEvents(h.Notes, false)
		d.play(synth.NewNoteVoice(t.Instrument, events, d.rate), end)

	case h.Quantized && len(h.Notes) == 0:
		// Nothing transcribed lands on this step; only a loaded sample sounds.
		if buf, ok := d.sampleFor(t); ok {
			d.play(synth.NewSampleVoice(buf, d.rate), buf.Duration().Seconds())
		}

	case t.Kind == sequencer.KindSample && t.SampleRef != "":
		buf, ok := d.sampleFor(t)
		if !ok {
			log.Printf("Sample %s for track %s not loaded, skipping", t.SampleRef, t.Label)
			return
		}
		d.play(synth.NewSampleVoice(buf, d.rate), buf.Duration().Seconds())

	default:
		d.play(synth.NewRowTone(h.Row, d.rate), synth.RowToneDuration)
	}
}

// Preview plays a whole note sequence from its first note, as recorded.
func (d *Dispatcher) Preview(inst synth.Instrument, notes []sequencer.MidiNote) {
	if len(notes) == 0 {
		return
	}
	events, end := noteEvents(notes, true)
	d.play(synth.NewNoteVoice(inst, events, d.rate), end)
}

// noteEvents converts notes to voice events. With timed set, each note keeps
// its recorded start; otherwise all notes start together. end is the latest
// note end in seconds.
func noteEvents(notes []sequencer.MidiNote, timed bool) ([]synth.Event, float64) {
	events := make([]synth.Event, 0, len(notes))
	var end float64
	for _, n := range notes {
		dur := n.Duration
		if dur <= 0 {
			dur = 0.1
		}
		var offset float64
		if timed {
			offset = math.Max(0, n.Time)
		}
		vel := n.Velocity
		if vel <= 0 {
			vel = 1
		}
		events = append(events, synth.Event{
			Offset:   offset,
			Duration: dur,
			Freq:     synth.MidiToFreq(n.Midi),
			Velocity: vel,
		})
		end = math.Max(end, offset+dur)
	}
	return events, end
}

func (d *Dispatcher) play(v synth.Voice, seconds float64) {
	if err := d.activate(); err != nil {
		log.Printf("Audio output unavailable: %v", err)
		return
	}
	d.out.Start(v)

	e := &entry{voice: v}
	life := time.Duration(seconds*float64(time.Second)) + d.tail
	d.mu.Lock()
	d.voices[e] = struct{}{}
	e.timer = d.after(life, func() { d.release(e) })
	d.mu.Unlock()
}

func (d *Dispatcher) activate() error {
	d.activateMu.Lock()
	defer d.activateMu.Unlock()
	if d.activated {
		return nil
	}
	if err := d.out.Activate(); err != nil {
		return fmt.Errorf("activate output: %w", err)
	}
	d.activated = true
	return nil
}

func (d *Dispatcher) release(e *entry) {
	d.mu.Lock()
	if _, ok := d.voices[e]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.voices, e)
	d.mu.Unlock()
	d.out.Stop(e.voice)
}

// StopAll cancels every pending release and stops every voice now.
func (d *Dispatcher) StopAll() {
	d.mu.Lock()
	entries := make([]*entry, 0, len(d.voices))
	for e := range d.voices {
		e.timer.Stop()
		entries = append(entries, e)
	}
	clear(d.voices)
	d.mu.Unlock()

	for _, e := range entries {
		d.out.Stop(e.voice)
	}
}

// Active is the number of voices awaiting release. Each holds one timer.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.voices)
}
