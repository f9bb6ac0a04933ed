// Package synth renders the sequencer's sound sources: preset instrument
// voices for note data, the built-in row tones, and raw sample playback.
package synth

import "math"

// Voice is one ephemeral sound-producing instance.
//
// Render adds the voice's next len(dst)/2 frames into dst (interleaved
// stereo) and reports whether the voice still has sound left to produce.
// A voice that returned false must not be rendered again.
type Voice interface {
	Render(dst []float32) bool
}

// Event is one note handed to an instrument voice. Offset is measured from the
// moment the voice starts rendering.
type Event struct {
	Offset   float64 // seconds
	Duration float64 // seconds
	Freq     float64 // Hz
	Velocity float64 // 0..1
}

// MidiToFreq converts a MIDI note number to Hz (A4 = 69 = 440 Hz).
func MidiToFreq(midi int) float64 {
	return 440 * math.Pow(2, float64(midi-69)/12)
}

// generator produces the mono signal for a single note.
type generator interface {
	next() float64
	finished() bool
}

type scheduledNote struct {
	start int // sample offset
	ev    Event
	gen   generator
	done  bool
}

// noteVoice plays a list of events through one instrument preset.
type noteVoice struct {
	preset Preset
	rate   int
	notes  []*scheduledNote
	pos    int
}

// NewNoteVoice builds a voice that plays events with the preset for inst.
// Unknown instruments use the default lead.
func NewNoteVoice(inst Instrument, events []Event, rate int) Voice {
	v := &noteVoice{preset: PresetFor(inst), rate: rate}
	for _, ev := range events {
		if ev.Duration <= 0 {
			ev.Duration = minNoteDuration
		}
		v.notes = append(v.notes, &scheduledNote{
			start: int(ev.Offset * float64(rate)),
			ev:    ev,
		})
	}
	return v
}

func (v *noteVoice) Render(dst []float32) bool {
	for i := 0; i+1 < len(dst); i += 2 {
		var sum float64
		for _, n := range v.notes {
			if n.done || v.pos < n.start {
				continue
			}
			if n.gen == nil {
				if v.preset.Mono {
					v.cutSounding(n)
				}
				n.gen = v.preset.newGenerator(n.ev, v.rate)
			}
			sum += n.gen.next() * n.ev.Velocity * v.preset.Gain
			if n.gen.finished() {
				n.done = true
			}
		}
		s := float32(sum)
		dst[i] += s
		dst[i+1] += s
		v.pos++
	}
	return !v.allDone()
}

// cutSounding silences every note already playing; mono presets have one
// voice, so a new note steals it.
func (v *noteVoice) cutSounding(except *scheduledNote) {
	for _, n := range v.notes {
		if n != except && n.gen != nil {
			n.done = true
		}
	}
}

func (v *noteVoice) allDone() bool {
	for _, n := range v.notes {
		if !n.done {
			return false
		}
	}
	return true
}

// minNoteDuration is used for notes that arrive without a duration.
const minNoteDuration = 0.1
