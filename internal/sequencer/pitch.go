package sequencer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/satindergrewal/beatgrid/internal/synth"
)

// DefaultMidi is used for note names that cannot be parsed (middle C).
const DefaultMidi = 60

// LegacyVelocity is given to notes converted from the unquantized format.
const LegacyVelocity = 0.8

var pitchClasses = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ParseNoteName parses scientific pitch notation such as "C4", "F#3" or
// "Bb-1" into a MIDI note number.
func ParseNoteName(name string) (int, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return 0, fmt.Errorf("empty note name")
	}
	pc, ok := pitchClasses[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note name %q", name)
	}
	s = s[1:]
	for len(s) > 0 && (s[0] == '#' || s[0] == 'b') {
		if s[0] == '#' {
			pc++
		} else {
			pc--
		}
		s = s[1:]
	}
	octave, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in note name %q", name)
	}
	midi := (octave+1)*12 + pc
	if midi < 0 || midi > 127 {
		return 0, fmt.Errorf("note %q out of MIDI range", name)
	}
	return midi, nil
}

// NoteNameToMidi is ParseNoteName with a middle-C fallback.
func NoteNameToMidi(name string) int {
	midi, err := ParseNoteName(name)
	if err != nil {
		return DefaultMidi
	}
	return midi
}

// MidiToNoteName formats a MIDI note number using sharps, e.g. 61 -> "C#4".
func MidiToNoteName(midi int) string {
	return sharpNames[((midi%12)+12)%12] + strconv.Itoa(floorDiv(midi, 12)-1)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// NotesToMidi converts legacy notes into a track for inst.
func NotesToMidi(notes []Note, inst synth.Instrument) MidiTrackData {
	out := MidiTrackData{
		Notes:      make([]MidiNote, 0, len(notes)),
		Instrument: inst,
		Name:       string(inst) + " Track",
	}
	for _, n := range notes {
		out.Notes = append(out.Notes, MidiNote{
			Midi:     NoteNameToMidi(n.Note),
			Name:     n.Note,
			Time:     n.StartTime,
			Duration: n.Duration,
			Velocity: LegacyVelocity,
		})
	}
	return out
}

// MidiToNotes drops the MIDI-only fields.
func MidiToNotes(data MidiTrackData) []Note {
	out := make([]Note, 0, len(data.Notes))
	for _, n := range data.Notes {
		out = append(out, Note{Note: n.Name, StartTime: n.Time, Duration: n.Duration})
	}
	return out
}
