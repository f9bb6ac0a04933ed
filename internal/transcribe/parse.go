package transcribe

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/satindergrewal/beatgrid/internal/sequencer"
)

// ErrMalformedResponse means the service answered with something that is not
// a note list. The caller keeps whatever note data it had.
var ErrMalformedResponse = errors.New("malformed transcription response")

// ParseNotes reads a note list in any of the shapes the service produces: a
// bare array or an object with a "notes" array, optionally inside a markdown
// code fence or wrapped as a model "response"/"text" string. Elements may be
// MIDI notes or legacy {note, startTime, duration} objects.
func ParseNotes(raw []byte) ([]sequencer.MidiNote, error) {
	text := stripFences(string(raw))

	var envelope struct {
		Notes    json.RawMessage `json:"notes"`
		Response *string         `json:"response"`
		Text     *string         `json:"text"`
	}
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		switch {
		case envelope.Notes != nil:
			text = string(envelope.Notes)
		case envelope.Response != nil:
			return ParseNotes([]byte(*envelope.Response))
		case envelope.Text != nil:
			return ParseNotes([]byte(*envelope.Text))
		default:
			return nil, fmt.Errorf("%w: object without notes", ErrMalformedResponse)
		}
	}

	var elems []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	notes := make([]sequencer.MidiNote, 0, len(elems))
	for i, e := range elems {
		n, err := decodeNote(e)
		if err != nil {
			log.Printf("Skipping transcribed note %d: %v", i, err)
			continue
		}
		notes = append(notes, n)
	}
	if len(notes) == 0 && len(elems) > 0 {
		return nil, fmt.Errorf("%w: no usable notes", ErrMalformedResponse)
	}
	return notes, nil
}

func decodeNote(e map[string]json.RawMessage) (sequencer.MidiNote, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return sequencer.MidiNote{}, err
	}

	var n sequencer.MidiNote
	if _, ok := e["midi"]; ok {
		if err := json.Unmarshal(raw, &n); err != nil {
			return n, err
		}
		if n.Name == "" {
			n.Name = sequencer.MidiToNoteName(n.Midi)
		}
		if _, ok := e["velocity"]; !ok {
			n.Velocity = sequencer.LegacyVelocity
		}
	} else {
		var legacy sequencer.Note
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return n, err
		}
		midi, err := sequencer.ParseNoteName(legacy.Note)
		if err != nil {
			return n, err
		}
		n = sequencer.MidiNote{
			Midi:     midi,
			Name:     legacy.Note,
			Time:     legacy.StartTime,
			Duration: legacy.Duration,
			Velocity: sequencer.LegacyVelocity,
		}
	}

	switch {
	case n.Midi < 0 || n.Midi > 127:
		return n, fmt.Errorf("midi %d out of range", n.Midi)
	case n.Time < 0:
		return n, fmt.Errorf("negative start time %v", n.Time)
	case n.Duration <= 0:
		n.Duration = 0.1
	}
	n.Velocity = min(1, max(0, n.Velocity))
	n.QuantizedStep = nil
	return n, nil
}

// stripFences removes markdown code fences around a payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // language tag line
	} else {
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyz")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
