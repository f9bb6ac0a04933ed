package sequencer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/satindergrewal/beatgrid/internal/synth"
)

// Kind says where a track's sound comes from when it has no notes.
type Kind string

const (
	KindSynth  Kind = "synth"
	KindSample Kind = "sample"
)

// Note is a legacy, unquantized note as older transcriptions returned it.
type Note struct {
	Note      string  `json:"note"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
}

// MidiNote is a transcribed note. QuantizedStep is nil until the note has
// been snapped to the grid.
type MidiNote struct {
	Midi          int     `json:"midi"`
	Name          string  `json:"name"`
	Time          float64 `json:"time"`
	Duration      float64 `json:"duration"`
	Velocity      float64 `json:"velocity"`
	QuantizedStep *int    `json:"quantizedStep,omitempty"`
}

// Step returns the note's grid step, if it has one.
func (n MidiNote) Step() (int, bool) {
	if n.QuantizedStep == nil {
		return 0, false
	}
	return *n.QuantizedStep, true
}

// MidiTrackData is a named note sequence bound to an instrument.
type MidiTrackData struct {
	Notes      []MidiNote       `json:"notes"`
	Instrument synth.Instrument `json:"instrument"`
	Name       string           `json:"name"`
}

// NoteData is the note payload of a track: Unquantized, Quantized, or nil.
type NoteData interface {
	Len() int
	noteData()
}

type (
	Unquantized []Note
	Quantized   []MidiNote
)

func (u Unquantized) Len() int { return len(u) }
func (q Quantized) Len() int   { return len(q) }
func (Unquantized) noteData()  {}
func (Quantized) noteData()    {}

// HasSteps reports whether any note carries a grid step.
func (q Quantized) HasSteps() bool {
	for _, n := range q {
		if n.QuantizedStep != nil {
			return true
		}
	}
	return false
}

// Track is one row of the grid. Its row index is its position in the
// sequencer and is not stored.
type Track struct {
	ID         string
	Label      string
	Kind       Kind
	SampleRef  string
	Instrument synth.Instrument
	Notes      NoteData
}

type trackJSON struct {
	ID         string           `json:"id"`
	Label      string           `json:"label"`
	Kind       Kind             `json:"type"`
	SampleRef  string           `json:"sampleRef,omitempty"`
	Instrument synth.Instrument `json:"instrument,omitempty"`
	Notes      json.RawMessage  `json:"notes,omitempty"`
	MidiData   *MidiTrackData   `json:"midiData,omitempty"`
}

func (t Track) MarshalJSON() ([]byte, error) {
	out := trackJSON{
		ID:         t.ID,
		Label:      t.Label,
		Kind:       t.Kind,
		SampleRef:  t.SampleRef,
		Instrument: t.Instrument,
	}
	if t.Notes != nil {
		raw, err := json.Marshal(t.Notes)
		if err != nil {
			return nil, err
		}
		out.Notes = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts notes in either shape under "notes", and the
// recording-style "midiData" object.
func (t *Track) UnmarshalJSON(b []byte) error {
	var in trackJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*t = Track{
		ID:         in.ID,
		Label:      in.Label,
		Kind:       in.Kind,
		SampleRef:  in.SampleRef,
		Instrument: in.Instrument,
	}
	if t.Kind == "" {
		t.Kind = KindSynth
	}
	switch {
	case len(in.Notes) > 0 && !bytes.Equal(in.Notes, []byte("null")):
		nd, err := decodeNotes(in.Notes)
		if err != nil {
			return fmt.Errorf("track %s notes: %w", in.ID, err)
		}
		t.Notes = nd
	case in.MidiData != nil:
		t.Notes = Quantized(in.MidiData.Notes)
		if t.Instrument == "" {
			t.Instrument = in.MidiData.Instrument
		}
	}
	return nil
}

// decodeNotes tells the two note shapes apart by the presence of a "midi"
// field on the first element.
func decodeNotes(raw json.RawMessage) (NoteData, error) {
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if len(probe) == 0 {
		return nil, nil
	}
	if _, ok := probe[0]["midi"]; ok {
		var q Quantized
		err := json.Unmarshal(raw, &q)
		return q, err
	}
	var u Unquantized
	err := json.Unmarshal(raw, &u)
	return u, err
}
