// Package sequencer holds the step grid: an ordered list of tracks, each
// paired with its row of 32 step cells.
package sequencer

import (
	"errors"
	"fmt"
	"math"
)

// Steps is the number of cells in a row.
const Steps = 32

var (
	ErrDuplicateTrack = errors.New("duplicate track id")
	ErrTrackNotFound  = errors.New("track not found")
	ErrShapeMismatch  = errors.New("pattern rows do not match tracks")
)

// row keeps a track and its cells in one slot, so adding or removing a
// track can never leave the grid out of step with the track list.
type row struct {
	track Track
	steps [Steps]bool
}

// Sequencer is the step grid. It is not safe for concurrent use.
type Sequencer struct {
	rows []row
}

func New() *Sequencer {
	return &Sequencer{}
}

// FromState builds a sequencer from parallel track and pattern slices.
// Pattern rows must already be Steps long.
func FromState(tracks []Track, pattern [][]bool) (*Sequencer, error) {
	if len(tracks) != len(pattern) {
		return nil, fmt.Errorf("%w: %d tracks, %d rows", ErrShapeMismatch, len(tracks), len(pattern))
	}
	s := New()
	for i, t := range tracks {
		if len(pattern[i]) != Steps {
			return nil, fmt.Errorf("%w: row %d has %d steps", ErrShapeMismatch, i, len(pattern[i]))
		}
		if err := s.AddTrack(t, pattern[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Len is the number of tracks, and therefore of rows.
func (s *Sequencer) Len() int { return len(s.rows) }

// AddTrack appends t with the given initial cells. A nil row starts empty;
// entries past Steps are ignored.
func (s *Sequencer) AddTrack(t Track, initial []bool) error {
	if _, ok := s.index(t.ID); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTrack, t.ID)
	}
	r := row{track: t}
	copy(r.steps[:], initial)
	s.rows = append(s.rows, r)
	return nil
}

// RemoveTrack deletes the track with id and its row.
func (s *Sequencer) RemoveTrack(id string) error {
	i, ok := s.index(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return nil
}

// UpdateTrack replaces the track with the same id, keeping its row.
func (s *Sequencer) UpdateTrack(t Track) error {
	i, ok := s.index(t.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, t.ID)
	}
	s.rows[i].track = t
	return nil
}

// Toggle flips one cell. Out-of-range coordinates are ignored and reported
// as false.
func (s *Sequencer) Toggle(rowIdx, col int) bool {
	if rowIdx < 0 || rowIdx >= len(s.rows) || col < 0 || col >= Steps {
		return false
	}
	s.rows[rowIdx].steps[col] = !s.rows[rowIdx].steps[col]
	return true
}

// Cell reports whether a cell is on. Out-of-range cells are off.
func (s *Sequencer) Cell(rowIdx, col int) bool {
	if rowIdx < 0 || rowIdx >= len(s.rows) || col < 0 || col >= Steps {
		return false
	}
	return s.rows[rowIdx].steps[col]
}

// Track looks up a track and its current row index.
func (s *Sequencer) Track(id string) (Track, int, bool) {
	i, ok := s.index(id)
	if !ok {
		return Track{}, -1, false
	}
	return s.rows[i].track, i, true
}

// Tracks returns the tracks in row order.
func (s *Sequencer) Tracks() []Track {
	out := make([]Track, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.track
	}
	return out
}

// Pattern returns a copy of the grid, one slice per track.
func (s *Sequencer) Pattern() [][]bool {
	out := make([][]bool, len(s.rows))
	for i := range s.rows {
		out[i] = append([]bool(nil), s.rows[i].steps[:]...)
	}
	return out
}

func (s *Sequencer) index(id string) (int, bool) {
	for i, r := range s.rows {
		if r.track.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Hit is one track that sounds on a step.
type Hit struct {
	Row   int
	Track Track
	// Notes are the notes to voice on this step. Empty for tracks without
	// note data, and for quantized tracks with nothing at this step.
	Notes []MidiNote
	// Quantized is set when the track carries grid-aligned notes.
	Quantized bool
	// Degraded marks a first-note preview of notes that have no step
	// information.
	Degraded bool
}

// HotTracks returns, in row order, every track whose cell at step is on.
func (s *Sequencer) HotTracks(step int) []Hit {
	if step < 0 || step >= Steps {
		return nil
	}
	var hits []Hit
	for i, r := range s.rows {
		if !r.steps[step] {
			continue
		}
		hits = append(hits, resolve(i, r.track, step))
	}
	return hits
}

func resolve(rowIdx int, t Track, step int) Hit {
	h := Hit{Row: rowIdx, Track: t}
	switch nd := t.Notes.(type) {
	case Quantized:
		if len(nd) == 0 {
			break
		}
		if !nd.HasSteps() {
			h.Notes = []MidiNote{nd[0]}
			h.Degraded = true
			break
		}
		h.Quantized = true
		for _, n := range nd {
			if st, ok := n.Step(); ok && st == step {
				h.Notes = append(h.Notes, n)
			}
		}
	case Unquantized:
		if len(nd) == 0 {
			break
		}
		first := nd[0]
		h.Notes = []MidiNote{{
			Midi:     NoteNameToMidi(first.Note),
			Name:     first.Note,
			Time:     first.StartTime,
			Duration: first.Duration,
			Velocity: 1,
		}}
		h.Degraded = true
	}
	return h
}

// StepSeconds is the length of one grid step at tempo: an eighth note.
func StepSeconds(tempo float64) float64 {
	return 60 / tempo / 2
}

// Quantize snaps each note's time to the nearest grid step at tempo,
// wrapping into the loop. The input is not modified.
func Quantize(notes []MidiNote, tempo float64) []MidiNote {
	out := make([]MidiNote, len(notes))
	per := StepSeconds(tempo)
	for i, n := range notes {
		st := int(math.Round(n.Time/per)) % Steps
		if st < 0 {
			st += Steps
		}
		n.QuantizedStep = &st
		out[i] = n
	}
	return out
}

// InitialRow turns quantized notes into a row with their steps switched on.
func InitialRow(notes []MidiNote) []bool {
	r := make([]bool, Steps)
	for _, n := range notes {
		if st, ok := n.Step(); ok && st >= 0 && st < Steps {
			r[st] = true
		}
	}
	return r
}
