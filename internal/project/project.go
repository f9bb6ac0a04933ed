// Package project persists the grid: its tracks and pattern.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/satindergrewal/beatgrid/internal/sequencer"
	"github.com/satindergrewal/beatgrid/internal/storage"
)

// Key is the storage key of the saved project.
const Key = "beatbrain_project_state"

var ErrInvalidState = errors.New("invalid project state")

// State is the saved form of a sequencer.
type State struct {
	Tracks  []sequencer.Track `json:"tracks"`
	Pattern [][]bool          `json:"pattern"`
}

// Default is the starter kit: four synth rows with a basic beat.
func Default() State {
	tracks := []sequencer.Track{
		{ID: "kick", Label: "KICK", Kind: sequencer.KindSynth},
		{ID: "snare", Label: "SNARE", Kind: sequencer.KindSynth},
		{ID: "hats", Label: "HATS", Kind: sequencer.KindSynth},
		{ID: "synth", Label: "SYNTH", Kind: sequencer.KindSynth},
	}
	pattern := [][]bool{
		stepsOn(0, 4, 8, 12),
		stepsOn(4, 12),
		stepsOn(2, 6, 10, 14),
		stepsOn(),
	}
	return State{Tracks: tracks, Pattern: pattern}
}

func stepsOn(steps ...int) []bool {
	r := make([]bool, sequencer.Steps)
	for _, s := range steps {
		r[s] = true
	}
	return r
}

// FromSequencer captures the current grid.
func FromSequencer(s *sequencer.Sequencer) State {
	return State{Tracks: s.Tracks(), Pattern: s.Pattern()}
}

// Sequencer builds a sequencer from the state.
func (st State) Sequencer() (*sequencer.Sequencer, error) {
	return sequencer.FromState(st.Tracks, st.Pattern)
}

// Decode parses a saved project and brings it to the current shape: every
// row exactly 32 steps (older 16-step rows are padded with off cells) and
// one row per track.
func Decode(data []byte) (State, error) {
	var raw struct {
		Tracks  *[]sequencer.Track `json:"tracks"`
		Pattern *[][]bool          `json:"pattern"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if raw.Tracks == nil || raw.Pattern == nil {
		return State{}, fmt.Errorf("%w: missing tracks or pattern", ErrInvalidState)
	}
	st := State{Tracks: *raw.Tracks, Pattern: *raw.Pattern}

	seen := make(map[string]bool, len(st.Tracks))
	for _, t := range st.Tracks {
		if t.ID == "" || seen[t.ID] {
			return State{}, fmt.Errorf("%w: empty or duplicate track id %q", ErrInvalidState, t.ID)
		}
		seen[t.ID] = true
	}

	rows := make([][]bool, len(st.Tracks))
	for i := range rows {
		r := make([]bool, sequencer.Steps)
		if i < len(st.Pattern) {
			copy(r, st.Pattern[i])
		}
		rows[i] = r
	}
	if len(st.Pattern) != len(st.Tracks) {
		log.Printf("Project pattern has %d rows for %d tracks, reconciling", len(st.Pattern), len(st.Tracks))
	}
	st.Pattern = rows
	return st, nil
}

// Encode serializes the state.
func Encode(st State) ([]byte, error) {
	if st.Tracks == nil {
		st.Tracks = []sequencer.Track{}
	}
	if st.Pattern == nil {
		st.Pattern = [][]bool{}
	}
	return json.Marshal(st)
}

// Store loads and saves the project in a blob store.
type Store struct {
	blobs storage.Blobs
}

func NewStore(blobs storage.Blobs) *Store {
	return &Store{blobs: blobs}
}

// Load returns the saved project, or the default one if nothing is saved
// yet. A corrupt document is reported and replaced by the default.
func (s *Store) Load(ctx context.Context) (State, error) {
	data, err := s.blobs.Get(ctx, Key)
	if errors.Is(err, storage.ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load project: %w", err)
	}
	st, err := Decode(data)
	if err != nil {
		log.Printf("Failed to parse project state, using defaults: %v", err)
		return Default(), nil
	}
	return st, nil
}

// Save writes the project.
func (s *Store) Save(ctx context.Context, st State) error {
	data, err := Encode(st)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	if err := s.blobs.Put(ctx, Key, data); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}
