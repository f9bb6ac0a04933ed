// Package session runs one live grid: the transport clock, the sequencer and
// the dispatcher that voices each step.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/satindergrewal/beatgrid/internal/dispatch"
	"github.com/satindergrewal/beatgrid/internal/project"
	"github.com/satindergrewal/beatgrid/internal/sequencer"
	"github.com/satindergrewal/beatgrid/internal/transport"
)

// Status is the transport state reported to clients.
type Status struct {
	Tempo        float64 `json:"tempo"`
	IsPlaying    bool    `json:"isPlaying"`
	LoopPosition float64 `json:"loopPosition"`
	CurrentStep  int     `json:"currentStep"`
	Voices       int     `json:"voices"`
}

// Session serializes every change to the grid and clock with the render loop,
// so a tick never sees a half-applied edit.
type Session struct {
	disp      *dispatch.Dispatcher
	store     *project.Store // nil: nothing is persisted
	frameRate int
	now       func() time.Time

	mu    sync.Mutex
	seq   *sequencer.Sequencer
	clock *transport.Clock

	saveMu sync.Mutex
}

// New creates a stopped session from a saved project.
func New(st project.State, tempo float64, frameRate int, disp *dispatch.Dispatcher, store *project.Store) (*Session, error) {
	seq, err := st.Sequencer()
	if err != nil {
		return nil, fmt.Errorf("build sequencer: %w", err)
	}
	if frameRate <= 0 {
		frameRate = 60
	}
	return &Session{
		disp:      disp,
		store:     store,
		frameRate: frameRate,
		now:       time.Now,
		seq:       seq,
		clock:     transport.NewClock(tempo),
	}, nil
}

// Run ticks the clock at the frame rate until ctx is cancelled. Blocks.
func (s *Session) Run(ctx context.Context) {
	s.disp.Preload(ctx, s.Tracks())

	ticker := time.NewTicker(time.Second / time.Duration(s.frameRate))
	defer ticker.Stop()

	log.Printf("Session running at %d ticks/s", s.frameRate)
	for {
		select {
		case <-ctx.Done():
			s.Pause()
			return
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}

// Tick advances the clock to now and voices the step if it changed. It
// returns the hits that were dispatched. Voices start under the session lock
// so a concurrent Pause cannot slip between the step and its voices.
func (s *Session) Tick(now time.Time) []sequencer.Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, changed := s.clock.Tick(now)
	if !changed {
		return nil
	}
	hits := s.seq.HotTracks(step)
	s.disp.DispatchStep(hits)
	return hits
}

// --- Transport ---

// Play starts the loop from where it was paused.
func (s *Session) Play() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clock.Running() {
		s.clock.Start(s.now(), s.clock.Position())
		log.Printf("Playing at %.0f BPM", s.clock.Tempo())
	}
	return s.status()
}

// Pause stops the loop and silences every sounding voice.
func (s *Session) Pause() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Stop()
	s.disp.StopAll()
	return s.status()
}

// Reset rewinds to step 0.
func (s *Session) Reset() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Reset(s.now())
	return s.status()
}

// SetTempo changes the tempo, clamped to 60-200 BPM.
func (s *Session) SetTempo(bpm float64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.SetTempo(s.now(), bpm)
	log.Printf("Tempo set to %.0f BPM", s.clock.Tempo())
	return s.status()
}

// Tempo returns the current tempo.
func (s *Session) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Tempo()
}

// Status returns the transport state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

func (s *Session) status() Status {
	return Status{
		Tempo:        s.clock.Tempo(),
		IsPlaying:    s.clock.Running(),
		LoopPosition: s.clock.Position(),
		CurrentStep:  s.clock.Step(),
		Voices:       s.disp.Active(),
	}
}

// --- Grid ---

// Project returns the current tracks and pattern.
func (s *Session) Project() project.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return project.FromSequencer(s.seq)
}

// Tracks returns the tracks in row order.
func (s *Session) Tracks() []sequencer.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq.Tracks()
}

// Track looks up a track by id.
func (s *Session) Track(id string) (sequencer.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _, ok := s.seq.Track(id)
	return t, ok
}

// Toggle flips a cell and saves. It reports false for cells outside the grid.
func (s *Session) Toggle(ctx context.Context, row, col int) (bool, error) {
	s.mu.Lock()
	ok := s.seq.Toggle(row, col)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, s.save(ctx)
}

// AddTrack appends a track with its initial row, saves, and starts loading
// its sample if it has one.
func (s *Session) AddTrack(ctx context.Context, t sequencer.Track, initial []bool) error {
	s.mu.Lock()
	err := s.seq.AddTrack(t, initial)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.disp.Preload(context.WithoutCancel(ctx), []sequencer.Track{t})
	log.Printf("Added track %s (%s)", t.ID, t.Label)
	return s.save(ctx)
}

// UpdateTrack replaces a track's definition, keeping its row.
func (s *Session) UpdateTrack(ctx context.Context, t sequencer.Track) error {
	s.mu.Lock()
	err := s.seq.UpdateTrack(t)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.save(ctx)
}

// RemoveTrack deletes a track and its row, and saves.
func (s *Session) RemoveTrack(ctx context.Context, id string) error {
	s.mu.Lock()
	err := s.seq.RemoveTrack(id)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	log.Printf("Removed track %s", id)
	return s.save(ctx)
}

// save writes the latest grid. Saves are serialized and each one snapshots
// under the lock, so the last write always holds the newest state.
func (s *Session) save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.store.Save(ctx, s.Project())
}
