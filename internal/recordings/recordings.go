// Package recordings stores captured audio clips with their metadata and
// transcriptions.
package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/beatgrid/internal/audio"
	"github.com/satindergrewal/beatgrid/internal/sequencer"
	"github.com/satindergrewal/beatgrid/internal/storage"
	"github.com/satindergrewal/beatgrid/internal/synth"
)

var (
	ErrNotFound     = errors.New("recording not found")
	ErrEmptyCapture = errors.New("empty capture")
)

const prefix = "recordings/"

// Recording is the metadata of one clip. The audio is stored separately.
type Recording struct {
	ID         string                   `json:"id"`
	Title      string                   `json:"title"`
	Timestamp  int64                    `json:"timestamp"` // unix ms
	MidiData   *sequencer.MidiTrackData `json:"midiData,omitempty"`
	Instrument synth.Instrument         `json:"instrument,omitempty"`
	Icon       string                   `json:"icon,omitempty"`
	// Trimmed is false when the capture could not be decoded and the raw
	// upload was kept as is.
	Trimmed  bool    `json:"trimmed"`
	Duration float64 `json:"duration,omitempty"` // seconds, when decoded
}

// Update holds the fields to change; nil fields are left alone.
type Update struct {
	Title      *string                  `json:"title,omitempty"`
	MidiData   *sequencer.MidiTrackData `json:"midiData,omitempty"`
	Instrument *synth.Instrument        `json:"instrument,omitempty"`
	Icon       *string                  `json:"icon,omitempty"`
}

// Store keeps recordings in a blob store.
type Store struct {
	blobs     storage.Blobs
	threshold float64
	decode    func(ctx context.Context, data []byte) (audio.Buffer, error)
	now       func() time.Time

	mu sync.Mutex // serializes read-modify-write of metadata
}

// NewStore creates a store that trims new captures at threshold.
func NewStore(blobs storage.Blobs, threshold float64) *Store {
	if threshold <= 0 {
		threshold = audio.DefaultTrimThreshold
	}
	return &Store{
		blobs:     blobs,
		threshold: threshold,
		decode:    audio.Decode,
		now:       time.Now,
	}
}

func metaKey(id string) string  { return prefix + id + "/meta.json" }
func audioKey(id string) string { return prefix + id + "/audio" }

// Create trims the silence off a capture and saves it. If the capture cannot
// be decoded the original bytes are stored instead.
func (s *Store) Create(ctx context.Context, title string, raw []byte) (Recording, error) {
	if len(raw) == 0 {
		return Recording{}, ErrEmptyCapture
	}
	rec := Recording{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Timestamp: s.now().UnixMilli(),
	}
	if rec.Title == "" {
		rec.Title = "Recording " + s.now().Format("15:04:05")
	}

	data := raw
	buf, err := s.decode(ctx, raw)
	if err != nil {
		log.Printf("Decode of new recording failed, keeping original audio: %v", err)
	} else {
		trimmed := audio.Trim(buf, s.threshold)
		encoded, err := audio.EncodeWAV(trimmed)
		if err != nil {
			return Recording{}, err
		}
		data = encoded
		rec.Trimmed = true
		rec.Duration = trimmed.Duration().Seconds()
	}

	if err := s.blobs.Put(ctx, audioKey(rec.ID), data); err != nil {
		return Recording{}, fmt.Errorf("store audio: %w", err)
	}
	if err := s.putMeta(ctx, rec); err != nil {
		s.blobs.Delete(ctx, audioKey(rec.ID))
		return Recording{}, err
	}
	log.Printf("Saved recording %s (%q, %d bytes)", rec.ID, rec.Title, len(data))
	return rec, nil
}

// Get returns one recording's metadata.
func (s *Store) Get(ctx context.Context, id string) (Recording, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	data, err := s.blobs.Get(ctx, metaKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("get recording %s: %w", id, err)
	}
	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return Recording{}, fmt.Errorf("parse recording %s: %w", id, err)
	}
	return rec, nil
}

// List returns every recording, newest first. Unreadable entries are skipped.
func (s *Store) List(ctx context.Context) ([]Recording, error) {
	keys, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	recs := []Recording{}
	for _, k := range keys {
		if !strings.HasSuffix(k, "/meta.json") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, prefix), "/meta.json")
		rec, err := s.Get(ctx, id)
		if err != nil {
			log.Printf("Skipping recording %s: %v", id, err)
			continue
		}
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp > recs[j].Timestamp
	})
	return recs, nil
}

// Update applies u to a recording and returns the result.
func (s *Store) Update(ctx context.Context, id string, u Update) (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return Recording{}, err
	}
	if u.Title != nil {
		rec.Title = *u.Title
	}
	if u.MidiData != nil {
		rec.MidiData = u.MidiData
	}
	if u.Instrument != nil {
		rec.Instrument = *u.Instrument
	}
	if u.Icon != nil {
		rec.Icon = *u.Icon
	}
	if err := s.putMeta(ctx, rec); err != nil {
		return Recording{}, err
	}
	return rec, nil
}

// Delete removes a recording and its audio.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, audioKey(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete audio %s: %w", id, err)
	}
	if err := s.blobs.Delete(ctx, metaKey(id)); err != nil {
		return fmt.Errorf("delete recording %s: %w", id, err)
	}
	return nil
}

// Audio returns the stored audio bytes.
func (s *Store) Audio(ctx context.Context, id string) ([]byte, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	data, err := s.blobs.Get(ctx, audioKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return data, err
}

// Buffer decodes a recording's audio for playback.
func (s *Store) Buffer(ctx context.Context, id string) (audio.Buffer, error) {
	data, err := s.Audio(ctx, id)
	if err != nil {
		return audio.Buffer{}, err
	}
	return s.decode(ctx, data)
}

func (s *Store) putMeta(ctx context.Context, rec Recording) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	if err := s.blobs.Put(ctx, metaKey(rec.ID), data); err != nil {
		return fmt.Errorf("store recording: %w", err)
	}
	return nil
}
