package engine

import (
	"context"
	"testing"
	"time"

	"github.com/satindergrewal/beatgrid/internal/audio"
)

// constVoice adds a fixed level for a number of frames.
type constVoice struct {
	level  float32
	frames int
}

func (v *constVoice) Render(dst []float32) bool {
	for i := range dst {
		dst[i] += v.level
	}
	v.frames--
	return v.frames > 0
}

// --- Voices ---

func TestStartBeforeActivateIgnored(t *testing.T) {
	m := NewMixer()
	m.Start(&constVoice{level: 0.5, frames: 1})
	if m.Voices() != 0 {
		t.Errorf("Voices = %d before Activate, want 0", m.Voices())
	}
	if active, _ := m.Status(); active {
		t.Error("Mixer active before Activate")
	}
}

func TestActivateIdempotent(t *testing.T) {
	m := NewMixer()
	for i := 0; i < 3; i++ {
		if err := m.Activate(); err != nil {
			t.Fatal(err)
		}
	}
	if active, _ := m.Status(); !active {
		t.Error("Mixer not active")
	}
}

func TestMixSumsAndDropsFinished(t *testing.T) {
	m := NewMixer()
	m.Activate()
	m.Start(&constVoice{level: 0.25, frames: 1})
	m.Start(&constVoice{level: 0.25, frames: 2})

	frame := m.Render(nil)
	if len(frame) != audio.FrameSamples {
		t.Fatalf("Frame has %d samples, want %d", len(frame), audio.FrameSamples)
	}
	if frame[0] != 16383 {
		t.Errorf("Summed sample = %d, want 16383", frame[0])
	}
	if m.Voices() != 1 {
		t.Errorf("Voices = %d after first frame, want 1", m.Voices())
	}

	frame = m.Render(frame)
	if frame[0] != 8191 {
		t.Errorf("Single voice sample = %d, want 8191", frame[0])
	}
	frame = m.Render(frame)
	if frame[0] != 0 || m.Voices() != 0 {
		t.Errorf("Expected silence after voices finished, got %d with %d voices", frame[0], m.Voices())
	}
	if _, played := m.Status(); played != 3*audio.FrameDuration {
		t.Errorf("Played = %v, want %v", played, 3*audio.FrameDuration)
	}
}

func TestMixClips(t *testing.T) {
	m := NewMixer()
	m.Activate()
	m.Start(&constVoice{level: 1, frames: 5})
	m.Start(&constVoice{level: 1, frames: 5})
	if got := m.Render(nil)[0]; got != 32767 {
		t.Errorf("Clipped sample = %d, want 32767", got)
	}
}

func TestStopRemovesVoice(t *testing.T) {
	m := NewMixer()
	m.Activate()
	v := &constVoice{level: 0.5, frames: 100}
	m.Start(v)
	m.Stop(v)
	m.Stop(v)
	if m.Voices() != 0 {
		t.Errorf("Voices = %d after Stop", m.Voices())
	}
}

// --- Run ---

func TestRunEmitsFramesUntilCancelled(t *testing.T) {
	m := NewMixer()
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	select {
	case f := <-m.Frames():
		if len(f) != audio.FrameSamples {
			t.Errorf("Frame has %d samples", len(f))
		}
	case <-time.After(time.Second):
		t.Fatal("No frame within 1s")
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-m.Frames():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Frames channel not closed after cancel")
		}
	}
}
