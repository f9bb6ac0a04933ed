// Package engine renders live voices into a real-time stream of PCM frames.
package engine

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/satindergrewal/beatgrid/internal/audio"
	"github.com/satindergrewal/beatgrid/internal/synth"
)

// Mixer sums the voices it has been given and outputs 20ms stereo frames at
// real-time rate. It implements dispatch.AudioOutput.
type Mixer struct {
	frameCh chan []int16

	mu     sync.Mutex
	active bool
	voices []synth.Voice
	mix    []float32
	frames uint64
}

// NewMixer creates a mixer. Nothing sounds until Activate is called.
func NewMixer() *Mixer {
	return &Mixer{
		frameCh: make(chan []int16, 100),
		mix:     make([]float32, audio.FrameSamples),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (m *Mixer) Frames() <-chan []int16 {
	return m.frameCh
}

// Activate enables voice playback. Repeated calls are no-ops.
func (m *Mixer) Activate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		m.active = true
		log.Println("Audio engine activated")
	}
	return nil
}

// Start adds a voice to the mix. Voices started before Activate are ignored.
func (m *Mixer) Start(v synth.Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.voices = append(m.voices, v)
}

// Stop removes a voice from the mix if it is still sounding.
func (m *Mixer) Stop(v synth.Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = slices.DeleteFunc(m.voices, func(x synth.Voice) bool { return x == v })
}

// Voices returns how many voices are sounding.
func (m *Mixer) Voices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Status returns whether the mixer is active and how long it has played.
func (m *Mixer) Status() (active bool, played time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, time.Duration(m.frames) * audio.FrameDuration
}

// Mix renders the next frame into dst, which must hold audio.FrameSamples
// interleaved stereo samples. Finished voices are dropped.
func (m *Mixer) Mix(dst []float32) {
	clear(dst)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = slices.DeleteFunc(m.voices, func(v synth.Voice) bool {
		return !v.Render(dst)
	})
	m.frames++
}

// Render mixes the next frame and converts it to int16.
func (m *Mixer) Render(dst []int16) []int16 {
	m.Mix(m.mix)
	return audio.ClipFrame(m.mix, dst)
}

// Run renders frames until ctx is cancelled. Blocks.
func (m *Mixer) Run(ctx context.Context) {
	defer close(m.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := m.Render(make([]int16, 0, audio.FrameSamples))
		select {
		case m.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}
