package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/satindergrewal/beatgrid/internal/audio"
	"github.com/satindergrewal/beatgrid/internal/sequencer"
)

// Mixer renders one frame of the dispatcher's output.
type Mixer interface {
	Mix(dst []float32)
}

// Bounce renders length of the loop from step 0 as fast as possible, ticking
// the clock once per frame on a simulated timeline. mix must be the output
// the session's dispatcher plays into. The transport is left stopped.
func (s *Session) Bounce(ctx context.Context, mix Mixer, length time.Duration) (audio.Buffer, error) {
	for _, t := range s.Tracks() {
		if t.Kind != sequencer.KindSample || t.SampleRef == "" {
			continue
		}
		if err := s.disp.LoadSample(ctx, t.SampleRef); err != nil {
			log.Printf("Bounce: sample %s unavailable: %v", t.SampleRef, err)
		}
	}

	s.mu.Lock()
	if s.clock.Running() {
		s.mu.Unlock()
		return audio.Buffer{}, fmt.Errorf("bounce: transport is playing")
	}
	start := s.now()
	s.clock.Reset(start)
	s.clock.Start(start, 0)
	s.mu.Unlock()
	defer s.Pause()

	frames := int(length / audio.FrameDuration)
	out := audio.NewBuffer(audio.Channels, frames*audio.FrameSize, audio.SampleRate)
	frame := make([]float32, audio.FrameSamples)
	for i := 0; i < frames; i++ {
		if i%50 == 0 {
			if err := ctx.Err(); err != nil {
				return audio.Buffer{}, err
			}
		}
		s.Tick(start.Add(time.Duration(i) * audio.FrameDuration))
		mix.Mix(frame)
		for j := 0; j < audio.FrameSize; j++ {
			for c := 0; c < audio.Channels; c++ {
				out.Channels[c][i*audio.FrameSize+j] = frame[j*audio.Channels+c]
			}
		}
	}
	return out, nil
}
