package session

import (
	"context"
	"testing"
	"time"

	"github.com/satindergrewal/beatgrid/internal/audio"
	"github.com/satindergrewal/beatgrid/internal/dispatch"
	"github.com/satindergrewal/beatgrid/internal/engine"
	"github.com/satindergrewal/beatgrid/internal/project"
)

func peak(samples []float32) float32 {
	var p float32
	for _, v := range samples {
		p = max(p, v, -v)
	}
	return p
}

func TestBounceDefaultLoop(t *testing.T) {
	mixer := engine.NewMixer()
	disp := dispatch.New(mixer, audio.SampleRate, time.Minute, nil)
	s, err := New(project.Default(), 120, 60, disp, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return t0 }

	// one loop at 120 BPM
	buf, err := s.Bounce(context.Background(), mixer, 8*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 8*audio.SampleRate || buf.NumChannels() != 2 {
		t.Fatalf("Bounce = %d frames x %d channels", buf.Len(), buf.NumChannels())
	}

	left := buf.Channels[0]
	if peak(left[:audio.FrameSize]) == 0 {
		t.Error("Kick on step 0 is silent")
	}
	// the last hit (hats on step 14, 3.5s) is over by 4s
	if p := peak(left[9*audio.SampleRate/2:]); p != 0 {
		t.Errorf("Second half peak = %v, want silence", p)
	}
	if s.Status().IsPlaying {
		t.Error("Transport still playing after bounce")
	}
}

func TestBounceRefusesWhilePlaying(t *testing.T) {
	mixer := engine.NewMixer()
	disp := dispatch.New(mixer, audio.SampleRate, time.Minute, nil)
	s, err := New(project.Default(), 120, 60, disp, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Play()
	if _, err := s.Bounce(context.Background(), mixer, time.Second); err == nil {
		t.Error("Bounce while playing should fail")
	}
}
