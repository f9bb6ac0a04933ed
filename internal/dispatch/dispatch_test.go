package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/satindergrewal/beatgrid/internal/audio"
	"github.com/satindergrewal/beatgrid/internal/sequencer"
	"github.com/satindergrewal/beatgrid/internal/synth"
	"github.com/satindergrewal/beatgrid/internal/transport"
)

const testRate = 48000

type fakeOutput struct {
	mu          sync.Mutex
	activations int
	activateErr error
	started     []synth.Voice
	stopped     map[synth.Voice]int
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{stopped: make(map[synth.Voice]int)}
}

func (o *fakeOutput) Activate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activations++
	return o.activateErr
}

func (o *fakeOutput) Start(v synth.Voice) {
	o.mu.Lock()
	o.started = append(o.started, v)
	o.mu.Unlock()
}

func (o *fakeOutput) Stop(v synth.Voice) {
	o.mu.Lock()
	o.stopped[v]++
	o.mu.Unlock()
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeTimers struct {
	timers []*fakeTimer
}

func (ft *fakeTimers) after(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) pending() int {
	n := 0
	for _, t := range ft.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func newTestDispatcher(load SampleLoader) (*Dispatcher, *fakeOutput, *fakeTimers) {
	out := newFakeOutput()
	ft := &fakeTimers{}
	d := New(out, testRate, 0, load)
	d.after = ft.after
	return d, out, ft
}

func stepPtr(n int) *int { return &n }

// --- Voice selection ---

func TestDispatchRowTone(t *testing.T) {
	d, out, ft := newTestDispatcher(nil)
	d.Dispatch(sequencer.Hit{Row: 0, Track: sequencer.Track{ID: "kick", Kind: sequencer.KindSynth}})

	if len(out.started) != 1 {
		t.Fatalf("Started %d voices, want 1", len(out.started))
	}
	if want := time.Second; ft.timers[0].d != want {
		t.Errorf("Release after %v, want %v", ft.timers[0].d, want)
	}
}

func TestDispatchInstrumentNotes(t *testing.T) {
	d, out, ft := newTestDispatcher(nil)
	d.Dispatch(sequencer.Hit{
		Track: sequencer.Track{ID: "lead", Instrument: synth.SynthLead},
		Notes: []sequencer.MidiNote{
			{Midi: 60, Duration: 0.25, Velocity: 1, QuantizedStep: stepPtr(0)},
			{Midi: 64, Duration: 0.75, Velocity: 1, QuantizedStep: stepPtr(0)},
		},
		Quantized: true,
	})
	if len(out.started) != 1 {
		t.Fatalf("Started %d voices, want one voice for the chord", len(out.started))
	}
	if want := 1250 * time.Millisecond; ft.timers[0].d != want {
		t.Errorf("Release after %v, want %v", ft.timers[0].d, want)
	}
}

func TestDispatchSampleTrack(t *testing.T) {
	d, out, ft := newTestDispatcher(nil)
	hit := sequencer.Hit{Track: sequencer.Track{ID: "vox", Kind: sequencer.KindSample, SampleRef: "rec-1"}}

	d.Dispatch(hit)
	if len(out.started) != 0 {
		t.Fatal("Unloaded sample should be dropped")
	}
	if out.activations != 0 {
		t.Error("Dropped event should not activate the output")
	}

	d.SetSample("rec-1", audio.NewBuffer(1, testRate/4, testRate))
	d.Dispatch(hit)
	if len(out.started) != 1 {
		t.Fatalf("Started %d voices, want 1", len(out.started))
	}
	if want := 750 * time.Millisecond; ft.timers[0].d != want {
		t.Errorf("Release after %v, want %v", ft.timers[0].d, want)
	}
}

func TestDispatchQuantizedEmptyStep(t *testing.T) {
	d, out, _ := newTestDispatcher(nil)
	tr := sequencer.Track{ID: "lead", Kind: sequencer.KindSample, SampleRef: "rec-2", Instrument: synth.Trumpet}
	d.Dispatch(sequencer.Hit{Track: tr, Quantized: true})
	if len(out.started) != 0 {
		t.Fatal("Empty quantized step without a sample should stay silent")
	}

	d.SetSample("rec-2", audio.NewBuffer(1, 100, testRate))
	d.Dispatch(sequencer.Hit{Track: tr, Quantized: true})
	if len(out.started) != 1 {
		t.Error("Empty quantized step should fall back to the loaded sample")
	}
}

func TestPreviewUsesNoteTimes(t *testing.T) {
	d, out, ft := newTestDispatcher(nil)
	d.Preview(synth.Trumpet, []sequencer.MidiNote{
		{Midi: 60, Time: 0, Duration: 0.5},
		{Midi: 62, Time: 1.5, Duration: 0.5},
	})
	if len(out.started) != 1 {
		t.Fatalf("Started %d voices, want 1", len(out.started))
	}
	if want := 2500 * time.Millisecond; ft.timers[0].d != want {
		t.Errorf("Release after %v, want %v", ft.timers[0].d, want)
	}
	d.Preview(synth.Trumpet, nil)
	if len(out.started) != 1 {
		t.Error("Empty preview should not start a voice")
	}
}

// --- Activation ---

func TestActivateOnce(t *testing.T) {
	d, out, _ := newTestDispatcher(nil)
	if out.activations != 0 {
		t.Fatal("Output activated before any sound")
	}
	for i := 0; i < 5; i++ {
		d.Dispatch(sequencer.Hit{Row: 1})
	}
	if out.activations != 1 {
		t.Errorf("Activate called %d times, want 1", out.activations)
	}
}

func TestActivateFailureDropsAndRetries(t *testing.T) {
	d, out, _ := newTestDispatcher(nil)
	out.activateErr = errors.New("device busy")
	d.Dispatch(sequencer.Hit{Row: 0})
	if len(out.started) != 0 || d.Active() != 0 {
		t.Fatal("Voice started on a failed output")
	}

	out.activateErr = nil
	d.Dispatch(sequencer.Hit{Row: 0})
	if len(out.started) != 1 || out.activations != 2 {
		t.Errorf("started %d, activations %d; want 1, 2", len(out.started), out.activations)
	}
}

// --- Release ---

func TestTimerReleasesOnce(t *testing.T) {
	d, out, ft := newTestDispatcher(nil)
	d.Dispatch(sequencer.Hit{Row: 2})
	v := out.started[0]

	ft.timers[0].f()
	ft.timers[0].f()
	if out.stopped[v] != 1 {
		t.Errorf("Voice stopped %d times, want 1", out.stopped[v])
	}
	if d.Active() != 0 {
		t.Errorf("Active = %d after release", d.Active())
	}
	d.StopAll()
	if out.stopped[v] != 1 {
		t.Errorf("StopAll after expiry stopped voice again")
	}
}

func TestStopAllClearsEverything(t *testing.T) {
	d, out, ft := newTestDispatcher(nil)
	for row := 0; row < 4; row++ {
		d.Dispatch(sequencer.Hit{Row: row})
	}
	if d.Active() != 4 || ft.pending() != 4 {
		t.Fatalf("Active %d, timers %d; want 4, 4", d.Active(), ft.pending())
	}

	d.StopAll()
	if d.Active() != 0 {
		t.Errorf("Active = %d after StopAll, want 0", d.Active())
	}
	if ft.pending() != 0 {
		t.Errorf("Pending timers = %d after StopAll, want 0", ft.pending())
	}
	// A timer that raced StopAll must not release again
	for _, tm := range ft.timers {
		tm.f()
	}
	for _, v := range out.started {
		if out.stopped[v] != 1 {
			t.Errorf("Voice stopped %d times, want 1", out.stopped[v])
		}
	}
}

// --- End to end ---

func TestOneVoiceOnStepZero(t *testing.T) {
	seq := sequencer.New()
	seq.AddTrack(sequencer.Track{ID: "kick", Label: "KICK", Kind: sequencer.KindSynth}, nil)
	seq.Toggle(0, 0)

	d, out, _ := newTestDispatcher(nil)
	clock := transport.NewClock(120)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.Start(start, 0)

	var fired []int
	frame := time.Second / 60
	for now := start; now.Before(start.Add(transport.LoopDuration(120))); now = now.Add(frame) {
		step, changed := clock.Tick(now)
		if !changed {
			continue
		}
		before := len(out.started)
		d.DispatchStep(seq.HotTracks(step))
		if len(out.started) > before {
			fired = append(fired, step)
		}
	}
	if len(fired) != 1 || fired[0] != 0 {
		t.Errorf("Voices fired on steps %v, want [0]", fired)
	}
}

// --- Samples ---

func TestLoadSample(t *testing.T) {
	calls := 0
	load := func(ctx context.Context, ref string) (audio.Buffer, error) {
		calls++
		if ref == "missing" {
			return audio.Buffer{}, errors.New("not found")
		}
		return audio.NewBuffer(2, 10, testRate), nil
	}
	d, _, _ := newTestDispatcher(load)
	ctx := context.Background()

	if err := d.LoadSample(ctx, "rec-1"); err != nil {
		t.Fatal(err)
	}
	if err := d.LoadSample(ctx, "rec-1"); err != nil || calls != 1 {
		t.Errorf("Cached load: err %v, loader calls %d", err, calls)
	}
	if err := d.LoadSample(ctx, "missing"); err == nil {
		t.Error("Expected error for missing sample")
	}
	if _, ok := d.Sample("missing"); ok {
		t.Error("Failed load should not be cached")
	}

	d.ForgetSample("rec-1")
	if _, ok := d.Sample("rec-1"); ok {
		t.Error("ForgetSample left buffer cached")
	}
}

func TestLoadSampleWithoutLoader(t *testing.T) {
	d, _, _ := newTestDispatcher(nil)
	if err := d.LoadSample(context.Background(), "x"); err == nil {
		t.Error("Expected error without loader")
	}
}
