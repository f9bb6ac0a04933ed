package synth

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/satindergrewal/beatgrid/internal/audio"
)

const testRate = 48000

// renderAll renders v in engine-sized chunks and returns the mono (left)
// signal. It stops after limit frames to guard against voices that never end.
func renderAll(t *testing.T, v Voice, limit int) []float32 {
	t.Helper()
	var out []float32
	chunk := make([]float32, audio.FrameSamples)
	for len(out) < limit {
		clear(chunk)
		more := v.Render(chunk)
		for i := 0; i < len(chunk); i += 2 {
			out = append(out, chunk[i])
		}
		if !more {
			return out
		}
	}
	t.Fatalf("voice still sounding after %d frames", limit)
	return nil
}

func peak(s []float32) float64 {
	var p float64
	for _, v := range s {
		p = math.Max(p, math.Abs(float64(v)))
	}
	return p
}

// --- Instruments ---

func TestParseInstrument(t *testing.T) {
	tests := []struct {
		in   string
		want Instrument
		ok   bool
	}{
		{"trumpet", Trumpet, true},
		{"synthLead", SynthLead, true},
		{"SUBBASS", SubBass, true},
		{"juno", SynthLead, true},
		{"guitar", PluckedString, true},
		{"bass", SubBass, true},
		{"909", DrumMachine, true},
		{"kazoo", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseInstrument(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseInstrument(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestInstrumentJSONAlias(t *testing.T) {
	var v struct {
		Instrument Instrument `json:"instrument"`
	}
	if err := json.Unmarshal([]byte(`{"instrument":"909"}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.Instrument != DrumMachine {
		t.Errorf("Alias 909 decoded as %q, want %q", v.Instrument, DrumMachine)
	}
}

func TestPresetForUnknownFallsBack(t *testing.T) {
	p := PresetFor("kazoo")
	if p.Name != Trumpet || p.Wave != WaveSawtooth {
		t.Errorf("Unknown instrument preset = %q/%v, want trumpet sawtooth", p.Name, p.Wave)
	}
}

func TestEveryInstrumentHasPreset(t *testing.T) {
	for _, inst := range Instruments {
		if p := PresetFor(inst); p.Name != inst {
			t.Errorf("Instrument %q resolved to preset %q", inst, p.Name)
		}
	}
}

// --- Envelope ---

func TestADSRLevel(t *testing.T) {
	env := ADSR{Attack: 0.1, Decay: 0.1, Sustain: 0.5, Release: 1}
	tests := []struct {
		t, gate, want float64
	}{
		{-1, 1, 0},
		{0, 1, 0},
		{0.05, 1, 0.5},
		{0.1, 1, 1},
		{0.15, 1, 0.75},
		{0.5, 1, 0.5},
		{1.5, 1, 0.25},
		{2, 1, 0},
		{3, 1, 0},
	}
	for _, tt := range tests {
		if got := env.Level(tt.t, tt.gate); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Level(%v, %v) = %v, want %v", tt.t, tt.gate, got, tt.want)
		}
	}
	if env.End(1) != 2 {
		t.Errorf("End(1) = %v, want 2", env.End(1))
	}
}

func TestMidiToFreq(t *testing.T) {
	if got := MidiToFreq(69); got != 440 {
		t.Errorf("MidiToFreq(69) = %v, want 440", got)
	}
	if got := MidiToFreq(60); math.Abs(got-261.6256) > 0.001 {
		t.Errorf("MidiToFreq(60) = %v, want ~261.63", got)
	}
}

// --- Voices ---

func TestNoteVoiceLength(t *testing.T) {
	for _, inst := range Instruments {
		t.Run(string(inst), func(t *testing.T) {
			p := PresetFor(inst)
			v := NewNoteVoice(inst, []Event{{Duration: 0.1, Freq: 220, Velocity: 1}}, testRate)
			out := renderAll(t, v, 10*testRate)

			want := int(p.Env.End(0.1) * testRate)
			// Voices stop within one engine frame of the envelope end
			if len(out) < want || len(out) > want+audio.FrameSize {
				t.Errorf("Rendered %d frames, want about %d", len(out), want)
			}
			if peak(out) == 0 {
				t.Error("Voice rendered only silence")
			}
		})
	}
}

func TestNoteVoiceOffset(t *testing.T) {
	v := NewNoteVoice(Trumpet, []Event{{Offset: 0.1, Duration: 0.1, Freq: 440, Velocity: 1}}, testRate)
	out := renderAll(t, v, 10*testRate)
	lead := out[:int(0.1*testRate)]
	if peak(lead) != 0 {
		t.Errorf("Voice sounded before its offset: peak %v", peak(lead))
	}
	if peak(out[int(0.1*testRate):]) == 0 {
		t.Error("Voice silent after its offset")
	}
}

func TestNoteVoiceZeroDurationGetsDefault(t *testing.T) {
	v := NewNoteVoice(Trumpet, []Event{{Freq: 440, Velocity: 1}}, testRate)
	out := renderAll(t, v, 10*testRate)
	if peak(out) == 0 {
		t.Error("Zero-duration note should still sound")
	}
}

func TestRowToneDuration(t *testing.T) {
	for row := 0; row < 5; row++ {
		out := renderAll(t, NewRowTone(row, testRate), testRate)
		want := int(RowToneDuration * testRate)
		if len(out) < want || len(out) > want+audio.FrameSize {
			t.Errorf("Row %d tone rendered %d frames, want about %d", row, len(out), want)
		}
	}
}

func TestRowToneLevels(t *testing.T) {
	kick := renderAll(t, NewRowTone(RowKick, testRate), testRate)
	hats := renderAll(t, NewRowTone(RowHats, testRate), testRate)
	if peak(kick) <= peak(hats) {
		t.Errorf("Kick peak %v should exceed hats peak %v", peak(kick), peak(hats))
	}
	if peak(hats) > 0.1+1e-6 {
		t.Errorf("Hats peak %v exceeds its 0.1 start gain", peak(hats))
	}
}

func TestSampleVoiceSameRate(t *testing.T) {
	buf := audio.NewBuffer(2, 100, testRate)
	for i := range buf.Channels[0] {
		buf.Channels[0][i] = 0.5
		buf.Channels[1][i] = -0.5
	}
	v := NewSampleVoice(buf, testRate)
	chunk := make([]float32, 2*150)
	if v.Render(chunk) {
		t.Error("Voice should finish once its 100 frames are played")
	}
	for i := 0; i < 100; i++ {
		if chunk[2*i] != 0.5 || chunk[2*i+1] != -0.5 {
			t.Fatalf("Frame %d = %v/%v, want 0.5/-0.5", i, chunk[2*i], chunk[2*i+1])
		}
	}
	if chunk[200] != 0 {
		t.Error("Voice wrote past its end")
	}
}

func TestSampleVoiceResamples(t *testing.T) {
	buf := audio.NewBuffer(1, 100, testRate/2)
	for i := range buf.Channels[0] {
		buf.Channels[0][i] = 0.5
	}
	out := renderAll(t, NewSampleVoice(buf, testRate), testRate)
	if p := peak(out); p < 0.45 || p > 0.65 {
		t.Errorf("Sample peak = %v, want about 0.5", p)
	}
	// 100 samples at half rate play for about 200 engine frames
	played := 0
	for _, v := range out {
		if math.Abs(float64(v)) > 0.25 {
			played++
		}
	}
	if played < 180 || played > 220 {
		t.Errorf("Sample played %d frames, want about 200", played)
	}
}

func TestSampleVoiceEmptyBuffer(t *testing.T) {
	v := NewSampleVoice(audio.Buffer{}, testRate)
	if v.Render(make([]float32, 8)) {
		t.Error("Empty sample voice should finish immediately")
	}
}
