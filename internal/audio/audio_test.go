package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Buffer ---

func TestBufferDuration(t *testing.T) {
	b := NewBuffer(2, 22050, 44100)
	if b.Duration() != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", b.Duration())
	}
	if b.NumChannels() != 2 || b.Len() != 22050 {
		t.Errorf("NewBuffer shape = %dx%d, want 2x22050", b.NumChannels(), b.Len())
	}
}

func TestInterleaveOrder(t *testing.T) {
	b := NewBuffer(2, 3, 8000)
	b.Channels[0] = []float32{1, 2, 3}
	b.Channels[1] = []float32{-1, -2, -3}
	got := b.Interleave()
	want := []float32{1, -1, 2, -2, 3, -3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Interleave()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// --- Trim ---

func TestTrimAllSilent(t *testing.T) {
	for _, rate := range []int{8000, 44100, 48000} {
		in := NewBuffer(2, rate, rate) // 1 second of zeros
		out := Trim(in, DefaultTrimThreshold)

		if want := rate / 10; out.Len() != want {
			t.Errorf("rate %d: silent trim length = %d, want %d", rate, out.Len(), want)
		}
		if out.NumChannels() != 2 {
			t.Errorf("rate %d: channels = %d, want 2", rate, out.NumChannels())
		}
		if out.SampleRate != rate {
			t.Errorf("rate %d: sample rate = %d", rate, out.SampleRate)
		}
		for c, ch := range out.Channels {
			for i, v := range ch {
				if v != 0 {
					t.Fatalf("rate %d: channel %d sample %d = %v, want 0", rate, c, i, v)
				}
			}
		}
	}
}

func TestTrimBelowThresholdIsSilent(t *testing.T) {
	in := NewBuffer(1, 44100, 44100)
	for i := range in.Channels[0] {
		in.Channels[0][i] = 0.005
	}
	out := Trim(in, DefaultTrimThreshold)
	if out.Len() != 4410 {
		t.Errorf("Quiet clip trim length = %d, want 4410", out.Len())
	}
}

func TestTrimSingleLoudSampleIsSilent(t *testing.T) {
	in := NewBuffer(1, 44100, 44100)
	in.Channels[0][5000] = 0.5
	out := Trim(in, DefaultTrimThreshold)
	if out.Len() != 4410 {
		t.Fatalf("Single-sample clip trim length = %d, want 4410", out.Len())
	}
	for i, v := range out.Channels[0] {
		if v != 0 {
			t.Fatalf("Sample %d = %v, want silence", i, v)
		}
	}
}

func TestTrimEmptyBuffer(t *testing.T) {
	out := Trim(Buffer{SampleRate: 44100}, DefaultTrimThreshold)
	if out.Len() != 4410 || out.NumChannels() != 1 {
		t.Errorf("Empty input should give 1x4410 silence, got %dx%d", out.NumChannels(), out.Len())
	}
}

func TestTrimPaddedWindow(t *testing.T) {
	const rate = 44100
	const padding = 2205 // 50ms at 44.1kHz

	tests := []struct {
		name             string
		length           int
		sigStart, sigEnd int
	}{
		{"clamped at start", 10000, 1000, 2000},
		{"interior", 20000, 5000, 6000},
		{"clamped at end", 7000, 5000, 6000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewBuffer(2, tt.length, rate)
			for i := tt.sigStart; i <= tt.sigEnd; i++ {
				in.Channels[0][i] = 0.5
				in.Channels[1][i] = -0.25
			}

			out := Trim(in, DefaultTrimThreshold)

			wantStart := max(0, tt.sigStart-padding)
			wantEnd := min(tt.length-1, tt.sigEnd+padding)
			if out.Len() != wantEnd-wantStart+1 {
				t.Fatalf("Trim length = %d, want %d", out.Len(), wantEnd-wantStart+1)
			}

			// The signal must land at the same offset inside the window
			if got := out.Channels[0][tt.sigStart-wantStart]; got != 0.5 {
				t.Errorf("First signal sample = %v, want 0.5", got)
			}
			if got := out.Channels[1][tt.sigEnd-wantStart]; got != -0.25 {
				t.Errorf("Last signal sample on channel 1 = %v, want -0.25", got)
			}
			if out.SampleRate != rate || out.NumChannels() != 2 {
				t.Errorf("Trim changed format: %d Hz, %d channels", out.SampleRate, out.NumChannels())
			}
		})
	}
}

func TestTrimDetectsOnChannelZeroOnly(t *testing.T) {
	in := NewBuffer(2, 44100, 44100)
	in.Channels[1][20000] = 0.9 // signal only on channel 1
	out := Trim(in, DefaultTrimThreshold)
	if out.Len() != 4410 {
		t.Errorf("Signal on channel 1 alone should be treated as silence, got length %d", out.Len())
	}
}

// --- WAV codec ---

func TestFloatToInt16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},
		{-3, -32768},
		{0.5, 16384},
		{-0.5, -16384},
	}
	for _, tt := range tests {
		if got := FloatToInt16(tt.in); got != tt.want {
			t.Errorf("FloatToInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	buf := NewBuffer(2, 100, 44100)
	data := mustEncode(t, buf)

	if len(data) != WAVHeaderSize+100*2*2 {
		t.Fatalf("EncodeWAV length = %d, want %d", len(data), WAVHeaderSize+400)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"RIFF", string(data[0:4]), "RIFF"},
		{"riff size", binary.LittleEndian.Uint32(data[4:8]), uint32(36 + 400)},
		{"WAVE", string(data[8:12]), "WAVE"},
		{"fmt", string(data[12:16]), "fmt "},
		{"fmt size", binary.LittleEndian.Uint32(data[16:20]), uint32(16)},
		{"format", binary.LittleEndian.Uint16(data[20:22]), uint16(1)},
		{"channels", binary.LittleEndian.Uint16(data[22:24]), uint16(2)},
		{"sample rate", binary.LittleEndian.Uint32(data[24:28]), uint32(44100)},
		{"byte rate", binary.LittleEndian.Uint32(data[28:32]), uint32(44100 * 4)},
		{"block align", binary.LittleEndian.Uint16(data[32:34]), uint16(4)},
		{"bit depth", binary.LittleEndian.Uint16(data[34:36]), uint16(16)},
		{"data", string(data[36:40]), "data"},
		{"data size", binary.LittleEndian.Uint32(data[40:44]), uint32(400)},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("Header %s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestEncodeWAVHeaderMatchesStreamHeader(t *testing.T) {
	buf := NewBuffer(2, 4410, 44100)
	buf.Channels[0][0] = 1
	buf.Channels[1][0] = -1
	data := mustEncode(t, buf)

	want := WAVHeader(44100, 2, 4410*2*2)
	if !bytes.Equal(data[:WAVHeaderSize], want) {
		t.Errorf("EncodeWAV header = % x, want % x", data[:WAVHeaderSize], want)
	}
	if len(data) != WAVHeaderSize+4410*4 {
		t.Errorf("EncodeWAV length = %d, want %d", len(data), WAVHeaderSize+4410*4)
	}
}

func TestWriteWAVToFile(t *testing.T) {
	in := NewBuffer(1, 800, 8000)
	in.Channels[0][10] = 0.5

	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteWAV(f, in); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.Len() != 800 || out.Channels[0][10] != Int16ToFloat(FloatToInt16(0.5)) {
		t.Errorf("Decoded %d samples, sample 10 = %v", out.Len(), out.Channels[0][10])
	}
}

func TestEncodeWAVInterleaves(t *testing.T) {
	buf := NewBuffer(2, 2, 8000)
	buf.Channels[0] = []float32{1, 0}
	buf.Channels[1] = []float32{-1, 0.5}
	data := mustEncode(t, buf)[WAVHeaderSize:]

	want := []int16{32767, -32768, 0, 16384}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(data[i*2:]))
		if got != w {
			t.Errorf("Sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestWAVRoundTripSine(t *testing.T) {
	const rate = 44100
	in := NewBuffer(1, rate, rate)
	for i := range in.Channels[0] {
		in.Channels[0][i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / rate))
	}

	out, err := DecodeWAV(mustEncode(t, in))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.SampleRate != rate || out.NumChannels() != 1 || out.Len() != rate {
		t.Fatalf("Round-trip format = %d Hz %dx%d", out.SampleRate, out.NumChannels(), out.Len())
	}

	const tolerance = 1.0 / 32768
	for i := range in.Channels[0] {
		diff := math.Abs(float64(in.Channels[0][i] - out.Channels[0][i]))
		if diff >= tolerance {
			t.Fatalf("Sample %d: in=%v out=%v diff=%v exceeds int16 quantization", i, in.Channels[0][i], out.Channels[0][i], diff)
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV([]byte("definitely not a riff file at all, just text"))
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("DecodeWAV(garbage) error = %v, want ErrNotWAV", err)
	}
}

// --- SamplesToBytes / ClipFrame ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

func TestClipFrame(t *testing.T) {
	got := ClipFrame([]float32{0, 0.5, 2, -2}, nil)
	want := []int16{0, 16383, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ClipFrame[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func mustEncode(t *testing.T, buf Buffer) []byte {
	t.Helper()
	data, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return data
}
