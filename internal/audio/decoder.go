package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
)

// Decode turns a captured audio blob into a Buffer. WAV is decoded in
// process; anything else (browser captures are usually WebM/Opus) goes
// through FFmpeg.
func Decode(ctx context.Context, data []byte) (Buffer, error) {
	buf, err := DecodeWAV(data)
	if err == nil {
		return buf, nil
	}
	if !errors.Is(err, ErrNotWAV) {
		return Buffer{}, err
	}
	return DecodeFFmpeg(ctx, data)
}

// DecodeFFmpeg runs FFmpeg to decode an arbitrary container to float PCM.
// Output is stereo at the engine sample rate.
func DecodeFFmpeg(ctx context.Context, data []byte) (Buffer, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	out, err := cmd.Output()
	if err != nil {
		return Buffer{}, fmt.Errorf("ffmpeg decode: %w", err)
	}

	// Drop any trailing partial frame
	frameBytes := 4 * Channels
	out = out[:len(out)-len(out)%frameBytes]
	if len(out) == 0 {
		return Buffer{}, fmt.Errorf("ffmpeg decode: no audio")
	}

	frames := len(out) / frameBytes
	buf := NewBuffer(Channels, frames, SampleRate)
	for f := 0; f < frames; f++ {
		for c := 0; c < Channels; c++ {
			off := (f*Channels + c) * 4
			buf.Channels[c][f] = math.Float32frombits(binary.LittleEndian.Uint32(out[off : off+4]))
		}
	}
	return buf, nil
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// ClipFrame converts mixed float samples to int16 with hard clipping.
func ClipFrame(mixed []float32, dst []int16) []int16 {
	dst = dst[:0]
	for _, v := range mixed {
		s := float64(v) * 32767
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		dst = append(dst, int16(s))
	}
	return dst
}
