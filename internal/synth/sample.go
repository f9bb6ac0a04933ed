package synth

import (
	"github.com/gopxl/beep"
	"github.com/satindergrewal/beatgrid/internal/audio"
)

// resampleQuality is the beep resampler quality; 4 is its "good" setting.
const resampleQuality = 4

// sampleVoice plays a decoded buffer once through a beep stream, resampled
// to the engine rate when the rates differ.
type sampleVoice struct {
	src beep.Streamer
	buf [][2]float64
}

// NewSampleVoice plays buf at the engine rate. Mono buffers feed both
// channels; channels past the second are ignored.
func NewSampleVoice(buf audio.Buffer, rate int) Voice {
	var src beep.Streamer = newBufferStreamer(buf)
	if buf.SampleRate > 0 && rate > 0 && buf.SampleRate != rate {
		src = beep.Resample(resampleQuality, beep.SampleRate(buf.SampleRate), beep.SampleRate(rate), src)
	}
	return &sampleVoice{src: src}
}

func (v *sampleVoice) Render(dst []float32) bool {
	frames := len(dst) / 2
	if cap(v.buf) < frames {
		v.buf = make([][2]float64, frames)
	}
	buf := v.buf[:frames]
	n, ok := v.src.Stream(buf)
	for i := 0; i < n; i++ {
		dst[2*i] += float32(buf[i][0])
		dst[2*i+1] += float32(buf[i][1])
	}
	return ok && n == frames
}

// bufferStreamer streams a Buffer as stereo frames.
type bufferStreamer struct {
	left, right []float32
	pos         int
}

func newBufferStreamer(buf audio.Buffer) *bufferStreamer {
	s := &bufferStreamer{}
	if buf.NumChannels() == 0 {
		return s
	}
	s.left = buf.Channels[0]
	s.right = s.left
	if buf.NumChannels() > 1 {
		s.right = buf.Channels[1]
	}
	return s
}

func (s *bufferStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.pos >= len(s.left) {
		return 0, false
	}
	for n < len(samples) && s.pos < len(s.left) {
		samples[n][0] = float64(s.left[s.pos])
		samples[n][1] = float64(s.right[s.pos])
		n++
		s.pos++
	}
	return n, true
}

func (s *bufferStreamer) Err() error { return nil }
