package audio

import "time"

// Engine output format. Voices are rendered and streamed at this rate.
const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is decoded, deinterleaved PCM audio. Samples are in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(channels, length, sampleRate int) Buffer {
	b := Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for i := range b.Channels {
		b.Channels[i] = make([]float32, length)
	}
	return b
}

// NumChannels returns the channel count.
func (b Buffer) NumChannels() int {
	return len(b.Channels)
}

// Len returns the number of sample frames (samples per channel).
func (b Buffer) Len() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playing time of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Len()) * time.Second / time.Duration(b.SampleRate)
}

// Interleave flattens the channels frame by frame: for each sample frame, one
// sample per channel in channel order.
func (b Buffer) Interleave() []float32 {
	n := b.NumChannels()
	out := make([]float32, b.Len()*n)
	i := 0
	for f := 0; f < b.Len(); f++ {
		for c := 0; c < n; c++ {
			out[i] = b.Channels[c][f]
			i++
		}
	}
	return out
}
