package audio

import (
	"math"
	"time"
)

const (
	// DefaultTrimThreshold is the amplitude a sample must exceed to count as signal.
	DefaultTrimThreshold = 0.01
	// TrimPadding is kept on each side of the detected signal window.
	TrimPadding = 50 * time.Millisecond
	// SilentClipDuration is the length returned for a clip with no signal.
	SilentClipDuration = 100 * time.Millisecond
)

// Trim removes leading and trailing silence from buf. Detection runs on
// channel 0; every channel is cut to the same window. A clip with fewer than
// two samples above threshold becomes SilentClipDuration of silence, never an
// empty buffer.
func Trim(buf Buffer, threshold float64) Buffer {
	start, end, ok := signalWindow(buf, threshold)
	if !ok {
		return silentClip(buf)
	}

	padding := samplesFor(TrimPadding, buf.SampleRate)
	start = max(0, start-padding)
	end = min(buf.Len()-1, end+padding)

	length := end - start + 1
	out := NewBuffer(buf.NumChannels(), length, buf.SampleRate)
	for c, src := range buf.Channels {
		copy(out.Channels[c], src[start:end+1])
	}
	return out
}

// signalWindow returns the first and last index in channel 0 whose magnitude
// exceeds threshold. ok is false unless first < last.
func signalWindow(buf Buffer, threshold float64) (start, end int, ok bool) {
	if buf.NumChannels() == 0 || buf.Len() == 0 {
		return 0, 0, false
	}
	ch := buf.Channels[0]

	start = -1
	for i, v := range ch {
		if math.Abs(float64(v)) > threshold {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, 0, false
	}
	for i := len(ch) - 1; i >= start; i-- {
		if math.Abs(float64(ch[i])) > threshold {
			end = i
			break
		}
	}
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func silentClip(buf Buffer) Buffer {
	channels := max(1, buf.NumChannels())
	return NewBuffer(channels, samplesFor(SilentClipDuration, buf.SampleRate), buf.SampleRate)
}

func samplesFor(d time.Duration, sampleRate int) int {
	return int(math.Floor(float64(sampleRate) * d.Seconds()))
}
