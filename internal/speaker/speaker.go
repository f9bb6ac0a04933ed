// Package speaker plays engine frames on the local sound card.
package speaker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/satindergrewal/beatgrid/internal/audio"
)

// Speaker drains a frame channel into an oto player.
type Speaker struct {
	otoCtx *oto.Context
	player *oto.Player
}

// Open starts playback of frames. Playback ends once frames is closed or done
// is closed, whichever happens first. Only one Speaker may exist per process.
func Open(frames <-chan []int16, done <-chan struct{}) (*Speaker, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audio.SampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4 * audio.FrameDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready

	player := otoCtx.NewPlayer(NewFrameReader(frames, done))
	player.Play()
	return &Speaker{otoCtx: otoCtx, player: player}, nil
}

// Wait blocks until playback has drained or ctx is cancelled.
func (s *Speaker) Wait(ctx context.Context) error {
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()
	for s.player.IsPlaying() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return s.player.Err()
}

// Close stops playback.
func (s *Speaker) Close() error {
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

// FrameReader turns a stream of int16 frames into little-endian PCM bytes.
type FrameReader struct {
	frames  <-chan []int16
	done    <-chan struct{}
	pending []byte
}

// NewFrameReader wraps frames. done may be nil.
func NewFrameReader(frames <-chan []int16, done <-chan struct{}) *FrameReader {
	return &FrameReader{frames: frames, done: done}
}

// Read blocks until a frame is available and returns io.EOF when the stream
// has ended.
func (r *FrameReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		select {
		case frame, ok := <-r.frames:
			if !ok {
				return 0, io.EOF
			}
			r.pending = audio.SamplesToBytes(frame)
		case <-r.done:
			return 0, io.EOF
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
