package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"

	"github.com/satindergrewal/beatgrid/internal/audio"
)

// HTTPHandler serves the live mix over chunked HTTP. The default format is
// MP3, encoded by one FFmpeg process per connection; ?format=wav sends raw
// 16-bit PCM behind an open-ended WAV header and needs no FFmpeg.
type HTTPHandler struct {
	broadcaster *Broadcaster
	bitrate     string
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, bitrate: "192k"}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "beatgrid")

	if r.URL.Query().Get("format") == "wav" {
		h.serveWAV(w, r, flusher)
		return
	}
	h.serveMP3(w, r, flusher)
}

func (h *HTTPHandler) serveWAV(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
	w.Header().Set("Content-Type", "audio/wav")

	listener := h.broadcaster.Subscribe("http-wav")
	defer h.broadcaster.Unsubscribe(listener)
	log.Printf("WAV listener connected (total: %d)", h.broadcaster.ListenerCount())
	defer log.Printf("WAV listener disconnected")

	if _, err := w.Write(audio.WAVHeader(audio.SampleRate, audio.Channels, audio.StreamDataLength)); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.Done():
			return
		case frame := <-listener.C:
			if _, err := w.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *HTTPHandler) serveMP3(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
	w.Header().Set("Content-Type", "audio/mpeg")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// FFmpeg: PCM stdin -> MP3 stdout
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", h.bitrate,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("MP3 stream: stdin pipe error: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("MP3 stream: stdout pipe error: %v", err)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("MP3 stream: ffmpeg start error: %v", err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	listener := h.broadcaster.Subscribe("http-mp3")
	defer h.broadcaster.Unsubscribe(listener)
	log.Printf("MP3 listener connected (total: %d)", h.broadcaster.ListenerCount())
	defer log.Printf("MP3 listener disconnected")

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame := <-listener.C:
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("MP3 stream: ffmpeg read error: %v", err)
			}
			break
		}
	}

	cancel()
	cmd.Wait()
}
