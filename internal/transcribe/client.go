// Package transcribe talks to the external AI service that turns a recorded
// clip into notes and draws recording icons.
package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/satindergrewal/beatgrid/internal/sequencer"
	"github.com/satindergrewal/beatgrid/internal/synth"
)

var ErrNotConfigured = errors.New("transcription service not configured")

// Endpoints are the service URLs. An empty URL disables that call.
type Endpoints struct {
	Transcribe string
	Icon       string
	Fact       string
}

// Client calls the transcription, icon and music fact endpoints.
type Client struct {
	transcribeURL string
	iconURL       string
	factURL       string
	apiKey        string
	httpClient    *http.Client
}

// NewClient creates a client.
func NewClient(ep Endpoints, apiKey string) *Client {
	return &Client{
		transcribeURL: strings.TrimRight(ep.Transcribe, "/"),
		iconURL:       strings.TrimRight(ep.Icon, "/"),
		factURL:       strings.TrimRight(ep.Fact, "/"),
		apiKey:        apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // audio models are slow on long clips
		},
	}
}

// Configured reports whether transcription is available.
func (c *Client) Configured() bool {
	return c.transcribeURL != ""
}

// Transcribe uploads a clip and returns the notes heard in it, timed from
// the start of the clip. The instrument steers what the model listens for.
func (c *Client) Transcribe(ctx context.Context, clip []byte, inst synth.Instrument) ([]sequencer.MidiNote, error) {
	if c.transcribeURL == "" {
		return nil, ErrNotConfigured
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "recording.wav")
	if err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	if _, err := part.Write(clip); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	w.WriteField("instrument", string(inst))
	w.WriteField("mimeType", http.DetectContentType(clip))
	w.WriteField("prompt", Prompt(inst))
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.transcribeURL, &body)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(req)

	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	return ParseNotes(raw)
}

// Prompt is the instruction sent with a clip.
func Prompt(inst synth.Instrument) string {
	focus := "Identify the musical notes in the main melody."
	switch inst {
	case synth.DrumMachine:
		focus = "Identify the rhythmic hits (kick, snare, hi-hat). Map them to approximate notes (e.g. C2 for Kick, D2 for Snare) or just the timing."
	case synth.SubBass:
		focus = "Identify the bassline notes."
	}
	name := string(inst)
	if name == "" {
		name = "synthesizer"
	}
	return fmt.Sprintf(`Listen to this audio recording.
I want to replay this using a %s.
%s
Return strictly a JSON array of note objects.
Each object should have:
- "midi": The MIDI note number (0-127).
- "name": The note name with octave (e.g. "C4", "G#3").
- "time": The start time in seconds from the beginning (float).
- "duration": The duration in seconds (float).
- "velocity": The loudness from 0 to 1 (float).

Do not explain anything. Return ONLY the JSON array.`, name, focus)
}

type iconRequest struct {
	Text   string `json:"text"`
	Prompt string `json:"prompt"`
}

type iconResponse struct {
	Image string `json:"image"`
	SVG   string `json:"svg"`
}

// GenerateIcon asks for an icon for a recording title and returns it as a
// data URI.
func (c *Client) GenerateIcon(ctx context.Context, text string) (string, error) {
	if c.iconURL == "" {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("icon: empty text")
	}

	jsonBody, err := json.Marshal(iconRequest{
		Text:   text,
		Prompt: fmt.Sprintf("A colorful, vibrant, modern app icon for a recording named %q. High quality, abstract, gradient colors.", text),
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.iconURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("icon: %w", err)
	}
	var result iconResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%w: icon: %v", ErrMalformedResponse, err)
	}
	if strings.HasPrefix(result.Image, "data:image/") {
		return result.Image, nil
	}
	svg := stripFences(result.SVG)
	if !strings.HasPrefix(svg, "<svg") {
		return "", fmt.Errorf("%w: icon has no image", ErrMalformedResponse)
	}
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg)), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
