package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Fact is a short "did you know" note about music production.
type Fact struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Icon    string `json:"icon"`
}

const factPrompt = `Generate a unique, surprising, and educational "Did you know?" fact about music production, audio engineering, digital music creation or electronic music history.

Return strictly a JSON object with:
- "title": A short catchy title (max 5 words)
- "content": An interesting fact (1-2 sentences)
- "icon": A single relevant emoji

Do not explain. Return ONLY the JSON object.`

// MusicFact asks the text model for a music fact.
func (c *Client) MusicFact(ctx context.Context) (Fact, error) {
	if c.factURL == "" {
		return Fact{}, ErrNotConfigured
	}

	jsonBody, err := json.Marshal(map[string]string{"prompt": factPrompt})
	if err != nil {
		return Fact{}, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.factURL, bytes.NewReader(jsonBody))
	if err != nil {
		return Fact{}, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	raw, err := c.do(req)
	if err != nil {
		return Fact{}, fmt.Errorf("music fact: %w", err)
	}
	return ParseFact(raw)
}

// ParseFact reads a fact object, optionally fenced or wrapped as a model
// "response"/"text" string.
func ParseFact(raw []byte) (Fact, error) {
	var v struct {
		Fact
		Response *string `json:"response"`
		Text     *string `json:"text"`
	}
	if err := json.Unmarshal([]byte(stripFences(string(raw))), &v); err != nil {
		return Fact{}, fmt.Errorf("%w: fact: %v", ErrMalformedResponse, err)
	}
	if v.Title == "" && v.Content == "" {
		switch {
		case v.Response != nil:
			return ParseFact([]byte(*v.Response))
		case v.Text != nil:
			return ParseFact([]byte(*v.Text))
		}
	}

	f := Fact{
		Title:   strings.TrimSpace(v.Title),
		Content: strings.TrimSpace(v.Content),
		Icon:    strings.TrimSpace(v.Icon),
	}
	if f.Title == "" || f.Content == "" {
		return Fact{}, fmt.Errorf("%w: fact needs a title and content", ErrMalformedResponse)
	}
	return f, nil
}
