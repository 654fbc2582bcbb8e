// Package transcribe turns short-video audio into text with Whisper.
// A nil *Result is a valid outcome: content without media simply has
// nothing to transcribe.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/toorcn/checkmate/internal/extract"
	"github.com/toorcn/checkmate/internal/logging"
	"github.com/toorcn/checkmate/internal/resilience"
)

// Segment is a timed slice of the transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a completed transcription.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
	Language string    `json:"language,omitempty"`
}

// Transcriber downloads media and runs it through the Whisper API.
type Transcriber struct {
	apiKey   string
	maxBytes int64
	client   *openai.Client
	media    *http.Client
}

// New creates a transcriber. maxBytes caps the media download; <= 0
// defaults to 25 MiB, the Whisper upload limit.
func New(apiKey string, maxBytes int64) *Transcriber {
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	t := &Transcriber{
		apiKey:   apiKey,
		maxBytes: maxBytes,
		media:    &http.Client{Timeout: 60 * time.Second},
	}
	if apiKey != "" {
		t.client = openai.NewClient(apiKey)
	}
	return t
}

// SetBaseURL rebuilds the Whisper client against a different API base.
// Used by tests.
func (t *Transcriber) SetBaseURL(baseURL string) {
	cfg := openai.DefaultConfig(t.apiKey)
	cfg.BaseURL = baseURL
	t.client = openai.NewClientWithConfig(cfg)
}

// Available returns true if the Whisper API key is configured.
func (t *Transcriber) Available() bool {
	return t.client != nil
}

// Transcribe fetches the content's media and transcribes it. Returns
// (nil, nil) when the content has no media.
func (t *Transcriber) Transcribe(ctx context.Context, content *extract.Content) (*Result, error) {
	if content == nil || !content.HasMedia() {
		return nil, nil
	}
	if !t.Available() {
		return nil, fmt.Errorf("transcription not configured")
	}

	media, err := t.download(ctx, content.Video.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}

	logging.Debug("transcribing media", "bytes", len(media), "url", content.URL)

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(media),
		FilePath: mediaFileName(content.Video.DownloadURL),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
			return nil, &resilience.StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("whisper request: %w", err)
	}

	result := &Result{
		Text:     resp.Text,
		Language: resp.Language,
	}
	for _, s := range resp.Segments {
		result.Segments = append(result.Segments, Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}
	return result, nil
}

// download pulls the media bytes, failing when the size cap is exceeded
// rather than silently truncating audio.
func (t *Transcriber) download(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := t.media.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > t.maxBytes {
		return nil, fmt.Errorf("media exceeds %d byte limit", t.maxBytes)
	}
	return data, nil
}

// mediaFileName derives a filename with a usable extension; the Whisper
// SDK infers the upload format from it.
func mediaFileName(mediaURL string) string {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return "media.mp4"
	}
	switch ext := path.Ext(u.Path); ext {
	case ".mp3", ".mp4", ".m4a", ".wav", ".webm", ".mpga", ".mpeg", ".ogg":
		return "media" + ext
	default:
		return "media.mp4"
	}
}
