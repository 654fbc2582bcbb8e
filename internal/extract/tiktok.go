package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/resilience"
)

// TikTokExtractor asks the scrape service for short-video metadata and a
// direct media URL. The service contract is a small JSON API so the
// vendor behind it can be swapped without touching callers.
type TikTokExtractor struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewTikTokExtractor creates a scrape-service client.
func NewTikTokExtractor(apiKey, baseURL string) *TikTokExtractor {
	return &TikTokExtractor{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Available returns true if the scrape service is configured.
func (t *TikTokExtractor) Available() bool {
	return t.baseURL != ""
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Language    string `json:"language"`
	Author      struct {
		Nickname string `json:"nickname"`
		UniqueID string `json:"unique_id"`
	} `json:"author"`
	Video struct {
		DownloadURL string  `json:"download_url"`
		Cover       string  `json:"cover"`
		Duration    float64 `json:"duration"`
	} `json:"video"`
}

// Extract resolves the video URL into content metadata.
func (t *TikTokExtractor) Extract(ctx context.Context, rawURL string) (*Content, error) {
	if !t.Available() {
		return nil, &Error{Platform: platform.TikTok, URL: rawURL, Cause: fmt.Errorf("scrape service not configured")}
	}

	body, err := json.Marshal(scrapeRequest{URL: rawURL})
	if err != nil {
		return nil, &Error{Platform: platform.TikTok, URL: rawURL, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Platform: platform.TikTok, URL: rawURL, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Platform: platform.TikTok, URL: rawURL, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Platform: platform.TikTok, URL: rawURL, Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Platform: platform.TikTok,
			URL:      rawURL,
			Cause:    &resilience.StatusError{Code: resp.StatusCode, Body: string(respBody)},
		}
	}

	var sr scrapeResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		return nil, &Error{Platform: platform.TikTok, URL: rawURL, Cause: fmt.Errorf("parse response: %w", err)}
	}

	return &Content{
		Platform:      platform.TikTok,
		URL:           rawURL,
		Title:         sr.Title,
		Description:   sr.Description,
		Creator:       sr.Author.Nickname,
		CreatorHandle: strings.ToLower(sr.Author.UniqueID),
		Language:      sr.Language,
		Video: &VideoMeta{
			ID:          sr.ID,
			DownloadURL: sr.Video.DownloadURL,
			CoverURL:    sr.Video.Cover,
			Duration:    sr.Video.Duration,
		},
	}, nil
}
