// Package extract pulls content and creator metadata out of a URL on a
// supported platform. Extraction is the only pipeline stage whose failure
// kills a verification, so every extractor returns a typed *Error.
package extract

import (
	"fmt"
	"strings"

	"github.com/toorcn/checkmate/internal/platform"
)

// Content is the normalized result of extraction. Exactly one of the
// variant payloads is set depending on the platform.
type Content struct {
	Platform      platform.Kind
	URL           string
	Title         string
	Description   string
	Creator       string // display name
	CreatorHandle string // stable handle, used as the reputation key
	Language      string // BCP-47 hint, may be empty

	Video   *VideoMeta
	Tweet   *TweetMeta
	Article *ArticleMeta
}

// VideoMeta describes a short-video post.
type VideoMeta struct {
	ID          string
	DownloadURL string // direct media URL for transcription, may be empty
	CoverURL    string
	Duration    float64 // seconds
}

// TweetMeta describes a microblog post.
type TweetMeta struct {
	ID       string
	Likes    int
	Retweets int
	Replies  int
	Quotes   int
	Verified bool
	PostedAt string
}

// ArticleMeta describes a web article.
type ArticleMeta struct {
	SiteName    string
	Author      string
	Body        string
	PublishedAt string
	WordCount   int
}

// ClaimText assembles the text to verify when no transcript exists:
// title and description, with the article body standing in when the
// description is thin.
func (c *Content) ClaimText() string {
	var parts []string
	if t := strings.TrimSpace(c.Title); t != "" {
		parts = append(parts, t)
	}
	if d := strings.TrimSpace(c.Description); d != "" {
		parts = append(parts, d)
	}
	if c.Article != nil {
		if body := strings.TrimSpace(c.Article.Body); body != "" {
			if len(body) > 2000 {
				body = body[:2000]
			}
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n")
}

// HasMedia reports whether the content carries downloadable media worth
// transcribing.
func (c *Content) HasMedia() bool {
	return c.Video != nil && c.Video.DownloadURL != ""
}

// Error is a fatal extraction failure.
type Error struct {
	Platform platform.Kind
	URL      string
	Cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s content from %s: %v", e.Platform, e.URL, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
