// Package platform validates incoming URLs and identifies which content
// platform they belong to. Detection is a pure function of the URL; any
// http(s) URL that is not a recognized short-video or microblog host is
// treated as a web article.
package platform

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies a supported content platform.
type Kind string

const (
	TikTok  Kind = "tiktok"
	Twitter Kind = "twitter"
	Web     Kind = "web"
)

func (k Kind) String() string { return string(k) }

// ValidationError reports a URL that cannot enter the pipeline.
// Validation failures surface immediately and are never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Detect validates rawURL and returns its platform along with the parsed
// URL. The scheme must be http or https and the host must be non-empty.
func Detect(rawURL string) (Kind, *url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", nil, &ValidationError{Field: "url", Reason: "missing"}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, &ValidationError{Field: "url", Reason: "malformed"}
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return "", nil, &ValidationError{Field: "url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return "", nil, &ValidationError{Field: "url", Reason: "missing host"}
	}

	switch {
	case isTikTokHost(host):
		return TikTok, u, nil
	case isTwitterHost(host):
		return Twitter, u, nil
	}
	return Web, u, nil
}

func isTikTokHost(host string) bool {
	return host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com")
}

func isTwitterHost(host string) bool {
	switch host {
	case "twitter.com", "x.com":
		return true
	}
	return strings.HasSuffix(host, ".twitter.com") || strings.HasSuffix(host, ".x.com")
}
