package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	twitter "github.com/g8rswimmer/go-twitter/v2"

	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/resilience"
)

// bearerAuthorizer signs requests with an app-only bearer token.
type bearerAuthorizer struct {
	token string
}

func (a bearerAuthorizer) Add(req *http.Request) {
	req.Header.Add("Authorization", "Bearer "+a.token)
}

// TwitterExtractor looks tweets up through the v2 API.
type TwitterExtractor struct {
	bearerToken string
	client      *twitter.Client
}

// NewTwitterExtractor creates a tweet extractor with app-only auth.
func NewTwitterExtractor(bearerToken string) *TwitterExtractor {
	t := &TwitterExtractor{bearerToken: bearerToken}
	if bearerToken != "" {
		t.client = &twitter.Client{
			Authorizer: bearerAuthorizer{token: bearerToken},
			Client:     &http.Client{Timeout: 15 * time.Second},
			Host:       "https://api.twitter.com",
		}
	}
	return t
}

// SetHost points the API client at a different host. Used by tests.
func (t *TwitterExtractor) SetHost(host string) {
	if t.client != nil {
		t.client.Host = host
	}
}

// Available returns true if the bearer token is configured.
func (t *TwitterExtractor) Available() bool {
	return t.client != nil
}

// Extract looks up the tweet behind the URL.
func (t *TwitterExtractor) Extract(ctx context.Context, rawURL string) (*Content, error) {
	if !t.Available() {
		return nil, &Error{Platform: platform.Twitter, URL: rawURL, Cause: fmt.Errorf("twitter API not configured")}
	}

	id, handle, err := parseTweetURL(rawURL)
	if err != nil {
		return nil, &Error{Platform: platform.Twitter, URL: rawURL, Cause: err}
	}

	opts := twitter.TweetLookupOpts{
		Expansions: []twitter.Expansion{twitter.ExpansionAuthorID},
		TweetFields: []twitter.TweetField{
			twitter.TweetFieldCreatedAt,
			twitter.TweetFieldPublicMetrics,
			twitter.TweetFieldLanguage,
		},
		UserFields: []twitter.UserField{
			twitter.UserFieldName,
			twitter.UserFieldUserName,
			twitter.UserFieldVerified,
		},
	}

	resp, err := t.client.TweetLookup(ctx, []string{id}, opts)
	if err != nil {
		var apiErr *twitter.ErrorResponse
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
			err = &resilience.StatusError{Code: apiErr.StatusCode, Body: apiErr.Detail}
		}
		return nil, &Error{Platform: platform.Twitter, URL: rawURL, Cause: err}
	}

	if resp.Raw == nil || len(resp.Raw.Tweets) == 0 || resp.Raw.Tweets[0] == nil {
		return nil, &Error{Platform: platform.Twitter, URL: rawURL, Cause: fmt.Errorf("tweet %s not found", id)}
	}
	tweet := resp.Raw.Tweets[0]

	var author *twitter.UserObj
	if resp.Raw.Includes != nil {
		for _, u := range resp.Raw.Includes.Users {
			if u != nil && u.ID == tweet.AuthorID {
				author = u
				break
			}
		}
	}

	creator := ""
	creatorHandle := strings.ToLower(handle)
	verified := false
	if author != nil {
		creator = author.Name
		creatorHandle = strings.ToLower(author.UserName)
		verified = author.Verified
	}

	meta := &TweetMeta{
		ID:       tweet.ID,
		Verified: verified,
		PostedAt: tweet.CreatedAt,
	}
	if tweet.PublicMetrics != nil {
		meta.Likes = tweet.PublicMetrics.Likes
		meta.Retweets = tweet.PublicMetrics.Retweets
		meta.Replies = tweet.PublicMetrics.Replies
		meta.Quotes = tweet.PublicMetrics.Quotes
	}

	title := "Post by @" + creatorHandle
	if creatorHandle == "" {
		title = "Post " + tweet.ID
	}

	return &Content{
		Platform:      platform.Twitter,
		URL:           rawURL,
		Title:         title,
		Description:   tweet.Text,
		Creator:       creator,
		CreatorHandle: creatorHandle,
		Language:      tweet.Language,
		Tweet:         meta,
	}, nil
}

// parseTweetURL pulls the numeric status ID and the handle out of a
// twitter.com or x.com URL.
func parseTweetURL(rawURL string) (id, handle string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse URL: %w", err)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, s := range segs {
		if s != "status" && s != "statuses" {
			continue
		}
		if i+1 >= len(segs) {
			break
		}
		candidate := segs[i+1]
		if !isDigits(candidate) {
			break
		}
		if i > 0 && segs[i-1] != "i" && segs[i-1] != "web" {
			handle = segs[i-1]
		}
		return candidate, handle, nil
	}
	return "", "", fmt.Errorf("no status ID in %s", rawURL)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
