package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/resilience"
)

// ArticleExtractor pulls title, author, and body text out of a web page.
type ArticleExtractor struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewArticleExtractor wires an HTTP client with sane limits for untrusted
// pages.
func NewArticleExtractor() *ArticleExtractor {
	return &ArticleExtractor{
		client:    &http.Client{Timeout: 30 * time.Second},
		maxBytes:  2 << 20,
		userAgent: "checkmate/1.0",
	}
}

// Extract fetches the page and parses article metadata and body text.
func (a *ArticleExtractor) Extract(ctx context.Context, rawURL string) (*Content, error) {
	doc, err := a.fetchDocument(ctx, rawURL)
	if err != nil {
		return nil, &Error{Platform: platform.Web, URL: rawURL, Cause: err}
	}

	title := metaContent(doc, `meta[property="og:title"]`, `meta[name="twitter:title"]`)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	description := metaContent(doc, `meta[property="og:description"]`, `meta[name="description"]`)
	siteName := metaContent(doc, `meta[property="og:site_name"]`)
	if siteName == "" {
		if u, perr := url.Parse(rawURL); perr == nil {
			siteName = u.Hostname()
		}
	}
	author := metaContent(doc, `meta[name="author"]`, `meta[property="article:author"]`)
	published := metaContent(doc, `meta[property="article:published_time"]`)
	lang := strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))

	body := articleBody(doc)

	handle := strings.ToLower(strings.TrimSpace(author))
	if handle == "" {
		handle = strings.ToLower(siteName)
	}

	return &Content{
		Platform:      platform.Web,
		URL:           rawURL,
		Title:         title,
		Description:   description,
		Creator:       author,
		CreatorHandle: handle,
		Language:      lang,
		Article: &ArticleMeta{
			SiteName:    siteName,
			Author:      author,
			Body:        body,
			PublishedAt: published,
			WordCount:   len(strings.Fields(body)),
		},
	}, nil
}

func (a *ArticleExtractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &resilience.StatusError{Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, a.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// metaContent returns the first non-empty content attribute among the
// given selectors.
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

// articleBody joins paragraph text, preferring semantic containers and
// skipping nav cruft.
func articleBody(doc *goquery.Document) string {
	const maxBody = 50000

	for _, scope := range []string{"article p", "main p", "p"} {
		var parts []string
		total := 0
		doc.Find(scope).EachWithBreak(func(i int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if len(text) < 20 {
				return true
			}
			parts = append(parts, text)
			total += len(text)
			return total < maxBody
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}
	return ""
}
