package factcheck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/toorcn/checkmate/internal/bias"
	"github.com/toorcn/checkmate/internal/brain"
	"github.com/toorcn/checkmate/internal/domaintrust"
	"github.com/toorcn/checkmate/internal/extract"
	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/resilience"
	"github.com/toorcn/checkmate/internal/search"
	"github.com/toorcn/checkmate/internal/sentiment"
	"github.com/toorcn/checkmate/internal/transcribe"
	"github.com/toorcn/checkmate/internal/verdict"
)

// routingProvider answers each prompt family with its own canned JSON,
// since one check fans out to verdict, bias, and origin prompts.
type routingProvider struct {
	verdictJSON string
	originJSON  string
	biasJSON    string

	mu    sync.Mutex
	calls []string
}

func (r *routingProvider) Name() string    { return "routing" }
func (r *routingProvider) Available() bool { return true }

func (r *routingProvider) Generate(ctx context.Context, req brain.Request) (brain.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case strings.Contains(req.SystemPrompt, "fact checker"):
		r.calls = append(r.calls, "verdict")
		return brain.Response{Content: r.verdictJSON, Model: "routing"}, nil
	case strings.Contains(req.SystemPrompt, "origin"):
		r.calls = append(r.calls, "origin")
		return brain.Response{Content: r.originJSON, Model: "routing"}, nil
	case strings.Contains(req.SystemPrompt, "left/right axis"), strings.Contains(req.SystemPrompt, "Malaysian"):
		r.calls = append(r.calls, "bias")
		return brain.Response{Content: r.biasJSON, Model: "routing"}, nil
	}
	return brain.Response{Content: "{}", Model: "routing"}, nil
}

func (r *routingProvider) called(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == kind {
			return true
		}
	}
	return false
}

func newChecker(provider brain.Provider, searchURL, sentimentURL string) *Checker {
	pm := brain.NewProviderManager()
	if provider != nil {
		pm.AddProvider(provider)
	}
	var sentClient *sentiment.Client
	if sentimentURL != "" {
		sentClient = sentiment.NewClient("", sentimentURL)
	}
	return New(pm, search.NewClient("key", searchURL, 8), sentClient, domaintrust.New(nil), bias.New(provider, nil))
}

func webContent() *extract.Content {
	return &extract.Content{
		Platform: platform.Web,
		URL:      "https://example.com/articles/vaccine",
		Title:    "Vaccine additive claim spreads online",
		Article: &extract.ArticleMeta{
			Body: "A viral post claims the national vaccination programme added an unapproved substance. Health authorities responded with ingredient lists.",
		},
	}
}

func TestCheckHappyPath(t *testing.T) {
	var (
		mu            sync.Mutex
		contentsCalls []string
	)
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"url": "https://www.sebenarnya.my/semakan/vaksin", "title": "Penjelasan isu vaksin", "score": 0.9, "text": "Kementerian Kesihatan menjelaskan kandungan vaksin."},
					{"url": "https://www.bernama.com/en/news", "title": "Ministry confirms programme details", "score": 0.85, "summary": "Confirmed by the health ministry."},
					{"url": "https://blog.example.com/post", "title": "A personal take", "score": 0.0},
				},
			})
		case "/contents":
			var req struct {
				URLs []string `json:"urls"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			mu.Lock()
			contentsCalls = append(contentsCalls, req.URLs...)
			mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"url": "https://blog.example.com/post", "text": "Long-form blog body."},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer searchSrv.Close()

	sentimentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"overall": "neutral", "emotionalIntensity": 0.2})
	}))
	defer sentimentSrv.Close()

	provider := &routingProvider{
		verdictJSON: `{"verdict": "verified", "confidence": 85, "explanation": "The claim matches official records.\n\nOrigin Tracing:\nThe rumor first appeared on a forum in January 2024.\n\nWhy People Believe This:\n- Ingredient lists are hard to read", "flags": ["Needs Context"]}`,
		originJSON:  `{"hypothesizedOrigin": "Forum rumor.", "beliefDrivers": [{"name": "Complexity"}]}`,
		biasJSON:    `{"direction": "none", "intensity": 0, "confidence": 0.9}`,
	}

	c := newChecker(provider, searchSrv.URL, sentimentSrv.URL)
	res, err := c.Check(context.Background(), webContent(), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if res.Verdict != verdict.Verified || res.Confidence != 85 {
		t.Errorf("verdict = %q confidence = %v", res.Verdict, res.Confidence)
	}
	if len(res.Sources) != 3 {
		t.Fatalf("sources = %+v", res.Sources)
	}
	if res.Sources[0].Credibility != 9 || res.Sources[0].Relevance != 0.9 {
		t.Errorf("first source = %+v", res.Sources[0])
	}
	if res.Sources[2].Relevance != 0.5 {
		t.Errorf("missing score should default to 0.5, got %v", res.Sources[2].Relevance)
	}
	if !reflect.DeepEqual(res.Flags, []string{"needs_context"}) {
		t.Errorf("flags = %v", res.Flags)
	}
	if res.PoliticalBias == nil || res.PoliticalBias.Direction != bias.DirectionNone {
		t.Errorf("political bias = %+v", res.PoliticalBias)
	}
	if res.Sentiment == nil || res.Sentiment.Overall != "neutral" {
		t.Errorf("sentiment = %+v", res.Sentiment)
	}
	if res.OriginTracing == nil || res.OriginTracing.HypothesizedOrigin != "Forum rumor." {
		t.Fatalf("origin tracing = %+v", res.OriginTracing)
	}
	if len(res.OriginTracing.FirstSeenDates) != 1 || res.OriginTracing.FirstSeenDates[0].Source != "a forum" {
		t.Errorf("first seen = %+v", res.OriginTracing.FirstSeenDates)
	}
	if len(res.BeliefDrivers) != 2 || res.BeliefDrivers[0].Name != "Complexity" {
		t.Errorf("belief drivers = %+v", res.BeliefDrivers)
	}
	if !strings.Contains(res.Content, "Vaccine additive claim") {
		t.Errorf("content = %q", res.Content)
	}
	if time.Since(res.CheckedAt) > time.Minute || res.CheckedAt.IsZero() {
		t.Errorf("checkedAt = %v", res.CheckedAt)
	}

	mu.Lock()
	gotContents := append([]string{}, contentsCalls...)
	mu.Unlock()
	if !reflect.DeepEqual(gotContents, []string{"https://blog.example.com/post"}) {
		t.Errorf("contents fetched for %v", gotContents)
	}
	for _, kind := range []string{"verdict", "bias", "origin"} {
		if !provider.called(kind) {
			t.Errorf("provider never saw a %s prompt", kind)
		}
	}
}

func TestCheckSearchFailureIsFatal(t *testing.T) {
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer searchSrv.Close()

	c := newChecker(nil, searchSrv.URL, "")
	_, err := c.Check(context.Background(), webContent(), nil)
	if err == nil {
		t.Fatal("expected an error when search is down")
	}
	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("error = %v", err)
	}
}

func TestCheckFallbackVerifiedBySources(t *testing.T) {
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"url": "https://www.reuters.com/a", "title": "Programme confirmed", "score": 0.9, "text": "Officials confirmed the programme."},
				{"url": "https://www.apnews.com/b", "title": "Health agency statement", "score": 0.8, "text": "The agency published the ingredient list."},
				{"url": "https://www.bernama.com/c", "title": "Ministry brief", "score": 0.75, "text": "Ministry addressed the viral post."},
			},
		})
	}))
	defer searchSrv.Close()

	sentimentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusInternalServerError)
	}))
	defer sentimentSrv.Close()

	c := newChecker(nil, searchSrv.URL, sentimentSrv.URL)
	res, err := c.Check(context.Background(), webContent(), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Verdict != verdict.Verified || res.Confidence != 60 {
		t.Errorf("verdict = %q confidence = %v", res.Verdict, res.Confidence)
	}
	if !hasFlag(res.Flags, "keyword_fallback") {
		t.Errorf("flags = %v", res.Flags)
	}
	if res.Sentiment != nil {
		t.Errorf("sentiment should be dropped on failure, got %+v", res.Sentiment)
	}
	if res.OriginTracing != nil {
		t.Errorf("fallback explanations should not grow origin tracing, got %+v", res.OriginTracing)
	}
}

func TestCheckFallbackDebunkedByTrustedTitle(t *testing.T) {
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"url": "https://www.sebenarnya.my/semakan/diesel", "title": "PALSU: Dakwaan subsidi diesel dimansuhkan", "score": 0.9, "text": "Penjelasan rasmi."},
				{"url": "https://blog.example.com/hot-take", "title": "Subsidi dimansuhkan?", "score": 0.7, "text": "Viral claim."},
			},
		})
	}))
	defer searchSrv.Close()

	c := newChecker(nil, searchSrv.URL, "")
	res, err := c.Check(context.Background(), webContent(), nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Verdict != verdict.Debunked || res.Confidence != 55 {
		t.Errorf("verdict = %q confidence = %v", res.Verdict, res.Confidence)
	}
}

func TestCheckNothingToCheck(t *testing.T) {
	c := New(brain.NewProviderManager(), nil, nil, nil, nil)
	if _, err := c.Check(context.Background(), &extract.Content{Platform: platform.Web, URL: "https://example.com"}, nil); err == nil {
		t.Error("expected an error for empty content")
	}
	if _, err := c.Check(context.Background(), nil, nil); err == nil {
		t.Error("expected an error for nil content")
	}
}

func TestClaimFrom(t *testing.T) {
	content := &extract.Content{
		Title:       "Clip title",
		Description: "Caption text",
	}
	transcript := &transcribe.Result{Text: "  What was actually said.  "}

	tests := []struct {
		name       string
		content    *extract.Content
		transcript *transcribe.Result
		want       string
	}{
		{"transcript with title", content, transcript, "Clip title\n\nWhat was actually said."},
		{"transcript without title", &extract.Content{}, transcript, "What was actually said."},
		{"no transcript", content, nil, "Clip title\n\nCaption text"},
		{"empty transcript", content, &transcribe.Result{}, "Clip title\n\nCaption text"},
		{"nil content", nil, transcript, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := claimFrom(tt.content, tt.transcript); got != tt.want {
				t.Errorf("claimFrom = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchQuery(t *testing.T) {
	got := searchQuery("line one\n\nline   two")
	if got != "line one line two" {
		t.Errorf("searchQuery = %q", got)
	}
	long := strings.Repeat("kata ", 100)
	if got := searchQuery(long); len(got) != 300 {
		t.Errorf("capped query length = %d, want 300", len(got))
	}
}

func TestRelevanceOf(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{0, 0.5},
		{0.7, 0.7},
		{1.3, 1},
		{-0.2, 0},
	}
	for _, tt := range tests {
		if got := relevanceOf(tt.score); got != tt.want {
			t.Errorf("relevanceOf(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestNormalizeFlags(t *testing.T) {
	got := normalizeFlags([]string{"Needs Context", "needs_context", "  ", "Developing Story"})
	want := []string{"needs_context", "developing_story"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("flags = %v, want %v", got, want)
	}

	many := make([]string, 12)
	for i := range many {
		many[i] = strings.Repeat("f", i+1)
	}
	if got := normalizeFlags(many); len(got) != 8 {
		t.Errorf("flag cap = %d, want 8", len(got))
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
