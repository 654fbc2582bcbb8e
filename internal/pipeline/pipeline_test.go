package pipeline

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/toorcn/checkmate/internal/extract"
	"github.com/toorcn/checkmate/internal/factcheck"
	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/ratelimit"
	"github.com/toorcn/checkmate/internal/reputation"
	"github.com/toorcn/checkmate/internal/resilience"
	"github.com/toorcn/checkmate/internal/transcribe"
	"github.com/toorcn/checkmate/internal/verdict"
)

type stubExtractor struct {
	content *extract.Content
	err     error
	calls   int
}

func (s *stubExtractor) Extract(_ context.Context, rawURL string) (*extract.Content, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	c := *s.content
	c.URL = rawURL
	return &c, nil
}

type stubTranscriber struct {
	result *transcribe.Result
	err    error
	calls  int
}

func (s *stubTranscriber) Available() bool { return true }

func (s *stubTranscriber) Transcribe(_ context.Context, _ *extract.Content) (*transcribe.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubChecker struct {
	result *factcheck.Result
	err    error
	calls  int
}

func (s *stubChecker) Check(_ context.Context, _ *extract.Content, _ *transcribe.Result) (*factcheck.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	r := *s.result
	return &r, nil
}

func articleContent() *extract.Content {
	return &extract.Content{
		Platform:      platform.Web,
		Title:         "Vaccines do not cause autism, studies confirm",
		Creator:       "Health Desk",
		CreatorHandle: "healthdesk",
		Article:       &extract.ArticleMeta{SiteName: "example.org", Body: "Large cohort studies found no link."},
	}
}

func verifiedCheck() *factcheck.Result {
	return &factcheck.Result{
		Verdict:    verdict.Verified,
		Confidence: 85,
		Sources: []factcheck.Source{
			{URL: "https://who.int/a", Credibility: 9, Relevance: 0.9},
			{URL: "https://cdc.gov/b", Credibility: 9, Relevance: 0.85},
			{URL: "https://news.example/c", Credibility: 6, Relevance: 0.8},
		},
		Explanation: "Multiple large studies found no causal link.",
	}
}

func newTestPipeline(t *testing.T, caps Capabilities) *Pipeline {
	t.Helper()
	p := New(Options{})
	p.Register(platform.Web, caps)
	return p
}

func TestProcessHappyPath(t *testing.T) {
	checker := &stubChecker{result: verifiedCheck()}
	p := newTestPipeline(t, Capabilities{
		Extract:   &stubExtractor{content: articleContent()},
		FactCheck: checker,
	})

	res, err := p.Process(context.Background(), "https://example.org/vaccines", ratelimit.Identity{Key: "t", Tier: ratelimit.TierAuthenticated}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !res.RequiresFactCheck {
		t.Error("RequiresFactCheck = false, want true")
	}
	if res.FactCheck == nil || res.FactCheck.Verdict != verdict.Verified {
		t.Fatalf("verdict = %+v, want verified", res.FactCheck)
	}
	if res.CreatorCredibilityRating == nil {
		t.Fatal("rating missing")
	}
	if *res.CreatorCredibilityRating < 6.5 {
		t.Errorf("rating = %.1f, want >= 6.5 on the reward path", *res.CreatorCredibilityRating)
	}
	for _, f := range res.FactCheck.Flags {
		if f == "service_unavailable" || f == "technical_error" {
			t.Errorf("unexpected degradation flag %q", f)
		}
	}
	if checker.calls != 1 {
		t.Errorf("checker called %d times, want 1", checker.calls)
	}

	// Transcription has no media to work on, so only three stages ran.
	stages := map[Stage]bool{}
	for _, st := range res.StageTimings {
		stages[st.Stage] = st.OK
	}
	for _, want := range []Stage{StageExtract, StageFactCheck, StageScore} {
		if ok, present := stages[want]; !present || !ok {
			t.Errorf("stage %s: present=%v ok=%v, want recorded and ok", want, present, ok)
		}
	}
	if _, present := stages[StageTranscribe]; present {
		t.Error("transcribe stage recorded for media-free content")
	}
}

func TestProcessExtractionFailureIsFatal(t *testing.T) {
	checker := &stubChecker{result: verifiedCheck()}
	p := newTestPipeline(t, Capabilities{
		Extract:   &stubExtractor{err: errors.New("page gone")},
		FactCheck: checker,
	})

	res, err := p.Process(context.Background(), "https://example.org/gone", ratelimit.Identity{}, nil)
	if err == nil {
		t.Fatal("Process returned nil error for failed extraction")
	}
	if res != nil {
		t.Errorf("Process returned a result alongside the error: %+v", res)
	}
	var exErr *extract.Error
	if !errors.As(err, &exErr) {
		t.Fatalf("error type = %T, want *extract.Error", err)
	}
	if exErr.Platform != platform.Web {
		t.Errorf("error platform = %s, want web", exErr.Platform)
	}
	if checker.calls != 0 {
		t.Errorf("fact-check ran %d times after fatal extraction, want 0", checker.calls)
	}
}

func TestProcessTranscriptionFailureDegrades(t *testing.T) {
	content := articleContent()
	content.Platform = platform.TikTok
	content.Video = &extract.VideoMeta{ID: "1", DownloadURL: "https://cdn.example/v.mp4"}

	tr := &stubTranscriber{err: errors.New("whisper down")}
	checker := &stubChecker{result: verifiedCheck()}
	p := New(Options{})
	p.Register(platform.TikTok, Capabilities{
		Extract:    &stubExtractor{content: content},
		Transcribe: tr,
		FactCheck:  checker,
	})

	res, err := p.Process(context.Background(), "https://www.tiktok.com/@x/video/1", ratelimit.Identity{}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if tr.calls != 1 {
		t.Errorf("transcriber called %d times, want 1", tr.calls)
	}
	if res.Transcription != nil {
		t.Error("transcription set despite vendor failure")
	}
	if res.FactCheck == nil {
		t.Fatal("fact-check skipped after transcription degradation")
	}
}

func TestProcessFactCheckOutageDegrades(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	p := newTestPipeline(t, Capabilities{
		Extract:   &stubExtractor{content: articleContent()},
		FactCheck: &stubChecker{err: netErr},
	})

	res, err := p.Process(context.Background(), "https://example.org/claim", ratelimit.Identity{}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	fc := res.FactCheck
	if fc == nil {
		t.Fatal("degraded fact-check result missing")
	}
	if fc.Verdict != verdict.Unverified {
		t.Errorf("verdict = %q, want unverified", fc.Verdict)
	}
	if fc.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", fc.Confidence)
	}
	if !hasFlag(fc.Flags, "service_unavailable") {
		t.Errorf("flags = %v, want service_unavailable", fc.Flags)
	}
	if res.CreatorCredibilityRating != nil && *res.CreatorCredibilityRating > 6.0 {
		t.Errorf("rating = %.1f for unverified content, want <= 6.0", *res.CreatorCredibilityRating)
	}
}

func TestProcessFactCheckTechnicalErrorFlag(t *testing.T) {
	p := newTestPipeline(t, Capabilities{
		Extract:   &stubExtractor{content: articleContent()},
		FactCheck: &stubChecker{err: errors.New("nil pointer somewhere")},
	})

	res, err := p.Process(context.Background(), "https://example.org/claim", ratelimit.Identity{}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !hasFlag(res.FactCheck.Flags, "technical_error") {
		t.Errorf("flags = %v, want technical_error", res.FactCheck.Flags)
	}
}

func TestProcessBreakerOpenMapsToServiceUnavailable(t *testing.T) {
	breaker := resilience.NewBreaker("fact-check", resilience.BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	// Trip the breaker before the request.
	_ = breaker.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	checker := &stubChecker{result: verifiedCheck()}
	p := New(Options{FactCheckGuard: resilience.Guard{Op: "factcheck", Breaker: breaker}})
	p.Register(platform.Web, Capabilities{
		Extract:   &stubExtractor{content: articleContent()},
		FactCheck: checker,
	})

	res, err := p.Process(context.Background(), "https://example.org/claim", ratelimit.Identity{}, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if checker.calls != 0 {
		t.Errorf("checker invoked %d times through an open breaker, want 0", checker.calls)
	}
	if !hasFlag(res.FactCheck.Flags, "service_unavailable") {
		t.Errorf("flags = %v, want service_unavailable", res.FactCheck.Flags)
	}
}

func TestProcessUnsupportedURL(t *testing.T) {
	p := New(Options{})

	_, err := p.Process(context.Background(), "ftp://example.org/x", ratelimit.Identity{}, nil)
	var valErr *platform.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("error type = %T, want *platform.ValidationError", err)
	}

	_, err = p.Process(context.Background(), "https://example.org/x", ratelimit.Identity{}, nil)
	if !errors.As(err, &valErr) {
		t.Fatalf("unregistered platform: error type = %T, want *platform.ValidationError", err)
	}
}

func TestProcessFactCheckRateLimitDegrades(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		Window:           time.Minute,
		AuthenticatedMax: 100,
		Operations: map[ratelimit.Operation]ratelimit.Limit{
			ratelimit.OpFactCheck: {Window: time.Minute, Max: 1},
		},
	}, nil)

	checker := &stubChecker{result: verifiedCheck()}
	p := New(Options{Limiter: limiter})
	p.Register(platform.Web, Capabilities{
		Extract:   &stubExtractor{content: articleContent()},
		FactCheck: checker,
	})

	id := ratelimit.Identity{Key: "burst", Tier: ratelimit.TierAuthenticated}
	if _, err := p.Process(context.Background(), "https://example.org/1", id, nil); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	res, err := p.Process(context.Background(), "https://example.org/2", id, nil)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if checker.calls != 1 {
		t.Errorf("checker ran %d times, want 1 (second call rate limited)", checker.calls)
	}
	if !hasFlag(res.FactCheck.Flags, "service_unavailable") {
		t.Errorf("flags = %v, want service_unavailable on rate-limited check", res.FactCheck.Flags)
	}
}

func TestProcessRecordsReputation(t *testing.T) {
	store, err := reputation.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	p := New(Options{Reputation: store})
	p.Register(platform.Web, Capabilities{
		Extract:   &stubExtractor{content: articleContent()},
		FactCheck: &stubChecker{result: verifiedCheck()},
	})

	if _, err := p.Process(context.Background(), "https://example.org/v", ratelimit.Identity{}, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}

	stats, err := store.Stats(context.Background(), "web", "healthdesk")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats == nil || stats.TotalAnalyses != 1 {
		t.Fatalf("stats = %+v, want one recorded analysis", stats)
	}
	if stats.VerifiedCount != 1 {
		t.Errorf("verified count = %d, want 1", stats.VerifiedCount)
	}
}

func TestProcessProgressCallbackOrder(t *testing.T) {
	p := newTestPipeline(t, Capabilities{
		Extract:   &stubExtractor{content: articleContent()},
		FactCheck: &stubChecker{result: verifiedCheck()},
	})

	var seen []Stage
	_, err := p.Process(context.Background(), "https://example.org/v", ratelimit.Identity{}, func(stage Stage, status StageStatus) {
		if status == StatusDone || status == StatusSkipped {
			seen = append(seen, stage)
		}
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []Stage{StageExtract, StageTranscribe, StageFactCheck, StageScore}
	if len(seen) != len(want) {
		t.Fatalf("stages seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("stage order = %v, want %v", seen, want)
		}
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
