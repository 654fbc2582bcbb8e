package origin

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/toorcn/checkmate/internal/brain"
)

const sampleExplanation = `The claim that the government plans to abolish fuel subsidies entirely misreads the targeted diesel subsidy announcement.

Origin Tracing:
The narrative first appeared on a Facebook community page in March 2024, shortly after the budget retabling.
- March 2024: screenshot of a paywalled headline shared without context
- April 2024: viral TikTok voice-over adds the "all fuel" exaggeration
2024-05-10: recycled during the KKB by-election campaign

Why People Believe This:
- Subsidy fatigue: households already feel rising costs
- Distrust of mainstream media
* Partisan framing - opposition pages amplified the screenshot

Sources:
See [Sebenarnya.my](https://sebenarnya.my/semakan/diesel-subsidi) and https://www.bernama.com/en/news.php?id=2281530.`

type stubProvider struct {
	content string
	err     error
	calls   int
	offline bool
}

func (s *stubProvider) Name() string    { return "stub" }
func (s *stubProvider) Available() bool { return !s.offline }

func (s *stubProvider) Generate(ctx context.Context, req brain.Request) (brain.Response, error) {
	s.calls++
	if s.err != nil {
		return brain.Response{}, s.err
	}
	return brain.Response{Content: s.content, Model: "stub"}, nil
}

func TestParseExplanation(t *testing.T) {
	got := ParseExplanation(sampleExplanation)
	if got == nil {
		t.Fatal("ParseExplanation returned nil")
	}

	wantOrigin := "The narrative first appeared on a Facebook community page in March 2024, shortly after the budget retabling."
	if got.Tracing.HypothesizedOrigin != wantOrigin {
		t.Errorf("hypothesized origin = %q", got.Tracing.HypothesizedOrigin)
	}

	wantSteps := []Step{
		{Date: "March 2024", Description: `screenshot of a paywalled headline shared without context`},
		{Date: "April 2024", Description: `viral TikTok voice-over adds the "all fuel" exaggeration`},
		{Date: "2024-05-10", Description: "recycled during the KKB by-election campaign"},
	}
	if !reflect.DeepEqual(got.Tracing.EvolutionSteps, wantSteps) {
		t.Errorf("evolution steps = %+v", got.Tracing.EvolutionSteps)
	}

	wantFirstSeen := []FirstSeen{{Source: "a Facebook community page", Date: "March 2024"}}
	if !reflect.DeepEqual(got.Tracing.FirstSeenDates, wantFirstSeen) {
		t.Errorf("first seen = %+v", got.Tracing.FirstSeenDates)
	}

	wantDrivers := []BeliefDriver{
		{Name: "Subsidy fatigue", Description: "households already feel rising costs"},
		{Name: "Distrust of mainstream media"},
		{Name: "Partisan framing", Description: "opposition pages amplified the screenshot"},
	}
	if !reflect.DeepEqual(got.BeliefDrivers, wantDrivers) {
		t.Errorf("belief drivers = %+v", got.BeliefDrivers)
	}

	wantSources := []Source{
		{Title: "Sebenarnya.my", URL: "https://sebenarnya.my/semakan/diesel-subsidi"},
		{URL: "https://www.bernama.com/en/news.php?id=2281530"},
	}
	if !reflect.DeepEqual(got.Tracing.Sources, wantSources) {
		t.Errorf("sources = %+v", got.Tracing.Sources)
	}
}

func TestParseExplanationEmpty(t *testing.T) {
	if got := ParseExplanation("   \n  "); got != nil {
		t.Errorf("expected nil for blank text, got %+v", got)
	}
}

func TestMergePrefersAIOnCollision(t *testing.T) {
	ai := &Extraction{
		Tracing: Tracing{
			HypothesizedOrigin: "AI origin story.",
			FirstSeenDates:     []FirstSeen{{Source: "Facebook", Date: "March 2024", URL: "https://facebook.com/p/1"}},
		},
		BeliefDrivers: []BeliefDriver{{Name: "Cost anxiety", Description: "ai wording"}},
	}
	rx := &Extraction{
		Tracing: Tracing{
			HypothesizedOrigin: "regex origin story",
			FirstSeenDates: []FirstSeen{
				{Source: "FACEBOOK", Date: "March 2024", URL: "https://FACEBOOK.com/p/1"},
				{Source: "WhatsApp", Date: "April 2024"},
			},
		},
		BeliefDrivers: []BeliefDriver{{Name: "cost anxiety", Description: "regex wording"}},
	}

	got := Merge(ai, rx)
	if got.Tracing.HypothesizedOrigin != "AI origin story." {
		t.Errorf("hypothesized origin = %q", got.Tracing.HypothesizedOrigin)
	}
	wantFirstSeen := []FirstSeen{
		{Source: "Facebook", Date: "March 2024", URL: "https://facebook.com/p/1"},
		{Source: "WhatsApp", Date: "April 2024"},
	}
	if !reflect.DeepEqual(got.Tracing.FirstSeenDates, wantFirstSeen) {
		t.Errorf("first seen = %+v", got.Tracing.FirstSeenDates)
	}
	if len(got.BeliefDrivers) != 1 || got.BeliefDrivers[0].Description != "ai wording" {
		t.Errorf("belief drivers = %+v", got.BeliefDrivers)
	}
}

func TestMergeDeterministicAndIdempotent(t *testing.T) {
	rx := ParseExplanation(sampleExplanation)
	ai := &Extraction{
		Tracing: Tracing{
			FirstSeenDates: []FirstSeen{{Source: "Telegram", Date: "2024-03-02"}},
			Sources:        []Source{{Title: "Bernama", URL: "https://www.bernama.com/en/news.php?id=2281530"}},
		},
		BeliefDrivers: []BeliefDriver{{Name: "Distrust of mainstream media", Description: "long-running"}},
	}

	first := Merge(ai, rx)
	second := Merge(ai, rx)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different merges")
	}

	again := Merge(first, first)
	if !reflect.DeepEqual(again, first) {
		t.Errorf("re-merging the merge changed it:\nfirst: %+v\nagain: %+v", first, again)
	}

	seen := map[string]bool{}
	for _, fs := range first.Tracing.FirstSeenDates {
		key := dedupKey(fs.Source, fs.Date, fs.URL)
		if seen[key] {
			t.Errorf("duplicate (source, date, url) triple %q", key)
		}
		seen[key] = true
	}
}

func TestMergeCaps(t *testing.T) {
	big := &Extraction{}
	for i := 0; i < 20; i++ {
		big.Tracing.FirstSeenDates = append(big.Tracing.FirstSeenDates, FirstSeen{Source: fmt.Sprintf("site-%d", i), Date: "2024"})
		big.Tracing.Sources = append(big.Tracing.Sources, Source{URL: fmt.Sprintf("https://example.com/%d", i)})
	}
	for i := 0; i < 12; i++ {
		big.Tracing.EvolutionSteps = append(big.Tracing.EvolutionSteps, Step{Description: fmt.Sprintf("step %d", i)})
		big.BeliefDrivers = append(big.BeliefDrivers, BeliefDriver{Name: fmt.Sprintf("driver %d", i)})
	}

	got := Merge(big, nil)
	if n := len(got.Tracing.FirstSeenDates); n != maxFirstSeen {
		t.Errorf("first seen count = %d, want %d", n, maxFirstSeen)
	}
	if n := len(got.Tracing.Sources); n != maxSources {
		t.Errorf("source count = %d, want %d", n, maxSources)
	}
	if n := len(got.Tracing.EvolutionSteps); n != maxEvolution {
		t.Errorf("evolution count = %d, want %d", n, maxEvolution)
	}
	if n := len(got.BeliefDrivers); n != maxDrivers {
		t.Errorf("driver count = %d, want %d", n, maxDrivers)
	}
}

func TestMergeNils(t *testing.T) {
	if got := Merge(nil, nil); got != nil {
		t.Errorf("Merge(nil, nil) = %+v", got)
	}
	rx := &Extraction{Tracing: Tracing{HypothesizedOrigin: "regex only"}}
	if got := Merge(nil, rx); got.Tracing.HypothesizedOrigin != "regex only" {
		t.Errorf("regex-only merge = %+v", got)
	}
}

func TestExtractWithAI(t *testing.T) {
	provider := &stubProvider{content: "```json\n" + `{
		"hypothesizedOrigin": "Started as a mistranslated headline.",
		"firstSeenDates": [{"source": "Telegram", "date": "2024-03-02"}],
		"evolutionSteps": [{"date": "March 2024", "description": "screenshot detached from article"}],
		"beliefDrivers": [{"name": "Cost anxiety", "description": "fuel prices are salient"}],
		"sources": [{"title": "Bernama", "url": "https://bernama.com/x"}]
	}` + "\n```"}

	got := ExtractWithAI(context.Background(), provider, sampleExplanation)
	if got == nil {
		t.Fatal("ExtractWithAI returned nil")
	}
	if got.Tracing.HypothesizedOrigin != "Started as a mistranslated headline." {
		t.Errorf("hypothesized origin = %q", got.Tracing.HypothesizedOrigin)
	}
	if len(got.Tracing.FirstSeenDates) != 1 || got.Tracing.FirstSeenDates[0].Source != "Telegram" {
		t.Errorf("first seen = %+v", got.Tracing.FirstSeenDates)
	}
	if len(got.BeliefDrivers) != 1 || got.BeliefDrivers[0].Name != "Cost anxiety" {
		t.Errorf("belief drivers = %+v", got.BeliefDrivers)
	}
}

func TestExtractWithAIFailuresAreNil(t *testing.T) {
	if got := ExtractWithAI(context.Background(), nil, sampleExplanation); got != nil {
		t.Error("nil provider should yield nil")
	}

	offline := &stubProvider{offline: true}
	if got := ExtractWithAI(context.Background(), offline, sampleExplanation); got != nil || offline.calls != 0 {
		t.Errorf("offline provider: got %+v, calls %d", got, offline.calls)
	}

	failing := &stubProvider{err: errors.New("boom")}
	if got := ExtractWithAI(context.Background(), failing, sampleExplanation); got != nil {
		t.Error("provider error should yield nil")
	}

	garbled := &stubProvider{content: "no json here"}
	if got := ExtractWithAI(context.Background(), garbled, sampleExplanation); got != nil {
		t.Error("unparseable content should yield nil")
	}
}

func TestTraceWithoutProvider(t *testing.T) {
	got := Trace(context.Background(), nil, sampleExplanation)
	if got == nil {
		t.Fatal("Trace returned nil")
	}
	if got.Tracing.HypothesizedOrigin == "" {
		t.Error("regex extraction should survive a missing provider")
	}
	if got := Trace(context.Background(), nil, "  "); got != nil {
		t.Errorf("blank explanation should yield nil, got %+v", got)
	}
}
