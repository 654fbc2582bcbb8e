package credibility

import (
	"reflect"
	"strings"
	"testing"

	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/sentiment"
	"github.com/toorcn/checkmate/internal/verdict"
)

func TestScoreDominantSupport(t *testing.T) {
	in := Input{
		Verdict:    verdict.Verified,
		Confidence: 80,
		Sources: []Source{
			{Credibility: 9, Relevance: 0.9},
			{Credibility: 8, Relevance: 0.8},
			{Credibility: 7, Relevance: 0.7},
			{Credibility: 5, Relevance: 0.3},
		},
		Platform:    platform.Web,
		ClaimLength: 500,
	}
	got := Score(in)
	if got.Value != 8.7 {
		t.Errorf("value = %v, want 8.7", got.Value)
	}
	want := []string{"fact-check +2.55", "history +0.00", "quality +0.15", "sentiment +0.00"}
	if !reflect.DeepEqual(got.Factors, want) {
		t.Errorf("factors = %v, want %v", got.Factors, want)
	}
}

func TestScoreDominantOpposition(t *testing.T) {
	in := Input{
		Verdict:    verdict.Debunked,
		Confidence: 40,
		Sources: []Source{
			{Relevance: 0.1}, {Relevance: 0.2}, {Relevance: 0.3}, {Relevance: 0.2}, {Relevance: 0.9},
		},
		Platform:              platform.TikTok,
		ClaimLength:           100,
		TranscriptionRequired: true,
		History:               &History{AverageRating: 3.0, Total: 10},
		Sentiment: &sentiment.Analysis{
			Overall:            "negative",
			EmotionalIntensity: 1.0,
			Flags:              []string{"inflammatory"},
		},
	}
	got := Score(in)
	if got.Value != 2.8 {
		t.Errorf("value = %v, want 2.8", got.Value)
	}
	if got.Factors[0] != "fact-check -2.70" {
		t.Errorf("fact-check factor = %q", got.Factors[0])
	}
}

func TestScoreUnverifiedCap(t *testing.T) {
	in := Input{
		Verdict:    "unverifiable",
		Confidence: 90,
		Sources: []Source{
			{Relevance: 0.9}, {Relevance: 0.95}, {Relevance: 0.8}, {Relevance: 0.85}, {Relevance: 0.7},
		},
		Platform:    platform.Web,
		ClaimLength: 400,
		History:     &History{AverageRating: 9.0, Total: 2},
		Sentiment:   &sentiment.Analysis{Overall: "neutral"},
	}
	got := Score(in)
	if got.Value != 6.0 {
		t.Errorf("value = %v, want the 6.0 cap", got.Value)
	}
	if len(got.Factors) != 5 || !strings.Contains(got.Factors[4], "capped") {
		t.Errorf("factors = %v", got.Factors)
	}
}

func TestScoreVerdictFallback(t *testing.T) {
	tests := []struct {
		verdict string
		want    float64
	}{
		{verdict.Verified, 7.8},
		{verdict.Satire, 6.6},
		{verdict.Conspiracy, 3.9},
		{verdict.False, 3.6},
		{"total nonsense", 5.1},
	}
	for _, tt := range tests {
		t.Run(tt.verdict, func(t *testing.T) {
			in := Input{Verdict: tt.verdict, Platform: platform.Twitter, ClaimLength: 100}
			if got := Score(in); got.Value != tt.want {
				t.Errorf("Score(%q) = %v, want %v", tt.verdict, got.Value, tt.want)
			}
		})
	}
}

func TestScoreMixedSources(t *testing.T) {
	in := Input{
		Verdict:    verdict.PartiallyTrue,
		Confidence: 50,
		Sources: []Source{
			{Relevance: 0.9}, {Relevance: 0.3}, {Relevance: 0.5}, {Relevance: 0.5},
		},
		Platform:    platform.Web,
		ClaimLength: 100,
	}
	if got := Score(in); got.Value != 5.5 {
		t.Errorf("value = %v, want 5.5", got.Value)
	}
}

func TestScoreConfidenceRamp(t *testing.T) {
	sources := make([]Source, 0, 10)
	for i := 0; i < 8; i++ {
		sources = append(sources, Source{Relevance: 0.9})
	}
	sources = append(sources, Source{Relevance: 0.5}, Source{Relevance: 0.5})

	in := Input{
		Verdict:     verdict.Verified,
		Confidence:  60,
		Sources:     sources,
		Platform:    platform.Web,
		ClaimLength: 100,
	}
	if got := Score(in); got.Value != 8.5 {
		t.Errorf("value = %v, want 8.5", got.Value)
	}
}

func TestScoreHistoryClamped(t *testing.T) {
	in := Input{
		Verdict:     verdict.Verified,
		Confidence:  100,
		Sources:     []Source{{Relevance: 1.0}, {Relevance: 0.9}},
		Platform:    platform.Web,
		ClaimLength: 400,
		Transcribed: true,
		History:     &History{AverageRating: 40, Total: 1},
		Sentiment:   &sentiment.Analysis{Overall: "neutral"},
	}
	if got := Score(in); got.Value != 9.9 {
		t.Errorf("value = %v, want 9.9", got.Value)
	}
}

func TestScoreEmptyInput(t *testing.T) {
	got := Score(Input{})
	if got.Value != 5.0 {
		t.Errorf("value = %v, want 5.0", got.Value)
	}
	if len(got.Factors) != 4 {
		t.Errorf("factors = %v", got.Factors)
	}
}

func TestScoreIdempotent(t *testing.T) {
	in := Input{
		Verdict:    verdict.Misleading,
		Confidence: 55,
		Sources:    []Source{{Relevance: 0.2}, {Relevance: 0.3}, {Relevance: 0.8}},
		Platform:   platform.TikTok,
		History:    &History{AverageRating: 6.0, Total: 4},
		Sentiment:  &sentiment.Analysis{Overall: "mixed", EmotionalIntensity: 0.8},
	}
	first := Score(in)
	second := Score(in)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same input scored differently: %+v vs %+v", first, second)
	}
}
