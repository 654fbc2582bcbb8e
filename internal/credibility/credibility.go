// Package credibility turns a fact-check outcome, creator history, and
// content signals into the 0-10 rating shown to users. Scoring is a
// pure function: the same input always yields the same rating and the
// same ordered factor list.
package credibility

import (
	"fmt"
	"math"

	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/sentiment"
	"github.com/toorcn/checkmate/internal/verdict"
)

const (
	baseline      = 6.0
	unverifiedCap = 6.0

	factCheckWeight = 0.6
	historyWeight   = 0.2
	qualityWeight   = 0.15
	sentimentWeight = 0.05

	// Relevance doubles as stance: high-relevance sources read as
	// supporting the claim, low-relevance as contradicting it.
	supportingRelevance = 0.6
	opposingRelevance   = 0.4
	dominantFraction    = 0.7

	historyHighBand = 7.0
	historyLowBand  = 4.0

	shortClaim = 50
	longClaim  = 300
)

// Source carries the two per-source signals the scorer uses.
type Source struct {
	Credibility int
	Relevance   float64
}

// History summarizes a creator's prior analyses.
type History struct {
	AverageRating float64
	Total         int
}

// Input gathers every signal feeding one rating.
type Input struct {
	Verdict               string
	Confidence            float64 // 0-100
	Sources               []Source
	Platform              platform.Kind
	ClaimLength           int
	Transcribed           bool
	TranscriptionRequired bool
	History               *History
	Sentiment             *sentiment.Analysis
}

// Rating is the scored result plus the signed factor breakdown, in
// fixed order: fact-check, history, quality, sentiment.
type Rating struct {
	Value   float64  `json:"value"`
	Factors []string `json:"factors"`
}

// Score rates the input. Each factor is clamped before weighting so no
// single signal can run away with the rating; an unverified verdict
// caps the result at the neutral baseline.
func Score(in Input) Rating {
	fcRaw := clamp(factCheckRaw(in), -5, 5)
	histRaw := clamp(historyRaw(in.History), -3, 3)
	qualRaw := clamp(qualityRaw(in), -3, 3)
	sentRaw := clamp(sentimentRaw(in.Sentiment), -3, 3)

	value := baseline +
		fcRaw*factCheckWeight +
		histRaw*historyWeight +
		qualRaw*qualityWeight +
		sentRaw*sentimentWeight

	factors := []string{
		fmt.Sprintf("fact-check %+.2f", fcRaw*factCheckWeight),
		fmt.Sprintf("history %+.2f", histRaw*historyWeight),
		fmt.Sprintf("quality %+.2f", qualRaw*qualityWeight),
		fmt.Sprintf("sentiment %+.2f", sentRaw*sentimentWeight),
	}

	if verdict.Normalize(in.Verdict) == verdict.Unverified && value > unverifiedCap {
		value = unverifiedCap
		factors = append(factors, fmt.Sprintf("capped at %.1f: verdict unverified", unverifiedCap))
	}

	value = clamp(value, 0, 10)
	return Rating{Value: math.Round(value*10) / 10, Factors: factors}
}

// verdictAdjust is the fallback used when the checker found no sources
// to take a stance from.
var verdictAdjust = map[string]float64{
	verdict.Verified:      3.0,
	verdict.PartiallyTrue: 1.5,
	verdict.Satire:        1.0,
	verdict.Opinion:       0.5,
	verdict.Outdated:      -1.0,
	verdict.Unverified:    -1.5,
	verdict.Exaggerated:   -2.0,
	verdict.Rumor:         -2.5,
	verdict.Misleading:    -3.0,
	verdict.Conspiracy:    -3.5,
	verdict.False:         -4.0,
	verdict.Debunked:      -4.0,
}

func factCheckRaw(in Input) float64 {
	if len(in.Sources) == 0 {
		return verdictAdjust[verdict.Normalize(in.Verdict)]
	}

	var supporting, opposing int
	for _, s := range in.Sources {
		switch {
		case s.Relevance >= supportingRelevance:
			supporting++
		case s.Relevance <= opposingRelevance:
			opposing++
		}
	}
	total := float64(len(in.Sources))
	supFrac := float64(supporting) / total
	oppFrac := float64(opposing) / total

	var raw float64
	switch {
	case oppFrac > dominantFraction:
		raw = -5 * oppFrac
	case supFrac > dominantFraction:
		raw = 5 * supFrac
	default:
		raw = -2 * oppFrac
	}
	return raw + confidenceModifier(in.Confidence)
}

// confidenceModifier maps checker confidence onto a small additive
// nudge. 50 and below subtracts half a point, 70 and above adds half,
// with a linear ramp between.
func confidenceModifier(confidence float64) float64 {
	normalized := clamp((confidence-50)/20, 0, 1)
	return normalized - 0.5
}

// historyRaw scores a creator's track record against the 4.0-7.0
// neutral band. The influence of history shrinks as the body of
// analyses grows, flooring at 30%.
func historyRaw(h *History) float64 {
	if h == nil || h.Total == 0 {
		return 0
	}
	diminishing := math.Max(0.3, 1-float64(h.Total)/20)
	switch {
	case h.AverageRating > historyHighBand:
		return (h.AverageRating - historyHighBand) * diminishing
	case h.AverageRating < historyLowBand:
		return (h.AverageRating - historyLowBand) * diminishing
	}
	return 0
}

func qualityRaw(in Input) float64 {
	var raw float64
	switch in.Platform {
	case platform.Web:
		raw += 0.5
	case platform.Twitter:
		raw -= 0.25
	case platform.TikTok:
		raw -= 0.5
	}
	if in.Transcribed {
		raw += 0.5
	}
	if in.TranscriptionRequired && !in.Transcribed {
		raw -= 1.0
	}
	switch {
	case in.ClaimLength < shortClaim:
		raw -= 0.5
	case in.ClaimLength >= longClaim:
		raw += 0.5
	}
	return raw
}

func sentimentRaw(s *sentiment.Analysis) float64 {
	if s == nil {
		return 0
	}
	var raw float64
	if s.EmotionalIntensity > 0.7 {
		raw -= 2 * (s.EmotionalIntensity - 0.7) / 0.3
	}
	if s.HasFlag("inflammatory") {
		raw -= 1
	}
	if s.HasFlag("manipulative") {
		raw -= 1
	}
	switch s.Overall {
	case "neutral", "factual":
		raw += 0.75
	}
	return raw
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
