// Package bias scores the political lean of content. Region detection
// decides between a generic left/right reading and a Malaysia-specific
// government-framing scale; both stages prefer a model verdict and fall
// back to deterministic keyword arithmetic when no provider answers.
package bias

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/toorcn/checkmate/internal/brain"
	"github.com/toorcn/checkmate/internal/llmjson"
)

const (
	DirectionLeft   = "left"
	DirectionRight  = "right"
	DirectionCenter = "center"
	DirectionNone   = "none"
)

// Government-framing bands. At or below the opposition band the content
// reads as opposition-aligned, at or above the pro-government band as
// government-aligned.
const (
	oppositionBand    = 30
	proGovernmentBand = 70
)

// Result describes the political lean of a piece of content. For
// region-specific content RegionScore carries the 0-100
// government-framing score the direction was derived from.
type Result struct {
	Direction      string   `json:"direction"`
	Intensity      float64  `json:"intensity"`
	Confidence     float64  `json:"confidence"`
	Explanation    string   `json:"explanation,omitempty"`
	Indicators     []string `json:"indicators,omitempty"`
	Topics         []string `json:"topics,omitempty"`
	RegionSpecific bool     `json:"regionSpecific"`
	RegionScore    *int     `json:"regionScore,omitempty"`
	KeyQuote       string   `json:"keyQuote,omitempty"`
}

// Analyzer runs the two-stage analysis. The provider may be nil, in
// which case every verdict comes from the keyword fallbacks.
type Analyzer struct {
	provider brain.Provider
	lexicon  *Lexicon
}

func New(provider brain.Provider, lexicon *Lexicon) *Analyzer {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &Analyzer{provider: provider, lexicon: lexicon}
}

// Analyze never fails: model errors degrade to the deterministic
// fallback for whichever stage applies. The result is always non-nil.
func (a *Analyzer) Analyze(ctx context.Context, text string) *Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Result{Direction: DirectionNone}
	}
	sig := a.lexicon.scan(text)
	if sig.regionDetected() {
		if res := a.malaysiaByModel(ctx, text, sig); res != nil {
			return res
		}
		return a.malaysiaFallback(text, sig)
	}
	if res := a.genericByModel(ctx, text); res != nil {
		return res
	}
	return a.genericFallback(sig)
}

const malaysiaSystemPrompt = `You score how Malaysian political content frames the sitting federal government.
Reply with one JSON object only:
{"score": 0-100, "confidence": 0-1, "explanation": "...", "topics": ["..."], "keyQuote": "..."}
0 is strongly opposition-aligned framing, 50 is neutral, 100 is strongly pro-government framing.
Judge framing and tone, not topic choice. Account for sarcasm and rhetorical questions.`

type malaysiaVerdict struct {
	Score       *int     `json:"score"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Topics      []string `json:"topics"`
	KeyQuote    string   `json:"keyQuote"`
}

func (a *Analyzer) malaysiaByModel(ctx context.Context, text string, sig signals) *Result {
	if a.provider == nil || !a.provider.Available() {
		return nil
	}
	resp, err := a.provider.Generate(ctx, brain.Request{
		SystemPrompt: malaysiaSystemPrompt,
		UserPrompt:   clampText(text, 6000),
		MaxTokens:    800,
		Temperature:  0.1,
		ForceJSON:    true,
	})
	if err != nil {
		return nil
	}
	var v malaysiaVerdict
	if err := llmjson.Decode(resp.Content, &v); err != nil || v.Score == nil {
		return nil
	}
	res := resultFromScore(*v.Score)
	res.Confidence = clampFloat(v.Confidence, 0, 1)
	res.Explanation = v.Explanation
	res.Topics = capStrings(v.Topics, 5)
	res.KeyQuote = clampText(v.KeyQuote, 200)
	res.Indicators = sig.indicators()
	return res
}

var rhetoricalQuestionRe = regexp.MustCompile(`(?i)\b(kenapa|mengapa|siapa|takkan|betul ke|macam mana|why|how come)\b[^.?!\n]*\?`)

// malaysiaFallback is the deterministic government-framing arithmetic.
// It starts neutral at 50 and moves with keyword evidence, then snaps
// hard when criticism names a side.
func (a *Analyzer) malaysiaFallback(text string, sig signals) *Result {
	score := 50
	score += 7 * len(sig.proGov)
	score -= 7 * len(sig.proOpp)
	score -= 10 * len(sig.sarcasm)
	// The regex and the lexicon can flag the same question; charge each
	// rhetorical question once, whichever detector saw more of them.
	rhetorical := len(sig.rhetorical)
	if n := len(rhetoricalQuestionRe.FindAllString(text, -1)); n > rhetorical {
		rhetorical = n
	}
	score -= 8 * rhetorical
	score -= 12 * len(sig.criticism)
	critGov, critOpp := a.criticismTargets(text)
	if critGov {
		score -= 20
		if len(sig.opposition) == 0 && score > 25 {
			score = 25
		}
	}
	if critOpp {
		score += 20
		if len(sig.government) == 0 && score < 75 {
			score = 75
		}
	}

	res := resultFromScore(score)
	res.Confidence = 0.4
	res.Indicators = sig.indicators()
	res.Explanation = fmt.Sprintf("keyword scoring: %d pro-government, %d opposition, %d criticism signals",
		len(sig.proGov), len(sig.proOpp), len(sig.criticism))
	return res
}

// criticismTargets reports which side criticism terms co-occur with,
// sentence by sentence.
func (a *Analyzer) criticismTargets(text string) (gov, opp bool) {
	for _, sentence := range splitSentences(text) {
		norm := normalize(sentence)
		if len(matchTerms(norm, a.lexicon.Criticism)) == 0 {
			continue
		}
		if !gov && len(matchTerms(norm, a.lexicon.Government.all())) > 0 {
			gov = true
		}
		if !opp && len(matchTerms(norm, a.lexicon.Opposition.all())) > 0 {
			opp = true
		}
		if gov && opp {
			return
		}
	}
	return
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == ';' || r == '\n'
	})
}

// resultFromScore maps a 0-100 government-framing score onto the shared
// direction axis. Opposition-band scores surface as left, pro-government
// as right, with intensity growing toward the extremes.
func resultFromScore(score int) *Result {
	score = clampInt(score, 0, 100)
	res := &Result{RegionSpecific: true, RegionScore: &score}
	switch {
	case score <= oppositionBand:
		res.Direction = DirectionLeft
		res.Intensity = round2(0.67 + float64(oppositionBand-score)/float64(oppositionBand)*0.33)
	case score >= proGovernmentBand:
		res.Direction = DirectionRight
		res.Intensity = round2(0.67 + float64(score-proGovernmentBand)/float64(100-proGovernmentBand)*0.33)
	default:
		res.Direction = DirectionCenter
		res.Intensity = round2(math.Abs(float64(score-50)) / 50)
	}
	return res
}

const genericSystemPrompt = `You classify the political lean of content on a generic left/right axis.
Reply with one JSON object only:
{"direction": "left|right|center|none", "intensity": 0-1, "confidence": 0-1, "explanation": "...", "topics": ["..."], "keyQuote": "..."}
Use "none" when the content is apolitical.`

type genericVerdict struct {
	Direction   string   `json:"direction"`
	Intensity   float64  `json:"intensity"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Topics      []string `json:"topics"`
	KeyQuote    string   `json:"keyQuote"`
}

func (a *Analyzer) genericByModel(ctx context.Context, text string) *Result {
	if a.provider == nil || !a.provider.Available() {
		return nil
	}
	resp, err := a.provider.Generate(ctx, brain.Request{
		SystemPrompt: genericSystemPrompt,
		UserPrompt:   clampText(text, 6000),
		MaxTokens:    800,
		Temperature:  0.1,
		ForceJSON:    true,
	})
	if err != nil {
		return nil
	}
	var v genericVerdict
	if err := llmjson.Decode(resp.Content, &v); err != nil {
		return nil
	}
	direction := strings.ToLower(strings.TrimSpace(v.Direction))
	switch direction {
	case DirectionLeft, DirectionRight, DirectionCenter, DirectionNone:
	default:
		return nil
	}
	res := &Result{
		Direction:   direction,
		Intensity:   clampFloat(v.Intensity, 0, 1),
		Confidence:  clampFloat(v.Confidence, 0, 1),
		Explanation: v.Explanation,
		Topics:      capStrings(v.Topics, 5),
		KeyQuote:    clampText(v.KeyQuote, 200),
	}
	if direction == DirectionNone {
		res.Intensity = 0
	}
	return res
}

// genericFallback counts left against right keywords. It is symmetric:
// mirrored inputs produce mirrored directions at the same intensity.
func (a *Analyzer) genericFallback(sig signals) *Result {
	l, r := len(sig.left), len(sig.right)
	indicators := capStrings(append(append([]string{}, sig.left...), sig.right...), 10)
	switch {
	case l == 0 && r == 0:
		return &Result{Direction: DirectionNone, Confidence: 0.3}
	case l == r:
		return &Result{Direction: DirectionCenter, Intensity: 0.3, Confidence: 0.4, Indicators: indicators}
	case l > r:
		return &Result{Direction: DirectionLeft, Intensity: keywordIntensity(l - r), Confidence: 0.4, Indicators: indicators}
	default:
		return &Result{Direction: DirectionRight, Intensity: keywordIntensity(r - l), Confidence: 0.4, Indicators: indicators}
	}
}

func keywordIntensity(margin int) float64 {
	return round2(math.Min(1, 0.4+0.15*float64(margin)))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func capStrings(in []string, max int) []string {
	if len(in) > max {
		in = in[:max]
	}
	return in
}

func clampText(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
