// Package factcheck orchestrates evidence gathering and verdict
// synthesis for a single claim. Search, sentiment, and bias run
// concurrently; the verdict comes from a model when one is available
// and from deterministic source arithmetic when none is.
package factcheck

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/toorcn/checkmate/internal/bias"
	"github.com/toorcn/checkmate/internal/brain"
	"github.com/toorcn/checkmate/internal/domaintrust"
	"github.com/toorcn/checkmate/internal/extract"
	"github.com/toorcn/checkmate/internal/llmjson"
	"github.com/toorcn/checkmate/internal/logging"
	"github.com/toorcn/checkmate/internal/origin"
	"github.com/toorcn/checkmate/internal/search"
	"github.com/toorcn/checkmate/internal/sentiment"
	"github.com/toorcn/checkmate/internal/transcribe"
	"github.com/toorcn/checkmate/internal/verdict"
)

// Relevance doubles as stance, matching the credibility scorer's
// reading of the same numbers.
const (
	supportingRelevance = 0.6
	opposingRelevance   = 0.4
	dominantFraction    = 0.7
)

// Source is one piece of evidence with its trust and stance signals.
type Source struct {
	URL         string  `json:"url"`
	Title       string  `json:"title,omitempty"`
	Credibility int     `json:"credibility"`
	Relevance   float64 `json:"relevance"`
}

// Result is the full fact-check outcome for a claim.
type Result struct {
	Verdict       string                `json:"verdict"`
	Confidence    float64               `json:"confidence"`
	Explanation   string                `json:"explanation,omitempty"`
	Content       string                `json:"content,omitempty"`
	Sources       []Source              `json:"sources,omitempty"`
	Flags         []string              `json:"flags,omitempty"`
	OriginTracing *origin.Tracing       `json:"originTracing,omitempty"`
	BeliefDrivers []origin.BeliefDriver `json:"beliefDrivers,omitempty"`
	PoliticalBias *bias.Result          `json:"politicalBias,omitempty"`
	Sentiment     *sentiment.Analysis   `json:"sentiment,omitempty"`
	CheckedAt     time.Time             `json:"checkedAt"`
}

// Checker wires the evidence services together.
type Checker struct {
	providers *brain.ProviderManager
	search    *search.Client
	sentiment *sentiment.Client
	trust     *domaintrust.Scorer
	bias      *bias.Analyzer
}

func New(providers *brain.ProviderManager, searchClient *search.Client, sentimentClient *sentiment.Client, trust *domaintrust.Scorer, biasAnalyzer *bias.Analyzer) *Checker {
	return &Checker{
		providers: providers,
		search:    searchClient,
		sentiment: sentimentClient,
		trust:     trust,
		bias:      biasAnalyzer,
	}
}

// Check verifies the extracted content. A search failure fails the
// whole check so the caller's retry policy can take over; sentiment and
// model failures degrade instead.
func (c *Checker) Check(ctx context.Context, content *extract.Content, transcript *transcribe.Result) (*Result, error) {
	claim := claimFrom(content, transcript)
	if claim == "" {
		return nil, fmt.Errorf("factcheck: nothing to check")
	}

	var (
		results []search.Result
		senti   *sentiment.Analysis
		lean    *bias.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		results, err = c.search.Search(gctx, searchQuery(claim))
		return err
	})
	g.Go(func() error {
		if c.sentiment == nil || !c.sentiment.Available() {
			return nil
		}
		analysis, err := c.sentiment.Analyze(gctx, claim, contentLanguage(content))
		if err != nil {
			logging.Warn("sentiment analysis failed", "error", err)
			return nil
		}
		senti = analysis
		return nil
	})
	g.Go(func() error {
		lean = c.bias.Analyze(gctx, claim)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gather evidence: %w", err)
	}

	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			URL:         r.URL,
			Title:       r.Title,
			Credibility: c.trust.Score(ctx, domainOf(r.URL)),
			Relevance:   relevanceOf(r.Score),
		})
	}

	res := &Result{
		Content:       clampText(claim, 2000),
		Sources:       sources,
		PoliticalBias: lean,
		Sentiment:     senti,
		CheckedAt:     time.Now().UTC(),
	}

	provider := c.providers.GetAvailable()
	if v := c.verdictByModel(ctx, provider, claim, c.buildEvidence(ctx, results)); v != nil {
		res.Verdict = verdict.Normalize(v.Verdict)
		res.Confidence = clamp(v.Confidence, 0, 100)
		res.Explanation = v.Explanation
		res.Flags = normalizeFlags(v.Flags)
	} else {
		c.fallbackVerdict(res)
	}

	if res.Explanation != "" {
		if traced := origin.Trace(ctx, provider, res.Explanation); !traced.Empty() {
			res.OriginTracing = &traced.Tracing
			res.BeliefDrivers = traced.BeliefDrivers
		}
	}
	return res, nil
}

var verdictSystemPrompt = `You are a fact checker. Judge the claim against the evidence.
Reply with one JSON object only:
{"verdict": "...", "confidence": 0-100, "explanation": "...", "flags": ["..."]}
The verdict must be one of: ` + strings.Join(verdict.All, ", ") + `.
Confidence reflects how settled the evidence is, not how strongly worded the claim is.
In the explanation, when the evidence supports them, include an "Origin Tracing" section
describing where the claim started and a "Why People Believe This" section listing the
reasons it spreads. Flags are short labels such as "needs_context" or "developing_story".`

type modelVerdict struct {
	Verdict     string   `json:"verdict"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Flags       []string `json:"flags"`
}

func (c *Checker) verdictByModel(ctx context.Context, provider brain.Provider, claim string, evidence []evidenceItem) *modelVerdict {
	if provider == nil {
		return nil
	}
	resp, err := provider.Generate(ctx, brain.Request{
		SystemPrompt: verdictSystemPrompt,
		UserPrompt:   verdictUserPrompt(claim, evidence),
		MaxTokens:    2000,
		Temperature:  0.2,
		ForceJSON:    true,
	})
	if err != nil {
		logging.Warn("verdict synthesis failed", "provider", provider.Name(), "error", err)
		return nil
	}
	var v modelVerdict
	if err := llmjson.Decode(resp.Content, &v); err != nil {
		logging.Warn("verdict decode failed", "provider", provider.Name(), "error", err)
		return nil
	}
	if strings.TrimSpace(v.Verdict) == "" {
		return nil
	}
	return &v
}

var debunkMarkers = []string{"debunk", "hoax", "palsu", "tidak benar", "fact check: false"}

// fallbackVerdict decides from source stance alone. It runs when no
// model is configured or the synthesis call failed after search
// succeeded.
func (c *Checker) fallbackVerdict(res *Result) {
	res.Flags = append(res.Flags, "keyword_fallback")
	if len(res.Sources) == 0 {
		res.Verdict = verdict.Unverified
		res.Confidence = 30
		res.Flags = append(res.Flags, "no_sources")
		return
	}

	for _, s := range res.Sources {
		if s.Credibility < 7 {
			continue
		}
		title := strings.ToLower(s.Title)
		for _, marker := range debunkMarkers {
			if strings.Contains(title, marker) {
				res.Verdict = verdict.Debunked
				res.Confidence = 55
				res.Explanation = fmt.Sprintf("A trusted source appears to have debunked this claim: %s", s.Title)
				return
			}
		}
	}

	var supporting, opposing int
	for _, s := range res.Sources {
		switch {
		case s.Relevance >= supportingRelevance:
			supporting++
		case s.Relevance <= opposingRelevance:
			opposing++
		}
	}
	total := float64(len(res.Sources))
	supFrac := float64(supporting) / total
	oppFrac := float64(opposing) / total

	switch {
	case oppFrac >= dominantFraction:
		res.Verdict = verdict.Misleading
		res.Confidence = clamp(40+20*oppFrac, 0, 100)
		res.Explanation = fmt.Sprintf("Most of the %d sources found contradict the claim.", len(res.Sources))
	case supFrac >= dominantFraction:
		res.Verdict = verdict.Verified
		res.Confidence = clamp(40+20*supFrac, 0, 100)
		res.Explanation = fmt.Sprintf("Most of the %d sources found are consistent with the claim.", len(res.Sources))
	default:
		res.Verdict = verdict.Unverified
		res.Confidence = 35
		res.Explanation = fmt.Sprintf("The %d sources found do not settle the claim either way.", len(res.Sources))
	}
}

type evidenceItem struct {
	title     string
	url       string
	published string
	excerpt   string
}

// buildEvidence assembles excerpts for the prompt, fetching page text
// for results the search response returned bare. A fetch failure just
// means thinner evidence.
func (c *Checker) buildEvidence(ctx context.Context, results []search.Result) []evidenceItem {
	var missing []string
	for _, r := range results {
		if strings.TrimSpace(r.Text) == "" && strings.TrimSpace(r.Summary) == "" {
			missing = append(missing, r.URL)
		}
	}
	fetched := map[string]string{}
	if len(missing) > 0 {
		docs, err := c.search.Contents(ctx, missing)
		if err != nil {
			logging.Warn("evidence content fetch failed", "urls", len(missing), "error", err)
		}
		for _, d := range docs {
			fetched[d.URL] = d.Text
		}
	}

	items := make([]evidenceItem, 0, len(results))
	for _, r := range results {
		excerpt := r.Summary
		if excerpt == "" {
			excerpt = r.Text
		}
		if excerpt == "" {
			excerpt = fetched[r.URL]
		}
		items = append(items, evidenceItem{
			title:     r.Title,
			url:       r.URL,
			published: r.PublishedDate,
			excerpt:   clampText(strings.TrimSpace(excerpt), 1200),
		})
	}
	return items
}

func verdictUserPrompt(claim string, evidence []evidenceItem) string {
	var b strings.Builder
	b.WriteString("Claim:\n")
	b.WriteString(clampText(claim, 4000))
	b.WriteString("\n\nEvidence:\n")
	if len(evidence) == 0 {
		b.WriteString("(no search results)\n")
	}
	for i, ev := range evidence {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, ev.title, ev.url)
		if ev.published != "" {
			fmt.Fprintf(&b, "   published: %s\n", ev.published)
		}
		if ev.excerpt != "" {
			fmt.Fprintf(&b, "   %s\n", ev.excerpt)
		}
	}
	return b.String()
}

// claimFrom prefers spoken words over page furniture: with a transcript
// the claim is the title plus what was actually said.
func claimFrom(content *extract.Content, transcript *transcribe.Result) string {
	if content == nil {
		return ""
	}
	if transcript != nil && strings.TrimSpace(transcript.Text) != "" {
		var parts []string
		if t := strings.TrimSpace(content.Title); t != "" {
			parts = append(parts, t)
		}
		parts = append(parts, strings.TrimSpace(transcript.Text))
		return strings.Join(parts, "\n\n")
	}
	return content.ClaimText()
}

func contentLanguage(content *extract.Content) string {
	if content == nil {
		return ""
	}
	return content.Language
}

func searchQuery(claim string) string {
	query := strings.Join(strings.Fields(claim), " ")
	return clampText(query, 300)
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// relevanceOf clamps the search score to [0, 1]; a missing score reads
// as neutral rather than opposing.
func relevanceOf(score float64) float64 {
	if score == 0 {
		return 0.5
	}
	return clamp(score, 0, 1)
}

func normalizeFlags(flags []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, f := range flags {
		f = strings.ToLower(strings.TrimSpace(f))
		f = strings.ReplaceAll(f, " ", "_")
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == 8 {
			break
		}
	}
	return out
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

func clampText(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
