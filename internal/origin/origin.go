// Package origin reconstructs where a claim started and why people
// believe it. Two independent extractions run over the fact-check
// explanation, one regex and one AI, and are merged deterministically.
package origin

import (
	"context"
	"strings"

	"github.com/toorcn/checkmate/internal/brain"
)

// Category caps keep adversarial or rambling explanations bounded.
const (
	maxFirstSeen = 15
	maxEvolution = 10
	maxDrivers   = 10
	maxSources   = 15
)

// FirstSeen records an early sighting of the claim.
type FirstSeen struct {
	Source string `json:"source"`
	Date   string `json:"date,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Step is one hop in how the claim mutated as it spread.
type Step struct {
	Date        string `json:"date,omitempty"`
	Description string `json:"description"`
}

// Source is a reference cited by the explanation.
type Source struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// BeliefDriver names a reason the claim is persuasive.
type BeliefDriver struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Tracing is the merged origin picture attached to a fact-check result.
type Tracing struct {
	HypothesizedOrigin string      `json:"hypothesizedOrigin,omitempty"`
	FirstSeenDates     []FirstSeen `json:"firstSeenDates,omitempty"`
	EvolutionSteps     []Step      `json:"evolutionSteps,omitempty"`
	Sources            []Source    `json:"sources,omitempty"`
}

// Extraction is one extractor's view plus the belief drivers, which sit
// beside the tracing on the result rather than inside it.
type Extraction struct {
	Tracing       Tracing
	BeliefDrivers []BeliefDriver
}

// Empty reports whether the extraction carries no findings at all.
func (e *Extraction) Empty() bool {
	if e == nil {
		return true
	}
	return e.Tracing.HypothesizedOrigin == "" &&
		len(e.Tracing.FirstSeenDates) == 0 &&
		len(e.Tracing.EvolutionSteps) == 0 &&
		len(e.Tracing.Sources) == 0 &&
		len(e.BeliefDrivers) == 0
}

// Trace runs both extractions over the explanation and merges them. It
// never fails: without a provider (or on any AI failure) the regex
// extraction stands alone.
func Trace(ctx context.Context, provider brain.Provider, explanation string) *Extraction {
	if strings.TrimSpace(explanation) == "" {
		return nil
	}
	rx := ParseExplanation(explanation)
	ai := ExtractWithAI(ctx, provider, explanation)
	return Merge(ai, rx)
}

// Merge combines the AI and regex extractions. Entries are de-duplicated
// by lower-cased (source, date, url); AI entries win collisions and sort
// first, so the output is order-stable and Merge(x, y) == Merge(x, y)
// on identical inputs.
func Merge(ai, rx *Extraction) *Extraction {
	if ai == nil && rx == nil {
		return nil
	}
	if ai == nil {
		ai = &Extraction{}
	}
	if rx == nil {
		rx = &Extraction{}
	}

	out := &Extraction{}

	out.Tracing.HypothesizedOrigin = ai.Tracing.HypothesizedOrigin
	if out.Tracing.HypothesizedOrigin == "" {
		out.Tracing.HypothesizedOrigin = rx.Tracing.HypothesizedOrigin
	}

	seen := map[string]bool{}
	for _, fs := range append(append([]FirstSeen{}, ai.Tracing.FirstSeenDates...), rx.Tracing.FirstSeenDates...) {
		key := dedupKey(fs.Source, fs.Date, fs.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.Tracing.FirstSeenDates = append(out.Tracing.FirstSeenDates, fs)
		if len(out.Tracing.FirstSeenDates) == maxFirstSeen {
			break
		}
	}

	seen = map[string]bool{}
	for _, st := range append(append([]Step{}, ai.Tracing.EvolutionSteps...), rx.Tracing.EvolutionSteps...) {
		key := dedupKey(st.Description, st.Date, "")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.Tracing.EvolutionSteps = append(out.Tracing.EvolutionSteps, st)
		if len(out.Tracing.EvolutionSteps) == maxEvolution {
			break
		}
	}

	seen = map[string]bool{}
	for _, src := range append(append([]Source{}, ai.Tracing.Sources...), rx.Tracing.Sources...) {
		key := dedupKey(src.Title, "", src.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.Tracing.Sources = append(out.Tracing.Sources, src)
		if len(out.Tracing.Sources) == maxSources {
			break
		}
	}

	seen = map[string]bool{}
	for _, bd := range append(append([]BeliefDriver{}, ai.BeliefDrivers...), rx.BeliefDrivers...) {
		key := strings.ToLower(strings.TrimSpace(bd.Name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.BeliefDrivers = append(out.BeliefDrivers, bd)
		if len(out.BeliefDrivers) == maxDrivers {
			break
		}
	}

	return out
}

func dedupKey(source, date, url string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	url = strings.ToLower(strings.TrimSpace(url))
	date = strings.TrimSpace(date)
	if source == "" && date == "" && url == "" {
		return ""
	}
	return source + "|" + date + "|" + url
}
