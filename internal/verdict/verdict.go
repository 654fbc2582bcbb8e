// Package verdict defines the closed set of fact-check outcomes shared
// by the checker and the credibility scorer.
package verdict

import "strings"

const (
	Verified      = "verified"
	PartiallyTrue = "partially_true"
	Misleading    = "misleading"
	False         = "false"
	Exaggerated   = "exaggerated"
	Outdated      = "outdated"
	Opinion       = "opinion"
	Satire        = "satire"
	Rumor         = "rumor"
	Conspiracy    = "conspiracy"
	Debunked      = "debunked"
	Unverified    = "unverified"
)

// All lists every verdict, roughly from most to least credible. Prompts
// quote this list so the model stays inside the set.
var All = []string{
	Verified,
	PartiallyTrue,
	Satire,
	Opinion,
	Outdated,
	Exaggerated,
	Rumor,
	Misleading,
	Conspiracy,
	Unverified,
	False,
	Debunked,
}

var known = func() map[string]bool {
	m := make(map[string]bool, len(All))
	for _, v := range All {
		m[v] = true
	}
	return m
}()

// Known reports whether s is already a member of the closed set.
func Known(s string) bool { return known[s] }

// Normalize folds free-form labels onto the closed set. Model output
// drifts, so common synonyms map to their nearest verdict and anything
// unrecognized becomes Unverified.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	switch s {
	case "unverifiable", "unproven", "unknown", "inconclusive":
		return Unverified
	case "true", "mostly_true", "accurate", "correct":
		return Verified
	case "partly_true", "half_true", "partially_correct", "mixed":
		return PartiallyTrue
	case "fake", "untrue", "fabricated":
		return False
	case "hoax":
		return Debunked
	case "sarcasm", "parody":
		return Satire
	}
	if known[s] {
		return s
	}
	return Unverified
}
