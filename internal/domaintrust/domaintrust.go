// Package domaintrust scores source domains 1-10 for use when weighing
// fact-check evidence. Scores come from a static list of known outlets,
// suffix rules for institutional domains, or an AI oracle, in that
// order; the neutral midpoint 5 covers everything else.
package domaintrust

import (
	"context"
	"strings"
	"sync"

	"github.com/toorcn/checkmate/internal/brain"
	"github.com/toorcn/checkmate/internal/llmjson"
	"github.com/toorcn/checkmate/internal/logging"
)

// Neutral is the score for domains nothing is known about.
const Neutral = 5

// staticScores covers outlets whose reliability is settled enough that
// asking the oracle would be wasted tokens. Malaysian outlets are listed
// because most verifications concern Malaysian content.
var staticScores = map[string]int{
	"sebenarnya.my":         9,
	"bernama.com":           8,
	"thestar.com.my":        7,
	"nst.com.my":            7,
	"bharian.com.my":        7,
	"malaysiakini.com":      7,
	"freemalaysiatoday.com": 6,
	"theedgemalaysia.com":   7,
	"who.int":               9,
	"reuters.com":           9,
	"apnews.com":            9,
	"afp.com":               8,
	"bbc.com":               8,
	"cdc.gov":               9,
	"nih.gov":               9,
	"nature.com":            9,
	"sciencedirect.com":     8,
	"snopes.com":            8,
	"factcheck.org":         8,
}

// institutionalSuffixes score government, academic, and military domains
// without consulting the oracle.
var institutionalSuffixes = []string{".gov", ".gov.my", ".edu", ".edu.my", ".mil", ".who.int"}

// Scorer caches domain scores for the life of the process.
type Scorer struct {
	provider brain.Provider // nil disables the oracle

	mu    sync.RWMutex
	cache map[string]int
}

// New creates a scorer. The provider may be nil, in which case unknown
// domains score Neutral.
func New(provider brain.Provider) *Scorer {
	return &Scorer{
		provider: provider,
		cache:    make(map[string]int),
	}
}

// Score rates a domain 1-10. It never fails; unknown domains fall back
// to Neutral when the oracle is unavailable or unparseable.
func (s *Scorer) Score(ctx context.Context, domain string) int {
	domain = normalizeDomain(domain)
	if domain == "" {
		return Neutral
	}

	s.mu.RLock()
	score, ok := s.cache[domain]
	s.mu.RUnlock()
	if ok {
		return score
	}

	score, ok = lookupStatic(domain)
	if !ok {
		score, ok = s.askOracle(ctx, domain)
	}
	if !ok {
		// Not cached: a temporarily unreachable oracle should not pin a
		// domain at neutral forever.
		return Neutral
	}

	s.mu.Lock()
	s.cache[domain] = score
	s.mu.Unlock()
	return score
}

// Len returns the number of cached scores.
func (s *Scorer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func lookupStatic(domain string) (int, bool) {
	if score, ok := staticScores[domain]; ok {
		return score, true
	}
	for _, suffix := range institutionalSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return 8, true
		}
	}
	return 0, false
}

func (s *Scorer) askOracle(ctx context.Context, domain string) (int, bool) {
	if s.provider == nil || !s.provider.Available() {
		return 0, false
	}

	resp, err := s.provider.Generate(ctx, brain.Request{
		SystemPrompt: `You rate how reliable a website domain is as a source of factual news.
Respond with a JSON object: {"score": <integer 1-10>} where 10 is a top-tier
wire service and 1 is a known fabricator. Nothing else.`,
		UserPrompt: "Rate the domain: " + domain,
		MaxTokens:  64,
		ForceJSON:  true,
	})
	if err != nil {
		logging.Debug("domain trust oracle failed", "domain", domain, "error", err)
		return 0, false
	}

	var parsed struct {
		Score int `json:"score"`
	}
	if err := llmjson.Decode(resp.Content, &parsed); err != nil {
		logging.Debug("domain trust oracle unparseable", "domain", domain, "content", resp.Content)
		return 0, false
	}

	if parsed.Score < 1 {
		parsed.Score = 1
	}
	if parsed.Score > 10 {
		parsed.Score = 10
	}
	return parsed.Score, true
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "www.")
	return strings.TrimSuffix(domain, ".")
}
