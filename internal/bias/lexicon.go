package bias

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// PartyLists groups party and figure names for one side of the aisle.
type PartyLists struct {
	Parties []string `yaml:"parties"`
	Figures []string `yaml:"figures"`
}

func (p PartyLists) all() []string {
	return append(append([]string{}, p.Parties...), p.Figures...)
}

// GenericLists holds the region-free left/right keyword fallback.
type GenericLists struct {
	Left  []string `yaml:"left"`
	Right []string `yaml:"right"`
}

// Lexicon is the keyword inventory behind region detection and the
// deterministic scoring fallbacks. The embedded default covers
// Malaysia; an operator can point CHECKMATE_LEXICON at a replacement.
type Lexicon struct {
	Region        string       `yaml:"region"`
	Context       []string     `yaml:"context"`
	Government    PartyLists   `yaml:"government"`
	Opposition    PartyLists   `yaml:"opposition"`
	Slang         []string     `yaml:"slang"`
	Sarcasm       []string     `yaml:"sarcasm"`
	Rhetorical    []string     `yaml:"rhetorical"`
	Criticism     []string     `yaml:"criticism"`
	ProGovernment []string     `yaml:"pro_government"`
	ProOpposition []string     `yaml:"pro_opposition"`
	Generic       GenericLists `yaml:"generic"`
}

// DefaultLexicon parses the embedded lexicon. The asset ships with the
// binary, so a parse failure is a build defect and panics.
func DefaultLexicon() *Lexicon {
	lex, err := parseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("bias: embedded lexicon: %v", err))
	}
	return lex
}

// LoadLexicon reads a lexicon from path, or the embedded default when
// path is empty.
func LoadLexicon(path string) (*Lexicon, error) {
	if path == "" {
		return DefaultLexicon(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return parseLexicon(raw)
}

func parseLexicon(raw []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if lex.Region == "" {
		return nil, fmt.Errorf("parse lexicon: missing region")
	}
	return &lex, nil
}

// signals is one pass of the lexicon over a piece of text.
type signals struct {
	context    []string
	government []string
	opposition []string
	slang      []string
	sarcasm    []string
	rhetorical []string
	criticism  []string
	proGov     []string
	proOpp     []string
	left       []string
	right      []string
}

func (lex *Lexicon) scan(text string) signals {
	norm := normalize(text)
	return signals{
		context:    matchTerms(norm, lex.Context),
		government: matchTerms(norm, lex.Government.all()),
		opposition: matchTerms(norm, lex.Opposition.all()),
		slang:      matchTerms(norm, lex.Slang),
		sarcasm:    matchTerms(norm, lex.Sarcasm),
		rhetorical: matchTerms(norm, lex.Rhetorical),
		criticism:  matchTerms(norm, lex.Criticism),
		proGov:     matchTerms(norm, lex.ProGovernment),
		proOpp:     matchTerms(norm, lex.ProOpposition),
		left:       matchTerms(norm, lex.Generic.Left),
		right:      matchTerms(norm, lex.Generic.Right),
	}
}

// regionDetected applies the two entry rules: a context term plus any
// political indicator, or a weighted political-indicator total of
// three. Party, figure, slang, and sarcasm hits weigh double; context
// terms only satisfy the first rule.
func (s signals) regionDetected() bool {
	political := len(s.government) + len(s.opposition) + len(s.slang) + len(s.sarcasm) + len(s.proGov) + len(s.proOpp)
	if len(s.context) > 0 && political > 0 {
		return true
	}
	weighted := 2*(len(s.government)+len(s.opposition)) +
		2*(len(s.slang)+len(s.sarcasm)) +
		len(s.proGov) + len(s.proOpp)
	return weighted >= 3
}

// indicators flattens the matched political terms for reporting.
func (s signals) indicators() []string {
	var out []string
	seen := map[string]bool{}
	for _, group := range [][]string{s.context, s.government, s.opposition, s.slang, s.sarcasm, s.proGov, s.proOpp} {
		for _, term := range group {
			if seen[term] {
				continue
			}
			seen[term] = true
			out = append(out, term)
			if len(out) == 10 {
				return out
			}
		}
	}
	return out
}

// normalize lowers the text and strips punctuation so multi-word terms
// can be matched with simple padded containment.
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return ' '
	}, text)
	fields := strings.Fields(mapped)
	if len(fields) == 0 {
		return "  "
	}
	return " " + strings.Join(fields, " ") + " "
}

func matchTerms(norm string, terms []string) []string {
	var matched []string
	for _, term := range terms {
		padded := normalize(term)
		if padded == "  " {
			continue
		}
		if strings.Contains(norm, padded) {
			matched = append(matched, term)
		}
	}
	return matched
}
