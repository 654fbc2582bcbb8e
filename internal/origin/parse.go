package origin

import (
	"regexp"
	"strings"
)

const monthPat = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*`

var (
	datePat = `(?:\d{1,2} ` + monthPat + ` \d{4}|` + monthPat + ` \d{4}|\d{4}-\d{2}-\d{2}|\d{4})`

	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	datedLineRe    = regexp.MustCompile(`^[-*•\s]*(` + datePat + `)\s*[:\-–]\s+(.+)$`)
	firstSeenRe    = regexp.MustCompile(`[Ff]irst (?:seen|appeared|reported|circulated|surfaced|posted) (?:on|in|at) (.{2,60}?) (?:on|in) (` + datePat + `)`)
	bulletRe       = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
)

// ParseExplanation is the regex half of origin tracing. It pulls links,
// dated lines, and the "Origin Tracing" / "Why People Believe This"
// sections out of free-form explanation text. Same input, same output.
func ParseExplanation(text string) *Extraction {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	out := &Extraction{}
	originBody, beliefBody := splitSections(text)

	if originBody != "" {
		out.Tracing.HypothesizedOrigin = leadingParagraph(originBody)
		for _, line := range strings.Split(originBody, "\n") {
			m := datedLineRe.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			out.Tracing.EvolutionSteps = append(out.Tracing.EvolutionSteps, Step{
				Date:        m[1],
				Description: strings.TrimSpace(m[2]),
			})
			if len(out.Tracing.EvolutionSteps) == maxEvolution {
				break
			}
		}
		for _, m := range firstSeenRe.FindAllStringSubmatch(originBody, maxFirstSeen) {
			out.Tracing.FirstSeenDates = append(out.Tracing.FirstSeenDates, FirstSeen{
				Source: strings.TrimSpace(m[1]),
				Date:   m[2],
			})
		}
	}

	if beliefBody != "" {
		for _, line := range strings.Split(beliefBody, "\n") {
			m := bulletRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			out.BeliefDrivers = append(out.BeliefDrivers, splitDriver(m[1]))
			if len(out.BeliefDrivers) == maxDrivers {
				break
			}
		}
	}

	out.Tracing.Sources = collectSources(text)
	return out
}

// splitSections walks the explanation line by line and captures the
// bodies of the two headings the tracing cares about. Any other heading
// closes the current section.
func splitSections(text string) (origin, belief string) {
	var originLines, beliefLines []string
	section := ""
	for _, line := range strings.Split(text, "\n") {
		switch headingKind(line) {
		case "origin":
			section = "origin"
			continue
		case "belief":
			section = "belief"
			continue
		case "other":
			section = ""
			continue
		}
		switch section {
		case "origin":
			originLines = append(originLines, line)
		case "belief":
			beliefLines = append(beliefLines, line)
		}
	}
	return strings.TrimSpace(strings.Join(originLines, "\n")), strings.TrimSpace(strings.Join(beliefLines, "\n"))
}

var labelLineRe = regexp.MustCompile(`^[A-Z][A-Za-z ]{2,40}:$`)

func headingKind(line string) string {
	trimmed := strings.TrimSpace(line)
	stripped := strings.TrimLeft(trimmed, "#* ")
	stripped = strings.TrimRight(stripped, ":* ")
	lower := strings.ToLower(stripped)
	switch {
	case strings.HasPrefix(lower, "origin tracing"):
		return "origin"
	case strings.HasPrefix(lower, "why people believe"):
		return "belief"
	case strings.HasPrefix(trimmed, "#"), labelLineRe.MatchString(trimmed):
		return "other"
	}
	return ""
}

// leadingParagraph returns the first prose paragraph, stopping at a
// blank line, a bullet, or a dated line.
func leadingParagraph(body string) string {
	var para []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || bulletRe.MatchString(line) || datedLineRe.MatchString(trimmed) {
			break
		}
		para = append(para, trimmed)
	}
	joined := strings.Join(para, " ")
	if len(joined) > 500 {
		joined = joined[:500]
	}
	return joined
}

func splitDriver(text string) BeliefDriver {
	text = strings.TrimSpace(text)
	for _, sep := range []string{": ", " - ", " – "} {
		if name, desc, ok := strings.Cut(text, sep); ok && len(name) <= 80 {
			return BeliefDriver{Name: strings.TrimSpace(name), Description: strings.TrimSpace(desc)}
		}
	}
	if len(text) > 80 {
		return BeliefDriver{Name: text[:80], Description: text}
	}
	return BeliefDriver{Name: text}
}

// collectSources gathers every link in the text, titled markdown links
// first, then bare URLs not already captured.
func collectSources(text string) []Source {
	var sources []Source
	seen := map[string]bool{}
	add := func(title, url string) {
		url = strings.TrimRight(url, ".,;:!?")
		key := strings.ToLower(url)
		if url == "" || seen[key] || len(sources) >= maxSources {
			return
		}
		seen[key] = true
		sources = append(sources, Source{Title: title, URL: url})
	}
	for _, m := range markdownLinkRe.FindAllStringSubmatch(text, -1) {
		add(strings.TrimSpace(m[1]), m[2])
	}
	for _, u := range bareURLRe.FindAllString(text, -1) {
		add("", u)
	}
	return sources
}
