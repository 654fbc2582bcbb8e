package origin

import (
	"context"
	"strings"

	"github.com/toorcn/checkmate/internal/brain"
	"github.com/toorcn/checkmate/internal/llmjson"
)

const aiSystemPrompt = `You reconstruct the origin of claims from fact-check explanations.
Reply with a single JSON object, no prose, using exactly these keys:
{
  "hypothesizedOrigin": "one or two sentences, or empty string",
  "firstSeenDates": [{"source": "", "date": "", "url": ""}],
  "evolutionSteps": [{"date": "", "description": ""}],
  "beliefDrivers": [{"name": "", "description": ""}],
  "sources": [{"title": "", "url": ""}]
}
Only include entries the explanation supports. Leave arrays empty when unsure.`

type aiPayload struct {
	HypothesizedOrigin string         `json:"hypothesizedOrigin"`
	FirstSeenDates     []FirstSeen    `json:"firstSeenDates"`
	EvolutionSteps     []Step         `json:"evolutionSteps"`
	BeliefDrivers      []BeliefDriver `json:"beliefDrivers"`
	Sources            []Source       `json:"sources"`
}

// ExtractWithAI asks the model for a structured reading of the
// explanation. A nil provider or any failure yields nil, which Merge
// treats as an empty extraction.
func ExtractWithAI(ctx context.Context, provider brain.Provider, explanation string) *Extraction {
	if provider == nil || !provider.Available() {
		return nil
	}
	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		return nil
	}
	if len(explanation) > 8000 {
		explanation = explanation[:8000]
	}

	resp, err := provider.Generate(ctx, brain.Request{
		SystemPrompt: aiSystemPrompt,
		UserPrompt:   "Explanation:\n\n" + explanation,
		MaxTokens:    1500,
		Temperature:  0.1,
		ForceJSON:    true,
	})
	if err != nil {
		return nil
	}

	var payload aiPayload
	if err := llmjson.Decode(resp.Content, &payload); err != nil {
		return nil
	}

	out := &Extraction{
		Tracing: Tracing{
			HypothesizedOrigin: strings.TrimSpace(payload.HypothesizedOrigin),
			FirstSeenDates:     capFirstSeen(payload.FirstSeenDates),
			EvolutionSteps:     capSteps(payload.EvolutionSteps),
			Sources:            capSources(payload.Sources),
		},
		BeliefDrivers: capDrivers(payload.BeliefDrivers),
	}
	return out
}

func capFirstSeen(in []FirstSeen) []FirstSeen {
	if len(in) > maxFirstSeen {
		in = in[:maxFirstSeen]
	}
	return in
}

func capSteps(in []Step) []Step {
	if len(in) > maxEvolution {
		in = in[:maxEvolution]
	}
	return in
}

func capSources(in []Source) []Source {
	if len(in) > maxSources {
		in = in[:maxSources]
	}
	return in
}

func capDrivers(in []BeliefDriver) []BeliefDriver {
	if len(in) > maxDrivers {
		in = in[:maxDrivers]
	}
	return in
}
