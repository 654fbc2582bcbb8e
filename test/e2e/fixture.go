// Package e2e runs whole-pipeline scenarios against fake vendor
// servers: an article origin, an Exa-shaped search API, and an
// Anthropic-shaped generation endpoint.
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/toorcn/checkmate/internal/bias"
	"github.com/toorcn/checkmate/internal/brain"
	"github.com/toorcn/checkmate/internal/domaintrust"
	"github.com/toorcn/checkmate/internal/extract"
	"github.com/toorcn/checkmate/internal/factcheck"
	"github.com/toorcn/checkmate/internal/pipeline"
	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/search"
	"github.com/toorcn/checkmate/internal/sentiment"
)

const articleHTML = `<!doctype html>
<html lang="en">
<head>
  <title>Vaccines do not cause autism, studies confirm</title>
  <meta property="og:title" content="Vaccines do not cause autism, studies confirm">
  <meta property="og:description" content="Decades of research across millions of children show no causal link.">
  <meta property="og:site_name" content="Example Health News">
  <meta name="author" content="Health Desk">
</head>
<body>
  <article>
    <p>Multiple cohort studies spanning more than a decade and millions of children have found no link between childhood vaccination and autism diagnoses.</p>
    <p>Public-health agencies in several countries reviewed the evidence independently and reached the same conclusion.</p>
  </article>
</body>
</html>`

// fixture wires a real pipeline against local fake vendors. Close all
// servers through t.Cleanup.
type fixture struct {
	article  *httptest.Server
	claude   *httptest.Server
	pipeline *pipeline.Pipeline
}

// newSearchServer serves supporting evidence for the vaccine claim in
// the search API's wire shape.
func newSearchServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		io.Copy(io.Discard, r.Body)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{
						"url":     "https://www.who.int/vaccine-safety",
						"title":   "Vaccine safety: no link to autism",
						"score":   0.92,
						"summary": "WHO review of global evidence finds no causal relationship.",
					},
					{
						"url":     "https://www.cdc.gov/vaccinesafety/autism",
						"title":   "Autism and Vaccines",
						"score":   0.88,
						"text":    "Studies continue to show that vaccines are not associated with autism.",
					},
					{
						"url":     "https://news.example.com/vaccine-studies",
						"title":   "Large study again finds no vaccine-autism link",
						"score":   0.81,
						"summary": "A nationwide cohort study found no increased risk.",
					},
				},
			})
		case "/contents":
			json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
}

// newClaudeServer answers every prompt in the Anthropic messages wire
// shape. Fact-check prompts get a verified verdict; everything else
// (bias, origin, domain scoring) gets an empty object, which the
// defensive parsers treat as "no answer".
func newClaudeServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		text := "{}"
		if strings.Contains(string(body), "fact checker") {
			text = `{"verdict": "verified", "confidence": 85, "explanation": "Multiple large, independent cohort studies found no causal link between vaccines and autism.", "flags": []}`
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":       "fake",
			"stop_reason": "end_turn",
			"content": []map[string]string{
				{"type": "text", "text": text},
			},
		})
	}))
}

// newFixture assembles the pipeline. searchDown simulates a total
// search-vendor outage by pointing the client at a closed server.
func newFixture(t *testing.T, searchDown bool) *fixture {
	t.Helper()

	article := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, articleHTML)
	}))
	t.Cleanup(article.Close)

	searchSrv := newSearchServer(t)
	if searchDown {
		searchSrv.Close()
	} else {
		t.Cleanup(searchSrv.Close)
	}

	claude := newClaudeServer(t)
	t.Cleanup(claude.Close)

	provider := brain.NewClaudeProvider("test-key", "fake-model")
	provider.SetEndpoint(claude.URL)
	providers := brain.NewProviderManager()
	providers.AddProvider(provider)

	checker := factcheck.New(
		providers,
		search.NewClient("test-key", searchSrv.URL, 5),
		sentiment.NewClient("", ""), // unconfigured: sentiment degrades away
		domaintrust.New(nil),        // static allow-list only
		bias.New(nil, bias.DefaultLexicon()),
	)

	p := pipeline.New(pipeline.Options{})
	p.Register(platform.Web, pipeline.Capabilities{
		Extract:   extract.NewArticleExtractor(),
		FactCheck: checker,
	})

	return &fixture{article: article, claude: claude, pipeline: p}
}
