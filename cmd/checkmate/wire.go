package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/toorcn/checkmate/internal/bias"
	"github.com/toorcn/checkmate/internal/brain"
	"github.com/toorcn/checkmate/internal/config"
	"github.com/toorcn/checkmate/internal/domaintrust"
	"github.com/toorcn/checkmate/internal/events"
	"github.com/toorcn/checkmate/internal/extract"
	"github.com/toorcn/checkmate/internal/factcheck"
	"github.com/toorcn/checkmate/internal/logging"
	"github.com/toorcn/checkmate/internal/otel"
	"github.com/toorcn/checkmate/internal/pipeline"
	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/ratelimit"
	"github.com/toorcn/checkmate/internal/reputation"
	"github.com/toorcn/checkmate/internal/resilience"
	"github.com/toorcn/checkmate/internal/search"
	"github.com/toorcn/checkmate/internal/sentiment"
	"github.com/toorcn/checkmate/internal/transcribe"
)

// app holds everything a subcommand needs, plus the teardown order.
type app struct {
	cfg        *config.Config
	pipeline   *pipeline.Pipeline
	limiter    *ratelimit.Limiter
	reputation *reputation.Store
	events     *events.Publisher
	obs        *otel.Logger
	pool       *pgxpool.Pool
	sharedRate *ratelimit.PostgresStore
}

// buildApp is the single wiring root: every breaker, guard, client, and
// store is constructed here and injected, never reached through globals.
func buildApp(ctx context.Context, cfg *config.Config, withObs bool) (*app, error) {
	a := &app{cfg: cfg, obs: otel.NewNullLogger()}
	if withObs {
		if logger, err := openObsLogger(); err == nil {
			a.obs = logger
		} else {
			logging.Warn("observability log unavailable", "error", err)
		}
	}

	providers := brain.NewProviderManager()
	providers.AddProvider(brain.NewClaudeProvider(cfg.Providers.AnthropicKey, cfg.Providers.AnthropicModel))
	providers.AddProvider(brain.NewOpenAIProvider(cfg.Providers.OpenAIKey, cfg.Providers.OpenAIModel))
	providers.SetPreferred(cfg.Providers.Preferred)

	lexicon := bias.DefaultLexicon()
	if cfg.Bias.LexiconPath != "" {
		loaded, err := bias.LoadLexicon(cfg.Bias.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		lexicon = loaded
	}

	checker := factcheck.New(
		providers,
		search.NewClient(cfg.Search.APIKey, cfg.Search.BaseURL, cfg.Search.Results),
		sentiment.NewClient(cfg.Sentiment.APIKey, cfg.Sentiment.BaseURL),
		domaintrust.New(providers.GetAvailable()),
		bias.New(providers.GetAvailable(), lexicon),
	)

	transcriber := transcribe.New(cfg.Transcribe.APIKey, cfg.Transcribe.MaxMediaBytes)

	if cfg.RateLimit.DatabaseURL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.RateLimit.DatabaseURL)
		if err != nil {
			// Shared counters are an optimization; run on the local store.
			logging.Warn("rate-limit store unreachable, using in-memory counters", "error", err)
		} else {
			a.pool = pool
		}
	}
	var shared ratelimit.Store
	if a.pool != nil {
		store, err := ratelimit.NewPostgresStore(ctx, a.pool)
		if err != nil {
			logging.Warn("rate-limit store migration failed, using in-memory counters", "error", err)
		} else {
			a.sharedRate = store
			shared = store
		}
	}
	a.limiter = ratelimit.New(ratelimit.Config{
		Window:           cfg.RateLimit.Window,
		AuthenticatedMax: cfg.RateLimit.AuthenticatedMax,
		Operations: map[ratelimit.Operation]ratelimit.Limit{
			ratelimit.OpTranscribe: {Window: cfg.RateLimit.Window, Max: cfg.RateLimit.TranscribeMax},
			ratelimit.OpFactCheck:  {Window: cfg.RateLimit.Window, Max: cfg.RateLimit.FactCheckMax},
		},
	}, shared)

	if cfg.Reputation.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Reputation.DBPath), 0o755); err == nil {
			store, err := reputation.Open(cfg.Reputation.DBPath)
			if err != nil {
				logging.Warn("reputation store unavailable", "error", err)
			} else {
				a.reputation = store
			}
		}
	}

	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			logging.Warn("events disabled, NATS unreachable", "error", err)
		} else {
			a.events = pub
		}
	}

	retry := resilience.Policy{
		MaxAttempts:  cfg.Pipeline.RetryAttempts,
		InitialDelay: cfg.Pipeline.RetryDelay,
	}

	opts := pipeline.Options{
		TranscribeGuard: resilience.Guard{
			Op:      "transcribe",
			Timeout: cfg.Pipeline.TranscribeTimeout,
			Breaker: a.newBreaker("transcription", resilience.BreakerConfig{
				FailureThreshold: cfg.Pipeline.TranscribeFailures,
				Cooldown:         cfg.Pipeline.TranscribeCooldown,
			}),
			Retry: retry,
		},
		FactCheckGuard: resilience.Guard{
			Op:      "factcheck",
			Timeout: cfg.Pipeline.FactCheckTimeout,
			Breaker: a.newBreaker("fact-check", resilience.BreakerConfig{
				FailureThreshold: cfg.Pipeline.FactCheckFailures,
				SuccessThreshold: cfg.Pipeline.FactCheckSuccesses,
				Cooldown:         cfg.Pipeline.FactCheckCooldown,
			}),
			Retry: retry,
		},
		Limiter: a.limiter,
		Events:  a.events,
		Obs:     a.obs,
	}
	if a.reputation != nil {
		opts.Reputation = a.reputation
	}
	p := pipeline.New(opts)

	extractGuard := func(service string) resilience.Guard {
		return resilience.Guard{
			Op:      "extract",
			Timeout: cfg.Pipeline.ExtractTimeout,
			Breaker: a.newBreaker(service, resilience.BreakerConfig{
				FailureThreshold: cfg.Pipeline.ExtractFailures,
				Cooldown:         cfg.Pipeline.ExtractCooldown,
			}),
			Retry: retry,
		}
	}

	p.Register(platform.TikTok, pipeline.Capabilities{
		Extract:      extract.NewTikTokExtractor(cfg.Scrape.APIKey, cfg.Scrape.BaseURL),
		ExtractGuard: extractGuard("tiktok-scrape"),
		Transcribe:   transcriber,
		FactCheck:    checker,
	})
	p.Register(platform.Twitter, pipeline.Capabilities{
		Extract:      extract.NewTwitterExtractor(cfg.Twitter.BearerToken),
		ExtractGuard: extractGuard("twitter-api"),
		FactCheck:    checker,
	})
	p.Register(platform.Web, pipeline.Capabilities{
		Extract:      extract.NewArticleExtractor(),
		ExtractGuard: extractGuard("article-fetch"),
		FactCheck:    checker,
	})

	a.pipeline = p
	return a, nil
}

// newBreaker creates a breaker whose state transitions are observable.
func (a *app) newBreaker(service string, cfg resilience.BreakerConfig) *resilience.Breaker {
	b := resilience.NewBreaker(service, cfg)
	obs := a.obs
	b.OnStateChange(func(name string, from, to resilience.State) {
		logging.Warn("breaker state change", "service", name, "from", from.String(), "to", to.String())
		obs.BreakerState(name, from.String(), to.String())
	})
	return b
}

func (a *app) Close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.reputation != nil {
		a.reputation.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	a.obs.Close()
}

// openObsLogger opens the JSONL event log under ~/.checkmate/logs.
func openObsLogger() (*otel.Logger, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".checkmate", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return otel.NewLogger(f), nil
}
