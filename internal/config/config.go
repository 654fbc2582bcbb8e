// Package config assembles runtime configuration from the environment.
// Every field has a sensible default so `checkmate verify` works with
// nothing but the vendor API keys set.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration shared by the CLI and the server.
type Config struct {
	Server     ServerConfig
	Pipeline   PipelineConfig
	Providers  ProvidersConfig
	Search     SearchConfig
	Scrape     ScrapeConfig
	Twitter    TwitterConfig
	Sentiment  SentimentConfig
	Transcribe TranscribeConfig
	Bias       BiasConfig
	RateLimit  RateLimitConfig
	Reputation ReputationConfig
	Events     EventsConfig
}

type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	PremiumKeys     []string
}

type PipelineConfig struct {
	ExtractTimeout    time.Duration
	TranscribeTimeout time.Duration
	FactCheckTimeout  time.Duration

	ExtractFailures    int
	TranscribeFailures int
	FactCheckFailures  int
	FactCheckSuccesses int

	ExtractCooldown    time.Duration
	TranscribeCooldown time.Duration
	FactCheckCooldown  time.Duration

	RetryAttempts int
	RetryDelay    time.Duration
}

type ProvidersConfig struct {
	AnthropicKey   string
	AnthropicModel string
	OpenAIKey      string
	OpenAIModel    string
	Preferred      string
}

type SearchConfig struct {
	APIKey  string
	BaseURL string
	Results int
}

type ScrapeConfig struct {
	BaseURL string
	APIKey  string
}

type TwitterConfig struct {
	BearerToken string
}

type SentimentConfig struct {
	BaseURL string
	APIKey  string
}

type TranscribeConfig struct {
	APIKey        string // defaults to the OpenAI provider key
	MaxMediaBytes int64
}

type BiasConfig struct {
	LexiconPath string // optional override for the embedded lexicon
}

type RateLimitConfig struct {
	DatabaseURL      string
	Window           time.Duration
	AuthenticatedMax int
	TranscribeMax    int
	FactCheckMax     int
}

type ReputationConfig struct {
	DBPath string
}

type EventsConfig struct {
	NATSURL string
	Subject string
}

// Load reads configuration from the environment with defaults applied.
func Load() *Config {
	openAIKey := getEnv("OPENAI_API_KEY", "")

	return &Config{
		Server: ServerConfig{
			Addr:            getEnv("CHECKMATE_ADDR", ":8080"),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}, ","),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			PremiumKeys:     getEnvAsSlice("PREMIUM_API_KEYS", nil, ","),
		},
		Pipeline: PipelineConfig{
			ExtractTimeout:    getEnvAsDuration("EXTRACT_TIMEOUT", 30*time.Second),
			TranscribeTimeout: getEnvAsDuration("TRANSCRIBE_TIMEOUT", 60*time.Second),
			FactCheckTimeout:  getEnvAsDuration("FACTCHECK_TIMEOUT", 180*time.Second),

			ExtractFailures:    getEnvAsInt("EXTRACT_BREAKER_FAILURES", 3),
			TranscribeFailures: getEnvAsInt("TRANSCRIBE_BREAKER_FAILURES", 3),
			FactCheckFailures:  getEnvAsInt("FACTCHECK_BREAKER_FAILURES", 3),
			FactCheckSuccesses: getEnvAsInt("FACTCHECK_BREAKER_SUCCESSES", 2),

			ExtractCooldown:    getEnvAsDuration("EXTRACT_BREAKER_COOLDOWN", 30*time.Second),
			TranscribeCooldown: getEnvAsDuration("TRANSCRIBE_BREAKER_COOLDOWN", 60*time.Second),
			FactCheckCooldown:  getEnvAsDuration("FACTCHECK_BREAKER_COOLDOWN", 180*time.Second),

			RetryAttempts: getEnvAsInt("PIPELINE_RETRY_ATTEMPTS", 3),
			RetryDelay:    getEnvAsDuration("PIPELINE_RETRY_DELAY", time.Second),
		},
		Providers: ProvidersConfig{
			AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel: getEnv("ANTHROPIC_MODEL", ""),
			OpenAIKey:      openAIKey,
			OpenAIModel:    getEnv("OPENAI_MODEL", ""),
			Preferred:      getEnv("CHECKMATE_PROVIDER", "claude"),
		},
		Search: SearchConfig{
			APIKey:  getEnv("SEARCH_API_KEY", ""),
			BaseURL: getEnv("SEARCH_API_URL", "https://api.exa.ai"),
			Results: getEnvAsInt("SEARCH_RESULTS", 8),
		},
		Scrape: ScrapeConfig{
			BaseURL: getEnv("SCRAPE_API_URL", ""),
			APIKey:  getEnv("SCRAPE_API_KEY", ""),
		},
		Twitter: TwitterConfig{
			BearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),
		},
		Sentiment: SentimentConfig{
			BaseURL: getEnv("SENTIMENT_API_URL", ""),
			APIKey:  getEnv("SENTIMENT_API_KEY", ""),
		},
		Transcribe: TranscribeConfig{
			APIKey:        getEnv("TRANSCRIBE_API_KEY", openAIKey),
			MaxMediaBytes: int64(getEnvAsInt("TRANSCRIBE_MAX_MEDIA_MB", 25)) << 20,
		},
		Bias: BiasConfig{
			LexiconPath: getEnv("CHECKMATE_LEXICON", ""),
		},
		RateLimit: RateLimitConfig{
			DatabaseURL:      getEnv("DATABASE_URL", ""),
			Window:           getEnvAsDuration("RATELIMIT_WINDOW", time.Minute),
			AuthenticatedMax: getEnvAsInt("RATELIMIT_AUTHENTICATED_MAX", 60),
			TranscribeMax:    getEnvAsInt("RATELIMIT_TRANSCRIBE_MAX", 120),
			FactCheckMax:     getEnvAsInt("RATELIMIT_FACTCHECK_MAX", 60),
		},
		Reputation: ReputationConfig{
			DBPath: getEnv("CHECKMATE_DB", defaultDBPath()),
		},
		Events: EventsConfig{
			NATSURL: getEnv("NATS_URL", ""),
			Subject: getEnv("EVENTS_SUBJECT", "checkmate.verifications"),
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "checkmate.db"
	}
	return filepath.Join(home, ".checkmate", "checkmate.db")
}

// getEnv reads an environment variable with a fallback default.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

// getEnvAsInt reads an environment variable as an integer.
func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

// getEnvAsDuration reads an environment variable as a duration string
// (e.g. "30s", "2m").
func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultVal
}

// getEnvAsSlice reads an environment variable as a separated list,
// trimming whitespace around each element.
func getEnvAsSlice(name string, defaultVal []string, sep string) []string {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	parts := strings.Split(valueStr, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
