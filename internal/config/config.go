// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Host   string `env:"HOST" envDefault:"0.0.0.0"`
	Port   int    `env:"PORT" envDefault:"8080"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Supabase is Postgres under the hood; DBURL takes precedence when set.
	DBURL                  string `env:"DB_URL"`
	SupabaseURL            string `env:"SUPABASE_URL"`
	SupabaseKey            string `env:"SUPABASE_KEY"`
	SupabaseServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// LLM provider settings (OpenAI-compatible chat completions).
	LLMProvider     string        `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel        string        `env:"LLM_MODEL" envDefault:"gpt-4-turbo-preview"`
	LLMTemperature  float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMMaxTokens    int           `env:"LLM_MAX_TOKENS" envDefault:"4096"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"45s"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	EmbeddingsModel string        `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`

	// Platform credentials.
	RedditClientID     string `env:"REDDIT_CLIENT_ID"`
	RedditClientSecret string `env:"REDDIT_CLIENT_SECRET"`
	RedditUserAgent    string `env:"REDDIT_USER_AGENT" envDefault:"reachby3cs/1.0"`
	RedditUsername     string `env:"REDDIT_USERNAME"`
	RedditPassword     string `env:"REDDIT_PASSWORD"`
	TwitterBearerToken string `env:"TWITTER_BEARER_TOKEN"`
	SerpAPIKey         string `env:"SERPAPI_API_KEY"`

	// Crawl scheduling.
	CrawlConfigFile  string `env:"CRAWL_CONFIG_FILE"`
	DefaultOrgID     string `env:"DEFAULT_ORG_ID" envDefault:"aaaa1111-1111-1111-1111-111111111111"`
	SchedulerEnabled bool   `env:"SCHEDULER_ENABLED" envDefault:"true"`

	// Posting queue.
	PostingQueueSize    int           `env:"POSTING_QUEUE_SIZE" envDefault:"1000"`
	PostingWorkers      int           `env:"POSTING_WORKERS" envDefault:"3"`
	PostingBaseDelay    time.Duration `env:"POSTING_BASE_DELAY" envDefault:"60s"`
	PostingMaxDelay     time.Duration `env:"POSTING_MAX_DELAY" envDefault:"1h"`
	PostingMaxRetries   int           `env:"POSTING_MAX_RETRIES" envDefault:"3"`
	ApplyHumanDelay     bool          `env:"APPLY_HUMAN_DELAY" envDefault:"true"`
	AutomationEnabled   bool          `env:"AUTOMATION_ENABLED" envDefault:"true"`
	AutoPostInterval    time.Duration `env:"AUTO_POST_INTERVAL" envDefault:"5m"`
	AutoPostBatchSize   int           `env:"AUTO_POST_BATCH_SIZE" envDefault:"20"`
	WorkerStopTimeout   time.Duration `env:"WORKER_STOP_TIMEOUT" envDefault:"30s"`
	SchedulerJobTimeout time.Duration `env:"SCHEDULER_JOB_TIMEOUT" envDefault:"10m"`

	// Data retention for crawled content and derived rows.
	DataRetentionDays int           `env:"DATA_RETENTION_DAYS" envDefault:"90"`
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" envDefault:"24h"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"engage"`

	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// LLM backoff configuration.
	AIBackoffMaxElapsedTime  time.Duration `env:"AI_BACKOFF_MAX_ELAPSED_TIME" envDefault:"120s"`
	AIBackoffInitialInterval time.Duration `env:"AI_BACKOFF_INITIAL_INTERVAL" envDefault:"2s"`
	AIBackoffMaxInterval     time.Duration `env:"AI_BACKOFF_MAX_INTERVAL" envDefault:"20s"`
	AIBackoffMultiplier      float64       `env:"AI_BACKOFF_MULTIPLIER" envDefault:"1.5"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// DatabaseURL resolves the Postgres connection string. Supabase exposes its
// database as plain Postgres; DB_URL wins when both are set.
func (c Config) DatabaseURL() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return c.SupabaseURL
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GetAIBackoffConfig returns backoff configuration appropriate for the current
// environment. Test runs use much shorter timeouts.
func (c Config) GetAIBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration, multiplier float64) {
	if c.IsTest() {
		return 5 * time.Second, 100 * time.Millisecond, 1 * time.Second, 2.0
	}
	return c.AIBackoffMaxElapsedTime, c.AIBackoffInitialInterval, c.AIBackoffMaxInterval, c.AIBackoffMultiplier
}
