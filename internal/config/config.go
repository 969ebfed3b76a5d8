package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/reviewtrust/trustscore/internal/domain"
	pkgconfig "github.com/reviewtrust/trustscore/pkg/config"
	"github.com/reviewtrust/trustscore/pkg/database"
)

// Classifier modes.
const (
	ClassifierModeHTTP          = "http"
	ClassifierModeDeterministic = "deterministic"
)

// LLM providers for product analytics.
const (
	LLMProviderAnthropic = "anthropic"
	LLMProviderOpenAI    = "openai"
	LLMProviderNone      = "none"
)

// Pending-marker backends.
const (
	PendingStoreRedis  = "redis"
	PendingStoreMemory = "memory"
)

// Config holds all configuration for the trust score service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"trustscore"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int      `env:"TRUSTSCORE_HTTP_PORT" envDefault:"8090"`
	APIKeys  []string `env:"TRUSTSCORE_API_KEYS" envSeparator:","`
	// CacheMaxAge is the Cache-Control max-age, in seconds, of score reads.
	CacheMaxAge int `env:"TRUSTSCORE_CACHE_MAX_AGE" envDefault:"30"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"reviewtrust"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"reviewtrust_secret"`
	PostgresDB   string `env:"TRUSTSCORE_DB_NAME" envDefault:"reviewtrust"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int           `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int           `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	DBQueryTimeout        time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"10s"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"trustscore"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	Classifier ClassifierConfig `envPrefix:"CLASSIFIER_"`
	Pipeline   PipelineConfig   `envPrefix:"PIPELINE_"`
	Recompute  RecomputeConfig  `envPrefix:"RECOMPUTE_"`
	LLM        LLMConfig        `envPrefix:"LLM_"`

	// AnalysisMinModelVersion re-selects reviews analyzed by older models.
	// Empty disables re-analysis.
	AnalysisMinModelVersion string `env:"ANALYSIS_MIN_MODEL_VERSION"`
}

// ClassifierConfig configures the sentiment/spam classifier adapter.
type ClassifierConfig struct {
	Mode                   string        `env:"MODE" envDefault:"http"`
	URL                    string        `env:"URL" envDefault:"http://localhost:8001/classify"`
	Timeout                time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RateLimit              float64       `env:"RATE_LIMIT" envDefault:"20"`
	Burst                  int           `env:"BURST" envDefault:"5"`
	LowConfidenceThreshold float64       `env:"LOW_CONFIDENCE_THRESHOLD" envDefault:"0.6"`
}

// PipelineConfig configures the analysis pipeline.
type PipelineConfig struct {
	BatchSize      int           `env:"BATCH_SIZE" envDefault:"100"`
	Parallelism    int           `env:"PARALLELISM" envDefault:"4"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"500ms"`
	RetryMaxDelay  time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5s"`
	// Interval of the background batch job; 0 disables it.
	Interval time.Duration `env:"INTERVAL" envDefault:"1m"`
	// PendingStore selects where products awaiting recompute are recorded.
	PendingStore string `env:"PENDING_STORE" envDefault:"redis"`
}

// RecomputeConfig configures trust score recomputation.
type RecomputeConfig struct {
	FormulaVersion string        `env:"FORMULA_VERSION" envDefault:"2.0"`
	HalfLifeDays   float64       `env:"HALF_LIFE_DAYS" envDefault:"90"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"30s"`
	Parallelism    int           `env:"PARALLELISM" envDefault:"4"`
	// Interval of the pending-marker drain job; 0 disables it.
	Interval  time.Duration `env:"INTERVAL" envDefault:"30s"`
	DrainSize int           `env:"DRAIN_SIZE" envDefault:"50"`
}

// LLMConfig configures product analytics summaries.
type LLMConfig struct {
	Provider        string        `env:"PROVIDER" envDefault:"anthropic"`
	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string        `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	OpenAIModel     string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	MaxTokens       int64         `env:"MAX_TOKENS" envDefault:"2000"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load trustscore config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Classifier.Mode = strings.ToLower(strings.TrimSpace(c.Classifier.Mode))
	c.Pipeline.PendingStore = strings.ToLower(strings.TrimSpace(c.Pipeline.PendingStore))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.DBQueryTimeout <= 0 {
		return fmt.Errorf("DB_QUERY_TIMEOUT must be > 0, got %s", c.DBQueryTimeout)
	}

	switch c.Classifier.Mode {
	case ClassifierModeHTTP:
		if c.Classifier.URL == "" {
			return fmt.Errorf("CLASSIFIER_URL is required in http mode")
		}
	case ClassifierModeDeterministic:
	default:
		return fmt.Errorf("CLASSIFIER_MODE must be http or deterministic, got %q", c.Classifier.Mode)
	}
	if c.Classifier.Timeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be > 0, got %s", c.Classifier.Timeout)
	}
	if c.Classifier.RateLimit <= 0 || c.Classifier.Burst < 1 {
		return fmt.Errorf("CLASSIFIER_RATE_LIMIT and CLASSIFIER_BURST must be positive")
	}
	if c.Classifier.LowConfidenceThreshold < 0 || c.Classifier.LowConfidenceThreshold > 1 {
		return fmt.Errorf("CLASSIFIER_LOW_CONFIDENCE_THRESHOLD must be between 0.0 and 1.0, got %f", c.Classifier.LowConfidenceThreshold)
	}

	p := c.Pipeline
	if p.BatchSize < 1 || p.Parallelism < 1 || p.MaxAttempts < 1 {
		return fmt.Errorf("PIPELINE_BATCH_SIZE, PIPELINE_PARALLELISM and PIPELINE_MAX_ATTEMPTS must be >= 1")
	}
	if p.RetryBaseDelay <= 0 || p.RetryMaxDelay < p.RetryBaseDelay {
		return fmt.Errorf("PIPELINE_RETRY_MAX_DELAY (%s) must be >= PIPELINE_RETRY_BASE_DELAY (%s) > 0", p.RetryMaxDelay, p.RetryBaseDelay)
	}
	if p.PendingStore != PendingStoreRedis && p.PendingStore != PendingStoreMemory {
		return fmt.Errorf("PIPELINE_PENDING_STORE must be redis or memory, got %q", p.PendingStore)
	}

	r := c.Recompute
	f, err := domain.LookupFormula(r.FormulaVersion)
	if err != nil {
		return fmt.Errorf("RECOMPUTE_FORMULA_VERSION: %w", err)
	}
	if r.HalfLifeDays <= 0 {
		return fmt.Errorf("RECOMPUTE_HALF_LIFE_DAYS must be > 0, got %v", r.HalfLifeDays)
	}
	if err := f.WithHalfLife(r.HalfLifeDays).Validate(); err != nil {
		return err
	}
	if r.Timeout <= 0 || r.Parallelism < 1 || r.DrainSize < 1 {
		return fmt.Errorf("RECOMPUTE_TIMEOUT, RECOMPUTE_PARALLELISM and RECOMPUTE_DRAIN_SIZE must be positive")
	}

	switch c.LLM.Provider {
	case LLMProviderAnthropic, LLMProviderOpenAI, LLMProviderNone:
	default:
		return fmt.Errorf("LLM_PROVIDER must be anthropic, openai or none, got %q", c.LLM.Provider)
	}
	if c.LLM.MaxTokens < 1 || c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS and LLM_TIMEOUT must be positive")
	}
	return nil
}

// Formula returns the configured scoring formula.
func (c *Config) Formula() domain.Formula {
	f, _ := domain.LookupFormula(c.Recompute.FormulaVersion)
	return f.WithHalfLife(c.Recompute.HalfLifeDays)
}

// PostgresConfig returns the pool configuration.
func (c *Config) PostgresConfig() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// RedisConfig returns the Redis client configuration.
func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
