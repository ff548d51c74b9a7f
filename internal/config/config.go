package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	Debug   bool   `envconfig:"DEBUG" default:"false"`
	LogMode string `envconfig:"LOG_MODE" default:"development"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseMinConns int32  `envconfig:"DATABASE_MIN_CONNS" default:"1"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ChatModel           string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	// Retrieval
	TopK                int     `envconfig:"TOP_K" default:"10"`
	SimilarityThreshold float32 `envconfig:"SIMILARITY_THRESHOLD" default:"0.5"`
	ContextMaxTokens    int     `envconfig:"CONTEXT_MAX_TOKENS" default:"4000"`
	TokenCounter        string  `envconfig:"TOKEN_COUNTER" default:"heuristic"`
	AllowMockEmbedding  bool    `envconfig:"ALLOW_MOCK_EMBEDDING" default:"false"`
	HybridSearch        bool    `envconfig:"HYBRID_SEARCH" default:"false"`

	// Generation
	MaxTokens         int           `envconfig:"MAX_TOKENS" default:"1500"`
	Temperature       float32       `envconfig:"TEMPERATURE" default:"0.1"`
	TopP              float32       `envconfig:"TOP_P" default:"0.9"`
	GenerationRetries int           `envconfig:"GENERATION_RETRIES" default:"2"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"30s"`

	// Ingestion
	MaxChunkChars int `envconfig:"MAX_CHUNK_CHARS" default:"45000"`

	// Ingress dedup
	DedupWindow        time.Duration `envconfig:"DEDUP_WINDOW" default:"5s"`
	DedupSweepInterval time.Duration `envconfig:"DEDUP_SWEEP_INTERVAL" default:"30s"`
	RedisAddr          string        `envconfig:"REDIS_ADDR"`

	// Fallback answer footer
	SupportURL   string `envconfig:"SUPPORT_URL" default:"https://support.example.com"`
	CommunityURL string `envconfig:"COMMUNITY_URL" default:"https://community.example.com"`

	// Raw HTML archive
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docsage-raw-pages"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCSAGE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be within [0,1], got %v", c.SimilarityThreshold)
	}
	if c.GenerationRetries < 0 {
		return fmt.Errorf("GENERATION_RETRIES cannot be negative")
	}
	if c.MaxChunkChars <= 0 {
		return fmt.Errorf("MAX_CHUNK_CHARS must be positive")
	}
	switch c.TokenCounter {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("TOKEN_COUNTER must be heuristic or tiktoken, got %q", c.TokenCounter)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
