package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Index     IndexConfig
	Data      DataConfig
	Session   SessionConfig
}

type ServerConfig struct {
	Host       string
	Port       int
	RateLimit  float64 // requests per second per client
	RateBurst  int
	CORSOrigin []string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type AuthConfig struct {
	JWTSecret string // empty disables bearer auth
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	GeminiKey        string
	GeminiBaseURL    string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
	Timeout          time.Duration
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	BatchSize int
	Timeout   time.Duration
}

type IndexConfig struct {
	Path    string
	Backend string // "memory" or "pgvector"
	TopK    int
}

type DataConfig struct {
	CropCSV     string
	RainfallCSV string
}

type SessionConfig struct {
	IdleTTL     time.Duration
	MaxSessions int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rateBurst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	rateLimit, err := getEnvFloat("RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cacheTTL, err := getEnvDuration("EMBEDDING_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_CACHE_TTL: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	llmTimeout, err := getEnvDuration("LLM_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TIMEOUT: %w", err)
	}

	batchSize, err := getEnvInt("EMBEDDING_BATCH_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_BATCH_SIZE: %w", err)
	}

	embedTimeout, err := getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_TIMEOUT: %w", err)
	}

	topK, err := getEnvInt("RETRIEVAL_TOP_K", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid RETRIEVAL_TOP_K: %w", err)
	}

	idleTTL, err := getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_IDLE_TTL: %w", err)
	}

	maxSessions, err := getEnvInt("SESSION_MAX", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_MAX: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:       getEnv("SERVER_HOST", "0.0.0.0"),
			Port:       port,
			RateLimit:  rateLimit,
			RateBurst:  rateBurst,
			CORSOrigin: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			CacheTTL: cacheTTL,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			GeminiKey:        getEnv("GOOGLE_API_KEY", ""),
			GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "gemini"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gemini-2.5-flash"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
			Timeout:          llmTimeout,
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", "ollama"),
			Model:     getEnv("EMBEDDING_MODEL", "all-minilm"),
			BatchSize: batchSize,
			Timeout:   embedTimeout,
		},
		Index: IndexConfig{
			Path:    getEnv("INDEX_PATH", "vectorstore/index.samarth"),
			Backend: getEnv("INDEX_BACKEND", "memory"),
			TopK:    topK,
		},
		Data: DataConfig{
			CropCSV:     getEnv("CROP_DATA_PATH", "processed_data/crop_data_cleaned.csv"),
			RainfallCSV: getEnv("RAINFALL_DATA_PATH", "processed_data/rainfall_data_cleaned.csv"),
		},
		Session: SessionConfig{
			IdleTTL:     idleTTL,
			MaxSessions: maxSessions,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports configuration that makes the selected providers or
// backends unusable.
func (c *Config) Validate() error {
	var missing []string
	for _, p := range []string{c.LLM.DefaultProvider, c.Embedding.Provider} {
		if key := c.providerKeyEnv(p); key != "" {
			missing = append(missing, key)
		}
	}
	if c.Index.Backend == "pgvector" && c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(dedupe(missing), ", "))
	}

	switch c.Index.Backend {
	case "memory", "pgvector":
	default:
		return fmt.Errorf("unknown INDEX_BACKEND %q", c.Index.Backend)
	}
	if c.Index.TopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.Index.TopK)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be positive, got %d", c.Embedding.BatchSize)
	}
	return nil
}

// providerKeyEnv returns the env var that must be set for provider p, or ""
// if it is already satisfied.
func (c *Config) providerKeyEnv(p string) string {
	switch p {
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return "OPENAI_API_KEY"
		}
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			return "ANTHROPIC_API_KEY"
		}
	case "gemini":
		if c.LLM.GeminiKey == "" {
			return "GOOGLE_API_KEY"
		}
	case "ollama":
		if c.LLM.OllamaURL == "" {
			return "OLLAMA_URL"
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
