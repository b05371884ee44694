// Package config loads API server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the server and pipeline configuration. All fields have
// working defaults so a bare environment starts a usable server.
type Config struct {
	Port        string
	CORSOrigins string

	// ReportDir is where report PDFs and intermediate chart images live.
	ReportDir string

	// DefaultDatabase is used when a request omits the database identifier.
	DefaultDatabase string

	AnthropicModel string
	MaxTokens      int64

	// MaxRows caps query result sizes; LargeTableThreshold marks tables as
	// large for the validation heuristic.
	MaxRows             int
	LargeTableThreshold int

	QueryTimeout time.Duration
	LLMTimeout   time.Duration

	// MaxConcurrent bounds how many analysis pipelines run at once.
	MaxConcurrent int
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		CORSOrigins:         os.Getenv("CORS_ORIGINS"),
		ReportDir:           getEnv("REPORT_DIR", "reports"),
		DefaultDatabase:     getEnv("DEMO_DATABASE_URL", "sqlite:///demo_sales.db"),
		AnthropicModel:      getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		MaxTokens:           int64(getEnvInt("ANTHROPIC_MAX_TOKENS", 4096)),
		MaxRows:             getEnvInt("QUERY_MAX_ROWS", 1000),
		LargeTableThreshold: getEnvInt("LARGE_TABLE_THRESHOLD", 10000),
		QueryTimeout:        getEnvDuration("QUERY_TIMEOUT", 30*time.Second),
		LLMTimeout:          getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		MaxConcurrent:       getEnvInt("MAX_CONCURRENT_ANALYSES", 4),
	}

	if cfg.MaxRows <= 0 {
		return nil, fmt.Errorf("QUERY_MAX_ROWS must be positive")
	}
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_ANALYSES must be positive")
	}
	if err := os.MkdirAll(cfg.ReportDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", cfg.ReportDir, err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
