// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	OutputDir   string
	MaxRetry    int
	Workers     int
	QueueSize   int
	Sandbox     SandboxConfig
	Reasoning   ReasoningConfig
}

// SandboxConfig controls the isolated execution environment.
type SandboxConfig struct {
	Image         string
	MemoryLimitMB int64
	RunTimeout    time.Duration
	ReapInterval  time.Duration
	ReapAge       time.Duration
}

// ReasoningConfig controls the reasoning service client.
type ReasoningConfig struct {
	APIKey         string
	BaseURL        string
	FastModel      string
	CodeModel      string
	RequestTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/masim.db"),
		OutputDir:   getEnv("OUTPUT_DIR", "./output"),
		MaxRetry:    getEnvInt("MAX_RETRY", 3),
		Workers:     getEnvInt("WORKERS", 4),
		QueueSize:   getEnvInt("QUEUE_SIZE", 64),
		Sandbox: SandboxConfig{
			Image:         getEnv("SANDBOX_IMAGE", "sandbox:latest"),
			MemoryLimitMB: int64(getEnvInt("SANDBOX_MEMORY_MB", 512)),
			RunTimeout:    getEnvDuration("SANDBOX_RUN_TIMEOUT", 10*time.Minute),
			ReapInterval:  getEnvDuration("SANDBOX_REAP_INTERVAL", 5*time.Minute),
			ReapAge:       getEnvDuration("SANDBOX_REAP_AGE", 30*time.Minute),
		},
		Reasoning: ReasoningConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", ""),
			FastModel:      getEnv("REASONING_FAST_MODEL", "gpt-5-nano"),
			CodeModel:      getEnv("REASONING_CODE_MODEL", "gpt-5-mini"),
			RequestTimeout: getEnvDuration("REASONING_REQUEST_TIMEOUT", 2*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR cannot be empty")
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("MAX_RETRY must be >= 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be > 0")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be > 0")
	}
	if c.Sandbox.Image == "" {
		return fmt.Errorf("SANDBOX_IMAGE cannot be empty")
	}
	if c.Sandbox.MemoryLimitMB <= 0 {
		return fmt.Errorf("SANDBOX_MEMORY_MB must be > 0")
	}
	if c.Reasoning.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.Reasoning.FastModel == "" || c.Reasoning.CodeModel == "" {
		return fmt.Errorf("reasoning model names cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
