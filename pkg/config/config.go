// Package config holds runtime settings for the nightjar engine. Everything
// is environment-driven with programmatic overrides, so the same binary runs
// in local, single-node, and multi-replica deployments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMProvider identifies the chat-completion backend.
type LLMProvider string

const (
	ProviderGroq       LLMProvider = "groq"       // High-speed inference (default when key present)
	ProviderOpenRouter LLMProvider = "openrouter" // OpenRouter (free tier available)
	ProviderOllama     LLMProvider = "ollama"     // Local Ollama server
)

// SessionBackend selects the session store implementation.
type SessionBackend string

const (
	BackendMemory SessionBackend = "memory"
	BackendRedis  SessionBackend = "redis"
)

// Config holds global settings for the nightjar engine.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Core ===
	Port   string // Listen port (default: 8080)
	APIKey string // x-api-key value required on engagement requests; empty disables auth

	// === LLM Provider ===
	LLMProvider LLMProvider // "groq", "openrouter", "ollama"
	LLMAPIKey   string      // API key for cloud providers
	LLMModel    string      // Chat model identifier
	LLMBaseURL  string      // Override for self-hosted / custom endpoints
	LLMTimeout  time.Duration

	// === Humanization delay ===
	// Random pre-reply jitter drawn uniformly from [MinDelay, MaxDelay].
	MinDelay time.Duration
	MaxDelay time.Duration

	// === Session store ===
	SessionBackend SessionBackend
	SessionTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// === Scorer ===
	WeightsPath string // Optional YAML weight overrides

	// === Semantic classifier ===
	EnableSemantics bool   // Embedding-similarity scam-type fallback (requires Ollama)
	EmbedBaseURL    string // Ollama embedding endpoint
	EmbedModel      string

	// === Report archive ===
	PostgresDSN string // Empty disables the Postgres report archive

	// === Logging ===
	LogLevel  string
	LogFormat string // "console" or "json"
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		Port:   GetEnv("NIGHTJAR_PORT", "8080"),
		APIKey: GetEnv("NIGHTJAR_API_KEY", ""),

		LLMProvider: detectLLMProvider(),
		LLMAPIKey:   GetEnv("NIGHTJAR_LLM_API_KEY", GetEnv("GROQ_API_KEY", os.Getenv("OPENROUTER_API_KEY"))),
		LLMModel:    GetEnv("NIGHTJAR_LLM_MODEL", "llama-3.1-8b-instant"),
		LLMBaseURL:  GetEnv("NIGHTJAR_LLM_BASE_URL", ""),
		LLMTimeout:  time.Duration(GetEnvInt("NIGHTJAR_LLM_TIMEOUT_MS", 30000)) * time.Millisecond,

		MinDelay: time.Duration(GetEnvInt("NIGHTJAR_MIN_DELAY_MS", 100)) * time.Millisecond,
		MaxDelay: time.Duration(GetEnvInt("NIGHTJAR_MAX_DELAY_MS", 280)) * time.Millisecond,

		SessionBackend: SessionBackend(GetEnv("NIGHTJAR_SESSION_BACKEND", string(BackendMemory))),
		SessionTTL:     time.Duration(GetEnvInt("NIGHTJAR_SESSION_TTL_SECONDS", 3600)) * time.Second,
		RedisAddr:      GetEnv("NIGHTJAR_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  GetEnv("NIGHTJAR_REDIS_PASSWORD", ""),
		RedisDB:        GetEnvInt("NIGHTJAR_REDIS_DB", 0),

		WeightsPath: GetEnv("NIGHTJAR_WEIGHTS_FILE", ""),

		EnableSemantics: GetEnvBool("NIGHTJAR_ENABLE_SEMANTICS", false),
		EmbedBaseURL:    GetEnv("NIGHTJAR_EMBED_BASE_URL", "http://localhost:11434"),
		EmbedModel:      GetEnv("NIGHTJAR_EMBED_MODEL", "nomic-embed-text"),

		PostgresDSN: GetEnv("NIGHTJAR_POSTGRES_DSN", ""),

		LogLevel:  GetEnv("NIGHTJAR_LOG_LEVEL", "info"),
		LogFormat: GetEnv("NIGHTJAR_LOG_FORMAT", "console"),
	}
}

// NewLocalConfig creates a Config for fully local operation: Ollama for both
// chat and embeddings, no cloud keys needed.
func NewLocalConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.LLMProvider = ProviderOllama
	cfg.LLMBaseURL = "http://localhost:11434/v1"
	cfg.LLMModel = "qwen2.5:7b"
	cfg.LLMAPIKey = ""
	cfg.EnableSemantics = true
	return cfg
}

// detectLLMProvider picks a provider from an explicit setting or available
// keys, defaulting to local Ollama when no cloud key is found.
func detectLLMProvider() LLMProvider {
	if p := os.Getenv("NIGHTJAR_LLM_PROVIDER"); p != "" {
		return LLMProvider(p)
	}
	if os.Getenv("GROQ_API_KEY") != "" {
		return ProviderGroq
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("NIGHTJAR_LLM_API_KEY") != "" {
		return ProviderOpenRouter
	}
	return ProviderOllama
}

// BaseURL returns the OpenAI-compatible endpoint root for the configured
// provider, honoring an explicit override.
func (c *Config) BaseURL() string {
	if c.LLMBaseURL != "" {
		return c.LLMBaseURL
	}
	switch c.LLMProvider {
	case ProviderGroq:
		return "https://api.groq.com/openai/v1"
	case ProviderOpenRouter:
		return "https://openrouter.ai/api/v1"
	case ProviderOllama:
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}

// Validate checks internal consistency. Called at startup before serving.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGroq, ProviderOpenRouter, ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}
	if c.LLMProvider != ProviderOllama && c.LLMAPIKey == "" {
		return fmt.Errorf("provider %s requires an api key", c.LLMProvider)
	}

	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis session backend requires NIGHTJAR_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}

	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("invalid delay window [%s, %s]", c.MinDelay, c.MaxDelay)
	}
	return nil
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
