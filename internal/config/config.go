// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/chat-orchestrator/internal/agent"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// Function cache kinds.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheLRU    = "lru"
	CacheNATS   = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AllowedOrigins     []string

	// NATS settings. An empty URL keeps transcripts in memory.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	LLMProvider     string
	LLMModel        string
	LLMBaseURL      string
	ContextWindow   int

	// Agent settings
	AgentName         string
	SystemPrompt      string
	OpeningPrompt     string
	MaxPrefixTokens   int
	MaxFunctionTokens int
	MinResponseTokens int
	MaxAutoCallRounds int

	// Function generation
	FunctionCache       string
	FunctionCacheSize   int
	FunctionCacheTTL    time.Duration
	FunctionCacheBucket string
	FunctionParamsFile  string
	ContextItemsFile    string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		AllowedOrigins:     getListEnv("ALLOWED_ORIGINS", nil),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		LLMProvider:     getEnv("LLM_PROVIDER", "openai"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMBaseURL:      getEnv("LLM_BASE_URL", ""),
		ContextWindow:   getIntEnv("CONTEXT_WINDOW", 0),

		// Agent
		AgentName:         getEnv("AGENT_NAME", "assistant"),
		SystemPrompt:      getEnv("SYSTEM_PROMPT", ""),
		OpeningPrompt:     getEnv("OPENING_PROMPT", ""),
		MaxPrefixTokens:   getIntEnv("MAX_PREFIX_TOKENS", 0),
		MaxFunctionTokens: getIntEnv("MAX_FUNCTION_TOKENS", 0),
		MinResponseTokens: getIntEnv("MIN_RESPONSE_TOKENS", agent.DefaultMinResponseTokens),
		MaxAutoCallRounds: getIntEnv("MAX_AUTO_CALL_ROUNDS", 10),

		// Function generation
		FunctionCache:       strings.ToLower(getEnv("FUNCTION_CACHE", CacheMemory)),
		FunctionCacheSize:   getIntEnv("FUNCTION_CACHE_SIZE", 1024),
		FunctionCacheTTL:    getDurationEnv("FUNCTION_CACHE_TTL", 10*time.Minute),
		FunctionCacheBucket: getEnv("FUNCTION_CACHE_BUCKET", "FUNCTION_CACHE"),
		FunctionParamsFile:  getEnv("FUNCTION_PARAMS_FILE", ""),
		ContextItemsFile:    getEnv("CONTEXT_ITEMS_FILE", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// TokenSettings returns the agent's token caps.
func (c *Config) TokenSettings() agent.TokenSettings {
	return agent.TokenSettings{
		MaxPrefixTokens:   c.MaxPrefixTokens,
		MaxFunctionTokens: c.MaxFunctionTokens,
		MinResponseTokens: c.MinResponseTokens,
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if err := c.TokenSettings().Validate(); err != nil {
		return err
	}
	if c.MaxAutoCallRounds < 0 {
		return model.Validationf("MAX_AUTO_CALL_ROUNDS must not be negative, got %d", c.MaxAutoCallRounds)
	}
	if c.ContextWindow < 0 {
		return model.Validationf("CONTEXT_WINDOW must not be negative, got %d", c.ContextWindow)
	}
	switch c.FunctionCache {
	case CacheNone, CacheMemory:
	case CacheLRU:
		if c.FunctionCacheSize <= 0 {
			return model.Validationf("FUNCTION_CACHE_SIZE must be positive for the lru cache")
		}
	case CacheNATS:
		if c.NATSURL == "" {
			return model.Validationf("FUNCTION_CACHE=nats needs NATS_URL")
		}
	default:
		return model.Validationf("unknown FUNCTION_CACHE %q", c.FunctionCache)
	}
	return nil
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	if c.LLMProvider == "anthropic" {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
