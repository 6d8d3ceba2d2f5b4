package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "", cfg.NATSURL)
	assert.Equal(t, 750, cfg.MinResponseTokens)
	assert.Equal(t, 10, cfg.MaxAutoCallRounds)
	assert.Equal(t, CacheMemory, cfg.FunctionCache)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("MAX_PREFIX_TOKENS", "200")
	t.Setenv("MAX_FUNCTION_TOKENS", "300")
	t.Setenv("MIN_RESPONSE_TOKENS", "100")
	t.Setenv("FUNCTION_CACHE", "LRU")
	t.Setenv("FUNCTION_CACHE_TTL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("CONTEXT_WINDOW", "not-a-number")

	cfg := Load()

	settings := cfg.TokenSettings()
	assert.Equal(t, 200, settings.MaxPrefixTokens)
	assert.Equal(t, 300, settings.MaxFunctionTokens)
	assert.Equal(t, 100, settings.MinResponseTokens)
	assert.Equal(t, CacheLRU, cfg.FunctionCache)
	assert.Equal(t, 30*time.Second, cfg.FunctionCacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, 0, cfg.ContextWindow)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative prefix cap", func(c *Config) { c.MaxPrefixTokens = -1 }},
		{"negative auto-call rounds", func(c *Config) { c.MaxAutoCallRounds = -1 }},
		{"negative context window", func(c *Config) { c.ContextWindow = -5 }},
		{"unknown cache", func(c *Config) { c.FunctionCache = "redis" }},
		{"lru without size", func(c *Config) { c.FunctionCache = CacheLRU; c.FunctionCacheSize = 0 }},
		{"nats cache without nats", func(c *Config) { c.FunctionCache = CacheNATS; c.NATSURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), model.ErrValidation)
		})
	}
}

func TestAPIKey(t *testing.T) {
	cfg := &Config{LLMProvider: "anthropic", AnthropicAPIKey: "a", OpenAIAPIKey: "o"}
	assert.Equal(t, "a", cfg.APIKey())
	cfg.LLMProvider = "openai"
	assert.Equal(t, "o", cfg.APIKey())
}
