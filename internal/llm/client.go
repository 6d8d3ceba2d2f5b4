// Package llm provides completion backends for the conversation engine.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// Backend produces the next assistant message for a composed history.
type Backend interface {
	// GetCompletion lets the backend answer or request any of functions.
	GetCompletion(ctx context.Context, messages model.MessageQueue, functions []model.FunctionSchema) (model.Message, error)

	// CallFunction forces a request for exactly one function.
	CallFunction(ctx context.Context, messages model.MessageQueue, function model.FunctionSchema) (model.Message, error)

	// ContextWindow returns the backend's total token window.
	ContextWindow() int

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Request kinds used in metrics.
const (
	kindCompletion = "completion"
	kindFunction   = "function"
)

// Options configures a backend.
type Options struct {
	APIKey string
	Model  string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// ContextWindow overrides the model table. Required for unknown models.
	ContextWindow int

	// MaxResponseTokens caps generated tokens. Defaults to 4096.
	MaxResponseTokens int

	Temperature float64

	// AgentName labels assistant messages produced by the backend.
	AgentName string

	Tokenizer model.Tokenizer
	Logger    *logger.Logger
}

// UsageRecorder is implemented by tokenizers that calibrate against
// backend-reported usage.
type UsageRecorder interface {
	RecordUsage(text string, actualTokens int)
}

var contextWindows = map[string]int{
	"gpt-4o":                     128000,
	"gpt-4o-mini":                128000,
	"gpt-4-turbo":                128000,
	"gpt-4":                      8192,
	"gpt-4-32k":                  32768,
	"gpt-3.5-turbo":              16385,
	"claude-3-5-sonnet-20241022": 200000,
	"claude-3-5-haiku-20241022":  200000,
	"claude-3-opus-20240229":     200000,
	"claude-3-sonnet-20240229":   200000,
	"claude-3-haiku-20240307":    200000,
}

// ContextWindowFor resolves the token window of a model. Dated variants fall
// back to their family name.
func ContextWindowFor(modelName string) (int, bool) {
	if n, ok := contextWindows[modelName]; ok {
		return n, true
	}
	best := ""
	for name := range contextWindows {
		if strings.HasPrefix(modelName, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return 0, false
	}
	return contextWindows[best], true
}

func resolveContextWindow(opts Options) (int, error) {
	if opts.ContextWindow > 0 {
		return opts.ContextWindow, nil
	}
	n, ok := ContextWindowFor(opts.Model)
	if !ok {
		return 0, model.Validationf("unknown model %q; set an explicit context window", opts.Model)
	}
	return n, nil
}

// NewBackend creates a backend based on provider.
func NewBackend(provider Provider, opts Options) (Backend, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicBackend(opts)
	case ProviderOpenAI:
		return NewOpenAIBackend(opts)
	default:
		return nil, model.Validationf("unknown llm provider %q", provider)
	}
}

func functionResultText(m model.Message) string {
	return fmt.Sprintf("Result of function %s (%s): %s", m.FunctionName, m.FunctionID, m.Content)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
