// Package agent runs one bounded request/response cycle against a backend.
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/function"
	"github.com/capitalize-ai/chat-orchestrator/internal/history"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
)

// DefaultMinResponseTokens is the headroom reserved for the reply when
// TokenSettings leaves it unset.
const DefaultMinResponseTokens = 750

// TokenSettings bounds each request. Zero caps are unset.
type TokenSettings struct {
	MaxPrefixTokens   int `json:"max_prefix_tokens"`
	MaxFunctionTokens int `json:"max_function_tokens"`
	MinResponseTokens int `json:"min_response_tokens"`
}

// Validate rejects negative settings.
func (s TokenSettings) Validate() error {
	if s.MaxPrefixTokens < 0 || s.MaxFunctionTokens < 0 || s.MinResponseTokens < 0 {
		return model.Validationf("token settings must not be negative: %+v", s)
	}
	return nil
}

func (s TokenSettings) withDefaults() TokenSettings {
	if s.MinResponseTokens == 0 {
		s.MinResponseTokens = DefaultMinResponseTokens
	}
	return s
}

// Options configures an Agent.
type Options struct {
	Name        string
	Description string
	Backend     llm.Backend

	// SystemPrompt heads every request when set.
	SystemPrompt string

	// Prefix generates lead-in history. Nil means none.
	Prefix history.Generator

	// Ranker reorders candidate functions before the function cap applies.
	Ranker function.Ranker

	TokenSettings TokenSettings
	Tokenizer     model.Tokenizer
	Logger        *logger.Logger
}

// Agent composes bounded requests and returns the backend's reply.
type Agent struct {
	name      string
	desc      string
	backend   llm.Backend
	settings  TokenSettings
	history   *history.Manager
	functions *function.Handler
	tokenizer model.Tokenizer
	log       *logger.Logger
}

// New validates opts and creates an Agent.
func New(opts Options) (*Agent, error) {
	if opts.Backend == nil {
		return nil, model.Validationf("agent %q has no backend", opts.Name)
	}
	if err := opts.TokenSettings.Validate(); err != nil {
		return nil, err
	}
	settings := opts.TokenSettings.withDefaults()
	if opts.Name == "" {
		opts.Name = model.DefaultAgentName
	}

	log := logger.OrNop(opts.Logger).Named("agent").With(zap.String("agent", opts.Name))

	var system *model.Message
	if opts.SystemPrompt != "" {
		m := model.NewSystemMessage(opts.Tokenizer, opts.SystemPrompt)
		system = &m
	}

	hm, err := history.NewManager(history.Options{
		Generator:       opts.Prefix,
		SystemMessage:   system,
		MaxPrefixTokens: settings.MaxPrefixTokens,
		Tokenizer:       opts.Tokenizer,
		Logger:          log,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", opts.Name, err)
	}

	fh, err := function.NewHandler(function.HandlerOptions{
		MaxFunctionTokens: settings.MaxFunctionTokens,
		Ranker:            opts.Ranker,
		Logger:            log,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", opts.Name, err)
	}

	return &Agent{
		name:      opts.Name,
		desc:      opts.Description,
		backend:   opts.Backend,
		settings:  settings,
		history:   hm,
		functions: fh,
		tokenizer: opts.Tokenizer,
		log:       log,
	}, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description.
func (a *Agent) Description() string { return a.desc }

// Tokenizer returns the tokenizer used for composed messages.
func (a *Agent) Tokenizer() model.Tokenizer { return a.tokenizer }

// TokenSettings returns the effective settings.
func (a *Agent) TokenSettings() TokenSettings { return a.settings }

// GetResponseMessage selects functions from candidates, composes a bounded
// history around input and asks the backend for the next message.
func (a *Agent) GetResponseMessage(ctx context.Context, input, hist model.MessageQueue, c model.Context, candidates []model.FunctionItem) (model.Message, error) {
	functions, err := a.functions.SelectFunctions(ctx, candidates, input, hist, c)
	if err != nil {
		return model.Message{}, err
	}

	composed, err := a.compose(ctx, input, hist, c, model.TotalTokens(functions))
	if err != nil {
		return model.Message{}, err
	}

	a.log.Debug("requesting completion",
		zap.Strings("functions", functionNames(functions)),
		zap.Int("messages", len(composed)),
		zap.Int("tokens", composed.TokenCount()),
	)

	response, err := a.backend.GetCompletion(ctx, composed, model.Schemas(functions))
	if err != nil {
		return model.Message{}, fmt.Errorf("agent %s: %w", a.name, err)
	}
	return a.label(response), nil
}

// CallFunction composes a bounded history and forces the backend to request
// item.
func (a *Agent) CallFunction(ctx context.Context, input, hist model.MessageQueue, c model.Context, item model.FunctionItem) (model.Message, error) {
	if item.TokenCount < 0 {
		return model.Message{}, model.Validationf("function %s has no token count", item.Name)
	}

	composed, err := a.compose(ctx, input, hist, c, item.TokenCount)
	if err != nil {
		return model.Message{}, err
	}

	response, err := a.backend.CallFunction(ctx, composed, item.Schema())
	if err != nil {
		return model.Message{}, fmt.Errorf("agent %s: %w", a.name, err)
	}
	return a.label(response), nil
}

func (a *Agent) compose(ctx context.Context, input, hist model.MessageQueue, c model.Context, functionTokens int) (model.MessageQueue, error) {
	available := a.backend.ContextWindow() - functionTokens - a.settings.MinResponseTokens
	metrics.PromptBudgetTokens.Observe(float64(available))

	composed, err := a.history.CreateHistory(ctx, input, hist, c, available)
	if err != nil {
		if errors.Is(err, model.ErrBudget) {
			a.log.Warn("turn does not fit the token budget",
				zap.Int("context_window", a.backend.ContextWindow()),
				zap.Int("function_tokens", functionTokens),
				zap.Int("min_response_tokens", a.settings.MinResponseTokens),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return composed.Concat(input), nil
}

func (a *Agent) label(m model.Message) model.Message {
	if m.Role == model.RoleAssistant && (m.AgentName == "" || m.AgentName == model.DefaultAgentName) {
		m.AgentName = a.name
	}
	return m
}

func functionNames(functions []model.FunctionItem) []string {
	names := make([]string, len(functions))
	for i, f := range functions {
		names[i] = f.Name
	}
	return names
}
