package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// ContextPrefix starts the message announcing the current context.
const ContextPrefix = "The current context is "

// Options configures a Manager.
type Options struct {
	// Generator produces the prefix. Nil means no prefix.
	Generator Generator

	// SystemMessage, when set, heads every composed history and is never
	// trimmed.
	SystemMessage *model.Message

	// MaxPrefixTokens caps the prefix including the system message. Zero
	// leaves it uncapped.
	MaxPrefixTokens int

	Tokenizer model.Tokenizer
	Logger    *logger.Logger
}

// Manager builds the bounded history for each turn.
type Manager struct {
	generator       Generator
	system          *model.Message
	maxPrefixTokens int
	tokenizer       model.Tokenizer
	log             *logger.Logger
}

// NewManager validates opts and creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.MaxPrefixTokens < 0 {
		return nil, model.Validationf("max prefix tokens must not be negative, got %d", opts.MaxPrefixTokens)
	}
	if opts.SystemMessage != nil && opts.MaxPrefixTokens > 0 && opts.SystemMessage.TokenCount > opts.MaxPrefixTokens {
		return nil, model.Budgetf("system message needs %d tokens but the prefix cap is %d",
			opts.SystemMessage.TokenCount, opts.MaxPrefixTokens)
	}

	generator := opts.Generator
	if generator == nil {
		generator = NewStaticGenerator()
	}

	var system *model.Message
	if opts.SystemMessage != nil {
		m := *opts.SystemMessage
		system = &m
	}

	return &Manager{
		generator:       generator,
		system:          system,
		maxPrefixTokens: opts.MaxPrefixTokens,
		tokenizer:       opts.Tokenizer,
		log:             logger.OrNop(opts.Logger).Named("history"),
	}, nil
}

// MaxPrefixTokens returns the configured prefix cap, zero when uncapped.
func (m *Manager) MaxPrefixTokens() int {
	return m.maxPrefixTokens
}

// ContextMessage builds the message announcing c.
func (m *Manager) ContextMessage(c model.Context) model.Message {
	return model.NewUserMessage(m.tokenizer, ContextPrefix+c.String())
}

// Prefix returns the trimmed prefix for input.
func (m *Manager) Prefix(ctx context.Context, input model.MessageQueue, c model.Context) (model.MessageQueue, error) {
	generated, err := m.generator.CreateHistory(ctx, input, c)
	if err != nil {
		return nil, fmt.Errorf("failed to generate prefix: %w", err)
	}

	prefix := model.NewMessageQueue()
	if m.system != nil {
		prefix.Append(*m.system)
	}

	if m.maxPrefixTokens > 0 {
		generated = generated.LastNTokens(m.maxPrefixTokens - prefix.TokenCount())
	}
	prefix.Extend(generated...)
	return prefix, nil
}

// CreateHistory composes prefix, trimmed history and the context message
// so that, together with input, the result fits within maxTokens. The input
// is budgeted for but not included in the result.
func (m *Manager) CreateHistory(ctx context.Context, input, history model.MessageQueue, c model.Context, maxTokens int) (model.MessageQueue, error) {
	prefix, err := m.Prefix(ctx, input, c)
	if err != nil {
		return nil, err
	}
	contextMessage := m.ContextMessage(c)

	mandatory := contextMessage.TokenCount + input.TokenCount()
	if maxTokens < mandatory {
		return nil, model.Budgetf("%d tokens available but context and input need %d", maxTokens, mandatory)
	}

	remaining := maxTokens - prefix.TokenCount() - mandatory
	trimmed := history.LastNTokens(remaining)

	m.log.Debug("composed history",
		zap.Int("max_tokens", maxTokens),
		zap.Int("prefix_tokens", prefix.TokenCount()),
		zap.Int("context_tokens", contextMessage.TokenCount),
		zap.Int("input_tokens", input.TokenCount()),
		zap.Int("history_kept", len(trimmed)),
		zap.Int("history_dropped", len(history)-len(trimmed)),
	)

	return prefix.Concat(trimmed, model.NewMessageQueue(contextMessage)), nil
}
