package contextmgr

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// ExtractionPrompt asks the backend to report the current context.
const ExtractionPrompt = "At the current point, which things are we talking about? Use the update_context function to tell me."

// FunctionCaller forces a backend call to a single function. *agent.Agent
// satisfies it.
type FunctionCaller interface {
	CallFunction(ctx context.Context, input, history model.MessageQueue, c model.Context, item model.FunctionItem) (model.Message, error)
	Tokenizer() model.Tokenizer
}

// AgentManager extracts context by forcing an update_context call.
type AgentManager struct {
	name   string
	items  map[string]ContextItem
	item   model.FunctionItem
	caller FunctionCaller
	log    *logger.Logger
}

// NewAgentManager creates a manager tracking items through caller.
func NewAgentManager(name string, items []ContextItem, caller FunctionCaller, log *logger.Logger) (*AgentManager, error) {
	if caller == nil {
		return nil, model.Validationf("context manager %s has no agent", name)
	}
	if len(items) == 0 {
		return nil, model.Validationf("context manager %s has no items", name)
	}

	index := make(map[string]ContextItem, len(items))
	for _, ci := range items {
		if _, dup := index[ci.Name]; dup {
			return nil, model.Validationf("context manager %s: duplicate item %s", name, ci.Name)
		}
		index[ci.Name] = ci
	}

	item, err := ToFunctionItem(items, caller.Tokenizer())
	if err != nil {
		return nil, fmt.Errorf("context manager %s: %w", name, err)
	}

	return &AgentManager{
		name:   name,
		items:  index,
		item:   item,
		caller: caller,
		log:    logger.OrNop(log).Named("context").With(zap.String("manager", name)),
	}, nil
}

// Name returns the manager's name.
func (m *AgentManager) Name() string { return m.name }

// FunctionItem returns the update_context function offered to the backend.
func (m *AgentManager) FunctionItem() model.FunctionItem { return m.item }

// ContextUpdates asks the backend which items are in play and keeps the
// known items whose values are valid.
func (m *AgentManager) ContextUpdates(ctx context.Context, history model.MessageQueue, _ model.Context) (model.Context, error) {
	input := model.NewMessageQueue(model.NewUserMessage(m.caller.Tokenizer(), ExtractionPrompt))

	response, err := m.caller.CallFunction(ctx, input, history, model.Context{}, m.item)
	if err != nil {
		return nil, fmt.Errorf("context manager %s: %w", m.name, err)
	}
	if !response.IsFunctionRequest() || len(response.Requests) == 0 {
		return model.Context{}, nil
	}

	updates := model.Context{}
	for name, value := range response.Requests[0].Args {
		ci, ok := m.items[name]
		if !ok {
			m.log.Debug("dropped unknown context item", zap.String("item", name))
			continue
		}
		if !ci.Accepts(value) {
			m.log.Debug("dropped invalid context value", zap.String("item", name), zap.Any("value", value))
			continue
		}
		updates[name] = value
	}
	return updates, nil
}
