// Package history composes the token-bounded message sequence sent to a
// backend for one turn.
package history

import (
	"context"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// Generator produces the prefix placed before live conversation history.
type Generator interface {
	CreateHistory(ctx context.Context, input model.MessageQueue, c model.Context) (model.MessageQueue, error)
}

// GeneratorFunc adapts an ordinary function to the Generator interface.
type GeneratorFunc func(ctx context.Context, input model.MessageQueue, c model.Context) (model.MessageQueue, error)

// CreateHistory calls f.
func (f GeneratorFunc) CreateHistory(ctx context.Context, input model.MessageQueue, c model.Context) (model.MessageQueue, error) {
	return f(ctx, input, c)
}

// StaticGenerator returns the same prefix for every turn.
type StaticGenerator struct {
	messages model.MessageQueue
}

// NewStaticGenerator creates a generator returning messages.
func NewStaticGenerator(messages ...model.Message) *StaticGenerator {
	return &StaticGenerator{messages: model.NewMessageQueue(messages...)}
}

// NewStatementGenerator creates a static prefix of user statements.
func NewStatementGenerator(tok model.Tokenizer, statements ...string) *StaticGenerator {
	messages := make([]model.Message, len(statements))
	for i, s := range statements {
		messages[i] = model.NewUserMessage(tok, s)
	}
	return NewStaticGenerator(messages...)
}

// CreateHistory returns a copy of the configured prefix.
func (g *StaticGenerator) CreateHistory(_ context.Context, _ model.MessageQueue, _ model.Context) (model.MessageQueue, error) {
	return g.messages.Copy(), nil
}
