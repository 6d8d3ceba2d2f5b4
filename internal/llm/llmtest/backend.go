// Package llmtest provides a scripted backend for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// Call records one request made to a Backend.
type Call struct {
	Forced    bool
	Messages  model.MessageQueue
	Functions []model.FunctionSchema
}

// Backend replays scripted responses in order. Once the script runs out it
// answers with DefaultContent.
type Backend struct {
	mu sync.Mutex

	Window         int
	Responses      []model.Message
	Errors         []error
	DefaultContent string

	calls []Call
}

// New creates a backend with the given window and responses.
func New(window int, responses ...model.Message) *Backend {
	return &Backend{
		Window:         window,
		Responses:      responses,
		DefaultContent: "default response",
	}
}

// Text builds a plain assistant response.
func Text(content string, tokens int) model.Message {
	return model.NewAgentMessage(nil, content, model.WithTokenCount(tokens))
}

// Request builds a function request response. Missing ids are numbered.
func Request(calls ...model.FunctionRequest) model.Message {
	for i := range calls {
		if calls[i].Args == nil {
			calls[i].Args = map[string]any{}
		}
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d", i+1)
		}
	}
	return model.NewFunctionRequestMessage(nil, calls, model.WithTokenCount(1))
}

// Name returns "scripted".
func (b *Backend) Name() string { return "scripted" }

// ContextWindow returns Window.
func (b *Backend) ContextWindow() int { return b.Window }

// GetCompletion records the call and returns the next scripted response.
func (b *Backend) GetCompletion(_ context.Context, messages model.MessageQueue, functions []model.FunctionSchema) (model.Message, error) {
	return b.next(Call{Messages: messages.Copy(), Functions: functions})
}

// CallFunction records the call and returns the next scripted response.
func (b *Backend) CallFunction(_ context.Context, messages model.MessageQueue, function model.FunctionSchema) (model.Message, error) {
	return b.next(Call{Forced: true, Messages: messages.Copy(), Functions: []model.FunctionSchema{function}})
}

func (b *Backend) next(call Call) (model.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := len(b.calls)
	b.calls = append(b.calls, call)
	if i < len(b.Errors) && b.Errors[i] != nil {
		return model.Message{}, b.Errors[i]
	}
	if i < len(b.Responses) {
		return b.Responses[i], nil
	}
	return Text(b.DefaultContent, 2), nil
}

// Calls returns the recorded calls.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallCount returns the number of requests made.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}
