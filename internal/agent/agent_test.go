package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/function"
	"github.com/capitalize-ai/chat-orchestrator/internal/history"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm/llmtest"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/tokenizer"
)

var words = tokenizer.WordCounter{}

func fn(t *testing.T, name string, tokens int, tags ...string) model.FunctionItem {
	t.Helper()
	f, err := model.NewFunctionItem(model.FunctionSpec{Name: name, TokenCount: tokens, Tags: tags},
		func(context.Context, map[string]any) (any, error) { return "ok", nil }, nil)
	require.NoError(t, err)
	return f
}

func newAgent(t *testing.T, backend *llmtest.Backend, settings TokenSettings, opts ...func(*Options)) *Agent {
	t.Helper()
	o := Options{
		Name:          "helper",
		Backend:       backend,
		SystemPrompt:  "you are helpful",
		TokenSettings: settings,
		Tokenizer:     words,
	}
	for _, opt := range opts {
		opt(&o)
	}
	a, err := New(o)
	require.NoError(t, err)
	return a
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = New(Options{Backend: llmtest.New(100), TokenSettings: TokenSettings{MaxFunctionTokens: -1}})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = New(Options{
		Backend:       llmtest.New(100),
		SystemPrompt:  "a very long system prompt indeed",
		Tokenizer:     words,
		TokenSettings: TokenSettings{MaxPrefixTokens: 2},
	})
	assert.ErrorIs(t, err, model.ErrBudget)

	a, err := New(Options{Backend: llmtest.New(100)})
	require.NoError(t, err)
	assert.Equal(t, DefaultMinResponseTokens, a.TokenSettings().MinResponseTokens)
	assert.Equal(t, model.DefaultAgentName, a.Name())
}

func TestAgent_GetResponseMessage(t *testing.T) {
	backend := llmtest.New(100, llmtest.Text("Hi there", 2))
	a := newAgent(t, backend, TokenSettings{MinResponseTokens: 10})

	input := model.NewMessageQueue(model.NewUserMessage(words, "hello friend"))
	hist := model.NewMessageQueue(model.NewAgentMessage(words, "Hello!"))

	got, err := a.GetResponseMessage(context.Background(), input, hist, model.Context{},
		[]model.FunctionItem{fn(t, "lookup", 5)})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", got.Content)
	assert.Equal(t, "helper", got.AgentName)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Forced)
	require.Len(t, calls[0].Functions, 1)
	assert.Equal(t, "lookup", calls[0].Functions[0].Name)

	var contents []string
	for _, m := range calls[0].Messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"you are helpful", "Hello!", "The current context is {}", "hello friend"}, contents)
}

func TestAgent_BudgetArithmetic(t *testing.T) {
	// window 30 - functions 10 - response 10 = 10 tokens for history.
	backend := llmtest.New(30)
	a := newAgent(t, backend, TokenSettings{MinResponseTokens: 10}, func(o *Options) {
		o.SystemPrompt = ""
	})

	input := model.NewMessageQueue(model.NewUserMessage(words, "one two"))
	hist := model.NewMessageQueue(
		model.NewUserMessage(words, "old old old"),
		model.NewAgentMessage(words, "new"),
	)
	candidates := []model.FunctionItem{fn(t, "f", 10)}

	_, err := a.GetResponseMessage(context.Background(), input, hist, model.Context{}, candidates)
	require.NoError(t, err)

	// context 5 + input 2 leaves 3 for history: only "new" fits.
	sent := backend.Calls()[0].Messages
	require.Len(t, sent, 3)
	assert.Equal(t, "new", sent[0].Content)
	assert.LessOrEqual(t, sent.TokenCount(), 10)

	// Larger functions leave no room for mandatory content.
	_, err = a.GetResponseMessage(context.Background(), input, hist, model.Context{},
		[]model.FunctionItem{fn(t, "big", 15)})
	assert.ErrorIs(t, err, model.ErrBudget)
	assert.Equal(t, 1, backend.CallCount())
}

func TestAgent_FunctionCapAndRanking(t *testing.T) {
	backend := llmtest.New(1000)
	a := newAgent(t, backend, TokenSettings{MinResponseTokens: 10, MaxFunctionTokens: 10}, func(o *Options) {
		o.Ranker = function.KeywordRanker{}
	})

	input := model.NewMessageQueue(model.NewUserMessage(words, "check the invoice"))
	_, err := a.GetResponseMessage(context.Background(), input, nil, model.Context{}, []model.FunctionItem{
		fn(t, "weather", 10, "rain"),
		fn(t, "billing", 10, "invoice"),
	})
	require.NoError(t, err)

	offered := backend.Calls()[0].Functions
	require.Len(t, offered, 1)
	assert.Equal(t, "billing", offered[0].Name)
}

func TestAgent_Prefix(t *testing.T) {
	backend := llmtest.New(1000)
	a := newAgent(t, backend, TokenSettings{MinResponseTokens: 10, MaxPrefixTokens: 5}, func(o *Options) {
		o.SystemPrompt = "be kind"
		o.Prefix = history.NewStatementGenerator(words, "first statement here", "second one")
	})

	_, err := a.GetResponseMessage(context.Background(), model.NewMessageQueue(model.NewUserMessage(words, "hi")), nil, model.Context{}, nil)
	require.NoError(t, err)

	sent := backend.Calls()[0].Messages
	assert.Equal(t, "be kind", sent[0].Content)
	assert.Equal(t, "second one", sent[1].Content)
}

func TestAgent_CallFunction(t *testing.T) {
	backend := llmtest.New(1000, llmtest.Request(model.FunctionRequest{Name: "update_context"}))
	a := newAgent(t, backend, TokenSettings{MinResponseTokens: 10})

	got, err := a.CallFunction(context.Background(),
		model.NewMessageQueue(model.NewUserMessage(words, "which topic?")), nil, model.Context{}, fn(t, "update_context", 20))
	require.NoError(t, err)
	assert.True(t, got.IsFunctionRequest())

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Forced)
	assert.Equal(t, "update_context", calls[0].Functions[0].Name)

	unknown, err := model.NewFunctionItem(model.FunctionSpec{Name: "mystery"},
		func(context.Context, map[string]any) (any, error) { return nil, nil }, nil)
	require.NoError(t, err)
	_, err = a.CallFunction(context.Background(), nil, nil, model.Context{}, unknown)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAgent_BackendError(t *testing.T) {
	boom := errors.New("upstream down")
	backend := llmtest.New(1000)
	backend.Errors = []error{boom}
	a := newAgent(t, backend, TokenSettings{MinResponseTokens: 10})

	_, err := a.GetResponseMessage(context.Background(), model.NewMessageQueue(model.NewUserMessage(words, "hi")), nil, model.Context{}, nil)
	assert.ErrorIs(t, err, boom)
}
