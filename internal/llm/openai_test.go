package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/tokenizer"
)

type capturedRequest struct {
	Messages []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		ToolCallID string `json:"tool_call_id"`
		ToolCalls  []struct {
			ID string `json:"id"`
		} `json:"tool_calls"`
	} `json:"messages"`
	Tools []struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools"`
	ToolChoice json.RawMessage `json:"tool_choice"`
}

func newTestBackend(t *testing.T, response string, captured *capturedRequest) *OpenAIBackend {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	b, err := NewOpenAIBackend(Options{
		APIKey:    "test-key",
		Model:     "gpt-4o",
		BaseURL:   server.URL,
		Tokenizer: tokenizer.WordCounter{},
	})
	require.NoError(t, err)
	return b
}

func TestOpenAIBackend_GetCompletionText(t *testing.T) {
	var captured capturedRequest
	b := newTestBackend(t, `{
		"id": "chatcmpl-1",
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
	}`, &captured)

	history := model.NewMessageQueue(
		model.NewSystemMessage(nil, "be brief"),
		model.NewUserMessage(nil, "hello"),
	)
	msg, err := b.GetCompletion(context.Background(), history, nil)
	require.NoError(t, err)

	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Equal(t, "Hi there", msg.Content)
	assert.Equal(t, 3, msg.TokenCount)
	assert.False(t, msg.IsFunctionRequest())

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Empty(t, captured.Tools)
}

func TestOpenAIBackend_ToolCalls(t *testing.T) {
	var captured capturedRequest
	b := newTestBackend(t, `{
		"id": "chatcmpl-2",
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "", "tool_calls": [
			{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Oslo\"}"}},
			{"id": "", "type": "function", "function": {"name": "get_time", "arguments": ""}}
		]}, "finish_reason": "tool_calls"}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 9, "total_tokens": 29}
	}`, &captured)

	schema := model.FunctionSchema{Name: "get_weather", Parameters: model.ParametersSchema{Type: "object"}}
	msg, err := b.GetCompletion(context.Background(), model.NewMessageQueue(model.NewUserMessage(nil, "weather?")),
		[]model.FunctionSchema{schema})
	require.NoError(t, err)

	require.True(t, msg.IsFunctionRequest())
	require.Len(t, msg.Requests, 2)
	assert.Equal(t, "call_1", msg.Requests[0].ID)
	assert.Equal(t, "get_weather", msg.Requests[0].Name)
	assert.Equal(t, map[string]any{"city": "Oslo"}, msg.Requests[0].Args)
	assert.NotEmpty(t, msg.Requests[1].ID)
	assert.Empty(t, msg.Requests[1].Args)
	assert.Equal(t, "Request to run functions [get_weather get_time]", msg.Content)

	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "get_weather", captured.Tools[0].Function.Name)
}

func TestOpenAIBackend_CallFunctionForcesTool(t *testing.T) {
	var captured capturedRequest
	b := newTestBackend(t, `{
		"choices": [{"index": 0, "message": {"role": "assistant", "tool_calls": [
			{"id": "call_9", "type": "function", "function": {"name": "update_context", "arguments": "{}"}}
		]}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
	}`, &captured)

	schema := model.FunctionSchema{Name: "update_context", Parameters: model.ParametersSchema{Type: "object"}}
	msg, err := b.CallFunction(context.Background(), model.NewMessageQueue(model.NewUserMessage(nil, "hi")), schema)
	require.NoError(t, err)
	require.Len(t, msg.Requests, 1)
	assert.Equal(t, "update_context", msg.Requests[0].Name)

	var choice struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	require.NoError(t, json.Unmarshal(captured.ToolChoice, &choice))
	assert.Equal(t, "function", choice.Type)
	assert.Equal(t, "update_context", choice.Function.Name)
}

func TestOpenAIBackend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "upstream down", "type": "server_error"}}`))
	}))
	defer server.Close()

	b, err := NewOpenAIBackend(Options{APIKey: "k", Model: "gpt-4o", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = b.GetCompletion(context.Background(), model.NewMessageQueue(model.NewUserMessage(nil, "hi")), nil)
	assert.Error(t, err)
}

func TestToOpenAIMessages_ToolTraffic(t *testing.T) {
	answered := model.NewFunctionRequestMessage(nil, []model.FunctionRequest{{ID: "a", Name: "f", Args: map[string]any{}}})
	unanswered := model.NewFunctionRequestMessage(nil, []model.FunctionRequest{{ID: "b", Name: "g", Args: map[string]any{}}})

	out := toOpenAIMessages(model.NewMessageQueue(
		model.NewFunctionResponseMessage(nil, "old", "z", "orphan"),
		answered,
		model.NewFunctionResponseMessage(nil, "f", "a", "ok"),
		unanswered,
	))

	require.Len(t, out, 4)
	assert.Equal(t, "user", out[0].Role)
	assert.Contains(t, out[0].Content, "orphan")
	assert.Len(t, out[1].ToolCalls, 1)
	assert.Equal(t, "tool", out[2].Role)
	assert.Equal(t, "a", out[2].ToolCallID)
	assert.Empty(t, out[3].ToolCalls)
	assert.Equal(t, "Request to run functions [g]", out[3].Content)
}

func TestContextWindowFor(t *testing.T) {
	n, ok := ContextWindowFor("gpt-4o")
	assert.True(t, ok)
	assert.Equal(t, 128000, n)

	n, ok = ContextWindowFor("gpt-4o-2024-08-06")
	assert.True(t, ok)
	assert.Equal(t, 128000, n)

	n, ok = ContextWindowFor("gpt-4-0613")
	assert.True(t, ok)
	assert.Equal(t, 8192, n)

	_, ok = ContextWindowFor("mystery-model")
	assert.False(t, ok)

	_, err := NewOpenAIBackend(Options{APIKey: "k", Model: "mystery-model"})
	assert.ErrorIs(t, err, model.ErrValidation)

	b, err := NewOpenAIBackend(Options{APIKey: "k", Model: "mystery-model", ContextWindow: 4000})
	require.NoError(t, err)
	assert.Equal(t, 4000, b.ContextWindow())

	_, err = NewBackend("nope", Options{})
	assert.ErrorIs(t, err, model.ErrValidation)
}
