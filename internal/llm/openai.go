package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
)

// OpenAIBackend is the OpenAI chat completions backend.
type OpenAIBackend struct {
	client        *openai.Client
	model         string
	contextWindow int
	maxTokens     int
	temperature   float32
	agentName     string
	tokenizer     model.Tokenizer
	log           *logger.Logger
}

// NewOpenAIBackend creates a new OpenAI backend.
func NewOpenAIBackend(opts Options) (*OpenAIBackend, error) {
	if opts.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o"
	}
	window, err := resolveContextWindow(opts)
	if err != nil {
		return nil, err
	}

	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	maxTokens := opts.MaxResponseTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &OpenAIBackend{
		client:        openai.NewClientWithConfig(config),
		model:         opts.Model,
		contextWindow: window,
		maxTokens:     maxTokens,
		temperature:   float32(opts.Temperature),
		agentName:     opts.AgentName,
		tokenizer:     opts.Tokenizer,
		log:           logger.OrNop(opts.Logger).Named("openai"),
	}, nil
}

// Name returns the provider name.
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// ContextWindow returns the model's token window.
func (b *OpenAIBackend) ContextWindow() int {
	return b.contextWindow
}

// GetCompletion requests a completion offering functions as tools.
func (b *OpenAIBackend) GetCompletion(ctx context.Context, messages model.MessageQueue, functions []model.FunctionSchema) (model.Message, error) {
	req := b.newRequest(messages)
	if len(functions) > 0 {
		req.Tools = toOpenAITools(functions)
	}
	return b.complete(ctx, kindCompletion, req, messages)
}

// CallFunction requests a completion forced to call function.
func (b *OpenAIBackend) CallFunction(ctx context.Context, messages model.MessageQueue, function model.FunctionSchema) (model.Message, error) {
	req := b.newRequest(messages)
	req.Tools = toOpenAITools([]model.FunctionSchema{function})
	req.ToolChoice = openai.ToolChoice{
		Type:     openai.ToolTypeFunction,
		Function: openai.ToolFunction{Name: function.Name},
	}
	return b.complete(ctx, kindFunction, req, messages)
}

func (b *OpenAIBackend) newRequest(messages model.MessageQueue) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   b.maxTokens,
		Temperature: b.temperature,
	}
}

func (b *OpenAIBackend) complete(ctx context.Context, kind string, req openai.ChatCompletionRequest, messages model.MessageQueue) (model.Message, error) {
	start := time.Now()

	resp, err := b.client.CreateChatCompletion(ctx, req)
	metrics.RecordBackendRequest(b.Name(), kind, statusOf(err), time.Since(start).Seconds(),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if err != nil {
		return model.Message{}, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Message{}, errors.New("openai completion returned no choices")
	}

	if rec, ok := b.tokenizer.(UsageRecorder); ok && resp.Usage.PromptTokens > 0 {
		rec.RecordUsage(messages.Text(), resp.Usage.PromptTokens)
	}

	choice := resp.Choices[0]
	b.log.Debug("completion received",
		zap.String("kind", kind),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("tokens_in", resp.Usage.PromptTokens),
		zap.Int("tokens_out", resp.Usage.CompletionTokens),
	)

	opts := []model.MessageOption{model.WithAgentName(b.agentName)}
	if resp.Usage.CompletionTokens > 0 {
		opts = append(opts, model.WithTokenCount(resp.Usage.CompletionTokens))
	}

	if len(choice.Message.ToolCalls) > 0 {
		requests, err := parseToolCalls(choice.Message.ToolCalls)
		if err != nil {
			return model.Message{}, err
		}
		return model.NewFunctionRequestMessage(b.tokenizer, requests, opts...), nil
	}
	return model.NewAgentMessage(b.tokenizer, choice.Message.Content, opts...), nil
}

func parseToolCalls(calls []openai.ToolCall) ([]model.FunctionRequest, error) {
	requests := make([]model.FunctionRequest, 0, len(calls))
	for _, call := range calls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to decode arguments for %s: %w", call.Function.Name, err)
			}
		}
		id := call.ID
		if id == "" {
			id = uuid.New().String()
		}
		requests = append(requests, model.FunctionRequest{
			ID:   id,
			Name: call.Function.Name,
			Args: args,
		})
	}
	return requests, nil
}

func toOpenAITools(functions []model.FunctionSchema) []openai.Tool {
	tools := make([]openai.Tool, len(functions))
	for i, f := range functions {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        f.Name,
				Description: f.Description,
				Parameters:  f.Parameters,
			},
		}
	}
	return tools
}

// toOpenAIMessages converts a composed history. Tool calls and their results
// are only sent as tool traffic when every call has a result in the history;
// otherwise both sides are rendered as plain text.
func toOpenAIMessages(messages model.MessageQueue) []openai.ChatCompletionMessage {
	answered := make(map[string]bool)
	for _, m := range messages {
		if m.Role == model.RoleFunction && m.FunctionID != "" {
			answered[m.FunctionID] = true
		}
	}

	called := make(map[string]bool)
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case model.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case model.RoleFunction:
			if called[m.FunctionID] {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    m.Content,
					ToolCallID: m.FunctionID,
				})
				continue
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: functionResultText(m)})
		case model.RoleAssistant:
			if m.IsFunctionRequest() && allAnswered(m.Requests, answered) {
				calls := make([]openai.ToolCall, len(m.Requests))
				for i, r := range m.Requests {
					args, _ := json.Marshal(r.Args)
					calls[i] = openai.ToolCall{
						ID:   r.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      r.Name,
							Arguments: string(args),
						},
					}
					called[r.ID] = true
				}
				out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, ToolCalls: calls})
				continue
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		}
	}
	return out
}

func allAnswered(requests []model.FunctionRequest, answered map[string]bool) bool {
	if len(requests) == 0 {
		return false
	}
	for _, r := range requests {
		if !answered[r.ID] {
			return false
		}
	}
	return true
}
