package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
)

// AnthropicBackend is the Anthropic messages backend. Function traffic in the
// history is rendered as text; functions are offered as tools.
type AnthropicBackend struct {
	client        *anthropic.Client
	model         string
	contextWindow int
	maxTokens     int
	agentName     string
	tokenizer     model.Tokenizer
	log           *logger.Logger
}

// NewAnthropicBackend creates a new Anthropic backend.
func NewAnthropicBackend(opts Options) (*AnthropicBackend, error) {
	if opts.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if opts.Model == "" {
		opts.Model = "claude-3-5-sonnet-20241022"
	}
	window, err := resolveContextWindow(opts)
	if err != nil {
		return nil, err
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	maxTokens := opts.MaxResponseTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &AnthropicBackend{
		client:        anthropic.NewClient(clientOpts...),
		model:         opts.Model,
		contextWindow: window,
		maxTokens:     maxTokens,
		agentName:     opts.AgentName,
		tokenizer:     opts.Tokenizer,
		log:           logger.OrNop(opts.Logger).Named("anthropic"),
	}, nil
}

// Name returns the provider name.
func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

// ContextWindow returns the model's token window.
func (b *AnthropicBackend) ContextWindow() int {
	return b.contextWindow
}

// GetCompletion requests a completion offering functions as tools.
func (b *AnthropicBackend) GetCompletion(ctx context.Context, messages model.MessageQueue, functions []model.FunctionSchema) (model.Message, error) {
	return b.complete(ctx, kindCompletion, messages, functions)
}

// CallFunction offers only function and forces the model to call it through
// tool_choice.
func (b *AnthropicBackend) CallFunction(ctx context.Context, messages model.MessageQueue, function model.FunctionSchema) (model.Message, error) {
	choice := option.WithJSONSet("tool_choice", map[string]string{"type": "tool", "name": function.Name})
	return b.complete(ctx, kindFunction, messages, []model.FunctionSchema{function}, choice)
}

func (b *AnthropicBackend) complete(ctx context.Context, kind string, messages model.MessageQueue, functions []model.FunctionSchema, reqOpts ...option.RequestOption) (model.Message, error) {
	start := time.Now()

	system, turns := toAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.F(b.model),
		MaxTokens: anthropic.F(int64(b.maxTokens)),
		Messages:  anthropic.F(turns),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(system),
		}})
	}
	if len(functions) > 0 {
		params.Tools = anthropic.F(toAnthropicTools(functions))
	}

	resp, err := b.client.Messages.New(ctx, params, reqOpts...)
	if err != nil {
		metrics.RecordBackendRequest(b.Name(), kind, "error", time.Since(start).Seconds(), 0, 0)
		return model.Message{}, fmt.Errorf("anthropic completion failed: %w", err)
	}
	tokensIn, tokensOut := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	metrics.RecordBackendRequest(b.Name(), kind, "success", time.Since(start).Seconds(), tokensIn, tokensOut)

	if rec, ok := b.tokenizer.(UsageRecorder); ok && tokensIn > 0 {
		rec.RecordUsage(messages.Text(), tokensIn)
	}

	b.log.Debug("completion received",
		zap.String("kind", kind),
		zap.String("stop_reason", string(resp.StopReason)),
		zap.Int("tokens_in", tokensIn),
		zap.Int("tokens_out", tokensOut),
	)

	var text strings.Builder
	var requests []model.FunctionRequest
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.ContentBlockTypeText:
			text.WriteString(block.Text)
		case anthropic.ContentBlockTypeToolUse:
			args, err := decodeToolInput(block.Input)
			if err != nil {
				return model.Message{}, fmt.Errorf("failed to decode arguments for %s: %w", block.Name, err)
			}
			id := block.ID
			if id == "" {
				id = uuid.New().String()
			}
			requests = append(requests, model.FunctionRequest{ID: id, Name: block.Name, Args: args})
		}
	}

	opts := []model.MessageOption{model.WithAgentName(b.agentName)}
	if tokensOut > 0 {
		opts = append(opts, model.WithTokenCount(tokensOut))
	}
	if len(requests) > 0 {
		return model.NewFunctionRequestMessage(b.tokenizer, requests, opts...), nil
	}
	return model.NewAgentMessage(b.tokenizer, text.String(), opts...), nil
}

func decodeToolInput(input any) (map[string]any, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	args := map[string]any{}
	if string(data) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func toAnthropicTools(functions []model.FunctionSchema) []anthropic.ToolParam {
	tools := make([]anthropic.ToolParam, len(functions))
	for i, f := range functions {
		tools[i] = anthropic.ToolParam{
			Name:        anthropic.F(f.Name),
			Description: anthropic.F(f.Description),
			InputSchema: anthropic.F[interface{}](f.Parameters),
		}
	}
	return tools
}

// toAnthropicMessages extracts system text and folds the remaining history
// into alternating user and assistant turns, starting with a user turn.
func toAnthropicMessages(messages model.MessageQueue) (string, []anthropic.MessageParam) {
	var system []string
	type turn struct {
		role  anthropic.MessageParamRole
		parts []string
	}
	var turns []turn

	add := func(role anthropic.MessageParamRole, text string) {
		if len(turns) > 0 && turns[len(turns)-1].role == role {
			turns[len(turns)-1].parts = append(turns[len(turns)-1].parts, text)
			return
		}
		turns = append(turns, turn{role: role, parts: []string{text}})
	}

	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			system = append(system, m.Content)
		case model.RoleUser:
			add(anthropic.MessageParamRoleUser, m.Content)
		case model.RoleFunction:
			add(anthropic.MessageParamRoleUser, functionResultText(m))
		case model.RoleAssistant:
			if len(turns) == 0 {
				add(anthropic.MessageParamRoleUser, "Hello.")
			}
			add(anthropic.MessageParamRoleAssistant, m.Content)
		}
	}

	out := make([]anthropic.MessageParam, len(turns))
	for i, t := range turns {
		out[i] = anthropic.MessageParam{
			Role: anthropic.F(t.role),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(strings.Join(t.parts, "\n\n")),
				},
			}),
		}
	}
	return strings.Join(system, "\n\n"), out
}
