// Package function selects and generates the functions offered to a backend
// on each turn.
package function

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// Ranker reorders candidate functions by relevance to the turn.
type Ranker interface {
	Rank(candidates []model.FunctionItem, input, history model.MessageQueue, c model.Context) []model.FunctionItem
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// MaxFunctionTokens caps the summed token count of offered functions.
	// Zero leaves it uncapped.
	MaxFunctionTokens int

	// Ranker, when set, reorders candidates before the cap is applied.
	Ranker Ranker

	Logger *logger.Logger
}

// Handler picks which candidate functions are offered this turn.
type Handler struct {
	maxTokens int
	ranker    Ranker
	log       *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.MaxFunctionTokens < 0 {
		return nil, model.Validationf("max function tokens must not be negative, got %d", opts.MaxFunctionTokens)
	}
	return &Handler{
		maxTokens: opts.MaxFunctionTokens,
		ranker:    opts.Ranker,
		log:       logger.OrNop(opts.Logger).Named("functions"),
	}, nil
}

// SelectFunctions returns the leading run of candidates whose cumulative token
// count fits the cap, preserving order. Every candidate must have a known
// token count.
func (h *Handler) SelectFunctions(_ context.Context, candidates []model.FunctionItem, input, history model.MessageQueue, c model.Context) ([]model.FunctionItem, error) {
	for _, f := range candidates {
		if f.TokenCount < 0 {
			return nil, model.Validationf("function %s has no token count", f.Name)
		}
	}

	ordered := candidates
	if h.ranker != nil && len(candidates) > 1 {
		ordered = h.ranker.Rank(candidates, input, history, c)
	}

	if h.maxTokens == 0 {
		return append([]model.FunctionItem(nil), ordered...), nil
	}

	selected := make([]model.FunctionItem, 0, len(ordered))
	total := 0
	for _, f := range ordered {
		if total+f.TokenCount > h.maxTokens {
			break
		}
		total += f.TokenCount
		selected = append(selected, f)
	}

	if len(selected) < len(ordered) {
		h.log.Debug("trimmed offered functions",
			zap.Int("max_tokens", h.maxTokens),
			zap.Int("offered", len(selected)),
			zap.Int("dropped", len(ordered)-len(selected)),
		)
	}
	return selected, nil
}
