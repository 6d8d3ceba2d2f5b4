package conversation

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
)

// Observer receives the events of every turn. Implementations must not block.
type Observer interface {
	OnEvent(ctx context.Context, event model.TurnEvent)
}

// ObserverFunc adapts an ordinary function to the Observer interface.
type ObserverFunc func(ctx context.Context, event model.TurnEvent)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(ctx context.Context, event model.TurnEvent) {
	f(ctx, event)
}

// Observers fans events out in order.
type Observers []Observer

// OnEvent forwards event to every observer.
func (o Observers) OnEvent(ctx context.Context, event model.TurnEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(ctx, event)
		}
	}
}

// LogObserver writes events to a zap logger.
type LogObserver struct {
	log *logger.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(log *logger.Logger) *LogObserver {
	return &LogObserver{log: logger.OrNop(log).Named("turn")}
}

// OnEvent logs failures at warn and everything else at debug.
func (o *LogObserver) OnEvent(_ context.Context, e model.TurnEvent) {
	fields := []zap.Field{
		zap.String("conversation_id", e.ConversationID),
		zap.String("event", string(e.Type)),
		zap.Int("round", e.Round),
	}
	if e.Source != "" {
		fields = append(fields, zap.String("source", e.Source))
	}
	if e.Function != "" {
		fields = append(fields, zap.String("function", e.Function), zap.String("function_id", e.FunctionID))
	}
	if e.Outcome != "" {
		fields = append(fields, zap.String("outcome", e.Outcome))
	}
	if e.Count != 0 {
		fields = append(fields, zap.Int("count", e.Count))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}

	switch {
	case e.Type == model.EventTurnFailed, e.Type == model.EventAutoCallLimit, e.Outcome == model.OutcomeFailed:
		o.log.Warn("turn event", fields...)
	default:
		o.log.Debug("turn event", fields...)
	}
}
