package service

import (
	"context"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/pkg/metrics"
)

// MetricsObserver turns conversation events into prometheus metrics.
type MetricsObserver struct{}

// OnEvent records function resolutions, cache lookups and context updates.
func (MetricsObserver) OnEvent(_ context.Context, e model.TurnEvent) {
	switch e.Type {
	case model.EventFunctionResolved:
		metrics.RecordFunctionCall(e.Function, e.Outcome)
	case model.EventCacheHit:
		metrics.RecordCacheLookup(true)
	case model.EventCacheMiss:
		metrics.RecordCacheLookup(false)
	case model.EventContextUpdated:
		metrics.ContextUpdatesTotal.WithLabelValues(e.Source).Inc()
	}
}
