package model

import (
	"time"
)

// EventType represents the type of turn event.
type EventType string

const (
	EventContextUpdated     EventType = "context_updated"
	EventFunctionsGenerated EventType = "functions_generated"
	EventCacheHit           EventType = "cache_hit"
	EventCacheMiss          EventType = "cache_miss"
	EventResponse           EventType = "response"
	EventFunctionResolved   EventType = "function_resolved"
	EventApprovalRequired   EventType = "approval_required"
	EventAutoCallLimit      EventType = "autocall_limit"
	EventTurnFailed         EventType = "turn_failed"
)

// Function resolution outcomes.
const (
	OutcomeExecuted = "executed"
	OutcomeFailed   = "failed"
	OutcomeNotFound = "not_found"
	OutcomePending  = "pending"
	OutcomeDenied   = "denied"
)

// TurnEvent describes one observable step of a conversation turn.
type TurnEvent struct {
	ConversationID string         `json:"conversation_id"`
	TenantID       string         `json:"tenant_id,omitempty"`
	Type           EventType      `json:"type"`
	Round          int            `json:"round"`
	Source         string         `json:"source,omitempty"`
	Function       string         `json:"function,omitempty"`
	FunctionID     string         `json:"function_id,omitempty"`
	Outcome        string         `json:"outcome,omitempty"`
	Count          int            `json:"count,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
