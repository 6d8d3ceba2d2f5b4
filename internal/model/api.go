package model

import (
	"time"
)

// ConversationInfo summarizes a hosted conversation.
type ConversationInfo struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	UserID       string            `json:"user_id"`
	Title        string            `json:"title"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	MessageCount int               `json:"message_count"`
	Context      Context           `json:"context,omitempty"`
	Pending      bool              `json:"pending"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title         string            `json:"title"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OpeningPrompt string            `json:"opening_prompt,omitempty"`
	Context       Context           `json:"context,omitempty"`
}

// UpdateConversationRequest is the request to update a conversation.
type UpdateConversationRequest struct {
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationInfo `json:"conversations"`
	Total         int                `json:"total"`
	HasMore       bool               `json:"has_more"`
}

// SendMessageRequest is the request to send a user message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ApproveRequest approves pending function requests by id. Requests not
// listed are denied.
type ApproveRequest struct {
	ApprovedIDs []string `json:"approved_ids"`
}

// TurnResponse is the outcome of one turn.
type TurnResponse struct {
	Message Message           `json:"message"`
	Pending []FunctionRequest `json:"pending,omitempty"`

	// LimitReached is set when the turn stopped at the auto-call round
	// limit. Message is then the last unanswered request.
	LimitReached bool `json:"limit_reached,omitempty"`
}

// ListMessagesResponse is the response for listing a transcript.
type ListMessagesResponse struct {
	Messages   []Message `json:"messages"`
	TokenCount int       `json:"token_count"`
}
