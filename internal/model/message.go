// Package model defines the data structures shared by the turn orchestration engine.
package model

import (
	"fmt"
	"reflect"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleFunction  Role = "function"
)

// DefaultAgentName is used for assistant messages that do not name their agent.
const DefaultAgentName = "assistant"

// Tokenizer counts the tokens a backend charges for a piece of text.
type Tokenizer interface {
	CountTokens(text string) int
}

// TokenizerFunc adapts an ordinary function to the Tokenizer interface.
type TokenizerFunc func(text string) int

// CountTokens calls f(text).
func (f TokenizerFunc) CountTokens(text string) int {
	return f(text)
}

// Message is a single unit of dialogue. Values are treated as immutable once
// built; helpers that change a message return a modified copy.
type Message struct {
	// Content
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`

	// Role-specific metadata
	AgentName    string `json:"agent_name,omitempty"`
	FunctionName string `json:"function_name,omitempty"`
	FunctionID   string `json:"function_id,omitempty"`

	// Function-call requests (assistant messages only)
	FunctionCall bool              `json:"function_call,omitempty"`
	Requests     []FunctionRequest `json:"requests,omitempty"`
}

// MessageOption customizes a message built by NewMessage.
type MessageOption func(*messageOptions)

type messageOptions struct {
	tokenCount   *int
	agentName    string
	functionName string
	functionID   string
}

// WithTokenCount overrides the tokenizer-derived token count.
func WithTokenCount(n int) MessageOption {
	return func(o *messageOptions) {
		o.tokenCount = &n
	}
}

// WithAgentName records the agent that produced the message.
func WithAgentName(name string) MessageOption {
	return func(o *messageOptions) {
		o.agentName = name
	}
}

// WithFunction correlates the message with a function name and request id.
func WithFunction(name, id string) MessageOption {
	return func(o *messageOptions) {
		o.functionName = name
		o.functionID = id
	}
}

// NewMessage builds a message, counting its tokens with tok unless
// WithTokenCount is given. A nil tokenizer yields a zero count.
func NewMessage(tok Tokenizer, role Role, content string, opts ...MessageOption) Message {
	var o messageOptions
	for _, opt := range opts {
		opt(&o)
	}

	m := Message{
		Role:         role,
		Content:      content,
		AgentName:    o.agentName,
		FunctionName: o.functionName,
		FunctionID:   o.functionID,
	}

	switch {
	case o.tokenCount != nil:
		m.TokenCount = *o.tokenCount
	case tok != nil:
		m.TokenCount = tok.CountTokens(content)
	}

	return m
}

// NewUserMessage builds a user message.
func NewUserMessage(tok Tokenizer, content string, opts ...MessageOption) Message {
	return NewMessage(tok, RoleUser, content, opts...)
}

// NewSystemMessage builds a system message.
func NewSystemMessage(tok Tokenizer, content string, opts ...MessageOption) Message {
	return NewMessage(tok, RoleSystem, content, opts...)
}

// NewAgentMessage builds an assistant message. The agent name defaults to
// DefaultAgentName.
func NewAgentMessage(tok Tokenizer, content string, opts ...MessageOption) Message {
	m := NewMessage(tok, RoleAssistant, content, opts...)
	if m.AgentName == "" {
		m.AgentName = DefaultAgentName
	}
	return m
}

// NewFunctionResponseMessage builds a function result correlated by name and id.
func NewFunctionResponseMessage(tok Tokenizer, name, id, content string, opts ...MessageOption) Message {
	opts = append([]MessageOption{WithFunction(name, id)}, opts...)
	return NewMessage(tok, RoleFunction, content, opts...)
}

// IsFunctionRequest reports whether the message carries function-call requests.
func (m Message) IsFunctionRequest() bool {
	return m.FunctionCall
}

// Equal reports whether two messages are field-wise equal. Resolved function
// items are compared by name since executables have no identity.
func (m Message) Equal(other Message) bool {
	if m.Role != other.Role ||
		m.Content != other.Content ||
		m.TokenCount != other.TokenCount ||
		m.AgentName != other.AgentName ||
		m.FunctionName != other.FunctionName ||
		m.FunctionID != other.FunctionID ||
		m.FunctionCall != other.FunctionCall ||
		len(m.Requests) != len(other.Requests) {
		return false
	}
	for i := range m.Requests {
		if !m.Requests[i].equal(other.Requests[i]) {
			return false
		}
	}
	return true
}

func (r FunctionRequest) equal(other FunctionRequest) bool {
	if r.ID != other.ID || r.Name != other.Name {
		return false
	}
	if (r.Item == nil) != (other.Item == nil) {
		return false
	}
	if r.Item != nil && r.Item.Name != other.Item.Name {
		return false
	}
	if len(r.Args) == 0 && len(other.Args) == 0 {
		return true
	}
	return reflect.DeepEqual(r.Args, other.Args)
}

// String renders the message for logs.
func (m Message) String() string {
	return fmt.Sprintf("[%s] %s", m.Role, m.Content)
}

func (m Message) clone() Message {
	if m.Requests != nil {
		requests := make([]FunctionRequest, len(m.Requests))
		copy(requests, m.Requests)
		m.Requests = requests
	}
	return m
}
