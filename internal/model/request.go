package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FunctionRequest is an invocation proposed by the backend.
type FunctionRequest struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`

	// Item is attached once the name resolves against the offered functions.
	Item *FunctionItem `json:"item,omitempty"`
}

// NewFunctionRequestMessage builds the assistant message carrying requests.
func NewFunctionRequestMessage(tok Tokenizer, requests []FunctionRequest, opts ...MessageOption) Message {
	names := make([]string, len(requests))
	for i, r := range requests {
		names[i] = r.Name
	}
	m := NewAgentMessage(tok, fmt.Sprintf("Request to run functions [%s]", strings.Join(names, " ")), opts...)
	m.FunctionCall = true
	m.Requests = append(make([]FunctionRequest, 0, len(requests)), requests...)
	return m
}

// WithRequests returns a copy of m carrying requests.
func (m Message) WithRequests(requests []FunctionRequest) Message {
	m.Requests = append(make([]FunctionRequest, 0, len(requests)), requests...)
	return m
}

// ApprovalsRequired lists the resolved requests whose functions need approval.
func (m Message) ApprovalsRequired() []FunctionRequest {
	var pending []FunctionRequest
	for _, r := range m.Requests {
		if r.Item != nil && !r.Item.AutoCall {
			pending = append(pending, r)
		}
	}
	return pending
}

// Execute runs the resolved function and returns its response. On failure
// the response carries the error text and the error is returned as well. An
// unresolved request gets a not-found response and ErrFunctionNotFound.
func (r FunctionRequest) Execute(ctx context.Context, tok Tokenizer) (Message, error) {
	if r.Item == nil {
		return r.NotFound(tok), fmt.Errorf("%w: %s", ErrFunctionNotFound, r.Name)
	}
	result, err := r.Item.Call(ctx, r.Args)
	if err != nil {
		return NewFunctionResponseMessage(tok, r.Name, r.ID, fmt.Sprintf("Error running function %s: %v", r.Name, err)), err
	}
	return NewFunctionResponseMessage(tok, r.Name, r.ID, FormatResult(result)), nil
}

// Deny answers the request with a denial.
func (r FunctionRequest) Deny(tok Tokenizer) Message {
	return NewFunctionResponseMessage(tok, r.Name, r.ID, fmt.Sprintf("Function %s denied.", r.Name))
}

// NotFound answers a request whose name matched no offered function.
func (r FunctionRequest) NotFound(tok Tokenizer) Message {
	return NewFunctionResponseMessage(tok, r.Name, r.ID, fmt.Sprintf("Function %s not found in list of functions.", r.Name))
}

// FormatResult stringifies a function result. Strings pass through, scalars
// use their default formatting and everything else is JSON-encoded.
func FormatResult(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
