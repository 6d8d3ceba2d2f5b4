package model

import (
	"encoding/json"
	"fmt"
)

// Context holds named facts derived from the running dialogue. Values must
// be JSON-serializable.
type Context map[string]any

// Clone returns a shallow copy of the context.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge applies updates in place. Later writes win.
func (c Context) Merge(updates Context) {
	for k, v := range updates {
		c[k] = v
	}
}

// String renders the context as JSON with sorted keys.
func (c Context) String() string {
	if len(c) == 0 {
		return "{}"
	}
	data, err := json.Marshal(map[string]any(c))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(c))
	}
	return string(data)
}
