package contextmgr

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// UpdateFunctionName is the function the backend calls to report context.
const UpdateFunctionName = "update_context"

// ContextItem is one fact a context manager can track.
type ContextItem struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// Type defaults to "string".
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// ValidValues restricts accepted values when set.
	ValidValues []any `json:"valid_values,omitempty" yaml:"valid_values,omitempty"`
}

// Accepts reports whether v is acceptable for the item.
func (ci ContextItem) Accepts(v any) bool {
	if len(ci.ValidValues) == 0 {
		return true
	}
	want := fmt.Sprint(v)
	for _, valid := range ci.ValidValues {
		if fmt.Sprint(valid) == want {
			return true
		}
	}
	return false
}

// ToFunctionItem builds the non-auto update_context function with one
// optional parameter per item.
func ToFunctionItem(items []ContextItem, tok model.Tokenizer) (model.FunctionItem, error) {
	params := make([]model.FunctionParameter, len(items))
	for i, ci := range items {
		typ := ci.Type
		if typ == "" {
			typ = "string"
		}
		params[i] = model.FunctionParameter{
			Name:        ci.Name,
			Type:        typ,
			Description: ci.Description,
			Enum:        ci.ValidValues,
		}
	}

	return model.NewFunctionItem(model.FunctionSpec{
		Name:        UpdateFunctionName,
		Description: "Update the current context",
		Params:      params,
		Required:    []string{},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args, nil
	}, tok)
}

// LoadItems reads a YAML list of context items.
func LoadItems(r io.Reader) ([]ContextItem, error) {
	var items []ContextItem
	if err := yaml.NewDecoder(r).Decode(&items); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode context items: %w", err)
	}
	for _, ci := range items {
		if ci.Name == "" {
			return nil, model.Validationf("context item without a name")
		}
	}
	return items, nil
}

// LoadItemsFile reads context items from path.
func LoadItemsFile(path string) ([]ContextItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open context items: %w", err)
	}
	defer f.Close()
	return LoadItems(f)
}
