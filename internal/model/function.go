package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
)

// UnknownTokenCount marks a function whose token count was neither supplied
// nor derivable because no tokenizer was available.
const UnknownTokenCount = -1

var functionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Method is the executable bound to a FunctionItem. Arguments have already
// been validated against the item's parameters.
type Method func(ctx context.Context, args map[string]any) (any, error)

// FunctionParameter describes one named argument of a function.
type FunctionParameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Enum        []any  `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// UnmarshalJSON restores enum values to the Go type their declared Type
// implies, so integer enums decode as int rather than float64.
func (p *FunctionParameter) UnmarshalJSON(data []byte) error {
	type plain FunctionParameter
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = FunctionParameter(raw)
	p.Enum = canonicalEnum(p.Type, p.Enum)
	return nil
}

// FunctionSpec holds the inputs for NewFunctionItem.
type FunctionSpec struct {
	Name        string
	Description string
	Params      []FunctionParameter

	// Required lists required parameter names. Nil means every parameter
	// is required; an empty non-nil slice means none are.
	Required []string

	// AutoCall allows execution without external approval.
	AutoCall bool
	Tags     []string

	// TokenCount overrides the schema-derived count when positive.
	TokenCount int

	// MethodRef is the registry name of the executable. Defaults to Name.
	MethodRef string
}

// FunctionItem is a callable function offered to the backend.
type FunctionItem struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Params      []FunctionParameter `json:"params"`
	Required    []string            `json:"required"`
	AutoCall    bool                `json:"auto_call"`
	Tags        []string            `json:"tags,omitempty"`
	TokenCount  int                 `json:"token_count"`
	MethodRef   string              `json:"method"`

	method Method
}

// NewFunctionItem validates spec and binds method. The token count is derived
// from the exported schema with tok unless spec overrides it.
func NewFunctionItem(spec FunctionSpec, method Method, tok Tokenizer) (FunctionItem, error) {
	if !functionNamePattern.MatchString(spec.Name) {
		return FunctionItem{}, Validationf("invalid function name %q", spec.Name)
	}
	if method == nil {
		return FunctionItem{}, Validationf("function %s has no method", spec.Name)
	}

	seen := make(map[string]struct{}, len(spec.Params))
	for _, p := range spec.Params {
		if !functionNamePattern.MatchString(p.Name) {
			return FunctionItem{}, Validationf("function %s: invalid param name %q", spec.Name, p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return FunctionItem{}, Validationf("function %s: duplicate param %s", spec.Name, p.Name)
		}
		if p.Type == "" {
			return FunctionItem{}, Validationf("function %s: param %s has no type", spec.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	required := spec.Required
	if required == nil {
		required = make([]string, 0, len(spec.Params))
		for _, p := range spec.Params {
			required = append(required, p.Name)
		}
	}
	for _, name := range required {
		if _, ok := seen[name]; !ok {
			return FunctionItem{}, Validationf("function %s: required param %s is not declared", spec.Name, name)
		}
	}

	item := FunctionItem{
		Name:        spec.Name,
		Description: spec.Description,
		Params:      make([]FunctionParameter, 0, len(spec.Params)),
		Required:    append([]string{}, required...),
		AutoCall:    spec.AutoCall,
		Tags:        append([]string(nil), spec.Tags...),
		MethodRef:   spec.MethodRef,
		method:      method,
	}
	for _, p := range spec.Params {
		p.Enum = canonicalEnum(p.Type, p.Enum)
		item.Params = append(item.Params, p)
	}
	if item.MethodRef == "" {
		item.MethodRef = item.Name
	}

	switch {
	case spec.TokenCount > 0:
		item.TokenCount = spec.TokenCount
	case tok != nil:
		data, err := json.Marshal(item.Schema())
		if err != nil {
			return FunctionItem{}, Validationf("function %s: schema: %v", spec.Name, err)
		}
		item.TokenCount = tok.CountTokens(string(data))
	default:
		item.TokenCount = UnknownTokenCount
	}

	return item, nil
}

// HasMethod reports whether an executable is bound.
func (f FunctionItem) HasMethod() bool {
	return f.method != nil
}

// WithMethod returns a copy of f bound to method.
func (f FunctionItem) WithMethod(method Method) FunctionItem {
	f.method = method
	return f
}

// Param looks up a declared parameter by name.
func (f FunctionItem) Param(name string) (FunctionParameter, bool) {
	for _, p := range f.Params {
		if p.Name == name {
			return p, true
		}
	}
	return FunctionParameter{}, false
}

// ValidateArgs checks args against the declared parameters and returns a copy
// with enum values coerced to their declared form.
func (f FunctionItem) ValidateArgs(args map[string]any) (map[string]any, error) {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]any, len(args))
	for _, name := range names {
		value := args[name]
		p, ok := f.Param(name)
		if !ok {
			return nil, fmt.Errorf("%w %s", ErrUnknownParameter, name)
		}
		if len(p.Enum) > 0 {
			coerced, ok := matchEnum(p, value)
			if !ok {
				return nil, fmt.Errorf("%w %v for %s", ErrInvalidValue, value, name)
			}
			value = coerced
		}
		out[name] = value
	}

	for _, name := range f.Required {
		if _, ok := out[name]; !ok {
			return nil, Validationf("missing required param %s", name)
		}
	}
	return out, nil
}

// Call validates args and invokes the bound executable.
func (f FunctionItem) Call(ctx context.Context, args map[string]any) (any, error) {
	if f.method == nil {
		return nil, fmt.Errorf("%w: %s has no bound method", ErrExecution, f.Name)
	}
	validated, err := f.ValidateArgs(args)
	if err != nil {
		return nil, err
	}
	result, err := f.method(ctx, validated)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExecution, f.Name, err)
	}
	return result, nil
}

func matchEnum(p FunctionParameter, value any) (any, bool) {
	want := fmt.Sprint(canonicalValue(p.Type, value))
	for _, e := range p.Enum {
		if fmt.Sprint(e) == want {
			return canonicalValue(p.Type, e), true
		}
	}
	return nil, false
}

func canonicalEnum(typ string, enum []any) []any {
	if enum == nil {
		return nil
	}
	out := make([]any, len(enum))
	for i, e := range enum {
		out[i] = canonicalValue(typ, e)
	}
	return out
}

// canonicalValue converts numeric values to int for "integer" and float64 for
// "number". Anything else, including non-integral floats, is returned as is.
func canonicalValue(typ string, v any) any {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return v
		}
		f = parsed
	default:
		return v
	}

	switch typ {
	case "integer":
		if f != math.Trunc(f) {
			return v
		}
		return int(f)
	case "number":
		return f
	}
	return v
}

// FunctionSchema is the export shape handed to backends.
type FunctionSchema struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  ParametersSchema `json:"parameters"`
}

// ParametersSchema is a JSON-schema object describing function arguments.
type ParametersSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// PropertySchema describes a single argument.
type PropertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Schema exports the function in backend form.
func (f FunctionItem) Schema() FunctionSchema {
	props := make(map[string]PropertySchema, len(f.Params))
	for _, p := range f.Params {
		props[p.Name] = PropertySchema{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
		}
	}
	return FunctionSchema{
		Name:        f.Name,
		Description: f.Description,
		Parameters: ParametersSchema{
			Type:       "object",
			Properties: props,
			Required:   f.Required,
		},
	}
}

// Schemas exports every function in order.
func Schemas(functions []FunctionItem) []FunctionSchema {
	out := make([]FunctionSchema, len(functions))
	for i, f := range functions {
		out[i] = f.Schema()
	}
	return out
}

// TotalTokens sums the token counts of functions.
func TotalTokens(functions []FunctionItem) int {
	total := 0
	for _, f := range functions {
		total += f.TokenCount
	}
	return total
}
