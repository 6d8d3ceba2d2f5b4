package model

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MethodRegistry maps method references to executables so that serialized
// function items can be rebound after decoding. It is safe for concurrent use.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

// NewMethodRegistry creates an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{
		methods: make(map[string]Method),
	}
}

// Register binds name to method. Names may only be registered once.
func (r *MethodRegistry) Register(name string, method Method) error {
	if name == "" || method == nil {
		return Validationf("method registration needs a name and a method")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[name]; exists {
		return Validationf("method %s already registered", name)
	}
	r.methods[name] = method
	return nil
}

// Lookup returns the method registered under name.
func (r *MethodRegistry) Lookup(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// Bind attaches the registered method to item.
func (r *MethodRegistry) Bind(item FunctionItem) (FunctionItem, error) {
	m, ok := r.Lookup(item.MethodRef)
	if !ok {
		return FunctionItem{}, Validationf("function %s: method %q is not registered", item.Name, item.MethodRef)
	}
	return item.WithMethod(m), nil
}

// DecodeFunctionItem decodes one JSON-encoded item and rebinds its method.
func (r *MethodRegistry) DecodeFunctionItem(data []byte) (FunctionItem, error) {
	var item FunctionItem
	if err := json.Unmarshal(data, &item); err != nil {
		return FunctionItem{}, fmt.Errorf("failed to decode function item: %w", err)
	}
	return r.Bind(item)
}

// DecodeFunctionItems decodes a JSON array of items and rebinds each method.
func (r *MethodRegistry) DecodeFunctionItems(data []byte) ([]FunctionItem, error) {
	var items []FunctionItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode function items: %w", err)
	}
	for i := range items {
		bound, err := r.Bind(items[i])
		if err != nil {
			return nil, err
		}
		items[i] = bound
	}
	return items, nil
}
