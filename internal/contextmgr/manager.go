// Package contextmgr derives structured context facts from the running
// dialogue.
package contextmgr

import (
	"context"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// Manager computes context updates from history. Returned maps may be empty
// and are merged by the caller.
type Manager interface {
	Name() string
	ContextUpdates(ctx context.Context, history model.MessageQueue, current model.Context) (model.Context, error)
}

// StaticManager always proposes the same updates.
type StaticManager struct {
	name    string
	updates model.Context
}

// NewStaticManager creates a manager proposing updates on every turn.
func NewStaticManager(name string, updates model.Context) *StaticManager {
	return &StaticManager{name: name, updates: updates.Clone()}
}

// Name returns the manager's name.
func (m *StaticManager) Name() string { return m.name }

// ContextUpdates returns a copy of the configured updates.
func (m *StaticManager) ContextUpdates(context.Context, model.MessageQueue, model.Context) (model.Context, error) {
	return m.updates.Clone(), nil
}

// Func adapts a function into a named Manager.
type Func struct {
	ManagerName string
	Fn          func(ctx context.Context, history model.MessageQueue, current model.Context) (model.Context, error)
}

// Name returns ManagerName.
func (f Func) Name() string { return f.ManagerName }

// ContextUpdates calls Fn.
func (f Func) ContextUpdates(ctx context.Context, history model.MessageQueue, current model.Context) (model.Context, error) {
	return f.Fn(ctx, history, current)
}
