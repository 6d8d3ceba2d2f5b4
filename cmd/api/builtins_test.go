package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/function"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	"github.com/capitalize-ai/chat-orchestrator/internal/tokenizer"
)

func TestBuiltinFunctions(t *testing.T) {
	tok := tokenizer.WordCounter{}

	t.Run("default library", func(t *testing.T) {
		factory, err := function.NewFactory(defaultParams, nil, tok)
		require.NoError(t, err)
		registry := model.NewMethodRegistry()

		items, err := builtinFunctions(factory, registry)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.True(t, items[0].AutoCall)
		assert.Empty(t, items[0].Required)

		out, err := items[0].Call(context.Background(), map[string]any{"timezone": "UTC"})
		require.NoError(t, err)
		assert.Contains(t, out, "UTC")

		_, err = items[0].Call(context.Background(), map[string]any{"timezone": "Nowhere/Special"})
		assert.Error(t, err)

		_, ok := registry.Lookup("current_time")
		assert.True(t, ok)
	})

	t.Run("library without timezone", func(t *testing.T) {
		factory, err := function.NewFactory(nil, []string{"builtin"}, tok)
		require.NoError(t, err)

		items, err := builtinFunctions(factory, model.NewMethodRegistry())
		require.NoError(t, err)
		_, ok := items[0].Param("timezone")
		assert.True(t, ok)
		assert.Contains(t, items[0].Tags, "builtin")
	})
}
