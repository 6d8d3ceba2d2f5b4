package nats

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "conv.t1.c1.msg.user", MessageSubject("t1", "c1", model.RoleUser))
	assert.Equal(t, "conv.t1.c1.event.response", EventSubject("t1", "c1", model.EventResponse))
	assert.Equal(t, "conv.t1.c1.msg.>", ConversationFilter("t1", "c1"))
}

func TestTranscriptEntry_PreservesRequests(t *testing.T) {
	item, err := model.NewFunctionItem(model.FunctionSpec{Name: "lookup", TokenCount: 3},
		func(_ context.Context, _ map[string]any) (any, error) { return nil, nil }, nil)
	require.NoError(t, err)

	msg := model.NewFunctionRequestMessage(nil, []model.FunctionRequest{
		{ID: "call_1", Name: "lookup", Args: map[string]any{"q": "x"}, Item: &item},
	})
	data, err := json.Marshal(TranscriptEntry{TenantID: "t1", ConversationID: "c1", Message: msg})
	require.NoError(t, err)

	var decoded TranscriptEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Message.IsFunctionRequest())
	require.Len(t, decoded.Message.Requests, 1)
	assert.Equal(t, "call_1", decoded.Message.Requests[0].ID)
	assert.Equal(t, "lookup", decoded.Message.Requests[0].Item.Name)
	assert.True(t, decoded.Message.Equal(msg))
}
