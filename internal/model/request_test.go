package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestItem(t *testing.T, name string, autoCall bool, method Method) *FunctionItem {
	t.Helper()
	item, err := NewFunctionItem(FunctionSpec{
		Name:     name,
		Params:   []FunctionParameter{{Name: "x", Type: "integer"}},
		AutoCall: autoCall,
	}, method, nil)
	require.NoError(t, err)
	return &item
}

func TestFunctionRequestMessage(t *testing.T) {
	double := func(_ context.Context, args map[string]any) (any, error) {
		return args["x"].(int) * 2, nil
	}

	auto := requestItem(t, "auto_fn", true, double)
	manual := requestItem(t, "manual_fn", false, double)

	msg := NewFunctionRequestMessage(nil, []FunctionRequest{
		{ID: "1", Name: "auto_fn", Args: map[string]any{"x": 1}, Item: auto},
		{ID: "2", Name: "manual_fn", Args: map[string]any{"x": 2}, Item: manual},
		{ID: "3", Name: "manual_fn", Args: map[string]any{"x": 3}, Item: manual},
		{ID: "4", Name: "ghost", Args: map[string]any{}},
	})

	assert.True(t, msg.IsFunctionRequest())
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "Request to run functions [auto_fn manual_fn manual_fn ghost]", msg.Content)

	pending := msg.ApprovalsRequired()
	require.Len(t, pending, 2)
	assert.Equal(t, "2", pending[0].ID)
	assert.Equal(t, "3", pending[1].ID)

	want := []struct {
		content string
		err     error
	}{
		{"2", nil},
		{"4", nil},
		{"6", nil},
		{"Function ghost not found in list of functions.", ErrFunctionNotFound},
	}
	for i, w := range want {
		resp, err := msg.Requests[i].Execute(context.Background(), nil)
		if w.err != nil {
			assert.ErrorIs(t, err, w.err)
		} else {
			assert.NoError(t, err)
		}
		assert.Equal(t, RoleFunction, resp.Role)
		assert.Equal(t, msg.Requests[i].ID, resp.FunctionID)
		assert.Equal(t, w.content, resp.Content)
	}

	denied := msg.Requests[2].Deny(nil)
	assert.Equal(t, "Function manual_fn denied.", denied.Content)
	assert.Equal(t, "3", denied.FunctionID)
}

func TestFunctionRequest_ExecuteFailure(t *testing.T) {
	item := requestItem(t, "explode", true, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("kaboom")
	})
	req := FunctionRequest{ID: "9", Name: "explode", Args: map[string]any{"x": 1}, Item: item}

	resp, err := req.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrExecution)
	assert.Contains(t, resp.Content, "Error running function explode:")
	assert.Contains(t, resp.Content, "kaboom")
	assert.Equal(t, "9", resp.FunctionID)

	bad := FunctionRequest{ID: "10", Name: "explode", Args: map[string]any{"y": 1}, Item: item}
	resp, err = bad.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrUnknownParameter)
	assert.Contains(t, resp.Content, "invalid param y")
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "", FormatResult(nil))
	assert.Equal(t, "text", FormatResult("text"))
	assert.Equal(t, "3.5", FormatResult(3.5))
	assert.Equal(t, "true", FormatResult(true))
	assert.Equal(t, `{"k":[1,2]}`, FormatResult(map[string]any{"k": []int{1, 2}}))
}
