package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func costed(role Role, content string, tokens int) Message {
	return NewMessage(nil, role, content, WithTokenCount(tokens))
}

func TestMessageQueue_LastNTokens(t *testing.T) {
	q := NewMessageQueue(
		costed(RoleSystem, "a", 5),
		costed(RoleUser, "b", 10),
		costed(RoleAssistant, "c", 5),
	)

	tests := []struct {
		name    string
		budget  int
		exclude []Role
		want    []string
	}{
		{name: "fits all", budget: 20, want: []string{"a", "b", "c"}},
		{name: "drops oldest", budget: 17, want: []string{"b", "c"}},
		{name: "stops at first overflow", budget: 14, want: []string{"c"}},
		{name: "zero budget", budget: 0, want: nil},
		{name: "negative budget", budget: -3, want: nil},
		{name: "exclusion", budget: 10, exclude: []Role{RoleUser}, want: []string{"a", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := q.LastNTokens(tt.budget, tt.exclude...)
			var contents []string
			for _, m := range got {
				contents = append(contents, m.Content)
			}
			assert.Equal(t, tt.want, contents)
			assert.LessOrEqual(t, got.TokenCount(), max(tt.budget, 0))
		})
	}
}

func TestMessageQueue_LastNTokensMaximalAndIdempotent(t *testing.T) {
	q := NewMessageQueue()
	for i, cost := range []int{3, 8, 1, 4, 6, 2, 9, 1} {
		q.Append(costed(RoleUser, string(rune('a'+i)), cost))
	}

	for budget := 0; budget <= q.TokenCount()+1; budget++ {
		got := q.LastNTokens(budget)
		require.LessOrEqual(t, got.TokenCount(), budget)

		// Suffix of the original queue.
		offset := len(q) - len(got)
		for i := range got {
			require.True(t, got[i].Equal(q[offset+i]))
		}

		// Prepending the next-older message would overflow.
		if offset > 0 {
			assert.Greater(t, got.TokenCount()+q[offset-1].TokenCount, budget)
		}

		again := got.LastNTokens(budget)
		assert.Equal(t, got, again)
	}
}

func TestMessageQueue_LastNMessages(t *testing.T) {
	q := NewMessageQueue(
		costed(RoleUser, "1", 1),
		costed(RoleFunction, "2", 1),
		costed(RoleAssistant, "3", 1),
	)

	assert.Equal(t, "3", q.LastNMessages(1)[0].Content)
	assert.Len(t, q.LastNMessages(10), 3)
	assert.Empty(t, q.LastNMessages(0))

	got := q.LastNMessages(2, RoleFunction)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Content)
	assert.Equal(t, "3", got[1].Content)
}

func TestMessageQueue_Mutations(t *testing.T) {
	q := NewMessageQueue(costed(RoleUser, "middle", 2))
	q.Prepend(costed(RoleSystem, "head", 1))
	q.Append(costed(RoleAssistant, "tail", 3))
	q.Extend(costed(RoleUser, "x", 1), costed(RoleUser, "y", 1))

	require.Len(t, q, 5)
	assert.Equal(t, "head", q[0].Content)
	assert.Equal(t, 8, q.TokenCount())

	last, ok := q.Last()
	require.True(t, ok)
	assert.Equal(t, "y", last.Content)

	_, ok = MessageQueue{}.Last()
	assert.False(t, ok)

	joined := q[:2].Concat(q[3:])
	assert.Len(t, joined, 4)
	assert.Equal(t, "x", joined[2].Content)

	cp := q.Copy()
	cp[0].Content = "changed"
	assert.Equal(t, "head", q[0].Content)
}

func TestMessage_TokenCounting(t *testing.T) {
	words := TokenizerFunc(func(s string) int { return len(s) })

	assert.Equal(t, 5, NewUserMessage(words, "hello").TokenCount)
	assert.Equal(t, 2, NewUserMessage(words, "hello", WithTokenCount(2)).TokenCount)
	assert.Equal(t, 0, NewUserMessage(nil, "hello").TokenCount)

	agent := NewAgentMessage(words, "hi")
	assert.Equal(t, DefaultAgentName, agent.AgentName)
	assert.Equal(t, RoleAssistant, agent.Role)

	named := NewAgentMessage(words, "hi", WithAgentName("planner"))
	assert.Equal(t, "planner", named.AgentName)

	resp := NewFunctionResponseMessage(words, "lookup", "call-1", "42")
	assert.Equal(t, RoleFunction, resp.Role)
	assert.Equal(t, "lookup", resp.FunctionName)
	assert.Equal(t, "call-1", resp.FunctionID)
}

func TestContext_MergeAndString(t *testing.T) {
	c := Context{"topic": "billing"}
	c.Merge(Context{"topic": "refunds", "customer": "acme"})

	assert.Equal(t, "refunds", c["topic"])
	assert.Equal(t, `{"customer":"acme","topic":"refunds"}`, c.String())
	assert.Equal(t, "{}", Context{}.String())

	clone := c.Clone()
	clone["topic"] = "other"
	assert.Equal(t, "refunds", c["topic"])
}
