package function

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

func noop(context.Context, map[string]any) (any, error) { return true, nil }

func item(t *testing.T, name string, tokens int, tags ...string) model.FunctionItem {
	t.Helper()
	f, err := model.NewFunctionItem(model.FunctionSpec{
		Name:        name,
		Description: "Test function",
		Tags:        tags,
		TokenCount:  tokens,
	}, noop, nil)
	require.NoError(t, err)
	return f
}

func names(items []model.FunctionItem) []string {
	out := make([]string, len(items))
	for i, f := range items {
		out[i] = f.Name
	}
	return out
}

func user(texts ...string) model.MessageQueue {
	q := model.NewMessageQueue()
	for _, s := range texts {
		q.Append(model.NewUserMessage(nil, s))
	}
	return q
}

func TestHandler_SelectFunctions(t *testing.T) {
	candidates := []model.FunctionItem{
		item(t, "a", 10), item(t, "b", 20), item(t, "c", 5), item(t, "d", 30),
	}

	tests := []struct {
		name string
		cap  int
		want []string
	}{
		{name: "uncapped", cap: 0, want: []string{"a", "b", "c", "d"}},
		{name: "cap fits all", cap: 65, want: []string{"a", "b", "c", "d"}},
		{name: "stops at first overflow", cap: 34, want: []string{"a", "b"}},
		{name: "nothing fits", cap: 5, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHandler(HandlerOptions{MaxFunctionTokens: tt.cap})
			require.NoError(t, err)

			got, err := h.SelectFunctions(context.Background(), candidates, nil, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
			if tt.cap > 0 {
				assert.LessOrEqual(t, model.TotalTokens(got), tt.cap)
			}
		})
	}
}

func TestHandler_UnknownTokenCount(t *testing.T) {
	unknown, err := model.NewFunctionItem(model.FunctionSpec{Name: "mystery"}, noop, nil)
	require.NoError(t, err)

	h, err := NewHandler(HandlerOptions{})
	require.NoError(t, err)

	_, err = h.SelectFunctions(context.Background(), []model.FunctionItem{unknown}, nil, nil, nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = NewHandler(HandlerOptions{MaxFunctionTokens: -1})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestHandler_RankBeforeTrim(t *testing.T) {
	candidates := []model.FunctionItem{
		item(t, "weather", 10, "rain"), item(t, "billing", 10, "invoice"),
	}
	h, err := NewHandler(HandlerOptions{MaxFunctionTokens: 10, Ranker: KeywordRanker{}})
	require.NoError(t, err)

	got, err := h.SelectFunctions(context.Background(), candidates, user("where is my invoice"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, names(got))
}

func TestKeywordRanker_Score(t *testing.T) {
	assert.Equal(t, 2.0, KeywordRanker{}.Score("hello, world!", []string{"hello", "world"}))
	assert.Equal(t, 1.0, KeywordRanker{RelativeWeighting: true}.Score("hello, world!", []string{"hello", "world"}))
	assert.Equal(t, 0.0, KeywordRanker{}.Score("hello, world!", nil))
	assert.Equal(t, 1.0, KeywordRanker{}.Score("Apples!", []string{"apple"}))
	assert.Equal(t, 0.0, KeywordRanker{}.Score("pineapple", []string{"apple"}))

	// Tags match at the start of a word only, so plurals and other
	// suffixed forms count as hits.
	assert.Equal(t, 2.0, KeywordRanker{}.Score("applesauce and apple pie", []string{"apple"}))
	assert.Equal(t, 0.0, KeywordRanker{}.Score("crabapple", []string{"apple"}))
}

func fruit(t *testing.T) []model.FunctionItem {
	return []model.FunctionItem{
		item(t, "func_a", 1, "apple"),
		item(t, "func_b", 1, "banana"),
		item(t, "func_ab", 1, "apple", "banana"),
	}
}

func TestKeywordRanker_Rank(t *testing.T) {
	t.Run("absolute", func(t *testing.T) {
		got := KeywordRanker{}.Rank(fruit(t),
			user("I like apples and bananas!"),
			user("Do you like apples?", "I like apples", "How about you?"),
			nil)
		assert.Equal(t, []string{"func_ab", "func_a", "func_b"}, names(got))
	})

	t.Run("relative", func(t *testing.T) {
		got := KeywordRanker{RelativeWeighting: true}.Rank(fruit(t),
			user("I like apples"),
			user("Do you like apples or bananas?", "I like apples", "How about you?"),
			nil)
		assert.Equal(t, []string{"func_a", "func_ab", "func_b"}, names(got))
	})

	t.Run("ties keep order", func(t *testing.T) {
		got := KeywordRanker{}.Rank(fruit(t), user("nothing relevant"), nil, nil)
		assert.Equal(t, []string{"func_a", "func_b", "func_ab"}, names(got))
	})

	t.Run("search depth", func(t *testing.T) {
		got := KeywordRanker{SearchDepth: 1}.Rank(fruit(t),
			user("hi"),
			user("bananas", "bananas", "apples"),
			nil)
		assert.Equal(t, []string{"func_a", "func_ab", "func_b"}, names(got))
	})
}

func TestStaticGenerator(t *testing.T) {
	ctx := context.Background()
	input := user("I like apples and bananas!")
	history := user("Do you like apples?", "I like apples", "How about you?")

	plain := NewStaticGenerator(fruit(t))
	got, err := plain.GenerateFunctions(ctx, input, history, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"func_a", "func_b", "func_ab"}, names(got))

	ranked := NewStaticGenerator(fruit(t), WithKeywordRanking(KeywordRanker{}))
	got, err = ranked.GenerateFunctions(ctx, input, history, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"func_ab", "func_a", "func_b"}, names(got))
}

func TestStaticGenerator_CacheKey(t *testing.T) {
	ctx := context.Background()

	plain := NewStaticGenerator(fruit(t))
	k1, err := plain.CreateCacheKey(ctx, user("one"), nil, nil)
	require.NoError(t, err)
	k2, err := plain.CreateCacheKey(ctx, user("two"), user("older"), model.Context{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)

	renamed := NewStaticGenerator(fruit(t), WithName("other"))
	k3, err := renamed.CreateCacheKey(ctx, user("one"), nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	ranked := NewStaticGenerator(fruit(t), WithKeywordRanking(KeywordRanker{}))
	r1, err := ranked.CreateCacheKey(ctx, user("apples"), nil, nil)
	require.NoError(t, err)
	r2, err := ranked.CreateCacheKey(ctx, user("bananas"), nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, r1, r2)
}

func TestFactory(t *testing.T) {
	factory, err := NewFactory(map[string]ParamDefinition{
		"a": {Type: "number", Description: "First number"},
		"b": {Type: "number", Description: "Second number"},
	}, []string{"math"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, factory.Params())

	add := func(_ context.Context, args map[string]any) (any, error) {
		sum := 0.0
		for _, v := range args {
			sum += v.(float64)
		}
		return sum, nil
	}

	t.Run("library params", func(t *testing.T) {
		f, err := factory.CreateFunctionItem(ItemSpec{
			Name: "add", Description: "Add a and b", Params: []string{"a", "b"}, AutoCall: true, Tags: []string{"sum"},
		}, add)
		require.NoError(t, err)
		assert.Equal(t, []string{"math", "sum"}, f.Tags)
		assert.Equal(t, []string{"a", "b"}, f.Required)

		got, err := f.Call(context.Background(), map[string]any{"a": 1.0, "b": 2.0})
		require.NoError(t, err)
		assert.Equal(t, 3.0, got)
	})

	t.Run("custom params", func(t *testing.T) {
		f, err := factory.CreateFunctionItem(ItemSpec{
			Name: "add3", Params: []string{"a", "b"},
			CustomParams: []model.FunctionParameter{{Name: "c", Type: "number", Description: "Custom third number"}},
		}, add)
		require.NoError(t, err)

		got, err := f.Call(context.Background(), map[string]any{"a": 1.0, "b": 2.0, "c": 1.0})
		require.NoError(t, err)
		assert.Equal(t, 4.0, got)
	})

	t.Run("no params", func(t *testing.T) {
		f, err := factory.CreateFunctionItem(ItemSpec{Name: "no-op"}, noop)
		require.NoError(t, err)
		assert.Empty(t, f.Params)
	})

	t.Run("invalid param", func(t *testing.T) {
		_, err := factory.CreateFunctionItem(ItemSpec{Name: "add", Params: []string{"a", "b", "c"}}, add)
		require.ErrorIs(t, err, model.ErrValidation)
		assert.Contains(t, err.Error(), "invalid param detected")
	})

	t.Run("bad library", func(t *testing.T) {
		_, err := NewFactory(map[string]ParamDefinition{"bad name": {Type: "number"}}, nil, nil)
		assert.ErrorContains(t, err, "invalid param name")

		_, err = NewFactory(map[string]ParamDefinition{"a": {}}, nil, nil)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestLoadFactory(t *testing.T) {
	doc := `
params:
  city:
    type: string
    description: City name
  unit:
    type: string
    description: Temperature unit
    enum: [celsius, fahrenheit]
tags: [weather]
`
	factory, err := LoadFactory(strings.NewReader(doc), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "unit"}, factory.Params())

	f, err := factory.CreateFunctionItem(ItemSpec{Name: "forecast", Params: []string{"city", "unit"}}, noop)
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, f.Tags)

	_, err = f.Call(context.Background(), map[string]any{"city": "Oslo", "unit": "kelvin"})
	assert.ErrorIs(t, err, model.ErrInvalidValue)
}
