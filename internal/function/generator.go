package function

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// Generator derives the functions offered for a turn. CreateCacheKey must
// return equal keys whenever GenerateFunctions would return equal results.
type Generator interface {
	CreateCacheKey(ctx context.Context, input, history model.MessageQueue, c model.Context) (string, error)
	GenerateFunctions(ctx context.Context, input, history model.MessageQueue, c model.Context) ([]model.FunctionItem, error)
}

// StaticGenerator offers a fixed list of functions, optionally ranked.
type StaticGenerator struct {
	name      string
	functions []model.FunctionItem
	ranker    *KeywordRanker
}

// GeneratorOption configures a StaticGenerator.
type GeneratorOption func(*StaticGenerator)

// WithKeywordRanking orders generated functions with ranker.
func WithKeywordRanking(ranker KeywordRanker) GeneratorOption {
	return func(g *StaticGenerator) {
		g.ranker = &ranker
	}
}

// WithName sets the name mixed into cache keys. Defaults to "static".
func WithName(name string) GeneratorOption {
	return func(g *StaticGenerator) {
		g.name = name
	}
}

// NewStaticGenerator creates a generator offering functions in order.
func NewStaticGenerator(functions []model.FunctionItem, opts ...GeneratorOption) *StaticGenerator {
	g := &StaticGenerator{
		name:      "static",
		functions: append([]model.FunctionItem(nil), functions...),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateFunctions returns the configured functions.
func (g *StaticGenerator) GenerateFunctions(_ context.Context, input, history model.MessageQueue, c model.Context) ([]model.FunctionItem, error) {
	if g.ranker != nil {
		return g.ranker.Rank(g.functions, input, history, c), nil
	}
	return append([]model.FunctionItem(nil), g.functions...), nil
}

// CreateCacheKey hashes the generator's function names. Ranked generators
// also hash the text the ranking reads.
func (g *StaticGenerator) CreateCacheKey(_ context.Context, input, history model.MessageQueue, _ model.Context) (string, error) {
	names := make([]string, len(g.functions))
	for i, f := range g.functions {
		names[i] = f.Name
	}
	parts := []string{g.name, strings.Join(names, ",")}
	if g.ranker != nil {
		depth := g.ranker.SearchDepth
		if depth <= 0 {
			depth = DefaultSearchDepth
		}
		parts = append(parts, input.Text(), history.LastNMessages(depth).Text())
	}
	return HashKey(parts...), nil
}

// HashKey joins parts and returns their hex-encoded BLAKE3 digest.
func HashKey(parts ...string) string {
	sum := blake3.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
