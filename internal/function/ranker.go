package function

import (
	"regexp"
	"sort"
	"strings"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// DefaultSearchDepth is the number of recent history messages scanned for
// keywords.
const DefaultSearchDepth = 5

// KeywordRanker orders functions by how often their tags appear at word
// boundaries in the input and recent history. Ties keep their input order.
type KeywordRanker struct {
	// SearchDepth is the number of history messages scanned. Zero means
	// DefaultSearchDepth.
	SearchDepth int

	// RelativeWeighting divides each score by the function's tag count.
	RelativeWeighting bool
}

// Rank returns candidates sorted by descending keyword score.
func (r KeywordRanker) Rank(candidates []model.FunctionItem, input, history model.MessageQueue, _ model.Context) []model.FunctionItem {
	depth := r.SearchDepth
	if depth <= 0 {
		depth = DefaultSearchDepth
	}
	text := input.Text() + "\n" + history.LastNMessages(depth).Text()

	scores := make([]float64, len(candidates))
	for i, f := range candidates {
		scores[i] = r.Score(text, f.Tags)
	}

	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	out := make([]model.FunctionItem, len(candidates))
	for i, j := range idx {
		out[i] = candidates[j]
	}
	return out
}

// Score counts case-insensitive occurrences of each tag starting at a word
// boundary in text.
func (r KeywordRanker) Score(text string, tags []string) float64 {
	if len(tags) == 0 {
		return 0
	}
	hits := 0
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(tag))
		hits += len(re.FindAllStringIndex(text, -1))
	}
	if r.RelativeWeighting {
		return float64(hits) / float64(len(tags))
	}
	return float64(hits)
}
