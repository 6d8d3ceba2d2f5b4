// Package tokenizer provides token counters for budgeting prompts.
package tokenizer

import (
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	defaultCharactersPerToken = 4.0
	defaultSmoothingFactor    = 0.3
)

// CharEstimator estimates tokens from character counts. The ratio starts at
// four characters per token and can be calibrated from the usage figures a
// backend reports. It is safe for concurrent use.
type CharEstimator struct {
	mu                 sync.RWMutex
	charactersPerToken float64
	smoothingFactor    float64
	observations       int
}

// NewCharEstimator creates an estimator with the default ratio.
func NewCharEstimator() *CharEstimator {
	return &CharEstimator{
		charactersPerToken: defaultCharactersPerToken,
		smoothingFactor:    defaultSmoothingFactor,
	}
}

// CountTokens estimates the token count of text, rounding up.
func (e *CharEstimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	e.mu.RLock()
	ratio := e.charactersPerToken
	e.mu.RUnlock()

	return int(float64(utf8.RuneCountInString(text))/ratio) + 1
}

// RecordUsage calibrates the ratio against a backend-reported token count.
// The first observation replaces the default; later ones blend in with an
// exponential moving average.
func (e *CharEstimator) RecordUsage(text string, actualTokens int) {
	chars := utf8.RuneCountInString(text)
	if actualTokens <= 0 || chars == 0 {
		return
	}
	observed := float64(chars) / float64(actualTokens)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.observations++
	if e.observations == 1 {
		e.charactersPerToken = observed
		return
	}
	e.charactersPerToken = e.smoothingFactor*observed + (1-e.smoothingFactor)*e.charactersPerToken
}

// Ratio returns the current characters-per-token ratio.
func (e *CharEstimator) Ratio() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.charactersPerToken
}

// WordCounter counts whitespace-separated words. It is exact and
// deterministic, which makes budgets easy to reason about in tests.
type WordCounter struct{}

// CountTokens returns the number of words in text.
func (WordCounter) CountTokens(text string) int {
	return len(strings.Fields(text))
}
