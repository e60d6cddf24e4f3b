// Package tokens estimates the prompt size of a conversation window.
package tokens

import (
	"strings"

	"github.com/tjfontaine/companion-core/internal/domain"
)

// Counter counts tokens for plain text and for chat messages.
type Counter interface {
	CountText(text string) int
	CountMessages(msgs []domain.Message) int
	// Estimated reports whether counts are approximations.
	Estimated() bool
}

// openAIModels matches the model families tiktoken has encodings for.
// The "o" prefixes cover the o1/o3/o4 reasoning models.
var openAIModels = NewModelMatcher(
	[]string{"gpt-", "o1", "o3", "o4", "text-embedding", "text-davinci"},
	[]string{"davinci", "curie", "babbage", "ada"},
)

// NewCounter returns a tiktoken counter for OpenAI-family models and an
// Estimator for everything else, including models tiktoken cannot load.
func NewCounter(model string) Counter {
	if openAIModels.Matches(strings.ToLower(model)) {
		if c, err := NewTiktokenCounter(model); err == nil {
			return c
		}
	}
	return NewEstimator()
}

// ModelMatcher matches model names by exact name or prefix.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
