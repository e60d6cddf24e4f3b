package tokens

import "github.com/tjfontaine/companion-core/internal/domain"

// Estimator approximates token counts from character length. It is the
// fallback for models without a local tokenizer.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

func (e *Estimator) CountText(text string) int {
	return int(float64(len(text)) / e.charsPerToken())
}

// CountMessages adds roughly one token of framing per message on top of
// the role and content characters.
func (e *Estimator) CountMessages(msgs []domain.Message) int {
	chars := 0
	for _, msg := range msgs {
		chars += len(msg.Role) + len(msg.Content) + 4
	}
	return int(float64(chars) / e.charsPerToken())
}

func (e *Estimator) Estimated() bool { return true }

func (e *Estimator) charsPerToken() float64 {
	if e.CharsPerToken <= 0 {
		return 4.0
	}
	return e.CharsPerToken
}
