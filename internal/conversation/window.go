// Package conversation shapes transcript history into the recent-context
// window sent alongside each outgoing chat message.
package conversation

import (
	"time"

	"github.com/tjfontaine/companion-core/internal/domain"
)

// RecentHistoryLimit is the number of prior transcript entries kept in a
// window. The outgoing message makes the window at most RecentHistoryLimit+1 long.
const RecentHistoryLimit = 9

// BuildRecentMessages returns the recent-context window for text, stamping
// the outgoing message with the current wall-clock time.
func BuildRecentMessages(history []domain.Message, text string) []domain.Message {
	return BuildRecentMessagesAt(history, text, time.Now().UnixMilli())
}

// BuildRecentMessagesAt returns the last RecentHistoryLimit entries of
// history in their original order followed by a user message carrying text
// and nowMS. The result never aliases history.
func BuildRecentMessagesAt(history []domain.Message, text string, nowMS int64) []domain.Message {
	start := len(history) - RecentHistoryLimit
	if start < 0 {
		start = 0
	}
	tail := history[start:]

	window := make([]domain.Message, 0, len(tail)+1)
	window = append(window, tail...)
	window = append(window, domain.Message{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: nowMS,
	})
	return window
}
