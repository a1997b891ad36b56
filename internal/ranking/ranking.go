// Package ranking orders conversations for the conversation list.
package ranking

import (
	"slices"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// Score is the recency value of a conversation: the creation time of its last
// message, else its positive fallback activity marker, else 0.
func Score(c *model.Conversation) int64 {
	if last, ok := c.Last(); ok {
		return last.CreatedAt
	}
	if c.LastActivity > 0 {
		return c.LastActivity
	}
	return 0
}

// Rank sorts conversations in place, most recent first. Conversations with a
// zero score go after every scored one.
//
// Ties keep their input order. Callers that need a deterministic list pass
// conversations in a stable order; the inbox passes them in creation order,
// so among equal scores the earliest created conversation comes first.
func Rank(convs []*model.Conversation) {
	slices.SortStableFunc(convs, func(a, b *model.Conversation) int {
		sa, sb := Score(a), Score(b)
		switch {
		case sa == sb:
			return 0
		case sa == 0:
			return 1
		case sb == 0:
			return -1
		case sa > sb:
			return -1
		default:
			return 1
		}
	})
}
