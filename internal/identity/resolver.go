// Package identity decides whether an incoming message is already present in
// a conversation log.
package identity

import (
	"github.com/capitalize-ai/chatsync/internal/model"
)

// FingerprintWindow is the largest creation-time distance, in milliseconds,
// at which two messages with the same sender and content are the same message.
const FingerprintWindow int64 = 5000

// Action is the outcome of resolving a candidate against a log.
type Action string

const (
	ActionInsert  Action = "insert"
	ActionReplace Action = "replace"
	ActionNoop    Action = "noop"
)

// Decision tells the merge engine what to do with a candidate. Index is only
// meaningful for ActionReplace and for ActionNoop fingerprint matches;
// it is -1 otherwise.
type Decision struct {
	Action Action
	Index  int
}

// Resolve matches candidate against log, first by durable ID and then by
// fingerprint (sender, content, creation time within FingerprintWindow).
// The image reference is not part of the fingerprint.
func Resolve(candidate *model.Message, log []model.Message) Decision {
	if !candidate.IsPlaceholder() {
		if i := IndexOfID(log, candidate.ID); i >= 0 {
			return Decision{Action: ActionNoop, Index: i}
		}
	}

	i := indexOfFingerprint(candidate, log)
	if i < 0 {
		return Decision{Action: ActionInsert, Index: -1}
	}
	if log[i].IsPlaceholder() && !candidate.IsPlaceholder() {
		return Decision{Action: ActionReplace, Index: i}
	}
	return Decision{Action: ActionNoop, Index: i}
}

// IndexOfID returns the position of the message with the given durable ID,
// or -1.
func IndexOfID(log []model.Message, id int64) int {
	if id <= 0 {
		return -1
	}
	for i := range log {
		if log[i].ID == id {
			return i
		}
	}
	return -1
}

// IndexOfLocalKey returns the position of the placeholder created with the
// given local key, or -1.
func IndexOfLocalKey(log []model.Message, key string) int {
	if key == "" {
		return -1
	}
	for i := range log {
		if log[i].LocalKey == key && log[i].IsPlaceholder() {
			return i
		}
	}
	return -1
}

// Matches reports whether two messages share a fingerprint.
func Matches(a, b *model.Message) bool {
	if a.SenderID != b.SenderID || a.Content != b.Content {
		return false
	}
	d := a.CreatedAt - b.CreatedAt
	if d < 0 {
		d = -d
	}
	return d <= FingerprintWindow
}

// indexOfFingerprint prefers a placeholder match so that a durable candidate
// collapses the optimistic copy even when an older durable duplicate with the
// same text sits inside the window.
func indexOfFingerprint(candidate *model.Message, log []model.Message) int {
	found := -1
	for i := range log {
		if !Matches(candidate, &log[i]) {
			continue
		}
		if log[i].IsPlaceholder() && !candidate.IsPlaceholder() {
			return i
		}
		if found < 0 {
			found = i
		}
	}
	return found
}
