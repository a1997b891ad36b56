package middleware

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxParticipantIDLength = 64
	maxContentLength       = 100000 // ~100KB
	maxImageRefLength      = 2048
	maxEmojiLength         = 32
)

// ValidateParticipantID validates a participant ID. IDs become NATS subject
// tokens, so separators and wildcards are rejected.
func ValidateParticipantID(id string) error {
	if id == "" {
		return errors.New("participant ID cannot be empty")
	}
	if len(id) > maxParticipantIDLength {
		return errors.New("participant ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("participant ID must be valid UTF-8")
	}
	if strings.ContainsFunc(id, func(r rune) bool {
		return r == '.' || r == '*' || r == '>' || unicode.IsSpace(r)
	}) {
		return errors.New("participant ID contains invalid characters")
	}
	return nil
}

// ValidateMessageContent validates an outgoing message. Text may be empty
// when an image is attached.
func ValidateMessageContent(content, imageRef string) error {
	if content == "" && imageRef == "" {
		return errors.New("message needs content or an image")
	}
	if len(content) > maxContentLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	if len(imageRef) > maxImageRefLength {
		return errors.New("image reference exceeds maximum length")
	}
	return nil
}

// ValidateMessageID parses a durable message ID.
func ValidateMessageID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid message ID format")
	}
	return n, nil
}

// ValidateEmoji validates a reaction emoji.
func ValidateEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return errors.New("emoji cannot be empty")
	}
	if len(emoji) > maxEmojiLength {
		return errors.New("emoji exceeds maximum length")
	}
	if !utf8.ValidString(emoji) {
		return errors.New("emoji must be valid UTF-8")
	}
	return nil
}
