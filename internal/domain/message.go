package domain

import (
	"time"
	"unicode/utf8"
)

// Message content bounds, counted in Unicode code points.
const (
	MinMessageLength = 2
	MaxMessageLength = 300
)

// Message is an anonymous message embedded in its recipient's record.
// Messages are append-only: once stored they are never changed or removed.
type Message struct {
	// ID identifies the message within its owner.
	ID string `json:"id"`

	// Content is the free text sent by the anonymous author.
	Content string `json:"content"`

	// CreatedAt is set when the message is accepted and never changes.
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message stamped with the given arrival time.
func NewMessage(content string, at time.Time) Message {
	return Message{
		Content:   content,
		CreatedAt: at.UTC(),
	}
}

// ValidateMessageContent checks the content length bounds.
func ValidateMessageContent(content string) error {
	n := utf8.RuneCountInString(content)
	if n < MinMessageLength {
		return ErrMessageTooShort
	}
	if n > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
