// Package chat contains Duplex's realtime core: the connection registry,
// presence broadcaster, message relay, and message persistence primitives.
package chat

import (
	"strings"
	"time"
)

// Message is the canonical persisted message representation.
//
// Invariants:
//   - at least one of Text/ImageURL is present
//   - SenderID != RecipientID
//   - never mutated or deleted once appended
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AppendInput describes a message append request. ID and CreatedAt are
// assigned by the store on success.
type AppendInput struct {
	SenderID    string
	RecipientID string
	Text        string
	ImageURL    string
	Now         time.Time
}

// Validate enforces the send invariants before anything touches storage.
func (in AppendInput) Validate() error {
	if strings.TrimSpace(in.SenderID) == "" || strings.TrimSpace(in.RecipientID) == "" {
		return ErrMissingParty
	}
	if in.SenderID == in.RecipientID {
		return ErrSelfSend
	}
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.ImageURL) == "" {
		return ErrEmptyContent
	}
	if len([]rune(in.Text)) > maxMessageChars {
		return ErrTextTooLong
	}
	return nil
}

// Partner is one entry of a user's chat-partner set: a counterpart the user
// has exchanged at least one message with, tagged with the latest
// interaction time for most-recent-first ordering.
type Partner struct {
	UserID        string    `json:"user_id"`
	LastMessageAt time.Time `json:"last_message_at"`
}
