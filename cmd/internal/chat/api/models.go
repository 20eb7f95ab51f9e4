package chatapi

import (
	"time"

	"duplex/cmd/internal/chat"
)

// sendMessageRequest is the POST /send/{id} body. At least one of text or
// imageUrl must be present; the store validates the content rule, the
// validator only bounds the fields.
type sendMessageRequest struct {
	Text     string `json:"text" validate:"omitempty,max=4000"`
	ImageURL string `json:"imageUrl" validate:"omitempty,url,max=2048"`
}

// chatSummary is one entry of GET /chats: the counterpart plus the time of
// the latest message exchanged with them. Profile fields are hydrated from
// the user directory when the counterpart is known there.
type chatSummary struct {
	UserID            string    `json:"userId"`
	Username          string    `json:"username,omitempty"`
	ProfilePictureURL string    `json:"profilePictureUrl,omitempty"`
	LastMessageAt     time.Time `json:"lastMessageAt"`
}

// contactResponse is one entry of GET /contacts.
type contactResponse struct {
	UserID            string `json:"userId"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

func toChatSummary(p chat.Partner) chatSummary {
	return chatSummary{UserID: p.UserID, LastMessageAt: p.LastMessageAt}
}
