// Package v1 defines the Duplex chat wire contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the websocket subprotocol negotiated at upgrade time.
const Subprotocol = "duplex.chat.v1"

// Type constants (wire-stable).
const (
	// TypeHelloAck confirms a registered connection (server -> client).
	TypeHelloAck = "hello.ack"

	// TypePresence carries the full set of online user ids (server -> every client).
	TypePresence = "presence"

	// TypeMessageNew delivers one persisted message to a recipient connection (server -> client).
	TypeMessageNew = "message.new"

	// TypePing is a client keep-alive content frame (client -> server).
	TypePing = "ping"
	// TypePong acknowledges a ping (server -> client).
	TypePong = "pong"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHelloAck,
		TypePresence,
		TypeMessageNew,
		TypePing,
		TypePong,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloAckPayload carries the server-assigned connection id for this socket.
type HelloAckPayload struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

// PresencePayload is the full online-user-id set at the moment of a transition.
type PresencePayload struct {
	OnlineUserIDs []string `json:"online_user_ids"`
}

// MessagePayload is a persisted message pushed to a live connection.
//
// At least one of Text/ImageURL is present; the store rejects empty sends.
type MessagePayload struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PingPayload is an optional client keep-alive payload.
type PingPayload struct {
	Nonce string `json:"nonce,omitempty"`
}

// PongPayload echoes the ping nonce.
type PongPayload struct {
	Nonce string `json:"nonce,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
