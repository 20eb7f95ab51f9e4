package chat

import (
	"encoding/json"
	"log/slog"

	v1 "duplex/shared/contracts/chat/v1"
)

// Relay pushes newly appended messages to the live connections of both
// parties. Delivery is best-effort and at-most-once per handle per call:
// a failed push is a logged DeliveryFailure, never retried — the store
// remains the source of truth and a reconnect-triggered history fetch is
// the recovery path.
type Relay struct {
	log      *slog.Logger
	registry *Registry
}

// NewRelay constructs a Relay over the given registry.
func NewRelay(log *slog.Logger, registry *Registry) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{log: log, registry: registry}
}

// Deliver is invoked exactly once per successfully appended message.
//
// Fan-out covers every handle of the recipient (multi-device) plus the
// sender's handles other than originConnID, so all of the sender's devices
// converge without re-fetching. If the recipient is offline, Deliver does
// nothing further; the message is observed on the next history fetch.
//
// Per-pair ordering: Deliver runs on the single append path, and each
// handle's queue is FIFO, so send order is preserved per handle.
func (r *Relay) Deliver(msg Message, originConnID string) {
	if r == nil || r.registry == nil {
		return
	}

	env, err := NewMessageEnvelope(msg)
	if err != nil {
		r.log.Error("relay.envelope.fail", "message_id", msg.ID, "err", err)
		return
	}

	delivered, dropped := 0, 0

	for _, c := range r.registry.ConnectionsFor(msg.RecipientID) {
		if c.TryEnqueue(env) {
			delivered++
		} else {
			dropped++
			r.log.Warn("relay.push.fail",
				"message_id", msg.ID, "user_id", msg.RecipientID, "conn_id", c.ConnID)
		}
	}

	for _, c := range r.registry.ConnectionsFor(msg.SenderID) {
		if c.ConnID == originConnID {
			continue
		}
		if c.TryEnqueue(env) {
			delivered++
		} else {
			dropped++
			r.log.Warn("relay.push.fail",
				"message_id", msg.ID, "user_id", msg.SenderID, "conn_id", c.ConnID)
		}
	}

	messagesDelivered.Add(float64(delivered))
	messagesDropped.Add(float64(dropped))

	r.log.Info("relay.deliver",
		"message_id", msg.ID, "recipient_id", msg.RecipientID,
		"delivered", delivered, "dropped", dropped)
}

// NewMessageEnvelope builds the message.new wire envelope for msg.
func NewMessageEnvelope(msg Message) (v1.Envelope, error) {
	payload, err := json.Marshal(v1.MessagePayload{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Text:        msg.Text,
		ImageURL:    msg.ImageURL,
		CreatedAt:   msg.CreatedAt,
	})
	if err != nil {
		return v1.Envelope{}, err
	}
	return newEnvelope(v1.TypeMessageNew, payload, msg.CreatedAt)
}
