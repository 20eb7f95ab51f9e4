// Package clientkit is the client-side companion to the Duplex server: an
// optimistic send pipeline plus a thin REST/WebSocket client. It depends only
// on the shared wire contract, never on server internals.
package clientkit

import (
	"errors"
	"strings"
	"sync"
	"time"

	v1 "duplex/shared/contracts/chat/v1"

	"github.com/google/uuid"
)

// Outbox resolution errors.
var (
	// ErrUnknownTempID means the temp id was never tracked or was already
	// resolved; a second Confirm/Rollback for the same send is a caller bug.
	ErrUnknownTempID = errors.New("clientkit: unknown or already resolved temp id")
)

// Entry is one row of the rendered conversation: either a pending
// (optimistic) message still waiting for the server, or a confirmed one.
type Entry struct {
	// TempID is set while the entry is pending and preserved after
	// confirmation so UIs can correlate the replacement.
	TempID  string            `json:"temp_id,omitempty"`
	Pending bool              `json:"pending"`
	Message v1.MessagePayload `json:"message"`
}

// Outbox tracks optimistic sends against their eventual server outcome.
//
// Track appends a provisional entry and hands back a temporary id. Confirm
// replaces the provisional entry in place with the persisted message, keeping
// the list the same length. Rollback removes the entry, restoring the list to
// its pre-send state. Each temp id resolves exactly once.
type Outbox struct {
	mu      sync.Mutex
	entries []Entry
}

// NewOutbox returns an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Track appends a provisional message and returns its entry. The temp id is
// client-generated and never collides with server ids (distinct prefix).
func (o *Outbox) Track(senderID, recipientID, text, imageURL string) Entry {
	e := Entry{
		TempID:  "temp-" + uuid.NewString(),
		Pending: true,
		Message: v1.MessagePayload{
			ID:          "",
			SenderID:    senderID,
			RecipientID: recipientID,
			Text:        text,
			ImageURL:    imageURL,
			CreatedAt:   time.Now().UTC(),
		},
	}

	o.mu.Lock()
	o.entries = append(o.entries, e)
	o.mu.Unlock()
	return e
}

// Confirm resolves a pending send with the server's persisted message. The
// entry is replaced in place; position in the conversation does not change.
// If the relay echo already landed the persisted message (Observe won the
// race against the REST response), the placeholder is dropped instead so the
// message appears exactly once.
func (o *Outbox) Confirm(tempID string, persisted v1.MessagePayload) (Entry, error) {
	if strings.TrimSpace(tempID) == "" {
		return Entry{}, ErrUnknownTempID
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexOfPending(tempID)
	if i < 0 {
		return Entry{}, ErrUnknownTempID
	}

	if j := o.indexOfConfirmed(persisted.ID); j >= 0 {
		o.entries[j].TempID = tempID
		o.entries = append(o.entries[:i], o.entries[i+1:]...)
		if j > i {
			j--
		}
		return o.entries[j], nil
	}

	o.entries[i] = Entry{TempID: tempID, Pending: false, Message: persisted}
	return o.entries[i], nil
}

// Rollback removes a pending send that the server rejected or that never
// reached it. It returns the removed entry so callers can surface the
// failure (toast, retry affordance).
func (o *Outbox) Rollback(tempID string) (Entry, error) {
	if strings.TrimSpace(tempID) == "" {
		return Entry{}, ErrUnknownTempID
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexOfPending(tempID)
	if i < 0 {
		return Entry{}, ErrUnknownTempID
	}

	removed := o.entries[i]
	o.entries = append(o.entries[:i], o.entries[i+1:]...)
	return removed, nil
}

// Observe appends a confirmed message that arrived over the websocket.
// Messages already present (by server id) are ignored, so the relay echo of
// the device's own REST send never duplicates the confirmed entry.
func (o *Outbox) Observe(msg v1.MessagePayload) {
	if strings.TrimSpace(msg.ID) == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, e := range o.entries {
		if !e.Pending && e.Message.ID == msg.ID {
			return
		}
	}
	o.entries = append(o.entries, Entry{Pending: false, Message: msg})
}

// Seed replaces the confirmed baseline with a fetched history, keeping any
// still-pending sends at the tail.
func (o *Outbox) Seed(history []v1.MessagePayload) {
	o.mu.Lock()
	defer o.mu.Unlock()

	next := make([]Entry, 0, len(history)+len(o.entries))
	for _, m := range history {
		next = append(next, Entry{Pending: false, Message: m})
	}
	for _, e := range o.entries {
		if e.Pending {
			next = append(next, e)
		}
	}
	o.entries = next
}

// Messages returns the rendered conversation: confirmed and pending entries
// in insertion order. The returned slice is a copy.
func (o *Outbox) Messages() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Entry, len(o.entries))
	copy(out, o.entries)
	return out
}

// PendingCount reports how many sends are still unresolved.
func (o *Outbox) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, e := range o.entries {
		if e.Pending {
			n++
		}
	}
	return n
}

// indexOfPending is called with o.mu held.
func (o *Outbox) indexOfPending(tempID string) int {
	for i, e := range o.entries {
		if e.Pending && e.TempID == tempID {
			return i
		}
	}
	return -1
}

// indexOfConfirmed is called with o.mu held.
func (o *Outbox) indexOfConfirmed(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range o.entries {
		if !e.Pending && e.Message.ID == id {
			return i
		}
	}
	return -1
}
