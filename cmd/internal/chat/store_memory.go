package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

const memMaxMessages = 100_000

// InMemoryStore is a dev/test MessageStore. It keeps one global append-ordered
// log, which makes History and PartnersOf straightforward linear scans —
// mirroring the per-request scan behavior of the durable store.
type InMemoryStore struct {
	mu   sync.Mutex
	msgs []Message
}

// NewInMemoryStore constructs an in-memory MessageStore implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{msgs: make([]Message, 0, 256)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Append persists a message with a server-assigned id and timestamp.
func (s *InMemoryStore) Append(ctx context.Context, in AppendInput) (Message, error) {
	if err := in.Validate(); err != nil {
		return Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewMessageID(now)
	if err != nil {
		return Message{}, storageErr("append", err)
	}

	msg := Message{
		ID:          id,
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Text:        in.Text,
		ImageURL:    in.ImageURL,
		CreatedAt:   now,
	}

	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	// Bound memory to avoid unbounded growth in dev.
	if len(s.msgs) > memMaxMessages {
		s.msgs = s.msgs[len(s.msgs)-memMaxMessages:]
	}
	s.mu.Unlock()

	return msg, nil
}

// History returns the pair's messages, both directions, CreatedAt ASC.
func (s *InMemoryStore) History(ctx context.Context, userA, userB string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	snap := append([]Message(nil), s.msgs...)
	s.mu.Unlock()

	out := lo.Filter(snap, func(m Message, _ int) bool {
		return (m.SenderID == userA && m.RecipientID == userB) ||
			(m.SenderID == userB && m.RecipientID == userA)
	})

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PartnersOf scans the log for counterparts of userID, de-duplicated and
// ordered by latest interaction (most recent conversation first).
func (s *InMemoryStore) PartnersOf(ctx context.Context, userID string) ([]Partner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	snap := append([]Message(nil), s.msgs...)
	s.mu.Unlock()

	latest := make(map[string]time.Time)
	for _, m := range snap {
		var counterpart string
		switch userID {
		case m.SenderID:
			counterpart = m.RecipientID
		case m.RecipientID:
			counterpart = m.SenderID
		default:
			continue
		}
		if m.CreatedAt.After(latest[counterpart]) {
			latest[counterpart] = m.CreatedAt
		}
	}

	out := lo.MapToSlice(latest, func(id string, at time.Time) Partner {
		return Partner{UserID: id, LastMessageAt: at}
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
