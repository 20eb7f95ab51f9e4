package chat

import "context"

// MessageStore is the durable, append-only message log.
//
// Requirements:
//   - Append validates content and party invariants before persisting
//   - History(a, b) is ordered by CreatedAt ASC (id ASC tie-break) and
//     covers both directions of the pair
//   - PartnersOf is ordered by latest interaction, most recent first
//   - storage failures surface as *StorageError, never silently dropped
type MessageStore interface {
	Append(ctx context.Context, in AppendInput) (Message, error)
	History(ctx context.Context, userA, userB string) ([]Message, error)
	PartnersOf(ctx context.Context, userID string) ([]Partner, error)
	Close() error
}
