package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a MessageStore backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// The log is append-only: no UPDATE or DELETE statements exist here.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "duplex").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed MessageStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "duplex",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Append persists a message with a server-assigned ULID id and timestamp.
func (s *PostgresStore) Append(ctx context.Context, in AppendInput) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("chat: nil store")
	}
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

	messages := pgIdent(s.schema, "messages")

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (id, sender_id, recipient_id, text, image_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, in.SenderID, in.RecipientID, nullIfEmpty(in.Text), nullIfEmpty(in.ImageURL), now,
	); err != nil {
		return Message{}, storageErr("append", err)
	}

	return Message{
		ID:          id,
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Text:        in.Text,
		ImageURL:    in.ImageURL,
		CreatedAt:   now,
	}, nil
}

// History returns the pair's messages, both directions, CreatedAt ASC with
// id ASC as a deterministic tie-break (ULIDs sort by creation time).
func (s *PostgresStore) History(ctx context.Context, userA, userB string) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if strings.TrimSpace(userA) == "" || strings.TrimSpace(userB) == "" {
		return nil, ErrMissingParty
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, recipient_id, COALESCE(text, ''), COALESCE(image_url, ''), created_at
		   FROM `+messages+`
		  WHERE (sender_id = $1 AND recipient_id = $2)
		     OR (sender_id = $2 AND recipient_id = $1)
		  ORDER BY created_at ASC, id ASC`,
		userA, userB,
	)
	if err != nil {
		return nil, storageErr("history", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, storageErr("history", err)
	}
	return msgs, nil
}

// PartnersOf aggregates the distinct counterparts of userID with their latest
// interaction time. A single grouped query keeps the per-request scan cheap.
func (s *PostgresStore) PartnersOf(ctx context.Context, userID string) ([]Partner, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingParty
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT counterpart, MAX(created_at) AS last_message_at
		   FROM (
		         SELECT recipient_id AS counterpart, created_at FROM `+messages+` WHERE sender_id = $1
		         UNION ALL
		         SELECT sender_id AS counterpart, created_at FROM `+messages+` WHERE recipient_id = $1
		        ) exchanged
		  GROUP BY counterpart
		  ORDER BY last_message_at DESC, counterpart ASC`,
		userID,
	)
	if err != nil {
		return nil, storageErr("partners", err)
	}
	defer rows.Close()

	out := make([]Partner, 0, 16)
	for rows.Next() {
		var p Partner
		if err := rows.Scan(&p.UserID, &p.LastMessageAt); err != nil {
			return nil, storageErr("partners", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("partners", err)
	}
	return out, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	msgs := make([]Message, 0, 64)
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.SenderID,
			&m.RecipientID,
			&m.Text,
			&m.ImageURL,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func nullIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
