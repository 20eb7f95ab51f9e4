package chat

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when DUPLEX_DATABASE_URL is set.
// This keeps local "go test ./..." fast & deterministic without requiring Postgres.

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("DUPLEX_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DUPLEX_DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := fmt.Sprintf("duplex_it_%d", time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgIdentSchema(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgIdentSchema(schema)+` CASCADE`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
}

func mustApplySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	messages := pgIdent(schema, "messages")

	ddl := []string{
		`CREATE TABLE ` + messages + ` (
			id           text PRIMARY KEY,
			sender_id    text NOT NULL,
			recipient_id text NOT NULL,
			text         text,
			image_url    text,
			created_at   timestamptz NOT NULL,
			CONSTRAINT no_self_send CHECK (sender_id <> recipient_id),
			CONSTRAINT has_content  CHECK (text IS NOT NULL OR image_url IS NOT NULL)
		)`,
		`CREATE INDEX idx_messages_pair ON ` + messages + ` (sender_id, recipient_id, created_at)`,
		`CREATE INDEX idx_messages_recipient ON ` + messages + ` (recipient_id, created_at)`,
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
}

func pgIdentSchema(schema string) string {
	return pgx.Identifier{schema}.Sanitize()
}

func mustNewStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestPostgresStore_AppendHistoryRoundTrip(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })

	mustApplySchema(t, pool, schema)

	store := mustNewStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg, err := store.Append(ctx, AppendInput{SenderID: "alice", RecipientID: "bob", Text: "hello"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if strings.TrimSpace(msg.ID) == "" {
		t.Fatal("append: expected non-empty server id")
	}

	hist, err := store.History(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history: expected 1 entry, got %d", len(hist))
	}
	if hist[0].ID != msg.ID || hist[0].Text != "hello" {
		t.Fatalf("history entry mismatch: %+v", hist[0])
	}
}

func TestPostgresStore_ValidationNeverPersists(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })

	mustApplySchema(t, pool, schema)

	store := mustNewStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := store.Append(ctx, AppendInput{SenderID: "a", RecipientID: "b"}); !IsValidation(err) {
		t.Fatalf("empty content: err=%v want validation", err)
	}
	if _, err := store.Append(ctx, AppendInput{SenderID: "a", RecipientID: "a", Text: "x"}); !IsValidation(err) {
		t.Fatalf("self send: err=%v want validation", err)
	}

	hist, err := store.History(ctx, "a", "b")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 0 {
		t.Fatalf("validation failures persisted %d rows", len(hist))
	}
}

func TestPostgresStore_HistoryOrderAndPartners(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })

	mustApplySchema(t, pool, schema)

	store := mustNewStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	appendAt := func(sender, recipient, text string, at time.Time) Message {
		t.Helper()
		m, err := store.Append(ctx, AppendInput{SenderID: sender, RecipientID: recipient, Text: text, Now: at})
		if err != nil {
			t.Fatalf("append %q: %v", text, err)
		}
		return m
	}

	m1 := appendAt("alice", "bob", "one", base)
	m2 := appendAt("bob", "alice", "two", base.Add(time.Minute))
	appendAt("carol", "alice", "cross pair", base.Add(2*time.Minute))
	m3 := appendAt("alice", "bob", "three", base.Add(3*time.Minute))

	hist, err := store.History(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("history: expected 3 entries, got %d", len(hist))
	}
	for i, want := range []Message{m1, m2, m3} {
		if hist[i].ID != want.ID {
			t.Fatalf("history[%d]=%s want=%s", i, hist[i].ID, want.ID)
		}
	}

	partners, err := store.PartnersOf(ctx, "alice")
	if err != nil {
		t.Fatalf("partners: %v", err)
	}
	if len(partners) != 2 {
		t.Fatalf("partners: expected 2, got %+v", partners)
	}
	if partners[0].UserID != "bob" || partners[1].UserID != "carol" {
		t.Fatalf("partners order: %+v", partners)
	}

	// Symmetry.
	ps, err := store.PartnersOf(ctx, "bob")
	if err != nil {
		t.Fatalf("partners of bob: %v", err)
	}
	if len(ps) != 1 || ps[0].UserID != "alice" {
		t.Fatalf("symmetry violated: %+v", ps)
	}
}
