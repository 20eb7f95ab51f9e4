package clientkit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	v1 "duplex/shared/contracts/chat/v1"

	"github.com/stretchr/testify/require"
)

func persistedFor(e Entry, serverID string) v1.MessagePayload {
	m := e.Message
	m.ID = serverID
	m.CreatedAt = time.Now().UTC()
	return m
}

func TestOutboxConfirmReplacesInPlace(t *testing.T) {
	t.Parallel()

	o := NewOutbox()
	o.Observe(v1.MessagePayload{ID: "m1", SenderID: "bob", RecipientID: "alice", Text: "earlier"})

	e := o.Track("alice", "bob", "hello", "")
	require.True(t, e.Pending)
	require.NotEmpty(t, e.TempID)
	require.Empty(t, e.Message.ID)

	before := o.Messages()
	require.Len(t, before, 2)

	confirmed, err := o.Confirm(e.TempID, persistedFor(e, "m2"))
	require.NoError(t, err)
	require.False(t, confirmed.Pending)
	require.Equal(t, "m2", confirmed.Message.ID)
	require.Equal(t, e.TempID, confirmed.TempID)

	after := o.Messages()
	require.Len(t, after, 2, "confirm must not grow the list")
	require.Equal(t, "m2", after[1].Message.ID, "replacement keeps the position")
	require.Zero(t, o.PendingCount())
}

func TestOutboxRollbackRestoresExactly(t *testing.T) {
	t.Parallel()

	o := NewOutbox()
	o.Observe(v1.MessagePayload{ID: "m1", SenderID: "bob", RecipientID: "alice", Text: "kept"})
	baseline := o.Messages()

	e := o.Track("alice", "bob", "doomed", "")
	require.Len(t, o.Messages(), 2)

	removed, err := o.Rollback(e.TempID)
	require.NoError(t, err)
	require.Equal(t, e.TempID, removed.TempID)
	require.Equal(t, baseline, o.Messages(), "rollback restores the pre-send list")
}

func TestOutboxResolvesEachTempIDOnce(t *testing.T) {
	t.Parallel()

	o := NewOutbox()
	e := o.Track("alice", "bob", "hi", "")

	_, err := o.Confirm(e.TempID, persistedFor(e, "m1"))
	require.NoError(t, err)

	_, err = o.Confirm(e.TempID, persistedFor(e, "m1-again"))
	require.ErrorIs(t, err, ErrUnknownTempID)

	_, err = o.Rollback(e.TempID)
	require.ErrorIs(t, err, ErrUnknownTempID)

	_, err = o.Rollback("temp-never-tracked")
	require.ErrorIs(t, err, ErrUnknownTempID)
}

func TestOutboxConcurrentSendsAreIndependent(t *testing.T) {
	t.Parallel()

	o := NewOutbox()

	const n = 32
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = o.Track("alice", "bob", fmt.Sprintf("msg-%d", i), "")
	}
	require.Equal(t, n, o.PendingCount())

	// Resolve concurrently: evens confirm, odds roll back.
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e Entry) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := o.Confirm(e.TempID, persistedFor(e, fmt.Sprintf("srv-%d", i)))
				require.NoError(t, err)
			} else {
				_, err := o.Rollback(e.TempID)
				require.NoError(t, err)
			}
		}(i, e)
	}
	wg.Wait()

	got := o.Messages()
	require.Len(t, got, n/2)
	require.Zero(t, o.PendingCount())
	for _, e := range got {
		require.False(t, e.Pending)
		require.Contains(t, e.Message.ID, "srv-")
	}
}

func TestOutboxObserveDeduplicatesEcho(t *testing.T) {
	t.Parallel()

	o := NewOutbox()
	e := o.Track("alice", "bob", "hello", "")

	persisted := persistedFor(e, "m1")
	_, err := o.Confirm(e.TempID, persisted)
	require.NoError(t, err)

	// The relay echo of our own send arrives over the websocket.
	o.Observe(persisted)
	require.Len(t, o.Messages(), 1, "echo must not duplicate a confirmed send")

	// A genuinely new incoming message still lands.
	o.Observe(v1.MessagePayload{ID: "m2", SenderID: "bob", RecipientID: "alice", Text: "reply"})
	require.Len(t, o.Messages(), 2)
}

func TestOutboxEchoBeforeConfirmDoesNotDuplicate(t *testing.T) {
	t.Parallel()

	o := NewOutbox()
	e := o.Track("alice", "bob", "hello", "")
	persisted := persistedFor(e, "m1")

	// The websocket echo can beat the REST response: before hello.ack the
	// client has no connection id to present, so the server echoes the send
	// back to its own socket.
	o.Observe(persisted)
	require.Len(t, o.Messages(), 2, "placeholder plus observed echo")

	confirmed, err := o.Confirm(e.TempID, persisted)
	require.NoError(t, err)
	require.False(t, confirmed.Pending)
	require.Equal(t, "m1", confirmed.Message.ID)
	require.Equal(t, e.TempID, confirmed.TempID)

	got := o.Messages()
	require.Len(t, got, 1, "message must appear exactly once")
	require.Equal(t, "m1", got[0].Message.ID)
	require.Zero(t, o.PendingCount())

	// The temp id is spent either way.
	_, err = o.Confirm(e.TempID, persisted)
	require.ErrorIs(t, err, ErrUnknownTempID)
}

func TestOutboxEchoBeforeConfirmKeepsOtherPending(t *testing.T) {
	t.Parallel()

	o := NewOutbox()
	first := o.Track("alice", "bob", "first", "")
	second := o.Track("alice", "bob", "second", "")

	persisted := persistedFor(first, "m1")
	o.Observe(persisted)

	_, err := o.Confirm(first.TempID, persisted)
	require.NoError(t, err)

	got := o.Messages()
	require.Len(t, got, 2)
	require.True(t, got[0].Pending, "the unrelated send stays pending")
	require.Equal(t, second.TempID, got[0].TempID)
	require.Equal(t, "m1", got[1].Message.ID, "the echo keeps its observed position")
}

func TestOutboxSeedKeepsPendingTail(t *testing.T) {
	t.Parallel()

	o := NewOutbox()
	e := o.Track("alice", "bob", "inflight", "")

	o.Seed([]v1.MessagePayload{
		{ID: "m1", SenderID: "bob", RecipientID: "alice", Text: "old"},
		{ID: "m2", SenderID: "alice", RecipientID: "bob", Text: "older reply"},
	})

	got := o.Messages()
	require.Len(t, got, 3)
	require.Equal(t, "m1", got[0].Message.ID)
	require.Equal(t, "m2", got[1].Message.ID)
	require.True(t, got[2].Pending)
	require.Equal(t, e.TempID, got[2].TempID)
}
