package chat

import (
	"encoding/json"
	"testing"
	"time"

	v1 "duplex/shared/contracts/chat/v1"

	"github.com/stretchr/testify/require"
)

func testMessage(id, sender, recipient, text string, at time.Time) Message {
	return Message{
		ID:          id,
		SenderID:    sender,
		RecipientID: recipient,
		Text:        text,
		CreatedAt:   at,
	}
}

// drainMessages pops queued message.new envelopes for c.
func drainMessages(t *testing.T, c *Client) []v1.MessagePayload {
	t.Helper()

	var out []v1.MessagePayload
	for {
		select {
		case env := <-c.Send:
			if env.Type != v1.TypeMessageNew {
				continue
			}
			var p v1.MessagePayload
			require.NoError(t, json.Unmarshal(env.Payload, &p))
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestRelay_OfflineRecipientIsNoop(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	r := NewRegistry(testLogger())
	relay := NewRelay(testLogger(), r)

	// Nobody online: Deliver must return without effect.
	relay.Deliver(testMessage("m1", "alice", "bob", "hi", time.Now().UTC()), "")
	req.False(r.IsOnline("bob"))
}

func TestRelay_MultiDeviceFanout(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	r := NewRegistry(testLogger())
	relay := NewRelay(testLogger(), r)

	phone := NewClient("bob", "bob-phone", 16)
	laptop := NewClient("bob", "bob-laptop", 16)
	r.Register(phone)
	r.Register(laptop)

	msg := testMessage("m1", "alice", "bob", "hi bob", time.Now().UTC())
	relay.Deliver(msg, "")

	for _, c := range []*Client{phone, laptop} {
		got := drainMessages(t, c)
		req.Len(got, 1)
		req.Equal("m1", got[0].ID)
		req.Equal("hi bob", got[0].Text)
		req.Equal("alice", got[0].SenderID)
	}
}

func TestRelay_PreservesSendOrderPerHandle(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	r := NewRegistry(testLogger())
	relay := NewRelay(testLogger(), r)

	bob := NewClient("bob", "bob-1", 64)
	r.Register(bob)

	base := time.Now().UTC()
	relay.Deliver(testMessage("m1", "alice", "bob", "first", base), "")
	relay.Deliver(testMessage("m2", "alice", "bob", "second", base.Add(time.Millisecond)), "")

	got := drainMessages(t, bob)
	req.Len(got, 2)
	req.Equal("m1", got[0].ID)
	req.Equal("m2", got[1].ID)
}

func TestRelay_EchoesToSenderOtherDevicesOnly(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	r := NewRegistry(testLogger())
	relay := NewRelay(testLogger(), r)

	origin := NewClient("alice", "alice-web", 16)
	tablet := NewClient("alice", "alice-tablet", 16)
	bob := NewClient("bob", "bob-1", 16)
	r.Register(origin)
	r.Register(tablet)
	r.Register(bob)

	relay.Deliver(testMessage("m1", "alice", "bob", "hi", time.Now().UTC()), "alice-web")

	// The origin device already shows the message optimistically.
	req.Empty(drainMessages(t, origin))
	req.Len(drainMessages(t, tablet), 1)
	req.Len(drainMessages(t, bob), 1)
}

func TestRelay_FullQueueIsDroppedNotFatal(t *testing.T) {
	t.Parallel()
	req := require.New(t)

	r := NewRegistry(testLogger())
	relay := NewRelay(testLogger(), r)

	bob := NewClient("bob", "bob-1", 1)
	r.Register(bob)

	base := time.Now().UTC()
	relay.Deliver(testMessage("m1", "alice", "bob", "fills the queue", base), "")
	// Queue is now full; this push is dropped and only logged.
	relay.Deliver(testMessage("m2", "alice", "bob", "dropped", base.Add(time.Millisecond)), "")

	got := drainMessages(t, bob)
	req.Len(got, 1)
	req.Equal("m1", got[0].ID)
}
