package chat

import (
	"encoding/json"
	"log/slog"
	"time"

	v1 "duplex/shared/contracts/chat/v1"
)

// Broadcaster fans the current online-user-id set out to every live
// connection whenever a presence transition occurs.
//
// Trigger discipline: callers invoke OnTransition with the result of a
// registry mutation; only TransitionOnline/TransitionOffline produce a
// broadcast. Adding a second device to an already-online user is silent.
type Broadcaster struct {
	log      *slog.Logger
	registry *Registry
}

// NewBroadcaster constructs a Broadcaster over the given registry.
func NewBroadcaster(log *slog.Logger, registry *Registry) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{log: log, registry: registry}
}

// OnTransition broadcasts presence when t is an actual transition.
func (b *Broadcaster) OnTransition(t Transition) {
	if b == nil || t == TransitionNone {
		return
	}
	b.Broadcast()
}

// Broadcast snapshots the online set and enqueues it to every client.
// The snapshot and the recipient list come from the same registry, so a
// client that registered before the triggering transition observes a state
// at least as new as that transition.
//
// Non-blocking: clients with a full queue miss this cycle and converge on
// the next transition's broadcast.
func (b *Broadcaster) Broadcast() {
	if b == nil || b.registry == nil {
		return
	}

	online := b.registry.OnlineUsers()
	env, err := NewPresenceEnvelope(online, time.Now().UTC())
	if err != nil {
		b.log.Error("presence.envelope.fail", "err", err)
		return
	}

	clients := b.registry.AllClients()
	dropped := 0
	for _, c := range clients {
		if !c.TryEnqueue(env) {
			dropped++
		}
	}

	presenceBroadcasts.Inc()
	onlineUsersGauge.Set(float64(len(online)))

	b.log.Info("presence.broadcast",
		"online", len(online), "clients", len(clients), "dropped", dropped)
}

// NewPresenceEnvelope builds the wire envelope for a presence snapshot.
func NewPresenceEnvelope(onlineUserIDs []string, now time.Time) (v1.Envelope, error) {
	payload, err := json.Marshal(v1.PresencePayload{OnlineUserIDs: onlineUserIDs})
	if err != nil {
		return v1.Envelope{}, err
	}
	return newEnvelope(v1.TypePresence, payload, now)
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) (v1.Envelope, error) {
	id, err := NewEnvelopeID(ts)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      ts,
		Payload: payload,
	}, nil
}
