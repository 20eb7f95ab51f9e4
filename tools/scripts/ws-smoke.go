// Package main provides a CI-friendly smoke test for Duplex realtime.
//
// It validates, against a running server in dev (header gate) mode:
//   - handshake + subprotocol selection + hello.ack
//   - presence fan-out when a user comes online
//   - REST send -> 201 with persisted message
//   - message.new fanout to the recipient's connection
//   - history fetch contains the sent message
//   - chats listing contains the counterpart
//   - ping -> pong keep-alive
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"duplex/shared/clientkit"
	v1 "duplex/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name   string
	userID string
	conn   *websocket.Conn
	connID string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		userA   = flag.String("user-a", "smoke-alice", "First user id (dev header gate)")
		userB   = flag.String("user-b", "smoke-bob", "Second user id (dev header gate)")
		text    = flag.String("text", "hello duplex 👋", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	a := mustConnect(root, "A", *baseURL, *origin, *userA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *baseURL, *origin, *userB, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s origin=%q\n", a.connID, b.connID, *origin)
	}

	// A must learn that B came online.
	mustSeePresenceWith(root, a, *userB, *timeout)

	restA, err := clientkit.New(*baseURL, clientkit.WithUserHeader(*userA))
	if err != nil {
		fatalf("rest client: %v", err)
	}

	sent, err := restA.Send(root, *userB, *text, "")
	if err != nil {
		fatalf("rest send: %v", err)
	}
	if strings.TrimSpace(sent.ID) == "" {
		fatalf("send: missing server message id")
	}
	if sent.SenderID != *userA || sent.RecipientID != *userB {
		fatalf("send: party mismatch: %+v", sent)
	}

	mustAssertMessageNew(root, b, sent, *timeout)

	mustHistoryContains(root, restA, *userB, sent)
	mustChatsContain(root, restA, *userB)

	mustPingPong(root, a, *timeout)

	fmt.Printf("OK: A=%s B=%s message_id=%s\n", a.connID, b.connID, sent.ID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func wsEndpoint(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	default:
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}
}

func mustConnect(parent context.Context, name, baseURL, origin, userID string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("X-Duplex-User", userID)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsEndpoint(baseURL), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, v1.Subprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:   name,
		userID: userID,
		conn:   conn,
		inbox:  make(chan v1.Envelope, 512),
		errCh:  make(chan error, 1),
	}
	c.startReadLoop()

	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout, nil)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello.ack payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.ConnectionID) == "" {
		fatalf("hello.ack missing connection_id (%s)", name)
	}
	if p.UserID != userID {
		fatalf("hello.ack user mismatch (%s): got=%q want=%q", name, p.UserID, userID)
	}
	c.connID = p.ConnectionID

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustSeePresenceWith(parent context.Context, c *smokeClient, wantUserID string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for presence with %q (%s)", wantUserID, c.name)
		case err := <-c.errCh:
			fatalf("connection error while waiting for presence (%s): %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for presence (%s)", c.name)
			}
			if env.Type != v1.TypePresence {
				continue
			}
			var p v1.PresencePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				fatalf("unmarshal presence payload (%s): %v", c.name, err)
			}
			for _, id := range p.OnlineUserIDs {
				if id == wantUserID {
					return
				}
			}
		}
	}
}

func mustAssertMessageNew(parent context.Context, c *smokeClient, want v1.MessagePayload, stepTimeout time.Duration) {
	skip := map[string]struct{}{v1.TypePresence: {}}
	env := c.mustReadUntilType(parent, v1.TypeMessageNew, stepTimeout, skip)

	var p v1.MessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal message.new payload (%s): %v", c.name, err)
	}

	if p.ID != want.ID {
		fatalf("new id mismatch (%s): got=%q want=%q", c.name, p.ID, want.ID)
	}
	if p.SenderID != want.SenderID || p.RecipientID != want.RecipientID {
		fatalf("new party mismatch (%s): %+v", c.name, p)
	}
	if p.Text != want.Text {
		fatalf("new text mismatch (%s): got=%q want=%q", c.name, p.Text, want.Text)
	}
	if p.CreatedAt.IsZero() {
		fatalf("new created_at missing/zero (%s)", c.name)
	}
}

func mustHistoryContains(parent context.Context, rest *clientkit.Client, counterpartID string, want v1.MessagePayload) {
	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()

	msgs, err := rest.History(ctx, counterpartID)
	if err != nil {
		fatalf("history fetch: %v", err)
	}
	for _, m := range msgs {
		if m.ID == want.ID && m.Text == want.Text {
			return
		}
	}
	fatalf("history missing expected message %s", want.ID)
}

func mustChatsContain(parent context.Context, rest *clientkit.Client, counterpartID string) {
	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()

	chats, err := rest.Chats(ctx)
	if err != nil {
		fatalf("chats fetch: %v", err)
	}
	for _, c := range chats {
		if c.UserID == counterpartID {
			return
		}
	}
	fatalf("chats missing counterpart %s", counterpartID)
}

func mustPingPong(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	nonce := fmt.Sprintf("smoke-%d", time.Now().UnixNano())

	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypePing,
		ID:      fmt.Sprintf("%s-ping", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.PingPayload{Nonce: nonce}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	skip := map[string]struct{}{v1.TypePresence: {}, v1.TypeMessageNew: {}}
	pong := c.mustReadUntilType(parent, v1.TypePong, stepTimeout, skip)

	var p v1.PongPayload
	if err := json.Unmarshal(pong.Payload, &p); err != nil {
		fatalf("unmarshal pong payload (%s): %v", c.name, err)
	}
	if p.Nonce != nonce {
		fatalf("pong nonce mismatch (%s): got=%q want=%q", c.name, p.Nonce, nonce)
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
