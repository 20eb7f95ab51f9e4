package clientkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	v1 "duplex/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

const (
	clientMaxReadBytes = 1 << 20
	clientHTTPTimeout  = 10 * time.Second
)

// ErrServerRejected carries the failure message from a non-2xx REST response.
type ErrServerRejected struct {
	Status  int
	Message string
}

func (e *ErrServerRejected) Error() string {
	return fmt.Sprintf("clientkit: server rejected request: status=%d message=%q", e.Status, e.Message)
}

// ChatSummary mirrors one entry of GET /api/messages/chats.
type ChatSummary struct {
	UserID            string    `json:"userId"`
	Username          string    `json:"username,omitempty"`
	ProfilePictureURL string    `json:"profilePictureUrl,omitempty"`
	LastMessageAt     time.Time `json:"lastMessageAt"`
}

// Contact mirrors one entry of GET /api/messages/contacts.
type Contact struct {
	UserID            string `json:"userId"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithToken authenticates requests with a bearer session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithUserHeader authenticates requests with the dev/test user header
// understood by the static gate.
func WithUserHeader(userID string) Option {
	return func(c *Client) { c.userHeader = strings.TrimSpace(userID) }
}

// WithOrigin sets the Origin header used on the websocket handshake.
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = strings.TrimSpace(origin) }
}

// Client is a thin REST + WebSocket client for a Duplex server.
type Client struct {
	baseURL string
	hc      *http.Client

	token      string
	userHeader string
	origin     string

	mu     sync.Mutex
	connID string // learned from hello.ack; echoed on sends to skip self-push
}

// New constructs a Client for the given server base URL (http:// or https://).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("clientkit: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("clientkit: base url must be http/https, got %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("clientkit: base url missing host")
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		hc:      &http.Client{Timeout: clientHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// ConnectionID returns the server-assigned websocket connection id, or ""
// before the hello.ack arrived.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// ---- REST ----

type sendBody struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Send posts a message to recipientID and returns the persisted record.
func (c *Client) Send(ctx context.Context, recipientID, text, imageURL string) (v1.MessagePayload, error) {
	var msg v1.MessagePayload
	err := c.doJSON(ctx, http.MethodPost,
		"/api/messages/send/"+url.PathEscape(recipientID),
		sendBody{Text: text, ImageURL: imageURL},
		&msg,
	)
	return msg, err
}

// History fetches the full conversation with counterpartID, oldest first.
func (c *Client) History(ctx context.Context, counterpartID string) ([]v1.MessagePayload, error) {
	var msgs []v1.MessagePayload
	err := c.doJSON(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(counterpartID), nil, &msgs)
	return msgs, err
}

// Chats fetches the caller's chat partners, most recent first.
func (c *Client) Chats(ctx context.Context) ([]ChatSummary, error) {
	var chats []ChatSummary
	err := c.doJSON(ctx, http.MethodGet, "/api/messages/chats", nil, &chats)
	return chats, err
}

// Contacts fetches every other known user.
func (c *Client) Contacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	err := c.doJSON(ctx, http.MethodGet, "/api/messages/contacts", nil, &contacts)
	return contacts, err
}

// SendOptimistic runs the full optimistic pipeline against outbox: track,
// send, then confirm on success or roll back on any failure. The returned
// entry reflects the final state; on error it is the removed pending entry.
func (c *Client) SendOptimistic(ctx context.Context, outbox *Outbox, recipientID, text, imageURL string) (Entry, error) {
	senderID := c.userHeader // best effort; the server resolves identity itself
	pending := outbox.Track(senderID, recipientID, text, imageURL)

	persisted, err := c.Send(ctx, recipientID, text, imageURL)
	if err != nil {
		removed, rbErr := outbox.Rollback(pending.TempID)
		if rbErr != nil {
			return Entry{}, errors.Join(err, rbErr)
		}
		return removed, err
	}

	return outbox.Confirm(pending.TempID, persisted)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("clientkit: marshal body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("clientkit: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req.Header)
	if connID := c.ConnectionID(); connID != "" {
		req.Header.Set("X-Duplex-Connection", connID)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("clientkit: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("clientkit: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		return &ErrServerRejected{Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("clientkit: decode data: %w", err)
		}
	}
	return nil
}

func (c *Client) setAuthHeaders(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	if c.userHeader != "" {
		h.Set("X-Duplex-User", c.userHeader)
	}
}

// ---- WebSocket ----

// Handlers receives decoded server pushes. Nil callbacks are skipped.
type Handlers struct {
	OnHelloAck func(v1.HelloAckPayload)
	OnPresence func(v1.PresencePayload)
	OnMessage  func(v1.MessagePayload)
	OnError    func(v1.ErrorPayload)
}

// Listen dials /ws and runs the read loop until ctx is cancelled or the
// connection drops. It blocks; run it in its own goroutine.
func (c *Client) Listen(ctx context.Context, h Handlers) error {
	wsURL, err := c.wsURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	c.setAuthHeaders(header)
	if c.origin != "" {
		header.Set("Origin", c.origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   header,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("clientkit: dial %s: %w", wsURL, err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(clientMaxReadBytes)

	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("clientkit: read: %w", err)
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("clientkit: bad envelope json: %w", err)
		}
		if err := env.Validate(); err != nil {
			return fmt.Errorf("clientkit: bad envelope: %w", err)
		}

		c.dispatch(env, h)
	}
}

func (c *Client) dispatch(env v1.Envelope, h Handlers) {
	switch env.Type {
	case v1.TypeHelloAck:
		var p v1.HelloAckPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			c.mu.Lock()
			c.connID = p.ConnectionID
			c.mu.Unlock()
			if h.OnHelloAck != nil {
				h.OnHelloAck(p)
			}
		}
	case v1.TypePresence:
		var p v1.PresencePayload
		if json.Unmarshal(env.Payload, &p) == nil && h.OnPresence != nil {
			h.OnPresence(p)
		}
	case v1.TypeMessageNew:
		var p v1.MessagePayload
		if json.Unmarshal(env.Payload, &p) == nil && h.OnMessage != nil {
			h.OnMessage(p)
		}
	case v1.TypeError:
		var p v1.ErrorPayload
		if json.Unmarshal(env.Payload, &p) == nil && h.OnError != nil {
			h.OnError(p)
		}
	case v1.TypePong:
		// Keep-alive ack; nothing to surface.
	}
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("clientkit: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	return u.String(), nil
}
