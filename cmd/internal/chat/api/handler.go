package chatapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"duplex/cmd/identity"
	"duplex/cmd/internal/chat"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const defaultMaxBodyBytes = 1 << 20

// originConnHeader lets a sending device name its own websocket connection
// so the relay echo skips it; the device already renders the message
// optimistically.
const originConnHeader = "X-Duplex-Connection"

// Config carries the REST surface's tunables.
type Config struct {
	MaxBodyBytes int64
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

// Handler wires the message REST endpoints to the store, relay and directory.
type Handler struct {
	log       *slog.Logger
	gate      identity.Gate
	store     chat.MessageStore
	relay     *chat.Relay
	directory identity.Directory
	cfg       Config
	validate  *validator.Validate
}

// NewHandler constructs the REST handler. directory may be nil; the contacts
// endpoint then reports 503 and chat summaries stay unhydrated.
func NewHandler(log *slog.Logger, gate identity.Gate, store chat.MessageStore, relay *chat.Relay, directory identity.Directory, cfg Config) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:       log,
		gate:      gate,
		store:     store,
		relay:     relay,
		directory: directory,
		cfg:       cfg.withDefaults(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes returns the router for mounting under /api/messages.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireUser)

	r.Get("/contacts", h.handleContacts)
	r.Get("/chats", h.handleChats)
	r.Get("/{id}", h.handleHistory)
	r.Post("/send/{id}", h.handleSend)

	return r
}

// requireUser resolves the caller through the identity gate and stashes the
// user id in the request context.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.gate.UserID(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithUserID(r.Context(), userID)))
	})
}

// ---- handlers ----

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	recipientID := strings.TrimSpace(chi.URLParam(r, "id"))
	if recipientID == "" {
		writeError(w, http.StatusBadRequest, "recipient id is required")
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message fields")
		return
	}

	ctx := r.Context()
	start := time.Now()
	msg, err := h.store.Append(ctx, chat.AppendInput{
		SenderID:    userID,
		RecipientID: recipientID,
		Text:        req.Text,
		ImageURL:    req.ImageURL,
	})
	chat.ObserveAppend(time.Since(start).Seconds())
	if err != nil {
		switch {
		case chat.IsValidation(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case chat.IsStorage(err):
			h.log.Error("api.send.store.fail", "err", err, "sender", userID)
			writeError(w, http.StatusBadGateway, "message store unavailable")
		default:
			h.log.Error("api.send.fail", "err", err, "sender", userID)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	// Persisted; realtime push is best effort and never fails the request.
	if h.relay != nil {
		h.relay.Deliver(msg, strings.TrimSpace(r.Header.Get(originConnHeader)))
	}

	writeData(w, http.StatusCreated, msg)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	counterpartID := strings.TrimSpace(chi.URLParam(r, "id"))
	if counterpartID == "" {
		writeError(w, http.StatusBadRequest, "counterpart id is required")
		return
	}

	msgs, err := h.store.History(r.Context(), userID, counterpartID)
	if err != nil {
		h.writeStoreError(w, "api.history.fail", err, userID)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeData(w, http.StatusOK, msgs)
}

func (h *Handler) handleChats(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx := r.Context()
	partners, err := h.store.PartnersOf(ctx, userID)
	if err != nil {
		h.writeStoreError(w, "api.chats.fail", err, userID)
		return
	}

	out := make([]chatSummary, 0, len(partners))
	for _, p := range partners {
		s := toChatSummary(p)
		if h.directory != nil {
			if u, err := h.directory.Lookup(ctx, p.UserID); err == nil {
				s.Username = u.Username
				s.ProfilePictureURL = u.ProfilePictureURL
			}
		}
		out = append(out, s)
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) handleContacts(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.directory == nil {
		writeError(w, http.StatusServiceUnavailable, "user directory not configured")
		return
	}

	users, err := h.directory.Others(r.Context(), userID)
	if err != nil {
		h.log.Error("api.contacts.fail", "err", err, "user", userID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]contactResponse, 0, len(users))
	for _, u := range users {
		out = append(out, contactResponse{
			UserID:            u.ID,
			Username:          u.Username,
			ProfilePictureURL: u.ProfilePictureURL,
		})
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, event string, err error, userID string) {
	if chat.IsStorage(err) {
		h.log.Error(event, "err", err, "user", userID)
		writeError(w, http.StatusBadGateway, "message store unavailable")
		return
	}
	h.log.Error(event, "err", err, "user", userID)
	writeError(w, http.StatusInternalServerError, "internal error")
}
