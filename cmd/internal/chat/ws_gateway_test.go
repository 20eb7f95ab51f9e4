package chat

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"duplex/cmd/identity"
)

func TestOriginHostOnly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"http://localhost", "localhost"},
		{"http://localhost:3000", "localhost"},
		{"https://Chat.Example.COM", "chat.example.com"},
		{"chat.example.com:8443", "chat.example.com"},
		{"chat.example.com", "chat.example.com"},
		{"  http://127.0.0.1:5173  ", "127.0.0.1"},
	}
	for _, tc := range cases {
		if got := originHostOnly(tc.in); got != tc.want {
			t.Errorf("originHostOnly(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatternsFromAllowedOrigins([]string{
		"http://localhost:3000",
		"https://chat.example.com",
		"http://localhost", // duplicate host after normalization
		"*",                // wildcard never becomes a pattern
		"",
	})
	want := []string{"chat.example.com", "localhost"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("patterns=%v want %v", got, want)
	}
}

func TestEnforceOrigin(t *testing.T) {
	t.Parallel()

	newGateway := func(cfg WSConfig) *WSGateway {
		return NewWSGateway(testLogger(), identity.NewStaticGate("alice"), nil, nil, cfg)
	}

	cases := []struct {
		name    string
		cfg     WSConfig
		origin  string
		wantErr bool
	}{
		{
			name:    "missing origin rejected when required",
			cfg:     WSConfig{OriginRequired: true},
			origin:  "",
			wantErr: true,
		},
		{
			name:    "missing origin allowed when not required",
			cfg:     WSConfig{OriginRequired: false},
			origin:  "",
			wantErr: false,
		},
		{
			name:    "default allowlist accepts localhost with port",
			cfg:     WSConfig{OriginRequired: true},
			origin:  "http://localhost:5173",
			wantErr: false,
		},
		{
			name:    "exact origin match",
			cfg:     WSConfig{AllowedOrigins: []string{"https://chat.example.com"}},
			origin:  "https://chat.example.com",
			wantErr: false,
		},
		{
			name:    "host match ignores scheme and port",
			cfg:     WSConfig{AllowedOrigins: []string{"https://chat.example.com"}},
			origin:  "http://chat.example.com:8080",
			wantErr: false,
		},
		{
			name:    "unlisted host rejected",
			cfg:     WSConfig{AllowedOrigins: []string{"https://chat.example.com"}},
			origin:  "https://evil.example.com",
			wantErr: true,
		},
		{
			name:    "explicit wildcard honored",
			cfg:     WSConfig{AllowedOrigins: []string{"*"}},
			origin:  "https://anywhere.example.com",
			wantErr: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g := newGateway(tc.cfg)
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			err := g.enforceOrigin(r)
			if tc.wantErr && err == nil {
				t.Fatal("expected rejection, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
		})
	}
}

func TestWSConfigWithDefaults(t *testing.T) {
	t.Parallel()

	t.Run("zero config falls back across the board", func(t *testing.T) {
		t.Parallel()

		got := WSConfig{}.withDefaults()
		def := DefaultWSConfig()

		if !reflect.DeepEqual(got.AllowedOrigins, def.AllowedOrigins) {
			t.Errorf("AllowedOrigins=%v want %v", got.AllowedOrigins, def.AllowedOrigins)
		}
		if got.WriteTimeout != def.WriteTimeout || got.ReadIdleTimeout != def.ReadIdleTimeout {
			t.Errorf("timeouts %v/%v want %v/%v", got.WriteTimeout, got.ReadIdleTimeout, def.WriteTimeout, def.ReadIdleTimeout)
		}
		if got.SendQueueSize != def.SendQueueSize {
			t.Errorf("SendQueueSize=%d want %d", got.SendQueueSize, def.SendQueueSize)
		}
		if got.RateEvents != def.RateEvents || got.RateWindow != def.RateWindow {
			t.Errorf("rate %d/%v want %d/%v", got.RateEvents, got.RateWindow, def.RateEvents, def.RateWindow)
		}
	})

	t.Run("explicit values survive", func(t *testing.T) {
		t.Parallel()

		in := WSConfig{
			AllowedOrigins:  []string{"https://chat.example.com"},
			WriteTimeout:    11 * time.Second,
			ReadIdleTimeout: 3 * time.Minute,
			SendQueueSize:   512,
			RateEvents:      10,
			RateWindow:      time.Second,
		}
		got := in.withDefaults()
		if !reflect.DeepEqual(got.AllowedOrigins, in.AllowedOrigins) || got.WriteTimeout != in.WriteTimeout ||
			got.SendQueueSize != in.SendQueueSize || got.RateEvents != in.RateEvents {
			t.Fatalf("explicit values overwritten: %+v", got)
		}
	})

	t.Run("tiny send queue is bumped to default", func(t *testing.T) {
		t.Parallel()

		got := WSConfig{SendQueueSize: 1}.withDefaults()
		if got.SendQueueSize != wsDefaultSendQueueSize {
			t.Fatalf("SendQueueSize=%d want %d", got.SendQueueSize, wsDefaultSendQueueSize)
		}
	})
}

func TestHandleWSRejections(t *testing.T) {
	t.Parallel()

	t.Run("bad origin is forbidden before upgrade", func(t *testing.T) {
		t.Parallel()

		g := NewWSGateway(testLogger(), identity.NewStaticGate("alice"), nil, nil, WSConfig{
			AllowedOrigins: []string{"https://chat.example.com"},
		})
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()

		g.HandleWS(w, r)
		if w.Code != http.StatusForbidden {
			t.Fatalf("status=%d want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("unauthenticated is 401 before upgrade", func(t *testing.T) {
		t.Parallel()

		g := NewWSGateway(testLogger(), identity.NewStaticGate("alice"), nil, nil, WSConfig{OriginRequired: false})
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		// No X-Duplex-User header: the static gate rejects the request.
		w := httptest.NewRecorder()

		g.HandleWS(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status=%d want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
