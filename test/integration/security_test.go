// Package integration contains security-focused integration tests.
//
// These tests verify that connection-level constraints are enforced: origin
// validation on the websocket handshake and the maximum inbound message size.
package integration

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hearthchat/hearth/internal/server"
	"github.com/hearthchat/hearth/test/testhelpers"
)

// newRestrictedServer starts a server with a specific config instead of the
// permissive defaults the shared helper uses.
func newRestrictedServer(t *testing.T, cfg server.Config) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	hub := server.NewHub(logger)
	gateway := server.NewGateway(hub, nil, false, logger)
	router := server.NewRouter(hub, gateway, cfg, logger)

	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return ts
}

func dialWithOrigin(ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/ws"

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(u.String(), header)
}

func TestOriginEnforcement(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{"http://trusted.example"}
	ts := newRestrictedServer(t, cfg)

	cases := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"allowed origin", "http://trusted.example", true},
		{"disallowed origin", "http://evil.example", false},
		{"missing origin", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := dialWithOrigin(ts, tc.origin)
			if tc.allowed {
				if err != nil {
					t.Fatalf("handshake should succeed: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("handshake should have been rejected")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("expected 403 rejection, got %v", resp)
			}
		})
	}
}

func TestOversizedMessageClosesConnection(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	cfg.MaxMessageSize = 128
	ts := newRestrictedServer(t, cfg)

	conn := testhelpers.DialWebSocket(t, ts.URL)
	testhelpers.SendEvent(t, conn, server.ClientEvent{Type: server.EventSetUsername, Username: "alice"})
	testhelpers.SendEvent(t, conn, server.ClientEvent{Type: server.EventCreateRoom, RoomName: "den"})
	testhelpers.WaitForEvent(t, conn, "joined_room", eventTimeout)

	testhelpers.SendEvent(t, conn, server.ClientEvent{
		Type: server.EventChatMessage,
		Text: strings.Repeat("x", 4096),
	})

	// The read limit trips server-side and the connection is torn down.
	deadline := time.Now().Add(eventTimeout)
	closed := false
	for time.Now().Before(deadline) {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("failed to set read deadline: %v", err)
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			closed = true
			break
		}
	}
	if !closed {
		t.Error("connection survived an oversized message")
	}
}

func TestWithinLimitMessageSurvives(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	cfg.MaxMessageSize = 512
	ts := newRestrictedServer(t, cfg)

	conn := testhelpers.DialWebSocket(t, ts.URL)
	testhelpers.SendEvent(t, conn, server.ClientEvent{Type: server.EventSetUsername, Username: "alice"})
	testhelpers.SendEvent(t, conn, server.ClientEvent{Type: server.EventCreateRoom, RoomName: "den"})
	testhelpers.WaitForEvent(t, conn, "joined_room", eventTimeout)

	testhelpers.SendEvent(t, conn, server.ClientEvent{Type: server.EventChatMessage, Text: "small enough"})
	testhelpers.WaitForMessage(t, conn, "small enough", eventTimeout)
}
