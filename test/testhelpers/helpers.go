// Package testhelpers provides common utilities for testing the Hearth server.
//
// It contains reusable helpers shared across the integration tests: spinning
// up a test server, dialing the websocket endpoint, and exchanging JSON
// events with deadlines so a misbehaving server fails tests instead of
// hanging them.
package testhelpers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hearthchat/hearth/internal/server"
)

// NewChatServer builds a full router (hub, gateway, routes) with pinned
// join/leave phrasing and starts it on an httptest server. Auth is disabled
// unless creds customization is done by the caller via its own setup.
func NewChatServer(t *testing.T) (*httptest.Server, *server.Hub) {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}

	logger := zerolog.Nop()
	hub := server.NewHub(logger)
	hub.SetNoticeFuncs(
		func(u string) string { return u + " joined the room." },
		func(u string) string { return u + " left the room." },
	)
	gateway := server.NewGateway(hub, nil, false, logger)
	router := server.NewRouter(hub, gateway, cfg, logger)

	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return ts, hub
}

// DialWebSocket connects to the /ws endpoint of a test server.
func DialWebSocket(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	header := http.Header{}
	header.Set("Origin", serverURL)

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent marshals and writes one client event.
func SendEvent(t *testing.T, conn *websocket.Conn, ev server.ClientEvent) {
	t.Helper()
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("failed to send event: %v", err)
	}
}

// ReadEvent reads the next event, failing the test on timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	var ev map[string]any
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("failed to decode event %q: %v", raw, err)
	}
	return ev
}

// WaitForEvent reads events until one of the wanted type arrives, skipping
// unrelated broadcasts (room list refreshes interleave with everything).
func WaitForEvent(t *testing.T, conn *websocket.Conn, eventType string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ev := ReadEvent(t, conn, time.Until(deadline))
		if ev["type"] == eventType {
			return ev
		}
	}
	t.Fatalf("no %q event within %v", eventType, timeout)
	return nil
}

// WaitForMessage waits for a chat/system message with the exact text.
func WaitForMessage(t *testing.T, conn *websocket.Conn, text string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ev := WaitForEvent(t, conn, "message", time.Until(deadline))
		if ev["text"] == text {
			return ev
		}
	}
	t.Fatalf("no message %q within %v", text, timeout)
	return nil
}

// ExpectNoEvent asserts that nothing arrives within the window. The expired
// read deadline poisons the connection (gorilla treats any read error as
// permanent), so this must be the last read on conn.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected silence, got %s", raw)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for silence: %v", err)
}

// DrainEvents discards everything queued until the connection goes quiet.
func DrainEvents(t *testing.T, conn *websocket.Conn, quiet time.Duration) {
	t.Helper()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(quiet)); err != nil {
			t.Fatalf("failed to set read deadline: %v", err)
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			t.Fatalf("unexpected error while draining: %v", err)
		}
	}
}

// MakeRequest executes an HTTP request against a test server endpoint.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("failed to execute request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// AssertStatusCode checks the HTTP response status.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status code %d, got %d", expected, resp.StatusCode)
	}
}
