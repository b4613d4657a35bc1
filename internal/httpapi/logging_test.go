package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qms/internal/engine"
	"qms/internal/hub"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestLoggingMiddlewareAllowsWebsocketUpgrade(t *testing.T) {
	h := hub.New(hub.Options{Logger: zerolog.Nop()})
	queue, err := engine.New(context.Background(), engine.Options{Publisher: h, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	realtime := NewRealtimeHandler(h, queue.Snapshot, zerolog.Nop())
	handler := NewHandler(queue, Options{Realtime: realtime, Logger: zerolog.Nop()})
	server := httptest.NewServer(LoggingMiddleware(zerolog.Nop(), handler.Routes()))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/realtime/000/viewer1/websocket"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial through middleware: status=%d err=%v", status, err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read open frame: %v", err)
	}
	if string(frame) != "o" {
		t.Fatalf("expected open frame, got %q", frame)
	}
	_, frame, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read snapshot frame: %v", err)
	}
	if !strings.HasPrefix(string(frame), "a[") || !strings.Contains(string(frame), hub.EventSnapshot) {
		t.Fatalf("expected snapshot frame, got %q", frame)
	}
}

func TestStatusWriterHijackRequiresHijacker(t *testing.T) {
	writer := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := writer.Hijack(); err == nil {
		t.Fatalf("expected error from recorder without hijack support")
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/api/tokens":                        "/api/tokens",
		"/api/tokens/abc":                    "/api/tokens/{id}",
		"/api/tokens/abc/actions/start":      "/api/tokens/{id}/actions/start",
		"/api/counters/c1/actions/call-next": "/api/counters/{id}/actions/call-next",
		"/realtime/123/xyz/xhr_streaming":    "/realtime",
		"/healthz":                           "/healthz",
		"/api/counters/c1/history":           "/api/counters/{id}/history",
		"/api/admin/services/s1":             "/api/admin/services/{id}",
		"/api/admin/operators/assign":        "/api/admin/operators/assign",
		"/api/tokens/abc/events":             "/api/tokens/{id}/events",
		"/api/tokens/abc/actions/explode":    unmatchedRoute,
		"/api/nope":                          unmatchedRoute,
		"/wp-login.php":                      unmatchedRoute,
		"/":                                  unmatchedRoute,
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
