package livespec

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func counterMount(t *testing.T, initial float64) *LiveHandler {
	t.Helper()
	h, err := Mount(MountConfig{
		Session: SessionConfig{
			Logger:       quietLogger(),
			InitialState: map[string]interface{}{"count": initial},
			Handlers: Handlers{
				"increment": func(ctx *ActionContext) error {
					v, _ := ctx.State.Get("/count")
					n, _ := v.(float64)
					ctx.State.Set("/count", n+1)
					return nil
				},
			},
		},
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	return h
}

// incrementSpecPayload binds the click to the mount's custom handler, so
// event tests observe live-state reads rather than an absolute write.
func incrementSpecPayload() map[string]interface{} {
	payload := counterSpecPayload()
	elements := payload["elements"].(map[string]interface{})
	elements["inc"].(map[string]interface{})["on"] = map[string]interface{}{
		"click": map[string]interface{}{"action": "increment"},
	}
	return payload
}

func TestMountHTTPSnapshot(t *testing.T) {
	h := counterMount(t, 0)
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Livespec-WebSocket") != "enabled" {
		t.Error("expected WebSocket capability header")
	}

	var groupCookie string
	for _, c := range resp.Cookies() {
		if c.Name == "livespec-group" {
			groupCookie = c.Value
		}
	}
	if groupCookie == "" {
		t.Fatal("expected livespec-group cookie on first request")
	}

	var response UpdateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Meta == nil || !response.Meta.Success {
		t.Error("expected successful snapshot")
	}
}

func TestMountHTTPEvent(t *testing.T) {
	h := counterMount(t, 40)
	server := httptest.NewServer(h)
	defer server.Close()

	// First request establishes the group; keep the cookie.
	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	cookies := resp.Cookies()

	var groupID string
	for _, c := range cookies {
		if c.Name == "livespec-group" {
			groupID = c.Value
		}
	}
	if groupID == "" {
		t.Fatal("expected group cookie")
	}

	// Load the spec into the group's session directly, as a server
	// driving the stream would.
	session, _, ok := h.Group(groupID)
	if !ok {
		t.Fatal("expected group to exist")
	}
	if !session.Apply(incrementSpecPayload()) {
		t.Fatal("expected spec payload to apply")
	}
	session.Store().Set("/count", float64(41))

	event, _ := json.Marshal(map[string]interface{}{
		"event":   "click",
		"element": "inc",
	})
	req, _ := http.NewRequest(http.MethodPost, server.URL, bytes.NewReader(event))
	req.Header.Set("X-Livespec-Group", groupID)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp2.Body.Close()

	// The click handler increments against live state, observing the
	// seeded value, not the initial one.
	got, _ := session.Store().Get("/count")
	if got != float64(42) {
		t.Errorf("expected count 42 after click, got %v", got)
	}

	var response UpdateResponse
	if err := json.NewDecoder(resp2.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Meta == nil || response.Meta.Event != "click" {
		t.Error("expected event metadata on response")
	}
}

func TestMountWebSocket(t *testing.T) {
	h := counterMount(t, 0)
	server := httptest.NewServer(h)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Initial frame carries a resume token.
	initial := readResponse(t, conn)
	if initial.Meta == nil || initial.Meta.ResumeToken == "" {
		t.Fatal("expected resume token on initial frame")
	}

	// Stream the spec in over the socket.
	writeJSON(t, conn, map[string]interface{}{"type": "begin"})
	writeJSON(t, conn, map[string]interface{}{"type": "patch", "patch": counterSpecPayload()})
	writeJSON(t, conn, map[string]interface{}{"type": "end"})

	// The patch triggers broadcast frames; wait for one whose tree
	// contains the label element.
	waitForFrame(t, conn, func(r UpdateResponse) bool {
		data, _ := json.Marshal(r.Tree)
		return bytes.Contains(data, []byte("label"))
	})

	// A UI event answers the sender directly.
	writeJSON(t, conn, map[string]interface{}{
		"type":    "event",
		"event":   "click",
		"element": "inc",
	})
	waitForFrame(t, conn, func(r UpdateResponse) bool {
		return r.Meta != nil && r.Meta.Event == "click"
	})
}

func TestMountWebSocketDisabled(t *testing.T) {
	h, err := Mount(MountConfig{WebSocketDisabled: true})
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Livespec-WebSocket") != "disabled" {
		t.Error("expected disabled capability header")
	}

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, _, err = websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Error("expected WebSocket dial to fail when disabled")
	}
}

func TestMountMetrics(t *testing.T) {
	h := counterMount(t, 0)
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	m := h.Metrics().GetMetrics()
	if m.SessionsCreated != 1 {
		t.Errorf("expected 1 session created, got %d", m.SessionsCreated)
	}
	if m.ActiveSessions != 1 {
		t.Errorf("expected 1 active session, got %d", m.ActiveSessions)
	}
}

func TestMountCloseGroup(t *testing.T) {
	h := counterMount(t, 0)
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	var groupID string
	for _, c := range resp.Cookies() {
		if c.Name == "livespec-group" {
			groupID = c.Value
		}
	}

	if _, _, ok := h.Group(groupID); !ok {
		t.Fatal("expected group to exist")
	}
	h.CloseGroup(groupID)
	if _, _, ok := h.Group(groupID); ok {
		t.Error("expected group to be gone after CloseGroup")
	}

	m := h.Metrics().GetMetrics()
	if m.SessionsClosed != 1 {
		t.Errorf("expected 1 session closed, got %d", m.SessionsClosed)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readResponse(t *testing.T, conn *websocket.Conn) UpdateResponse {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var response UpdateResponse
	if err := json.Unmarshal(data, &response); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return response
}

func waitForFrame(t *testing.T, conn *websocket.Conn, match func(UpdateResponse) bool) UpdateResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		response := readResponse(t, conn)
		if match(response) {
			return response
		}
	}
	t.Fatal("no matching frame before deadline")
	return UpdateResponse{}
}

// A cancelled context through the mount event path must not corrupt state.
func TestMountEventContext(t *testing.T) {
	h := counterMount(t, 0)
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	var groupID string
	for _, c := range resp.Cookies() {
		if c.Name == "livespec-group" {
			groupID = c.Value
		}
	}
	session, _, ok := h.Group(groupID)
	if !ok {
		t.Fatal("expected group")
	}
	session.Apply(incrementSpecPayload())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A cancelled context must not corrupt state; the handler either
	// runs to completion or not at all.
	_ = session.HandleEvent(ctx, "inc", "click", nil)
}
