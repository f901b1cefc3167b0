package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/the-lightning-land/netcheckd/connectivity"
)

type fakeObserver struct {
	mu     sync.Mutex
	target string
}

func (o *fakeObserver) Target() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.target
}

func (o *fakeObserver) SetTarget(target string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.target = target
}

func getConnectivity(t *testing.T, server *httptest.Server) map[string]interface{} {
	t.Helper()

	resp, err := http.Get(server.URL + "/api/v1/connectivity")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %v, want %v", resp.StatusCode, http.StatusOK)
	}

	body := map[string]interface{}{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("could not decode response: %v", err)
	}

	return body
}

func TestGetConnectivity(t *testing.T) {
	observer := &fakeObserver{target: "https://example.com"}
	api := New(&Config{Observer: observer})

	server := httptest.NewServer(api)
	defer server.Close()

	got := getConnectivity(t, server)

	want := map[string]interface{}{
		"available":      false,
		"type":           nil,
		"target":         "https://example.com",
		"host_connected": nil,
		"checked_at":     nil,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("initial snapshot mismatch (-want +got):\n%s", diff)
	}

	api.OnNetworkChanged(connectivity.AvailableVia(connectivity.Wifi))
	api.OnHostConnected(true)

	got = getConnectivity(t, server)

	if _, ok := got["checked_at"].(string); !ok {
		t.Errorf("checked_at = %v, want a timestamp", got["checked_at"])
	}
	delete(got, "checked_at")

	want = map[string]interface{}{
		"available":      true,
		"type":           "WIFI",
		"target":         "https://example.com",
		"host_connected": true,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	api.OnNetworkChanged(connectivity.Unavailable())

	got = getConnectivity(t, server)

	if got["available"] != false || got["type"] != nil {
		t.Errorf("snapshot after loss = %v, want unavailable without type", got)
	}

	if got["host_connected"] != nil || got["checked_at"] != nil {
		t.Errorf("snapshot after loss = %v, want the host result cleared", got)
	}
}

func TestPutTargetClearsHostResult(t *testing.T) {
	observer := &fakeObserver{target: "https://example.com"}
	api := New(&Config{Observer: observer})

	server := httptest.NewServer(api)
	defer server.Close()

	put := func(body string) {
		req, err := http.NewRequest(http.MethodPut, server.URL+"/api/v1/connectivity/target", strings.NewReader(body))
		if err != nil {
			t.Fatalf("could not create request: %v", err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT failed: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %v, want %v", resp.StatusCode, http.StatusOK)
		}
	}

	api.OnNetworkChanged(connectivity.AvailableVia(connectivity.Wifi))
	api.OnHostConnected(true)

	// setting the same target keeps the result
	put(`{"url":"https://example.com"}`)

	if got := getConnectivity(t, server); got["host_connected"] != true {
		t.Errorf("host_connected = %v after setting the same target, want true", got["host_connected"])
	}

	put(`{"url":"https://example.org"}`)

	got := getConnectivity(t, server)

	if got["host_connected"] != nil || got["checked_at"] != nil {
		t.Errorf("snapshot after target change = %v, want the host result cleared", got)
	}

	if got["available"] != true {
		t.Errorf("available = %v after target change, want true", got["available"])
	}
}

func TestPutTarget(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantTarget string
	}{
		{"https", `{"url":"https://example.org/health"}`, http.StatusOK, "https://example.org/health"},
		{"http", `{"url":"http://example.org"}`, http.StatusOK, "http://example.org"},
		{"empty disables", `{"url":""}`, http.StatusOK, ""},
		{"unsupported scheme", `{"url":"ftp://example.org"}`, http.StatusBadRequest, "https://example.com"},
		{"uppercase scheme", `{"url":"HTTPS://example.org"}`, http.StatusOK, "HTTPS://example.org"},
		{"relative", `{"url":"/health"}`, http.StatusBadRequest, "https://example.com"},
		{"no host", `{"url":"http:foo"}`, http.StatusBadRequest, "https://example.com"},
		{"malformed", `{"url":`, http.StatusBadRequest, "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &fakeObserver{target: "https://example.com"}
			api := New(&Config{Observer: observer})

			server := httptest.NewServer(api)
			defer server.Close()

			req, err := http.NewRequest(http.MethodPut, server.URL+"/api/v1/connectivity/target", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("could not create request: %v", err)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("PUT failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %v, want %v", resp.StatusCode, tt.wantStatus)
			}

			if got := observer.Target(); got != tt.wantTarget {
				t.Errorf("target = %q, want %q", got, tt.wantTarget)
			}
		})
	}
}

func TestPutTargetWithoutObserver(t *testing.T) {
	api := New(&Config{})

	server := httptest.NewServer(api)
	defer server.Close()

	req, err := http.NewRequest(http.MethodPut, server.URL+"/api/v1/connectivity/target", strings.NewReader(`{"url":"https://example.org"}`))
	if err != nil {
		t.Fatalf("could not create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %v, want %v", resp.StatusCode, http.StatusServiceUnavailable)
	}

	api.SetObserver(&fakeObserver{})

	resp, err = http.Get(server.URL + "/api/v1/connectivity")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %v, want %v", resp.StatusCode, http.StatusOK)
	}
}

func dialEvents(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/connectivity/events"

	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("could not dial event stream: %v", err)
	}

	return c
}

func readEvent(t *testing.T, c *websocket.Conn) map[string]interface{} {
	t.Helper()

	c.SetReadDeadline(time.Now().Add(time.Second))

	e := map[string]interface{}{}
	if err := c.ReadJSON(&e); err != nil {
		t.Fatalf("could not read event: %v", err)
	}

	if _, ok := e["time"].(string); !ok {
		t.Errorf("event time = %v, want a timestamp", e["time"])
	}
	delete(e, "time")

	return e
}

func TestEventStream(t *testing.T) {
	api := New(&Config{Observer: &fakeObserver{}})

	server := httptest.NewServer(api)
	defer server.Close()

	c := dialEvents(t, server)
	defer c.Close()

	api.OnNetworkChanged(connectivity.AvailableVia(connectivity.Cellular))
	api.OnHostConnected(false)
	api.OnNetworkChanged(connectivity.Unavailable())

	got := []map[string]interface{}{
		readEvent(t, c),
		readEvent(t, c),
		readEvent(t, c),
	}

	want := []map[string]interface{}{
		{"kind": "network", "available": true, "type": "CELLULAR"},
		{"kind": "host", "host_connected": false},
		{"kind": "network", "available": false},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestShutdownClosesEventStreams(t *testing.T) {
	api := New(&Config{Observer: &fakeObserver{}})

	server := httptest.NewServer(api)
	defer server.Close()

	c := dialEvents(t, server)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := api.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	c.SetReadDeadline(time.Now().Add(time.Second))

	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNoStatusReceived) {
		t.Errorf("ReadMessage() error = %v, want close frame", err)
	}
}
