package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHA is a minimal Home Assistant websocket endpoint. Like the real
// server it rejects a message whose id does not exceed the previous one.
type fakeHA struct {
	t      *testing.T
	token  string
	server *httptest.Server

	mu       sync.Mutex
	received []map[string]any
	conn     *websocket.Conn
	failCall bool
}

func newFakeHA(t *testing.T, token string) *fakeHA {
	t.Helper()
	f := &fakeHA{t: t, token: token}
	upgrader := websocket.Upgrader{}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/websocket" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.serve(conn)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeHA) serve(conn *websocket.Conn) {
	defer conn.Close()

	//nolint:errcheck // test server
	conn.WriteJSON(map[string]any{"type": "auth_required", "ha_version": "2024.1.0"})

	var auth map[string]any
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth["access_token"] != f.token {
		//nolint:errcheck // test server
		conn.WriteJSON(map[string]any{"type": "auth_invalid", "message": "Invalid access token"})
		return
	}
	//nolint:errcheck // test server
	conn.WriteJSON(map[string]any{"type": "auth_ok", "ha_version": "2024.1.0"})

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	var lastID float64
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, msg)
		failCall := f.failCall
		f.mu.Unlock()

		id := msg["id"]
		n, _ := id.(float64)
		if n <= lastID {
			f.send(map[string]any{"id": id, "type": "result", "success": false,
				"error": map[string]any{"code": "id_reuse", "message": "Identifier values have to increase."}})
			continue
		}
		lastID = n
		switch msg["type"] {
		case "ping":
			f.send(map[string]any{"id": id, "type": "pong"})
		case "subscribe_entities":
			f.send(map[string]any{"id": id, "type": "result", "success": true, "result": nil})
			f.send(map[string]any{"id": id, "type": "event", "event": map[string]any{
				"a": map[string]any{"light.a": map[string]any{"s": "off", "a": map[string]any{}, "c": "c", "lc": 1}},
			}})
		case "call_service":
			if failCall {
				f.send(map[string]any{"id": id, "type": "result", "success": false,
					"error": map[string]any{"code": "not_found", "message": "Service not found"}})
				continue
			}
			f.send(map[string]any{"id": id, "type": "result", "success": true, "result": map[string]any{}})
		default:
			f.send(map[string]any{"id": id, "type": "result", "success": true, "result": nil})
		}
	}
}

func (f *fakeHA) send(msg map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	//nolint:errcheck // test server
	f.conn.WriteJSON(msg)
}

func (f *fakeHA) messages(msgType string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, m := range f.received {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeHA) url() string {
	return f.server.URL
}

func connectClient(t *testing.T, ha *fakeHA, token string) *Client {
	t.Helper()
	c, err := NewClient(Config{URL: ha.url(), AccessToken: token, CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://ha.local:8123", "ws://ha.local:8123/api/websocket", false},
		{"https://ha.example.com/", "wss://ha.example.com/api/websocket", false},
		{"ws://supervisor/core/websocket", "ws://supervisor/core/websocket", false},
		{"wss://ha.example.com/api/websocket", "wss://ha.example.com/api/websocket", false},
		{"ftp://ha.local", "", true},
		{"", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := WebsocketURL(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(Config{URL: "http://ha.local"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClient_ConnectAuthenticates(t *testing.T) {
	ha := newFakeHA(t, "secret")
	c := connectClient(t, ha, "secret")

	assert.True(t, c.IsConnected())
	assert.Equal(t, "2024.1.0", c.Version())
	require.NoError(t, c.HealthCheck(context.Background()))
}

func TestClient_ConnectRejectsBadToken(t *testing.T) {
	ha := newFakeHA(t, "secret")
	c, err := NewClient(Config{URL: ha.url(), AccessToken: "wrong"})
	require.NoError(t, err)

	err = c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, c.IsConnected())
}

func TestClient_CallService(t *testing.T) {
	ha := newFakeHA(t, "secret")
	c := connectClient(t, ha, "secret")

	err := c.CallService(context.Background(), "light", "turn_on",
		Target{EntityID: "light.a"}, map[string]any{"brightness": 128})
	require.NoError(t, err)

	calls := ha.messages("call_service")
	require.Len(t, calls, 1)
	assert.Equal(t, "light", calls[0]["domain"])
	assert.Equal(t, "turn_on", calls[0]["service"])
	assert.Equal(t, map[string]any{"entity_id": "light.a"}, calls[0]["target"])
	assert.Equal(t, map[string]any{"brightness": float64(128)}, calls[0]["service_data"])
}

func TestClient_CallServiceOmitsEmptyData(t *testing.T) {
	ha := newFakeHA(t, "secret")
	c := connectClient(t, ha, "secret")

	require.NoError(t, c.CallService(context.Background(), "switch", "turn_off", Target{EntityID: "switch.x"}, nil))

	calls := ha.messages("call_service")
	require.Len(t, calls, 1)
	_, has := calls[0]["service_data"]
	assert.False(t, has)
}

func TestClient_ConcurrentCallsKeepIDsIncreasing(t *testing.T) {
	ha := newFakeHA(t, "secret")
	c := connectClient(t, ha, "secret")

	const calls = 500
	errs := make(chan error, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.CallService(context.Background(), "light", "toggle", Target{EntityID: "light.a"}, nil)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	sent := ha.messages("call_service")
	require.Len(t, sent, calls)
	for i := 1; i < len(sent); i++ {
		assert.Greater(t, sent[i]["id"].(float64), sent[i-1]["id"].(float64))
	}
}

func TestClient_CallServiceFailure(t *testing.T) {
	ha := newFakeHA(t, "secret")
	ha.mu.Lock()
	ha.failCall = true
	ha.mu.Unlock()
	c := connectClient(t, ha, "secret")

	err := c.CallService(context.Background(), "light", "turn_on", Target{EntityID: "light.a"}, nil)
	require.ErrorIs(t, err, ErrCallFailed)
	assert.True(t, strings.Contains(err.Error(), "Service not found"))
}

func TestClient_SubscribeEntities(t *testing.T) {
	ha := newFakeHA(t, "secret")
	c := connectClient(t, ha, "secret")

	updates := make(chan StatesUpdate, 1)
	unsubscribe, err := c.SubscribeEntities(context.Background(), func(u StatesUpdate) {
		updates <- u
	})
	require.NoError(t, err)

	select {
	case u := <-updates:
		require.Contains(t, u.Added, "light.a")
		require.NotNil(t, u.Added["light.a"].State)
		assert.Equal(t, "off", *u.Added["light.a"].State)
	case <-time.After(2 * time.Second):
		t.Fatal("no entity update received")
	}

	require.NoError(t, unsubscribe(context.Background()))
	assert.Len(t, ha.messages("unsubscribe_events"), 1)
}

func TestClient_NotConnected(t *testing.T) {
	c, err := NewClient(Config{URL: "http://127.0.0.1:1", AccessToken: "x"})
	require.NoError(t, err)

	err = c.CallService(context.Background(), "light", "turn_on", Target{EntityID: "light.a"}, nil)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestClient_CloseEndsConnection(t *testing.T) {
	ha := newFakeHA(t, "secret")
	c := connectClient(t, ha, "secret")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
}

func TestClient_SubscribePayloadRoundTrip(t *testing.T) {
	raw := `{"a":{"light.a":{"s":"on","a":{"brightness":10},"c":{"id":"x"},"lc":1}},"r":["light.b"],"c":{"light.c":{"+":{"s":"off"},"-":{"a":["brightness"]}}}}`
	var u StatesUpdate
	require.NoError(t, json.Unmarshal([]byte(raw), &u))

	assert.Equal(t, "x", u.Added["light.a"].Context.ID)
	assert.Equal(t, []string{"light.b"}, u.Removed)
	assert.Equal(t, []string{"brightness"}, u.Changed["light.c"].Remove.Attributes)
}
