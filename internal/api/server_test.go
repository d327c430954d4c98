package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/exposure"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/logging"
)

// ─── Fakes ─────────────────────────────────────────────────────────

type fakeRegistry struct {
	entries []bridge.Entry
}

func (f *fakeRegistry) Entries() []bridge.Entry { return f.entries }

func (f *fakeRegistry) Entry(id string) (bridge.Entry, bool) {
	for _, e := range f.entries {
		if e.EntityID == id {
			return e, true
		}
	}
	return bridge.Entry{}, false
}

func (f *fakeRegistry) Stats() bridge.Stats {
	s := bridge.Stats{Tracked: len(f.entries)}
	for _, e := range f.entries {
		if e.Converted {
			s.Converted++
		}
	}
	return s
}

type fakeLedger struct {
	devices []exposure.DeviceIdentity
	err     error
}

func (f *fakeLedger) Devices(context.Context) ([]exposure.DeviceIdentity, error) {
	return f.devices, f.err
}

type fakeHealth struct{}

func (fakeHealth) Snapshot() exposure.HealthMessage {
	return exposure.HealthMessage{Bridge: "Test Bridge", Status: exposure.HealthHealthy}
}

// ─── Harness ───────────────────────────────────────────────────────

type testEnv struct {
	srv        *Server
	router     http.Handler
	registry   *fakeRegistry
	aggregator *exposure.Aggregator
	light      *device.Device
	ledger     *fakeLedger
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func entity(id, state string, attrs map[string]any) homeassistant.Entity {
	return homeassistant.Entity{EntityID: id, State: state, Attributes: attrs}
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	light := device.NewDimmableLight()
	lightMeta := device.Metadata{
		Label:        "Kitchen",
		ProductName:  "light.kitchen",
		ProductLabel: "light.kitchen",
		SerialNumber: "hmb-1-aaaaaaaa",
		Reachable:    true,
	}
	plug := device.NewOnOffPlugInUnit()
	plugMeta := device.Metadata{
		Label:        "Kettle",
		ProductName:  "switch.kettle",
		ProductLabel: "switch.kettle",
		SerialNumber: "hmb-1-bbbbbbbb",
		Reachable:    true,
	}

	agg := exposure.NewAggregator(exposure.AggregatorOptions{})
	require.NoError(t, agg.Add(light, lightMeta))
	require.NoError(t, agg.Add(plug, plugMeta))

	reg := &fakeRegistry{entries: []bridge.Entry{
		{
			EntityID:  "light.kitchen",
			Entity:    entity("light.kitchen", "on", map[string]any{"friendly_name": "Kitchen", "brightness": 255}),
			Device:    light,
			Converted: true,
			Family:    bridge.FamilyLight,
			Metadata:  lightMeta,
		},
		{
			EntityID:  "switch.kettle",
			Entity:    entity("switch.kettle", "off", map[string]any{"friendly_name": "Kettle"}),
			Device:    plug,
			Converted: true,
			Family:    bridge.FamilySwitch,
			Metadata:  plugMeta,
		},
		{
			EntityID: "sensor.temperature",
			Entity:   entity("sensor.temperature", "21.5", nil),
		},
	}}
	ledger := &fakeLedger{devices: []exposure.DeviceIdentity{
		{SerialNumber: "hmb-1-aaaaaaaa", EntityID: "light.kitchen", Family: "light", Kind: "dimmable_light"},
	}}

	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:     config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Bridge: config.BridgeConfig{
			Name:         "Test Bridge",
			SerialPrefix: "hmb",
			Commissioning: config.CommissioningConfig{
				Passcode:      20202021,
				Discriminator: 3840,
				VendorID:      0xfff1,
				ProductID:     0x8000,
				Port:          5540,
			},
		},
		Logger:     testLogger(),
		Registry:   reg,
		Aggregator: agg,
		Identity:   exposure.Identity{UniqueID: "1", NodeID: "node-1"},
		Ledger:     ledger,
		Version:    "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, srv.logger)
	go srv.hub.Run(ctx)

	return &testEnv{
		srv:        srv,
		router:     srv.buildRouter(),
		registry:   reg,
		aggregator: agg,
		light:      light,
		ledger:     ledger,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return resp
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	agg := exposure.NewAggregator(exposure.AggregatorOptions{})
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Registry: &fakeRegistry{}, Aggregator: agg}},
		{"no registry", Deps{Logger: testLogger(), Aggregator: agg}},
		{"no aggregator", Deps{Logger: testLogger(), Registry: &fakeRegistry{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.deps)
			assert.Error(t, err)
		})
	}
}

func TestHealthCheck_NotStarted(t *testing.T) {
	env := newTestEnv(t)
	assert.Error(t, env.srv.HealthCheck(context.Background()))
	assert.NoError(t, env.srv.Close())
}

// ─── Health and middleware ─────────────────────────────────────────

func TestHealth_WithoutSource(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decode(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
}

func TestHealth_WithSource(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Health = fakeHealth{} })

	resp := decode(t, env.do(http.MethodGet, "/api/v1/health", ""))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "Test Bridge", resp["bridge"])
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/health", "")
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, "client-123", rec.Header().Get("X-Request-ID"))
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://homeassistant.local:8123"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/nonexistent", "").Code)
}

// ─── Entities ──────────────────────────────────────────────────────

func TestListEntities(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"light.kitchen", "switch.kettle", "sensor.temperature"}},
		{"by domain", "?domain=switch", []string{"switch.kettle"}},
		{"by family", "?family=light", []string{"light.kitchen"}},
		{"unconverted", "?converted=false", []string{"sensor.temperature"}},
		{"converted", "?converted=true", []string{"light.kitchen", "switch.kettle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodGet, "/api/v1/entities/"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Entities []EntityResponse `json:"entities"`
				Count    int              `json:"count"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

			got := make([]string, 0, len(resp.Entities))
			for _, e := range resp.Entities {
				got = append(got, e.EntityID)
				assert.Nil(t, e.Attributes, "list view omits attributes")
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), resp.Count)
		})
	}
}

func TestListEntities_BadConvertedFilter(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/entities/?converted=maybe", "").Code)
}

func TestGetEntity(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/entities/light.kitchen", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp EntityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Kitchen", resp.Name)
	assert.Equal(t, "light", resp.Domain)
	assert.True(t, resp.Converted)
	assert.Equal(t, "light", resp.Family)
	assert.Equal(t, "dimmable_light", resp.Kind)
	assert.Equal(t, "hmb-1-aaaaaaaa", resp.SerialNumber)
	assert.Contains(t, resp.Attributes, "brightness")
}

func TestGetEntity_Unconverted(t *testing.T) {
	env := newTestEnv(t)

	var resp EntityResponse
	w := env.do(http.MethodGet, "/api/v1/entities/sensor.temperature", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Converted)
	assert.Empty(t, resp.Family)
	assert.Empty(t, resp.SerialNumber)
}

func TestGetEntity_NotFound(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/entities/light.nowhere", "").Code)
}

func TestEntityStats(t *testing.T) {
	env := newTestEnv(t)

	resp := decode(t, env.do(http.MethodGet, "/api/v1/entities/stats", ""))
	assert.Equal(t, float64(3), resp["tracked"])
	assert.Equal(t, float64(2), resp["converted"])
}

// ─── Devices ───────────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/devices/", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Devices []DeviceResponse `json:"devices"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "hmb-1-aaaaaaaa", resp.Devices[0].SerialNumber)
	assert.Equal(t, device.KindDimmableLight, resp.Devices[0].Kind)
	assert.Equal(t, []string{"on_off", "level_control"}, resp.Devices[0].Capabilities)
	require.NotNil(t, resp.Devices[0].State.Level)
	assert.Equal(t, device.MaxLevel, *resp.Devices[0].State.Level)

	w = env.do(http.MethodGet, "/api/v1/devices/?kind=on_off_plugin_unit", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Kettle", resp.Devices[0].Label)
}

func TestGetDevice(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/devices/hmb-1-bbbbbbbb", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/devices/hmb-1-cccccccc", "").Code)
}

func TestGetDeviceState(t *testing.T) {
	env := newTestEnv(t)

	resp := decode(t, env.do(http.MethodGet, "/api/v1/devices/hmb-1-aaaaaaaa/state", ""))
	state, ok := resp["state"].(map[string]any)
	require.True(t, ok, "state is %T", resp["state"])
	assert.Equal(t, false, state["on"])
	assert.Equal(t, float64(254), state["level"])
}

func TestSetDeviceState(t *testing.T) {
	env := newTestEnv(t)

	commits := 0
	unhook := env.light.OnCommit(func() { commits++ })
	defer unhook()

	w := env.do(http.MethodPut, "/api/v1/devices/hmb-1-aaaaaaaa/state", `{"on": true, "level": 100}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	assert.True(t, env.light.On.Get())
	assert.Equal(t, uint8(100), env.light.CurrentLevel.Get())
	assert.Equal(t, 1, commits, "command applies as one transaction")
}

func TestSetDeviceState_Errors(t *testing.T) {
	tests := []struct {
		name   string
		serial string
		body   string
		want   int
	}{
		{"unknown device", "hmb-1-cccccccc", `{"on": true}`, http.StatusNotFound},
		{"invalid json", "hmb-1-aaaaaaaa", `{"on":`, http.StatusBadRequest},
		{"unknown field", "hmb-1-aaaaaaaa", `{"brightness": 10}`, http.StatusBadRequest},
		{"empty command", "hmb-1-aaaaaaaa", `{}`, http.StatusBadRequest},
		{"unsupported capability", "hmb-1-bbbbbbbb", `{"level": 10}`, http.StatusUnprocessableEntity},
		{"out of range", "hmb-1-aaaaaaaa", `{"level": 255}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(http.MethodPut, "/api/v1/devices/"+tt.serial+"/state", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestDeviceLedger(t *testing.T) {
	env := newTestEnv(t)

	resp := decode(t, env.do(http.MethodGet, "/api/v1/devices/ledger", ""))
	assert.Equal(t, float64(1), resp["count"])

	env.ledger.err = errors.New("disk I/O error")
	assert.Equal(t, http.StatusInternalServerError, env.do(http.MethodGet, "/api/v1/devices/ledger", "").Code)
}

func TestDeviceLedger_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Ledger = nil })
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/v1/devices/ledger", "").Code)
}

// ─── Bridge info and metrics ───────────────────────────────────────

func TestBridgeInfo(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/bridge", "")
	require.Equal(t, http.StatusOK, w.Code)

	var info BridgeInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "Test Bridge", info.Name)
	assert.Equal(t, "1", info.UniqueID)
	assert.Equal(t, "node-1", info.NodeID)
	assert.Equal(t, "3497-011-2332", info.ManualCode)
	assert.Equal(t, []string{"light", "switch"}, info.Converters)
	assert.Equal(t, 2, info.Devices)
}

func TestSystemMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var m SystemMetrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, 3, m.Entities.Tracked)
	assert.Equal(t, 2, m.Devices.Exposed)
	assert.Equal(t, 1, m.Devices.ByKind["dimmable_light"])
	assert.Positive(t, m.Runtime.Goroutines)
}

func TestPrometheusEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_events_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	env := newTestEnv(t, func(d *Deps) {
		d.Gatherer = reg
		d.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics"}
	})

	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_events_total 1")
}

func TestPrometheusEndpoint_Disabled(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Gatherer = prometheus.NewRegistry()
		d.Metrics = config.MetricsConfig{Enabled: false}
	})
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/metrics", "").Code)
}

// ─── WebSocket ─────────────────────────────────────────────────────

func newHubClient(hub *Hub, channels ...string) *WSClient {
	client := newWSClient(hub, nil, channels)
	hub.Register(client)
	return client
}

func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-client.send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
		return WSMessage{}
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())

	subscribed := newHubClient(hub, EventStateChanged)
	other := newHubClient(hub, EventCommandSent)

	hub.RemoteUpdateApplied("light.kitchen", device.AttrOnOff, true)

	msg := receive(t, subscribed)
	assert.Equal(t, WSTypeEvent, msg.Type)
	assert.Equal(t, EventStateChanged, msg.EventType)

	select {
	case <-other.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ObserverEvents(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newHubClient(hub, WSChannelAll)

	light := device.NewOnOffLight()
	meta := device.Metadata{Label: "Hall", SerialNumber: "hmb-1-cccccccc"}

	tests := []struct {
		name  string
		fire  func()
		event string
	}{
		{"converted", func() { hub.EntityConverted("light.hall", bridge.FamilyLight, device.KindOnOffLight) }, EventEntityConverted},
		{"failed", func() { hub.ConversionFailed("light.hall", errors.New("boom")) }, EventConversionFailed},
		{"removed", func() { hub.DeviceRemoved("light.hall") }, EventEntityRemoved},
		{"command", func() { hub.CommandSent("light.hall", "light", "turn_on", nil, nil) }, EventCommandSent},
		{"device added", func() { hub.Listener().DeviceAdded(light, meta) }, EventDeviceAdded},
		{"device removed", func() { hub.Listener().DeviceRemoved(light, meta) }, EventDeviceRemoved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fire()
			assert.Equal(t, tt.event, receive(t, client).EventType)
		})
	}

	hub.LocalUpdateSuppressed("light.hall", device.AttrOnOff)
	select {
	case <-client.send:
		t.Error("echo suppression should not be broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_CommandSentCarriesError(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	client := newHubClient(hub, EventCommandSent)

	hub.CommandSent("switch.kettle", "switch", "turn_on", map[string]any{}, errors.New("timeout"))

	payload, ok := receive(t, client).Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "timeout", payload["error"])
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	assert.Equal(t, 0, hub.ClientCount())

	client := newHubClient(hub)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(client)
	hub.Unregister(client)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestWebSocket_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?channels=" + EventEntityConverted
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.srv.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	env.srv.hub.EntityConverted("light.hall", bridge.FamilyLight, device.KindOnOffLight)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventEntityConverted, msg.EventType)

	// Subscribe round trip.
	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "req-1",
		Payload: WSSubscribePayload{Channels: []string{EventDeviceAdded}},
	}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, WSTypeResponse, msg.Type)
	assert.Equal(t, "req-1", msg.ID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "req-2"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, WSTypePong, msg.Type)
}

func TestSplitChannels(t *testing.T) {
	assert.Nil(t, splitChannels(""))
	assert.Equal(t, []string{"a", "b"}, splitChannels(" a, ,b "))
}
