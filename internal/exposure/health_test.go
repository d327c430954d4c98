package exposure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
)

type mockUpstream struct {
	connected bool
	pingErr   error
}

func (m mockUpstream) IsConnected() bool                 { return m.connected }
func (m mockUpstream) Version() string                   { return "2026.3.0" }
func (m mockUpstream) HealthCheck(context.Context) error { return m.pingErr }

type fixedStats bridge.Stats

func (s fixedStats) Stats() bridge.Stats { return bridge.Stats(s) }

func decodeHealth(t *testing.T, msg published) HealthMessage {
	t.Helper()
	var h HealthMessage
	if err := json.Unmarshal(msg.payload, &h); err != nil {
		t.Fatalf("health payload is not JSON: %v", err)
	}
	return h
}

func newTestReporter(pub *mockPublisher, upstream UpstreamStatus) *HealthReporter {
	agg := NewAggregator(AggregatorOptions{})
	_ = agg.Add(device.NewOnOffLight(), meta("hmb-1-aaaa", "light.a")) //nolint:errcheck // fixture
	return NewHealthReporter(HealthReporterConfig{
		BridgeName: "HA Matter Bridge",
		UniqueID:   "1700000000",
		Version:    "test",
		Topic:      "mb/bridge/health",
		Interval:   20 * time.Millisecond,
		Publisher:  pub,
		Upstream:   upstream,
		Registry:   fixedStats{Tracked: 3, Converted: 1},
		Aggregator: agg,
	})
}

func TestHealthReporter_DefaultInterval(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{})
	if h.cfg.Interval != 30*time.Second {
		t.Errorf("Interval = %v, want 30s", h.cfg.Interval)
	}
}

func TestHealthReporter_Snapshot(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		wantStatus HealthStatus
	}{
		{"home assistant connected", true, HealthHealthy},
		{"home assistant disconnected", false, HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestReporter(newMockPublisher(), mockUpstream{connected: tt.connected})
			msg := h.Snapshot()

			if msg.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", msg.Status, tt.wantStatus)
			}
			if msg.HomeAssistant.Connected != tt.connected || msg.HomeAssistant.Version != "2026.3.0" {
				t.Errorf("HomeAssistant = %+v", msg.HomeAssistant)
			}
			want := DeviceCounts{Tracked: 3, Converted: 1, Exposed: 1}
			if msg.Devices != want {
				t.Errorf("Devices = %+v, want %+v", msg.Devices, want)
			}
		})
	}
}

func TestHealthReporter_UnresponsiveUpstreamIsDegraded(t *testing.T) {
	pub := newMockPublisher()
	h := newTestReporter(pub, mockUpstream{connected: true, pingErr: errors.New("timeout")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)
	defer h.Stop()

	deadline := time.Now().Add(2 * time.Second)
	var got HealthMessage
	for time.Now().Before(deadline) {
		if m, ok := pub.last("mb/bridge/health"); ok {
			got = decodeHealth(t, m)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got.Status != HealthDegraded || got.Reason != "Home Assistant not responding" {
		t.Errorf("health = %q (%q), want degraded, not responding", got.Status, got.Reason)
	}
	if !got.HomeAssistant.Connected {
		t.Error("socket is still reported connected")
	}
}

func TestHealthReporter_NoUpstreamIsDegraded(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{Topic: "mb/bridge/health"})
	if got := h.Snapshot().Status; got != HealthDegraded {
		t.Errorf("Status = %q, want degraded", got)
	}
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() without publisher error = %v", err)
	}
}

func TestHealthReporter_StartingAndStopping(t *testing.T) {
	pub := newMockPublisher()
	h := newTestReporter(pub, mockUpstream{connected: true})

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}
	msg, ok := pub.last("mb/bridge/health")
	if !ok || !msg.retained {
		t.Fatal("starting status not published retained")
	}
	if got := decodeHealth(t, msg).Status; got != HealthStarting {
		t.Errorf("Status = %q, want starting", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m, ok := pub.last("mb/bridge/health"); ok && decodeHealth(t, m).Status == HealthHealthy {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Stop()
	h.Stop()

	msg, _ = pub.last("mb/bridge/health")
	if got := decodeHealth(t, msg).Status; got != HealthStopping {
		t.Errorf("final Status = %q, want stopping", got)
	}
}

func TestHealthReporter_ContextCancelStopsLoop(t *testing.T) {
	pub := newMockPublisher()
	h := newTestReporter(pub, mockUpstream{connected: true})

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("report loop did not stop on context cancellation")
	}
}
