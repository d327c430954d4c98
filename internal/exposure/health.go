package exposure

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
)

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained payload of the bridge health topic.
type HealthMessage struct {
	Bridge        string          `json:"bridge"`
	UniqueID      string          `json:"unique_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Status        HealthStatus    `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Version       string          `json:"version,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	HomeAssistant ConnectionState `json:"home_assistant"`
	Devices       DeviceCounts    `json:"devices"`
}

// ConnectionState describes the Home Assistant connection.
type ConnectionState struct {
	Connected bool   `json:"connected"`
	Version   string `json:"version,omitempty"`
}

// DeviceCounts summarises the registry and the aggregator.
type DeviceCounts struct {
	Tracked   int `json:"tracked"`
	Converted int `json:"converted"`
	Exposed   int `json:"exposed"`
}

// HealthPublisher publishes health messages. *mqtt.Client satisfies it.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// UpstreamStatus reports the Home Assistant connection.
// *homeassistant.Client satisfies it.
type UpstreamStatus interface {
	IsConnected() bool
	Version() string
	HealthCheck(ctx context.Context) error
}

const upstreamPingTimeout = 5 * time.Second

// StatsSource reports registry counts. *bridge.Registry satisfies it.
type StatsSource interface {
	Stats() bridge.Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeName string
	UniqueID   string
	Version    string

	// Topic receives the health messages.
	Topic string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher  HealthPublisher
	Upstream   UpstreamStatus
	Registry   StatsSource
	Aggregator *Aggregator
	Logger     Logger
}

// HealthReporter publishes the bridge health at a fixed interval.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time
	logger    Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// pingErr is the result of the last upstream ping, made once per tick.
	mu      sync.Mutex
	pingErr error
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		logger:    orNoop(cfg.Logger),
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final stopping status. Safe to call
// multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		if err := h.publish(HealthStopping, "bridge stopping"); err != nil {
			h.logger.Debug("publishing stopping health failed", "error", err)
		}
	})
}

// PublishStarting publishes a starting status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

// Snapshot builds the current health message without publishing it.
func (h *HealthReporter) Snapshot() HealthMessage {
	status, reason := h.determineStatus()
	return h.message(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	h.checkUpstream(ctx)
	if err := h.PublishNow(); err != nil {
		h.logger.Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.checkUpstream(ctx)
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

// checkUpstream pings Home Assistant and keeps the outcome for the next
// status.
func (h *HealthReporter) checkUpstream(ctx context.Context) {
	if h.cfg.Upstream == nil || !h.cfg.Upstream.IsConnected() {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, upstreamPingTimeout)
	defer cancel()
	err := h.cfg.Upstream.HealthCheck(pingCtx)
	if err != nil {
		h.logger.Warn("home assistant ping failed", "error", err)
	}

	h.mu.Lock()
	h.pingErr = err
	h.mu.Unlock()
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Upstream == nil || !h.cfg.Upstream.IsConnected() {
		return HealthDegraded, "Home Assistant disconnected"
	}
	h.mu.Lock()
	pingErr := h.pingErr
	h.mu.Unlock()
	if pingErr != nil {
		return HealthDegraded, "Home Assistant not responding"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        h.cfg.BridgeName,
		UniqueID:      h.cfg.UniqueID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Reason:        reason,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.cfg.Upstream != nil {
		msg.HomeAssistant = ConnectionState{
			Connected: h.cfg.Upstream.IsConnected(),
			Version:   h.cfg.Upstream.Version(),
		}
	}
	if h.cfg.Registry != nil {
		stats := h.cfg.Registry.Stats()
		msg.Devices.Tracked = stats.Tracked
		msg.Devices.Converted = stats.Converted
	}
	if h.cfg.Aggregator != nil {
		msg.Devices.Exposed = h.cfg.Aggregator.Len()
	}
	return msg
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.message(status, reason))
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}
