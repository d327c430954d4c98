package api

import (
	"strings"

	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
)

// Event channels broadcast by the hub.
const (
	EventEntityConverted  = "entity.converted"
	EventConversionFailed = "entity.conversion_failed"
	EventEntityRemoved    = "entity.removed"
	EventStateChanged     = "device.state_changed"
	EventCommandSent      = "command.sent"
	EventDeviceAdded      = "device.added"
	EventDeviceRemoved    = "device.removed"
)

// EntityConverted implements bridge.Observer.
func (h *Hub) EntityConverted(entityID string, family bridge.Family, kind device.Kind) {
	h.Broadcast(EventEntityConverted, map[string]any{
		"entity_id": entityID,
		"family":    family,
		"kind":      kind,
	})
}

// ConversionFailed implements bridge.Observer.
func (h *Hub) ConversionFailed(entityID string, err error) {
	h.Broadcast(EventConversionFailed, map[string]any{
		"entity_id": entityID,
		"error":     err.Error(),
	})
}

// DeviceRemoved implements bridge.Observer.
func (h *Hub) DeviceRemoved(entityID string) {
	h.Broadcast(EventEntityRemoved, map[string]any{"entity_id": entityID})
}

// RemoteUpdateApplied implements bridge.Observer.
func (h *Hub) RemoteUpdateApplied(entityID, attribute string, value any) {
	h.Broadcast(EventStateChanged, map[string]any{
		"entity_id": entityID,
		"attribute": attribute,
		"value":     value,
	})
}

// CommandSent implements bridge.Observer.
func (h *Hub) CommandSent(entityID, domain, service string, data map[string]any, err error) {
	payload := map[string]any{
		"entity_id": entityID,
		"domain":    domain,
		"service":   service,
		"data":      data,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	h.Broadcast(EventCommandSent, payload)
}

// LocalUpdateSuppressed implements bridge.Observer. Echo suppression is
// internal bookkeeping and is not broadcast.
func (h *Hub) LocalUpdateSuppressed(string, string) {}

// Listener returns the hub as an exposure.Listener. It is a separate
// value because bridge.Observer already claims the name DeviceRemoved.
func (h *Hub) Listener() ExposureListener {
	return ExposureListener{hub: h}
}

// ExposureListener broadcasts aggregator membership changes.
type ExposureListener struct {
	hub *Hub
}

// DeviceAdded implements exposure.Listener.
func (l ExposureListener) DeviceAdded(dev *device.Device, meta device.Metadata) {
	l.hub.Broadcast(EventDeviceAdded, map[string]any{
		"serial_number": meta.SerialNumber,
		"label":         meta.Label,
		"kind":          dev.Kind(),
	})
}

// DeviceRemoved implements exposure.Listener.
func (l ExposureListener) DeviceRemoved(_ *device.Device, meta device.Metadata) {
	l.hub.Broadcast(EventDeviceRemoved, map[string]any{
		"serial_number": meta.SerialNumber,
		"label":         meta.Label,
	})
}

func splitChannels(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
