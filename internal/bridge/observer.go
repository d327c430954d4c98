package bridge

import "github.com/nerrad567/gray-logic-matterbridge/internal/device"

// Observer is notified of synchronisation events. Metrics, history and the
// live websocket feed implement it. Methods are called synchronously and
// must not block.
type Observer interface {
	// EntityConverted is called after a device was created and exposed.
	EntityConverted(entityID string, family Family, kind device.Kind)

	// ConversionFailed is called when a converter, binder or the aggregator
	// failed for an entity.
	ConversionFailed(entityID string, err error)

	// DeviceRemoved is called after an entity's device was torn down.
	DeviceRemoved(entityID string)

	// RemoteUpdateApplied is called when a Home Assistant change altered a
	// device attribute.
	RemoteUpdateApplied(entityID, attribute string, value any)

	// CommandSent is called when a service call completes, err is its result.
	CommandSent(entityID, domain, service string, data map[string]any, err error)

	// LocalUpdateSuppressed is called when a listener fired during a remote
	// update and no command was sent.
	LocalUpdateSuppressed(entityID, attribute string)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) EntityConverted(entityID string, family Family, kind device.Kind) {
	for _, obs := range o {
		obs.EntityConverted(entityID, family, kind)
	}
}

func (o Observers) ConversionFailed(entityID string, err error) {
	for _, obs := range o {
		obs.ConversionFailed(entityID, err)
	}
}

func (o Observers) DeviceRemoved(entityID string) {
	for _, obs := range o {
		obs.DeviceRemoved(entityID)
	}
}

func (o Observers) RemoteUpdateApplied(entityID, attribute string, value any) {
	for _, obs := range o {
		obs.RemoteUpdateApplied(entityID, attribute, value)
	}
}

func (o Observers) CommandSent(entityID, domain, service string, data map[string]any, err error) {
	for _, obs := range o {
		obs.CommandSent(entityID, domain, service, data, err)
	}
}

func (o Observers) LocalUpdateSuppressed(entityID, attribute string) {
	for _, obs := range o {
		obs.LocalUpdateSuppressed(entityID, attribute)
	}
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) EntityConverted(string, Family, device.Kind)               {}
func (NopObserver) ConversionFailed(string, error)                            {}
func (NopObserver) DeviceRemoved(string)                                      {}
func (NopObserver) RemoteUpdateApplied(string, string, any)                   {}
func (NopObserver) CommandSent(string, string, string, map[string]any, error) {}
func (NopObserver) LocalUpdateSuppressed(string, string)                      {}
