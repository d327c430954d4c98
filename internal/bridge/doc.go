// Package bridge is the entity-device synchronisation engine.
//
// It keeps the Home Assistant entity registry and the set of exposed
// devices in step, in both directions, without echo:
//
//	 Home Assistant                 bridge                        aggregator
//	┌──────────────┐   batches   ┌──────────────┐  Add/Remove   ┌───────────┐
//	│ entity feed  │────────────▶│   Registry   │──────────────▶│  devices  │
//	└──────────────┘             │              │               └─────┬─────┘
//	       ▲                     │  Converter   │                     │
//	       │ call_service        │   (light,    │   attribute         │ local
//	       │                     │    switch)   │   listeners         │ writes
//	┌──────┴───────┐             │      │       │◀────────────────────┘
//	│   Commands   │◀────────────│   binders    │
//	└──────────────┘   Updater   └──────────────┘
//	                  (echo gate)
//
// # Key Types
//
//   - Registry: tracks every entity, converts it when a converter matches,
//     registers the device with the aggregator and tears it down on removal.
//   - Converter: one variant per device family, tried in configured order.
//   - Updater: the per-device gate that stops remote-origin writes from being
//     sent back to Home Assistant.
//   - Teardown: the per-device cancellation handle collecting every binder
//     subscription.
//
// # Echo suppression
//
// Every write that originates in Home Assistant runs inside
// Updater.ApplyRemoteUpdate. Attribute listeners that fire during that call
// see the gate closed and send nothing. Writes made by a controller (the MQTT
// mirror, or a test) go through device.Device.Do with the gate open, and
// each changed attribute turns into exactly one service call.
//
// Thread Safety: Registry methods are safe for concurrent use. Feed
// handlers are expected to be serialised by the entity source.
package bridge
