// Package exposure is the device side of the bridge: the aggregator that
// holds the exposed devices, and what hangs off it.
//
//   - Aggregator: the bridged node. Devices are added and removed by the
//     entity registry; listeners follow along.
//   - IdentityStore: the persisted bridge identity and the ledger of every
//     serial number ever exposed (SQLite).
//   - Mirror: retained MQTT description and state per exposed device, and
//     a set topic that turns JSON commands into local device writes.
//   - HealthReporter: periodic retained health message.
//
// Wiring:
//
//	agg := exposure.NewAggregator(exposure.AggregatorOptions{})
//	agg.AddListener(store)
//	agg.AddListener(mirror)
//	registry, _ := bridge.NewRegistry(bridge.RegistryOptions{Aggregator: agg, ...})
package exposure
