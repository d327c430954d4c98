// Package api implements the HTTP REST API and WebSocket server of the
// Matter bridge.
//
// This package provides:
//   - Read-only views of tracked entities, exposed devices and the device ledger
//   - A local command endpoint that drives a device as a controller would
//   - Bridge identity and pairing information
//   - WebSocket hub broadcasting synchronisation events
//   - Prometheus exposition and a JSON metrics summary
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server only reads bridge state, with one exception: PUT on a device
// state applies a local command, which the bridge forwards to Home
// Assistant exactly like a write from a Matter controller.
//
// The Hub implements bridge.Observer; the composition root registers it
// with the registry, and its Listener() with the aggregator.
//
// # Security
//
// The API has no authentication and is meant to listen on the add-on's
// internal network or localhost.
package api
