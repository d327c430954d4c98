// Package homeassistant connects the bridge to a Home Assistant instance and
// turns its entity registry into streams the synchronisation engine consumes.
//
// Three pieces live here:
//
//   - Client: the websocket transport. It authenticates with a long-lived
//     access token, subscribes to compressed entity updates and issues
//     call_service requests. It has an explicit Connect/Close lifecycle and
//     no package-level state.
//   - Store: applies the compressed subscribe_entities diffs to an entity
//     snapshot and produces one Batch per upstream message.
//   - Feed: fans batches out as registered, unregistered and per-entity
//     change streams.
//
// Typical wiring:
//
//	client, _ := homeassistant.NewClient(cfg)
//	feed := homeassistant.NewFeed(logger)
//	store := homeassistant.NewStore(logger)
//	client.Connect(ctx)
//	client.SubscribeEntities(ctx, func(u homeassistant.StatesUpdate) {
//	    feed.Publish(store.Apply(u))
//	})
//
// Thread Safety: Client, Store and Feed are safe for concurrent use. Event
// handlers run on the client's read goroutine and must not block on a
// request to the same client.
package homeassistant
