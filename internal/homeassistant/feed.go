package homeassistant

import (
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-matterbridge/internal/pubsub"
)

// Feed turns update batches into the streams the registry and the binders
// subscribe to: registered entities, unregistered entities, and the change
// events of one entity.
//
// Within one batch, changes are dispatched first, then removals, then
// additions. Publish calls are serialised, so every subscriber sees batches
// in arrival order.
type Feed struct {
	dispatchMu sync.Mutex

	changes      *pubsub.Topic[map[string]ChangeEvent]
	registered   *pubsub.Topic[[]Entity]
	unregistered *pubsub.Topic[[]Entity]

	mu       sync.RWMutex
	entities map[string]Entity

	logger Logger
}

// NewFeed creates a feed with no entities.
func NewFeed(logger Logger) *Feed {
	return &Feed{
		changes:      pubsub.NewTopic[map[string]ChangeEvent](pubsub.ReplayLatest),
		registered:   pubsub.NewTopic[[]Entity](pubsub.ReplayNone),
		unregistered: pubsub.NewTopic[[]Entity](pubsub.ReplayNone),
		entities:     make(map[string]Entity),
		logger:       orNoop(logger),
	}
}

// Publish dispatches one batch to every subscriber. Change events whose
// snapshots do not match their key, and changes to entities the feed does
// not track, are logged and dropped.
func (f *Feed) Publish(batch Batch) {
	f.dispatchMu.Lock()
	defer f.dispatchMu.Unlock()

	changes := make(map[string]ChangeEvent, len(batch.Changed))
	for id, ev := range batch.Changed {
		if _, ok := f.Entity(id); !ok {
			f.logger.Warn("change for untracked entity dropped", "entity_id", id)
			continue
		}
		if ev.EntityID == "" {
			ev.EntityID = id
		}
		if ev.EntityID != id || !ev.Valid() {
			f.logger.Warn("malformed change event dropped",
				"entity_id", id,
				"old_entity_id", ev.OldState.EntityID,
				"new_entity_id", ev.NewState.EntityID,
			)
			continue
		}
		changes[id] = ev
	}

	f.mu.Lock()
	for id, ev := range changes {
		f.entities[id] = ev.NewState
	}
	for id := range batch.Removed {
		delete(f.entities, id)
	}
	for id, e := range batch.Added {
		f.entities[id] = e
	}
	f.mu.Unlock()

	f.changes.Publish(changes)
	if len(batch.Removed) > 0 {
		f.unregistered.Publish(sortedEntities(batch.Removed))
	}
	if len(batch.Added) > 0 {
		f.registered.Publish(sortedEntities(batch.Added))
	}
}

// OnRegistered subscribes to entities entering the registry.
func (f *Feed) OnRegistered(fn func([]Entity)) pubsub.Unsubscribe {
	return f.registered.Subscribe(fn)
}

// OnUnregistered subscribes to entities leaving the registry.
func (f *Feed) OnUnregistered(fn func([]Entity)) pubsub.Unsubscribe {
	return f.unregistered.Subscribe(fn)
}

// ChangesFor subscribes to the change events of one entity. If the most
// recent batch contained a change for entityID, it is delivered before
// ChangesFor returns.
func (f *Feed) ChangesFor(entityID string, fn func(ChangeEvent)) pubsub.Unsubscribe {
	return f.changes.Subscribe(func(changes map[string]ChangeEvent) {
		if ev, ok := changes[entityID]; ok {
			fn(ev)
		}
	})
}

// Sync runs fn with the current entity set while holding the dispatch lock,
// so no batch is published between reading the snapshot and whatever
// subscriptions fn sets up.
func (f *Feed) Sync(fn func(current []Entity)) {
	f.dispatchMu.Lock()
	defer f.dispatchMu.Unlock()
	fn(f.Entities())
}

// Entities returns the entities currently known to the feed, sorted by id.
func (f *Feed) Entities() []Entity {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedEntities(f.entities)
}

// Entity returns the current snapshot of one entity.
func (f *Feed) Entity(entityID string) (Entity, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.entities[entityID]
	return e, ok
}

func sortedEntities(m map[string]Entity) []Entity {
	out := make([]Entity, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}
