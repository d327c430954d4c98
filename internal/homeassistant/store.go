package homeassistant

import (
	"maps"
	"sort"
	"sync"
)

// Store holds the current entity snapshot and applies compressed updates
// to it.
//
// Thread Safety: Apply and the read methods may be called concurrently.
type Store struct {
	mu       sync.RWMutex
	entities map[string]Entity
	logger   Logger
}

// NewStore creates an empty store.
func NewStore(logger Logger) *Store {
	return &Store{
		entities: make(map[string]Entity),
		logger:   orNoop(logger),
	}
}

// Apply folds one compressed update into the snapshot and returns what it
// added, removed and changed. Changes for unknown entities are logged and
// dropped.
//
// Processing order within one update is additions, removals, then changes.
func (s *Store) Apply(update StatesUpdate) Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := Batch{
		Added:   make(map[string]Entity, len(update.Added)),
		Removed: make(map[string]Entity, len(update.Removed)),
		Changed: make(map[string]ChangeEvent, len(update.Changed)),
	}

	for id, compressed := range update.Added {
		entity := expand(id, compressed)
		s.entities[id] = entity
		batch.Added[id] = entity
	}

	for _, id := range update.Removed {
		if entity, ok := s.entities[id]; ok {
			batch.Removed[id] = entity
		}
		delete(s.entities, id)
	}

	for id, diff := range update.Changed {
		current, ok := s.entities[id]
		if !ok {
			s.logger.Warn("state update for unknown entity dropped", "entity_id", id)
			continue
		}

		next := applyDiff(current, diff)
		s.entities[id] = next
		batch.Changed[id] = ChangeEvent{EntityID: id, OldState: current, NewState: next}
	}

	return batch
}

// Get returns the current snapshot of one entity.
func (s *Store) Get(entityID string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityID]
	return e, ok
}

// Len returns the number of known entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Snapshot returns all entities sorted by id.
func (s *Store) Snapshot() []Entity {
	s.mu.RLock()
	out := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

func expand(id string, c CompressedState) Entity {
	e := Entity{
		EntityID:    id,
		Attributes:  c.Attributes,
		LastChanged: epochSeconds(c.LastChanged),
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
	if c.State != nil {
		e.State = *c.State
	}
	if c.Context != nil {
		e.Context = *c.Context
	}
	if c.LastUpdated > 0 {
		e.LastUpdated = epochSeconds(c.LastUpdated)
	} else {
		e.LastUpdated = e.LastChanged
	}
	return e
}

// applyDiff returns a new snapshot; current is left untouched so it can be
// published as the old state.
func applyDiff(current Entity, diff EntityDiff) Entity {
	next := current

	attributesChanged := (diff.Add != nil && diff.Add.Attributes != nil) ||
		(diff.Remove != nil && len(diff.Remove.Attributes) > 0)
	if attributesChanged {
		next.Attributes = maps.Clone(current.Attributes)
		if next.Attributes == nil {
			next.Attributes = map[string]any{}
		}
	}

	if add := diff.Add; add != nil {
		if add.State != nil {
			next.State = *add.State
		}
		if add.Context != nil {
			next.Context = mergeContext(current.Context, *add.Context)
		}
		switch {
		case add.LastChanged > 0:
			next.LastChanged = epochSeconds(add.LastChanged)
			next.LastUpdated = next.LastChanged
		case add.LastUpdated > 0:
			next.LastUpdated = epochSeconds(add.LastUpdated)
		}
		for k, v := range add.Attributes {
			next.Attributes[k] = v
		}
	}

	if diff.Remove != nil {
		for _, k := range diff.Remove.Attributes {
			delete(next.Attributes, k)
		}
	}

	return next
}

func mergeContext(base, patch Context) Context {
	out := base
	if patch.ID != "" {
		out.ID = patch.ID
	}
	if patch.ParentID != nil {
		out.ParentID = patch.ParentID
	}
	if patch.UserID != nil {
		out.UserID = patch.UserID
	}
	return out
}
