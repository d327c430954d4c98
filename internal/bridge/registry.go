package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
	"github.com/nerrad567/gray-logic-matterbridge/internal/pubsub"
)

// Aggregator exposes devices over the wire protocol.
type Aggregator interface {
	Add(dev *device.Device, meta device.Metadata) error
	Remove(dev *device.Device) error
}

// EntitySource is the entity change feed the registry follows.
// *homeassistant.Feed satisfies it.
type EntitySource interface {
	ChangeSource

	// OnRegistered and OnUnregistered subscribe to entities entering and
	// leaving the registry.
	OnRegistered(fn func([]homeassistant.Entity)) pubsub.Unsubscribe
	OnUnregistered(fn func([]homeassistant.Entity)) pubsub.Unsubscribe

	// Sync runs fn with the current entity set, excluding concurrent
	// dispatch.
	Sync(fn func(current []homeassistant.Entity))

	// Entity returns the latest snapshot of one entity.
	Entity(entityID string) (homeassistant.Entity, bool)
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Source is the entity feed. Required.
	Source EntitySource

	// Commands is the remote command channel. Required.
	Commands CommandCaller

	// Aggregator receives converted devices. Required.
	Aggregator Aggregator

	// UniqueID identifies this bridge in serial numbers. Required.
	UniqueID string

	// SerialPrefix starts serial numbers. Default: "hmb".
	SerialPrefix string

	// Converters in priority order. Default: DefaultConverters().
	Converters []Converter

	// Observer is optional.
	Observer Observer

	// Logger is optional.
	Logger Logger
}

// record is the registration state of one tracked entity. device and
// teardown are nil while the entity is unconverted.
type record struct {
	entity   homeassistant.Entity
	device   *device.Device
	teardown *Teardown
	family   Family
	metadata device.Metadata
}

// Entry is the read-only view of one tracked entity.
type Entry struct {
	EntityID  string
	Entity    homeassistant.Entity
	Device    *device.Device
	Converted bool
	Family    Family
	Metadata  device.Metadata
}

// Stats summarises the registry.
type Stats struct {
	Tracked   int `json:"tracked"`
	Converted int `json:"converted"`
}

// Registry owns the mapping from entity id to device.
//
// Records are kept when an entity disappears; if it comes back the same
// record is reused and a fresh device is built.
//
// Thread Safety: all methods are safe for concurrent use. Register and
// Unregister are expected to be called from one dispatch goroutine at a
// time, which the entity source guarantees.
type Registry struct {
	source     EntitySource
	commands   CommandCaller
	aggregator Aggregator
	converters []Converter
	uniqueID   string
	prefix     string
	observer   Observer
	logger     Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	records map[string]*record
	subs    []pubsub.Unsubscribe
	started bool
	stopped bool
}

// NewRegistry validates opts and creates a stopped registry.
//
// Parameters:
//   - opts: Source, Commands, Aggregator and UniqueID are required
//
// Returns:
//   - *Registry: ready to Start
//   - error: if a required dependency is missing
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	var missing []string
	if opts.Source == nil {
		missing = append(missing, "source")
	}
	if opts.Commands == nil {
		missing = append(missing, "commands")
	}
	if opts.Aggregator == nil {
		missing = append(missing, "aggregator")
	}
	if opts.UniqueID == "" {
		missing = append(missing, "unique id")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("bridge: registry requires %v", missing)
	}

	converters := opts.Converters
	if len(converters) == 0 {
		converters = DefaultConverters()
	}
	prefix := opts.SerialPrefix
	if prefix == "" {
		prefix = DefaultSerialPrefix
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		source:     opts.Source,
		commands:   opts.Commands,
		aggregator: opts.Aggregator,
		converters: converters,
		uniqueID:   opts.UniqueID,
		prefix:     prefix,
		observer:   observer,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		records:    make(map[string]*record),
	}, nil
}

// Start registers every entity the source already knows and subscribes to
// later additions and removals.
func (r *Registry) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	r.source.Sync(func(current []homeassistant.Entity) {
		subs := []pubsub.Unsubscribe{
			r.source.OnUnregistered(r.Unregister),
			r.source.OnRegistered(r.Register),
		}
		r.mu.Lock()
		r.subs = subs
		r.mu.Unlock()

		r.Register(current)
	})

	stats := r.Stats()
	r.logger.Info("entity registry started",
		"tracked", stats.Tracked,
		"converted", stats.Converted,
		"converters", len(r.converters),
	)
	return nil
}

// Stop unsubscribes from the source and tears down every device. Records
// are kept for inspection.
func (r *Registry) Stop() {
	r.source.Sync(func([]homeassistant.Entity) {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		r.stopped = true
		subs := r.subs
		r.subs = nil
		r.mu.Unlock()

		for _, unsubscribe := range subs {
			unsubscribe()
		}

		r.mu.RLock()
		var live []homeassistant.Entity
		for _, rec := range r.records {
			if rec.device != nil {
				live = append(live, rec.entity)
			}
		}
		r.mu.RUnlock()

		r.Unregister(live)
	})
	r.cancel()
	r.logger.Info("entity registry stopped")
}

// Register handles entities entering the registry. Each entity not yet
// converted is offered to the converters; failures are isolated per entity.
func (r *Registry) Register(entities []homeassistant.Entity) {
	for _, e := range entities {
		r.register(e)
	}
}

func (r *Registry) register(e homeassistant.Entity) {
	r.mu.Lock()
	rec, tracked := r.records[e.EntityID]
	if !tracked {
		rec = &record{}
		r.records[e.EntityID] = rec
	}
	rec.entity = e
	converted := rec.device != nil
	r.mu.Unlock()

	if converted {
		return
	}

	conv, ok := selectConverter(r.converters, e)
	if !ok {
		r.logger.Debug("no converter for entity", "entity_id", e.EntityID)
		return
	}

	teardown := NewTeardown(r.ctx)
	dev, err := convertSafely(conv, e, Env{
		Commands: r.commands,
		Changes:  r.source,
		Teardown: teardown,
		Observer: r.observer,
		Logger:   r.logger,
	})
	if err != nil {
		teardown.Trigger()
		r.fail(e.EntityID, fmt.Errorf("converting with %s: %w", conv.Family, err))
		return
	}

	meta := MetadataFor(e, r.prefix, r.uniqueID)
	if err := r.addToAggregator(dev, meta); err != nil {
		teardown.Trigger()
		r.fail(e.EntityID, fmt.Errorf("exposing device: %w", err))
		return
	}

	r.mu.Lock()
	rec.device = dev
	rec.teardown = teardown
	rec.family = conv.Family
	rec.metadata = meta
	r.mu.Unlock()

	r.logger.Info("entity converted",
		"entity_id", e.EntityID,
		"family", conv.Family,
		"kind", dev.Kind(),
		"serial", meta.SerialNumber,
	)
	r.observer.EntityConverted(e.EntityID, conv.Family, dev.Kind())
}

// Unregister handles entities leaving the registry: their teardown is
// triggered and their device removed from the aggregator.
func (r *Registry) Unregister(entities []homeassistant.Entity) {
	for _, e := range entities {
		r.unregister(e)
	}
}

func (r *Registry) unregister(e homeassistant.Entity) {
	r.mu.Lock()
	rec, ok := r.records[e.EntityID]
	if !ok {
		r.mu.Unlock()
		return
	}
	rec.entity = e
	dev, teardown := rec.device, rec.teardown
	rec.device, rec.teardown = nil, nil
	rec.family = ""
	r.mu.Unlock()

	if dev == nil {
		return
	}

	teardown.Trigger()
	if err := r.removeFromAggregator(dev); err != nil {
		r.logger.Error("removing device from aggregator failed", "entity_id", e.EntityID, "error", err)
	}

	r.logger.Info("entity unregistered", "entity_id", e.EntityID)
	r.observer.DeviceRemoved(e.EntityID)
}

// Entries returns every tracked entity sorted by id, with the latest
// snapshot the source knows.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.records))
	for id, rec := range r.records {
		out = append(out, r.entryLocked(id, rec))
	}
	r.mu.RUnlock()

	for i := range out {
		if latest, ok := r.source.Entity(out[i].EntityID); ok {
			out[i].Entity = latest
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Entry returns one tracked entity.
func (r *Registry) Entry(entityID string) (Entry, bool) {
	r.mu.RLock()
	rec, ok := r.records[entityID]
	if !ok {
		r.mu.RUnlock()
		return Entry{}, false
	}
	entry := r.entryLocked(entityID, rec)
	r.mu.RUnlock()

	if latest, ok := r.source.Entity(entityID); ok {
		entry.Entity = latest
	}
	return entry, true
}

// Stats counts tracked and converted entities.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{Tracked: len(r.records)}
	for _, rec := range r.records {
		if rec.device != nil {
			s.Converted++
		}
	}
	return s
}

func (r *Registry) entryLocked(id string, rec *record) Entry {
	return Entry{
		EntityID:  id,
		Entity:    rec.entity,
		Device:    rec.device,
		Converted: rec.device != nil,
		Family:    rec.family,
		Metadata:  rec.metadata,
	}
}

func (r *Registry) addToAggregator(dev *device.Device, meta device.Metadata) error {
	return runGuarded(func() error { return r.aggregator.Add(dev, meta) })
}

func (r *Registry) removeFromAggregator(dev *device.Device) error {
	return runGuarded(func() error { return r.aggregator.Remove(dev) })
}

func (r *Registry) fail(entityID string, err error) {
	r.logger.Error("entity left unconverted", "entity_id", entityID, "error", err)
	r.observer.ConversionFailed(entityID, err)
}
