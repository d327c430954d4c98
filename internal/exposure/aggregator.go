package exposure

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
)

// Exposed is one device currently published by the aggregator.
type Exposed struct {
	Device   *device.Device
	Metadata device.Metadata
	AddedAt  time.Time
}

// Listener is told about devices entering and leaving the aggregator.
// Calls happen synchronously inside Add and Remove, after the aggregator's
// own state has changed, and must not call back into the aggregator.
type Listener interface {
	DeviceAdded(dev *device.Device, meta device.Metadata)
	DeviceRemoved(dev *device.Device, meta device.Metadata)
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	// Listeners are notified in order. Optional.
	Listeners []Listener

	// Logger is optional.
	Logger Logger
}

// Aggregator is the bridged node: the set of devices exposed to
// controllers, each with its display metadata. It satisfies
// bridge.Aggregator.
//
// A device is exposed at most once and serial numbers are unique among
// exposed devices.
//
// Thread Safety: all methods are safe for concurrent use.
type Aggregator struct {
	listeners []Listener
	logger    Logger

	mu       sync.RWMutex
	devices  map[*device.Device]*Exposed
	bySerial map[string]*Exposed
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	return &Aggregator{
		listeners: opts.Listeners,
		logger:    orNoop(opts.Logger),
		devices:   make(map[*device.Device]*Exposed),
		bySerial:  make(map[string]*Exposed),
	}
}

// AddListener appends a listener. Devices already exposed are not replayed.
func (a *Aggregator) AddListener(l Listener) {
	a.mu.Lock()
	a.listeners = append(a.listeners, l)
	a.mu.Unlock()
}

// Add exposes dev with meta.
//
// Returns:
//   - error: ErrNilDevice, ErrAlreadyExposed, ErrDuplicateSerial, or
//     device.ErrInvalidMetadata when meta breaks the protocol limits
func (a *Aggregator) Add(dev *device.Device, meta device.Metadata) error {
	if dev == nil {
		return ErrNilDevice
	}
	if err := meta.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	if _, ok := a.devices[dev]; ok {
		a.mu.Unlock()
		return ErrAlreadyExposed
	}
	if other, ok := a.bySerial[meta.SerialNumber]; ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s (%s)", ErrDuplicateSerial, meta.SerialNumber, other.Metadata.ProductLabel)
	}
	entry := &Exposed{Device: dev, Metadata: meta, AddedAt: time.Now()}
	a.devices[dev] = entry
	a.bySerial[meta.SerialNumber] = entry
	listeners := a.listeners
	a.mu.Unlock()

	a.logger.Debug("device exposed", "serial", meta.SerialNumber, "kind", dev.Kind())
	for _, l := range listeners {
		l.DeviceAdded(dev, meta)
	}
	return nil
}

// Remove withdraws dev.
func (a *Aggregator) Remove(dev *device.Device) error {
	if dev == nil {
		return ErrNilDevice
	}

	a.mu.Lock()
	entry, ok := a.devices[dev]
	if !ok {
		a.mu.Unlock()
		return ErrNotExposed
	}
	delete(a.devices, dev)
	delete(a.bySerial, entry.Metadata.SerialNumber)
	listeners := a.listeners
	a.mu.Unlock()

	a.logger.Debug("device withdrawn", "serial", entry.Metadata.SerialNumber)
	for _, l := range listeners {
		l.DeviceRemoved(dev, entry.Metadata)
	}
	return nil
}

// Lookup returns the exposed device with the given serial number.
func (a *Aggregator) Lookup(serial string) (Exposed, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.bySerial[serial]
	if !ok {
		return Exposed{}, false
	}
	return *entry, true
}

// Devices lists the exposed devices sorted by serial number.
func (a *Aggregator) Devices() []Exposed {
	a.mu.RLock()
	out := make([]Exposed, 0, len(a.devices))
	for _, entry := range a.devices {
		out = append(out, *entry)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.SerialNumber < out[j].Metadata.SerialNumber })
	return out
}

// Len returns the number of exposed devices.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.devices)
}
