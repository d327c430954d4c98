package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	settle  = 100 * time.Millisecond
)

// recordedCall is one service call captured by mockCommands.
type recordedCall struct {
	Domain   string
	Service  string
	EntityID string
	Data     map[string]any
}

// mockCommands implements CommandCaller for testing.
type mockCommands struct {
	mu    sync.Mutex
	calls []recordedCall
	err   error
	block chan struct{}
}

func (m *mockCommands) CallService(ctx context.Context, domain, service string, target homeassistant.Target, data map[string]any) error {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recordedCall{Domain: domain, Service: service, EntityID: target.EntityID, Data: data})
	return m.err
}

func (m *mockCommands) Calls() []recordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockCommands) count() int {
	return len(m.Calls())
}

// mockAggregator implements Aggregator and records the live device set.
type mockAggregator struct {
	mu         sync.Mutex
	live       map[*device.Device]device.Metadata
	adds       int
	removes    int
	failSerial string
	violations []string
}

func newMockAggregator() *mockAggregator {
	return &mockAggregator{live: make(map[*device.Device]device.Metadata)}
}

func (m *mockAggregator) Add(dev *device.Device, meta device.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta.SerialNumber == m.failSerial {
		return errors.New("aggregator full")
	}
	for _, existing := range m.live {
		if existing.SerialNumber == meta.SerialNumber {
			m.violations = append(m.violations, meta.SerialNumber)
		}
	}
	m.live[dev] = meta
	m.adds++
	return nil
}

func (m *mockAggregator) Remove(dev *device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[dev]; !ok {
		return fmt.Errorf("unknown device")
	}
	delete(m.live, dev)
	m.removes++
	return nil
}

func (m *mockAggregator) liveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *mockAggregator) counts() (adds, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds, m.removes
}

func (m *mockAggregator) metadata(dev *device.Device) (device.Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.live[dev]
	return meta, ok
}

// countingObserver counts observer callbacks.
type countingObserver struct {
	mu         sync.Mutex
	converted  int
	failed     int
	removed    int
	remote     int
	commands   int
	suppressed int
}

func (o *countingObserver) EntityConverted(string, Family, device.Kind) {
	o.mu.Lock()
	o.converted++
	o.mu.Unlock()
}

func (o *countingObserver) ConversionFailed(string, error) {
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()
}

func (o *countingObserver) DeviceRemoved(string) {
	o.mu.Lock()
	o.removed++
	o.mu.Unlock()
}

func (o *countingObserver) RemoteUpdateApplied(string, string, any) {
	o.mu.Lock()
	o.remote++
	o.mu.Unlock()
}

func (o *countingObserver) CommandSent(string, string, string, map[string]any, error) {
	o.mu.Lock()
	o.commands++
	o.mu.Unlock()
}

func (o *countingObserver) LocalUpdateSuppressed(string, string) {
	o.mu.Lock()
	o.suppressed++
	o.mu.Unlock()
}

func (o *countingObserver) snapshot() countingObserver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return countingObserver{
		converted:  o.converted,
		failed:     o.failed,
		removed:    o.removed,
		remote:     o.remote,
		commands:   o.commands,
		suppressed: o.suppressed,
	}
}

// harness wires a real feed to a registry with mock collaborators.
type harness struct {
	feed     *homeassistant.Feed
	commands *mockCommands
	agg      *mockAggregator
	observer *countingObserver
	registry *Registry
}

func newHarness(t *testing.T, converters ...Converter) *harness {
	t.Helper()
	h := &harness{
		feed:     homeassistant.NewFeed(nil),
		commands: &mockCommands{},
		agg:      newMockAggregator(),
		observer: &countingObserver{},
	}

	reg, err := NewRegistry(RegistryOptions{
		Source:     h.feed,
		Commands:   h.commands,
		Aggregator: h.agg,
		UniqueID:   "1700000000",
		Converters: converters,
		Observer:   h.observer,
	})
	require.NoError(t, err)
	require.NoError(t, reg.Start())
	t.Cleanup(reg.Stop)
	h.registry = reg
	return h
}

func (h *harness) add(entities ...homeassistant.Entity) {
	batch := homeassistant.Batch{Added: make(map[string]homeassistant.Entity)}
	for _, e := range entities {
		batch.Added[e.EntityID] = e
	}
	h.feed.Publish(batch)
}

func (h *harness) remove(entities ...homeassistant.Entity) {
	batch := homeassistant.Batch{Removed: make(map[string]homeassistant.Entity)}
	for _, e := range entities {
		batch.Removed[e.EntityID] = e
	}
	h.feed.Publish(batch)
}

// change publishes a change from the feed's current snapshot to next.
func (h *harness) change(t *testing.T, next homeassistant.Entity) {
	t.Helper()
	old, ok := h.feed.Entity(next.EntityID)
	if !ok {
		old = next
	}
	h.feed.Publish(homeassistant.Batch{Changed: map[string]homeassistant.ChangeEvent{
		next.EntityID: {EntityID: next.EntityID, OldState: old, NewState: next},
	}})
}

func (h *harness) device(t *testing.T, entityID string) *device.Device {
	t.Helper()
	entry, ok := h.registry.Entry(entityID)
	require.True(t, ok, "entity %s not tracked", entityID)
	require.True(t, entry.Converted, "entity %s not converted", entityID)
	return entry.Device
}

func light(id, state string, attrs map[string]any) homeassistant.Entity {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return homeassistant.Entity{EntityID: id, State: state, Attributes: attrs}
}

func boolPtr(v bool) *bool    { return &v }
func u8Ptr(v uint8) *uint8    { return &v }
func u16Ptr(v uint16) *uint16 { return &v }
func modes(m ...string) []any {
	out := make([]any, len(m))
	for i, s := range m {
		out[i] = s
	}
	return out
}
