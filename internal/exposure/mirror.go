package exposure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/mqtt"
)

// Publisher is the MQTT surface the mirror needs. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// DeviceLookup resolves a serial number to an exposed device.
// *Aggregator satisfies it.
type DeviceLookup interface {
	Lookup(serial string) (Exposed, bool)
}

// DeviceDescription is the retained config message of an exposed device.
type DeviceDescription struct {
	device.Metadata
	Kind         device.Kind `json:"kind"`
	Capabilities []string    `json:"capabilities"`
	StateTopic   string      `json:"state_topic"`
	SetTopic     string      `json:"set_topic"`
}

// MirrorOptions configures a Mirror.
type MirrorOptions struct {
	// Publisher is the MQTT connection. Required.
	Publisher Publisher

	// Devices resolves set messages to devices. Required.
	Devices DeviceLookup

	// Topics roots the mirror's topics. Default: mqtt.Topics{}.
	Topics mqtt.Topics

	// QoS for publishes and the set subscription. Default: 1.
	QoS byte

	// Logger is optional.
	Logger Logger
}

// Mirror publishes every exposed device over MQTT and accepts local writes
// on each device's set topic. It is an aggregator Listener.
//
// State is published after every device transaction that touched the
// device, from a background goroutine, so device transactions never wait
// on the broker. Bursts are coalesced per device.
//
// Thread Safety: all methods are safe for concurrent use.
type Mirror struct {
	publisher Publisher
	devices   DeviceLookup
	topics    mqtt.Topics
	qos       byte
	logger    Logger

	mu    sync.Mutex
	hooks map[string]func()
	dirty map[string]struct{}

	// pubMu orders state publishes against the clearing done on removal.
	pubMu sync.Mutex

	wake     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMirror validates opts and creates a stopped mirror.
func NewMirror(opts MirrorOptions) (*Mirror, error) {
	if opts.Publisher == nil {
		return nil, fmt.Errorf("exposure: mirror requires a publisher")
	}
	if opts.Devices == nil {
		return nil, fmt.Errorf("exposure: mirror requires a device lookup")
	}
	qos := opts.QoS
	if qos == 0 {
		qos = 1
	}
	return &Mirror{
		publisher: opts.Publisher,
		devices:   opts.Devices,
		topics:    opts.Topics,
		qos:       qos,
		logger:    orNoop(opts.Logger),
		hooks:     make(map[string]func()),
		dirty:     make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start subscribes to the set topics and starts the state publisher.
func (m *Mirror) Start(ctx context.Context) error {
	if err := m.publisher.Subscribe(m.topics.AllDeviceSets(), m.qos, m.handleSet); err != nil {
		return fmt.Errorf("subscribing to device set topics: %w", err)
	}

	m.wg.Add(1)
	go m.publishLoop(ctx)
	return nil
}

// Stop unsubscribes and waits for the state publisher to finish. Retained
// messages are left in place; the bridge status topic tells subscribers
// the bridge is gone. Safe to call multiple times.
func (m *Mirror) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()

		m.mu.Lock()
		hooks := m.hooks
		m.hooks = make(map[string]func())
		m.mu.Unlock()

		for _, unhook := range hooks {
			unhook()
		}
		if m.publisher.IsConnected() {
			if err := m.publisher.Unsubscribe(m.topics.AllDeviceSets()); err != nil {
				m.logger.Warn("unsubscribing from device set topics failed", "error", err)
			}
		}
	})
}

// DeviceAdded publishes the device description and state, then follows the
// device's transactions.
func (m *Mirror) DeviceAdded(dev *device.Device, meta device.Metadata) {
	serial := meta.SerialNumber
	unhook := dev.OnCommit(func() { m.markDirty(serial) })

	m.mu.Lock()
	if previous, ok := m.hooks[serial]; ok {
		previous()
	}
	m.hooks[serial] = unhook
	m.mu.Unlock()

	desc := DeviceDescription{
		Metadata:     meta,
		Kind:         dev.Kind(),
		Capabilities: dev.Capabilities(),
		StateTopic:   m.topics.DeviceState(serial),
		SetTopic:     m.topics.DeviceSet(serial),
	}
	if err := m.publishJSON(m.topics.DeviceConfig(serial), desc); err != nil {
		m.logger.Warn("publishing device description failed", "serial", serial, "error", err)
	}
	m.markDirty(serial)
}

// DeviceRemoved stops following the device and clears its retained
// messages.
func (m *Mirror) DeviceRemoved(_ *device.Device, meta device.Metadata) {
	serial := meta.SerialNumber

	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	unhook, ok := m.hooks[serial]
	delete(m.hooks, serial)
	delete(m.dirty, serial)
	m.mu.Unlock()
	if ok {
		unhook()
	}

	for _, topic := range []string{m.topics.DeviceState(serial), m.topics.DeviceConfig(serial)} {
		if err := m.publisher.Publish(topic, nil, m.qos, true); err != nil {
			m.logger.Warn("clearing retained device topic failed", "topic", topic, "error", err)
		}
	}
}

// handleSet applies a JSON device.Command received on a set topic as one
// local device transaction.
func (m *Mirror) handleSet(topic string, payload []byte) error {
	serial, ok := m.topics.SerialFromTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSerial, topic)
	}
	exposed, ok := m.devices.Lookup(serial)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSerial, serial)
	}

	var cmd device.Command
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	if err := exposed.Device.ApplyCommand(cmd); err != nil {
		return fmt.Errorf("applying command to %s: %w", serial, err)
	}
	m.logger.Debug("local write applied", "serial", serial)
	return nil
}

func (m *Mirror) markDirty(serial string) {
	m.mu.Lock()
	m.dirty[serial] = struct{}{}
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mirror) publishLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-m.wake:
			m.flush()
		}
	}
}

// flush publishes the current state of every dirty device.
func (m *Mirror) flush() {
	m.mu.Lock()
	dirty := m.dirty
	m.dirty = make(map[string]struct{})
	m.mu.Unlock()

	for serial := range dirty {
		m.publishState(serial)
	}
}

func (m *Mirror) publishState(serial string) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	_, mirrored := m.hooks[serial]
	m.mu.Unlock()
	if !mirrored {
		return
	}
	exposed, ok := m.devices.Lookup(serial)
	if !ok {
		return
	}
	if err := m.publishJSON(m.topics.DeviceState(serial), exposed.Device.State()); err != nil {
		m.logger.Warn("publishing device state failed", "serial", serial, "error", err)
	}
}

func (m *Mirror) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.publisher.Publish(topic, payload, m.qos, true)
}
