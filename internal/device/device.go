package device

import (
	"fmt"
	"sync"
)

// Kind is the device type presented to the aggregator.
type Kind string

// Supported device kinds.
const (
	KindOnOffLight            Kind = "on_off_light"
	KindDimmableLight         Kind = "dimmable_light"
	KindColorTemperatureLight Kind = "color_temperature_light"
	KindExtendedColorLight    Kind = "extended_color_light"
	KindOnOffPlugInUnit       Kind = "on_off_plugin_unit"
)

// Device is a composed set of capabilities. Absent capabilities are nil.
type Device struct {
	*OnOff
	*LevelControl
	*ColorTemperature
	*ColorXY
	*HueSaturation

	kind Kind

	txMu sync.Mutex

	hookMu     sync.Mutex
	hooks      []commitHook
	nextHookID uint64
}

type commitHook struct {
	id uint64
	fn func()
}

// Option adds a capability to a device under construction.
type Option func(*Device)

// WithOnOff adds the on/off capability.
func WithOnOff(initial bool) Option {
	return func(d *Device) { d.OnOff = newOnOff(initial) }
}

// WithLevel adds level control. The initial level is clamped.
func WithLevel(initial uint8) Option {
	return func(d *Device) { d.LevelControl = newLevelControl(initial) }
}

// WithColorTemperature adds tunable white with the given physical range.
// Zero bounds fall back to DefaultMinMireds and DefaultMaxMireds.
func WithColorTemperature(initial, minMireds, maxMireds uint16) Option {
	return func(d *Device) { d.ColorTemperature = newColorTemperature(initial, minMireds, maxMireds) }
}

// WithColorXY adds xy colour.
func WithColorXY(x, y uint16) Option {
	return func(d *Device) { d.ColorXY = newColorXY(x, y) }
}

// WithHueSaturation adds hue/saturation colour.
func WithHueSaturation(hue, sat uint8) Option {
	return func(d *Device) { d.HueSaturation = newHueSaturation(hue, sat) }
}

// New creates a device of the given kind with the given capabilities.
func New(kind Kind, opts ...Option) *Device {
	d := &Device{kind: kind}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewOnOffLight creates an on/off light.
func NewOnOffLight() *Device {
	return New(KindOnOffLight, WithOnOff(false))
}

// NewDimmableLight creates an on/off light with level control.
func NewDimmableLight() *Device {
	return New(KindDimmableLight, WithOnOff(false), WithLevel(MaxLevel))
}

// NewColorTemperatureLight creates a dimmable light with tunable white.
func NewColorTemperatureLight(minMireds, maxMireds uint16) *Device {
	return New(KindColorTemperatureLight,
		WithOnOff(false),
		WithLevel(MaxLevel),
		WithColorTemperature(DefaultInitialMireds, minMireds, maxMireds),
	)
}

// NewOnOffPlugInUnit creates a switchable outlet.
func NewOnOffPlugInUnit() *Device {
	return New(KindOnOffPlugInUnit, WithOnOff(false))
}

// Kind returns the device kind.
func (d *Device) Kind() Kind {
	return d.kind
}

// HasOnOff reports whether the device has the on/off capability.
func (d *Device) HasOnOff() bool { return d.OnOff != nil }

// HasLevel reports whether the device has level control.
func (d *Device) HasLevel() bool { return d.LevelControl != nil }

// HasColorTemperature reports whether the device has tunable white.
func (d *Device) HasColorTemperature() bool { return d.ColorTemperature != nil }

// HasColorXY reports whether the device has xy colour.
func (d *Device) HasColorXY() bool { return d.ColorXY != nil }

// HasHueSaturation reports whether the device has hue/saturation colour.
func (d *Device) HasHueSaturation() bool { return d.HueSaturation != nil }

// Capabilities lists the capability names present, in a fixed order.
func (d *Device) Capabilities() []string {
	var caps []string
	if d.HasOnOff() {
		caps = append(caps, "on_off")
	}
	if d.HasLevel() {
		caps = append(caps, "level_control")
	}
	if d.HasColorTemperature() {
		caps = append(caps, "color_temperature")
	}
	if d.HasColorXY() {
		caps = append(caps, "color_xy")
	}
	if d.HasHueSaturation() {
		caps = append(caps, "hue_saturation")
	}
	return caps
}

// Do runs fn as one transaction: fn runs under the device's transaction
// lock, then every commit hook runs once. Listeners and hooks must not call
// Do.
func (d *Device) Do(fn func()) {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	fn()

	d.hookMu.Lock()
	hooks := make([]commitHook, len(d.hooks))
	copy(hooks, d.hooks)
	d.hookMu.Unlock()

	for _, h := range hooks {
		h.fn()
	}
}

// OnCommit registers fn to run at the end of every transaction and returns
// the function that removes it.
func (d *Device) OnCommit(fn func()) func() {
	d.hookMu.Lock()
	d.nextHookID++
	id := d.nextHookID
	d.hooks = append(d.hooks, commitHook{id: id, fn: fn})
	d.hookMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.hookMu.Lock()
			defer d.hookMu.Unlock()
			for i, h := range d.hooks {
				if h.id == id {
					d.hooks = append(d.hooks[:i:i], d.hooks[i+1:]...)
					return
				}
			}
		})
	}
}

// State is a point-in-time view of every attribute the device has.
type State struct {
	On               *bool   `json:"on,omitempty"`
	Level            *uint8  `json:"level,omitempty"`
	ColorTemperature *uint16 `json:"color_temp,omitempty"`
	X                *uint16 `json:"x,omitempty"`
	Y                *uint16 `json:"y,omitempty"`
	Hue              *uint8  `json:"hue,omitempty"`
	Saturation       *uint8  `json:"saturation,omitempty"`
}

// State returns the current attribute values.
func (d *Device) State() State {
	var s State
	if d.HasOnOff() {
		s.On = ptr(d.On.Get())
	}
	if d.HasLevel() {
		s.Level = ptr(d.CurrentLevel.Get())
	}
	if d.HasColorTemperature() {
		s.ColorTemperature = ptr(d.Mireds.Get())
	}
	if d.HasColorXY() {
		s.X = ptr(d.X.Get())
		s.Y = ptr(d.Y.Get())
	}
	if d.HasHueSaturation() {
		s.Hue = ptr(d.Hue.Get())
		s.Saturation = ptr(d.Saturation.Get())
	}
	return s
}

// Command is a local write, as a user or controller would issue it. Unset
// fields are left alone.
type Command struct {
	On               *bool   `json:"on,omitempty"`
	Level            *uint8  `json:"level,omitempty"`
	ColorTemperature *uint16 `json:"color_temp,omitempty"`
	X                *uint16 `json:"x,omitempty"`
	Y                *uint16 `json:"y,omitempty"`
	Hue              *uint8  `json:"hue,omitempty"`
	Saturation       *uint8  `json:"saturation,omitempty"`
}

// Validate checks the command against the device's capabilities.
func (d *Device) Validate(cmd Command) error {
	if cmd == (Command{}) {
		return ErrEmptyCommand
	}
	if cmd.On != nil && !d.HasOnOff() {
		return fmt.Errorf("%w: on_off", ErrUnsupported)
	}
	if cmd.Level != nil {
		if !d.HasLevel() {
			return fmt.Errorf("%w: level_control", ErrUnsupported)
		}
		if *cmd.Level < MinLevel || *cmd.Level > MaxLevel {
			return fmt.Errorf("%w: level %d", ErrOutOfRange, *cmd.Level)
		}
	}
	if cmd.ColorTemperature != nil {
		if !d.HasColorTemperature() {
			return fmt.Errorf("%w: color_temperature", ErrUnsupported)
		}
		if m := *cmd.ColorTemperature; m < d.PhysicalMin || m > d.PhysicalMax {
			return fmt.Errorf("%w: %d mireds not in %d..%d", ErrOutOfRange, m, d.PhysicalMin, d.PhysicalMax)
		}
	}
	if cmd.X != nil || cmd.Y != nil {
		if !d.HasColorXY() {
			return fmt.Errorf("%w: color_xy", ErrUnsupported)
		}
		if (cmd.X != nil && *cmd.X > MaxColorXY) || (cmd.Y != nil && *cmd.Y > MaxColorXY) {
			return fmt.Errorf("%w: xy coordinate", ErrOutOfRange)
		}
	}
	if cmd.Hue != nil || cmd.Saturation != nil {
		if !d.HasHueSaturation() {
			return fmt.Errorf("%w: hue_saturation", ErrUnsupported)
		}
		if (cmd.Hue != nil && *cmd.Hue > MaxHue) || (cmd.Saturation != nil && *cmd.Saturation > MaxSaturation) {
			return fmt.Errorf("%w: hue/saturation", ErrOutOfRange)
		}
	}
	return nil
}

// ApplyCommand validates cmd and applies it as one transaction.
func (d *Device) ApplyCommand(cmd Command) error {
	if err := d.Validate(cmd); err != nil {
		return err
	}

	d.Do(func() {
		if cmd.On != nil {
			d.On.Set(*cmd.On)
		}
		if cmd.Level != nil {
			d.CurrentLevel.Set(*cmd.Level)
		}
		if cmd.ColorTemperature != nil {
			d.Mireds.Set(*cmd.ColorTemperature)
		}
		if cmd.X != nil {
			d.X.Set(*cmd.X)
		}
		if cmd.Y != nil {
			d.Y.Set(*cmd.Y)
		}
		if cmd.Hue != nil {
			d.Hue.Set(*cmd.Hue)
		}
		if cmd.Saturation != nil {
			d.Saturation.Set(*cmd.Saturation)
		}
	})
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
