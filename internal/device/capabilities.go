package device

// Attribute names, used in logs, metrics and the MQTT mirror.
const (
	AttrOnOff            = "on_off"
	AttrCurrentLevel     = "current_level"
	AttrColorTemperature = "color_temperature_mireds"
	AttrCurrentX         = "current_x"
	AttrCurrentY         = "current_y"
	AttrCurrentHue       = "current_hue"
	AttrCurrentSat       = "current_saturation"
)

// Level and colour limits of the exposure protocol.
const (
	MinLevel uint8 = 1
	MaxLevel uint8 = 254

	MaxHue        uint8 = 254
	MaxSaturation uint8 = 254

	// MaxColorXY is the largest encodable chromaticity coordinate.
	MaxColorXY uint16 = 65279

	DefaultMinMireds     uint16 = 153
	DefaultMaxMireds     uint16 = 500
	DefaultInitialMireds uint16 = 200
)

// OnOff is the on/off capability.
type OnOff struct {
	On *Attribute[bool]
}

func newOnOff(initial bool) *OnOff {
	return &OnOff{On: NewAttribute(AttrOnOff, initial)}
}

// LevelControl is the brightness capability. CurrentLevel ranges over
// MinLevel..MaxLevel.
type LevelControl struct {
	CurrentLevel *Attribute[uint8]
}

func newLevelControl(initial uint8) *LevelControl {
	return &LevelControl{CurrentLevel: NewAttribute(AttrCurrentLevel, ClampLevel(initial))}
}

// ColorTemperature is the tunable-white capability, in mireds.
type ColorTemperature struct {
	Mireds *Attribute[uint16]

	// PhysicalMin and PhysicalMax bound Mireds.
	PhysicalMin uint16
	PhysicalMax uint16
}

func newColorTemperature(initial, minMireds, maxMireds uint16) *ColorTemperature {
	if minMireds == 0 {
		minMireds = DefaultMinMireds
	}
	if maxMireds == 0 || maxMireds < minMireds {
		maxMireds = DefaultMaxMireds
	}
	if minMireds > maxMireds {
		minMireds = maxMireds
	}
	ct := &ColorTemperature{PhysicalMin: minMireds, PhysicalMax: maxMireds}
	ct.Mireds = NewAttribute(AttrColorTemperature, ct.Clamp(initial))
	return ct
}

// Clamp bounds mireds to the physical range.
func (c *ColorTemperature) Clamp(mireds uint16) uint16 {
	if mireds < c.PhysicalMin {
		return c.PhysicalMin
	}
	if mireds > c.PhysicalMax {
		return c.PhysicalMax
	}
	return mireds
}

// ColorXY is the CIE xy chromaticity capability. Coordinates are fixed
// point, value/65536.
type ColorXY struct {
	X *Attribute[uint16]
	Y *Attribute[uint16]
}

func newColorXY(x, y uint16) *ColorXY {
	return &ColorXY{
		X: NewAttribute(AttrCurrentX, min(x, MaxColorXY)),
		Y: NewAttribute(AttrCurrentY, min(y, MaxColorXY)),
	}
}

// HueSaturation is the hue/saturation capability, both 0..254.
type HueSaturation struct {
	Hue        *Attribute[uint8]
	Saturation *Attribute[uint8]
}

func newHueSaturation(hue, sat uint8) *HueSaturation {
	return &HueSaturation{
		Hue:        NewAttribute(AttrCurrentHue, min(hue, MaxHue)),
		Saturation: NewAttribute(AttrCurrentSat, min(sat, MaxSaturation)),
	}
}

// ClampLevel bounds a level to MinLevel..MaxLevel.
func ClampLevel(level uint8) uint8 {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
