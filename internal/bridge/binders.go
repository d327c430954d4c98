package bridge

import (
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
)

// Home Assistant light attributes read and written by the binders.
const (
	haBrightness      = "brightness"
	haColorTemp       = "color_temp"
	haColorTempKelvin = "color_temp_kelvin"
	haMinMireds       = "min_mireds"
	haMaxMireds       = "max_mireds"
	haMinKelvin       = "min_color_temp_kelvin"
	haMaxKelvin       = "max_color_temp_kelvin"
	haXYColor         = "xy_color"
	haHSColor         = "hs_color"
)

// bindOnOff follows the entity state and turns local toggles into
// <domain>.turn_on / turn_off.
func bindOnOff(b *binding) error {
	if !b.device.HasOnOff() {
		return fmt.Errorf("%w: on_off", ErrMissingCapability)
	}
	domain := b.entity.Domain()

	b.remote(func(e homeassistant.Entity) {
		set(b, b.device.On, e.IsOn())
	})

	b.watch(b.device.On.Subscribe(func(on, _ bool) {
		service := ServiceTurnOff
		if on {
			service = ServiceTurnOn
		}
		b.local(device.AttrOnOff, domain, service, nil)
	}))
	return nil
}

// bindLevel follows the brightness attribute. A missing or zero brightness
// (as reported for lights that are off) leaves the level alone.
func bindLevel(b *binding) error {
	if !b.device.HasLevel() {
		return fmt.Errorf("%w: level_control", ErrMissingCapability)
	}
	domain := b.entity.Domain()

	b.remote(func(e homeassistant.Entity) {
		if level, ok := levelFromEntity(e); ok {
			set(b, b.device.CurrentLevel, level)
		}
	})

	b.watch(b.device.CurrentLevel.Subscribe(func(level, _ uint8) {
		b.local(device.AttrCurrentLevel, domain, ServiceTurnOn, map[string]any{haBrightness: int(level)})
	}))
	return nil
}

// bindColorTemperature follows color_temp (mireds), falling back to
// color_temp_kelvin.
func bindColorTemperature(b *binding) error {
	if !b.device.HasColorTemperature() {
		return fmt.Errorf("%w: color_temperature", ErrMissingCapability)
	}
	domain := b.entity.Domain()

	b.remote(func(e homeassistant.Entity) {
		if mireds, ok := miredsFromEntity(e); ok {
			set(b, b.device.Mireds, b.device.ColorTemperature.Clamp(mireds))
		}
	})

	b.watch(b.device.Mireds.Subscribe(func(mireds, _ uint16) {
		b.local(device.AttrColorTemperature, domain, ServiceTurnOn, map[string]any{haColorTemp: int(mireds)})
	}))
	return nil
}

// bindColorXY follows xy_color. Local changes of X and Y are paired and sent
// as one xy_color call per transaction.
func bindColorXY(b *binding) error {
	if !b.device.HasColorXY() {
		return fmt.Errorf("%w: color_xy", ErrMissingCapability)
	}
	domain := b.entity.Domain()
	buf := &pairBuffer[uint16, uint16]{}

	b.remote(func(e homeassistant.Entity) {
		x, y, ok := e.FloatPair(haXYColor)
		if !ok {
			return
		}
		fx, fy := device.XYToFixed(x), device.XYToFixed(y)
		set(b, b.device.X, fx)
		set(b, b.device.Y, fy)
		buf.observeFirst(fx)
		buf.observeSecond(fy)
	})

	b.watch(b.device.X.Subscribe(func(x, _ uint16) {
		buf.updateFirst(x, !b.updater.ApplyingRemoteUpdate())
	}))
	b.watch(b.device.Y.Subscribe(func(y, _ uint16) {
		buf.updateSecond(y, !b.updater.ApplyingRemoteUpdate())
	}))
	b.watch(b.device.OnCommit(func() {
		x, y, ok := buf.take()
		if !ok {
			return
		}
		b.local(device.AttrCurrentX, domain, ServiceTurnOn, map[string]any{
			haXYColor: []float64{device.FixedToXY(x), device.FixedToXY(y)},
		})
	}))
	return nil
}

// bindHueSaturation follows hs_color, pairing local hue and saturation
// changes like bindColorXY.
func bindHueSaturation(b *binding) error {
	if !b.device.HasHueSaturation() {
		return fmt.Errorf("%w: hue_saturation", ErrMissingCapability)
	}
	domain := b.entity.Domain()
	buf := &pairBuffer[uint8, uint8]{}

	b.remote(func(e homeassistant.Entity) {
		h, s, ok := e.FloatPair(haHSColor)
		if !ok {
			return
		}
		hue, sat := device.HueFromDegrees(h), device.SaturationFromPercent(s)
		set(b, b.device.Hue, hue)
		set(b, b.device.Saturation, sat)
		buf.observeFirst(hue)
		buf.observeSecond(sat)
	})

	b.watch(b.device.Hue.Subscribe(func(hue, _ uint8) {
		buf.updateFirst(hue, !b.updater.ApplyingRemoteUpdate())
	}))
	b.watch(b.device.Saturation.Subscribe(func(sat, _ uint8) {
		buf.updateSecond(sat, !b.updater.ApplyingRemoteUpdate())
	}))
	b.watch(b.device.OnCommit(func() {
		hue, sat, ok := buf.take()
		if !ok {
			return
		}
		b.local(device.AttrCurrentHue, domain, ServiceTurnOn, map[string]any{
			haHSColor: []float64{device.DegreesFromHue(hue), device.PercentFromSaturation(sat)},
		})
	}))
	return nil
}

func levelFromEntity(e homeassistant.Entity) (uint8, bool) {
	brightness, ok := e.Float(haBrightness)
	if !ok || brightness <= 0 {
		return 0, false
	}
	return device.ClampLevel(uint8(math.Min(math.Round(brightness), 255))), true
}

func miredsFromEntity(e homeassistant.Entity) (uint16, bool) {
	if m, ok := e.Float(haColorTemp); ok && m > 0 {
		return uint16(math.Min(math.Round(m), math.MaxUint16)), true
	}
	if k, ok := e.Float(haColorTempKelvin); ok && k > 0 {
		return kelvinToMireds(k), true
	}
	return 0, false
}

// miredRange returns the physical colour temperature range advertised by
// the entity, or zeros when it advertises none.
func miredRange(e homeassistant.Entity) (uint16, uint16) {
	minM, okMin := e.Float(haMinMireds)
	maxM, okMax := e.Float(haMaxMireds)
	if okMin && okMax && minM > 0 && maxM >= minM {
		return uint16(math.Round(minM)), uint16(math.Round(maxM))
	}
	// Kelvin bounds are inverted: the warmest light has the most mireds.
	minK, okMinK := e.Float(haMinKelvin)
	maxK, okMaxK := e.Float(haMaxKelvin)
	if okMinK && okMaxK && minK > 0 && maxK >= minK {
		return kelvinToMireds(maxK), kelvinToMireds(minK)
	}
	return 0, 0
}

func kelvinToMireds(k float64) uint16 {
	return uint16(math.Min(math.Round(1e6/k), math.MaxUint16))
}
