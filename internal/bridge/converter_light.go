package bridge

import (
	"strings"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
)

// Home Assistant colour modes.
const (
	modeBrightness = "brightness"
	modeColorTemp  = "color_temp"
	modeHS         = "hs"
	modeXY         = "xy"
	modeRGB        = "rgb"
	modeRGBW       = "rgbw"
	modeRGBWW      = "rgbww"
	modeWhite      = "white"

	attrSupportedColorModes = "supported_color_modes"
)

func canConvertLight(e homeassistant.Entity) bool {
	return strings.HasPrefix(e.EntityID, "light.") || e.DeviceClass() == "light"
}

// lightShape is the device layout chosen for one light.
type lightShape struct {
	kind    device.Kind
	options []device.Option
	binders []binder
}

// lightShapeFor picks the richest layout the light's supported colour modes
// allow. A light with colour modes gets an extended colour device; tunable
// white gets colour temperature; brightness gets a dimmable light; anything
// else is plain on/off.
func lightShapeFor(e homeassistant.Entity) lightShape {
	has := func(modes ...string) bool { return e.HasString(attrSupportedColorModes, modes...) }

	switch {
	case has(modeHS, modeXY, modeRGB, modeRGBW, modeRGBWW):
		shape := lightShape{
			kind:    device.KindExtendedColorLight,
			options: []device.Option{device.WithOnOff(false), device.WithLevel(device.MaxLevel)},
			binders: []binder{bindOnOff, bindLevel},
		}
		if has(modeXY) {
			shape.options = append(shape.options, device.WithColorXY(0, 0))
			shape.binders = append(shape.binders, bindColorXY)
		}
		// Home Assistant accepts hs_color for every colour mode, so rgb*
		// lights are driven through hue/saturation.
		if has(modeHS, modeRGB, modeRGBW, modeRGBWW) {
			shape.options = append(shape.options, device.WithHueSaturation(0, 0))
			shape.binders = append(shape.binders, bindHueSaturation)
		}
		if has(modeColorTemp) {
			minM, maxM := miredRange(e)
			shape.options = append(shape.options, device.WithColorTemperature(device.DefaultInitialMireds, minM, maxM))
			shape.binders = append(shape.binders, bindColorTemperature)
		}
		return shape

	case has(modeColorTemp):
		minM, maxM := miredRange(e)
		return lightShape{
			kind: device.KindColorTemperatureLight,
			options: []device.Option{
				device.WithOnOff(false),
				device.WithLevel(device.MaxLevel),
				device.WithColorTemperature(device.DefaultInitialMireds, minM, maxM),
			},
			binders: []binder{bindOnOff, bindLevel, bindColorTemperature},
		}

	case has(modeBrightness, modeWhite):
		return lightShape{
			kind:    device.KindDimmableLight,
			options: []device.Option{device.WithOnOff(false), device.WithLevel(device.MaxLevel)},
			binders: []binder{bindOnOff, bindLevel},
		}

	default:
		return lightShape{
			kind:    device.KindOnOffLight,
			options: []device.Option{device.WithOnOff(false)},
			binders: []binder{bindOnOff},
		}
	}
}

func convertLight(e homeassistant.Entity, env Env) (*device.Device, error) {
	shape := lightShapeFor(e)
	dev := device.New(shape.kind, shape.options...)
	if _, err := bind(e, dev, env, shape.binders...); err != nil {
		return nil, err
	}
	return dev, nil
}
