package bridge

import (
	"strings"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
)

// switchDomains are exposed as on/off plug-in units. Commands go to the
// entity's own domain (switch.turn_on, input_boolean.turn_on).
var switchDomains = []string{"switch.", "input_boolean."}

func canConvertSwitch(e homeassistant.Entity) bool {
	for _, prefix := range switchDomains {
		if strings.HasPrefix(e.EntityID, prefix) {
			return true
		}
	}
	return false
}

func convertSwitch(e homeassistant.Entity, env Env) (*device.Device, error) {
	dev := device.NewOnOffPlugInUnit()
	if _, err := bind(e, dev, env, bindOnOff); err != nil {
		return nil, err
	}
	return dev, nil
}
