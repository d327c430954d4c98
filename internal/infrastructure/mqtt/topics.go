package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every bridge topic.
const DefaultTopicPrefix = "matterbridge"

// Topics builds the bridge's MQTT topics under a common prefix.
//
// The hierarchy is:
//
//	{prefix}/bridge/status            online/offline (retained, LWT)
//	{prefix}/bridge/health            periodic health report (retained)
//	{prefix}/device/{serial}/config   exposed device description (retained)
//	{prefix}/device/{serial}/state    current attribute values (retained)
//	{prefix}/device/{serial}/set      local writes addressed to the device
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// BridgeStatus returns the bridge status topic.
//
// Example: matterbridge/bridge/status
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", t.prefix())
}

// BridgeHealth returns the bridge health topic.
//
// Example: matterbridge/bridge/health
func (t Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/bridge/health", t.prefix())
}

// DeviceConfig returns the description topic of an exposed device.
//
// Example: matterbridge/device/hmb-1700000000-1a2b3c4d/config
func (t Topics) DeviceConfig(serial string) string {
	return fmt.Sprintf("%s/device/%s/config", t.prefix(), serial)
}

// DeviceState returns the state topic of an exposed device.
func (t Topics) DeviceState(serial string) string {
	return fmt.Sprintf("%s/device/%s/state", t.prefix(), serial)
}

// DeviceSet returns the topic local writes to a device arrive on.
func (t Topics) DeviceSet(serial string) string {
	return fmt.Sprintf("%s/device/%s/set", t.prefix(), serial)
}

// AllDeviceSets returns a pattern matching every device's set topic.
//
// Pattern: matterbridge/device/+/set
func (t Topics) AllDeviceSets() string {
	return fmt.Sprintf("%s/device/+/set", t.prefix())
}

// SerialFromTopic extracts the serial number from a device topic. It
// reports false for topics outside the device hierarchy.
func (t Topics) SerialFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/device/")
	if !ok {
		return "", false
	}
	serial, _, found := strings.Cut(rest, "/")
	if !found || serial == "" {
		return "", false
	}
	return serial, true
}
