package bridge

import (
	"crypto/sha1" //nolint:gosec // content hash for identifiers, not security
	"encoding/hex"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
)

// DefaultSerialPrefix starts every serial number.
const DefaultSerialPrefix = "hmb"

// serialHashLength is the number of hex digits of the entity id hash.
const serialHashLength = 8

// SerialNumber derives a device serial from the bridge's unique id and the
// entity id: "<prefix>-<uniqueID>-<sha1(entityID)[:8]>". The unique id is
// shortened so the result never exceeds device.MaxSerialNumberLength.
func SerialNumber(prefix, uniqueID, entityID string) string {
	if prefix == "" {
		prefix = DefaultSerialPrefix
	}
	sum := sha1.Sum([]byte(entityID)) //nolint:gosec // see import
	hash := hex.EncodeToString(sum[:])[:serialHashLength]

	budget := device.MaxSerialNumberLength - len(prefix) - len(hash) - 2
	if budget < 0 {
		budget = 0
	}
	if len(uniqueID) > budget {
		uniqueID = uniqueID[:budget]
	}

	serial := prefix + "-" + uniqueID + "-" + hash
	return device.Truncate(serial, device.MaxSerialNumberLength)
}

// MetadataFor builds the display metadata of an entity's device. Everything
// is derived from the entity, so it is stable across restarts.
func MetadataFor(e homeassistant.Entity, prefix, uniqueID string) device.Metadata {
	label := device.Truncate(e.FriendlyName(), device.MaxLabelLength)
	return device.Metadata{
		Label:        label,
		ProductName:  device.Truncate(e.FriendlyName(), device.MaxProductNameLength),
		ProductLabel: device.Truncate(e.EntityID, device.MaxProductLabelLength),
		SerialNumber: SerialNumber(prefix, uniqueID, e.EntityID),
		Reachable:    true,
	}
}
