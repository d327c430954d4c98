package bridge

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
)

// Family names a device family. It is the tag of the converter variant.
type Family string

// Supported families.
const (
	FamilyLight  Family = "light"
	FamilySwitch Family = "switch"
)

// Converter is one variant of the closed converter set: a predicate that
// decides from the entity's static classification whether this family
// applies, and a factory that builds and wires the device.
//
// Convert must register every subscription it makes on env.Teardown. On
// error the caller triggers the teardown; the device is discarded.
type Converter struct {
	Family     Family
	CanConvert func(homeassistant.Entity) bool
	Convert    func(homeassistant.Entity, Env) (*device.Device, error)
}

// variants is the complete converter set, in default priority order.
var variants = []Converter{
	{Family: FamilyLight, CanConvert: canConvertLight, Convert: convertLight},
	{Family: FamilySwitch, CanConvert: canConvertSwitch, Convert: convertSwitch},
}

// DefaultConverters returns every converter in default priority order.
func DefaultConverters() []Converter {
	out := make([]Converter, len(variants))
	copy(out, variants)
	return out
}

// ConvertersByName resolves an ordered list of family names. Order is
// priority: the first converter that accepts an entity wins. An empty list
// returns DefaultConverters.
func ConvertersByName(names []string) ([]Converter, error) {
	if len(names) == 0 {
		return DefaultConverters(), nil
	}

	seen := make(map[Family]bool, len(names))
	out := make([]Converter, 0, len(names))
	for _, name := range names {
		family := Family(strings.ToLower(strings.TrimSpace(name)))
		if seen[family] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateConverter, name)
		}
		conv, ok := lookupVariant(family)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownConverter, name)
		}
		seen[family] = true
		out = append(out, conv)
	}
	return out, nil
}

// Families lists the known family names in default order.
func Families() []string {
	out := make([]string, len(variants))
	for i, v := range variants {
		out[i] = string(v.Family)
	}
	return out
}

// FamilyOf returns the family whose converter builds devices of kind.
func FamilyOf(kind device.Kind) Family {
	if kind == device.KindOnOffPlugInUnit {
		return FamilySwitch
	}
	return FamilyLight
}

func lookupVariant(family Family) (Converter, bool) {
	for _, v := range variants {
		if v.Family == family {
			return v, true
		}
	}
	return Converter{}, false
}

// selectConverter returns the first converter accepting e. A panicking
// predicate counts as "no".
func selectConverter(converters []Converter, e homeassistant.Entity) (Converter, bool) {
	for _, c := range converters {
		if acceptsSafely(c, e) {
			return c, true
		}
	}
	return Converter{}, false
}

func acceptsSafely(c Converter, e homeassistant.Entity) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return c.CanConvert(e)
}

// convertSafely runs c.Convert, turning a panic into an error.
func convertSafely(c Converter, e homeassistant.Entity, env Env) (dev *device.Device, err error) {
	err = runGuarded(func() error {
		var convErr error
		dev, convErr = c.Convert(e, env)
		return convErr
	})
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("%s converter returned no device", c.Family)
	}
	return dev, nil
}
