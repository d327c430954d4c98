package homeassistant

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Common entity states.
const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnavailable = "unavailable"
	StateUnknown     = "unknown"
)

// Context identifies the origin of a state change. It is carried for
// provenance only.
type Context struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id"`
	UserID   *string `json:"user_id"`
}

// UnmarshalJSON accepts both the object form and the bare id string that
// compressed updates use.
func (c *Context) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*c = Context{ID: id}
		return nil
	}
	type plain Context
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Context(p)
	return nil
}

// Entity is a snapshot of one Home Assistant entity.
//
// Attribute maps are never mutated once an Entity has been handed out; the
// store copies the map before applying a change.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	Context     Context        `json:"context"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Domain returns the part of the entity id before the first dot
// ("light" for "light.kitchen").
func (e Entity) Domain() string {
	domain, _, found := strings.Cut(e.EntityID, ".")
	if !found {
		return ""
	}
	return domain
}

// IsOn reports whether the entity state is "on".
func (e Entity) IsOn() bool {
	return e.State == StateOn
}

// FriendlyName returns the friendly_name attribute, or the entity id.
func (e Entity) FriendlyName() string {
	if name, ok := e.Attributes["friendly_name"].(string); ok && name != "" {
		return name
	}
	return e.EntityID
}

// DeviceClass returns the device_class attribute, if set.
func (e Entity) DeviceClass() string {
	dc, _ := e.Attributes["device_class"].(string) //nolint:errcheck // empty string when absent
	return dc
}

// Attr returns a raw attribute value. A present-but-null attribute reports
// ok=false.
func (e Entity) Attr(key string) (any, bool) {
	v, ok := e.Attributes[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Float returns a numeric attribute.
func (e Entity) Float(key string) (float64, bool) {
	v, ok := e.Attr(key)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// FloatPair returns a two-element numeric attribute such as xy_color or
// hs_color.
func (e Entity) FloatPair(key string) (float64, float64, bool) {
	v, ok := e.Attr(key)
	if !ok {
		return 0, 0, false
	}

	var items []any
	switch vv := v.(type) {
	case []any:
		items = vv
	case []float64:
		if len(vv) != 2 {
			return 0, 0, false
		}
		return vv[0], vv[1], true
	default:
		return 0, 0, false
	}
	if len(items) != 2 {
		return 0, 0, false
	}

	a, okA := toFloat(items[0])
	b, okB := toFloat(items[1])
	if !okA || !okB {
		return 0, 0, false
	}
	return a, b, true
}

// Strings returns a list-of-strings attribute such as supported_color_modes.
func (e Entity) Strings(key string) []string {
	v, ok := e.Attr(key)
	if !ok {
		return nil
	}

	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HasString reports whether the list attribute key contains any of values.
func (e Entity) HasString(key string, values ...string) bool {
	for _, have := range e.Strings(key) {
		for _, want := range values {
			if have == want {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ChangeEvent pairs the snapshots before and after one upstream change.
type ChangeEvent struct {
	EntityID string `json:"entity_id"`
	OldState Entity `json:"old_state"`
	NewState Entity `json:"new_state"`
}

// Valid reports whether both snapshots carry the event's entity id.
func (c ChangeEvent) Valid() bool {
	return c.EntityID != "" &&
		c.NewState.EntityID == c.EntityID &&
		c.OldState.EntityID == c.EntityID
}

// Batch is the result of one upstream update message.
type Batch struct {
	Added   map[string]Entity
	Removed map[string]Entity
	Changed map[string]ChangeEvent
}

// Empty reports whether the batch carries nothing.
func (b Batch) Empty() bool {
	return len(b.Added) == 0 && len(b.Removed) == 0 && len(b.Changed) == 0
}

// Target addresses the entity a service call acts on.
type Target struct {
	EntityID string `json:"entity_id"`
}
