package homeassistant

import (
	"encoding/json"
	"math"
	"time"
)

// Websocket message types.
const (
	msgAuthRequired      = "auth_required"
	msgAuth              = "auth"
	msgAuthOK            = "auth_ok"
	msgAuthInvalid       = "auth_invalid"
	msgResult            = "result"
	msgEvent             = "event"
	msgPing              = "ping"
	msgPong              = "pong"
	msgSubscribeEntities = "subscribe_entities"
	msgUnsubscribeEvents = "unsubscribe_events"
	msgCallService       = "call_service"
)

// StatesUpdate is one compressed subscribe_entities event.
type StatesUpdate struct {
	// Added maps entity ids to full states.
	Added map[string]CompressedState `json:"a,omitempty"`

	// Removed lists entity ids that no longer exist.
	Removed []string `json:"r,omitempty"`

	// Changed maps entity ids to partial diffs.
	Changed map[string]EntityDiff `json:"c,omitempty"`
}

// CompressedState is the short-key form of an entity state.
type CompressedState struct {
	State       *string        `json:"s,omitempty"`
	Attributes  map[string]any `json:"a,omitempty"`
	Context     *Context       `json:"c,omitempty"`
	LastChanged float64        `json:"lc,omitempty"`
	LastUpdated float64        `json:"lu,omitempty"`
}

// EntityDiff carries additions and attribute removals for one entity.
type EntityDiff struct {
	Add    *CompressedState `json:"+,omitempty"`
	Remove *AttributeRemove `json:"-,omitempty"`
}

// AttributeRemove lists attribute keys to delete.
type AttributeRemove struct {
	Attributes []string `json:"a,omitempty"`
}

// envelope is the common shape of every inbound message.
type envelope struct {
	ID        int64           `json:"id,omitempty"`
	Type      string          `json:"type"`
	Success   *bool           `json:"success,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	Error     *remoteError    `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
	HAVersion string          `json:"ha_version,omitempty"`
}

type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

type commandMessage struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type unsubscribeMessage struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Subscription int64  `json:"subscription"`
}

type callServiceMessage struct {
	ID          int64          `json:"id"`
	Type        string         `json:"type"`
	Domain      string         `json:"domain"`
	Service     string         `json:"service"`
	Target      Target         `json:"target"`
	ServiceData map[string]any `json:"service_data,omitempty"`
}

// epochSeconds converts Home Assistant's fractional unix timestamps.
func epochSeconds(v float64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
