package homeassistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entity(id, state string) Entity {
	return Entity{EntityID: id, State: state, Attributes: map[string]any{}}
}

func change(id, from, to string) ChangeEvent {
	return ChangeEvent{EntityID: id, OldState: entity(id, from), NewState: entity(id, to)}
}

func TestFeed_DispatchOrder(t *testing.T) {
	f := NewFeed(nil)
	f.Publish(Batch{Added: map[string]Entity{"light.a": entity("light.a", "off")}})

	var order []string
	f.OnRegistered(func(es []Entity) { order = append(order, "registered") })
	f.OnUnregistered(func(es []Entity) { order = append(order, "unregistered") })
	f.ChangesFor("light.a", func(ChangeEvent) { order = append(order, "changed") })

	f.Publish(Batch{
		Added:   map[string]Entity{"light.b": entity("light.b", "on")},
		Removed: map[string]Entity{"light.c": entity("light.c", "on")},
		Changed: map[string]ChangeEvent{"light.a": change("light.a", "off", "on")},
	})

	assert.Equal(t, []string{"changed", "unregistered", "registered"}, order)
}

func TestFeed_ChangesForFiltersAndOrders(t *testing.T) {
	f := NewFeed(nil)
	f.Publish(Batch{Added: map[string]Entity{
		"light.a": entity("light.a", "off"),
		"light.b": entity("light.b", "off"),
	}})

	var got []string
	unsub := f.ChangesFor("light.a", func(ev ChangeEvent) { got = append(got, ev.NewState.State) })

	f.Publish(Batch{Changed: map[string]ChangeEvent{"light.a": change("light.a", "off", "on")}})
	f.Publish(Batch{Changed: map[string]ChangeEvent{"light.b": change("light.b", "off", "on")}})
	f.Publish(Batch{Changed: map[string]ChangeEvent{"light.a": change("light.a", "on", "unavailable")}})
	unsub()
	f.Publish(Batch{Changed: map[string]ChangeEvent{"light.a": change("light.a", "unavailable", "off")}})

	assert.Equal(t, []string{"on", "unavailable"}, got)
}

func TestFeed_ChangesForReplaysLatestBatchOnly(t *testing.T) {
	f := NewFeed(nil)
	f.Publish(Batch{Added: map[string]Entity{"light.a": entity("light.a", "off")}})
	f.Publish(Batch{Changed: map[string]ChangeEvent{"light.a": change("light.a", "off", "on")}})

	var got []string
	f.ChangesFor("light.a", func(ev ChangeEvent) { got = append(got, ev.NewState.State) })
	assert.Equal(t, []string{"on"}, got, "most recent change is replayed")

	// A later batch without the entity replaces the cached value.
	f.Publish(Batch{Added: map[string]Entity{"light.z": entity("light.z", "off")}})
	var late []string
	f.ChangesFor("light.a", func(ev ChangeEvent) { late = append(late, ev.NewState.State) })
	assert.Empty(t, late)
}

func TestFeed_MalformedChangeDropped(t *testing.T) {
	f := NewFeed(nil)
	f.Publish(Batch{Added: map[string]Entity{"light.a": entity("light.a", "off")}})

	var got int
	f.ChangesFor("light.a", func(ChangeEvent) { got++ })

	f.Publish(Batch{Changed: map[string]ChangeEvent{
		"light.a": {EntityID: "light.a", OldState: entity("light.a", "off"), NewState: entity("light.b", "on")},
	}})

	assert.Zero(t, got)
	e, ok := f.Entity("light.a")
	require.True(t, ok)
	assert.Equal(t, "off", e.State)
}

func TestFeed_ChangeAfterRemovalDropped(t *testing.T) {
	f := NewFeed(nil)
	f.Publish(Batch{Added: map[string]Entity{"light.a": entity("light.a", "off")}})
	f.Publish(Batch{Removed: map[string]Entity{"light.a": entity("light.a", "off")}})

	var got int
	f.ChangesFor("light.a", func(ChangeEvent) { got++ })
	f.Publish(Batch{Changed: map[string]ChangeEvent{"light.a": change("light.a", "off", "on")}})

	assert.Zero(t, got)
	_, ok := f.Entity("light.a")
	assert.False(t, ok)
	assert.Empty(t, f.Entities())
}

func TestFeed_SnapshotTracksBatches(t *testing.T) {
	f := NewFeed(nil)
	f.Publish(Batch{Added: map[string]Entity{
		"light.b": entity("light.b", "off"),
		"light.a": entity("light.a", "off"),
	}})
	f.Publish(Batch{
		Removed: map[string]Entity{"light.b": entity("light.b", "off")},
		Changed: map[string]ChangeEvent{"light.a": change("light.a", "off", "on")},
	})

	var ids []string
	f.Sync(func(current []Entity) {
		for _, e := range current {
			ids = append(ids, e.EntityID+"="+e.State)
		}
	})
	assert.Equal(t, []string{"light.a=on"}, ids)
}

func TestFeed_RegisteredIsSorted(t *testing.T) {
	f := NewFeed(nil)

	var got []string
	f.OnRegistered(func(es []Entity) {
		for _, e := range es {
			got = append(got, e.EntityID)
		}
	})

	f.Publish(Batch{Added: map[string]Entity{
		"switch.c": entity("switch.c", "on"),
		"light.a":  entity("light.a", "on"),
	}})

	assert.Equal(t, []string{"light.a", "switch.c"}, got)
}
