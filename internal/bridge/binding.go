package bridge

import (
	"context"

	"github.com/nerrad567/gray-logic-matterbridge/internal/device"
	"github.com/nerrad567/gray-logic-matterbridge/internal/homeassistant"
	"github.com/nerrad567/gray-logic-matterbridge/internal/pubsub"
)

// Home Assistant services issued by the binders.
const (
	ServiceTurnOn  = "turn_on"
	ServiceTurnOff = "turn_off"
)

// CommandCaller is the remote command channel.
// *homeassistant.Client satisfies it.
type CommandCaller interface {
	CallService(ctx context.Context, domain, service string, target homeassistant.Target, data map[string]any) error
}

// ChangeSource provides the change events of one entity.
// *homeassistant.Feed satisfies it.
type ChangeSource interface {
	ChangesFor(entityID string, fn func(homeassistant.ChangeEvent)) pubsub.Unsubscribe
}

// Env is what a converter needs to wire a device to its entity.
type Env struct {
	Commands CommandCaller
	Changes  ChangeSource
	Teardown *Teardown
	Observer Observer
	Logger   Logger
}

func (e Env) withDefaults() Env {
	if e.Observer == nil {
		e.Observer = NopObserver{}
	}
	if e.Logger == nil {
		e.Logger = noopLogger{}
	}
	if e.Teardown == nil {
		e.Teardown = NewTeardown(context.Background())
	}
	return e
}

// binder wires one capability of dev to the entity.
type binder func(b *binding) error

// binding is the shared state of every binder attached to one device.
type binding struct {
	entity  homeassistant.Entity
	device  *device.Device
	updater *Updater
	env     Env
}

func newBinding(entity homeassistant.Entity, dev *device.Device, env Env) *binding {
	env = env.withDefaults()
	return &binding{
		entity:  entity,
		device:  dev,
		updater: NewUpdater(entity.EntityID, dev, env.Teardown, env.Logger),
		env:     env,
	}
}

// bind attaches every binder in order. The first failure is returned; the
// caller triggers the teardown to release what was already attached.
func bind(entity homeassistant.Entity, dev *device.Device, env Env, binders ...binder) (*binding, error) {
	b := newBinding(entity, dev, env)
	for _, attach := range binders {
		if err := runGuarded(func() error { return attach(b) }); err != nil {
			return b, err
		}
	}
	return b, nil
}

// remote applies apply to the initial snapshot now and to every later change
// event, each inside ApplyRemoteUpdate.
func (b *binding) remote(apply func(homeassistant.Entity)) {
	b.updater.ApplyRemoteUpdate(func() error {
		apply(b.entity)
		return nil
	})

	if b.env.Changes == nil {
		return
	}
	unsubscribe := b.env.Changes.ChangesFor(b.entity.EntityID, func(ev homeassistant.ChangeEvent) {
		b.updater.ApplyRemoteUpdate(func() error {
			apply(ev.NewState)
			return nil
		})
	})
	b.env.Teardown.Add(unsubscribe)
}

// local sends one service call for a device-originated change unless the
// gate is closed.
func (b *binding) local(attribute, domain, service string, data map[string]any) {
	started := b.updater.ApplyLocalUpdate(func(ctx context.Context) error {
		err := b.env.Commands.CallService(ctx, domain, service,
			homeassistant.Target{EntityID: b.entity.EntityID}, data)
		b.env.Observer.CommandSent(b.entity.EntityID, domain, service, data, err)
		return err
	})
	if !started && b.updater.ApplyingRemoteUpdate() {
		b.env.Observer.LocalUpdateSuppressed(b.entity.EntityID, attribute)
	}
}

// watch registers an unsubscribe function on the teardown handle.
func (b *binding) watch(unsubscribe func()) {
	b.env.Teardown.Add(unsubscribe)
}

// set writes v into attr if it differs and reports the change.
func set[T comparable](b *binding, attr *device.Attribute[T], v T) {
	if attr.Get() == v {
		return
	}
	if attr.Set(v) {
		b.env.Observer.RemoteUpdateApplied(b.entity.EntityID, attr.Name(), v)
	}
}
