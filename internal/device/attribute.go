package device

import "sync"

// Listener receives an attribute change as (new value, old value).
type Listener[T comparable] func(newValue, oldValue T)

type listenerEntry[T comparable] struct {
	id uint64
	fn Listener[T]
}

// Attribute is a typed, observable device attribute.
//
// Set only notifies when the value actually changes. Listeners run
// synchronously on the goroutine that called Set, after the attribute lock
// is released, in subscription order.
type Attribute[T comparable] struct {
	name string

	mu        sync.RWMutex
	value     T
	listeners []listenerEntry[T]
	nextID    uint64
}

// NewAttribute creates an attribute holding initial.
func NewAttribute[T comparable](name string, initial T) *Attribute[T] {
	return &Attribute[T]{name: name, value: initial}
}

// Name returns the attribute's name, e.g. "on_off".
func (a *Attribute[T]) Name() string {
	return a.name
}

// Get returns the current value.
func (a *Attribute[T]) Get() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Set stores v and notifies listeners if it differs from the current
// value. It reports whether the value changed.
func (a *Attribute[T]) Set(v T) bool {
	a.mu.Lock()
	old := a.value
	if old == v {
		a.mu.Unlock()
		return false
	}
	a.value = v
	listeners := make([]listenerEntry[T], len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	for _, l := range listeners {
		l.fn(v, old)
	}
	return true
}

// Subscribe registers fn for change notifications and returns the function
// that removes it.
func (a *Attribute[T]) Subscribe(fn Listener[T]) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.listeners = append(a.listeners, listenerEntry[T]{id: id, fn: fn})
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, l := range a.listeners {
				if l.id == id {
					a.listeners = append(a.listeners[:i:i], a.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (a *Attribute[T]) ListenerCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.listeners)
}
