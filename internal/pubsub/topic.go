package pubsub

import (
	"sync"
	"sync/atomic"
)

// Replay is the number of past values a topic hands to new subscribers.
type Replay int

const (
	// ReplayNone delivers only values published after subscription.
	ReplayNone Replay = 0

	// ReplayLatest delivers the most recent value (if any) on subscription.
	ReplayLatest Replay = 1
)

// Unsubscribe detaches a subscriber. It is safe to call more than once.
type Unsubscribe func()

type subscriber[T any] struct {
	id     uint64
	fn     func(T)
	active atomic.Bool
}

// Topic is a multicast channel of values of type T.
//
// Thread Safety: all methods are safe for concurrent use.
type Topic[T any] struct {
	mu      sync.Mutex
	replay  Replay
	subs    []*subscriber[T]
	nextID  uint64
	last    T
	hasLast bool
}

// NewTopic creates a topic with the given replay depth. Depths above
// ReplayLatest are clamped to ReplayLatest.
func NewTopic[T any](replay Replay) *Topic[T] {
	if replay > ReplayLatest {
		replay = ReplayLatest
	}
	if replay < ReplayNone {
		replay = ReplayNone
	}
	return &Topic[T]{replay: replay}
}

// Publish delivers v to every active subscriber.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	if t.replay == ReplayLatest {
		t.last = v
		t.hasLast = true
	}
	subs := make([]*subscriber[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, s := range subs {
		// A subscriber removed while this publish is in flight is skipped.
		if s.active.Load() {
			s.fn(v)
		}
	}
}

// Subscribe registers fn and returns the function that detaches it. On a
// ReplayLatest topic the cached value, if any, is delivered before Subscribe
// returns.
func (t *Topic[T]) Subscribe(fn func(T)) Unsubscribe {
	t.mu.Lock()
	t.nextID++
	s := &subscriber[T]{id: t.nextID, fn: fn}
	s.active.Store(true)
	t.subs = append(t.subs, s)
	last, hasLast := t.last, t.hasLast
	t.mu.Unlock()

	if hasLast && s.active.Load() {
		fn(last)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			t.remove(s.id)
		})
	}
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subs {
		if s.id == id {
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			return
		}
	}
}
