package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Transactor runs a function as one device transaction.
// *device.Device satisfies it.
type Transactor interface {
	Do(fn func())
}

// Updater is the per-device echo gate.
//
// ApplyRemoteUpdate marks the device as applying a Home Assistant change for
// the duration of one transaction. ApplyLocalUpdate, called from attribute
// listeners, does nothing while that mark is set, so a remote-origin write
// never turns into an outbound command.
//
// Both run on the device's transaction lock, so the mark is only ever
// observed by the goroutine that set it.
//
// Local updates run one at a time, in the order they were accepted, on a
// worker started when the queue becomes non-empty.
type Updater struct {
	entityID string
	tx       Transactor
	teardown *Teardown
	logger   Logger

	applyingRemote atomic.Bool
	inflight       sync.WaitGroup

	mu       sync.Mutex
	queue    []func(ctx context.Context) error
	draining bool
}

// NewUpdater creates the gate for one device. teardown bounds the lifetime
// of local updates; once triggered, remote updates are ignored and pending
// local updates see a cancelled context.
func NewUpdater(entityID string, tx Transactor, teardown *Teardown, logger Logger) *Updater {
	if logger == nil {
		logger = noopLogger{}
	}
	if teardown == nil {
		teardown = NewTeardown(context.Background())
	}
	return &Updater{
		entityID: entityID,
		tx:       tx,
		teardown: teardown,
		logger:   logger,
	}
}

// ApplyRemoteUpdate runs fn inside a device transaction with the gate
// closed. A returned error or a panic is logged and swallowed; the gate is
// always reopened.
func (u *Updater) ApplyRemoteUpdate(fn func() error) {
	u.tx.Do(func() {
		if u.teardown.Triggered() {
			return
		}

		u.applyingRemote.Store(true)
		defer u.applyingRemote.Store(false)

		if err := runGuarded(fn); err != nil {
			u.logger.Error("applying remote update failed", "entity_id", u.entityID, "error", err)
		}
	})
}

// ApplyLocalUpdate queues fn unless a remote update is being applied. It
// reports whether fn was queued. Queued functions run in order; one that
// has not started when the teardown fires is dropped. A failure of fn is
// logged, never returned.
func (u *Updater) ApplyLocalUpdate(fn func(ctx context.Context) error) bool {
	if u.applyingRemote.Load() {
		return false
	}

	ctx := u.teardown.Context()
	if ctx.Err() != nil {
		return false
	}

	u.inflight.Add(1)
	u.mu.Lock()
	u.queue = append(u.queue, fn)
	start := !u.draining
	u.draining = true
	u.mu.Unlock()

	if start {
		go u.drain(ctx)
	}
	return true
}

// drain runs queued local updates until the queue is empty.
func (u *Updater) drain(ctx context.Context) {
	for {
		u.mu.Lock()
		if len(u.queue) == 0 {
			u.draining = false
			u.mu.Unlock()
			return
		}
		fn := u.queue[0]
		u.queue[0] = nil
		u.queue = u.queue[1:]
		u.mu.Unlock()

		u.runLocal(ctx, fn)
		u.inflight.Done()
	}
}

func (u *Updater) runLocal(ctx context.Context, fn func(ctx context.Context) error) {
	if ctx.Err() != nil {
		u.logger.Debug("queued local update dropped after teardown", "entity_id", u.entityID)
		return
	}
	err := runGuarded(func() error { return fn(ctx) })
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		u.logger.Debug("local update abandoned after teardown", "entity_id", u.entityID)
		return
	}
	u.logger.Error("local update failed", "entity_id", u.entityID, "error", err)
}

// ApplyingRemoteUpdate reports whether a remote update is in progress.
// Only meaningful from inside a listener running in the same transaction.
func (u *Updater) ApplyingRemoteUpdate() bool {
	return u.applyingRemote.Load()
}

// Wait blocks until every queued local update has finished or been dropped.
func (u *Updater) Wait() {
	u.inflight.Wait()
}

func runGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
