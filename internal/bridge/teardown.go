package bridge

import (
	"context"
	"sync"
)

// Teardown is the cancellation handle of one converted device. Binders add
// their unsubscribe functions to it; Trigger detaches all of them and
// cancels the context handed to in-flight service calls.
type Teardown struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	fns       []func()
	triggered bool
}

// NewTeardown creates a handle whose context is derived from parent.
func NewTeardown(parent context.Context) *Teardown {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Teardown{ctx: ctx, cancel: cancel}
}

// Add registers fn to run on Trigger. If the handle has already been
// triggered, fn runs immediately.
func (t *Teardown) Add(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	if t.triggered {
		t.mu.Unlock()
		fn()
		return
	}
	t.fns = append(t.fns, fn)
	t.mu.Unlock()
}

// Trigger cancels the context and runs every registered function, most
// recent first. It returns once all have run. Later calls do nothing.
func (t *Teardown) Trigger() {
	t.mu.Lock()
	if t.triggered {
		t.mu.Unlock()
		return
	}
	t.triggered = true
	fns := t.fns
	t.fns = nil
	t.mu.Unlock()

	t.cancel()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// Triggered reports whether Trigger has been called.
func (t *Teardown) Triggered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.triggered
}

// Context is cancelled by Trigger.
func (t *Teardown) Context() context.Context {
	return t.ctx
}
