// Package batch coordinates update batching across root bindings.
//
// A Coordinator tracks two things: explicit batch scopes opened with Batch,
// which make IsActive report true so bindings commit synchronously, and the
// number of started but not yet completed updates. When the last started
// update completes, settle callbacks run.
package batch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-drift/renderloop/pkg/errors"
	"github.com/go-drift/renderloop/pkg/loop"
)

// DefaultNotifyTimeout bounds how long BatchAndNotify waits for pending
// updates before calling notify anyway.
const DefaultNotifyTimeout = time.Second

var errUnbalanced = errors.New("update completed without a matching start")

// Coordinator is the shared batching state.
type Coordinator struct {
	scopes  atomic.Int32
	pending atomic.Int32
	updates atomic.Uint64

	mu      sync.Mutex
	settled []func()
}

// New creates an isolated coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Default is the process-wide coordinator shared by every binding that is
// not given its own.
var Default = New()

// IsActive reports whether a batch scope is open.
func (c *Coordinator) IsActive() bool {
	return c.scopes.Load() > 0
}

// Pending returns the number of started updates that have not completed.
func (c *Coordinator) Pending() int {
	return int(c.pending.Load())
}

// Updates returns the total number of updates ever started.
func (c *Coordinator) Updates() uint64 {
	return c.updates.Load()
}

// Starting records that an update has been scheduled. Every call must be
// paired with exactly one Completed.
func (c *Coordinator) Starting() {
	c.updates.Add(1)
	c.pending.Add(1)
}

// Completed records that a scheduled update has been committed. When no
// update remains pending, settle callbacks run in registration order.
// Calling Completed without a matching Starting panics.
func (c *Coordinator) Completed() {
	n := c.pending.Add(-1)
	if n < 0 {
		c.pending.Add(1)
		errors.Contract("batch.Completed", errUnbalanced)
	}
	if n == 0 {
		c.flushSettled()
	}
}

func (c *Coordinator) flushSettled() {
	c.mu.Lock()
	callbacks := c.settled
	c.settled = nil
	c.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

// OnSettled runs fn once no update is pending: immediately if that is
// already the case, otherwise when the counter next drops to zero.
func (c *Coordinator) OnSettled(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	if c.pending.Load() == 0 {
		c.mu.Unlock()
		fn()
		return
	}
	c.settled = append(c.settled, fn)
	c.mu.Unlock()
}

// Batch runs fn inside a batch scope. Scopes nest; the scope closes even if
// fn panics.
func (c *Coordinator) Batch(fn func()) {
	c.scopes.Add(1)
	defer c.scopes.Add(-1)
	fn()
}

// BatchAndNotify runs fn inside a batch scope and calls notify once every
// update pending at the end of the scope has completed, or once timeout has
// elapsed on l, whichever happens first. notify is never called twice. A
// non-positive timeout uses DefaultNotifyTimeout; a nil loop disables the
// timeout.
func (c *Coordinator) BatchAndNotify(fn func(), notify func(), timeout time.Duration, l *loop.Loop) {
	c.Batch(fn)
	if notify == nil {
		return
	}

	var once sync.Once
	var timer *loop.Task
	fire := func() {
		once.Do(func() {
			timer.Cancel()
			notify()
		})
	}

	if c.pending.Load() == 0 {
		fire()
		return
	}
	if l != nil {
		if timeout <= 0 {
			timeout = DefaultNotifyTimeout
		}
		timer = l.After(timeout, fire)
	}
	c.OnSettled(fire)
}

// IsActive reports whether a batch scope is open on Default.
func IsActive() bool { return Default.IsActive() }

// Starting records a scheduled update on Default.
func Starting() { Default.Starting() }

// Completed records a committed update on Default.
func Completed() { Default.Completed() }

// Batch runs fn inside a batch scope on Default.
func Batch(fn func()) { Default.Batch(fn) }
