// Package loop provides the cooperative task queue that stands in for the
// UI thread. Tasks posted to a Loop run one after another on the goroutine
// that drives it; nothing in the render loop executes phases concurrently.
//
// Post is safe to call from any goroutine. RunPending, Drain and Run must
// only be called from the goroutine that owns the loop.
package loop

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Clock provides time for delayed tasks. The default implementation uses
// system time. Tests can inject a fake clock via WithClock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Task is a handle to a posted callback.
type Task struct {
	fn        func()
	due       time.Time
	delayed   bool
	cancelled bool
	done      bool
	loop      *Loop
}

// Cancel prevents the task from running. It returns false if the task has
// already run or was cancelled before.
func (t *Task) Cancel() bool {
	if t == nil || t.loop == nil {
		return false
	}
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	if t.done || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

// Pending reports whether the task is still waiting to run.
func (t *Task) Pending() bool {
	if t == nil || t.loop == nil {
		return false
	}
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	return !t.done && !t.cancelled
}

// Loop is a FIFO task queue with optional delayed tasks.
type Loop struct {
	mu      sync.Mutex
	ready   []*Task
	delayed []*Task
	wake    chan struct{}
	clock   Clock
	ticks   uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the time source used for delayed tasks.
func WithClock(c Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

// New creates an empty loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake:  make(chan struct{}, 1),
		clock: realClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post schedules fn to run on the next tick.
func (l *Loop) Post(fn func()) *Task {
	if fn == nil {
		return nil
	}
	t := &Task{fn: fn, loop: l}
	l.mu.Lock()
	l.ready = append(l.ready, t)
	l.mu.Unlock()
	l.signal()
	return t
}

// After schedules fn to run on the first tick at which d has elapsed on the
// loop clock. A non-positive d behaves like Post.
func (l *Loop) After(d time.Duration, fn func()) *Task {
	if d <= 0 {
		return l.Post(fn)
	}
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	t := &Task{fn: fn, loop: l, delayed: true, due: l.clock.Now().Add(d)}
	l.delayed = append(l.delayed, t)
	l.mu.Unlock()
	l.signal()
	return t
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of tasks still waiting, delayed ones included.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.ready {
		if !t.cancelled {
			n++
		}
	}
	for _, t := range l.delayed {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Ticks returns how many ticks have been processed.
func (l *Loop) Ticks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// take removes the tasks that belong to the current tick: everything queued
// so far, then the delayed tasks whose deadline has passed ordered by
// deadline. Tasks sharing a deadline keep their scheduling order.
func (l *Loop) take() []*Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks++

	batch := l.ready
	l.ready = nil

	if len(l.delayed) > 0 {
		now := l.clock.Now()
		var due, waiting []*Task
		for _, t := range l.delayed {
			switch {
			case t.cancelled:
			case !t.due.After(now):
				due = append(due, t)
			default:
				waiting = append(waiting, t)
			}
		}
		slices.SortStableFunc(due, func(a, b *Task) int { return a.due.Compare(b.due) })
		batch = append(batch, due...)
		l.delayed = waiting
	}
	return batch
}

// claim marks a task as running unless it was cancelled in the meantime.
func (l *Loop) claim(t *Task) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.cancelled || t.done {
		return false
	}
	t.done = true
	return true
}

// RunPending runs one tick: every task queued before the call and every
// delayed task that is due. Tasks posted while the tick runs wait for the
// next tick. It returns the number of tasks executed.
func (l *Loop) RunPending() int {
	ran := 0
	for _, t := range l.take() {
		if !l.claim(t) {
			continue
		}
		t.fn()
		ran++
	}
	return ran
}

// Drain runs ticks until no ready task remains or maxTicks ticks have run.
// A maxTicks of zero or less means no limit. Delayed tasks that are not yet
// due are left in place.
func (l *Loop) Drain(maxTicks int) int {
	ran := 0
	for tick := 0; maxTicks <= 0 || tick < maxTicks; tick++ {
		if !l.hasReady() {
			break
		}
		ran += l.RunPending()
	}
	return ran
}

// Ready reports whether a task is runnable now.
func (l *Loop) Ready() bool { return l.hasReady() }

func (l *Loop) hasReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.ready {
		if !t.cancelled {
			return true
		}
	}
	now := l.clock.Now()
	for _, t := range l.delayed {
		if !t.cancelled && !t.due.After(now) {
			return true
		}
	}
	return false
}

// nextDeadline returns the wait until the earliest delayed task, or false
// when there is none.
func (l *Loop) nextDeadline() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var earliest time.Time
	found := false
	for _, t := range l.delayed {
		if t.cancelled {
			continue
		}
		if !found || t.due.Before(earliest) {
			earliest = t.due
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return max(earliest.Sub(l.clock.Now()), 0), true
}

// Run drives the loop until ctx is done, sleeping while there is nothing to
// do. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	for {
		for l.hasReady() {
			if err := ctx.Err(); err != nil {
				return err
			}
			l.RunPending()
		}

		var timer *time.Timer
		var fire <-chan time.Time
		if wait, ok := l.nextDeadline(); ok {
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-l.wake:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Default is the loop used by bindings that are not given one.
var Default = New()
