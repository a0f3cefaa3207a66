// Package timing records per-pass phase durations for diagnostics.
//
// Timing is off unless a reporting flag is enabled, and is compiled out
// entirely with the "production" build tag. When disabled, Begin returns a
// nil *Record and every mark is a no-op that never reads the clock.
package timing

import (
	"sync/atomic"
	"time"
)

// Flag selects a diagnostic report.
type Flag uint32

const (
	// AppLoop enables the per-phase breakdown report.
	AppLoop Flag = 1 << iota
	// HostRender enables the core versus host overhead report.
	HostRender
	// AppData enables debug logging of the data snapshot on every update.
	AppData
)

var enabled atomic.Uint32

// Enable turns the given flags on.
func Enable(flags Flag) {
	for {
		old := enabled.Load()
		if enabled.CompareAndSwap(old, old|uint32(flags)) {
			return
		}
	}
}

// Disable turns the given flags off.
func Disable(flags Flag) {
	for {
		old := enabled.Load()
		if enabled.CompareAndSwap(old, old&^uint32(flags)) {
			return
		}
	}
}

// Enabled reports whether every flag in flags is on. Always false in
// production builds.
func Enabled(flags Flag) bool {
	if !Compiled {
		return false
	}
	return enabled.Load()&uint32(flags) == uint32(flags)
}

func reporting() bool {
	return Enabled(AppLoop) || Enabled(HostRender)
}

// Clock provides time for timing records.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type clockHolder struct{ c Clock }

var clock atomic.Value // stores clockHolder

func init() {
	clock.Store(clockHolder{c: realClock{}})
}

// SetClock replaces the timing clock. Returns the previous clock so callers
// can restore it during cleanup.
func SetClock(c Clock) Clock {
	if c == nil {
		c = realClock{}
	}
	prev := clock.Swap(clockHolder{c: c})
	return prev.(clockHolder).c
}

func now() time.Time {
	return clock.Load().(clockHolder).c.Now()
}

// Record holds monotonic timestamps for one render pass.
type Record struct {
	Start        time.Time
	AfterExplore time.Time
	AfterPrepare time.Time
	AfterRender  time.Time
	BeforeCommit time.Time
	AfterCommit  time.Time
	AfterCleanup time.Time
}

// MarkExplored stamps the end of the explore loop.
func (r *Record) MarkExplored() {
	if r != nil {
		r.AfterExplore = now()
	}
}

// MarkPrepared stamps the end of the prepare phase.
func (r *Record) MarkPrepared() {
	if r != nil {
		r.AfterPrepare = now()
	}
}

// MarkRendered stamps the end of the render phase.
func (r *Record) MarkRendered() {
	if r != nil {
		r.AfterRender = now()
	}
}

// MarkSkipped stamps explore, prepare and render together for a pass that
// was not visible.
func (r *Record) MarkSkipped() {
	if r != nil {
		t := now()
		r.AfterExplore, r.AfterPrepare, r.AfterRender = t, t, t
	}
}

// MarkBeforeCommit stamps the hand-off to the host renderer.
func (r *Record) MarkBeforeCommit() {
	if r != nil {
		r.BeforeCommit = now()
	}
}

// MarkAfterCommit stamps the return from the host renderer.
func (r *Record) MarkAfterCommit() {
	if r != nil {
		r.AfterCommit = now()
	}
}

// MarkCleaned stamps the end of the cleanup phase.
func (r *Record) MarkCleaned() {
	if r != nil {
		r.AfterCleanup = now()
	}
}
