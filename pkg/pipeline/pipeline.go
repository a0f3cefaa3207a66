// Package pipeline runs render passes against an instance tree.
//
// A pass executes four ordered phases: explore, prepare, render and
// cleanup. Explore may dirty the pass it belongs to, in which case it is
// re-run with a fresh context up to MaxExploreRetries times before the pass
// proceeds with whatever the last attempt produced.
//
// Phase panics are not recovered. A panicking phase leaves the flags in
// their last-set state and the binding must be remounted by its host.
package pipeline

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/go-drift/renderloop/pkg/core"
	"github.com/go-drift/renderloop/pkg/errors"
	"github.com/go-drift/renderloop/pkg/logging"
	"github.com/go-drift/renderloop/pkg/timing"
)

// MaxExploreRetries bounds how often explore is repeated after the initial
// attempt dirtied the pass.
const MaxExploreRetries = 3

var optimizePrepare atomic.Bool

func init() {
	optimizePrepare.Store(true)
}

// OptimizePrepare reports whether dirty explore attempts are retried. The
// toggle is process-wide and applies to every binding.
func OptimizePrepare() bool {
	return optimizePrepare.Load()
}

// SetOptimizePrepare sets the process-wide retry toggle and returns the
// previous value.
func SetOptimizePrepare(on bool) bool {
	return optimizePrepare.Swap(on)
}

// Flags is the render state shared between a binding's scheduler and its
// pipeline. Dirty is only meaningful while Preparing is set.
type Flags struct {
	Preparing bool
	Dirty     bool
	Rendering bool
}

// MarkDirty sets Dirty if a pass is preparing and reports whether it did.
func (f *Flags) MarkDirty() bool {
	if !f.Preparing {
		return false
	}
	f.Dirty = true
	return true
}

// Idle reports whether no pass is in flight.
func (f *Flags) Idle() bool {
	return !f.Preparing && !f.Rendering
}

// Pipeline executes passes for one binding. It remembers the bound instance
// across passes so that replacing it tears the old one down first.
//
// Pipeline is NOT thread-safe; it runs on the loop goroutine.
type Pipeline struct {
	flags *Flags
	probe *timing.Probe
	log   zerolog.Logger

	instance core.Instance
	name     string

	// current pass, alive between Prepare and Finish
	context *core.Context
	record  *timing.Record

	content   any
	visible   bool
	attempts  int
	diverged  bool
	passes    int
	destroyed bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProbe sets the timing probe. Defaults to timing.Default.
func WithProbe(p *timing.Probe) Option {
	return func(pl *Pipeline) {
		if p != nil {
			pl.probe = p
		}
	}
}

// WithLogger sets the logger used for pass diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(pl *Pipeline) {
		pl.log = l
	}
}

// New creates a pipeline that shares flags with its binding.
func New(flags *Flags, opts ...Option) *Pipeline {
	if flags == nil {
		flags = &Flags{}
	}
	p := &Pipeline{
		flags: flags,
		probe: timing.Default,
		log:   logging.Component("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetLogger replaces the logger used for pass diagnostics.
func (p *Pipeline) SetLogger(l zerolog.Logger) { p.log = l }

// Flags returns the shared flags.
func (p *Pipeline) Flags() *Flags { return p.flags }

// Instance returns the currently bound instance.
func (p *Pipeline) Instance() core.Instance { return p.instance }

// Content returns the content produced by the last prepared pass.
func (p *Pipeline) Content() any { return p.content }

// Visible reports whether the last prepared pass was visible.
func (p *Pipeline) Visible() bool { return p.visible }

// Attempts returns the number of explore attempts of the last pass.
func (p *Pipeline) Attempts() int { return p.attempts }

// Diverged reports whether the last pass hit the retry cap while dirty.
func (p *Pipeline) Diverged() bool { return p.diverged }

// Passes returns the number of completed passes.
func (p *Pipeline) Passes() int { return p.passes }

// InFlight reports whether a pass has been prepared but not finished.
func (p *Pipeline) InFlight() bool { return p.context != nil }

// Prepare binds instance and runs explore, prepare and render. The returned
// content is what the host should commit; it is nil for an invisible pass.
// Finish must be called once the host has applied it.
func (p *Pipeline) Prepare(instance core.Instance, options core.Options, data any) any {
	p.record = p.probe.Begin()
	p.name = options.DisplayName()

	if p.instance != nil && p.instance != instance && p.instance.DestroyTracked() {
		p.log.Debug().Str("name", p.name).Msg("destroying replaced instance")
		p.instance.Destroy()
	}
	p.instance = instance

	p.flags.Preparing = true

	pass := p.passes + 1
	var ctx *core.Context
	visible := false
	p.diverged = false
	attempt := 0
	for ; ; attempt++ {
		if ctx != nil {
			ctx.Release()
		}
		ctx = core.NewContext(options, data, pass, attempt)
		p.flags.Dirty = false
		visible = instance.Explore(ctx)
		if !visible || !p.flags.Dirty {
			break
		}
		if attempt >= MaxExploreRetries {
			p.diverged = true
			break
		}
		if !OptimizePrepare() {
			break
		}
		p.log.Debug().Str("name", p.name).Int("attempt", attempt+1).Msg("explore dirtied itself, retrying")
	}
	p.attempts = attempt + 1

	if p.diverged {
		errors.Report(&errors.DriftError{
			Op:      "pipeline.Prepare",
			Kind:    errors.KindDivergence,
			Binding: p.name,
			Err:     &errors.DivergenceError{Name: p.name, Attempts: p.attempts},
		})
	}

	var content any
	if visible {
		p.record.MarkExplored()
		instance.Prepare(ctx)
		p.record.MarkPrepared()
		content = core.ContentOf(instance.Render(ctx))
		p.record.MarkRendered()
	} else {
		p.record.MarkSkipped()
	}

	p.record.MarkBeforeCommit()
	p.flags.Preparing = false
	p.flags.Rendering = true

	p.context = ctx
	p.content = content
	p.visible = visible
	return content
}

// Finish runs the post-commit phase: it clears Rendering and calls Cleanup
// with the context kept by Prepare, visible or not. It does nothing when no
// pass is in flight.
func (p *Pipeline) Finish() {
	if p.context == nil {
		return
	}
	p.record.MarkAfterCommit()
	p.flags.Rendering = false

	ctx := p.context
	p.context = nil
	p.instance.Cleanup(ctx)
	ctx.Release()

	p.record.MarkCleaned()
	p.passes++
	p.probe.Emit(p.name, p.passes, p.record)
	p.record = nil
}

// Run executes a whole pass, handing the content to commit between the
// render and cleanup phases.
func (p *Pipeline) Run(instance core.Instance, options core.Options, data any, commit func(content any)) any {
	content := p.Prepare(instance, options, data)
	if commit != nil {
		commit(content)
	}
	p.Finish()
	return content
}

// Destroy tears down the bound instance if it is destroy-tracked. It runs
// at most once.
func (p *Pipeline) Destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	if p.instance != nil && p.instance.DestroyTracked() {
		p.instance.Destroy()
	}
}

// Destroyed reports whether Destroy has run.
func (p *Pipeline) Destroyed() bool { return p.destroyed }
