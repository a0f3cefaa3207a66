// Package mount binds a store and an instance tree to a host renderer and
// schedules render passes when the store changes.
//
// A Binding commits in one of three ways when its store notifies it:
//
//   - while its own pass is preparing, the notification only marks the pass
//     dirty so the explore loop re-runs;
//   - inside a batch scope, or in immediate mode, it commits synchronously;
//   - otherwise it posts one task to its loop and every further notification
//     before that task runs is folded into it.
//
// Bindings live on their loop's goroutine. Update, Rerender and Unmount
// must be called from it.
package mount

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-drift/renderloop/pkg/batch"
	"github.com/go-drift/renderloop/pkg/core"
	"github.com/go-drift/renderloop/pkg/errors"
	"github.com/go-drift/renderloop/pkg/logging"
	"github.com/go-drift/renderloop/pkg/loop"
	"github.com/go-drift/renderloop/pkg/pipeline"
	"github.com/go-drift/renderloop/pkg/store"
	"github.com/go-drift/renderloop/pkg/timing"
)

// MaxNestedUpdates bounds synchronous commits triggered from inside other
// commits. Deeper updates are dropped and reported.
const MaxNestedUpdates = 50

var forceImmediate atomic.Bool

// SetForceImmediate makes every binding commit synchronously, as if it had
// been mounted with Immediate. Returns the previous value.
func SetForceImmediate(on bool) bool {
	return forceImmediate.Swap(on)
}

// ForceImmediate reports whether immediate commits are forced.
func ForceImmediate() bool {
	return forceImmediate.Load()
}

// Binding is a mounted root: one store, one top-level instance, one host.
type Binding struct {
	id      uuid.UUID
	props   Props
	hostCtx context.Context
	host    Host

	widget core.Widget
	store  store.Store
	parent core.Parent

	loop        *loop.Loop
	coordinator *batch.Coordinator
	baseLog     zerolog.Logger
	log         zerolog.Logger

	flags       pipeline.Flags
	pipe        *pipeline.Pipeline
	pending     *loop.Task
	unsubscribe func()
	data        any
	renderCount int

	mounted        bool
	inPass         bool
	rerun          bool
	destroyPending bool
	nested         int
}

// Mount validates props, subscribes to the store when asked to and runs the
// first pass synchronously. It fails with a KindConfiguration error when no
// store or widget can be resolved.
func Mount(ctx context.Context, props Props, host Host, opts ...Option) (*Binding, error) {
	cfg := settings{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.loop == nil {
		cfg.loop = loop.Default
	}
	if cfg.coordinator == nil {
		cfg.coordinator = batch.Default
	}
	if cfg.probe == nil {
		cfg.probe = timing.Default
	}
	if host == nil {
		host = nopHost{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	b := &Binding{
		id:          uuid.New(),
		props:       props,
		hostCtx:     ctx,
		host:        host,
		loop:        cfg.loop,
		coordinator: cfg.coordinator,
	}

	b.baseLog = logging.Logger()
	if cfg.logger != nil {
		b.baseLog = *cfg.logger
	}
	b.setLogger()

	if err := b.resolve(cfg.tree); err != nil {
		return nil, &errors.DriftError{
			Op:      "mount.Mount",
			Kind:    errors.KindConfiguration,
			Binding: b.Name(),
			Err:     err,
		}
	}

	b.pipe = pipeline.New(&b.flags, pipeline.WithProbe(cfg.probe), pipeline.WithLogger(b.log))
	b.mounted = true

	if props.Subscribe {
		b.unsubscribe = b.store.Subscribe(b.Update)
	}

	b.data = b.store.GetData()
	b.render()
	b.didUpdate()

	if props.Options.OnPipeUpdate != nil {
		props.Options.OnPipeUpdate(b.Update)
	}
	b.log.Debug().Msg("mounted")
	return b, nil
}

// resolve fills widget, parent and store from props.
func (b *Binding) resolve(tree core.Tree) error {
	props := b.props
	if props.Instance != nil {
		b.widget = props.Instance.Widget()
		b.store = props.Instance.Store()
		if b.store == nil {
			b.store = props.Store
		}
	} else {
		if props.Widget == nil {
			return &errors.ConfigurationError{Reason: "neither instance nor widget given", Err: errors.ErrNoWidget}
		}
		if tree == nil {
			return &errors.ConfigurationError{Reason: "widget given without a tree", Err: errors.ErrNoWidget}
		}
		widget, err := tree.Create(props.Widget)
		if err != nil {
			return &errors.ConfigurationError{Reason: "widget creation failed", Err: err}
		}
		b.widget = widget
		if props.Parent != nil {
			b.parent = props.Parent
			b.store = props.Store
			if b.store == nil {
				b.store = props.Parent.Store()
			}
		} else {
			b.parent = tree.NewRoot(widget)
			b.store = props.Store
		}
	}
	if b.store == nil {
		return &errors.ConfigurationError{Reason: "no store resolvable", Err: errors.ErrNoStore}
	}
	return nil
}

// ID returns the binding id.
func (b *Binding) ID() uuid.UUID { return b.id }

// Name returns the diagnostic name.
func (b *Binding) Name() string { return b.props.Options.contextOptions().DisplayName() }

// Flags returns a copy of the current render flags.
func (b *Binding) Flags() pipeline.Flags { return b.flags }

// RenderCount returns how many passes the binding has started.
func (b *Binding) RenderCount() int { return b.renderCount }

// Passes returns how many passes completed cleanup.
func (b *Binding) Passes() int { return b.pipe.Passes() }

// Pending reports whether a deferred commit is waiting on the loop.
func (b *Binding) Pending() bool { return b.pending != nil }

// Mounted reports whether Unmount has not been called yet.
func (b *Binding) Mounted() bool { return b.mounted }

// Content returns the content of the last pass.
func (b *Binding) Content() any { return b.pipe.Content() }

// Instance returns the currently bound instance.
func (b *Binding) Instance() core.Instance { return b.pipe.Instance() }

// Store returns the bound store.
func (b *Binding) Store() store.Store { return b.store }

// Data returns the snapshot the last pass was committed with.
func (b *Binding) Data() any { return b.data }

// Update is the store notification handler. See the package documentation
// for how it decides between marking dirty, committing and deferring.
func (b *Binding) Update() {
	if !b.mounted {
		return
	}
	data := b.store.GetData()
	if timing.Enabled(timing.AppData) {
		b.log.Debug().Interface("data", data).Msg("store data")
	}

	if b.flags.MarkDirty() {
		return
	}
	if b.inPass {
		// Rendering or cleaning up: run again once this pass is done.
		b.rerun = true
		return
	}

	if b.coordinator.IsActive() || b.props.Immediate || ForceImmediate() {
		b.coordinator.Starting()
		b.commit(data, b.coordinator.Completed)
		return
	}

	if b.pending != nil {
		return
	}
	b.coordinator.Starting()
	b.pending = b.loop.Post(func() {
		b.pending = nil
		b.commit(b.store.GetData(), b.coordinator.Completed)
	})
}

// commit applies a snapshot as the binding's new state: it renders, runs
// the post-commit dirty check and then calls done.
func (b *Binding) commit(data any, done func()) {
	defer done()
	if !b.mounted {
		return
	}
	if b.nested >= MaxNestedUpdates {
		errors.Report(&errors.DriftError{
			Op:      "mount.commit",
			Kind:    errors.KindDivergence,
			Binding: b.Name(),
			Err:     &errors.DivergenceError{Name: b.Name(), Attempts: b.nested, Nested: true},
		})
		return
	}
	b.nested++
	defer func() { b.nested-- }()

	b.data = data
	b.render()
	b.didUpdate()
}

// render resolves the top-level instance and runs one pass through the
// pipeline, committing its content to the host.
func (b *Binding) render() {
	instance := b.props.Instance
	if instance == nil {
		instance = b.parent.GetChild(b.hostCtx, b.widget, b.props.Key, b.store)
	}
	if instance == nil {
		b.log.Warn().Msg("parent returned no instance, skipping pass")
		return
	}

	b.renderCount++
	b.inPass = true
	b.pipe.Run(instance, b.props.Options.contextOptions(), b.data, b.host.Commit)
	b.inPass = false

	if b.destroyPending {
		b.destroyPending = false
		b.pipe.Destroy()
	}
}

// didUpdate re-triggers Update when the finished pass left work behind.
func (b *Binding) didUpdate() {
	if !b.mounted {
		return
	}
	if b.flags.Dirty || b.rerun {
		b.rerun = false
		b.Update()
	}
}

// Rerender is the host update step: it applies the mutable part of props
// (Instance, Key, Immediate, Options) and runs a pass synchronously. Widget,
// Parent, Store and Subscribe are fixed at mount.
func (b *Binding) Rerender(props Props) error {
	if !b.mounted {
		return &errors.DriftError{Op: "mount.Rerender", Kind: errors.KindContract, Binding: b.Name(), Err: errors.ErrUnmounted}
	}
	if props.Instance != nil {
		b.props.Instance = props.Instance
	}
	b.props.Key = props.Key
	b.props.Immediate = props.Immediate
	onPipeUpdate := b.props.Options.OnPipeUpdate
	prevName := b.Name()
	b.props.Options = props.Options
	b.props.Options.OnPipeUpdate = onPipeUpdate
	if b.Name() != prevName {
		b.setLogger()
		b.pipe.SetLogger(b.log)
		b.log.Debug().Str("previous", prevName).Msg("renamed")
	}

	if b.inPass || b.flags.Preparing {
		b.rerun = true
		return nil
	}
	b.data = b.store.GetData()
	b.render()
	b.didUpdate()
	return nil
}

// Unmount cancels any deferred commit, unsubscribes from the store and
// destroys the bound instance if it is destroy-tracked. When called from
// inside a pass, the instance is destroyed once the pass completes.
func (b *Binding) Unmount() {
	if !b.mounted {
		return
	}
	b.mounted = false

	if b.pending != nil {
		if b.pending.Cancel() {
			b.coordinator.Completed()
		}
		b.pending = nil
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	if b.props.Options.OnPipeUpdate != nil {
		b.props.Options.OnPipeUpdate(nil)
	}

	if b.inPass || b.flags.Preparing {
		b.destroyPending = true
	} else {
		b.pipe.Destroy()
	}
	b.log.Debug().Int("passes", b.pipe.Passes()).Msg("unmounted")
}

// setLogger derives the binding logger from the base logger and the
// current display name.
func (b *Binding) setLogger() {
	b.log = b.baseLog.With().
		Str("binding", b.id.String()).
		Str("name", b.Name()).
		Logger()
}

func (b *Binding) String() string {
	return fmt.Sprintf("Binding(%s, %s)", b.Name(), b.id)
}
