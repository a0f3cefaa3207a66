package testing

import (
	"context"
	"fmt"

	"github.com/go-drift/renderloop/pkg/core"
	"github.com/go-drift/renderloop/pkg/store"
)

// EventLog collects phase calls across instances in call order.
type EventLog struct {
	events []string
}

// Add appends an event.
func (l *EventLog) Add(event string) {
	if l != nil {
		l.events = append(l.events, event)
	}
}

// Events returns a copy of the recorded events.
func (l *EventLog) Events() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.events...)
}

// Reset drops every event.
func (l *EventLog) Reset() {
	if l != nil {
		l.events = nil
	}
}

// Instance is a core.Instance that records every phase call. Hooks are
// optional; without them the instance is visible and renders its name.
type Instance struct {
	Name    string
	Tracked bool

	StoreScope store.Store
	Def        core.Widget
	Log        *EventLog

	ExploreFn func(ctx *core.Context) bool
	PrepareFn func(ctx *core.Context)
	RenderFn  func(ctx *core.Context) any
	CleanupFn func(ctx *core.Context)

	Explores int
	Prepares int
	Renders  int
	Cleanups int
	Destroys int

	// Contexts holds the context passed to each Cleanup call.
	Contexts []*core.Context
	// Snapshots holds ctx.Data() for each Prepare call.
	Snapshots []any
}

// NewInstance creates a visible instance that renders its name.
func NewInstance(name string) *Instance {
	return &Instance{Name: name}
}

func (i *Instance) record(phase string) {
	i.Log.Add(i.Name + "." + phase)
}

// Explore implements core.Instance.
func (i *Instance) Explore(ctx *core.Context) bool {
	i.Explores++
	i.record("explore")
	if i.ExploreFn != nil {
		return i.ExploreFn(ctx)
	}
	return true
}

// Prepare implements core.Instance.
func (i *Instance) Prepare(ctx *core.Context) {
	i.Prepares++
	i.Snapshots = append(i.Snapshots, ctx.Data())
	i.record("prepare")
	if i.PrepareFn != nil {
		i.PrepareFn(ctx)
	}
}

// Render implements core.Instance.
func (i *Instance) Render(ctx *core.Context) any {
	i.Renders++
	i.record("render")
	if i.RenderFn != nil {
		return i.RenderFn(ctx)
	}
	return i.Name
}

// Cleanup implements core.Instance.
func (i *Instance) Cleanup(ctx *core.Context) {
	i.Cleanups++
	i.Contexts = append(i.Contexts, ctx)
	i.record("cleanup")
	if i.CleanupFn != nil {
		i.CleanupFn(ctx)
	}
}

// Destroy implements core.Instance.
func (i *Instance) Destroy() {
	i.Destroys++
	i.record("destroy")
}

// DestroyTracked implements core.Instance.
func (i *Instance) DestroyTracked() bool { return i.Tracked }

// Widget implements core.Instance.
func (i *Instance) Widget() core.Widget { return i.Def }

// Store implements core.Instance.
func (i *Instance) Store() store.Store { return i.StoreScope }

// LastSnapshot returns the data seen by the most recent Prepare.
func (i *Instance) LastSnapshot() any {
	if len(i.Snapshots) == 0 {
		return nil
	}
	return i.Snapshots[len(i.Snapshots)-1]
}

func (i *Instance) String() string {
	return fmt.Sprintf("Instance(%s)", i.Name)
}

// Tree is a core.Tree whose root parents hand out instances built by
// Factory, cached per widget and key.
type Tree struct {
	// Factory builds the instance for a widget. Defaults to NewInstance with
	// the widget formatted as its name.
	Factory func(widget core.Widget, s store.Store) core.Instance
	// CreateErr, when set, is returned by Create.
	CreateErr error

	Created  int
	Children int
}

// Create implements core.Tree. A nil spec is rejected.
func (t *Tree) Create(spec any) (core.Widget, error) {
	if t.CreateErr != nil {
		return nil, t.CreateErr
	}
	if spec == nil {
		return nil, fmt.Errorf("cannot create widget from nil spec")
	}
	t.Created++
	return spec, nil
}

// NewRoot implements core.Tree.
func (t *Tree) NewRoot(widget core.Widget) core.Parent {
	return &Parent{tree: t, widget: widget, children: make(map[childKey]core.Instance)}
}

type childKey struct {
	widget core.Widget
	key    any
}

// Parent is the root parent created by Tree.
type Parent struct {
	tree     *Tree
	widget   core.Widget
	scope    store.Store
	children map[childKey]core.Instance
}

// GetChild implements core.Parent.
func (p *Parent) GetChild(_ context.Context, widget core.Widget, key any, s store.Store) core.Instance {
	k := childKey{widget: widget, key: key}
	if inst, ok := p.children[k]; ok {
		return inst
	}
	var inst core.Instance
	if p.tree.Factory != nil {
		inst = p.tree.Factory(widget, s)
	} else {
		inst = &Instance{Name: fmt.Sprint(widget), StoreScope: s, Def: widget}
	}
	p.tree.Children++
	p.children[k] = inst
	return inst
}

// Store implements core.Parent.
func (p *Parent) Store() store.Store { return p.scope }

// SetStore sets the scope returned by Store.
func (p *Parent) SetStore(s store.Store) { p.scope = s }

// Replace drops the cached child for widget so the next GetChild builds a
// new instance.
func (p *Parent) Replace(widget core.Widget, key any) {
	delete(p.children, childKey{widget: widget, key: key})
}
