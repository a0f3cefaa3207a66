package core

import (
	"context"

	"github.com/go-drift/renderloop/pkg/store"
)

// Widget is an opaque widget definition produced by a Tree. The render
// loop never inspects it; it only hands it back to the tree.
type Widget any

// Instance is a stateful node bound to one widget definition and one store
// scope. The render loop drives it through the four render phases.
type Instance interface {
	// Explore walks the instance for the current pass and reports whether it
	// is visible. It may mutate the store, which marks the pass dirty.
	Explore(ctx *Context) bool
	// Prepare performs side-effecting setup once exploration is stable.
	Prepare(ctx *Context)
	// Render produces the displayable output from prepared state.
	Render(ctx *Context) any
	// Cleanup releases per-pass resources after the host commit.
	Cleanup(ctx *Context)
	// Destroy tears the instance down. Called at most once by the loop.
	Destroy()
	// DestroyTracked reports whether the binding owns the instance and must
	// destroy it when it is replaced or unmounted.
	DestroyTracked() bool
	// Widget returns the widget definition the instance is bound to.
	Widget() Widget
	// Store returns the store scope the instance reads from.
	Store() store.Store
}

// Parent resolves child instances. A binding without an explicit instance
// asks its parent for the child bound to its widget on every render.
type Parent interface {
	// GetChild returns the instance for widget under key, creating it when
	// needed.
	GetChild(ctx context.Context, widget Widget, key any, s store.Store) Instance
	// Store returns the store scope inherited by children.
	Store() store.Store
}

// Tree constructs widgets and root parents.
type Tree interface {
	// Create turns a widget spec into a widget definition.
	Create(spec any) (Widget, error)
	// NewRoot returns a parent instance for a top-level widget.
	NewRoot(widget Widget) Parent
}

// ContentHolder is implemented by render results that wrap their
// displayable content.
type ContentHolder interface {
	Content() any
}

// ContentOf extracts the displayable content from a render result.
func ContentOf(result any) any {
	if holder, ok := result.(ContentHolder); ok {
		return holder.Content()
	}
	return result
}
