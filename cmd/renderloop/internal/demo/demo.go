// Package demo provides the widget tree driven by the simulate command.
package demo

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-drift/renderloop/pkg/core"
	"github.com/go-drift/renderloop/pkg/store"
)

// Panel is the widget spec accepted by Tree.Create.
type Panel struct {
	Title string
	// Keys are the store keys the panel displays.
	Keys []string
	// HideWhen hides the panel while this boolean store key is true.
	HideWhen string
	// FailWhen makes Prepare panic while this boolean store key is true.
	FailWhen string
}

// Tree builds panels and hands out one instance per widget and key.
type Tree struct {
	// Destroyed counts instances torn down through the tree.
	Destroyed int
}

// Create implements core.Tree.
func (t *Tree) Create(spec any) (core.Widget, error) {
	switch s := spec.(type) {
	case Panel:
		if s.Title == "" {
			return nil, fmt.Errorf("panel requires a title")
		}
		return &s, nil
	case *Panel:
		if s == nil || s.Title == "" {
			return nil, fmt.Errorf("panel requires a title")
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported widget spec %T", spec)
	}
}

// NewRoot implements core.Tree.
func (t *Tree) NewRoot(widget core.Widget) core.Parent {
	return &root{tree: t, children: make(map[any]*Instance)}
}

type root struct {
	tree     *Tree
	children map[any]*Instance
}

func (r *root) GetChild(_ context.Context, widget core.Widget, key any, s store.Store) core.Instance {
	if inst, ok := r.children[key]; ok && inst.panel == widget {
		return inst
	}
	inst := &Instance{tree: r.tree, panel: widget.(*Panel), scope: s}
	r.children[key] = inst
	return inst
}

func (r *root) Store() store.Store { return nil }

// Instance renders a panel as a single line of text.
type Instance struct {
	tree  *Tree
	panel *Panel
	scope store.Store

	line string
}

// Explore implements core.Instance.
func (i *Instance) Explore(ctx *core.Context) bool {
	if i.panel.HideWhen == "" {
		return true
	}
	data, _ := ctx.Data().(store.Data)
	hidden, _ := data[i.panel.HideWhen].(bool)
	return !hidden
}

// Prepare implements core.Instance.
func (i *Instance) Prepare(ctx *core.Context) {
	data, _ := ctx.Data().(store.Data)
	if failing, _ := data[i.panel.FailWhen].(bool); failing {
		panic(fmt.Sprintf("panel %q cannot prepare", i.panel.Title))
	}
	parts := make([]string, 0, len(i.panel.Keys))
	for _, k := range i.panel.Keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	i.line = strings.Join(parts, " ")
}

// Render implements core.Instance.
func (i *Instance) Render(*core.Context) any {
	return i.panel.Title + ": " + i.line
}

// Cleanup implements core.Instance.
func (i *Instance) Cleanup(*core.Context) { i.line = "" }

// Destroy implements core.Instance.
func (i *Instance) Destroy() { i.tree.Destroyed++ }

// DestroyTracked implements core.Instance. Panels are owned by their root.
func (i *Instance) DestroyTracked() bool { return true }

// Widget implements core.Instance.
func (i *Instance) Widget() core.Widget { return i.panel }

// Store implements core.Instance.
func (i *Instance) Store() store.Store { return i.scope }
