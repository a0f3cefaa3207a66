// Package testbed provides internal test instances for the testing framework.
package testbed

import (
	"fmt"

	"github.com/go-drift/renderloop/pkg/core"
	"github.com/go-drift/renderloop/pkg/store"
)

// Counter renders the "count" key of its store as "count=N". It is hidden
// while the "hidden" key is true.
type Counter struct {
	Scope *store.Memory

	Renders  int
	Cleanups int
}

// Explore implements core.Instance.
func (c *Counter) Explore(ctx *core.Context) bool {
	data, _ := ctx.Data().(store.Data)
	hidden, _ := data["hidden"].(bool)
	return !hidden
}

// Prepare implements core.Instance.
func (c *Counter) Prepare(*core.Context) {}

// Render implements core.Instance.
func (c *Counter) Render(ctx *core.Context) any {
	c.Renders++
	data, _ := ctx.Data().(store.Data)
	return fmt.Sprintf("count=%v", data["count"])
}

// Cleanup implements core.Instance.
func (c *Counter) Cleanup(*core.Context) { c.Cleanups++ }

// Destroy implements core.Instance.
func (c *Counter) Destroy() {}

// DestroyTracked implements core.Instance.
func (c *Counter) DestroyTracked() bool { return false }

// Widget implements core.Instance.
func (c *Counter) Widget() core.Widget { return "counter" }

// Store implements core.Instance.
func (c *Counter) Store() store.Store { return c.Scope }

// Echo increments the "echo" key of its store during explore until it
// reaches Target.
// Each write re-enters the binding while the pass is preparing.
type Echo struct {
	Counter
	Target int
}

// Explore implements core.Instance.
func (e *Echo) Explore(*core.Context) bool {
	v, _ := e.Scope.Get("echo")
	n, _ := v.(int)
	if n < e.Target {
		e.Scope.Set("echo", n+1)
	}
	return true
}
