package core

// Options configures rendering contexts for one binding.
type Options struct {
	// Name is a diagnostic label. Empty means "main".
	Name string
	// Values are copied into every context created with these options.
	Values map[string]any
}

// DisplayName returns Name, or "main" when it is empty.
func (o Options) DisplayName() string {
	if o.Name == "" {
		return "main"
	}
	return o.Name
}

// Context is the per-attempt rendering context. The pipeline creates a
// fresh one for each explore attempt and keeps the last one until cleanup.
//
// Context is NOT thread-safe; it lives on the loop goroutine.
type Context struct {
	options  Options
	data     any
	pass     int
	attempt  int
	values   map[any]any
	cleanups []func()
	released bool
}

// NewContext creates a context for the given pass and explore attempt.
func NewContext(options Options, data any, pass, attempt int) *Context {
	ctx := &Context{
		options: options,
		data:    data,
		pass:    pass,
		attempt: attempt,
	}
	if len(options.Values) > 0 {
		ctx.values = make(map[any]any, len(options.Values))
		for k, v := range options.Values {
			ctx.values[k] = v
		}
	}
	return ctx
}

// Options returns the options the context was created with.
func (c *Context) Options() Options { return c.options }

// Data returns the store snapshot the pass was committed with.
func (c *Context) Data() any { return c.data }

// Pass returns the pass counter of the owning binding.
func (c *Context) Pass() int { return c.pass }

// Attempt returns the zero-based explore attempt this context belongs to.
func (c *Context) Attempt() int { return c.attempt }

// Set stores a value scoped to this context.
func (c *Context) Set(key, value any) {
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = value
}

// Get returns a value stored with Set or seeded from Options.Values.
func (c *Context) Get(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// OnCleanup registers fn to run when the context is released. Callbacks
// run in reverse registration order. Registering on a released context
// runs fn immediately.
func (c *Context) OnCleanup(fn func()) {
	if fn == nil {
		return
	}
	if c.released {
		fn()
		return
	}
	c.cleanups = append(c.cleanups, fn)
}

// Release runs registered cleanups once.
func (c *Context) Release() {
	if c.released {
		return
	}
	c.released = true
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
	c.cleanups = nil
}

// Released reports whether Release has run.
func (c *Context) Released() bool { return c.released }
