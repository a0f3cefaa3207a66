package mount

import (
	"github.com/rs/zerolog"

	"github.com/go-drift/renderloop/pkg/batch"
	"github.com/go-drift/renderloop/pkg/core"
	"github.com/go-drift/renderloop/pkg/loop"
	"github.com/go-drift/renderloop/pkg/store"
	"github.com/go-drift/renderloop/pkg/timing"
)

// Host receives the content of each committed pass. It is the external
// tree renderer; Commit must apply content before returning.
type Host interface {
	Commit(content any)
}

// HostFunc adapts a function to Host.
type HostFunc func(content any)

// Commit calls f(content).
func (f HostFunc) Commit(content any) { f(content) }

type nopHost struct{}

func (nopHost) Commit(any) {}

// Options are the per-binding rendering options.
type Options struct {
	// Name is a diagnostic label used in logs and timing reports.
	Name string
	// OnPipeUpdate, when set, receives the binding's update function after
	// mount, and nil at unmount, so an external driver can trigger updates.
	OnPipeUpdate func(update func())
	// Values seed every rendering context.
	Values map[string]any
}

func (o Options) contextOptions() core.Options {
	return core.Options{Name: o.Name, Values: o.Values}
}

// Props configures a root binding.
//
// Either Instance is set, in which case the widget and store come from it,
// or Widget is set and the instance is resolved on every render through
// Parent (or a root parent created by the Tree).
type Props struct {
	// Widget is the widget spec handed to Tree.Create.
	Widget any
	// Key is passed to Parent.GetChild.
	Key any
	// Instance is a pre-built top-level instance.
	Instance core.Instance
	// Parent resolves the top-level instance when Instance is nil.
	Parent core.Parent
	// Store is the data store. Defaults to the parent or instance store.
	Store store.Store
	// Subscribe connects Update to the store.
	Subscribe bool
	// Immediate commits every update synchronously instead of coalescing.
	Immediate bool
	// Options are the rendering options.
	Options Options
}

// Option configures the collaborators of a binding.
type Option func(*settings)

type settings struct {
	loop        *loop.Loop
	coordinator *batch.Coordinator
	tree        core.Tree
	logger      *zerolog.Logger
	probe       *timing.Probe
}

// WithLoop sets the loop deferred updates are posted to. Defaults to
// loop.Default.
func WithLoop(l *loop.Loop) Option {
	return func(s *settings) { s.loop = l }
}

// WithCoordinator sets the batching coordinator. Defaults to batch.Default.
func WithCoordinator(c *batch.Coordinator) Option {
	return func(s *settings) { s.coordinator = c }
}

// WithTree sets the widget tree used to create widgets and root parents.
func WithTree(t core.Tree) Option {
	return func(s *settings) { s.tree = t }
}

// WithLogger sets the logger. Defaults to the process logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = &l }
}

// WithProbe sets the timing probe. Defaults to timing.Default.
func WithProbe(p *timing.Probe) Option {
	return func(s *settings) { s.probe = p }
}
