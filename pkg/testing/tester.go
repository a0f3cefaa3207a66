package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-drift/renderloop/pkg/batch"
	"github.com/go-drift/renderloop/pkg/loop"
	"github.com/go-drift/renderloop/pkg/mount"
	"github.com/go-drift/renderloop/pkg/store"
	"github.com/go-drift/renderloop/pkg/timing"
)

// DefaultSettleTicks bounds Settle.
const DefaultSettleTicks = 100

// ErrSettleTimeout is returned when Settle exceeds its tick budget.
var ErrSettleTimeout = errors.New("Settle timed out: loop did not go idle")

// Tester mounts root bindings against an isolated loop, coordinator, store
// and recording host. Time is driven by a FakeClock shared with the timing
// probe.
type Tester struct {
	t           testing.TB
	clock       *FakeClock
	prevClock   timing.Clock
	loop        *loop.Loop
	coordinator *batch.Coordinator
	store       *store.Memory
	host        *Host
	tree        *Tree
	probe       *timing.Probe
	bindings    []*mount.Binding
}

// NewTester creates a tester with an empty store. Call Cleanup when done,
// or use NewTesterWithT instead.
func NewTester() *Tester {
	clk := NewFakeClock()
	t := &Tester{
		clock:       clk,
		loop:        loop.New(loop.WithClock(clk)),
		coordinator: batch.New(),
		store:       store.NewMemory(nil),
		host:        &Host{},
		tree:        &Tree{},
		probe:       timing.NewProbe(0),
	}
	t.prevClock = timing.SetClock(clk)
	return t
}

// NewTesterWithT creates a tester that is cleaned up with t and fails t
// on mount errors.
func NewTesterWithT(t testing.TB) *Tester {
	tester := NewTester()
	tester.t = t
	t.Cleanup(tester.Cleanup)
	return tester
}

// Cleanup unmounts every binding and restores the timing clock.
func (t *Tester) Cleanup() {
	for _, b := range t.bindings {
		b.Unmount()
	}
	t.bindings = nil
	timing.SetClock(t.prevClock)
}

// Clock returns the fake clock.
func (t *Tester) Clock() *FakeClock { return t.clock }

// Loop returns the tester's loop.
func (t *Tester) Loop() *loop.Loop { return t.loop }

// Coordinator returns the tester's batching coordinator.
func (t *Tester) Coordinator() *batch.Coordinator { return t.coordinator }

// Store returns the default store used when props carry none.
func (t *Tester) Store() *store.Memory { return t.store }

// Host returns the recording host.
func (t *Tester) Host() *Host { return t.host }

// Tree returns the widget tree used for widget mounts.
func (t *Tester) Tree() *Tree { return t.tree }

// Probe returns the tester's timing probe.
func (t *Tester) Probe() *timing.Probe { return t.probe }

// Options returns the mount options wiring a binding to this tester.
func (t *Tester) Options() []mount.Option {
	return []mount.Option{
		mount.WithLoop(t.loop),
		mount.WithCoordinator(t.coordinator),
		mount.WithTree(t.tree),
		mount.WithProbe(t.probe),
	}
}

// TryMount mounts props against the tester. Props without a store and
// without an instance use the tester's store.
func (t *Tester) TryMount(props mount.Props) (*mount.Binding, error) {
	if props.Store == nil && props.Instance == nil {
		props.Store = t.store
	}
	b, err := mount.Mount(context.Background(), props, t.host, t.Options()...)
	if err != nil {
		return nil, err
	}
	t.bindings = append(t.bindings, b)
	return b, nil
}

// Mount is TryMount that fails the test on error. Testers built without a
// testing.TB panic instead.
func (t *Tester) Mount(props mount.Props) *mount.Binding {
	b, err := t.TryMount(props)
	if t.t != nil {
		require.NoError(t.t, err)
	} else if err != nil {
		panic(err)
	}
	return b
}

// Tick runs one loop tick and returns the number of tasks run.
func (t *Tester) Tick() int {
	return t.loop.RunPending()
}

// Settle runs ticks until the loop has no ready work, up to
// DefaultSettleTicks. Returns ErrSettleTimeout if work remains.
func (t *Tester) Settle() error {
	t.loop.Drain(DefaultSettleTicks)
	if t.loop.Ready() {
		return ErrSettleTimeout
	}
	return nil
}
