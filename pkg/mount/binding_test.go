package mount_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/renderloop/pkg/core"
	"github.com/go-drift/renderloop/pkg/errors"
	"github.com/go-drift/renderloop/pkg/mount"
	"github.com/go-drift/renderloop/pkg/pipeline"
	"github.com/go-drift/renderloop/pkg/store"
	rltest "github.com/go-drift/renderloop/pkg/testing"
)

type captureHandler struct {
	mu     sync.Mutex
	errors []*errors.DriftError
}

func (h *captureHandler) HandleError(err *errors.DriftError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *captureHandler) HandlePhaseError(*errors.PhaseError) {}

func (h *captureHandler) divergences() []*errors.DivergenceError {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*errors.DivergenceError
	for _, err := range h.errors {
		var d *errors.DivergenceError
		if errors.As(err, &d) {
			out = append(out, d)
		}
	}
	return out
}

func captureErrors(t *testing.T) *captureHandler {
	t.Helper()
	h := &captureHandler{}
	errors.SetHandler(h)
	t.Cleanup(func() { errors.SetHandler(nil) })
	return h
}

func newInstance(tester *rltest.Tester, name string) *rltest.Instance {
	inst := rltest.NewInstance(name)
	inst.StoreScope = tester.Store()
	return inst
}

func count(data any) any {
	d, _ := data.(store.Data)
	return d["count"]
}

func TestMount_RunsInitialPass(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")

	b := tester.Mount(mount.Props{Instance: inst, Subscribe: true})

	assert.True(t, b.Mounted())
	assert.Equal(t, 1, b.RenderCount())
	assert.Equal(t, 1, b.Passes())
	assert.Equal(t, "root", b.Content())
	assert.Equal(t, "main", b.Name())
	assert.NotEmpty(t, b.ID().String())
	flags := b.Flags()
	assert.True(t, flags.Idle())
	assert.Equal(t, []any{"root"}, tester.Host().Commits())
	assert.Equal(t, 1, tester.Store().Subscribers())
}

func TestMount_WithoutSubscribeIgnoresStore(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")

	b := tester.Mount(mount.Props{Instance: inst})
	tester.Store().Set("count", 1)
	tester.Tick()

	assert.Equal(t, 0, tester.Store().Subscribers())
	assert.Equal(t, 1, b.RenderCount())
}

func TestMount_NoStoreIsConfigurationError(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := rltest.NewInstance("orphan")

	b, err := tester.TryMount(mount.Props{Instance: inst})

	require.Error(t, err)
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, errors.ErrNoStore))

	var de *errors.DriftError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, errors.KindConfiguration, de.Kind)
	assert.Equal(t, "mount.Mount", de.Op)

	var ce *errors.ConfigurationError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, 0, inst.Explores, "no pass may run for a rejected mount")
}

func TestMount_NoWidgetIsConfigurationError(t *testing.T) {
	tester := rltest.NewTesterWithT(t)

	_, err := tester.TryMount(mount.Props{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoWidget))
}

func TestMount_WidgetWithoutTree(t *testing.T) {
	_, err := mount.Mount(context.Background(), mount.Props{Widget: "w", Store: store.NewMemory(nil)}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoWidget))
}

func TestMount_TreeCreateError(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	createErr := fmt.Errorf("bad spec")
	tester.Tree().CreateErr = createErr

	_, err := tester.TryMount(mount.Props{Widget: "w"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, createErr))
}

func TestMount_ParentStoreResolution(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	parentStore := store.NewMemory(store.Data{"count": 7})
	parent := tester.Tree().NewRoot("scope").(*rltest.Parent)
	parent.SetStore(parentStore)

	b, err := mount.Mount(context.Background(), mount.Props{Widget: "child", Parent: parent}, tester.Host(), tester.Options()...)
	require.NoError(t, err)
	defer b.Unmount()

	assert.Same(t, parentStore, b.Store())
	inst := b.Instance().(*rltest.Instance)
	assert.Equal(t, 7, count(inst.LastSnapshot()))
}

func TestUpdate_CoalescesSynchronousMutations(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	b := tester.Mount(mount.Props{Instance: inst, Subscribe: true})

	for i := 1; i <= 10; i++ {
		tester.Store().Set("count", i)
	}
	assert.True(t, b.Pending())
	assert.Equal(t, 1, inst.Prepares, "deferred mode must not render synchronously")

	tester.Tick()

	assert.False(t, b.Pending())
	assert.Equal(t, 2, b.RenderCount())
	assert.Equal(t, 2, inst.Prepares)
	assert.Equal(t, 10, count(inst.LastSnapshot()))
	assert.Equal(t, 0, tester.Coordinator().Pending())
}

func TestUpdate_TwoMutationsOneCycle(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	inst.Log = &rltest.EventLog{}
	tester.Mount(mount.Props{Instance: inst, Subscribe: true})
	inst.Log.Reset()

	tester.Store().Set("count", 1)
	tester.Store().Set("count", 2)
	tester.Tick()

	assert.Equal(t, []string{"root.explore", "root.prepare", "root.render", "root.cleanup"}, inst.Log.Events())
	assert.Equal(t, 2, count(inst.LastSnapshot()))
}

func TestUpdate_ImmediatePreparesBeforeMutationReturns(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	tester.Mount(mount.Props{Instance: inst, Subscribe: true, Immediate: true})

	tester.Store().Set("count", 1)

	assert.Equal(t, 2, inst.Prepares)
	assert.Equal(t, 1, count(inst.LastSnapshot()))
	assert.Equal(t, 0, tester.Loop().Len(), "immediate mode must not post a task")
	assert.Equal(t, 0, tester.Coordinator().Pending())
}

func TestUpdate_ForceImmediate(t *testing.T) {
	prev := mount.SetForceImmediate(true)
	t.Cleanup(func() { mount.SetForceImmediate(prev) })

	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	tester.Mount(mount.Props{Instance: inst, Subscribe: true})

	tester.Store().Set("count", 3)

	assert.True(t, mount.ForceImmediate())
	assert.Equal(t, 2, inst.Prepares)
}

func TestUpdate_BatchScopeRendersSynchronously(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	tester.Mount(mount.Props{Instance: inst, Subscribe: true})

	var inside int
	tester.Coordinator().Batch(func() {
		tester.Store().Set("count", 1)
		inside = inst.Prepares
	})

	assert.Equal(t, 2, inside)
	assert.Equal(t, 0, tester.Loop().Len())
}

func TestUpdate_BatchAndNotifySettles(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	b := tester.Mount(mount.Props{Instance: inst, Subscribe: true})

	notified := 0
	tester.Coordinator().BatchAndNotify(func() {
		tester.Store().Set("count", 1)
		tester.Store().Set("count", 2)
	}, func() { notified++ }, 0, tester.Loop())

	assert.Equal(t, 1, notified)
	assert.Equal(t, 3, b.RenderCount())
	assert.Equal(t, 2, count(inst.LastSnapshot()))
}

func TestUpdate_ReentrantUpdatesOnlyMarkDirty(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	var seen []pipeline.Flags
	var b *mount.Binding
	inst.ExploreFn = func(ctx *core.Context) bool {
		if ctx.Pass() == 2 && ctx.Attempt() == 0 {
			tester.Store().Set("side", true)
			seen = append(seen, b.Flags())
		}
		return true
	}
	b = tester.Mount(mount.Props{Instance: inst, Subscribe: true})

	tester.Store().Set("count", 1)
	tester.Tick()

	require.Len(t, seen, 1)
	assert.True(t, seen[0].Preparing)
	assert.True(t, seen[0].Dirty)
	assert.False(t, b.Pending(), "a dirtying explore must not schedule another pass")
	assert.Equal(t, 2, b.RenderCount())
	assert.Equal(t, 3, inst.Explores, "one retry on the second pass")
	assert.Equal(t, 2, inst.Prepares)
}

func TestUpdate_AlwaysDirtyExploreIsBounded(t *testing.T) {
	h := captureErrors(t)
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "loop")
	inst.ExploreFn = func(ctx *core.Context) bool {
		tester.Store().Update("n", func(old any) any {
			n, _ := old.(int)
			return n + 1
		})
		return true
	}

	b := tester.Mount(mount.Props{Instance: inst, Subscribe: true, Options: mount.Options{Name: "loop"}})

	assert.Equal(t, pipeline.MaxExploreRetries+1, inst.Explores)
	assert.Equal(t, 1, inst.Prepares)
	assert.Equal(t, 1, inst.Renders)
	assert.Equal(t, 1, inst.Cleanups)

	divergences := h.divergences()
	require.Len(t, divergences, 1)
	assert.Equal(t, "loop", divergences[0].Name)
	assert.Equal(t, 4, divergences[0].Attempts)

	// Residual dirtiness schedules one more pass.
	assert.True(t, b.Pending())
	b.Unmount()
	assert.Equal(t, 0, tester.Coordinator().Pending())
}

func TestUpdate_AfterRenderingReruns(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	fired := false
	tester.Host().OnCommit = func(any) {
		if !fired {
			fired = true
			tester.Store().Set("count", 5)
		}
	}

	b := tester.Mount(mount.Props{Instance: inst, Subscribe: true})
	assert.Equal(t, 1, b.RenderCount(), "commit-time updates wait for the pass")
	assert.True(t, b.Pending())

	tester.Tick()
	assert.Equal(t, 2, b.RenderCount())
	assert.Equal(t, 5, count(inst.LastSnapshot()))
}

func TestUpdate_NestedImmediateUpdatesAreBounded(t *testing.T) {
	h := captureErrors(t)
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	tester.Host().OnCommit = func(any) {
		tester.Store().Update("n", func(old any) any {
			n, _ := old.(int)
			return n + 1
		})
	}

	b := tester.Mount(mount.Props{Instance: inst, Subscribe: true, Immediate: true})

	assert.Equal(t, mount.MaxNestedUpdates+1, b.RenderCount())
	divergences := h.divergences()
	require.Len(t, divergences, 1)
	assert.True(t, divergences[0].Nested)
	assert.Equal(t, 0, tester.Coordinator().Pending())
}

func TestUnmount_CancelsPendingUpdate(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	b := tester.Mount(mount.Props{Instance: inst, Subscribe: true})

	tester.Store().Set("count", 1)
	require.True(t, b.Pending())
	require.Equal(t, 1, tester.Coordinator().Pending())

	b.Unmount()
	tester.Tick()

	assert.False(t, b.Mounted())
	assert.False(t, b.Pending())
	assert.Equal(t, 1, inst.Prepares)
	assert.Equal(t, 1, inst.Renders)
	assert.Equal(t, 0, tester.Coordinator().Pending())
	assert.Equal(t, 0, tester.Store().Subscribers())

	// Updates after unmount are ignored.
	b.Update()
	assert.Equal(t, 0, tester.Loop().Len())
}

func TestUnmount_DestroysTrackedInstanceOnce(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	inst.Tracked = true
	b := tester.Mount(mount.Props{Instance: inst})

	b.Unmount()
	b.Unmount()

	assert.Equal(t, 1, inst.Destroys)
}

func TestUnmount_KeepsUntrackedInstance(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	b := tester.Mount(mount.Props{Instance: inst})

	b.Unmount()

	assert.Equal(t, 0, inst.Destroys)
}

func TestUnmount_DuringPassDefersDestroy(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	inst.Tracked = true
	inst.Log = &rltest.EventLog{}
	var b *mount.Binding
	inst.CleanupFn = func(*core.Context) {
		if b != nil {
			b.Unmount()
		}
	}
	b = tester.Mount(mount.Props{Instance: inst})

	require.NoError(t, b.Rerender(mount.Props{}))

	assert.False(t, b.Mounted())
	assert.Equal(t, []string{
		"root.explore", "root.prepare", "root.render", "root.cleanup",
		"root.explore", "root.prepare", "root.render", "root.cleanup",
		"root.destroy",
	}, inst.Log.Events())
}

func TestRerender_SwitchDestroysTrackedInstanceFirst(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	events := &rltest.EventLog{}
	a := newInstance(tester, "A")
	a.Tracked = true
	a.Log = events
	bInst := newInstance(tester, "B")
	bInst.Log = events

	binding := tester.Mount(mount.Props{Instance: a})
	events.Reset()

	require.NoError(t, binding.Rerender(mount.Props{Instance: bInst}))
	require.NoError(t, binding.Rerender(mount.Props{Instance: bInst}))
	binding.Unmount()

	assert.Equal(t, 1, a.Destroys)
	assert.Equal(t, 0, bInst.Destroys)
	assert.Equal(t, []string{
		"A.destroy", "B.explore", "B.prepare", "B.render", "B.cleanup",
		"B.explore", "B.prepare", "B.render", "B.cleanup",
	}, events.Events())
	assert.Same(t, bInst, binding.Instance())
}

func TestRerender_AppliesOptions(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	var names []string
	inst.PrepareFn = func(ctx *core.Context) {
		names = append(names, ctx.Options().DisplayName())
	}
	b := tester.Mount(mount.Props{Instance: inst})

	require.NoError(t, b.Rerender(mount.Props{Options: mount.Options{Name: "renamed"}}))

	assert.Equal(t, []string{"main", "renamed"}, names)
	assert.Equal(t, "renamed", b.Name())
}

func TestRerender_RenameUpdatesLogName(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	opts := append(tester.Options(), mount.WithLogger(logger))
	b, err := mount.Mount(context.Background(), mount.Props{Instance: newInstance(tester, "root")}, tester.Host(), opts...)
	require.NoError(t, err)

	require.NoError(t, b.Rerender(mount.Props{Options: mount.Options{Name: "renamed"}}))
	buf.Reset()
	b.Unmount()

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, `"name":"renamed"`)
	assert.Contains(t, line, `"binding":"`+b.ID().String()+`"`)
	assert.NotContains(t, line, `"name":"main"`)
}

func TestRerender_AfterUnmount(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	b := tester.Mount(mount.Props{Instance: newInstance(tester, "root")})
	b.Unmount()

	err := b.Rerender(mount.Props{})

	assert.True(t, errors.Is(err, errors.ErrUnmounted))
}

func TestRender_InvisiblePassStillCleansUp(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	inst.ExploreFn = func(*core.Context) bool { return false }

	b := tester.Mount(mount.Props{Instance: inst})

	assert.Nil(t, b.Content())
	assert.Equal(t, []any{nil}, tester.Host().Commits())
	assert.Equal(t, 0, inst.Prepares)
	assert.Equal(t, 0, inst.Renders)
	require.Equal(t, 1, inst.Cleanups)
	assert.Equal(t, 0, inst.Contexts[0].Attempt())
	assert.True(t, inst.Contexts[0].Released())
}

func TestOnPipeUpdate_ExposesUpdate(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	inst := newInstance(tester, "root")
	var update func()
	calls := 0
	opts := mount.Options{OnPipeUpdate: func(fn func()) {
		calls++
		update = fn
	}}

	b := tester.Mount(mount.Props{Instance: inst, Options: opts})
	require.NotNil(t, update)

	update()
	assert.True(t, b.Pending())
	tester.Tick()
	assert.Equal(t, 2, b.RenderCount())

	b.Unmount()
	assert.Equal(t, 2, calls)
	assert.Nil(t, update)
}

func TestWidgetMount_ResolvesChildPerKey(t *testing.T) {
	tester := rltest.NewTesterWithT(t)
	tester.Tree().Factory = func(widget core.Widget, s store.Store) core.Instance {
		inst := rltest.NewInstance(fmt.Sprint(widget))
		inst.StoreScope = s
		inst.Tracked = true
		return inst
	}

	b := tester.Mount(mount.Props{Widget: "page", Key: 1, Subscribe: true})
	first := b.Instance().(*rltest.Instance)

	require.NoError(t, b.Rerender(mount.Props{Key: 2}))
	second := b.Instance().(*rltest.Instance)

	assert.NotSame(t, first, second)
	assert.Equal(t, 1, first.Destroys)
	assert.Equal(t, 2, tester.Tree().Children)
}
