package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-drift/renderloop/cmd/renderloop/internal/config"
	"github.com/go-drift/renderloop/cmd/renderloop/internal/demo"
	"github.com/go-drift/renderloop/pkg/batch"
	"github.com/go-drift/renderloop/pkg/errors"
	"github.com/go-drift/renderloop/pkg/logging"
	"github.com/go-drift/renderloop/pkg/loop"
	"github.com/go-drift/renderloop/pkg/mount"
	"github.com/go-drift/renderloop/pkg/pipeline"
	"github.com/go-drift/renderloop/pkg/store"
	"github.com/go-drift/renderloop/pkg/timing"
)

func init() {
	RegisterCommand(newSimulateCmd)
}

type simulateOptions struct {
	roots     int
	mutations int
	burst     int
	interval  time.Duration
	immediate bool
	batched   bool
	json      bool
	failAt    int
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Mount demo roots and drive store mutations through them",
		Long: `Mount one or more demo roots on a shared store, then post bursts of
mutations to the loop. Each burst is coalesced into a single pass per root
unless --immediate is given; --batch wraps each burst in a batch scope.
--fail-at makes every panel panic from the given burst on; the run stops
with the recovered phase failure.

Examples:
  renderloop simulate --roots 3 --mutations 10 --burst 5
  renderloop simulate --immediate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resolved, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("immediate") {
				resolved.Immediate = opts.immediate
			}
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), resolved, opts, isTerminal(cmd))
		},
	}
	cmd.Flags().IntVar(&opts.roots, "roots", 2, "number of roots to mount")
	cmd.Flags().IntVar(&opts.mutations, "mutations", 5, "number of mutation bursts")
	cmd.Flags().IntVar(&opts.burst, "burst", 3, "store writes per burst")
	cmd.Flags().DurationVar(&opts.interval, "interval", 10*time.Millisecond, "delay between bursts")
	cmd.Flags().BoolVar(&opts.immediate, "immediate", false, "commit every write synchronously")
	cmd.Flags().BoolVar(&opts.batched, "batch", false, "wrap each burst in a batch scope")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the timing timeline as JSON")
	cmd.Flags().IntVar(&opts.failAt, "fail-at", 0, "make panels panic from this burst on (0 disables)")
	return cmd
}

// Summary is the outcome of a simulation run.
type Summary struct {
	Roots     int             `json:"roots"`
	Writes    int             `json:"writes"`
	Passes    int             `json:"passes"`
	Commits   int             `json:"commits"`
	Destroyed int             `json:"destroyed"`
	Timeline  timing.Timeline `json:"timeline"`
}

func runSimulate(ctx context.Context, out io.Writer, cfg *config.Resolved, opts simulateOptions, styled bool) error {
	if opts.roots < 1 {
		return fmt.Errorf("--roots must be >= 1 (got %d)", opts.roots)
	}
	if opts.mutations < 0 || opts.burst < 1 {
		return fmt.Errorf("--mutations must be >= 0 and --burst >= 1")
	}
	if opts.interval <= 0 {
		return fmt.Errorf("--interval must be positive (got %s)", opts.interval)
	}
	if opts.failAt < 0 {
		return fmt.Errorf("--fail-at must be >= 0 (got %d)", opts.failAt)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	prevOptimize := pipeline.SetOptimizePrepare(cfg.OptimizePrepare)
	defer pipeline.SetOptimizePrepare(prevOptimize)
	flags := cfg.TimingFlags()
	timing.Enable(flags)
	defer timing.Disable(flags)

	log := logging.Component("simulate")
	l := loop.New()
	coordinator := batch.New()
	probe := timing.NewProbe(cfg.Buffer)
	st := store.NewMemory(store.Data{"tick": 0, "hidden": false, "broken": false})
	tree := &demo.Tree{}
	host := newTerminalHost(out, styled)

	bindings := make([]*mount.Binding, 0, opts.roots)
	defer func() {
		for _, b := range bindings {
			b.Unmount()
		}
	}()
	for i := 0; i < opts.roots; i++ {
		name := fmt.Sprintf("%s-%d", cfg.Name, i+1)
		b, err := mountRoot(ctx, mount.Props{
			Widget:    demo.Panel{Title: name, Keys: []string{"tick"}, HideWhen: "hidden", FailWhen: "broken"},
			Store:     st,
			Subscribe: cfg.Subscribe,
			Immediate: cfg.Immediate,
			Options:   mount.Options{Name: name},
		}, host.forRoot(name),
			mount.WithLoop(l),
			mount.WithCoordinator(coordinator),
			mount.WithTree(tree),
			mount.WithProbe(probe),
			mount.WithLogger(log),
		)
		if err != nil {
			return err
		}
		bindings = append(bindings, b)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() (err error) {
		var failure *errors.PhaseError
		defer func() {
			if failure != nil {
				err = failure
			}
		}()
		defer errors.RecoverPhase("update", &failure)
		if err := l.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	writes := 0
	g.Go(func() error {
		defer cancel()
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()

		for n := 0; n < opts.mutations; n++ {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
			base := n * opts.burst
			done := make(chan struct{})
			l.Post(func() {
				burst := func() {
					if opts.failAt > 0 && n+1 >= opts.failAt {
						st.Set("broken", true)
					}
					for j := 1; j <= opts.burst; j++ {
						st.Set("tick", base+j)
						writes++
					}
				}
				if opts.batched {
					coordinator.Batch(burst)
				} else {
					burst()
				}
				// Deferred passes posted by the burst run before this.
				l.Post(func() { close(done) })
			})
			select {
			case <-done:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	summary := Summary{Roots: len(bindings), Writes: writes, Commits: host.commits()}
	for _, b := range bindings {
		b.Unmount()
		summary.Passes += b.Passes()
	}
	bindings = nil
	summary.Destroyed = tree.Destroyed
	summary.Timeline = probe.Buffer().Snapshot()

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	host.summary(summary)
	return nil
}

// mountRoot mounts one root, turning a panic in its first pass into a
// *errors.PhaseError.
func mountRoot(ctx context.Context, props mount.Props, host mount.Host, opts ...mount.Option) (b *mount.Binding, err error) {
	var failure *errors.PhaseError
	defer func() {
		if failure != nil {
			b, err = nil, failure
		}
	}()
	defer errors.RecoverPhase("mount", &failure)
	return mount.Mount(ctx, props, host, opts...)
}

var (
	colorRoot    = lipgloss.Color("6")
	colorContent = lipgloss.Color("15")
	colorMuted   = lipgloss.Color("8")
	colorHeader  = lipgloss.Color("5")
)

// terminalHost prints every committed pass as one styled line.
type terminalHost struct {
	out    io.Writer
	styled bool

	mu    sync.Mutex
	count int

	rootStyle    lipgloss.Style
	contentStyle lipgloss.Style
	mutedStyle   lipgloss.Style
	headerStyle  lipgloss.Style
}

func newTerminalHost(out io.Writer, styled bool) *terminalHost {
	return &terminalHost{
		out:          out,
		styled:       styled,
		rootStyle:    lipgloss.NewStyle().Foreground(colorRoot).Bold(true),
		contentStyle: lipgloss.NewStyle().Foreground(colorContent),
		mutedStyle:   lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		headerStyle:  lipgloss.NewStyle().Foreground(colorHeader).Bold(true),
	}
}

func (h *terminalHost) render(style lipgloss.Style, s string) string {
	if !h.styled {
		return s
	}
	return style.Render(s)
}

func (h *terminalHost) forRoot(name string) mount.Host {
	return mount.HostFunc(func(content any) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.count++
		label := h.render(h.rootStyle, fmt.Sprintf("[%s]", name))
		if content == nil {
			fmt.Fprintf(h.out, "%s %s\n", label, h.render(h.mutedStyle, "(hidden)"))
			return
		}
		fmt.Fprintf(h.out, "%s %s\n", label, h.render(h.contentStyle, fmt.Sprint(content)))
	})
}

func (h *terminalHost) commits() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *terminalHost) summary(s Summary) {
	fmt.Fprintln(h.out, h.render(h.headerStyle, "Summary"))
	fmt.Fprintf(h.out, "  roots:     %d\n", s.Roots)
	fmt.Fprintf(h.out, "  writes:    %d\n", s.Writes)
	fmt.Fprintf(h.out, "  passes:    %d\n", s.Passes)
	fmt.Fprintf(h.out, "  commits:   %d\n", s.Commits)
	fmt.Fprintf(h.out, "  destroyed: %d\n", s.Destroyed)
	if s.Timeline.Total > 0 {
		fmt.Fprintf(h.out, "  samples:   %d\n", s.Timeline.Total)
	}
}
