// Package cmd implements the renderloop CLI commands.
//
// The root command dispatches to subcommands that register themselves in
// init (simulate, config, version).
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/go-drift/renderloop/cmd/renderloop/internal/config"
	"github.com/go-drift/renderloop/pkg/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

// Commands registered with the CLI, in registration order.
var commands []func() *cobra.Command

// RegisterCommand adds a command constructor to the CLI.
func RegisterCommand(newCmd func() *cobra.Command) {
	commands = append(commands, newCmd)
}

// NewRootCmd builds the root command with every registered subcommand.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "renderloop",
		Short: "renderloop - render scheduling for data-driven trees",
		Long: `renderloop mounts instance trees against a data store and schedules
their render passes: coalescing bursts of mutations, retrying
self-invalidating explore phases and reporting per-pass timing.

Use "renderloop <command> --help" for more information about a command.`,
		Version:       Version + " (built " + BuildTime + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to "+config.FileName+" (default: project root)")
	root.PersistentFlags().String("log-level", "", "log level (overrides log.level)")

	for _, newCmd := range commands {
		root.AddCommand(newCmd())
	}
	return root
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig resolves configuration from --config or the project root and
// applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Resolved, error) {
	path, _ := cmd.Flags().GetString("config")

	var resolved *config.Resolved
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		if resolved, err = cfg.Resolve(""); err != nil {
			return nil, err
		}
	} else {
		root, err := config.FindProjectRoot()
		if err != nil {
			return nil, err
		}
		if resolved, err = config.Resolve(root); err != nil {
			return nil, err
		}
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		resolved.LogLevel = level
		if err := resolved.Validate(); err != nil {
			return nil, err
		}
	}
	logging.Init(resolved.LogLevel, cmd.ErrOrStderr())
	return resolved, nil
}

// isTerminal reports whether the command writes to a terminal.
func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
