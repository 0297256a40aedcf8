// Package cli parses the command line, builds the command dependencies and
// dispatches to the registered commands.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"doit/internal/commands"
	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/logging"
	"doit/internal/session"
)

// defaultCommand runs when no command is given.
const defaultCommand = "tasks"

// Factory builds the dependencies for one command run.
// onUnauthorized must be called by the backend gateway after it rejected
// the stored session.
type Factory func(ctx context.Context, cfg *config.Config, log *slog.Logger, onUnauthorized func()) (*commands.Deps, error)

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  Factory
}

// NewDispatcher creates a new dispatcher with the given registry and dependency factory.
func NewDispatcher(registry *commands.Registry, factory Factory) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	// No args -> browse the task board
	if len(args) == 0 {
		return d.dispatch(ctx, defaultCommand, nil, out, errOut)
	}

	cmdName := args[0]

	// If first token starts with -, it's an error (flags require a command)
	if strings.HasPrefix(cmdName, "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	return d.dispatch(ctx, cmdName, args[1:], out, errOut)
}

func (d *Dispatcher) dispatch(ctx context.Context, cmdName string, args []string, out, errOut io.Writer) int {
	cmd, ok := d.registry.Find(cmdName)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		if hints := d.registry.Suggest(cmdName); len(hints) > 0 {
			fmt.Fprintf(errOut, "did you mean: %s\n", strings.Join(hints, ", "))
		}
		return exitcode.UserError
	}
	return d.dispatchCommand(ctx, cmd, args, out, errOut)
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	// Create flag set with custom error handling
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard) // We handle errors ourselves

	// Common flags
	var configDir string
	var quiet bool
	var debug bool

	fs.StringVar(&configDir, "config", "", "")
	fs.BoolVar(&quiet, "quiet", false, "")
	fs.BoolVar(&debug, "debug", false, "")

	// Register command-specific flags
	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return reportFlagError(errOut, err)
	}

	// Check if first positional arg starts with - (should have been parsed as flag)
	positionalArgs := fs.Args()
	if len(positionalArgs) > 0 && strings.HasPrefix(positionalArgs[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positionalArgs[0])
		return exitcode.UserError
	}

	cfg, err := config.New(configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = quiet
	cfg.Debug = debug

	log := logging.New(cfg.Env.LogLevel, cfg.Debug, errOut)

	if off, ok := cmd.(commands.Offline); ok && off.Offline() {
		return cmd.Run(ctx, cfg, &commands.Deps{Log: log}, positionalArgs, out, errOut)
	}

	deps := &commands.Deps{Log: log}
	if d.factory != nil {
		redirect := func() {
			fmt.Fprintln(errOut, "error: session expired (run: doit login)")
		}
		deps, err = d.factory(ctx, cfg, log, redirect)
		if err != nil {
			fmt.Fprintf(errOut, "error: backend error: %s\n", err)
			return exitcode.BackendError
		}
		if deps.Log == nil {
			deps.Log = log
		}
	}

	// The session store is owned by this run: started before the command
	// and closed after it.
	var provider session.Provider
	if deps.Identity != nil {
		provider = deps.Identity
	}
	store := session.NewStore(provider, deps.Log)
	store.Start(ctx)
	defer store.Close()
	deps.Session = store

	snap, err := store.Wait(ctx)
	if err != nil {
		fmt.Fprintln(errOut, "error: cancelled")
		return exitcode.AuthError
	}
	if cmd.NeedsAuth() && !snap.SignedIn() {
		if cfg.DemoMode() {
			fmt.Fprintln(errOut, "error: not logged in (demo mode: identity provider not configured)")
		} else {
			fmt.Fprintln(errOut, "error: not logged in (run: doit login)")
		}
		return exitcode.AuthError
	}

	return cmd.Run(ctx, cfg, deps, positionalArgs, out, errOut)
}

// reportFlagError prints a flag parsing error in the CLI's format.
func reportFlagError(errOut io.Writer, err error) int {
	errStr := err.Error()

	// Check for missing flag value
	if strings.Contains(errStr, "needs a value") || strings.Contains(errStr, "flag needs an argument") {
		parts := strings.Split(errStr, ":")
		if len(parts) > 0 {
			flagPart := strings.TrimSpace(parts[len(parts)-1])
			fmt.Fprintf(errOut, "error: flag needs an argument: %s\n", flagPart)
			return exitcode.UserError
		}
	}

	// Check for unknown flag
	if strings.HasPrefix(errStr, "flag provided but not defined:") {
		flagName := strings.TrimPrefix(errStr, "flag provided but not defined: ")
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", flagName)
		return exitcode.UserError
	}

	fmt.Fprintf(errOut, "error: %s\n", errStr)
	return exitcode.UserError
}
