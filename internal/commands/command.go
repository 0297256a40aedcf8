// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"flag"
	"io"
	"log/slog"

	"doit/internal/config"
	"doit/internal/location"
	"doit/internal/media"
	"doit/internal/service"
	"doit/internal/session"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsAuth returns true if the command requires a signed-in user.
	// Commands like help, version, login, logout and tasks return false.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths, environment).
	// deps.Session is set and signed in if NeedsAuth() returns true.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int
}

// Offline is implemented by commands that never touch the session or the
// backend. The dispatcher builds no dependencies for them.
type Offline interface {
	Offline() bool
}

// Deps are the collaborators a command runs against. Media, Previews and
// Location are nil when their providers are not configured; Identity is
// nil in demo mode.
type Deps struct {
	Service  service.Service
	Identity session.Authenticator
	Session  *session.Store
	Media    *media.Pipeline
	Previews *media.Previews
	Location *location.Resolver
	Log      *slog.Logger

	// In is read for passwords and interactive input.
	In io.Reader
}

// Viewer returns the signed-in user's uid, or "" when signed out.
func (d *Deps) Viewer() string {
	if d == nil || d.Session == nil {
		return ""
	}
	if u := d.Session.User(); u != nil {
		return u.UID
	}
	return ""
}

func (d *Deps) logger() *slog.Logger {
	if d == nil || d.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d.Log
}
