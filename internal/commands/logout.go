package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/session"
	"doit/internal/views"
)

func init() {
	Register(&LogoutCmd{})
	Register(&WhoamiCmd{})
}

// LogoutCmd implements the logout command.
type LogoutCmd struct{}

func (c *LogoutCmd) Name() string      { return "logout" }
func (c *LogoutCmd) Aliases() []string { return nil }
func (c *LogoutCmd) Synopsis() string  { return "Sign out and remove stored credentials" }
func (c *LogoutCmd) Usage() string     { return "doit logout [common flags]" }
func (c *LogoutCmd) NeedsAuth() bool   { return false }

func (c *LogoutCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LogoutCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	var store *session.Store
	if deps != nil && deps.Session != nil {
		store = deps.Session
	} else {
		var provider session.Provider
		if deps != nil && deps.Identity != nil {
			provider = deps.Identity
		}
		store = session.NewStore(provider, deps.logger())
		store.Start(ctx)
		defer store.Close()
	}

	snap, _ := store.Wait(ctx)
	if !snap.SignedIn() && !cfg.HasToken() {
		return ok(out, cfg.Quiet, "not logged in")
	}

	// The local session is cleared whatever the provider says.
	if err := store.Logout(ctx); err != nil {
		deps.logger().Warn("provider sign-out failed", "error", err)
	}
	if cfg.HasToken() {
		if err := cfg.RemoveToken(); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(errOut, "error: failed to remove token: %v\n", err)
			return exitcode.AuthError
		}
	}
	return ok(out, cfg.Quiet, "ok")
}

// WhoamiCmd implements the whoami command.
type WhoamiCmd struct{}

func (c *WhoamiCmd) Name() string      { return "whoami" }
func (c *WhoamiCmd) Aliases() []string { return nil }
func (c *WhoamiCmd) Synopsis() string  { return "Print the signed-in user" }
func (c *WhoamiCmd) Usage() string     { return "doit whoami [common flags]" }
func (c *WhoamiCmd) NeedsAuth() bool   { return true }

func (c *WhoamiCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *WhoamiCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if deps.Session == nil || deps.Session.User() == nil {
		return fail(errOut, views.ErrNotSignedIn)
	}
	u := deps.Session.User()
	fmt.Fprintf(out, "%s  %s\n", u.UID, displayName(u))
	return exitcode.Success
}
