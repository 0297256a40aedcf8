package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"runtime/debug"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/gateway"
)

// Version is the application version. Set at build time.
var Version = "0.1.0"

func init() {
	Register(&VersionCmd{})
}

// VersionCmd prints the version and, with --verbose, the backend it
// would talk to.
type VersionCmd struct {
	verbose bool
}

func (c *VersionCmd) Name() string      { return "version" }
func (c *VersionCmd) Aliases() []string { return nil }
func (c *VersionCmd) Synopsis() string  { return "Print version" }
func (c *VersionCmd) Usage() string     { return "doit version [--verbose]" }
func (c *VersionCmd) NeedsAuth() bool   { return false }
func (c *VersionCmd) Offline() bool     { return true }

func (c *VersionCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "verbose", false, "")
}

func (c *VersionCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	fmt.Fprintf(out, "doit %s\n", Version)
	if !c.verbose {
		return exitcode.Success
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprintf(out, "go:       %s\n", info.GoVersion)
	}
	base, err := gateway.ResolveBaseURL(cfg.Env.APIURL, cfg.Env.Origin, cfg.Env.BackendPort)
	if err != nil {
		base = "invalid (" + err.Error() + ")"
	}
	fmt.Fprintf(out, "backend:  %s\n", base)
	if cfg.DemoMode() {
		fmt.Fprintln(out, "identity: demo mode")
	} else {
		fmt.Fprintf(out, "identity: firebase (%s)\n", cfg.Env.Firebase.ProjectID)
	}
	return exitcode.Success
}
