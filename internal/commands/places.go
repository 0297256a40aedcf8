package commands

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/location"
	"doit/internal/output"
)

func init() {
	Register(&PlacesCmd{})
}

// PlacesCmd implements the places command.
//
// With text it prints address suggestions. Without text it reads lines
// from stdin as typed input and prints suggestions once typing pauses.
type PlacesCmd struct {
	resolve bool
	here    bool
	delay   time.Duration
}

func (c *PlacesCmd) Name() string      { return "places" }
func (c *PlacesCmd) Aliases() []string { return []string{"where"} }
func (c *PlacesCmd) Synopsis() string  { return "Suggest addresses or locate yourself" }
func (c *PlacesCmd) Usage() string {
	return "doit places [--resolve] <text...> | doit places --here | doit places [--debounce <duration>] < input"
}
func (c *PlacesCmd) NeedsAuth() bool { return false }

func (c *PlacesCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.resolve, "resolve", false, "")
	fs.BoolVar(&c.here, "here", false, "")
	fs.DurationVar(&c.delay, "debounce", location.DefaultDebounce, "")
}

func (c *PlacesCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if deps == nil || deps.Location == nil {
		fmt.Fprintln(errOut, "error: location services not configured")
		return exitcode.UserError
	}
	resolver := deps.Location

	if c.here {
		place, err := resolver.CurrentPosition(ctx)
		if err != nil {
			return fail(errOut, err)
		}
		output.FormatPlace(out, place)
		return exitcode.Success
	}

	if len(args) == 0 {
		return c.interactive(ctx, cfg, deps, out, errOut)
	}

	text := strings.Join(args, " ")
	candidates, err := resolver.Suggest(ctx, text)
	if err != nil {
		return fail(errOut, err)
	}
	if len(candidates) == 0 {
		if !cfg.Quiet {
			fmt.Fprintf(out, "no suggestions (at least %d characters)\n", location.MinInputLength+1)
		}
		return exitcode.Success
	}

	if c.resolve {
		place, err := resolver.Resolve(ctx, candidates[0])
		if err != nil {
			return fail(errOut, err)
		}
		output.FormatPlace(out, place)
		return exitcode.Success
	}

	for i, cand := range candidates {
		output.FormatCandidate(out, i+1, cand)
	}
	return exitcode.Success
}

// interactive feeds stdin lines through a debouncer until EOF and waits
// for the suggestions of the last line.
func (c *PlacesCmd) interactive(ctx context.Context, cfg *config.Config, deps *Deps, out, errOut io.Writer) int {
	if deps.In == nil {
		return usage(errOut, c)
	}

	var mu sync.Mutex
	delivered := make(chan string, 1)
	deb := location.NewDebouncer(ctx, deps.Location, c.delay, func(text string, candidates []location.Candidate, err error) {
		mu.Lock()
		if err != nil {
			fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		} else {
			if !cfg.Quiet {
				fmt.Fprintf(out, "> %s\n", text)
			}
			for i, cand := range candidates {
				output.FormatCandidate(out, i+1, cand)
			}
		}
		mu.Unlock()
		select {
		case delivered <- text:
		default:
		}
	})
	defer deb.Stop()

	last := ""
	sc := bufio.NewScanner(deps.In)
	for sc.Scan() {
		last = strings.TrimSpace(sc.Text())
		deb.Input(last)
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(errOut, "error: failed to read input: %v\n", err)
		return exitcode.UserError
	}
	if last == "" {
		return exitcode.Success
	}

	for {
		select {
		case text := <-delivered:
			if text == last {
				return exitcode.Success
			}
		case <-ctx.Done():
			return exitcode.Success
		}
	}
}
