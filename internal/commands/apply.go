package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/views"
)

func init() {
	Register(&ApplyCmd{})
	Register(&AcceptCmd{})
	Register(&CompleteCmd{})
	Register(&ReviewCmd{})
}

// ApplyCmd implements the apply command.
type ApplyCmd struct {
	price optFloat
}

func (c *ApplyCmd) Name() string      { return "apply" }
func (c *ApplyCmd) Aliases() []string { return nil }
func (c *ApplyCmd) Synopsis() string  { return "Apply for a task" }
func (c *ApplyCmd) Usage() string     { return "doit apply [--price <eur>] <task-id> [message...]" }
func (c *ApplyCmd) NeedsAuth() bool   { return true }

func (c *ApplyCmd) RegisterFlags(fs *flag.FlagSet) {
	c.price = optFloat{}
	fs.Var(&c.price, "price", "")
}

func (c *ApplyCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) < 1 {
		return usage(errOut, c)
	}
	board := views.NewTaskBoard(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	if err := board.Apply(ctx, args[0], strings.Join(args[1:], " "), c.price.value); err != nil {
		return fail(errOut, err)
	}
	return ok(out, cfg.Quiet, "ok")
}

// AcceptCmd implements the accept command.
type AcceptCmd struct{}

func (c *AcceptCmd) Name() string      { return "accept" }
func (c *AcceptCmd) Aliases() []string { return nil }
func (c *AcceptCmd) Synopsis() string  { return "Accept an application on your task" }
func (c *AcceptCmd) Usage() string     { return "doit accept <application-id>" }
func (c *AcceptCmd) NeedsAuth() bool   { return true }

func (c *AcceptCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *AcceptCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		return usage(errOut, c)
	}
	board := views.NewTaskBoard(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	if err := board.Accept(ctx, args[0]); err != nil {
		return fail(errOut, err)
	}
	return ok(out, cfg.Quiet, "ok")
}

// CompleteCmd implements the complete command.
type CompleteCmd struct{}

func (c *CompleteCmd) Name() string      { return "complete" }
func (c *CompleteCmd) Aliases() []string { return []string{"done"} }
func (c *CompleteCmd) Synopsis() string  { return "Mark your matched task completed" }
func (c *CompleteCmd) Usage() string     { return "doit complete <task-id>" }
func (c *CompleteCmd) NeedsAuth() bool   { return true }

func (c *CompleteCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *CompleteCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		return usage(errOut, c)
	}
	board := views.NewTaskBoard(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	if err := board.Complete(ctx, args[0]); err != nil {
		return fail(errOut, err)
	}
	return ok(out, cfg.Quiet, "ok")
}

// ReviewCmd implements the review command.
type ReviewCmd struct{}

func (c *ReviewCmd) Name() string      { return "review" }
func (c *ReviewCmd) Aliases() []string { return []string{"rate"} }
func (c *ReviewCmd) Synopsis() string  { return "Rate the other side of a completed task" }
func (c *ReviewCmd) Usage() string     { return "doit review <task-id> <1-5> [comment...]" }
func (c *ReviewCmd) NeedsAuth() bool   { return true }

func (c *ReviewCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ReviewCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) < 2 {
		return usage(errOut, c)
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(errOut, "error: invalid rating: %s\n", args[1])
		return exitcode.UserError
	}
	board := views.NewTaskBoard(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	if err := board.Review(ctx, args[0], rating, strings.Join(args[2:], " ")); err != nil {
		return fail(errOut, err)
	}
	return ok(out, cfg.Quiet, "ok")
}
