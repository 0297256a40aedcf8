package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/output"
	"doit/internal/service"
	"doit/internal/views"
)

func init() {
	Register(&TasksCmd{})
	Register(&MyTasksCmd{})
	Register(&TaskCmd{})
}

// TasksCmd implements the tasks command.
// Handles both `doit` (no args) and `doit tasks [filters]`.
type TasksCmd struct {
	search   string
	category string
	status   string
}

func (c *TasksCmd) Name() string      { return "tasks" }
func (c *TasksCmd) Aliases() []string { return []string{"ls"} }
func (c *TasksCmd) Synopsis() string  { return "Browse the task board" }
func (c *TasksCmd) Usage() string {
	return "doit tasks [--search <text>] [--category <name>] [--status <open|matched|completed>]"
}
func (c *TasksCmd) NeedsAuth() bool { return false }

func (c *TasksCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.search, "search", "", "")
	fs.StringVar(&c.search, "s", "", "")
	fs.StringVar(&c.category, "category", "", "")
	fs.StringVar(&c.status, "status", "", "")
}

func (c *TasksCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if c.status != "" && !validStatus(c.status) {
		fmt.Fprintf(errOut, "error: unknown status: %s\n", c.status)
		return exitcode.UserError
	}
	if c.category != "" && !slices.Contains(service.Categories, c.category) {
		fmt.Fprintf(errOut, "error: unknown category: %s (one of %s)\n", c.category, strings.Join(service.Categories, ", "))
		return exitcode.UserError
	}

	search := c.search
	if search == "" && len(args) > 0 {
		search = strings.Join(args, " ")
	}

	board := views.NewTaskBoard(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	if err := board.Refresh(ctx); err != nil {
		return fail(errOut, err)
	}

	tasks := board.Visible(views.Filter{Search: search, Category: c.category, Status: c.status})
	if len(tasks) == 0 {
		return ok(out, cfg.Quiet, "no tasks found")
	}
	for _, t := range tasks {
		output.FormatTask(out, t)
	}
	return exitcode.Success
}

// MyTasksCmd implements the mytasks command.
type MyTasksCmd struct {
	filter string
}

func (c *MyTasksCmd) Name() string      { return "mytasks" }
func (c *MyTasksCmd) Aliases() []string { return []string{"mine"} }
func (c *MyTasksCmd) Synopsis() string  { return "List tasks you posted, applied to or completed" }
func (c *MyTasksCmd) Usage() string {
	return "doit mytasks [--filter <all|created|applied|completed>]"
}
func (c *MyTasksCmd) NeedsAuth() bool { return true }

func (c *MyTasksCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.filter, "filter", string(views.ScopeAll), "")
	fs.StringVar(&c.filter, "f", string(views.ScopeAll), "")
}

func (c *MyTasksCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	scope, valid := views.ParseScope(c.filter)
	if !valid {
		fmt.Fprintf(errOut, "error: unknown filter: %s\n", c.filter)
		return exitcode.UserError
	}

	board := views.NewTaskBoard(deps.Service, deps.Media, deps.Viewer(), deps.logger())
	if err := board.Refresh(ctx); err != nil {
		return fail(errOut, err)
	}

	tasks := board.Mine(scope)
	if len(tasks) == 0 {
		return ok(out, cfg.Quiet, "no tasks found")
	}
	for _, t := range tasks {
		output.FormatTask(out, t)
	}
	return exitcode.Success
}

// TaskCmd implements the task command.
type TaskCmd struct{}

func (c *TaskCmd) Name() string      { return "task" }
func (c *TaskCmd) Aliases() []string { return []string{"show"} }
func (c *TaskCmd) Synopsis() string  { return "Show a task with its applications" }
func (c *TaskCmd) Usage() string     { return "doit task <task-id>" }
func (c *TaskCmd) NeedsAuth() bool   { return false }

func (c *TaskCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *TaskCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		return usage(errOut, c)
	}
	task, err := loadTask(ctx, deps, args[0])
	if err != nil {
		return fail(errOut, err)
	}
	output.FormatTaskDetail(out, task, deps.Viewer())
	return exitcode.Success
}

// loadTask fetches a task and, for its creator, the applications on it.
func loadTask(ctx context.Context, deps *Deps, id string) (service.Task, error) {
	task, err := deps.Service.GetTask(ctx, id)
	if err != nil {
		return service.Task{}, err
	}
	if viewer := deps.Viewer(); viewer != "" && viewer == task.CreatorUID && len(task.Applications) == 0 {
		apps, err := deps.Service.TaskApplications(ctx, id)
		if err != nil {
			return service.Task{}, err
		}
		task.Applications = apps
	}
	return task, nil
}

func validStatus(s string) bool {
	switch s {
	case service.StatusOpen, service.StatusMatched, service.StatusCompleted:
		return true
	}
	return false
}
