package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"doit/internal/config"
	"doit/internal/exitcode"
	"doit/internal/output"
	"doit/internal/service"
	"doit/internal/views"
)

func init() {
	Register(&NotificationsCmd{})
	Register(&ReadCmd{})
	Register(&ReadAllCmd{})
	Register(&RmNotifCmd{})
	Register(&WatchCmd{})
}

// newCenter builds a notification center for the current session.
func newCenter(cfg *config.Config, deps *Deps, onUpdate func([]service.Notification)) *views.Center {
	opts := views.CenterOptions{
		Interval:   cfg.Env.NotifyInterval,
		MaxBackoff: cfg.Env.NotifyMaxBackoff,
		OnUpdate:   onUpdate,
		Logger:     deps.logger(),
	}
	if deps.Session != nil {
		opts.Session = deps.Session
	}
	return views.NewCenter(deps.Service, opts)
}

// NotificationsCmd implements the notifications command.
type NotificationsCmd struct {
	unread bool
}

func (c *NotificationsCmd) Name() string      { return "notifications" }
func (c *NotificationsCmd) Aliases() []string { return []string{"notifs"} }
func (c *NotificationsCmd) Synopsis() string  { return "List notifications" }
func (c *NotificationsCmd) Usage() string     { return "doit notifications [--unread]" }
func (c *NotificationsCmd) NeedsAuth() bool   { return true }

func (c *NotificationsCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.unread, "unread", false, "")
}

func (c *NotificationsCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	center := newCenter(cfg, deps, nil)
	defer center.Close()

	if err := center.Refresh(ctx); err != nil {
		return fail(errOut, err)
	}

	items := center.Items()
	printed := 0
	for _, n := range items {
		if c.unread && n.Read {
			continue
		}
		output.FormatNotification(out, n)
		printed++
	}
	if printed == 0 {
		return ok(out, cfg.Quiet, "no notifications")
	}
	if !cfg.Quiet {
		fmt.Fprintf(out, "%d unread\n", center.Unread())
	}
	return exitcode.Success
}

// ReadCmd implements the read command.
type ReadCmd struct{}

func (c *ReadCmd) Name() string      { return "read" }
func (c *ReadCmd) Aliases() []string { return nil }
func (c *ReadCmd) Synopsis() string  { return "Mark a notification read" }
func (c *ReadCmd) Usage() string     { return "doit read <notification-id>" }
func (c *ReadCmd) NeedsAuth() bool   { return true }

func (c *ReadCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ReadCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		return usage(errOut, c)
	}
	return mutateNotifications(ctx, cfg, deps, out, errOut, func(center *views.Center) error {
		return center.MarkRead(ctx, args[0])
	})
}

// ReadAllCmd implements the readall command.
type ReadAllCmd struct{}

func (c *ReadAllCmd) Name() string      { return "readall" }
func (c *ReadAllCmd) Aliases() []string { return nil }
func (c *ReadAllCmd) Synopsis() string  { return "Mark every notification read" }
func (c *ReadAllCmd) Usage() string     { return "doit readall [common flags]" }
func (c *ReadAllCmd) NeedsAuth() bool   { return true }

func (c *ReadAllCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ReadAllCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	return mutateNotifications(ctx, cfg, deps, out, errOut, func(center *views.Center) error {
		return center.MarkAllRead(ctx)
	})
}

// RmNotifCmd implements the rmnotif command.
type RmNotifCmd struct{}

func (c *RmNotifCmd) Name() string      { return "rmnotif" }
func (c *RmNotifCmd) Aliases() []string { return nil }
func (c *RmNotifCmd) Synopsis() string  { return "Delete a notification" }
func (c *RmNotifCmd) Usage() string     { return "doit rmnotif <notification-id>" }
func (c *RmNotifCmd) NeedsAuth() bool   { return true }

func (c *RmNotifCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *RmNotifCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		return usage(errOut, c)
	}
	return mutateNotifications(ctx, cfg, deps, out, errOut, func(center *views.Center) error {
		return center.Delete(ctx, args[0])
	})
}

// mutateNotifications loads the list, applies fn and reports the unread
// count of the locally updated list.
func mutateNotifications(ctx context.Context, cfg *config.Config, deps *Deps, out, errOut io.Writer, fn func(*views.Center) error) int {
	center := newCenter(cfg, deps, nil)
	defer center.Close()

	if err := center.Refresh(ctx); err != nil {
		return fail(errOut, err)
	}
	if err := fn(center); err != nil {
		return fail(errOut, err)
	}
	return ok(out, cfg.Quiet, fmt.Sprintf("ok, %d unread", center.Unread()))
}

// WatchCmd implements the watch command: it polls notifications until
// interrupted and prints each one the first time it is seen.
type WatchCmd struct {
	interval time.Duration
}

func (c *WatchCmd) Name() string      { return "watch" }
func (c *WatchCmd) Aliases() []string { return nil }
func (c *WatchCmd) Synopsis() string  { return "Poll for new notifications" }
func (c *WatchCmd) Usage() string     { return "doit watch [--interval <duration>]" }
func (c *WatchCmd) NeedsAuth() bool   { return true }

func (c *WatchCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.DurationVar(&c.interval, "interval", 0, "")
}

func (c *WatchCmd) Run(ctx context.Context, cfg *config.Config, deps *Deps, args []string, out, errOut io.Writer) int {
	if c.interval < 0 {
		fmt.Fprintf(errOut, "error: invalid interval: %s\n", c.interval)
		return exitcode.UserError
	}
	local := *cfg
	if c.interval > 0 {
		local.Env.NotifyInterval = c.interval
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	center := newCenter(&local, deps, func(items []service.Notification) {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range items {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			output.FormatNotification(out, n)
		}
	})
	defer center.Close()

	if err := center.Start(ctx); err != nil {
		if errors.Is(err, service.ErrUnauthorized) || errors.Is(err, views.ErrNotSignedIn) {
			return fail(errOut, err)
		}
		deps.logger().Warn("notification fetch failed, retrying", "error", err)
	}
	deps.logger().Debug("watching notifications", "interval", local.Env.NotifyInterval)

	<-ctx.Done()
	return exitcode.Success
}
