package views

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"doit/internal/service"
	"doit/internal/session"
)

const (
	// DefaultPollInterval is the notification re-fetch period.
	DefaultPollInterval = 30 * time.Second

	// DefaultMaxBackoff caps the delay after repeated failures.
	DefaultMaxBackoff = 5 * time.Minute
)

// CountUnread returns the number of unread notifications.
func CountUnread(items []service.Notification) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Backoff returns the delay before the next poll after failures
// consecutive errors: interval doubled per failure, capped at ceiling.
func Backoff(interval, ceiling time.Duration, failures int) time.Duration {
	d := interval
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

// SessionState reports the current session.
type SessionState interface {
	Snapshot() session.Snapshot
}

// CenterOptions configures a Center.
type CenterOptions struct {
	Interval   time.Duration
	MaxBackoff time.Duration

	// Session gates Start. Nil means no gate.
	Session SessionState

	// OnUpdate runs after every applied fetch or local change.
	OnUpdate func(items []service.Notification)

	Logger *slog.Logger
}

// Center polls the viewer's notifications.
//
// Read and delete changes are applied to the in-memory list as soon as the
// backend accepts them, without a re-fetch; the next poll reconciles.
type Center struct {
	svc      service.Service
	interval time.Duration
	maxDelay time.Duration
	sess     SessionState
	onUpdate func([]service.Notification)
	log      *slog.Logger

	mu      sync.Mutex
	items   []service.Notification
	closed  bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCenter creates an idle Center.
func NewCenter(svc service.Service, opts CenterOptions) *Center {
	c := &Center{
		svc:      svc,
		interval: opts.Interval,
		maxDelay: opts.MaxBackoff,
		sess:     opts.Session,
		onUpdate: opts.OnUpdate,
		log:      opts.Logger,
	}
	if c.interval <= 0 {
		c.interval = DefaultPollInterval
	}
	if c.maxDelay < c.interval {
		c.maxDelay = max(DefaultMaxBackoff, c.interval)
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Start fetches once and then polls until ctx is done or Close is called.
// It returns the first fetch's error; polling continues regardless.
func (c *Center) Start(ctx context.Context) error {
	if c.sess != nil && !c.sess.Snapshot().SignedIn() {
		return ErrNotSignedIn
	}
	c.mu.Lock()
	if c.closed || c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	err := c.Refresh(ctx)
	failures := 0
	if err != nil {
		failures = 1
	}
	go c.poll(ctx, failures)
	return err
}

func (c *Center) poll(ctx context.Context, failures int) {
	defer close(c.done)
	timer := time.NewTimer(Backoff(c.interval, c.maxDelay, failures))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := c.Refresh(ctx); err != nil {
			failures++
			c.log.Debug("notification poll failed", "error", err, "failures", failures)
		} else {
			failures = 0
		}
		timer.Reset(Backoff(c.interval, c.maxDelay, failures))
	}
}

// Refresh fetches the notifications. The last response to arrive wins.
func (c *Center) Refresh(ctx context.Context) error {
	items, err := c.svc.Notifications(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.items = items
	c.mu.Unlock()
	c.notify()
	return nil
}

// Items returns the current list.
func (c *Center) Items() []service.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]service.Notification(nil), c.items...)
}

// Unread returns the unread count of the current list.
func (c *Center) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CountUnread(c.items)
}

// MarkRead marks id read.
func (c *Center) MarkRead(ctx context.Context, id string) error {
	if err := c.svc.MarkNotificationRead(ctx, id); err != nil {
		return err
	}
	c.update(func(items []service.Notification) []service.Notification {
		for i := range items {
			if items[i].ID == id {
				items[i].Read = true
			}
		}
		return items
	})
	return nil
}

// MarkAllRead marks every notification read.
func (c *Center) MarkAllRead(ctx context.Context) error {
	if err := c.svc.MarkAllNotificationsRead(ctx); err != nil {
		return err
	}
	c.update(func(items []service.Notification) []service.Notification {
		for i := range items {
			items[i].Read = true
		}
		return items
	})
	return nil
}

// Delete removes id.
func (c *Center) Delete(ctx context.Context, id string) error {
	if err := c.svc.DeleteNotification(ctx, id); err != nil {
		return err
	}
	c.update(func(items []service.Notification) []service.Notification {
		out := items[:0]
		for _, it := range items {
			if it.ID != id {
				out = append(out, it)
			}
		}
		return out
	})
	return nil
}

func (c *Center) update(fn func([]service.Notification) []service.Notification) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	items := append([]service.Notification(nil), c.items...)
	c.items = fn(items)
	c.mu.Unlock()
	c.notify()
}

func (c *Center) notify() {
	if c.onUpdate != nil {
		c.onUpdate(c.Items())
	}
}

// Close stops polling and discards later responses.
func (c *Center) Close() {
	c.mu.Lock()
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
