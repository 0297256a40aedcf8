package location

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before input is resolved.
const DefaultDebounce = 300 * time.Millisecond

// Suggester produces candidates for text.
type Suggester interface {
	Suggest(ctx context.Context, text string) ([]Candidate, error)
}

// Debouncer resolves only the latest input once typing has paused.
// Results for superseded input are dropped.
type Debouncer struct {
	ctx     context.Context
	s       Suggester
	delay   time.Duration
	deliver func(text string, candidates []Candidate, err error)

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	stopped bool
}

// NewDebouncer creates a Debouncer. deliver runs on a timer goroutine.
func NewDebouncer(ctx context.Context, s Suggester, delay time.Duration, deliver func(string, []Candidate, error)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{ctx: ctx, s: s, delay: delay, deliver: deliver}
}

// Input records text and restarts the quiet period.
func (d *Debouncer) Input(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq, text) })
}

func (d *Debouncer) fire(seq uint64, text string) {
	if !d.current(seq) {
		return
	}
	candidates, err := d.s.Suggest(d.ctx, text)
	if !d.current(seq) {
		return
	}
	d.deliver(text, candidates, err)
}

func (d *Debouncer) current(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.stopped && seq == d.seq
}

// Stop cancels pending input. No deliveries happen afterwards.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
