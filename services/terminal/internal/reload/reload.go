// Package reload bounds how often bursts of invalidation signals turn into
// network fetches.
package reload

import (
	"context"
	"sync"
	"time"

	"github.com/aquamarinepk/aqm"
)

// DefaultReloadDelay is the coalescing window for state reloads.
const DefaultReloadDelay = 400 * time.Millisecond

// Func is the work run when a timer fires.
type Func func(ctx context.Context) error

// Coalescer arms one timer on the first Trigger of a burst. Further
// triggers are ignored until the timer fires; the pending flag is cleared
// before fn runs, so a trigger during the fetch arms the next window.
type Coalescer struct {
	mu      sync.Mutex
	pending Timer
	delay   time.Duration
	fn      Func
	clock   Clock
	timeout time.Duration
	logger  aqm.Logger
	name    string
	wg      sync.WaitGroup
	closed  bool
}

type Option func(*options)

type options struct {
	clock   Clock
	timeout time.Duration
	logger  aqm.Logger
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTimeout bounds each run of the scheduled func.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(l aqm.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{clock: RealClock, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = aqm.NewNoopLogger()
	}
	return o
}

func NewCoalescer(name string, delay time.Duration, fn Func, opts ...Option) *Coalescer {
	o := buildOptions(opts)
	return &Coalescer{
		delay:   delay,
		fn:      fn,
		clock:   o.clock,
		timeout: o.timeout,
		logger:  o.logger,
		name:    name,
	}
}

// Trigger arms the timer if none is pending. It reports whether it armed.
func (c *Coalescer) Trigger() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pending != nil {
		return false
	}
	c.wg.Add(1)
	c.pending = c.clock.AfterFunc(c.delay, c.fire)
	return true
}

// Pending reports whether a run is armed.
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

func (c *Coalescer) fire() {
	defer c.wg.Done()

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()

	run(c.name, c.fn, c.timeout, c.logger)
}

// Close cancels a pending run and waits for a running one.
func (c *Coalescer) Close() {
	c.mu.Lock()
	c.closed = true
	if c.pending != nil && c.pending.Stop() {
		c.pending = nil
		c.wg.Done()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Scheduler coalesces reload requests into at most one state fetch per
// window.
type Scheduler struct {
	*Coalescer
}

func NewScheduler(fetch Func, opts ...Option) *Scheduler {
	return &Scheduler{Coalescer: NewCoalescer("state reload", DefaultReloadDelay, fetch, opts...)}
}

// ScheduleReload arms the reload timer unless one is already pending.
func (s *Scheduler) ScheduleReload() {
	s.Trigger()
}

func run(name string, fn Func, timeout time.Duration, logger aqm.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduled func panic", "name", name, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error("scheduled func failed", "name", name, "error", err)
	}
}
