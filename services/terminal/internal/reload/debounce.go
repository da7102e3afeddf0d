package reload

import (
	"sync"
	"time"

	"github.com/aquamarinepk/aqm"
)

// Debouncer runs the latest func handed to it once the input has been
// quiet for its delay. Each key has its own timer, so unrelated concerns
// never cancel each other.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	clock   Clock
	timeout time.Duration
	logger  aqm.Logger
	timers  map[string]*slot
	wg      sync.WaitGroup
	closed  bool
}

type slot struct {
	timer Timer
	seq   uint64
}

func NewDebouncer(delay time.Duration, opts ...Option) *Debouncer {
	o := buildOptions(opts)
	return &Debouncer{
		delay:   delay,
		clock:   o.clock,
		timeout: o.timeout,
		logger:  o.logger,
		timers:  make(map[string]*slot),
	}
}

// Call replaces any pending func for key with fn and restarts its timer.
func (d *Debouncer) Call(key string, fn Func) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	s, ok := d.timers[key]
	if !ok {
		s = &slot{}
		d.timers[key] = s
	}
	if s.timer != nil && s.timer.Stop() {
		d.wg.Done()
	}
	s.seq++
	seq := s.seq

	d.wg.Add(1)
	s.timer = d.clock.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		if !d.take(key, seq) {
			return
		}
		run(key, fn, d.timeout, d.logger)
	})
}

// take claims the slot for the firing timer. A timer that lost a race with
// a newer Call finds a different seq and does nothing.
func (d *Debouncer) take(key string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.timers[key]
	if !ok || s.seq != seq {
		return false
	}
	delete(d.timers, key)
	return true
}

// Pending reports whether key has a func waiting.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Cancel drops the pending func for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.timers[key]; ok {
		if s.timer.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
}

// CancelAll drops every pending func. Funcs already running finish.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelAllLocked()
}

func (d *Debouncer) cancelAllLocked() {
	for key, s := range d.timers {
		if s.timer.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
}

// Close cancels every pending func and waits for running ones.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.cancelAllLocked()
	d.mu.Unlock()
	d.wg.Wait()
}
