package terminal

import (
	"context"
	"sync"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/page"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/aquamarinepk/aqm"
)

const (
	DefaultCallListInterval = 10 * time.Second
	DefaultTimeSyncInterval = 5 * time.Minute
)

// Poller runs fn every interval while enabled reports true. It is started
// and stopped by the service lifecycle.
type Poller struct {
	name      string
	interval  time.Duration
	fn        func(ctx context.Context) error
	enabled   func() bool
	immediate bool
	logger    aqm.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

func NewPoller(name string, interval time.Duration, fn func(ctx context.Context) error, logger aqm.Logger) *Poller {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Poller{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
		kick:     make(chan struct{}, 1),
	}
}

// NewCallListPoller refreshes the call list while the call screen is shown.
func NewCallListPoller(st *store.Store, loader Loader, interval time.Duration, logger aqm.Logger) *Poller {
	p := NewPoller("call-list", interval, func(ctx context.Context) error {
		_, err := loader.LoadCallList(ctx)
		return err
	}, logger)
	p.enabled = func() bool {
		return st.Snapshot().State.Page == page.Pages.Call
	}
	p.immediate = true
	return p
}

// NewTimeSyncPoller pushes the local clock to the server at start and then
// every interval.
func NewTimeSyncPoller(c *Coordinator, interval time.Duration, logger aqm.Logger) *Poller {
	p := NewPoller("time-sync", interval, func(ctx context.Context) error {
		return c.SyncTime(ctx, time.Now())
	}, logger)
	p.immediate = true
	return p
}

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	p.logger.Info("poller started", "poller", p.name, "interval", p.interval.String())
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kick requests a run now, outside the interval. Extra kicks while one is
// queued are dropped.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.immediate {
		p.poll(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.kick:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if p.enabled != nil && !p.enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	if err := p.fn(ctx); err != nil {
		p.logger.Error("poll failed", "poller", p.name, "error", err)
	}
}
