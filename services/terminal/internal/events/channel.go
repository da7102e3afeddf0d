// Package events keeps the push connection to the embedded server open and
// routes its messages either to narrow in-place patches or to a coalesced
// state reload.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/page"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/appetiteclub/kds/pkg/kds"
	"github.com/appetiteclub/kds/services/terminal/internal/cache"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/aquamarinepk/aqm"
)

const (
	DefaultRetryDelay  = 3 * time.Second
	menuReloadTimeout  = 10 * time.Second
	maxLoggedMsgLength = 256
)

type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Reloader schedules a coalesced state reload.
type Reloader interface {
	ScheduleReload()
}

// MenuLoader reloads the menu and drops cached responses.
type MenuLoader interface {
	LoadMenu(ctx context.Context, force bool) (cache.Result, error)
	Invalidate(ctx context.Context) error
}

type handlerFunc func(ctx context.Context, raw []byte) error

// Channel is the push connection. It reconnects after a fixed delay
// forever and mirrors the connection state into the store's online flag.
type Channel struct {
	url        string
	dialer     Dialer
	store      *store.Store
	reloader   Reloader
	menu       MenuLoader
	logger     aqm.Logger
	retryDelay time.Duration
	handlers   map[string]handlerFunc

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

type Option func(*Channel)

func WithRetryDelay(d time.Duration) Option {
	return func(c *Channel) { c.retryDelay = d }
}

func NewChannel(url string, dialer Dialer, st *store.Store, reloader Reloader, menu MenuLoader, logger aqm.Logger, opts ...Option) *Channel {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	c := &Channel{
		url:        url,
		dialer:     dialer,
		store:      st,
		reloader:   reloader,
		menu:       menu,
		logger:     logger,
		retryDelay: DefaultRetryDelay,
		state:      StateClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.handlers = map[string]handlerFunc{
		event.TypeHello:         c.handleHello,
		event.TypeSyncSnapshot:  c.handleSyncSnapshot,
		event.TypeSystemReset:   c.handleSystemReset,
		event.TypeSessionEnded:  c.handleSessionEnded,
		event.TypeOrderCreated:  c.handleOrderChanged,
		event.TypeOrderUpdated:  c.handleOrderChanged,
		event.TypePrinterStatus: c.handlePrinterStatus,
		event.TypeOrderCooked:   c.handleOrderCooked,
		event.TypeOrderPicked:   c.handleOrderPicked,
	}
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start connects in the background; it never blocks startup.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	c.logger.Info("starting push channel", "url", c.url)
	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(loopCtx, c.done)
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	c.logger.Info("stopping push channel")
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.wg.Wait()
	return nil
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		c.setState(StateConnecting)
		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			c.logger.Error("push connection failed", "error", err, "retry_in", c.retryDelay)
		} else {
			c.setState(StateOpen)
			c.store.SetOnline(true)
			c.logger.Info("push connection open")
			c.receive(ctx, conn)
		}

		c.setState(StateClosed)
		c.store.SetOnline(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
}

// receive reads until the connection fails or ctx is cancelled.
func (c *Channel) receive(ctx context.Context, conn Conn) {
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
		case <-closed:
		}
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Info("push connection closed", "error", err)
			}
			return
		}
		c.Handle(ctx, raw)
	}
}

// Handle dispatches one push message. Malformed and unknown messages are
// logged and dropped; a failing handler never stops the loop.
func (c *Channel) Handle(ctx context.Context, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("push handler panic", "panic", r, "message", truncate(raw))
		}
	}()

	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Error("dropping malformed push message", "error", err, "message", truncate(raw))
		return
	}

	handler, ok := c.handlers[env.Type]
	if !ok {
		c.logger.Debug("ignoring push message", "type", env.Type)
		return
	}
	if err := handler(ctx, raw); err != nil {
		c.logger.Error("push handler failed", "type", env.Type, "error", err)
	}
}

func (c *Channel) handleHello(ctx context.Context, raw []byte) error {
	var msg event.HelloMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}
	c.logger.Info("server hello", "msg", msg.Msg)
	return nil
}

func (c *Channel) handleSyncSnapshot(ctx context.Context, raw []byte) error {
	c.reloadMenu(false)
	c.reloader.ScheduleReload()
	return nil
}

func (c *Channel) handleSystemReset(ctx context.Context, raw []byte) error {
	c.store.Clear()
	c.async(func(ctx context.Context) {
		if err := c.menu.Invalidate(ctx); err != nil {
			c.logger.Error("cannot drop cached responses", "error", err)
		}
		if _, err := c.menu.LoadMenu(ctx, true); err != nil {
			c.logger.Error("menu reload after reset failed", "error", err)
		}
	})
	c.reloader.ScheduleReload()
	return nil
}

func (c *Channel) handleSessionEnded(ctx context.Context, raw []byte) error {
	c.store.Reset()
	c.reloader.ScheduleReload()
	return nil
}

func (c *Channel) handleOrderChanged(ctx context.Context, raw []byte) error {
	c.reloader.ScheduleReload()
	return nil
}

func (c *Channel) handlePrinterStatus(ctx context.Context, raw []byte) error {
	var msg event.PrinterStatusMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode printer status: %w", err)
	}
	c.store.PatchPrinter(store.PrinterPatched{
		PaperOut: msg.PaperOut,
		Overheat: msg.Overheat,
		HoldJobs: msg.HoldJobs,
	})
	return nil
}

func (c *Channel) handleOrderCooked(ctx context.Context, raw []byte) error {
	var msg event.OrderCookedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode order cooked: %w", err)
	}
	if msg.OrderNo == "" {
		return fmt.Errorf("order cooked without orderNo")
	}
	if !c.onCallPage() {
		c.reloader.ScheduleReload()
		return nil
	}
	ts := msg.Ts
	if ts == 0 {
		ts = time.Now().Unix()
	}
	c.store.PatchCallList(store.CallListAdd, kds.CallListEntry{OrderNo: string(msg.OrderNo), Ts: ts})
	return nil
}

func (c *Channel) handleOrderPicked(ctx context.Context, raw []byte) error {
	var msg event.OrderPickedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode order picked: %w", err)
	}
	if msg.OrderNo == "" {
		return fmt.Errorf("order picked without orderNo")
	}
	if !c.onCallPage() {
		c.reloader.ScheduleReload()
		return nil
	}
	c.store.PatchCallList(store.CallListRemove, kds.CallListEntry{OrderNo: string(msg.OrderNo)})
	return nil
}

func (c *Channel) onCallPage() bool {
	return c.store.Snapshot().State.Page == page.Pages.Call
}

func (c *Channel) reloadMenu(force bool) {
	c.async(func(ctx context.Context) {
		if _, err := c.menu.LoadMenu(ctx, force); err != nil {
			c.logger.Error("menu reload failed", "force", force, "error", err)
		}
	})
}

// async runs fn off the read loop so slow fetches never delay dispatch.
func (c *Channel) async(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), menuReloadTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func truncate(raw []byte) string {
	if len(raw) > maxLoggedMsgLength {
		return string(raw[:maxLoggedMsgLength]) + "..."
	}
	return string(raw)
}
