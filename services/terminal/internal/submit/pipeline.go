// Package submit turns the local cart into a server order with at most one
// submission in flight and bounded retries.
package submit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/kds/pkg/kds"
	"github.com/appetiteclub/kds/services/terminal/internal/cache"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
)

const (
	DefaultAttempts   = 3
	DefaultRetryDelay = time.Second
)

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInFlight         = errors.New("an order submission is already in flight")
	ErrSubmissionFailed = errors.New("order submission failed")
)

// Creator posts orders to the server.
type Creator interface {
	CreateOrder(ctx context.Context, req kds.CreateOrderRequest, idempotencyKey string) (kds.CreateOrderResponse, error)
}

// StateLoader performs the full reload that follows a successful order.
type StateLoader interface {
	LoadState(ctx context.Context, force bool) (cache.Result, error)
}

// Progress reports the attempt about to be made, 1-based.
type Progress func(attempt, total int)

// Status is the submission state shown next to the confirm button.
type Status struct {
	InFlight    bool   `json:"inFlight"`
	Attempt     int    `json:"attempt,omitempty"`
	MaxAttempts int    `json:"maxAttempts"`
	LastOrderNo string `json:"lastOrderNo,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

type call struct {
	done chan struct{}
	err  error
}

type Pipeline struct {
	store    *store.Store
	remote   Creator
	loader   StateLoader
	logger   aqm.Logger
	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	progress Progress
	success  func(orderNo string)

	mu       sync.Mutex
	inflight *call
	status   Status
}

type Option func(*Pipeline)

func WithAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.attempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.delay = d }
}

func WithProgress(fn Progress) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithSuccess registers the notifier that receives the new order number.
func WithSuccess(fn func(orderNo string)) Option {
	return func(p *Pipeline) { p.success = fn }
}

func NewPipeline(st *store.Store, remote Creator, loader StateLoader, logger aqm.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	p := &Pipeline{
		store:    st,
		remote:   remote,
		loader:   loader,
		logger:   logger,
		attempts: DefaultAttempts,
		delay:    DefaultRetryDelay,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.status.MaxAttempts = p.attempts
	return p
}

// Submit sends the current cart. A second call while one is pending
// returns ErrInFlight without touching the network. On failure the cart is
// kept so the user can retry.
func (p *Pipeline) Submit(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.inflight != nil {
		p.mu.Unlock()
		return "", ErrInFlight
	}
	lines := p.store.Snapshot().State.Cart
	if len(lines) == 0 {
		p.mu.Unlock()
		return "", ErrEmptyCart
	}
	c := &call{done: make(chan struct{})}
	p.inflight = c
	p.status = Status{InFlight: true, MaxAttempts: p.attempts}
	p.mu.Unlock()

	orderNo, err := p.submit(ctx, lines)

	p.mu.Lock()
	c.err = err
	p.inflight = nil
	p.status.InFlight = false
	p.status.Attempt = 0
	if err != nil {
		p.status.LastError = err.Error()
	} else {
		p.status.LastOrderNo = orderNo
	}
	p.mu.Unlock()
	close(c.done)

	if err == nil && p.success != nil {
		p.success(orderNo)
	}
	return orderNo, err
}

func (p *Pipeline) submit(ctx context.Context, lines []kds.CartLine) (string, error) {
	req := BuildRequest(lines)
	key := uuid.NewString()
	log := p.logger.With("idempotency_key", key, "lines", len(req.Lines))

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		p.setAttempt(attempt)

		resp, err := p.remote.CreateOrder(ctx, req, key)
		if err == nil {
			log.Info("order created", "order_no", resp.OrderNo, "attempt", attempt)
			p.complete(ctx, resp.OrderNo)
			return resp.OrderNo, nil
		}

		lastErr = err
		log.Error("order submission attempt failed", "attempt", attempt, "max", p.attempts, "error", err)
		if attempt == p.attempts {
			break
		}
		if err := p.sleep(ctx, p.delay); err != nil {
			lastErr = err
			break
		}
	}
	return "", fmt.Errorf("%w: %w", ErrSubmissionFailed, lastErr)
}

func (p *Pipeline) complete(ctx context.Context, orderNo string) {
	if err := p.store.MutateCart(store.CartClear{}); err != nil {
		p.logger.Error("cannot clear cart", "error", err)
	}
	if _, err := p.loader.LoadState(ctx, true); err != nil {
		p.logger.Error("state reload after order failed", "order_no", orderNo, "error", err)
	}
}

func (p *Pipeline) setAttempt(attempt int) {
	p.mu.Lock()
	p.status.Attempt = attempt
	p.mu.Unlock()
	if p.progress != nil {
		p.progress(attempt, p.attempts)
	}
}

// Await blocks until the in-flight submission, if any, settles. It returns
// that submission's error so dependent actions can abort.
func (p *Pipeline) Await(ctx context.Context) error {
	p.mu.Lock()
	c := p.inflight
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// BuildRequest sanitises every line into its wire form.
func BuildRequest(lines []kds.CartLine) kds.CreateOrderRequest {
	req := kds.CreateOrderRequest{Lines: make([]kds.WireLine, 0, len(lines))}
	for _, line := range lines {
		req.Lines = append(req.Lines, kds.Sanitize(line))
	}
	return req
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
