package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/appetiteclub/kds/services/terminal/internal/cache"
)

type mockReloader struct {
	calls atomic.Int32
}

func (m *mockReloader) ScheduleReload() {
	m.calls.Add(1)
}

type menuCall struct {
	force bool
}

type mockMenuLoader struct {
	calls       chan menuCall
	invalidated atomic.Int32
}

func newMockMenuLoader() *mockMenuLoader {
	return &mockMenuLoader{calls: make(chan menuCall, 8)}
}

func (m *mockMenuLoader) LoadMenu(ctx context.Context, force bool) (cache.Result, error) {
	m.calls <- menuCall{force: force}
	return cache.Result{Source: cache.SourceNetwork}, nil
}

func (m *mockMenuLoader) Invalidate(ctx context.Context) error {
	m.invalidated.Add(1)
	return nil
}

var errConnClosed = errors.New("connection closed")

// mockConn delivers queued messages, then fails the read.
type mockConn struct {
	msgs   chan []byte
	once   sync.Once
	closed chan struct{}
}

func newMockConn(msgs ...string) *mockConn {
	c := &mockConn{msgs: make(chan []byte, len(msgs)), closed: make(chan struct{})}
	for _, m := range msgs {
		c.msgs <- []byte(m)
	}
	close(c.msgs)
	return c
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case m, ok := <-c.msgs:
		if !ok {
			return 0, nil, errConnClosed
		}
		return 1, m, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *mockConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// mockDialer hands out scripted results in order, then blocks until ctx
// is cancelled.
type mockDialer struct {
	mu      sync.Mutex
	results []dialResult
	dials   atomic.Int32
}

type dialResult struct {
	conn Conn
	err  error
}

func (d *mockDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	if len(d.results) > 0 {
		r := d.results[0]
		d.results = d.results[1:]
		d.mu.Unlock()
		return r.conn, r.err
	}
	d.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}
