package store

import (
	"context"
	"errors"
	"sync"

	"github.com/appetiteclub/kds/pkg/enums/page"
	"github.com/appetiteclub/kds/pkg/kds"
	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
)

var (
	ErrLineNotFound = errors.New("cart line not found")
	ErrInvalidLine  = errors.New("invalid cart line")
)

// Snapshot is a consistent view of the state at a given revision.
type Snapshot struct {
	Revision uint64
	State    State
}

// Listener receives snapshots from the render loop. Listeners run on the
// loop goroutine and must not block.
type Listener func(Snapshot)

// Tokens are the last applied fetch tokens per resource.
type Tokens struct {
	State    Token
	Menu     Token
	CallList Token
}

// Store is the single mutation point of the terminal state. Every mutation
// bumps the revision and schedules a render; renders are coalesced and
// delivered by one goroutine started with Start.
type Store struct {
	mu       sync.Mutex
	state    State
	tokens   Tokens
	revision uint64
	changed  chan struct{}

	clock     *Clock
	listeners map[string]Listener
	render    chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	logger    aqm.Logger
}

func New(clock *Clock, logger aqm.Logger) *Store {
	if clock == nil {
		clock = NewClock()
	}
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Store{
		state:     State{Page: page.Pages.Order},
		changed:   make(chan struct{}),
		clock:     clock,
		listeners: make(map[string]Listener),
		render:    make(chan struct{}, 1),
		logger:    logger,
	}
}

// Clock returns the token source used to stamp fetches.
func (s *Store) Clock() *Clock {
	return s.clock
}

// Snapshot returns the current state and revision.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Revision: s.revision, State: s.state}
}

func (s *Store) Tokens() Tokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// Dispatch applies a unconditionally.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocked(a)
}

// ApplyFullState applies a state fetch issued at token. It reports false
// when a newer state has already been applied. The payload's menu is used
// only when no newer menu fetch has been applied.
func (s *Store) ApplyFullState(token Token, payload kds.StatePayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token <= s.tokens.State {
		s.logger.Debug("discarding stale state response", "token", token, "applied", s.tokens.State)
		return false
	}
	s.tokens.State = token

	withMenu := payload.Menu != nil && token > s.tokens.Menu
	if withMenu {
		s.tokens.Menu = token
	}
	s.commitLocked(FullStateLoaded{Payload: payload, WithMenu: withMenu})
	return true
}

// ApplyMenu applies a 200 menu response issued at token.
func (s *Store) ApplyMenu(token Token, items kds.Menu, etag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token <= s.tokens.Menu {
		s.logger.Debug("discarding stale menu response", "token", token, "applied", s.tokens.Menu)
		return false
	}
	s.tokens.Menu = token
	s.commitLocked(MenuLoaded{Items: items, ETag: etag})
	return true
}

// ReplaceCallList applies a call-list poll issued at token. A push patch
// that arrived after the poll was issued makes the poll stale.
func (s *Store) ReplaceCallList(token Token, entries []kds.CallListEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token <= s.tokens.CallList {
		s.logger.Debug("discarding stale call list", "token", token, "applied", s.tokens.CallList)
		return false
	}
	s.tokens.CallList = token
	s.commitLocked(CallListReplaced{Entries: entries})
	return true
}

func (s *Store) PatchCallList(op CallListOp, entry kds.CallListEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens.CallList = s.clock.Next()
	s.commitLocked(CallListPatched{Op: op, Entry: entry})
}

func (s *Store) MutateCart(op CartOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o := op.(type) {
	case CartAdd:
		if o.Line == nil {
			return ErrInvalidLine
		}
	case CartRemove:
		if o.Index < 0 || o.Index >= len(s.state.Cart) {
			return ErrLineNotFound
		}
	case CartSetQty:
		if o.Index < 0 || o.Index >= len(s.state.Cart) {
			return ErrLineNotFound
		}
	case CartClear:
		if len(s.state.Cart) == 0 {
			return nil
		}
	}
	s.commitLocked(op)
	return nil
}

func (s *Store) PatchPrinter(p PrinterPatched) {
	s.Dispatch(p)
}

func (s *Store) PatchSettings(p SettingsPatched) {
	s.Dispatch(p)
}

func (s *Store) PatchMenuItem(p MenuItemPatched) {
	s.Dispatch(p)
}

// SetOnline records the push connection state. Repeated values do not
// trigger a render.
func (s *Store) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Online == online {
		return
	}
	s.commitLocked(OnlineChanged{Online: online})
}

func (s *Store) SetPage(p page.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Page == p {
		return
	}
	s.commitLocked(PageChanged{Page: p})
}

// Reset clears session data after a session end. Fetches issued before
// the reset are discarded.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.clock.Next()
	s.tokens.State = t
	s.tokens.CallList = t
	s.commitLocked(SessionReset{})
}

// Clear wipes everything after a system reset.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.clock.Next()
	s.tokens = Tokens{State: t, Menu: t, CallList: t}
	s.commitLocked(SystemCleared{})
}

// Wait blocks until the revision is greater than since or ctx is done.
func (s *Store) Wait(ctx context.Context, since uint64) (Snapshot, error) {
	for {
		s.mu.Lock()
		if s.revision > since {
			snap := Snapshot{Revision: s.revision, State: s.state}
			s.mu.Unlock()
			return snap, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-changed:
		}
	}
}

// Subscribe registers l for renders. The returned func removes it.
func (s *Store) Subscribe(l Listener) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.listeners[id] = l
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Start launches the render loop.
func (s *Store) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.renderLoop(loopCtx, s.done)
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

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

func (s *Store) commitLocked(a Action) {
	s.state = Reduce(s.state, a)
	s.revision++
	close(s.changed)
	s.changed = make(chan struct{})

	select {
	case s.render <- struct{}{}:
	default:
	}
}

func (s *Store) renderLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.render:
			s.fanOut()
		}
	}
}

func (s *Store) fanOut() {
	s.mu.Lock()
	snap := Snapshot{Revision: s.revision, State: s.state}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.deliver(l, snap)
	}
}

func (s *Store) deliver(l Listener, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("render listener panic", "panic", r, "revision", snap.Revision)
		}
	}()
	l(snap)
}
