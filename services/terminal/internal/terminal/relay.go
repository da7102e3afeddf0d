package terminal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/appetiteclub/kds/pkg/event"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/aquamarinepk/aqm"
)

// Publisher sends raw messages on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg []byte) error
}

// Relay republishes rendered store revisions so that renderers in other
// processes know when to pull a fresh snapshot. Only the latest pending
// revision is sent.
type Relay struct {
	store      *store.Store
	publisher  Publisher
	topic      string
	terminalID string
	logger     aqm.Logger
	now        func() time.Time

	mu          sync.Mutex
	unsubscribe func()
	latest      chan store.Snapshot
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewRelay(st *store.Store, publisher Publisher, topic, terminalID string, logger aqm.Logger) *Relay {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if topic == "" {
		topic = event.StateTopic
	}
	return &Relay{
		store:      st,
		publisher:  publisher,
		topic:      topic,
		terminalID: terminalID,
		logger:     logger,
		now:        time.Now,
		latest:     make(chan store.Snapshot, 1),
	}
}

func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(runCtx, r.done)
	r.unsubscribe = r.store.Subscribe(r.offer)
	return nil
}

func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done, unsubscribe := r.cancel, r.done, r.unsubscribe
	r.cancel, r.done, r.unsubscribe = nil, nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	unsubscribe()
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// offer runs on the render goroutine and must not block: an unsent
// snapshot is replaced by the newer one.
func (r *Relay) offer(snap store.Snapshot) {
	for {
		select {
		case r.latest <- snap:
			return
		default:
		}
		select {
		case <-r.latest:
		default:
		}
	}
}

func (r *Relay) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-r.latest:
			r.publish(ctx, snap)
		}
	}
}

func (r *Relay) publish(ctx context.Context, snap store.Snapshot) {
	ev := event.StateChangedEvent{
		EventType:  event.EventStateChanged,
		OccurredAt: r.now().UTC(),
		TerminalID: r.terminalID,
		Revision:   snap.Revision,
		Page:       snap.State.Page.Code(),
		Online:     snap.State.Online,
		SessionID:  snap.State.Session.SessionID,
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("cannot encode state event", "error", err)
		return
	}
	if err := r.publisher.Publish(ctx, r.topic, msg); err != nil {
		r.logger.Error("cannot publish state event", "topic", r.topic, "revision", snap.Revision, "error", err)
		return
	}
	r.logger.Debug("state event published", "topic", r.topic, "revision", snap.Revision)
}
