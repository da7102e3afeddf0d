// Package archive answers order lookups across the active window and the
// session's archive, active first.
package archive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/appetiteclub/kds/pkg/kds"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/aquamarinepk/aqm"
	"golang.org/x/sync/singleflight"
)

// RecentLimit caps the merged list shown for cancel and reprint.
const RecentLimit = 20

// LoadTimeout bounds one archive fetch shared by concurrent callers.
const LoadTimeout = 10 * time.Second

type Source string

const (
	SourceActive   Source = "active"
	SourceArchived Source = "archived"
)

type Resolved struct {
	Order  kds.Order `json:"order"`
	Source Source    `json:"source"`
}

// Fetcher loads the archive of one session.
type Fetcher interface {
	Archive(ctx context.Context, sessionID string) (kds.ArchiveResponse, error)
}

type Merger struct {
	store  *store.Store
	remote Fetcher
	logger aqm.Logger
	loads  singleflight.Group
}

func NewMerger(st *store.Store, remote Fetcher, logger aqm.Logger) *Merger {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Merger{store: st, remote: remote, logger: logger}
}

// Lookup resolves orderNo against what is already in memory.
func (m *Merger) Lookup(orderNo string) (Resolved, bool) {
	return lookup(m.store.Snapshot().State, orderNo)
}

// GetOrder resolves orderNo, loading the archive of the current session
// when the order is not active.
func (m *Merger) GetOrder(ctx context.Context, orderNo string) (Resolved, bool) {
	if r, ok := m.Lookup(orderNo); ok {
		return r, true
	}
	if err := m.Ensure(ctx, false); err != nil {
		m.logger.Error("cannot load archive", "order_no", orderNo, "error", err)
		return Resolved{}, false
	}
	return m.Lookup(orderNo)
}

// Ensure loads the archive of the current session unless it is already
// loaded. force reloads it. Concurrent loads of one session share a fetch.
func (m *Merger) Ensure(ctx context.Context, force bool) error {
	st := m.store.Snapshot().State
	sessionID := st.Session.SessionID
	if sessionID == "" {
		return nil
	}
	if !force && st.Archive.Fetched && st.Archive.SessionID == sessionID {
		return nil
	}

	key := sessionID
	if force {
		key = "force:" + sessionID
	}
	// the shared load outlives any single waiter
	ch := m.loads.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
		defer cancel()
		return nil, m.load(loadCtx, sessionID)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh reloads the archive, used after cancel or reprint on an order
// outside the active set.
func (m *Merger) Refresh(ctx context.Context) error {
	return m.Ensure(ctx, true)
}

func (m *Merger) load(ctx context.Context, sessionID string) error {
	m.store.Dispatch(store.ArchiveLoading{SessionID: sessionID})

	resp, err := m.remote.Archive(ctx, sessionID)
	if err != nil {
		m.store.Dispatch(store.ArchiveFailed{SessionID: sessionID})
		return fmt.Errorf("archive %s: %w", sessionID, err)
	}

	// the server answers with the session it actually archived
	if resp.SessionID != "" && resp.SessionID != sessionID {
		m.store.Dispatch(store.ArchiveFailed{SessionID: sessionID})
		return fmt.Errorf("archive answered for session %s, want %s", resp.SessionID, sessionID)
	}

	m.store.Dispatch(store.ArchiveLoaded{SessionID: sessionID, Orders: resp.Orders})
	m.logger.Debug("archive loaded", "session_id", sessionID, "orders", len(resp.Orders))
	return nil
}

// RecentOrders merges active and archived orders by orderNo, active
// winning, newest first, capped at RecentLimit.
func (m *Merger) RecentOrders(ctx context.Context) []kds.Order {
	if err := m.Ensure(ctx, false); err != nil {
		m.logger.Error("recent orders without archive", "error", err)
	}
	return Merge(m.store.Snapshot().State, RecentLimit)
}

// Merge is the pure part of RecentOrders.
func Merge(st store.State, limit int) []kds.Order {
	byNo := make(map[string]kds.Order, len(st.Orders)+len(st.Archive.Orders))
	if st.Archive.Fetched && st.Archive.SessionID == st.Session.SessionID {
		for _, o := range st.Archive.Orders {
			byNo[o.OrderNo] = o
		}
	}
	for _, o := range st.Orders {
		byNo[o.OrderNo] = o
	}

	out := make([]kds.Order, 0, len(byNo))
	for _, o := range byNo {
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ts != out[j].Ts {
			return out[i].Ts > out[j].Ts
		}
		return out[i].OrderNo > out[j].OrderNo
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func lookup(st store.State, orderNo string) (Resolved, bool) {
	if o, ok := st.ActiveOrder(orderNo); ok {
		return Resolved{Order: o, Source: SourceActive}, true
	}
	if o, ok := st.ArchivedOrder(orderNo); ok {
		return Resolved{Order: o, Source: SourceArchived}, true
	}
	return Resolved{}, false
}
