package cache

import (
	"context"
	"sync"
	"time"

	"github.com/appetiteclub/kds/services/terminal/internal/store"
)

// Cache keys.
const (
	KeyMenu       = "menu"
	KeyLightState = "state.light"
	KeyFullState  = "state.full"
	keySales      = "sales.summary:"
)

// SalesSummaryKey scopes a cached sales summary to its session.
func SalesSummaryKey(sessionID string) string {
	return keySales + sessionID
}

// Entry is one cached response body. Token is the fetch token the body was
// obtained with; it decides whether the entry may still be applied.
type Entry struct {
	Key      string
	Body     []byte
	ETag     string
	Token    store.Token
	StoredAt time.Time
}

// Age reports how long ago the entry was stored or last revalidated.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// ResponseCache is the local persistent cache. Implementations must be safe
// for concurrent use.
type ResponseCache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	// Touch marks an entry revalidated without changing its body.
	Touch(ctx context.Context, key string, at time.Time) error
	// MaxToken is the highest token stored, used to seed the clock.
	MaxToken(ctx context.Context) (store.Token, error)
	Clear(ctx context.Context) error
}

// Memory is a ResponseCache that lives as long as the process.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	e.Body = append([]byte(nil), e.Body...)
	return e, true, nil
}

func (m *Memory) Put(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Body = append([]byte(nil), entry.Body...)
	m.entries[entry.Key] = entry
	return nil
}

func (m *Memory) Touch(ctx context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.StoredAt = at
		m.entries[key] = e
	}
	return nil
}

func (m *Memory) MaxToken(ctx context.Context) (store.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var top store.Token
	for _, e := range m.entries {
		if e.Token > top {
			top = e.Token
		}
	}
	return top, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}
