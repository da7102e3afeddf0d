package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/appetiteclub/kds/pkg/kds"
	"github.com/appetiteclub/kds/pkg/remote"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/aquamarinepk/aqm"
	"golang.org/x/sync/singleflight"
)

const revalidateTimeout = remote.DefaultTimeout

// Fetcher performs raw GETs against the embedded server.
type Fetcher interface {
	Fetch(ctx context.Context, path string, header http.Header) (*remote.Response, error)
}

// Source tells where a load was answered from.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceNotModified Source = "not-modified"
	SourceCache       Source = "cache"
)

// Result describes a completed load. Applied is false when the store
// already held something newer.
type Result struct {
	Source  Source
	Token   store.Token
	Applied bool
}

// Client fetches menu, state, call list and sales summary and applies them
// to the store, backed by a ResponseCache.
type Client struct {
	remote Fetcher
	cache  ResponseCache
	store  *store.Store
	policy Policy
	now    func() time.Time
	logger aqm.Logger

	revalidate singleflight.Group
	wg         sync.WaitGroup
}

type Option func(*Client)

func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p }
}

func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(f Fetcher, cache ResponseCache, st *store.Store, logger aqm.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if cache == nil {
		cache = NewMemory()
	}
	c := &Client{
		remote: f,
		cache:  cache,
		store:  st,
		policy: DefaultPolicy(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Warm applies whatever the cache holds so the terminal has something to
// show before the first network round trip. The store clock is moved past
// every cached token first, so new fetches always win over cached ones.
func (c *Client) Warm(ctx context.Context) error {
	top, err := c.cache.MaxToken(ctx)
	if err != nil {
		return fmt.Errorf("read cached tokens: %w", err)
	}
	c.store.Clock().Observe(top)

	if e, ok, err := c.cache.Get(ctx, KeyMenu); err != nil {
		return fmt.Errorf("read cached menu: %w", err)
	} else if ok {
		if _, err := c.applyMenuEntry(e); err != nil {
			c.logger.Info("ignoring unreadable cached menu", "error", err)
		}
	}

	e, ok, err := c.cache.Get(ctx, KeyFullState)
	if err != nil {
		return fmt.Errorf("read cached state: %w", err)
	}
	if !ok {
		c.logger.Info("no cached state, waiting for network")
		return nil
	}
	if _, err := c.applyStateEntry(e); err != nil {
		c.logger.Info("ignoring unreadable cached state", "error", err)
	}
	return nil
}

// LoadMenu fetches the menu. Unless force is set the request carries the
// last seen ETag and a fresh cache entry answers immediately while the
// network revalidates it. A 304 leaves the store untouched.
func (c *Client) LoadMenu(ctx context.Context, force bool) (Result, error) {
	cached, hasCache, err := c.cache.Get(ctx, KeyMenu)
	if err != nil {
		c.logger.Error("menu cache read failed", "error", err)
		hasCache = false
	}

	if !force && hasCache && c.policy.fresh(KeyMenu, cached, c.now()) {
		applied, err := c.applyMenuEntry(cached)
		if err != nil {
			return Result{}, err
		}
		c.revalidateMenu()
		return Result{Source: SourceCache, Token: cached.Token, Applied: applied}, nil
	}

	res, err := c.fetchMenu(ctx, force)
	if err == nil {
		return res, nil
	}
	if !hasCache {
		return Result{}, err
	}

	c.logger.Info("menu fetch failed, using cached menu", "error", err)
	applied, decodeErr := c.applyMenuEntry(cached)
	if decodeErr != nil {
		return Result{}, err
	}
	return Result{Source: SourceCache, Token: cached.Token, Applied: applied}, nil
}

func (c *Client) fetchMenu(ctx context.Context, force bool) (Result, error) {
	token := c.store.Clock().Next()

	header := http.Header{}
	if !force {
		if etag := c.store.Snapshot().State.MenuETag; etag != "" {
			header.Set("If-None-Match", etag)
		}
	}

	resp, err := c.remote.Fetch(ctx, remote.PathMenu, header)
	if err != nil {
		return Result{}, err
	}

	switch resp.Status {
	case http.StatusNotModified:
		if err := c.cache.Touch(ctx, KeyMenu, c.now()); err != nil {
			c.logger.Error("menu cache touch failed", "error", err)
		}
		return Result{Source: SourceNotModified, Token: token}, nil
	case http.StatusOK:
	default:
		return Result{}, resp.Err()
	}

	menu, err := decodeMenu(resp.Body)
	if err != nil {
		return Result{}, err
	}
	etag := resp.Header.Get("ETag")

	c.put(ctx, Entry{Key: KeyMenu, Body: resp.Body, ETag: etag, Token: token})
	applied := c.store.ApplyMenu(token, menu, etag)
	c.logger.Debug("menu loaded", "items", len(menu), "etag", etag, "applied", applied)
	return Result{Source: SourceNetwork, Token: token, Applied: applied}, nil
}

func (c *Client) revalidateMenu() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _, _ = c.revalidate.Do(KeyMenu, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
			defer cancel()
			res, err := c.fetchMenu(ctx, false)
			if err != nil {
				c.logger.Debug("menu revalidation failed", "error", err)
			}
			return res, err
		})
	}()
}

// LoadState fetches /api/state. The light variant is used once a baseline
// exists; first load and force use the full variant.
func (c *Client) LoadState(ctx context.Context, force bool) (Result, error) {
	return c.loadState(ctx, force, false)
}

// RefreshState is the reload run after a push event: light once a baseline
// exists, but never answered from the freshness window, so the change that
// triggered it is always fetched.
func (c *Client) RefreshState(ctx context.Context) (Result, error) {
	return c.loadState(ctx, false, true)
}

func (c *Client) loadState(ctx context.Context, force, revalidate bool) (Result, error) {
	light := !force && c.store.Snapshot().State.Loaded
	key, path := KeyFullState, remote.PathState
	if light {
		key, path = KeyLightState, remote.PathLightState
	}

	cached, hasCache, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Error("state cache read failed", "key", key, "error", err)
		hasCache = false
	}

	if light && !revalidate && hasCache && c.policy.fresh(key, cached, c.now()) {
		applied, err := c.applyStateEntry(cached)
		if err != nil {
			return Result{}, err
		}
		return Result{Source: SourceCache, Token: cached.Token, Applied: applied}, nil
	}

	token := c.store.Clock().Next()
	payload, body, err := c.fetchState(ctx, path)
	if err != nil {
		if !hasCache {
			if key == KeyLightState {
				return c.fallbackState(ctx, KeyFullState, err)
			}
			return Result{}, err
		}
		c.logger.Info("state fetch failed, using cached state", "light", light, "error", err)
		applied, decodeErr := c.applyStateEntry(cached)
		if decodeErr != nil {
			return Result{}, err
		}
		return Result{Source: SourceCache, Token: cached.Token, Applied: applied}, nil
	}

	c.put(ctx, Entry{Key: key, Body: body, Token: token})
	applied := c.store.ApplyFullState(token, payload)
	return Result{Source: SourceNetwork, Token: token, Applied: applied}, nil
}

func (c *Client) fallbackState(ctx context.Context, key string, cause error) (Result, error) {
	e, ok, err := c.cache.Get(ctx, key)
	if err != nil || !ok {
		return Result{}, cause
	}
	applied, err := c.applyStateEntry(e)
	if err != nil {
		return Result{}, cause
	}
	return Result{Source: SourceCache, Token: e.Token, Applied: applied}, nil
}

func (c *Client) fetchState(ctx context.Context, path string) (kds.StatePayload, []byte, error) {
	var payload kds.StatePayload
	resp, err := c.remote.Fetch(ctx, path, nil)
	if err != nil {
		return payload, nil, err
	}
	if resp.Status != http.StatusOK {
		return payload, nil, resp.Err()
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return payload, nil, fmt.Errorf("decode state: %w", err)
	}
	return payload, resp.Body, nil
}

// LoadCallList polls the call list. The result replaces the mirrored list
// unless a push patch arrived after the poll was issued.
func (c *Client) LoadCallList(ctx context.Context) (Result, error) {
	token := c.store.Clock().Next()
	resp, err := c.remote.Fetch(ctx, remote.PathCallList, nil)
	if err != nil {
		return Result{}, err
	}
	if resp.Status != http.StatusOK {
		return Result{}, resp.Err()
	}
	var out kds.CallListResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return Result{}, fmt.Errorf("decode call list: %w", err)
	}
	applied := c.store.ReplaceCallList(token, out.CallList)
	return Result{Source: SourceNetwork, Token: token, Applied: applied}, nil
}

// LoadSalesSummary fetches the running totals of the current session,
// falling back to the cached copy for the same session.
func (c *Client) LoadSalesSummary(ctx context.Context, rebuild bool) (kds.SalesSummary, error) {
	sessionID := c.store.Snapshot().State.Session.SessionID
	key := SalesSummaryKey(sessionID)

	path := remote.PathSalesSummary
	if rebuild {
		path += "?rebuild=1"
	}

	token := c.store.Clock().Next()
	summary, body, err := c.fetchSummary(ctx, path)
	if err == nil {
		c.put(ctx, Entry{Key: SalesSummaryKey(summary.SessionID), Body: body, Token: token})
		c.store.Dispatch(store.SalesSummaryLoaded{Summary: summary})
		return summary, nil
	}

	cached, ok, cacheErr := c.cache.Get(ctx, key)
	if cacheErr != nil || !ok {
		return kds.SalesSummary{}, err
	}
	if decodeErr := json.Unmarshal(cached.Body, &summary); decodeErr != nil {
		return kds.SalesSummary{}, err
	}
	c.logger.Info("sales summary fetch failed, using cached summary", "error", err)
	c.store.Dispatch(store.SalesSummaryLoaded{Summary: summary})
	return summary, nil
}

func (c *Client) fetchSummary(ctx context.Context, path string) (kds.SalesSummary, []byte, error) {
	var out kds.SalesSummary
	resp, err := c.remote.Fetch(ctx, path, nil)
	if err != nil {
		return out, nil, err
	}
	if resp.Status != http.StatusOK {
		return out, nil, resp.Err()
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, nil, fmt.Errorf("decode sales summary: %w", err)
	}
	return out, resp.Body, nil
}

// Invalidate drops every cached response, used after a system reset.
func (c *Client) Invalidate(ctx context.Context) error {
	return c.cache.Clear(ctx)
}

// Close waits for background revalidations.
func (c *Client) Close() {
	c.wg.Wait()
}

func (c *Client) put(ctx context.Context, e Entry) {
	e.StoredAt = c.now()
	if err := c.cache.Put(ctx, e); err != nil {
		c.logger.Error("cache write failed", "key", e.Key, "error", err)
	}
}

func (c *Client) applyMenuEntry(e Entry) (bool, error) {
	menu, err := decodeMenu(e.Body)
	if err != nil {
		return false, err
	}
	return c.store.ApplyMenu(e.Token, menu, e.ETag), nil
}

func (c *Client) applyStateEntry(e Entry) (bool, error) {
	var payload kds.StatePayload
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return false, fmt.Errorf("decode cached state: %w", err)
	}
	return c.store.ApplyFullState(e.Token, payload), nil
}

func decodeMenu(body []byte) (kds.Menu, error) {
	var out kds.MenuResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode menu: %w", err)
	}
	if out.Menu == nil {
		out.Menu = kds.Menu{}
	}
	return out.Menu, nil
}
