package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/page"
	"github.com/appetiteclub/kds/pkg/kds"
	"github.com/appetiteclub/kds/pkg/remote"
	"github.com/appetiteclub/kds/services/terminal/internal/archive"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/appetiteclub/kds/services/terminal/internal/submit"
	"github.com/go-chi/chi/v5"
)

type kickCounter struct{ n int }

func (k *kickCounter) Kick() { k.n++ }

func newTestRouter(t *testing.T) (http.Handler, *fixture, *kickCounter) {
	t.Helper()
	f := newFixture(t)
	kick := &kickCounter{}
	h := NewHandler(f.store, f.coord, f.submit, kick, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, f, kick
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body %s: %v", w.Body.String(), err)
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("invalid data %s: %v", resp.Data, err)
	}
}

func TestNewHandler(t *testing.T) {
	tests := []struct {
		name   string
		status StatusReporter
		kick   Kicker
	}{
		{name: "withAllDependencies", status: &MockSubmitter{}, kick: &kickCounter{}},
		{name: "withoutOptionalDependencies"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(store.New(nil, nil), nil, tt.status, tt.kick, nil)
			if h == nil {
				t.Fatal("NewHandler() returned nil")
			}
			r := chi.NewRouter()
			h.RegisterRoutes(r)
		})
	}
}

func TestHandlerGetSnapshot(t *testing.T) {
	r, f, _ := newTestRouter(t)
	line := kds.Set{MainSKU: "M001", PriceMode: kds.PriceModeNormal, SideSKUs: []string{"S001"}, Qty: 2}
	if err := f.store.MutateCart(store.CartAdd{Line: line}); err != nil {
		t.Fatal(err)
	}

	w := do(t, r, http.MethodGet, "/snapshot", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var v View
	decodeData(t, w, &v)
	if v.Revision != f.store.Snapshot().Revision {
		t.Errorf("revision = %d, want %d", v.Revision, f.store.Snapshot().Revision)
	}
	if v.Page != "order" {
		t.Errorf("page = %q, want order", v.Page)
	}
	if len(v.Cart) != 1 || v.Cart[0].Type != kds.KindSet {
		t.Fatalf("cart = %+v", v.Cart)
	}
	if v.Pricing.Total != (700+150)*2 {
		t.Errorf("total = %d, want %d", v.Pricing.Total, (700+150)*2)
	}
	if v.Submit.MaxAttempts != submit.DefaultAttempts {
		t.Errorf("submit status = %+v", v.Submit)
	}
}

func TestHandlerSnapshotOrderElapsed(t *testing.T) {
	st := store.New(nil, nil)
	st.ApplyFullState(st.Clock().Next(), kds.StatePayload{
		Orders: []kds.Order{
			{OrderNo: "0001", Ts: 0},
			{OrderNo: "0002", Ts: kds.UnsetEpoch},
			{OrderNo: "0003", Ts: 1700000000, Items: []kds.OrderItem{
				{SKU: "M001", Qty: 2, UnitPriceApplied: 800},
				{SKU: "S001", Qty: 1, UnitPriceApplied: 150},
			}},
		},
	})
	h := NewHandler(st, nil, nil, nil, nil)
	h.now = func() time.Time { return time.Unix(1700000090, 0) }
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	w := do(t, r, http.MethodGet, "/snapshot", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var v struct {
		Orders []map[string]interface{} `json:"orders"`
	}
	decodeData(t, w, &v)
	if len(v.Orders) != 3 {
		t.Fatalf("orders = %d, want 3", len(v.Orders))
	}

	tests := []struct {
		name        string
		idx         int
		wantElapsed interface{}
		wantTotal   float64
	}{
		{name: "zeroTimestamp", idx: 0, wantElapsed: nil},
		{name: "unsetEpoch", idx: 1, wantElapsed: nil},
		{name: "knownTimestamp", idx: 2, wantElapsed: float64(90), wantTotal: 1750},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := v.Orders[tt.idx]
			if got := o["elapsedSec"]; got != tt.wantElapsed {
				t.Errorf("elapsedSec = %v, want %v", got, tt.wantElapsed)
			}
			if got := o["total"]; got != tt.wantTotal {
				t.Errorf("total = %v, want %v", got, tt.wantTotal)
			}
			if o["orderNo"] == "" {
				t.Error("order fields not inlined")
			}
		})
	}
}

func TestHandlerWaitSnapshot(t *testing.T) {
	t.Run("returnsOnChange", func(t *testing.T) {
		r, f, _ := newTestRouter(t)
		since := f.store.Snapshot().Revision

		go func() {
			time.Sleep(10 * time.Millisecond)
			f.store.SetOnline(true)
		}()

		w := do(t, r, http.MethodGet, fmt.Sprintf("/snapshot/wait?since=%d", since), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var v View
		decodeData(t, w, &v)
		if v.Revision <= since || !v.Online {
			t.Errorf("revision = %d online = %v, want > %d and online", v.Revision, v.Online, since)
		}
	})

	t.Run("timesOutWithCurrent", func(t *testing.T) {
		f := newFixture(t)
		h := NewHandler(f.store, f.coord, nil, nil, nil)
		h.waitTimeout = 10 * time.Millisecond
		r := chi.NewRouter()
		h.RegisterRoutes(r)
		rev := f.store.Snapshot().Revision

		w := do(t, r, http.MethodGet, fmt.Sprintf("/snapshot/wait?since=%d", rev), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var v View
		decodeData(t, w, &v)
		if v.Revision != rev {
			t.Errorf("revision = %d, want %d", v.Revision, rev)
		}
	})

	t.Run("invalidSince", func(t *testing.T) {
		r, _, _ := newTestRouter(t)
		w := do(t, r, http.MethodGet, "/snapshot/wait?since=abc", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestHandlerSetPage(t *testing.T) {
	tests := []struct {
		name      string
		page      string
		wantCode  int
		wantPage  page.Page
		wantKicks int
	}{
		{name: "kitchen", page: "kitchen", wantCode: http.StatusOK, wantPage: page.Pages.Kitchen},
		{name: "callKicksPoller", page: "CALL", wantCode: http.StatusOK, wantPage: page.Pages.Call, wantKicks: 1},
		{name: "unknown", page: "lobby", wantCode: http.StatusBadRequest, wantPage: page.Pages.Order},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, f, kick := newTestRouter(t)

			w := do(t, r, http.MethodPost, "/page", map[string]string{"page": tt.page})

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if got := f.store.Snapshot().State.Page; got != tt.wantPage {
				t.Errorf("page = %v, want %v", got, tt.wantPage)
			}
			if kick.n != tt.wantKicks {
				t.Errorf("kicks = %d, want %d", kick.n, tt.wantKicks)
			}
		})
	}
}

func TestHandlerCart(t *testing.T) {
	r, f, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/cart/lines", kds.LineDTO{Type: kds.KindMainSingle, MainSKU: "M001", Qty: 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPost, "/cart/lines", kds.LineDTO{Type: kds.KindSideSingle, SideSKU: "S001"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d", w.Code)
	}

	w = do(t, r, http.MethodPatch, "/cart/lines/1", map[string]float64{"qty": 3.9})
	if w.Code != http.StatusOK {
		t.Fatalf("set qty status = %d", w.Code)
	}
	var v View
	decodeData(t, w, &v)
	if v.Pricing.Total != 700+300*3 {
		t.Errorf("total = %d, want %d", v.Pricing.Total, 700+300*3)
	}

	w = do(t, r, http.MethodDelete, "/cart/lines/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	if n := len(f.store.Snapshot().State.Cart); n != 1 {
		t.Errorf("cart lines = %d, want 1", n)
	}

	w = do(t, r, http.MethodPost, "/cart/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	if n := len(f.store.Snapshot().State.Cart); n != 0 {
		t.Errorf("cart lines = %d, want 0", n)
	}
}

func TestHandlerCartErrors(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		wantCode int
	}{
		{name: "unknownType", method: http.MethodPost, path: "/cart/lines", body: kds.LineDTO{Type: "COMBO"}, wantCode: http.StatusBadRequest},
		{name: "missingSku", method: http.MethodPost, path: "/cart/lines", body: kds.LineDTO{Type: kds.KindSet}, wantCode: http.StatusBadRequest},
		{name: "removeMissing", method: http.MethodDelete, path: "/cart/lines/5", wantCode: http.StatusNotFound},
		{name: "badIndex", method: http.MethodDelete, path: "/cart/lines/x", wantCode: http.StatusBadRequest},
		{name: "qtyMissing", method: http.MethodPatch, path: "/cart/lines/0", body: map[string]float64{"qty": 2}, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRouter(t)
			w := do(t, r, tt.method, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestHandlerSubmitOrder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "created", wantCode: http.StatusCreated, wantBody: "0042"},
		{name: "emptyCart", err: submit.ErrEmptyCart, wantCode: http.StatusBadRequest},
		{name: "inFlight", err: submit.ErrInFlight, wantCode: http.StatusConflict},
		{
			name:     "serverMessageSurfaced",
			err:      fmt.Errorf("%w: %w", submit.ErrSubmissionFailed, &remote.Error{Status: 409, Message: "printer paper out"}),
			wantCode: http.StatusBadGateway,
			wantBody: "printer paper out",
		},
		{name: "transportFailure", err: fmt.Errorf("%w: %w", submit.ErrSubmissionFailed, errors.New("dial tcp")), wantCode: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, f, _ := newTestRouter(t)
			f.submit.SubmitFunc = func(ctx context.Context) (string, error) {
				if tt.err != nil {
					return "", tt.err
				}
				return "0042", nil
			}

			w := do(t, r, http.MethodPost, "/orders/submit", nil)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandlerOrders(t *testing.T) {
	r, f, _ := newTestRouter(t)
	f.archive.Orders = map[string]archive.Resolved{
		"0099": {Order: kds.Order{OrderNo: "0099", Status: "DELIVERED"}, Source: archive.SourceArchived},
	}
	f.archive.Recent = []kds.Order{{OrderNo: "0099"}, {OrderNo: "0001"}}

	w := do(t, r, http.MethodGet, "/orders/0099", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var resolved archive.Resolved
	decodeData(t, w, &resolved)
	if resolved.Source != archive.SourceArchived {
		t.Errorf("source = %q, want archived", resolved.Source)
	}

	if w := do(t, r, http.MethodGet, "/orders/1234", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing order status = %d, want 404", w.Code)
	}

	w = do(t, r, http.MethodGet, "/orders/recent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recent status = %d", w.Code)
	}
	var recent struct {
		Orders []kds.Order `json:"orders"`
	}
	decodeData(t, w, &recent)
	if len(recent.Orders) != 2 {
		t.Errorf("recent = %d orders, want 2", len(recent.Orders))
	}
}

func TestHandlerOrderActions(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		body      interface{}
		awaitErr  error
		remoteErr error
		wantCode  int
		wantCall  string
	}{
		{name: "status", path: "/orders/0001/status", body: map[string]string{"status": "ready"}, wantCode: http.StatusOK, wantCall: "status 0001 READY"},
		{name: "invalidStatus", path: "/orders/0001/status", body: map[string]string{"status": "lost"}, wantCode: http.StatusBadRequest},
		{name: "cancelWithReason", path: "/orders/0001/cancel", body: map[string]string{"reason": "duplicate"}, wantCode: http.StatusOK, wantCall: "cancel 0001 duplicate"},
		{name: "cancelWithoutBody", path: "/orders/0001/cancel", wantCode: http.StatusOK, wantCall: "cancel 0001 "},
		{name: "reprint", path: "/orders/0001/reprint", wantCode: http.StatusOK, wantCall: "reprint 0001"},
		{name: "cooked", path: "/orders/0001/cooked", wantCode: http.StatusOK, wantCall: "cooked 0001"},
		{name: "picked", path: "/orders/0001/picked", wantCode: http.StatusOK, wantCall: "picked 0001"},
		{name: "abortedBySubmission", path: "/orders/0001/reprint", awaitErr: submit.ErrSubmissionFailed, wantCode: http.StatusConflict},
		{name: "remoteError", path: "/orders/0001/reprint", remoteErr: &remote.Error{Status: 404, Message: "not found"}, wantCode: http.StatusBadGateway, wantCall: "reprint 0001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, f, _ := newTestRouter(t)
			f.submit.AwaitErr = tt.awaitErr
			f.remote.Err = tt.remoteErr

			w := do(t, r, http.MethodPost, tt.path, tt.body)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			calls := f.remote.Calls()
			if tt.wantCall == "" && len(calls) != 0 {
				t.Errorf("unexpected remote calls %q", calls)
			}
			if tt.wantCall != "" && (len(calls) != 1 || calls[0] != tt.wantCall) {
				t.Errorf("remote calls = %q, want [%q]", calls, tt.wantCall)
			}
		})
	}
}

func TestHandlerSessionAndSystem(t *testing.T) {
	r, f, _ := newTestRouter(t)

	if w := do(t, r, http.MethodPost, "/session/end", nil); w.Code != http.StatusOK {
		t.Fatalf("session end status = %d", w.Code)
	}
	if len(f.store.Snapshot().State.Orders) != 0 {
		t.Error("orders kept after session end")
	}

	if w := do(t, r, http.MethodPost, "/system/reset", nil); w.Code != http.StatusOK {
		t.Fatalf("system reset status = %d", w.Code)
	}
	if len(f.store.Snapshot().State.Menu) != 0 {
		t.Error("menu kept after system reset")
	}

	f.remote.Err = &remote.Error{Status: 500, Message: "busy"}
	if w := do(t, r, http.MethodPost, "/session/end", nil); w.Code != http.StatusBadGateway {
		t.Errorf("failed session end status = %d, want 502", w.Code)
	}
}

func TestHandlerSalesSummary(t *testing.T) {
	r, f, _ := newTestRouter(t)
	f.loader.Summary = kds.SalesSummary{SessionID: "s1", NetSales: 12000, Currency: "JPY"}

	w := do(t, r, http.MethodGet, "/sales/summary?rebuild=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got kds.SalesSummary
	decodeData(t, w, &got)
	if got.NetSales != 12000 {
		t.Errorf("net sales = %d", got.NetSales)
	}

	f.loader.SummaryErr = errors.New("offline")
	if w := do(t, r, http.MethodGet, "/sales/summary", nil); w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestHandlerSettings(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     interface{}
		wantCode int
		check    func(t *testing.T, st store.State)
	}{
		{
			name:     "presale",
			path:     "/settings/presale",
			body:     map[string]bool{"enabled": true},
			wantCode: http.StatusAccepted,
			check: func(t *testing.T, st store.State) {
				if !st.Settings.PresaleEnabled {
					t.Error("presale not enabled")
				}
			},
		},
		{
			name:     "qrprint",
			path:     "/settings/qrprint",
			body:     kds.QRPrint{Enabled: true, Content: "ｗｗｗ"},
			wantCode: http.StatusAccepted,
			check: func(t *testing.T, st store.State) {
				if st.Settings.QRPrint.Content != "www" {
					t.Errorf("content = %q", st.Settings.QRPrint.Content)
				}
			},
		},
		{
			name:     "numberingInvalid",
			path:     "/settings/numbering",
			body:     kds.Numbering{Min: 9, Max: 1},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "productUnknown",
			path:     "/settings/products/Z001",
			body:     remote.ProductEdit{Name: "x"},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "product",
			path:     "/settings/products/M001",
			body:     remote.ProductEdit{Name: "Yakisoba L", Active: true, PriceNormal: 800},
			wantCode: http.StatusAccepted,
			check: func(t *testing.T, st store.State) {
				item, _ := st.Menu.Find("M001")
				if item.PriceNormal != 800 || item.Name != "Yakisoba L" {
					t.Errorf("item = %+v", item)
				}
			},
		},
		{
			name:     "malformed",
			path:     "/settings/chinchiro",
			body:     "not an object",
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, f, _ := newTestRouter(t)
			w := do(t, r, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.check != nil {
				tt.check(t, f.store.Snapshot().State)
			}
		})
	}
}
