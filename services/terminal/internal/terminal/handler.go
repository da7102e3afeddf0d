package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/orderstatus"
	"github.com/appetiteclub/kds/pkg/enums/page"
	"github.com/appetiteclub/kds/pkg/kds"
	"github.com/appetiteclub/kds/pkg/remote"
	"github.com/appetiteclub/kds/services/terminal/internal/pricing"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/appetiteclub/kds/services/terminal/internal/submit"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/telemetry"
	"github.com/go-chi/chi/v5"
)

const (
	MaxBodyBytes       = 1 << 20
	DefaultWaitTimeout = 25 * time.Second
)

// StatusReporter exposes the submission state next to the cart.
type StatusReporter interface {
	Status() submit.Status
}

// Kicker triggers an out-of-band poll.
type Kicker interface {
	Kick()
}

// View is the snapshot served to the renderer.
type View struct {
	Revision     uint64              `json:"revision"`
	Page         string              `json:"page"`
	Online       bool                `json:"online"`
	Loaded       bool                `json:"loaded"`
	Menu         kds.Menu            `json:"menu"`
	Settings     kds.Settings        `json:"settings"`
	Session      kds.Session         `json:"session"`
	Printer      kds.PrinterStatus   `json:"printer"`
	Orders       []OrderView         `json:"orders"`
	CallList     []kds.CallListEntry `json:"callList"`
	Cart         []kds.LineDTO       `json:"cart"`
	Pricing      pricing.Cart        `json:"pricing"`
	SalesSummary *kds.SalesSummary   `json:"salesSummary,omitempty"`
	Submit       submit.Status       `json:"submit"`
}

// OrderView adds the derived fields the renderer shows on an order card.
// ElapsedSec is omitted while the order timestamp is unknown.
type OrderView struct {
	kds.Order
	ElapsedSec *int64 `json:"elapsedSec,omitempty"`
	Total      int    `json:"total"`
}

func orderViews(orders []kds.Order, now time.Time) []OrderView {
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		v := OrderView{Order: o, Total: o.Total()}
		if d, ok := o.Elapsed(now); ok {
			sec := int64(d / time.Second)
			v.ElapsedSec = &sec
		}
		out = append(out, v)
	}
	return out
}

type Handler struct {
	store       *store.Store
	coord       *Coordinator
	status      StatusReporter
	callList    Kicker
	logger      aqm.Logger
	tlm         *telemetry.HTTP
	waitTimeout time.Duration
	now         func() time.Time
}

func NewHandler(st *store.Store, coord *Coordinator, status StatusReporter, callList Kicker, logger aqm.Logger) *Handler {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Handler{
		store:       st,
		coord:       coord,
		status:      status,
		callList:    callList,
		logger:      logger,
		tlm:         telemetry.NewHTTP(),
		waitTimeout: DefaultWaitTimeout,
		now:         time.Now,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/snapshot", h.GetSnapshot)
	r.Get("/snapshot/wait", h.WaitSnapshot)
	r.Post("/page", h.SetPage)

	r.Route("/cart", func(r chi.Router) {
		r.Post("/lines", h.AddCartLine)
		r.Patch("/lines/{idx}", h.SetCartQty)
		r.Delete("/lines/{idx}", h.RemoveCartLine)
		r.Post("/clear", h.ClearCart)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/submit", h.SubmitOrder)
		r.Get("/recent", h.RecentOrders)
		r.Get("/{orderNo}", h.GetOrder)
		r.Post("/{orderNo}/status", h.MarkStatus)
		r.Post("/{orderNo}/cancel", h.CancelOrder)
		r.Post("/{orderNo}/reprint", h.ReprintOrder)
		r.Post("/{orderNo}/cooked", h.MarkCooked)
		r.Post("/{orderNo}/picked", h.MarkPicked)
	})

	r.Post("/session/end", h.EndSession)
	r.Post("/system/reset", h.ResetSystem)
	r.Get("/sales/summary", h.SalesSummary)

	r.Route("/settings", func(r chi.Router) {
		r.Post("/presale", h.SetPresale)
		r.Post("/store", h.SetStoreInfo)
		r.Post("/numbering", h.SetNumbering)
		r.Post("/chinchiro", h.SetChinchiro)
		r.Post("/qrprint", h.SetQRPrint)
		r.Post("/products/{sku}", h.EditProduct)
	})
}

func (h *Handler) log(r *http.Request) aqm.Logger {
	return h.logger.With("request_id", aqm.RequestIDFrom(r.Context()))
}

func (h *Handler) view(snap store.Snapshot) View {
	st := snap.State
	cart := make([]kds.LineDTO, 0, len(st.Cart))
	for _, line := range st.Cart {
		cart = append(cart, kds.ToDTO(line))
	}
	v := View{
		Revision:     snap.Revision,
		Page:         st.Page.Code(),
		Online:       st.Online,
		Loaded:       st.Loaded,
		Menu:         st.Menu,
		Settings:     st.Settings,
		Session:      st.Session,
		Printer:      st.Printer,
		Orders:       orderViews(st.Orders, h.now()),
		CallList:     st.CallList,
		Cart:         cart,
		Pricing:      pricing.PriceCart(st.Menu, st.Cart, st.Settings.Chinchiro),
		SalesSummary: st.SalesSummary,
	}
	if h.status != nil {
		v.Submit = h.status.Status()
	}
	return v
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetSnapshot")
	defer finish()

	aqm.Respond(w, http.StatusOK, h.view(h.store.Snapshot()), nil)
}

// WaitSnapshot long-polls until the revision passes ?since. When nothing
// changes before the wait timeout the current snapshot is returned.
func (h *Handler) WaitSnapshot(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.WaitSnapshot")
	defer finish()

	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			aqm.RespondError(w, http.StatusBadRequest, "Invalid since revision")
			return
		}
		since = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	snap, err := h.store.Wait(ctx, since)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		snap = h.store.Snapshot()
	}
	aqm.Respond(w, http.StatusOK, h.view(snap), nil)
}

type pageRequest struct {
	Page string `json:"page"`
}

func (h *Handler) SetPage(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetPage")
	defer finish()

	var req pageRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, ok := page.Parse(req.Page)
	if !ok {
		aqm.RespondError(w, http.StatusBadRequest, "Unknown page")
		return
	}

	h.store.SetPage(p)
	if p == page.Pages.Call && h.callList != nil {
		h.callList.Kick()
	}
	aqm.Respond(w, http.StatusOK, map[string]string{"page": p.Code()}, nil)
}

func (h *Handler) AddCartLine(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.AddCartLine")
	defer finish()

	var dto kds.LineDTO
	if !h.decode(w, r, &dto) {
		return
	}
	line, err := kds.FromDTO(dto)
	if err != nil {
		aqm.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.MutateCart(store.CartAdd{Line: line}); err != nil {
		h.respondCartError(w, err)
		return
	}
	aqm.Respond(w, http.StatusCreated, h.view(h.store.Snapshot()), nil)
}

type qtyRequest struct {
	Qty float64 `json:"qty"`
}

func (h *Handler) SetCartQty(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetCartQty")
	defer finish()

	idx, ok := lineIndex(w, r)
	if !ok {
		return
	}
	var req qtyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.store.MutateCart(store.CartSetQty{Index: idx, Qty: req.Qty}); err != nil {
		h.respondCartError(w, err)
		return
	}
	aqm.Respond(w, http.StatusOK, h.view(h.store.Snapshot()), nil)
}

func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RemoveCartLine")
	defer finish()

	idx, ok := lineIndex(w, r)
	if !ok {
		return
	}
	if err := h.store.MutateCart(store.CartRemove{Index: idx}); err != nil {
		h.respondCartError(w, err)
		return
	}
	aqm.Respond(w, http.StatusOK, h.view(h.store.Snapshot()), nil)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ClearCart")
	defer finish()

	if err := h.store.MutateCart(store.CartClear{}); err != nil {
		h.respondCartError(w, err)
		return
	}
	aqm.Respond(w, http.StatusOK, h.view(h.store.Snapshot()), nil)
}

func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SubmitOrder")
	defer finish()
	log := h.log(r)

	orderNo, err := h.coord.Submit(r.Context())
	switch {
	case err == nil:
		aqm.Respond(w, http.StatusCreated, map[string]string{"orderNo": orderNo}, nil)
	case errors.Is(err, submit.ErrEmptyCart):
		aqm.RespondError(w, http.StatusBadRequest, "Cart is empty")
	case errors.Is(err, submit.ErrInFlight):
		aqm.RespondError(w, http.StatusConflict, "Order submission already in progress")
	default:
		log.Errorf("order submission failed: %v", err)
		h.respondRemoteError(w, err, "Could not submit order")
	}
}

func (h *Handler) RecentOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RecentOrders")
	defer finish()

	aqm.Respond(w, http.StatusOK, map[string]interface{}{
		"orders": h.coord.RecentOrders(r.Context()),
	}, nil)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetOrder")
	defer finish()

	orderNo := chi.URLParam(r, "orderNo")
	resolved, ok := h.coord.GetOrder(r.Context(), orderNo)
	if !ok {
		aqm.RespondError(w, http.StatusNotFound, "Order not found")
		return
	}
	aqm.Respond(w, http.StatusOK, resolved, nil)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) MarkStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.MarkStatus")
	defer finish()

	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, ok := orderstatus.Parse(req.Status)
	if !ok {
		aqm.RespondError(w, http.StatusBadRequest, "Invalid order status")
		return
	}
	orderNo := chi.URLParam(r, "orderNo")
	h.orderAction(w, r, "status", func(ctx context.Context) error {
		return h.coord.MarkStatus(ctx, orderNo, status)
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CancelOrder")
	defer finish()

	var req cancelRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	orderNo := chi.URLParam(r, "orderNo")
	h.orderAction(w, r, "cancel", func(ctx context.Context) error {
		return h.coord.Cancel(ctx, orderNo, req.Reason)
	})
}

func (h *Handler) ReprintOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ReprintOrder")
	defer finish()

	orderNo := chi.URLParam(r, "orderNo")
	h.orderAction(w, r, "reprint", func(ctx context.Context) error {
		return h.coord.Reprint(ctx, orderNo)
	})
}

func (h *Handler) MarkCooked(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.MarkCooked")
	defer finish()

	orderNo := chi.URLParam(r, "orderNo")
	h.orderAction(w, r, "cooked", func(ctx context.Context) error {
		return h.coord.MarkCooked(ctx, orderNo)
	})
}

func (h *Handler) MarkPicked(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.MarkPicked")
	defer finish()

	orderNo := chi.URLParam(r, "orderNo")
	h.orderAction(w, r, "picked", func(ctx context.Context) error {
		return h.coord.MarkPicked(ctx, orderNo)
	})
}

func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request, name string, act func(context.Context) error) {
	if err := act(r.Context()); err != nil {
		h.log(r).Errorf("cannot %s order: %v", name, err)
		if errors.Is(err, ErrAborted) {
			aqm.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		h.respondRemoteError(w, err, fmt.Sprintf("Could not %s order", name))
		return
	}
	aqm.Respond(w, http.StatusOK, map[string]string{"orderNo": chi.URLParam(r, "orderNo")}, nil)
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.EndSession")
	defer finish()

	if err := h.coord.EndSession(r.Context()); err != nil {
		h.log(r).Errorf("cannot end session: %v", err)
		h.respondRemoteError(w, err, "Could not end session")
		return
	}
	aqm.Respond(w, http.StatusOK, h.view(h.store.Snapshot()), nil)
}

func (h *Handler) ResetSystem(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ResetSystem")
	defer finish()

	if err := h.coord.ResetSystem(r.Context()); err != nil {
		h.log(r).Errorf("cannot reset system: %v", err)
		h.respondRemoteError(w, err, "Could not reset system")
		return
	}
	aqm.Respond(w, http.StatusOK, h.view(h.store.Snapshot()), nil)
}

func (h *Handler) SalesSummary(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SalesSummary")
	defer finish()

	rebuild := r.URL.Query().Get("rebuild") == "1"
	summary, err := h.coord.SalesSummary(r.Context(), rebuild)
	if err != nil {
		h.log(r).Errorf("cannot load sales summary: %v", err)
		h.respondRemoteError(w, err, "Could not load sales summary")
		return
	}
	aqm.Respond(w, http.StatusOK, summary, nil)
}

type presaleRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) SetPresale(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetPresale")
	defer finish()

	var req presaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.coord.SetPresale(req.Enabled)
	aqm.Respond(w, http.StatusAccepted, h.store.Snapshot().State.Settings, nil)
}

func (h *Handler) SetStoreInfo(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetStoreInfo")
	defer finish()

	var req kds.StoreInfo
	if !h.decode(w, r, &req) {
		return
	}
	h.coord.SetStoreInfo(req)
	aqm.Respond(w, http.StatusAccepted, h.store.Snapshot().State.Settings, nil)
}

func (h *Handler) SetNumbering(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetNumbering")
	defer finish()

	var req kds.Numbering
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.coord.SetNumbering(req); err != nil {
		aqm.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	aqm.Respond(w, http.StatusAccepted, h.store.Snapshot().State.Settings, nil)
}

func (h *Handler) SetChinchiro(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetChinchiro")
	defer finish()

	var req kds.Chinchiro
	if !h.decode(w, r, &req) {
		return
	}
	h.coord.SetChinchiro(req)
	aqm.Respond(w, http.StatusAccepted, h.store.Snapshot().State.Settings, nil)
}

func (h *Handler) SetQRPrint(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetQRPrint")
	defer finish()

	var req kds.QRPrint
	if !h.decode(w, r, &req) {
		return
	}
	h.coord.SetQRPrint(req)
	aqm.Respond(w, http.StatusAccepted, h.store.Snapshot().State.Settings, nil)
}

func (h *Handler) EditProduct(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.EditProduct")
	defer finish()

	var req remote.ProductEdit
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "sku")
	if err := h.coord.EditProduct(req); err != nil {
		if errors.Is(err, ErrUnknownProduct) {
			aqm.RespondError(w, http.StatusNotFound, "Product not found")
			return
		}
		aqm.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	aqm.Respond(w, http.StatusAccepted, map[string]string{"sku": req.ID}, nil)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Could not read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		aqm.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) respondCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrLineNotFound):
		aqm.RespondError(w, http.StatusNotFound, "Cart line not found")
	case errors.Is(err, store.ErrInvalidLine):
		aqm.RespondError(w, http.StatusBadRequest, "Invalid cart line")
	default:
		aqm.RespondError(w, http.StatusInternalServerError, "Could not update cart")
	}
}

// respondRemoteError surfaces the server's own message when there is one.
func (h *Handler) respondRemoteError(w http.ResponseWriter, err error, fallback string) {
	var re *remote.Error
	if errors.As(err, &re) && re.Message != "" {
		aqm.RespondError(w, http.StatusBadGateway, re.Message)
		return
	}
	aqm.RespondError(w, http.StatusBadGateway, fallback)
}

func lineIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil || idx < 0 {
		aqm.RespondError(w, http.StatusBadRequest, "Invalid line index")
		return 0, false
	}
	return idx, true
}
