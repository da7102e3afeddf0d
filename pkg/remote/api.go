package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/appetiteclub/kds/pkg/kds"
)

// Paths of the embedded server's REST API.
const (
	PathState          = "/api/state"
	PathLightState     = "/api/state?light=1"
	PathMenu           = "/api/menu"
	PathOrders         = "/api/orders"
	PathCancel         = "/api/orders/cancel"
	PathReprint        = "/api/orders/reprint"
	PathArchive        = "/api/orders/archive"
	PathCallList       = "/api/call-list"
	PathSalesSummary   = "/api/sales/summary"
	PathSessionEnd     = "/api/session/end"
	PathSystemReset    = "/api/system/reset"
	PathTimeSet        = "/api/time/set"
	PathSettingsSystem = "/api/settings/system"
	PathSettingsChin   = "/api/settings/chinchiro"
	PathSettingsQR     = "/api/settings/qrprint"
	PathProductsMain   = "/api/products/main"
	PathProductsSide   = "/api/products/side"
	PathExportCSV      = "/api/export/csv"
	PathExportSnapshot = "/api/export/snapshot"
	PathExportLite     = "/api/export/sales-summary-lite"
	PathPaperReplaced  = "/api/printer/paper-replaced"
	PathAPCycle        = "/api/network/ap-cycle"
)

// IdempotencyHeader carries a key that stays constant across the retries
// of one order submission.
const IdempotencyHeader = "X-Idempotency-Key"

func (c *Client) CreateOrder(ctx context.Context, req kds.CreateOrderRequest, idempotencyKey string) (kds.CreateOrderResponse, error) {
	var out kds.CreateOrderResponse
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set(IdempotencyHeader, idempotencyKey)
	}
	if err := c.Do(ctx, http.MethodPost, PathOrders, req, &out, header); err != nil {
		return out, err
	}
	if out.OrderNo == "" {
		return out, fmt.Errorf("create order: response without orderNo")
	}
	return out, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, orderNo, status string) error {
	body := map[string]string{"status": status}
	return c.Do(ctx, http.MethodPatch, PathOrders+"/"+escape(orderNo), body, nil, nil)
}

func (c *Client) CancelOrder(ctx context.Context, orderNo, reason string) error {
	body := map[string]string{"orderNo": orderNo, "reason": reason}
	return c.Do(ctx, http.MethodPost, PathCancel, body, nil, nil)
}

func (c *Client) ReprintOrder(ctx context.Context, orderNo string) error {
	body := map[string]string{"orderNo": orderNo}
	return c.Do(ctx, http.MethodPost, PathReprint, body, nil, nil)
}

// MarkCooked and MarkPicked drive the call screen from the pickup terminal.
func (c *Client) MarkCooked(ctx context.Context, orderNo string) error {
	return c.Do(ctx, http.MethodPost, PathOrders+"/"+escape(orderNo)+"/cooked", nil, nil, nil)
}

func (c *Client) MarkPicked(ctx context.Context, orderNo string) error {
	return c.Do(ctx, http.MethodPost, PathOrders+"/"+escape(orderNo)+"/picked", nil, nil, nil)
}

func (c *Client) CallList(ctx context.Context) ([]kds.CallListEntry, error) {
	var out kds.CallListResponse
	if err := c.Do(ctx, http.MethodGet, PathCallList, nil, &out, nil); err != nil {
		return nil, err
	}
	return out.CallList, nil
}

func (c *Client) Archive(ctx context.Context, sessionID string) (kds.ArchiveResponse, error) {
	var out kds.ArchiveResponse
	path := PathArchive + "?sessionId=" + url.QueryEscape(sessionID)
	err := c.Do(ctx, http.MethodGet, path, nil, &out, nil)
	return out, err
}

func (c *Client) SalesSummary(ctx context.Context, rebuild bool) (kds.SalesSummary, error) {
	var out kds.SalesSummary
	path := PathSalesSummary
	if rebuild {
		path += "?rebuild=1"
	}
	err := c.Do(ctx, http.MethodGet, path, nil, &out, nil)
	return out, err
}

func (c *Client) EndSession(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, PathSessionEnd, nil, nil, nil)
}

func (c *Client) ResetSystem(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, PathSystemReset, nil, nil, nil)
}

func (c *Client) SetTime(ctx context.Context, epoch int64) error {
	body := map[string]int64{"epoch": epoch}
	return c.Do(ctx, http.MethodPost, PathTimeSet, body, nil, nil)
}

// SystemSettingsPatch holds the field-level edits accepted by
// /api/settings/system. Nil fields are left untouched by the server.
type SystemSettingsPatch struct {
	PresaleEnabled *bool          `json:"presaleEnabled,omitempty"`
	Store          *kds.StoreInfo `json:"store,omitempty"`
	Numbering      *kds.Numbering `json:"numbering,omitempty"`
}

func (c *Client) SaveSystemSettings(ctx context.Context, patch SystemSettingsPatch) error {
	return c.Do(ctx, http.MethodPost, PathSettingsSystem, patch, nil, nil)
}

func (c *Client) SaveChinchiro(ctx context.Context, cfg kds.Chinchiro) error {
	return c.Do(ctx, http.MethodPost, PathSettingsChin, cfg, nil, nil)
}

func (c *Client) SaveQRPrint(ctx context.Context, cfg kds.QRPrint) error {
	return c.Do(ctx, http.MethodPost, PathSettingsQR, cfg, nil, nil)
}

// ProductEdit is one row posted to /api/products/{main|side}. ID is the SKU
// of an existing item and empty for a new one.
type ProductEdit struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	NameRomaji      string `json:"nameRomaji,omitempty"`
	Active          bool   `json:"active"`
	PriceNormal     int    `json:"price_normal,omitempty"`
	PresaleDiscount int    `json:"presale_discount_amount,omitempty"`
	PriceSingle     int    `json:"price_single,omitempty"`
	PriceAsSide     int    `json:"price_as_side,omitempty"`
}

func (c *Client) SaveProducts(ctx context.Context, category string, items []ProductEdit) error {
	path := PathProductsMain
	if category == kds.CategorySide {
		path = PathProductsSide
	}
	body := map[string]interface{}{"items": items}
	return c.Do(ctx, http.MethodPost, path, body, nil, nil)
}

func (c *Client) PaperReplaced(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, PathPaperReplaced, nil, nil, nil)
}

// CycleAccessPoint asks the server to drop its Wi-Fi AP and bring it back
// after resumeAfter seconds.
func (c *Client) CycleAccessPoint(ctx context.Context, resumeAfter int) error {
	body := map[string]int{"resumeAfter": resumeAfter}
	return c.Do(ctx, http.MethodPost, PathAPCycle, body, nil, nil)
}

// ExportCSV streams the sales CSV into w.
func (c *Client) ExportCSV(ctx context.Context, w io.Writer) error {
	return c.Do(ctx, http.MethodGet, PathExportCSV, nil, w, nil)
}

func (c *Client) ExportSnapshot(ctx context.Context, w io.Writer) error {
	return c.Do(ctx, http.MethodGet, PathExportSnapshot, nil, w, nil)
}

func (c *Client) ExportSalesSummaryLite(ctx context.Context, w io.Writer) error {
	return c.Do(ctx, http.MethodGet, PathExportLite, nil, w, nil)
}
