// Package terminal coordinates user actions against the server and exposes
// the terminal state to the local renderer over HTTP.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/orderstatus"
	"github.com/appetiteclub/kds/pkg/kds"
	"github.com/appetiteclub/kds/pkg/remote"
	"github.com/appetiteclub/kds/services/terminal/internal/archive"
	"github.com/appetiteclub/kds/services/terminal/internal/cache"
	"github.com/appetiteclub/kds/services/terminal/internal/reload"
	"github.com/appetiteclub/kds/services/terminal/internal/store"
	"github.com/aquamarinepk/aqm"
	"golang.org/x/text/width"
)

// DefaultSaveDelay is how long a settings field must stay untouched before
// it is saved.
const DefaultSaveDelay = 600 * time.Millisecond

var (
	ErrAborted        = errors.New("action aborted: pending order submission failed")
	ErrInvalidStatus  = errors.New("invalid order status")
	ErrUnknownProduct = errors.New("unknown product")
)

// Remote is the subset of the server API driven by terminal actions.
type Remote interface {
	UpdateOrderStatus(ctx context.Context, orderNo, status string) error
	CancelOrder(ctx context.Context, orderNo, reason string) error
	ReprintOrder(ctx context.Context, orderNo string) error
	MarkCooked(ctx context.Context, orderNo string) error
	MarkPicked(ctx context.Context, orderNo string) error
	EndSession(ctx context.Context) error
	ResetSystem(ctx context.Context) error
	SetTime(ctx context.Context, epoch int64) error
	SaveSystemSettings(ctx context.Context, patch remote.SystemSettingsPatch) error
	SaveChinchiro(ctx context.Context, cfg kds.Chinchiro) error
	SaveQRPrint(ctx context.Context, cfg kds.QRPrint) error
	SaveProducts(ctx context.Context, category string, items []remote.ProductEdit) error
}

// Submitter is the order submission pipeline.
type Submitter interface {
	Submit(ctx context.Context) (string, error)
	Await(ctx context.Context) error
}

// Loader is the cache-aware fetch client.
type Loader interface {
	LoadState(ctx context.Context, force bool) (cache.Result, error)
	LoadMenu(ctx context.Context, force bool) (cache.Result, error)
	LoadCallList(ctx context.Context) (cache.Result, error)
	LoadSalesSummary(ctx context.Context, rebuild bool) (kds.SalesSummary, error)
	Invalidate(ctx context.Context) error
}

type Reloader interface {
	ScheduleReload()
}

// Archive resolves orders across the active window and the session archive.
type Archive interface {
	GetOrder(ctx context.Context, orderNo string) (archive.Resolved, bool)
	RecentOrders(ctx context.Context) []kds.Order
	Refresh(ctx context.Context) error
}

type Coordinator struct {
	store    *store.Store
	remote   Remote
	submit   Submitter
	loader   Loader
	reloader Reloader
	archive  Archive
	saves    *reload.Debouncer
	logger   aqm.Logger
}

// Deps groups the collaborators of a Coordinator.
type Deps struct {
	Store    *store.Store
	Remote   Remote
	Submit   Submitter
	Loader   Loader
	Reloader Reloader
	Archive  Archive
	// Saves debounces settings writes. A default one is created when nil.
	Saves *reload.Debouncer
}

func NewCoordinator(deps Deps, logger aqm.Logger) *Coordinator {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	saves := deps.Saves
	if saves == nil {
		saves = reload.NewDebouncer(DefaultSaveDelay, reload.WithLogger(logger))
	}
	return &Coordinator{
		store:    deps.Store,
		remote:   deps.Remote,
		submit:   deps.Submit,
		loader:   deps.Loader,
		reloader: deps.Reloader,
		archive:  deps.Archive,
		saves:    saves,
		logger:   logger,
	}
}

func (c *Coordinator) Submit(ctx context.Context) (string, error) {
	return c.submit.Submit(ctx)
}

func (c *Coordinator) GetOrder(ctx context.Context, orderNo string) (archive.Resolved, bool) {
	return c.archive.GetOrder(ctx, orderNo)
}

func (c *Coordinator) RecentOrders(ctx context.Context) []kds.Order {
	return c.archive.RecentOrders(ctx)
}

func (c *Coordinator) SalesSummary(ctx context.Context, rebuild bool) (kds.SalesSummary, error) {
	return c.loader.LoadSalesSummary(ctx, rebuild)
}

// MarkStatus moves an order to status on the server.
func (c *Coordinator) MarkStatus(ctx context.Context, orderNo string, status orderstatus.Status) error {
	if _, ok := orderstatus.Parse(status.Code()); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status.Code())
	}
	return c.orderAction(ctx, "mark status", orderNo, func(ctx context.Context) error {
		return c.remote.UpdateOrderStatus(ctx, orderNo, status.Code())
	})
}

func (c *Coordinator) Cancel(ctx context.Context, orderNo, reason string) error {
	return c.orderAction(ctx, "cancel", orderNo, func(ctx context.Context) error {
		return c.remote.CancelOrder(ctx, orderNo, strings.TrimSpace(reason))
	})
}

func (c *Coordinator) Reprint(ctx context.Context, orderNo string) error {
	return c.orderAction(ctx, "reprint", orderNo, func(ctx context.Context) error {
		return c.remote.ReprintOrder(ctx, orderNo)
	})
}

// MarkCooked puts an order on the call screen; MarkPicked takes it off.
func (c *Coordinator) MarkCooked(ctx context.Context, orderNo string) error {
	return c.orderAction(ctx, "mark cooked", orderNo, func(ctx context.Context) error {
		return c.remote.MarkCooked(ctx, orderNo)
	})
}

func (c *Coordinator) MarkPicked(ctx context.Context, orderNo string) error {
	return c.orderAction(ctx, "mark picked", orderNo, func(ctx context.Context) error {
		return c.remote.MarkPicked(ctx, orderNo)
	})
}

// orderAction waits for any in-flight submission so that the order it
// creates is known before acting. A failed submission aborts the action.
func (c *Coordinator) orderAction(ctx context.Context, name, orderNo string, act func(context.Context) error) error {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return fmt.Errorf("%s: order number is required", name)
	}
	if err := c.submit.Await(ctx); err != nil {
		c.logger.Info("order action aborted", "action", name, "order_no", orderNo, "error", err)
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}

	if err := act(ctx); err != nil {
		c.logger.Error("order action failed", "action", name, "order_no", orderNo, "error", err)
		return fmt.Errorf("%s %s: %w", name, orderNo, err)
	}
	c.logger.Info("order action done", "action", name, "order_no", orderNo)

	c.reloader.ScheduleReload()
	if _, active := c.store.Snapshot().State.ActiveOrder(orderNo); !active {
		if err := c.archive.Refresh(ctx); err != nil {
			c.logger.Error("archive refresh failed", "order_no", orderNo, "error", err)
		}
	}
	return nil
}

// EndSession closes the sales session. Orders, cart and call list go; the
// menu and settings stay.
func (c *Coordinator) EndSession(ctx context.Context) error {
	if err := c.submit.Await(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	if err := c.remote.EndSession(ctx); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	c.store.Reset()
	c.reloader.ScheduleReload()
	c.logger.Info("session ended")
	return nil
}

// ResetSystem wipes the server and clears every local mirror, cache
// included.
func (c *Coordinator) ResetSystem(ctx context.Context) error {
	if err := c.remote.ResetSystem(ctx); err != nil {
		return fmt.Errorf("reset system: %w", err)
	}
	c.saves.CancelAll()

	c.store.Clear()
	if err := c.loader.Invalidate(ctx); err != nil {
		c.logger.Error("cannot invalidate response cache", "error", err)
	}
	if _, err := c.loader.LoadMenu(ctx, true); err != nil {
		c.logger.Error("menu reload after reset failed", "error", err)
	}
	c.reloader.ScheduleReload()
	c.logger.Info("system reset")
	return nil
}

// SyncTime pushes the terminal clock to the server.
func (c *Coordinator) SyncTime(ctx context.Context, now time.Time) error {
	return c.remote.SetTime(ctx, now.Unix())
}

// SetPresale, SetStoreInfo and the other settings setters apply the edit
// locally right away and save it once the field has been quiet for the
// save delay.
func (c *Coordinator) SetPresale(enabled bool) {
	c.store.PatchSettings(store.SettingsPatched{PresaleEnabled: &enabled})
	c.save("settings.presale", func(ctx context.Context) error {
		return c.remote.SaveSystemSettings(ctx, remote.SystemSettingsPatch{PresaleEnabled: &enabled})
	})
}

func (c *Coordinator) SetStoreInfo(info kds.StoreInfo) {
	info.Name = strings.TrimSpace(info.Name)
	info.NameRomaji = strings.TrimSpace(info.NameRomaji)
	info.RegisterID = strings.TrimSpace(info.RegisterID)
	c.store.PatchSettings(store.SettingsPatched{Store: &info})
	c.save("settings.store", func(ctx context.Context) error {
		return c.remote.SaveSystemSettings(ctx, remote.SystemSettingsPatch{Store: &info})
	})
}

func (c *Coordinator) SetNumbering(n kds.Numbering) error {
	if n.Min < 0 || n.Max < n.Min {
		return fmt.Errorf("invalid numbering range %d-%d", n.Min, n.Max)
	}
	c.store.PatchSettings(store.SettingsPatched{Numbering: &n})
	c.save("settings.numbering", func(ctx context.Context) error {
		return c.remote.SaveSystemSettings(ctx, remote.SystemSettingsPatch{Numbering: &n})
	})
	return nil
}

func (c *Coordinator) SetChinchiro(cfg kds.Chinchiro) {
	cfg.Rounding = kds.ParseRounding(string(cfg.Rounding))
	multipliers := make([]float64, 0, len(cfg.Multipliers))
	for _, m := range cfg.Multipliers {
		multipliers = append(multipliers, kds.SafeNum(m))
	}
	cfg.Multipliers = multipliers
	c.store.PatchSettings(store.SettingsPatched{Chinchiro: &cfg})
	c.save("settings.chinchiro", func(ctx context.Context) error {
		return c.remote.SaveChinchiro(ctx, cfg)
	})
}

func (c *Coordinator) SetQRPrint(cfg kds.QRPrint) {
	cfg.Content = NormalizeQRContent(cfg.Content)
	c.store.PatchSettings(store.SettingsPatched{QRPrint: &cfg})
	c.save("settings.qrprint", func(ctx context.Context) error {
		return c.remote.SaveQRPrint(ctx, cfg)
	})
}

// EditProduct patches one menu item. Edits of the same SKU are coalesced.
func (c *Coordinator) EditProduct(edit remote.ProductEdit) error {
	item, ok := c.store.Snapshot().State.Menu.Find(edit.ID)
	if edit.ID == "" || !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProduct, edit.ID)
	}
	edit.Name = strings.TrimSpace(edit.Name)
	if edit.Name == "" {
		edit.Name = item.Name
	}

	patch := store.MenuItemPatched{
		SKU:        edit.ID,
		Name:       &edit.Name,
		NameRomaji: &edit.NameRomaji,
		Active:     &edit.Active,
	}
	if item.IsMain() {
		patch.PriceNormal = &edit.PriceNormal
		patch.Discount = &edit.PresaleDiscount
	} else {
		patch.PriceSingle = &edit.PriceSingle
		patch.PriceAsSide = &edit.PriceAsSide
	}
	c.store.PatchMenuItem(patch)

	category := item.Category
	c.save("product."+edit.ID, func(ctx context.Context) error {
		return c.remote.SaveProducts(ctx, category, []remote.ProductEdit{edit})
	})
	return nil
}

func (c *Coordinator) save(key string, fn func(ctx context.Context) error) {
	c.saves.Call(key, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			// the next full state restores the server's value
			c.reloader.ScheduleReload()
			return fmt.Errorf("save %s: %w", key, err)
		}
		c.logger.Info("settings saved", "key", key)
		if _, err := c.loader.LoadMenu(ctx, true); err != nil {
			c.logger.Error("menu reload after save failed", "key", key, "error", err)
		}
		return nil
	})
}

// Close drops pending saves.
func (c *Coordinator) Close() {
	c.saves.Close()
}

// NormalizeQRContent folds full-width ASCII (as typed with a Japanese IME)
// to half-width and trims surrounding space.
func NormalizeQRContent(s string) string {
	return strings.TrimSpace(width.Fold.String(s))
}
