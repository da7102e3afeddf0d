package store

import (
	"github.com/appetiteclub/kds/pkg/enums/page"
	"github.com/appetiteclub/kds/pkg/kds"
)

// Action is a state transition. The set of actions is closed; Reduce
// switches over every one of them.
type Action interface {
	action()
}

// FullStateLoaded carries a /api/state payload. WithMenu is false when the
// payload's menu is older than the menu already applied.
type FullStateLoaded struct {
	Payload  kds.StatePayload
	WithMenu bool
}

type MenuLoaded struct {
	Items kds.Menu
	ETag  string
}

type CallListOp string

const (
	CallListAdd    CallListOp = "add"
	CallListRemove CallListOp = "remove"
)

type CallListPatched struct {
	Op    CallListOp
	Entry kds.CallListEntry
}

type CallListReplaced struct {
	Entries []kds.CallListEntry
}

// CartOp is the subset of actions that mutate the cart.
type CartOp interface {
	Action
	cartOp()
}

type CartAdd struct {
	Line kds.CartLine
}

type CartRemove struct {
	Index int
}

type CartSetQty struct {
	Index int
	Qty   float64
}

type CartClear struct{}

// PrinterPatched overwrites only the fields that are present.
type PrinterPatched struct {
	PaperOut *bool
	Overheat *bool
	HoldJobs *int
}

type OnlineChanged struct {
	Online bool
}

type PageChanged struct {
	Page page.Page
}

// SessionReset follows a session end: orders, cart, call list and archive
// go, menu and settings stay.
type SessionReset struct{}

// SystemCleared follows system.reset: everything but the page and the
// connection flag goes.
type SystemCleared struct{}

// SettingsPatched merges individual setting edits optimistically, before
// the server confirms them.
type SettingsPatched struct {
	PresaleEnabled *bool
	Store          *kds.StoreInfo
	Numbering      *kds.Numbering
	Chinchiro      *kds.Chinchiro
	QRPrint        *kds.QRPrint
}

// MenuItemPatched merges a product edit into the menu by SKU.
type MenuItemPatched struct {
	SKU         string
	Name        *string
	NameRomaji  *string
	Active      *bool
	PriceNormal *int
	Discount    *int
	PriceSingle *int
	PriceAsSide *int
}

type ArchiveLoading struct {
	SessionID string
}

type ArchiveLoaded struct {
	SessionID string
	Orders    []kds.Order
}

type ArchiveFailed struct {
	SessionID string
}

type ArchiveInvalidated struct{}

type SalesSummaryLoaded struct {
	Summary kds.SalesSummary
}

func (FullStateLoaded) action()    {}
func (MenuLoaded) action()         {}
func (CallListPatched) action()    {}
func (CallListReplaced) action()   {}
func (CartAdd) action()            {}
func (CartRemove) action()         {}
func (CartSetQty) action()         {}
func (CartClear) action()          {}
func (PrinterPatched) action()     {}
func (OnlineChanged) action()      {}
func (PageChanged) action()        {}
func (SessionReset) action()       {}
func (SystemCleared) action()      {}
func (SettingsPatched) action()    {}
func (MenuItemPatched) action()    {}
func (ArchiveLoading) action()     {}
func (ArchiveLoaded) action()      {}
func (ArchiveFailed) action()      {}
func (ArchiveInvalidated) action() {}
func (SalesSummaryLoaded) action() {}

func (CartAdd) cartOp()    {}
func (CartRemove) cartOp() {}
func (CartSetQty) cartOp() {}
func (CartClear) cartOp()  {}
