package store

import (
	"github.com/appetiteclub/kds/pkg/enums/page"
	"github.com/appetiteclub/kds/pkg/kds"
)

// State is the terminal's mirror of server truth plus the local cart.
// Values handed out by the store share backing arrays with the store and
// must be treated as read-only.
type State struct {
	Menu         kds.Menu
	MenuETag     string
	Settings     kds.Settings
	Session      kds.Session
	Printer      kds.PrinterStatus
	Orders       []kds.Order
	Cart         []kds.CartLine
	CallList     []kds.CallListEntry
	Archive      Archive
	SalesSummary *kds.SalesSummary
	Online       bool
	Page         page.Page
	// Loaded is set by the first applied state fetch. Until then the light
	// state variant must not be used.
	Loaded bool
}

// Archive is the lazily fetched, session scoped list of archived orders.
type Archive struct {
	SessionID string
	Orders    []kds.Order
	Fetched   bool
	Loading   bool
}

// ActiveOrder looks an order up in the active set.
func (s State) ActiveOrder(orderNo string) (kds.Order, bool) {
	for _, o := range s.Orders {
		if o.OrderNo == orderNo {
			return o, true
		}
	}
	return kds.Order{}, false
}

// ArchivedOrder looks an order up in the archive of the current session.
func (s State) ArchivedOrder(orderNo string) (kds.Order, bool) {
	if !s.Archive.Fetched || s.Archive.SessionID != s.Session.SessionID {
		return kds.Order{}, false
	}
	for _, o := range s.Archive.Orders {
		if o.OrderNo == orderNo {
			return o, true
		}
	}
	return kds.Order{}, false
}

func (s State) InCallList(orderNo string) bool {
	return indexOfCall(s.CallList, orderNo) >= 0
}

func indexOfCall(list []kds.CallListEntry, orderNo string) int {
	for i, e := range list {
		if e.OrderNo == orderNo {
			return i
		}
	}
	return -1
}
