package store

import (
	"github.com/appetiteclub/kds/pkg/kds"
)

// Reduce returns the state that results from applying a to s. It never
// mutates s: every changed slice is copied.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case FullStateLoaded:
		return reduceFullState(s, a)

	case MenuLoaded:
		s.Menu = a.Items.Clone()
		s.MenuETag = a.ETag

	case CallListPatched:
		s.CallList = patchCallList(s.CallList, a.Op, a.Entry)

	case CallListReplaced:
		s.CallList = dedupCallList(a.Entries)

	case CartAdd:
		if a.Line == nil {
			return s
		}
		cart := make([]kds.CartLine, 0, len(s.Cart)+1)
		cart = append(cart, s.Cart...)
		s.Cart = append(cart, a.Line)

	case CartRemove:
		if a.Index < 0 || a.Index >= len(s.Cart) {
			return s
		}
		cart := make([]kds.CartLine, 0, len(s.Cart)-1)
		cart = append(cart, s.Cart[:a.Index]...)
		s.Cart = append(cart, s.Cart[a.Index+1:]...)

	case CartSetQty:
		if a.Index < 0 || a.Index >= len(s.Cart) {
			return s
		}
		cart := append([]kds.CartLine(nil), s.Cart...)
		cart[a.Index] = kds.WithQuantity(cart[a.Index], float64(kds.SafeQty(a.Qty)))
		s.Cart = cart

	case CartClear:
		s.Cart = nil

	case PrinterPatched:
		if a.PaperOut != nil {
			s.Printer.PaperOut = *a.PaperOut
		}
		if a.Overheat != nil {
			s.Printer.Overheat = *a.Overheat
		}
		if a.HoldJobs != nil {
			s.Printer.HoldJobs = *a.HoldJobs
		}

	case OnlineChanged:
		s.Online = a.Online

	case PageChanged:
		s.Page = a.Page

	case SessionReset:
		s.Orders = nil
		s.Cart = nil
		s.CallList = nil
		s.Archive = Archive{}
		s.SalesSummary = nil

	case SystemCleared:
		s = State{Online: s.Online, Page: s.Page}

	case SettingsPatched:
		if a.PresaleEnabled != nil {
			s.Settings.PresaleEnabled = *a.PresaleEnabled
		}
		if a.Store != nil {
			s.Settings.Store = *a.Store
		}
		if a.Numbering != nil {
			s.Settings.Numbering = *a.Numbering
		}
		if a.Chinchiro != nil {
			chin := *a.Chinchiro
			chin.Multipliers = append([]float64(nil), chin.Multipliers...)
			s.Settings.Chinchiro = chin
		}
		if a.QRPrint != nil {
			s.Settings.QRPrint = *a.QRPrint
		}

	case MenuItemPatched:
		s.Menu = patchMenuItem(s.Menu, a)

	case ArchiveLoading:
		// a refresh of the same session keeps serving the fetched orders
		if s.Archive.SessionID == a.SessionID {
			s.Archive.Loading = true
			break
		}
		s.Archive = Archive{SessionID: a.SessionID, Loading: true}

	case ArchiveLoaded:
		if a.SessionID != s.Session.SessionID {
			return s
		}
		s.Archive = Archive{
			SessionID: a.SessionID,
			Orders:    append([]kds.Order(nil), a.Orders...),
			Fetched:   true,
		}

	case ArchiveFailed:
		if s.Archive.SessionID == a.SessionID {
			s.Archive.Loading = false
		}

	case ArchiveInvalidated:
		s.Archive = Archive{}

	case SalesSummaryLoaded:
		summary := a.Summary
		s.SalesSummary = &summary
	}
	return s
}

func reduceFullState(s State, a FullStateLoaded) State {
	p := a.Payload
	if p.Settings != nil {
		settings := *p.Settings
		settings.Chinchiro.Multipliers = append([]float64(nil), settings.Chinchiro.Multipliers...)
		s.Settings = settings
	}
	if p.Session != nil {
		if p.Session.SessionID != s.Session.SessionID {
			s.Archive = Archive{}
			s.SalesSummary = nil
		}
		s.Session = *p.Session
	}
	if p.Printer != nil {
		s.Printer = *p.Printer
	}
	s.Orders = append([]kds.Order(nil), p.Orders...)
	if a.WithMenu && p.Menu != nil {
		s.Menu = p.Menu.Clone()
	}
	s.Loaded = true
	return s
}

func patchCallList(list []kds.CallListEntry, op CallListOp, entry kds.CallListEntry) []kds.CallListEntry {
	idx := indexOfCall(list, entry.OrderNo)
	switch op {
	case CallListAdd:
		if idx >= 0 || entry.OrderNo == "" {
			return list
		}
		out := make([]kds.CallListEntry, 0, len(list)+1)
		out = append(out, list...)
		return append(out, entry)
	case CallListRemove:
		if idx < 0 {
			return list
		}
		out := make([]kds.CallListEntry, 0, len(list)-1)
		out = append(out, list[:idx]...)
		return append(out, list[idx+1:]...)
	}
	return list
}

func dedupCallList(entries []kds.CallListEntry) []kds.CallListEntry {
	out := make([]kds.CallListEntry, 0, len(entries))
	for _, e := range entries {
		if e.OrderNo == "" || indexOfCall(out, e.OrderNo) >= 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

func patchMenuItem(menu kds.Menu, a MenuItemPatched) kds.Menu {
	idx := -1
	for i, item := range menu {
		if item.SKU == a.SKU {
			idx = i
			break
		}
	}
	if idx < 0 {
		return menu
	}
	out := menu.Clone()
	item := &out[idx]
	if a.Name != nil {
		item.Name = *a.Name
	}
	if a.NameRomaji != nil {
		item.NameRomaji = *a.NameRomaji
	}
	if a.Active != nil {
		item.Active = *a.Active
	}
	if a.PriceNormal != nil {
		item.PriceNormal = *a.PriceNormal
	}
	if a.Discount != nil {
		item.PresaleDiscount = *a.Discount
	}
	if a.PriceSingle != nil {
		item.PriceSingle = *a.PriceSingle
	}
	if a.PriceAsSide != nil {
		item.PriceAsSide = *a.PriceAsSide
	}
	return out
}
