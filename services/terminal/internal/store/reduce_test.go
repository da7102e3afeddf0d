package store

import (
	"testing"

	"github.com/appetiteclub/kds/pkg/enums/page"
	"github.com/appetiteclub/kds/pkg/kds"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func sampleMenu() kds.Menu {
	return kds.Menu{
		{SKU: "M001", Category: kds.CategoryMain, Name: "Teriyaki", Active: true, PriceNormal: 700},
		{SKU: "S001", Category: kds.CategorySide, Name: "Fries", Active: true, PriceSingle: 300, PriceAsSide: 150},
	}
}

func TestReduceFullStateKeepsMenuWhenOmitted(t *testing.T) {
	s := Reduce(State{}, MenuLoaded{Items: sampleMenu(), ETag: "v1"})

	s = Reduce(s, FullStateLoaded{Payload: kds.StatePayload{
		Orders: []kds.Order{{OrderNo: "0001", Status: "COOKING"}},
	}, WithMenu: true})

	if len(s.Menu) != 2 {
		t.Fatalf("menu len = %d, want 2", len(s.Menu))
	}
	if s.MenuETag != "v1" {
		t.Errorf("etag = %q, want v1", s.MenuETag)
	}
	if len(s.Orders) != 1 || !s.Loaded {
		t.Errorf("orders not applied: %+v", s)
	}
}

func TestReduceFullStateMenu(t *testing.T) {
	s := Reduce(State{}, MenuLoaded{Items: sampleMenu()})
	fresh := kds.Menu{{SKU: "M009", Category: kds.CategoryMain}}

	tests := []struct {
		name     string
		withMenu bool
		wantSKU  string
	}{
		{name: "applied", withMenu: true, wantSKU: "M009"},
		{name: "olderThanMenuFetch", withMenu: false, wantSKU: "M001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(s, FullStateLoaded{Payload: kds.StatePayload{Menu: fresh}, WithMenu: tt.withMenu})
			if got.Menu[0].SKU != tt.wantSKU {
				t.Errorf("menu[0] = %s, want %s", got.Menu[0].SKU, tt.wantSKU)
			}
		})
	}
}

func TestReduceFullStateSessionChangeDropsArchive(t *testing.T) {
	s := State{
		Session:      kds.Session{SessionID: "A"},
		Archive:      Archive{SessionID: "A", Fetched: true, Orders: []kds.Order{{OrderNo: "0001"}}},
		SalesSummary: &kds.SalesSummary{SessionID: "A"},
	}

	same := Reduce(s, FullStateLoaded{Payload: kds.StatePayload{Session: &kds.Session{SessionID: "A"}}})
	if !same.Archive.Fetched {
		t.Error("archive dropped without session change")
	}

	next := Reduce(s, FullStateLoaded{Payload: kds.StatePayload{Session: &kds.Session{SessionID: "B"}}})
	if next.Archive.Fetched || len(next.Archive.Orders) != 0 {
		t.Errorf("archive kept across sessions: %+v", next.Archive)
	}
	if next.SalesSummary != nil {
		t.Error("sales summary kept across sessions")
	}
}

func TestReduceCallList(t *testing.T) {
	seven := kds.CallListEntry{OrderNo: "0007", Ts: 100}

	tests := []struct {
		name    string
		start   []kds.CallListEntry
		action  Action
		wantLen int
	}{
		{name: "add", action: CallListPatched{Op: CallListAdd, Entry: seven}, wantLen: 1},
		{name: "addIsIdempotent", start: []kds.CallListEntry{seven}, action: CallListPatched{Op: CallListAdd, Entry: seven}, wantLen: 1},
		{name: "addWithoutOrderNo", action: CallListPatched{Op: CallListAdd}, wantLen: 0},
		{name: "remove", start: []kds.CallListEntry{seven}, action: CallListPatched{Op: CallListRemove, Entry: seven}, wantLen: 0},
		{name: "removeMissing", start: []kds.CallListEntry{seven}, action: CallListPatched{Op: CallListRemove, Entry: kds.CallListEntry{OrderNo: "0008"}}, wantLen: 1},
		{name: "replaceDedups", action: CallListReplaced{Entries: []kds.CallListEntry{seven, seven, {OrderNo: "0009"}}}, wantLen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reduce(State{CallList: tt.start}, tt.action)
			if len(got.CallList) != tt.wantLen {
				t.Errorf("call list = %v, want %d entries", got.CallList, tt.wantLen)
			}
		})
	}
}

func TestReduceCartDoesNotAlias(t *testing.T) {
	s := Reduce(State{}, CartAdd{Line: kds.MainSingle{MainSKU: "M001", Qty: 1}})
	s = Reduce(s, CartAdd{Line: kds.SideSingle{SideSKU: "S001", Qty: 1}})
	before := s

	after := Reduce(s, CartSetQty{Index: 0, Qty: 3})
	if before.Cart[0].Quantity() != 1 {
		t.Fatalf("previous state mutated: qty = %v", before.Cart[0].Quantity())
	}
	if after.Cart[0].Quantity() != 3 {
		t.Errorf("qty = %v, want 3", after.Cart[0].Quantity())
	}

	removed := Reduce(after, CartRemove{Index: 0})
	if len(removed.Cart) != 1 || removed.Cart[0].Kind() != kds.KindSideSingle {
		t.Errorf("remove left %v", removed.Cart)
	}
	if len(after.Cart) != 2 {
		t.Errorf("remove mutated previous state")
	}

	if got := Reduce(after, CartRemove{Index: 5}); len(got.Cart) != 2 {
		t.Errorf("out of range remove changed cart")
	}
	if got := Reduce(after, CartClear{}); len(got.Cart) != 0 {
		t.Errorf("clear left %d lines", len(got.Cart))
	}
}

func TestReduceCartSetQtySanitizes(t *testing.T) {
	s := Reduce(State{}, CartAdd{Line: kds.MainSingle{MainSKU: "M001", Qty: 1}})
	s = Reduce(s, CartSetQty{Index: 0, Qty: 0.2})
	if s.Cart[0].Quantity() != 1 {
		t.Errorf("qty = %v, want 1", s.Cart[0].Quantity())
	}
}

func TestReducePrinterPatchPresentFieldsOnly(t *testing.T) {
	s := State{Printer: kds.PrinterStatus{PaperOut: false, Overheat: true, HoldJobs: 2}}

	got := Reduce(s, PrinterPatched{PaperOut: boolPtr(true)})
	want := kds.PrinterStatus{PaperOut: true, Overheat: true, HoldJobs: 2}
	if got.Printer != want {
		t.Errorf("printer = %+v, want %+v", got.Printer, want)
	}

	got = Reduce(got, PrinterPatched{HoldJobs: intPtr(0)})
	if got.Printer.HoldJobs != 0 || !got.Printer.PaperOut {
		t.Errorf("printer = %+v", got.Printer)
	}
}

func TestReduceSessionReset(t *testing.T) {
	s := State{
		Menu:     sampleMenu(),
		Settings: kds.Settings{PresaleEnabled: true},
		Orders:   []kds.Order{{OrderNo: "0001"}},
		Cart:     []kds.CartLine{kds.MainSingle{MainSKU: "M001"}},
		CallList: []kds.CallListEntry{{OrderNo: "0001"}},
		Archive:  Archive{SessionID: "A", Fetched: true},
	}

	got := Reduce(s, SessionReset{})
	if len(got.Orders) != 0 || len(got.Cart) != 0 || len(got.CallList) != 0 || got.Archive.Fetched {
		t.Errorf("session data survived reset: %+v", got)
	}
	if len(got.Menu) != 2 || !got.Settings.PresaleEnabled {
		t.Errorf("menu or settings lost on reset")
	}
}

func TestReduceSystemClear(t *testing.T) {
	s := State{Menu: sampleMenu(), Online: true, Page: page.Pages.Call, Loaded: true}

	got := Reduce(s, SystemCleared{})
	if len(got.Menu) != 0 || got.Loaded {
		t.Errorf("state survived clear: %+v", got)
	}
	if !got.Online || got.Page != page.Pages.Call {
		t.Errorf("connection flag or page lost: %+v", got)
	}
}

func TestReduceSettingsPatch(t *testing.T) {
	s := State{Settings: kds.Settings{
		PresaleEnabled: false,
		Store:          kds.StoreInfo{Name: "Old"},
		Chinchiro:      kds.Chinchiro{Enabled: false, Rounding: kds.RoundNearest},
	}}

	got := Reduce(s, SettingsPatched{
		PresaleEnabled: boolPtr(true),
		Chinchiro:      &kds.Chinchiro{Enabled: true, Multipliers: []float64{0.5, 2}, Rounding: kds.RoundCeil},
	})

	if !got.Settings.PresaleEnabled {
		t.Error("presale not patched")
	}
	if got.Settings.Store.Name != "Old" {
		t.Error("untouched field overwritten")
	}
	if !got.Settings.Chinchiro.Enabled || got.Settings.Chinchiro.Rounding != kds.RoundCeil {
		t.Errorf("chinchiro = %+v", got.Settings.Chinchiro)
	}
}

func TestReduceMenuItemPatch(t *testing.T) {
	s := State{Menu: sampleMenu()}
	name := "Teriyaki Deluxe"

	got := Reduce(s, MenuItemPatched{SKU: "M001", Name: &name, PriceNormal: intPtr(750)})
	if got.Menu[0].Name != name || got.Menu[0].PriceNormal != 750 {
		t.Errorf("item = %+v", got.Menu[0])
	}
	if s.Menu[0].Name != "Teriyaki" {
		t.Error("previous menu mutated")
	}

	same := Reduce(s, MenuItemPatched{SKU: "NOPE", Name: &name})
	if same.Menu[0].Name != "Teriyaki" {
		t.Error("unknown sku patched something")
	}
}

func TestReduceArchive(t *testing.T) {
	s := State{Session: kds.Session{SessionID: "A"}}

	s = Reduce(s, ArchiveLoading{SessionID: "A"})
	if !s.Archive.Loading {
		t.Fatal("loading flag not set")
	}

	stale := Reduce(s, ArchiveLoaded{SessionID: "OLD", Orders: []kds.Order{{OrderNo: "0001"}}})
	if stale.Archive.Fetched {
		t.Error("archive of another session applied")
	}

	s = Reduce(s, ArchiveLoaded{SessionID: "A", Orders: []kds.Order{{OrderNo: "0001"}}})
	if !s.Archive.Fetched || s.Archive.Loading {
		t.Errorf("archive = %+v", s.Archive)
	}
	if _, ok := s.ArchivedOrder("0001"); !ok {
		t.Error("archived order not found")
	}

	failed := Reduce(Reduce(State{}, ArchiveLoading{SessionID: "B"}), ArchiveFailed{SessionID: "B"})
	if failed.Archive.Loading {
		t.Error("loading flag kept after failure")
	}

	refreshing := Reduce(s, ArchiveLoading{SessionID: "A"})
	if !refreshing.Archive.Loading {
		t.Error("loading flag not set on refresh")
	}
	if _, ok := refreshing.ArchivedOrder("0001"); !ok {
		t.Error("archived order hidden while refreshing")
	}
	refreshFailed := Reduce(refreshing, ArchiveFailed{SessionID: "A"})
	if _, ok := refreshFailed.ArchivedOrder("0001"); !ok || refreshFailed.Archive.Loading {
		t.Errorf("archive after failed refresh = %+v", refreshFailed.Archive)
	}
}
