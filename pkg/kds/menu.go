package kds

// Menu categories.
const (
	CategoryMain = "MAIN"
	CategorySide = "SIDE"
)

// MenuItem mirrors one entry of GET /api/menu. Prices are integer yen.
type MenuItem struct {
	SKU             string `json:"sku"`
	Category        string `json:"category"`
	Name            string `json:"name"`
	NameRomaji      string `json:"nameRomaji,omitempty"`
	Active          bool   `json:"active"`
	PriceNormal     int    `json:"price_normal"`
	PricePresale    int    `json:"price_presale,omitempty"`
	PresaleDiscount int    `json:"presale_discount_amount"`
	PriceSingle     int    `json:"price_single"`
	PriceAsSide     int    `json:"price_as_side"`
}

// MainPrice returns the unit price of a MAIN item for the given mode. An
// explicit presale price wins; otherwise the (non-positive) discount is
// applied to the normal price.
func (m MenuItem) MainPrice(mode PriceMode) int {
	if mode != PriceModePresale {
		return m.PriceNormal
	}
	if m.PricePresale > 0 {
		return m.PricePresale
	}
	discount := m.PresaleDiscount
	if discount > 0 {
		discount = 0
	}
	return m.PriceNormal + discount
}

func (m MenuItem) IsMain() bool { return m.Category == CategoryMain }
func (m MenuItem) IsSide() bool { return m.Category == CategorySide }

type Menu []MenuItem

// Find looks an item up by SKU.
func (m Menu) Find(sku string) (MenuItem, bool) {
	for _, item := range m {
		if item.SKU == sku {
			return item, true
		}
	}
	return MenuItem{}, false
}

// Active returns the active items of a category in menu order.
func (m Menu) Active(category string) Menu {
	out := make(Menu, 0, len(m))
	for _, item := range m {
		if item.Active && item.Category == category {
			out = append(out, item)
		}
	}
	return out
}

// Clone returns a copy that does not share the backing array.
func (m Menu) Clone() Menu {
	if m == nil {
		return nil
	}
	out := make(Menu, len(m))
	copy(out, m)
	return out
}

// MenuResponse is the body of GET /api/menu.
type MenuResponse struct {
	Menu           Menu `json:"menu"`
	CatalogVersion int  `json:"catalogVersion,omitempty"`
}
