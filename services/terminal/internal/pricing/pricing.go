// Package pricing computes cart totals the same way the server prices an
// order: integer yen, with an optional chinchiro adjustment on SET lines.
package pricing

import (
	"math"

	"github.com/appetiteclub/kds/pkg/kds"
)

const adjustmentScale = 1e9

// Adjustment returns the chinchiro adjustment for a SET whose base price is
// base and whose roll produced multiplier m. m == 1 always yields 0.
// Round is half away from zero.
func Adjustment(base int, m float64, rounding kds.Rounding) int {
	m = kds.SafeNum(m)
	if m == 1 {
		return 0
	}
	raw := float64(base) * (m - 1)
	// multipliers such as 1.1 are not exact in binary; drop the noise so
	// floor and ceil see 70, not 70.00000000000006
	raw = math.Round(raw*adjustmentScale) / adjustmentScale
	var adj float64
	switch rounding {
	case kds.RoundFloor:
		adj = math.Floor(raw)
	case kds.RoundCeil:
		adj = math.Ceil(raw)
	default:
		adj = math.Round(raw)
	}
	if adj == 0 {
		// avoid -0 leaking into JSON
		return 0
	}
	return int(adj)
}

// Line is the price breakdown of one cart line. Unit and Adjustment are per
// unit; Total is (Unit + Adjustment) * Qty.
type Line struct {
	Unit       int  `json:"unit"`
	Adjustment int  `json:"adjustment"`
	Qty        int  `json:"qty"`
	Total      int  `json:"total"`
	Unknown    bool `json:"unknown,omitempty"`
}

// LineTotal is the unit total of line including any chinchiro adjustment.
func LineTotal(menu kds.Menu, line kds.CartLine, chinchiro kds.Chinchiro) int {
	b := Breakdown(menu, line, chinchiro)
	return b.Unit + b.Adjustment
}

// CartTotal is Σ LineTotal × qty.
func CartTotal(menu kds.Menu, lines []kds.CartLine, chinchiro kds.Chinchiro) int {
	total := 0
	for _, line := range lines {
		total += Breakdown(menu, line, chinchiro).Total
	}
	return total
}

// Breakdown prices one line. SKUs missing from the menu contribute 0 and
// set Unknown; they never fail the cart.
func Breakdown(menu kds.Menu, line kds.CartLine, chinchiro kds.Chinchiro) Line {
	out := Line{Qty: kds.Qty(line)}

	switch l := line.(type) {
	case kds.MainSingle:
		if main, ok := menu.Find(l.MainSKU); ok {
			out.Unit = main.MainPrice(l.PriceMode)
		} else {
			out.Unknown = true
		}
	case kds.Set:
		if main, ok := menu.Find(l.MainSKU); ok {
			out.Unit = main.MainPrice(l.PriceMode)
		} else {
			out.Unknown = true
		}
		for _, sku := range l.SideSKUs {
			side, ok := menu.Find(sku)
			if !ok {
				out.Unknown = true
				continue
			}
			out.Unit += side.PriceAsSide
		}
		if chinchiro.Enabled && l.Multiplier != nil {
			out.Adjustment = Adjustment(out.Unit, *l.Multiplier, chinchiro.Rounding)
		}
	case kds.SideSingle:
		if side, ok := menu.Find(l.SideSKU); ok {
			out.Unit = side.PriceSingle
		} else {
			out.Unknown = true
		}
	}

	out.Total = (out.Unit + out.Adjustment) * out.Qty
	return out
}

// Cart is the priced view of a whole cart.
type Cart struct {
	Lines []Line `json:"lines"`
	Total int    `json:"total"`
}

// PriceCart prices every line of the cart and sums them.
func PriceCart(menu kds.Menu, lines []kds.CartLine, chinchiro kds.Chinchiro) Cart {
	out := Cart{Lines: make([]Line, 0, len(lines))}
	for _, line := range lines {
		b := Breakdown(menu, line, chinchiro)
		out.Lines = append(out.Lines, b)
		out.Total += b.Total
	}
	return out
}
