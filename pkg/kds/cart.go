package kds

import (
	"fmt"
	"math"
)

type LineKind string

const (
	KindMainSingle LineKind = "MAIN_SINGLE"
	KindSet        LineKind = "SET"
	KindSideSingle LineKind = "SIDE_SINGLE"
)

type PriceMode string

const (
	PriceModeNormal  PriceMode = "normal"
	PriceModePresale PriceMode = "presale"
)

// CartLine is a client-only cart entry. The concrete types are MainSingle,
// Set and SideSingle; consumers switch over them exhaustively.
type CartLine interface {
	Kind() LineKind
	Quantity() float64
	withQuantity(q float64) CartLine
}

type MainSingle struct {
	MainSKU   string
	PriceMode PriceMode
	Qty       float64
}

type Set struct {
	MainSKU   string
	PriceMode PriceMode
	SideSKUs  []string
	// Multiplier is nil when no chinchiro roll was made for this set.
	Multiplier *float64
	// RollLabel is the human readable roll result printed on the receipt.
	RollLabel string
	Qty       float64
}

type SideSingle struct {
	SideSKU string
	Qty     float64
}

func (l MainSingle) Kind() LineKind    { return KindMainSingle }
func (l MainSingle) Quantity() float64 { return l.Qty }
func (l MainSingle) withQuantity(q float64) CartLine {
	l.Qty = q
	return l
}

func (l Set) Kind() LineKind    { return KindSet }
func (l Set) Quantity() float64 { return l.Qty }
func (l Set) withQuantity(q float64) CartLine {
	l.Qty = q
	l.SideSKUs = append([]string(nil), l.SideSKUs...)
	return l
}

func (l SideSingle) Kind() LineKind    { return KindSideSingle }
func (l SideSingle) Quantity() float64 { return l.Qty }
func (l SideSingle) withQuantity(q float64) CartLine {
	l.Qty = q
	return l
}

// WithQuantity returns a copy of line with its quantity replaced.
func WithQuantity(line CartLine, q float64) CartLine {
	return line.withQuantity(q)
}

// Qty returns the integer quantity used for totals: floored, never below 1.
func Qty(line CartLine) int {
	return SafeQty(line.Quantity())
}

// SafeNum coerces v to a finite number; NaN and ±Inf become 0.
func SafeNum(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SafeQty floors v and clamps it to at least 1. Non-finite input yields 1.
func SafeQty(v float64) int {
	n := math.Floor(SafeNum(v))
	if n < 1 {
		return 1
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// LineDTO is the flat JSON form of a cart line, used on the wire to the
// server and by the local renderer API.
type LineDTO struct {
	Type       LineKind  `json:"type"`
	MainSKU    string    `json:"mainSku,omitempty"`
	SideSKU    string    `json:"sideSku,omitempty"`
	SideSKUs   []string  `json:"sideSkus,omitempty"`
	PriceMode  PriceMode `json:"priceMode,omitempty"`
	Multiplier *float64  `json:"chinchoiroMultiplier,omitempty"`
	RollLabel  string    `json:"chinchoiroResult,omitempty"`
	Qty        float64   `json:"qty"`
}

// ToDTO converts a line without sanitising it.
func ToDTO(line CartLine) LineDTO {
	switch l := line.(type) {
	case MainSingle:
		return LineDTO{Type: KindMainSingle, MainSKU: l.MainSKU, PriceMode: l.PriceMode, Qty: l.Qty}
	case Set:
		return LineDTO{
			Type:       KindSet,
			MainSKU:    l.MainSKU,
			PriceMode:  l.PriceMode,
			SideSKUs:   append([]string(nil), l.SideSKUs...),
			Multiplier: l.Multiplier,
			RollLabel:  l.RollLabel,
			Qty:        l.Qty,
		}
	case SideSingle:
		return LineDTO{Type: KindSideSingle, SideSKU: l.SideSKU, Qty: l.Qty}
	default:
		panic(fmt.Sprintf("kds: unknown cart line %T", line))
	}
}

// FromDTO validates the discriminator and required SKUs.
func FromDTO(dto LineDTO) (CartLine, error) {
	mode := dto.PriceMode
	if mode != PriceModePresale {
		mode = PriceModeNormal
	}
	qty := dto.Qty
	if qty == 0 {
		qty = 1
	}
	switch dto.Type {
	case KindMainSingle:
		if dto.MainSKU == "" {
			return nil, fmt.Errorf("main sku is required for %s", dto.Type)
		}
		return MainSingle{MainSKU: dto.MainSKU, PriceMode: mode, Qty: qty}, nil
	case KindSet:
		if dto.MainSKU == "" {
			return nil, fmt.Errorf("main sku is required for %s", dto.Type)
		}
		return Set{
			MainSKU:    dto.MainSKU,
			PriceMode:  mode,
			SideSKUs:   append([]string(nil), dto.SideSKUs...),
			Multiplier: dto.Multiplier,
			RollLabel:  dto.RollLabel,
			Qty:        qty,
		}, nil
	case KindSideSingle:
		if dto.SideSKU == "" {
			return nil, fmt.Errorf("side sku is required for %s", dto.Type)
		}
		return SideSingle{SideSKU: dto.SideSKU, Qty: qty}, nil
	default:
		return nil, fmt.Errorf("unknown line type %q", dto.Type)
	}
}

// WireLine is a sanitised line ready for POST /api/orders. Every numeric
// field is finite by construction.
type WireLine struct {
	Type       LineKind  `json:"type"`
	MainSKU    string    `json:"mainSku,omitempty"`
	SideSKU    string    `json:"sideSku,omitempty"`
	SideSKUs   []string  `json:"sideSkus,omitempty"`
	PriceMode  PriceMode `json:"priceMode,omitempty"`
	Multiplier *float64  `json:"chinchoiroMultiplier,omitempty"`
	RollLabel  string    `json:"chinchoiroResult,omitempty"`
	Qty        int       `json:"qty"`
}

// Sanitize converts a line into its wire form, coercing every numeric field
// through SafeNum and the quantity through SafeQty.
func Sanitize(line CartLine) WireLine {
	dto := ToDTO(line)
	w := WireLine{
		Type:      dto.Type,
		MainSKU:   dto.MainSKU,
		SideSKU:   dto.SideSKU,
		SideSKUs:  dto.SideSKUs,
		PriceMode: dto.PriceMode,
		RollLabel: dto.RollLabel,
		Qty:       SafeQty(dto.Qty),
	}
	if dto.Multiplier != nil {
		m := SafeNum(*dto.Multiplier)
		w.Multiplier = &m
	}
	return w
}

type CreateOrderRequest struct {
	Lines []WireLine `json:"lines"`
}
