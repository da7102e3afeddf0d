package kds

import "time"

// UnsetEpoch is 2000-01-01T00:00:00Z. Order timestamps at or below it come
// from a server whose clock was never synchronised.
const UnsetEpoch int64 = 946684800

type OrderItem struct {
	SKU              string `json:"sku"`
	Name             string `json:"name"`
	Qty              int    `json:"qty"`
	Kind             string `json:"kind,omitempty"`
	PriceMode        string `json:"priceMode,omitempty"`
	UnitPrice        int    `json:"unitPrice"`
	UnitPriceApplied int    `json:"unitPriceApplied"`
	DiscountName     string `json:"discountName,omitempty"`
	DiscountValue    int    `json:"discountValue,omitempty"`
}

type Order struct {
	OrderNo      string      `json:"orderNo"`
	Status       string      `json:"status"`
	Ts           int64       `json:"ts"`
	Printed      bool        `json:"printed,omitempty"`
	Cooked       bool        `json:"cooked,omitempty"`
	PickupCalled bool        `json:"pickup_called,omitempty"`
	PickedUp     bool        `json:"picked_up,omitempty"`
	CancelReason string      `json:"cancelReason,omitempty"`
	ArchivedAt   int64       `json:"archivedAt,omitempty"`
	Items        []OrderItem `json:"items"`
}

// HasKnownTimestamp reports whether Ts may be used for elapsed time.
func (o Order) HasKnownTimestamp() bool {
	return o.Ts > UnsetEpoch
}

// Elapsed returns the time since the order was placed. The second value is
// false when the timestamp is unset.
func (o Order) Elapsed(now time.Time) (time.Duration, bool) {
	if !o.HasKnownTimestamp() {
		return 0, false
	}
	d := now.Sub(time.Unix(o.Ts, 0))
	if d < 0 {
		d = 0
	}
	return d, true
}

// Total sums the applied unit prices of all items.
func (o Order) Total() int {
	total := 0
	for _, it := range o.Items {
		total += it.UnitPriceApplied * it.Qty
	}
	return total
}

// CallListEntry is one order number being announced for pickup.
type CallListEntry struct {
	OrderNo string `json:"orderNo"`
	Ts      int64  `json:"ts"`
}

type CallListResponse struct {
	CallList []CallListEntry `json:"callList"`
}

type CreateOrderResponse struct {
	OrderNo string `json:"orderNo"`
}

type ArchiveResponse struct {
	SessionID string  `json:"sessionId"`
	Orders    []Order `json:"orders"`
}
