package kds

import (
	"testing"
	"time"
)

func TestOrderElapsed(t *testing.T) {
	now := time.Unix(1700000120, 0)
	tests := []struct {
		name   string
		ts     int64
		want   time.Duration
		wantOK bool
	}{
		{name: "zero", ts: 0},
		{name: "unsetEpoch", ts: UnsetEpoch},
		{name: "beforeEpoch", ts: UnsetEpoch - 3600},
		{name: "known", ts: 1700000000, want: 2 * time.Minute, wantOK: true},
		{name: "future", ts: 1700000200, want: 0, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Order{OrderNo: "0001", Ts: tt.ts}
			if got := o.HasKnownTimestamp(); got != tt.wantOK {
				t.Errorf("HasKnownTimestamp() = %v, want %v", got, tt.wantOK)
			}
			got, ok := o.Elapsed(now)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Elapsed() = %v, %v, want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestOrderTotal(t *testing.T) {
	o := Order{Items: []OrderItem{
		{SKU: "M001", Qty: 2, UnitPrice: 800, UnitPriceApplied: 700},
		{SKU: "S001", Qty: 1, UnitPrice: 150, UnitPriceApplied: 150},
	}}
	if got := o.Total(); got != 1550 {
		t.Errorf("Total() = %d, want 1550", got)
	}
	if got := (Order{}).Total(); got != 0 {
		t.Errorf("empty Total() = %d, want 0", got)
	}
}
