package kds

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rounding modes for the chinchiro adjustment.
type Rounding string

const (
	RoundNearest Rounding = "round"
	RoundFloor   Rounding = "floor"
	RoundCeil    Rounding = "ceil"
)

// UnmarshalJSON accepts the string form and the legacy numeric form
// (0 round, 1 floor, 2 ceil). Anything else decodes to round.
func (r *Rounding) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = ParseRounding(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid rounding %s", data)
	}
	switch n {
	case 1:
		*r = RoundFloor
	case 2:
		*r = RoundCeil
	default:
		*r = RoundNearest
	}
	return nil
}

func ParseRounding(s string) Rounding {
	switch Rounding(strings.ToLower(strings.TrimSpace(s))) {
	case RoundFloor:
		return RoundFloor
	case RoundCeil:
		return RoundCeil
	default:
		return RoundNearest
	}
}

type Chinchiro struct {
	Enabled     bool      `json:"enabled"`
	Multipliers []float64 `json:"multipliers"`
	Rounding    Rounding  `json:"rounding"`
}

type StoreInfo struct {
	Name       string `json:"name"`
	NameRomaji string `json:"nameRomaji"`
	RegisterID string `json:"registerId"`
}

type Numbering struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type QRPrint struct {
	Enabled bool   `json:"enabled"`
	Content string `json:"content"`
}

type Settings struct {
	CatalogVersion int       `json:"catalogVersion,omitempty"`
	PresaleEnabled bool      `json:"presaleEnabled"`
	Store          StoreInfo `json:"store"`
	Numbering      Numbering `json:"numbering"`
	Chinchiro      Chinchiro `json:"chinchiro"`
	QRPrint        QRPrint   `json:"qrPrint"`
}

type Session struct {
	SessionID string `json:"sessionId"`
	StartedAt int64  `json:"startedAt,omitempty"`
	Exported  bool   `json:"exported,omitempty"`
}

type PrinterStatus struct {
	PaperOut bool `json:"paperOut"`
	Overheat bool `json:"overheat"`
	HoldJobs int  `json:"holdJobs"`
}

// StatePayload is the body of GET /api/state. Menu is nil when the server
// omitted it (light responses).
type StatePayload struct {
	Settings *Settings      `json:"settings,omitempty"`
	Session  *Session       `json:"session,omitempty"`
	Printer  *PrinterStatus `json:"printer,omitempty"`
	Menu     Menu           `json:"menu,omitempty"`
	Orders   []Order        `json:"orders"`
}

type SalesSummary struct {
	SessionID       string `json:"sessionId"`
	UpdatedAt       int64  `json:"updatedAt"`
	ConfirmedOrders int    `json:"confirmedOrders"`
	CancelledOrders int    `json:"cancelledOrders"`
	TotalOrders     int    `json:"totalOrders"`
	NetSales        int    `json:"netSales"`
	CancelledAmount int    `json:"cancelledAmount"`
	GrossSales      int    `json:"grossSales"`
	Currency        string `json:"currency"`
}
