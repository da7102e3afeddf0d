package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Push message types sent by the embedded server over /ws.
const (
	TypeHello         = "hello"
	TypeSyncSnapshot  = "sync.snapshot"
	TypeSystemReset   = "system.reset"
	TypeSessionEnded  = "session.ended"
	TypeOrderCreated  = "order.created"
	TypeOrderUpdated  = "order.updated"
	TypePrinterStatus = "printer.status"
	TypeOrderCooked   = "order.cooked"
	TypeOrderPicked   = "order.picked"
)

// Relay topic and event type used when a terminal republishes its
// reconciled state revision to NATS.
const (
	StateTopic        = "kds.state"
	EventStateChanged = "kds.state.changed"
)

// Envelope carries only the discriminator; the full payload is decoded
// again into the concrete message once the type is known.
type Envelope struct {
	Type string `json:"type"`
}

type HelloMessage struct {
	Type string `json:"type"`
	Msg  string `json:"msg,omitempty"`
}

// PrinterStatusMessage fields are pointers so that absent fields leave the
// mirrored value untouched.
type PrinterStatusMessage struct {
	Type     string `json:"type"`
	PaperOut *bool  `json:"paperOut,omitempty"`
	Overheat *bool  `json:"overheat,omitempty"`
	HoldJobs *int   `json:"holdJobs,omitempty"`
}

type OrderCookedMessage struct {
	Type    string  `json:"type"`
	OrderNo OrderNo `json:"orderNo"`
	Ts      int64   `json:"ts,omitempty"`
}

type OrderPickedMessage struct {
	Type    string  `json:"type"`
	OrderNo OrderNo `json:"orderNo"`
}

type OrderChangedMessage struct {
	Type    string  `json:"type"`
	OrderNo OrderNo `json:"orderNo,omitempty"`
	Status  string  `json:"status,omitempty"`
}

// StateChangedEvent is published to NATS after a render-worthy mutation so
// that renderers running in other processes can pull a fresh snapshot.
type StateChangedEvent struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	TerminalID string    `json:"terminal_id"`
	Revision   uint64    `json:"revision"`
	Page       string    `json:"page,omitempty"`
	Online     bool      `json:"online"`
	SessionID  string    `json:"session_id,omitempty"`
}

// OrderNo accepts both JSON strings and numbers. Firmware builds differ in
// how they encode order numbers.
type OrderNo string

func (o *OrderNo) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = OrderNo(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order number %s: %w", data, err)
	}
	*o = OrderNo(fmt.Sprintf("%04d", n))
	return nil
}

func (o OrderNo) String() string {
	return string(o)
}
