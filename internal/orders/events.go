package orders

import "encoding/json"

const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusUpdated = "order.status_updated"
	EventInventoryReleased  = "inventory.released"
)

// OrderEvent is the flat outbound body for order lifecycle events.
// Status carries the numeric ordinal, not the name.
type OrderEvent struct {
	Event     string `json:"event"`
	OrderID   string `json:"orderId"`
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	Status    int    `json:"status"`
	Payload   string `json:"payload,omitempty"`
}

type ReservationEvent struct {
	ReservationID string `json:"reservationId"`
	OrderID       string `json:"orderId"`
	ProductID     string `json:"productId"`
	Quantity      uint32 `json:"quantity"`
	EventType     string `json:"eventType"`
}

type RestockEvent struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
	EventType string `json:"eventType"`
}

// Envelope is the inbound shape. Only Event is required; dispatch decides
// per handler whether deeper parsing of the raw message is warranted.
type Envelope struct {
	Event   string  `json:"event"`
	OrderID string  `json:"orderId"`
	Product string  `json:"productId"`
	Qty     uint32  `json:"quantity"`
	Amount  float64 `json:"amount"`
	PaidAt  int64   `json:"paidAt"`
	Reason  string  `json:"reason"`
}

func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}
