package orders

import "time"

// Record is the flat transport/storage form of an order. All mutation
// happens through Entity; Record only moves data between layers.
type Record struct {
	OrderID      string
	UserID       string
	ProductID    string
	Quantity     uint32
	TotalAmount  float64
	Currency     string
	Status       Status
	StatusReason string
	PayloadJSON  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Reservation is a promise against stock held until committed or released.
// The id is deterministic (orderId:productId) so duplicates collide.
type Reservation struct {
	ReservationID string
	OrderID       string
	ProductID     string
	Quantity      uint32
	ExpiresAt     time.Time
}

func ReservationID(orderID, productID string) string {
	return orderID + ":" + productID
}
