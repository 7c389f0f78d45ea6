package orders

import (
	"fmt"
	"time"

	"github.com/ordercore/order-server/internal/apperr"
)

// Entity is the in-memory order aggregate. It owns the state machine;
// every mutation refreshes UpdatedAt. The Record it produces belongs to
// the durable store once inserted.
type Entity struct {
	rec        Record
	paidAmount *float64
	paidAt     *time.Time
}

func NewEntity(userID, productID string, quantity uint32, amount float64, currency string) *Entity {
	if currency == "" {
		currency = "CNY"
	}
	return &Entity{rec: Record{
		UserID:      userID,
		ProductID:   productID,
		Quantity:    quantity,
		TotalAmount: amount,
		Currency:    currency,
		Status:      StatusPending,
	}}
}

func FromRecord(rec Record) *Entity {
	return &Entity{rec: rec}
}

func (e *Entity) Record() Record { return e.rec }

func (e *Entity) ID() string        { return e.rec.OrderID }
func (e *Entity) UserID() string    { return e.rec.UserID }
func (e *Entity) ProductID() string { return e.rec.ProductID }
func (e *Entity) Status() Status    { return e.rec.Status }

func (e *Entity) PaidAmount() (float64, bool) {
	if e.paidAmount == nil {
		return 0, false
	}
	return *e.paidAmount, true
}

func (e *Entity) PaidAt() (time.Time, bool) {
	if e.paidAt == nil {
		return time.Time{}, false
	}
	return *e.paidAt, true
}

func (e *Entity) SetID(orderID string) {
	e.rec.OrderID = orderID
	e.Touch(time.Now())
}

func (e *Entity) SetPayload(payload string) {
	e.rec.PayloadJSON = payload
	e.Touch(time.Now())
}

// SetCreatedAt stamps both timestamps; used once when staging a new order.
func (e *Entity) SetCreatedAt(ts time.Time) {
	e.rec.CreatedAt = ts
	e.rec.UpdatedAt = ts
}

func (e *Entity) Touch(ts time.Time) {
	e.rec.UpdatedAt = ts
}

func (e *Entity) MarkPending(reason string) error    { return e.transition(StatusPending, reason) }
func (e *Entity) MarkProcessing(reason string) error { return e.transition(StatusProcessing, reason) }
func (e *Entity) MarkReserved(reason string) error   { return e.transition(StatusReserved, reason) }
func (e *Entity) MarkCompleted(reason string) error  { return e.transition(StatusCompleted, reason) }
func (e *Entity) MarkCancelled(reason string) error  { return e.transition(StatusCancelled, reason) }
func (e *Entity) MarkFailed(reason string) error     { return e.transition(StatusFailed, reason) }

// MarkPaid records the payment atomically with the transition: amount and
// timestamp are only set when the transition is legal.
func (e *Entity) MarkPaid(amount float64, when time.Time, reason string) error {
	if !CanTransition(e.rec.Status, StatusPaid) {
		return fmt.Errorf("%w: %s -> Paid", apperr.ErrInvalidTransition, e.rec.Status)
	}
	e.paidAmount = &amount
	e.paidAt = &when
	return e.transition(StatusPaid, reason)
}

func (e *Entity) IsPending() bool    { return e.rec.Status == StatusPending }
func (e *Entity) IsReservable() bool {
	return e.rec.Status == StatusPending || e.rec.Status == StatusProcessing
}
func (e *Entity) IsTerminal() bool { return e.rec.Status.IsTerminal() }

func (e *Entity) transition(to Status, reason string) error {
	// Staging a fresh entity into Pending is not a transition.
	if !(to == StatusPending && e.rec.Status == StatusPending) && !CanTransition(e.rec.Status, to) {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, e.rec.Status, to)
	}
	e.rec.Status = to
	e.rec.StatusReason = reason
	e.rec.UpdatedAt = time.Now()
	return nil
}
