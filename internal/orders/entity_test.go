package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordercore/order-server/internal/apperr"
)

func TestNewEntityDefaults(t *testing.T) {
	e := NewEntity("u1", "p1", 2, 19.90, "")

	rec := e.Record()
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "p1", rec.ProductID)
	assert.Equal(t, uint32(2), rec.Quantity)
	assert.Equal(t, 19.90, rec.TotalAmount)
	assert.Equal(t, "CNY", rec.Currency)
	assert.Equal(t, StatusPending, rec.Status)

	e = NewEntity("u1", "p1", 1, 5, "USD")
	assert.Equal(t, "USD", e.Record().Currency)
}

func TestEntityStagingIntoPending(t *testing.T) {
	e := NewEntity("u1", "p1", 1, 10, "")
	require.NoError(t, e.MarkPending("order created"))
	assert.Equal(t, "order created", e.Record().StatusReason)

	require.NoError(t, e.MarkProcessing("picked up"))
	err := e.MarkPending("back to start")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, StatusProcessing, e.Status())
}

func TestEntityTransitionUpdatesReasonAndTimestamp(t *testing.T) {
	e := NewEntity("u1", "p1", 1, 10, "")
	e.SetCreatedAt(time.Now().Add(-time.Hour))
	before := e.Record().UpdatedAt

	require.NoError(t, e.MarkProcessing("reserving"))
	rec := e.Record()
	assert.Equal(t, StatusProcessing, rec.Status)
	assert.Equal(t, "reserving", rec.StatusReason)
	assert.True(t, rec.UpdatedAt.After(before))
	assert.True(t, !rec.UpdatedAt.Before(rec.CreatedAt))
}

func TestEntityInvalidTransitionLeavesStateUntouched(t *testing.T) {
	e := NewEntity("u1", "p1", 1, 10, "")
	require.NoError(t, e.MarkCancelled("user cancelled"))
	stamp := e.Record().UpdatedAt

	err := e.MarkProcessing("resurrect")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, StatusCancelled, e.Status())
	assert.Equal(t, "user cancelled", e.Record().StatusReason)
	assert.Equal(t, stamp, e.Record().UpdatedAt)
}

func TestMarkPaidAtomicWithTransition(t *testing.T) {
	e := NewEntity("u1", "p1", 1, 10, "")
	paidAt := time.Unix(1700000000, 0)

	// Pending cannot go straight to Paid; nothing is recorded.
	err := e.MarkPaid(10, paidAt, "paid")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, ok := e.PaidAmount()
	assert.False(t, ok)
	_, ok = e.PaidAt()
	assert.False(t, ok)

	require.NoError(t, e.MarkReserved("stock held"))
	require.NoError(t, e.MarkPaid(10, paidAt, "paid"))

	amount, ok := e.PaidAmount()
	require.True(t, ok)
	assert.Equal(t, 10.0, amount)
	when, ok := e.PaidAt()
	require.True(t, ok)
	assert.Equal(t, paidAt, when)
	assert.Equal(t, StatusPaid, e.Status())

	require.NoError(t, e.MarkCompleted("fulfilled"))
	assert.True(t, e.IsTerminal())
}

func TestEntityPredicates(t *testing.T) {
	e := NewEntity("u1", "p1", 1, 10, "")
	assert.True(t, e.IsPending())
	assert.True(t, e.IsReservable())
	assert.False(t, e.IsTerminal())

	require.NoError(t, e.MarkProcessing(""))
	assert.False(t, e.IsPending())
	assert.True(t, e.IsReservable())

	require.NoError(t, e.MarkFailed("reservation denied"))
	assert.False(t, e.IsReservable())
	assert.True(t, e.IsTerminal())
}

func TestSetCreatedAtStampsBothTimestamps(t *testing.T) {
	e := NewEntity("u1", "p1", 1, 10, "")
	ts := time.Unix(1700000000, 0)
	e.SetCreatedAt(ts)
	assert.Equal(t, ts, e.Record().CreatedAt)
	assert.Equal(t, ts, e.Record().UpdatedAt)
}

func TestReservationIDShape(t *testing.T) {
	assert.Equal(t, "ORD-1:p9", ReservationID("ORD-1", "p9"))
}
