package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordercore/order-server/internal/apperr"
	"github.com/ordercore/order-server/internal/orders"
)

func TestReservationValueRoundTrip(t *testing.T) {
	res := orders.Reservation{
		ReservationID: "ORD-1:p1",
		OrderID:       "ORD-1",
		ProductID:     "p1",
		Quantity:      4,
		ExpiresAt:     time.Unix(1700000300, 0),
	}

	value := encodeReservation(res)
	assert.Equal(t, "ORD-1,p1,4,1700000300", value)

	out, err := DecodeReservation(res.ReservationID, value)
	require.NoError(t, err)
	assert.Equal(t, res, out)
}

func TestDecodeReservationMalformed(t *testing.T) {
	_, err := DecodeReservation("id", "too,few")
	assert.Error(t, err)

	_, err = DecodeReservation("id", "o,p,many,1700000300,extra")
	assert.Error(t, err)

	_, err = DecodeReservation("id", "o,p,notanumber,1700000300")
	assert.Error(t, err)

	_, err = DecodeReservation("id", "o,p,4,notatime")
	assert.Error(t, err)
}

func TestReleaseResultSentinels(t *testing.T) {
	// A sentinel means the script restored nothing; release must fail
	// rather than report the hold as gone.
	err := releaseResultErr(-1, "p1")
	assert.ErrorIs(t, err, apperr.ErrStockMissing)

	err = releaseResultErr(-2, "p1")
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)

	assert.NoError(t, releaseResultErr(0, "p1"))
	assert.NoError(t, releaseResultErr(42, "p1"))
}

func TestServiceOptionDefaults(t *testing.T) {
	s := New(nil, nil, nil, Options{})
	assert.Equal(t, "stock:p1", s.stockKey("p1"))
	assert.Equal(t, "reservation:ORD-1:p1", s.reservationKey("ORD-1:p1"))
	assert.Equal(t, 5*time.Minute, s.opts.ReservationTTL)
	assert.Equal(t, orders.TopicReservation, s.opts.ReservationRoutingKey)
	assert.Equal(t, orders.TopicRestock, s.opts.RestockRoutingKey)
}

func TestServiceOptionOverrides(t *testing.T) {
	s := New(nil, nil, nil, Options{
		StockKeyPrefix:       "inv:stock:",
		ReservationKeyPrefix: "inv:hold:",
		ReservationTTL:       90 * time.Second,
	})
	assert.Equal(t, "inv:stock:p1", s.stockKey("p1"))
	assert.Equal(t, "inv:hold:r1", s.reservationKey("r1"))
	assert.Equal(t, 90*time.Second, s.opts.ReservationTTL)
}
