// Package inventory implements stock reservation over Redis.
//
// Reserve and release run as Lua scripts so the check-and-decrement is a
// single atomic step; stock can never be oversold at the KV layer. The
// repository-insert rollback path in the order service remains the second
// line of defense.
package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ordercore/order-server/internal/apperr"
	"github.com/ordercore/order-server/internal/kafka"
	"github.com/ordercore/order-server/internal/orders"
	"github.com/ordercore/order-server/internal/redisx"
)

// Publisher is the outbound event sink; nil disables publication.
type Publisher interface {
	Publish(topic string, key, value []byte)
}

type Options struct {
	ReservationTTL        time.Duration
	StockKeyPrefix        string
	ReservationKeyPrefix  string
	ReservationRoutingKey string
	RestockRoutingKey     string
	PublishEvents         bool
}

type Service struct {
	rdb      *redis.Client
	producer Publisher
	log      *zap.Logger
	opts     Options
}

func New(rdb *redis.Client, producer Publisher, log *zap.Logger, opts Options) *Service {
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = redisx.TTLReservation
	}
	if opts.StockKeyPrefix == "" {
		opts.StockKeyPrefix = redisx.PrefixStock
	}
	if opts.ReservationKeyPrefix == "" {
		opts.ReservationKeyPrefix = redisx.PrefixReservation
	}
	if opts.ReservationRoutingKey == "" {
		opts.ReservationRoutingKey = orders.TopicReservation
	}
	if opts.RestockRoutingKey == "" {
		opts.RestockRoutingKey = orders.TopicRestock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{rdb: rdb, producer: producer, log: log, opts: opts}
}

// Script results: -1 stock key missing, -2 stock not an integer,
// -3 insufficient; >= 0 is the remaining stock after the decrement.
var reserveScript = redis.NewScript(`
local stock = redis.call('GET', KEYS[1])
if not stock then return -1 end
stock = tonumber(stock)
if stock == nil then return -2 end
local qty = tonumber(ARGV[1])
if stock < qty then return -3 end
redis.call('SET', KEYS[1], stock - qty)
redis.call('SET', KEYS[2], ARGV[2], 'EX', ARGV[3])
return stock - qty
`)

var releaseScript = redis.NewScript(`
local stock = redis.call('GET', KEYS[1])
if not stock then return -1 end
stock = tonumber(stock)
if stock == nil then return -2 end
redis.call('SET', KEYS[1], stock + tonumber(ARGV[1]))
redis.call('DEL', KEYS[2])
return stock + tonumber(ARGV[1])
`)

// ReserveForOrder holds quantity units of the order's product. Idempotent
// on the reservation id: if a reservation for (orderId, productId) is
// still live it is returned as-is without touching stock again.
func (s *Service) ReserveForOrder(ctx context.Context, order orders.Record) (orders.Reservation, error) {
	reservationID := orders.ReservationID(order.OrderID, order.ProductID)

	if existing, err := s.fetchReservation(ctx, reservationID); err == nil && existing != nil {
		return *existing, nil
	}

	expiresAt := time.Now().Add(s.opts.ReservationTTL)
	res := orders.Reservation{
		ReservationID: reservationID,
		OrderID:       order.OrderID,
		ProductID:     order.ProductID,
		Quantity:      order.Quantity,
		ExpiresAt:     expiresAt,
	}

	n, err := reserveScript.Run(ctx, s.rdb,
		[]string{s.stockKey(order.ProductID), s.reservationKey(reservationID)},
		order.Quantity,
		encodeReservation(res),
		int(s.opts.ReservationTTL.Seconds()),
	).Int64()
	if err != nil {
		return orders.Reservation{}, fmt.Errorf("%w: reserve: %v", apperr.ErrStorageUnavailable, err)
	}

	switch n {
	case -1:
		return orders.Reservation{}, fmt.Errorf("%w: product %s", apperr.ErrStockMissing, order.ProductID)
	case -2:
		return orders.Reservation{}, fmt.Errorf("%w: product %s: bad stock value", apperr.ErrStorageUnavailable, order.ProductID)
	case -3:
		return orders.Reservation{}, fmt.Errorf("%w: product %s, want %d", apperr.ErrInsufficientStock, order.ProductID, order.Quantity)
	}

	s.log.Debug("stock reserved",
		zap.String("reservationId", reservationID),
		zap.String("productId", order.ProductID),
		zap.Uint32("quantity", order.Quantity),
		zap.Int64("remaining", n))
	if s.opts.PublishEvents && s.producer != nil {
		s.publishReservationEvent(res, "created")
	}
	return res, nil
}

// CommitReservation finalizes the hold: the deducted stock stays deducted
// and the reservation key disappears.
func (s *Service) CommitReservation(ctx context.Context, res orders.Reservation) error {
	if err := s.rdb.Del(ctx, s.reservationKey(res.ReservationID)).Err(); err != nil {
		return fmt.Errorf("%w: commit reservation: %v", apperr.ErrStorageUnavailable, err)
	}
	if s.opts.PublishEvents && s.producer != nil {
		s.publishReservationEvent(res, "committed")
	}
	return nil
}

// ReleaseReservation returns quantity to stock and drops the reservation.
// A script sentinel means nothing was restored; the caller must not treat
// the hold as gone.
func (s *Service) ReleaseReservation(ctx context.Context, res orders.Reservation, reason string) error {
	n, err := releaseScript.Run(ctx, s.rdb,
		[]string{s.stockKey(res.ProductID), s.reservationKey(res.ReservationID)},
		res.Quantity,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: release: %v", apperr.ErrStorageUnavailable, err)
	}
	if err := releaseResultErr(n, res.ProductID); err != nil {
		return err
	}
	if s.opts.PublishEvents && s.producer != nil {
		s.publishReservationEvent(res, "released:"+reason)
	}
	return nil
}

// releaseResultErr maps the release script's sentinels: -1 stock key
// missing, -2 stock not an integer; >= 0 is the restored stock level.
func releaseResultErr(n int64, productID string) error {
	switch n {
	case -1:
		return fmt.Errorf("%w: product %s", apperr.ErrStockMissing, productID)
	case -2:
		return fmt.Errorf("%w: product %s: bad stock value", apperr.ErrStorageUnavailable, productID)
	}
	return nil
}

// AdjustStock applies a delta, clamped at zero on underflow. Advisory:
// restock tooling, not the reservation hot path.
func (s *Service) AdjustStock(ctx context.Context, productID string, delta int64) error {
	val, err := s.rdb.Get(ctx, s.stockKey(productID)).Result()
	if err != nil {
		return fmt.Errorf("%w: adjust stock: %v", apperr.ErrStorageUnavailable, err)
	}
	stock, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: adjust stock: %v", apperr.ErrStorageUnavailable, err)
	}
	stock += delta
	if stock < 0 {
		s.log.Warn("stock adjust clamped at zero",
			zap.String("productId", productID), zap.Int64("delta", delta))
		stock = 0
	}
	if err := s.rdb.Set(ctx, s.stockKey(productID), strconv.FormatInt(stock, 10), 0).Err(); err != nil {
		return fmt.Errorf("%w: adjust stock: %v", apperr.ErrStorageUnavailable, err)
	}
	if s.opts.PublishEvents && s.producer != nil && delta > 0 {
		s.publishRestockEvent(productID, delta)
	}
	return nil
}

func (s *Service) SetStock(ctx context.Context, productID string, amount uint64) error {
	return s.rdb.Set(ctx, s.stockKey(productID), strconv.FormatUint(amount, 10), 0).Err()
}

func (s *Service) QueryStock(ctx context.Context, productID string) (uint64, error) {
	val, err := s.rdb.Get(ctx, s.stockKey(productID)).Result()
	if err == redis.Nil {
		return 0, apperr.ErrStockMissing
	}
	if err != nil {
		return 0, fmt.Errorf("%w: query stock: %v", apperr.ErrStorageUnavailable, err)
	}
	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: query stock: %v", apperr.ErrStorageUnavailable, err)
	}
	return n, nil
}

// SyncStockFromDatabase would rebuild the stock counter from durable
// rows. The orders schema has no per-product aggregate to rebuild from,
// so this stays a no-op.
func (s *Service) SyncStockFromDatabase(ctx context.Context, productID string) error {
	return nil
}

func (s *Service) publishReservationEvent(res orders.Reservation, eventType string) {
	body := kafka.MustMarshal(orders.ReservationEvent{
		ReservationID: res.ReservationID,
		OrderID:       res.OrderID,
		ProductID:     res.ProductID,
		Quantity:      res.Quantity,
		EventType:     eventType,
	})
	s.producer.Publish(s.opts.ReservationRoutingKey, orders.PartitionKey(res.OrderID), body)
}

func (s *Service) publishRestockEvent(productID string, quantity int64) {
	body := kafka.MustMarshal(orders.RestockEvent{
		ProductID: productID,
		Quantity:  quantity,
		EventType: "restock",
	})
	s.producer.Publish(s.opts.RestockRoutingKey, []byte(productID), body)
}

func (s *Service) stockKey(productID string) string {
	return s.opts.StockKeyPrefix + productID
}

func (s *Service) reservationKey(reservationID string) string {
	return s.opts.ReservationKeyPrefix + reservationID
}

// Reservation value format: orderId,productId,quantity,expiresAtEpoch.
func encodeReservation(res orders.Reservation) string {
	return strings.Join([]string{
		res.OrderID,
		res.ProductID,
		strconv.FormatUint(uint64(res.Quantity), 10),
		strconv.FormatInt(res.ExpiresAt.Unix(), 10),
	}, ",")
}

func DecodeReservation(reservationID, value string) (orders.Reservation, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return orders.Reservation{}, fmt.Errorf("reservation value: want 4 fields, got %d", len(parts))
	}
	qty, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return orders.Reservation{}, fmt.Errorf("reservation value: quantity: %w", err)
	}
	exp, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return orders.Reservation{}, fmt.Errorf("reservation value: expiresAt: %w", err)
	}
	return orders.Reservation{
		ReservationID: reservationID,
		OrderID:       parts[0],
		ProductID:     parts[1],
		Quantity:      uint32(qty),
		ExpiresAt:     time.Unix(exp, 0),
	}, nil
}

func (s *Service) fetchReservation(ctx context.Context, reservationID string) (*orders.Reservation, error) {
	val, err := s.rdb.Get(ctx, s.reservationKey(reservationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res, err := DecodeReservation(reservationID, val)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
