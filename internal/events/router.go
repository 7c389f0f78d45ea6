// Package events routes inbound bus messages into the order and
// inventory services. Only the envelope's event name is parsed up front;
// each handler decides how deeply to parse the rest.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ordercore/order-server/internal/kafka"
	"github.com/ordercore/order-server/internal/orders"
	"github.com/ordercore/order-server/internal/redisx"
	"github.com/ordercore/order-server/internal/service"
)

// Consumer is the blocking message source; kafka.Consumer satisfies it.
type Consumer interface {
	Start(ctx context.Context, h kafka.Handler) error
}

// DedupStore is the slice of the Redis client backing event dedup;
// redis.Client satisfies it.
type DedupStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// StockAdjuster is the slice of the inventory service the router needs.
type StockAdjuster interface {
	AdjustStock(ctx context.Context, productID string, delta int64) error
}

type Handler func(ctx context.Context, raw []byte) error

type Options struct {
	ServiceName string
}

// Router subscribes to the order queue and dispatches envelopes by event
// name. The handler map is populated once in Initialize and read-only
// afterwards, so the dispatch path takes no lock.
type Router struct {
	consumer  Consumer
	orders    *service.Service
	inventory StockAdjuster
	rdb       DedupStore
	log       *zap.Logger
	opts      Options

	handlers map[string]Handler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRouter(consumer Consumer, svc *service.Service, inv StockAdjuster, rdb DedupStore, log *zap.Logger, opts Options) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "order-router"
	}
	return &Router{
		consumer:  consumer,
		orders:    svc,
		inventory: inv,
		rdb:       rdb,
		log:       log,
		opts:      opts,
	}
}

func (r *Router) Initialize() {
	r.handlers = map[string]Handler{
		orders.EventOrderCreated:      r.onOrderCreated,
		orders.EventOrderPaid:         r.onOrderPaid,
		orders.EventOrderCancelled:    r.onOrderCancelled,
		orders.EventInventoryReleased: r.onInventoryReleased,
	}
	r.log.Info("event router initialized", zap.Int("handlers", len(r.handlers)))
}

// Start installs the routing callback on the consumer. Idempotent: a
// second Start while running is a no-op.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	if r.consumer == nil {
		r.log.Error("event router missing consumer dependency")
		return
	}
	if r.handlers == nil {
		r.Initialize()
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go func() {
		defer close(r.done)
		if err := r.consumer.Start(ctx, func(ctx context.Context, m kafkago.Message) error {
			r.route(ctx, m.Value)
			return nil
		}); err != nil {
			r.log.Error("event consumer exited", zap.Error(err))
		}
	}()
	r.log.Info("event router started")
}

// Stop clears the callback and stops the consumer. Stop after Stop is a
// no-op.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	r.log.Info("event router stopped")
}

// route never returns an error to the consumer loop: handler failures and
// panics are logged, and the message is acknowledged either way.
func (r *Router) route(ctx context.Context, raw []byte) {
	var env struct {
		Event   string `json:"event"`
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		r.log.Warn("invalid message: no event field")
		return
	}

	handler, ok := r.handlers[env.Event]
	if !ok {
		r.log.Warn("no handler registered", zap.String("event", env.Event))
		return
	}

	dedupKey := r.dedupKey(env.Event, env.OrderID)
	if r.markSeen(ctx, dedupKey) {
		r.log.Debug("duplicate event dropped",
			zap.String("event", env.Event), zap.String("orderId", env.OrderID))
		return
	}

	// A failed or panicking handler clears the dedup mark so a
	// redelivered copy gets another attempt.
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic",
				zap.String("event", env.Event), zap.Any("panic", rec))
			r.clearSeen(ctx, dedupKey)
		}
	}()

	if err := handler(ctx, raw); err != nil {
		r.log.Warn("handler failed",
			zap.String("event", env.Event),
			zap.String("orderId", env.OrderID),
			zap.Error(err))
		r.clearSeen(ctx, dedupKey)
	}
}

func (r *Router) dedupKey(event, orderID string) string {
	if r.rdb == nil || orderID == "" {
		return ""
	}
	return fmt.Sprintf(redisx.KeyDedup, r.opts.ServiceName, event+":"+orderID)
}

// markSeen records (event, orderId) in Redis. At-least-once delivery is
// assumed; without Redis, handlers rely on their own idempotence.
func (r *Router) markSeen(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	set, err := r.rdb.SetNX(ctx, key, "1", redisx.TTLDedup).Result()
	if err != nil {
		return false
	}
	return !set
}

func (r *Router) clearSeen(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		r.log.Warn("dedup clear", zap.String("key", key), zap.Error(err))
	}
}

func (r *Router) onOrderCreated(ctx context.Context, raw []byte) error {
	env, err := orders.ParseEnvelope(raw)
	if err != nil {
		return err
	}
	if env.OrderID == "" {
		return fmt.Errorf("order.created: missing orderId")
	}
	r.orders.RefreshCache(ctx, env.OrderID)
	return nil
}

func (r *Router) onOrderPaid(ctx context.Context, raw []byte) error {
	env, err := orders.ParseEnvelope(raw)
	if err != nil {
		return err
	}
	if env.OrderID == "" {
		return fmt.Errorf("order.paid: missing orderId")
	}
	paidAt := time.Now()
	if env.PaidAt > 0 {
		paidAt = time.Unix(env.PaidAt, 0)
	}
	return r.orders.MarkPaid(ctx, env.OrderID, env.Amount, paidAt)
}

func (r *Router) onOrderCancelled(ctx context.Context, raw []byte) error {
	env, err := orders.ParseEnvelope(raw)
	if err != nil {
		return err
	}
	if env.OrderID == "" {
		return fmt.Errorf("order.cancelled: missing orderId")
	}
	reason := env.Reason
	if reason == "" {
		reason = "cancelled via event"
	}
	return r.orders.CancelOrder(ctx, env.OrderID, reason, true)
}

func (r *Router) onInventoryReleased(ctx context.Context, raw []byte) error {
	if r.inventory == nil {
		return nil
	}
	env, err := orders.ParseEnvelope(raw)
	if err != nil {
		return err
	}
	if env.Product == "" || env.Qty == 0 {
		return fmt.Errorf("inventory.released: missing productId or quantity")
	}
	return r.inventory.AdjustStock(ctx, env.Product, int64(env.Qty))
}
