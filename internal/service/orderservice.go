// Package service holds the order orchestration core: it enforces the
// lifecycle state machine, coordinates the KV reservation, the durable
// insert and the event publish on creation, compensates on partial
// failure, and keeps the cache coherent with the repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ordercore/order-server/internal/apperr"
	"github.com/ordercore/order-server/internal/kafka"
	"github.com/ordercore/order-server/internal/orders"
)

// Repository is the durable store contract (a subset of orders.Repo).
type Repository interface {
	Insert(ctx context.Context, rec orders.Record) error
	UpdateStatus(ctx context.Context, orderID string, status orders.Status, reason string) error
	UpdatePayment(ctx context.Context, orderID string, paidAmount float64, paidAt time.Time) error
	GetByID(ctx context.Context, orderID string) (*orders.Record, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]orders.Record, error)
	ListRecent(ctx context.Context, limit int) ([]orders.Record, error)
}

// Cache is the best-effort accelerator contract.
type Cache interface {
	PutOrder(ctx context.Context, rec orders.Record) error
	GetOrder(ctx context.Context, orderID string) (*orders.Record, error)
	RemoveOrder(ctx context.Context, orderID string) error
	RefreshTTL(ctx context.Context, orderID string) error
	PutUserOrders(ctx context.Context, userID string, recs []orders.Record) error
	GetUserOrders(ctx context.Context, userID string) ([]orders.Record, error)
	RemoveUserOrders(ctx context.Context, userID string) error
	Warmup(ctx context.Context, recs []orders.Record) error
}

// Inventory is the reservation protocol contract.
type Inventory interface {
	ReserveForOrder(ctx context.Context, order orders.Record) (orders.Reservation, error)
	CommitReservation(ctx context.Context, res orders.Reservation) error
	ReleaseReservation(ctx context.Context, res orders.Reservation, reason string) error
}

type Publisher interface {
	Publish(topic string, key, value []byte)
}

type Options struct {
	UseCache           bool
	UseMessageQueue    bool
	RequireReservation bool
	DefaultPageSize    int
	MaxPageSize        int
	OrderTopic         string
}

func DefaultOptions() Options {
	return Options{
		UseCache:           true,
		UseMessageQueue:    true,
		RequireReservation: true,
		DefaultPageSize:    20,
		MaxPageSize:        100,
		OrderTopic:         orders.TopicOrderEvents,
	}
}

type Service struct {
	repo      Repository
	cache     Cache
	inventory Inventory
	producer  Publisher
	log       *zap.Logger
	opts      Options
}

func New(repo Repository, cache Cache, inv Inventory, producer Publisher, log *zap.Logger, opts Options) *Service {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.OrderTopic == "" {
		opts.OrderTopic = orders.TopicOrderEvents
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, cache: cache, inventory: inv, producer: producer, log: log, opts: opts}
}

func (s *Service) Options() Options { return s.opts }

// CreateResult carries the created entity and, when inventory was
// involved, the reservation backing it.
type CreateResult struct {
	Entity      *orders.Entity
	Reservation *orders.Reservation
}

// CreateOrder runs the multi-step create transaction:
// stamp -> reserve -> insert -> cache -> publish, compensating the
// reservation if the durable insert fails. A reservation denial still
// writes a Failed row best-effort for the audit trail.
func (s *Service) CreateOrder(ctx context.Context, entity *orders.Entity, rawPayload string) (*CreateResult, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: repository", apperr.ErrMissingDependency)
	}

	entity.SetPayload(rawPayload)
	entity.SetCreatedAt(time.Now())
	if err := entity.MarkPending("order created"); err != nil {
		return nil, err
	}

	var reservation *orders.Reservation
	if s.opts.RequireReservation && s.inventory != nil {
		res, err := s.inventory.ReserveForOrder(ctx, entity.Record())
		if err != nil {
			_ = entity.MarkFailed("inventory reservation failed")
			// Best-effort audit trail; the reservation error is what matters.
			if insErr := s.repo.Insert(ctx, entity.Record()); insErr != nil {
				s.log.Warn("audit insert for failed reservation", zap.Error(insErr))
			} else if s.opts.UseCache && s.cache != nil {
				s.putOrderCache(ctx, entity.Record())
			}
			return nil, err
		}
		reservation = &res
	}

	if err := s.repo.Insert(ctx, entity.Record()); err != nil {
		if reservation != nil {
			if relErr := s.inventory.ReleaseReservation(ctx, *reservation, "rollback"); relErr != nil {
				s.log.Error("reservation rollback failed",
					zap.String("orderId", entity.ID()), zap.Error(relErr))
			}
		}
		if errors.Is(err, apperr.ErrPersistFailed) || errors.Is(err, apperr.ErrStorageUnavailable) {
			return nil, fmt.Errorf("%w: %v", apperr.ErrPersistFailed, err)
		}
		return nil, err
	}

	if s.opts.UseCache && s.cache != nil {
		s.putOrderCache(ctx, entity.Record())
	}
	if s.opts.UseMessageQueue && s.producer != nil {
		s.publishEvent(orders.EventOrderCreated, entity.Record(), rawPayload)
	}

	return &CreateResult{Entity: entity, Reservation: reservation}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, orderID string, status orders.Status, reason string) error {
	if s.repo == nil {
		return fmt.Errorf("%w: repository", apperr.ErrMissingDependency)
	}
	if err := s.repo.UpdateStatus(ctx, orderID, status, reason); err != nil {
		return err
	}
	s.refreshAfterMutation(ctx, orderID)
	if s.opts.UseMessageQueue && s.producer != nil {
		if rec, err := s.repo.GetByID(ctx, orderID); err == nil {
			s.publishEvent(orders.EventOrderStatusUpdated, *rec, reason)
		}
	}
	return nil
}

// MarkPaid records the payment, finalizes the reservation (the deducted
// stock stays deducted) and publishes order.paid.
func (s *Service) MarkPaid(ctx context.Context, orderID string, paidAmount float64, paidAt time.Time) error {
	if s.repo == nil {
		return fmt.Errorf("%w: repository", apperr.ErrMissingDependency)
	}
	if err := s.repo.UpdatePayment(ctx, orderID, paidAmount, paidAt); err != nil {
		return err
	}

	rec, err := s.repo.GetByID(ctx, orderID)
	if err == nil && s.inventory != nil {
		res := orders.Reservation{
			ReservationID: orders.ReservationID(rec.OrderID, rec.ProductID),
			OrderID:       rec.OrderID,
			ProductID:     rec.ProductID,
			Quantity:      rec.Quantity,
		}
		if cErr := s.inventory.CommitReservation(ctx, res); cErr != nil {
			s.log.Warn("reservation commit", zap.String("orderId", orderID), zap.Error(cErr))
		}
	}

	s.refreshAfterMutation(ctx, orderID)
	if s.opts.UseMessageQueue && s.producer != nil && rec != nil {
		s.publishEvent(orders.EventOrderPaid, *rec, "")
	}
	return nil
}

// CancelOrder transitions the row to Cancelled and, when asked, releases
// the reservation synthesized from the row's (orderId, productId,
// quantity) triplet.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string, releaseReservation bool) error {
	if s.repo == nil {
		return fmt.Errorf("%w: repository", apperr.ErrMissingDependency)
	}
	rec, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, orderID, orders.StatusCancelled, reason); err != nil {
		return err
	}

	if releaseReservation && s.inventory != nil {
		res := orders.Reservation{
			ReservationID: orders.ReservationID(rec.OrderID, rec.ProductID),
			OrderID:       rec.OrderID,
			ProductID:     rec.ProductID,
			Quantity:      rec.Quantity,
		}
		if err := s.inventory.ReleaseReservation(ctx, res, "order cancelled"); err != nil {
			s.log.Warn("release on cancel", zap.String("orderId", orderID), zap.Error(err))
		}
	}

	s.refreshAfterMutation(ctx, orderID)
	if s.opts.UseMessageQueue && s.producer != nil {
		s.publishEvent(orders.EventOrderCancelled, *rec, reason)
	}
	return nil
}

// GetOrderByID is the two-tier read: cache when preferred and present,
// repository otherwise, back-filling the cache on a DB hit.
func (s *Service) GetOrderByID(ctx context.Context, orderID string, preferCache bool) (*orders.Entity, error) {
	if preferCache && s.opts.UseCache && s.cache != nil {
		if rec, err := s.cache.GetOrder(ctx, orderID); err == nil && rec != nil {
			// Sliding expiry: a read keeps a hot entry alive.
			_ = s.cache.RefreshTTL(ctx, orderID)
			return orders.FromRecord(*rec), nil
		} else if err != nil {
			s.log.Warn("cache read", zap.String("orderId", orderID), zap.Error(err))
		}
	}

	rec, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if s.opts.UseCache && s.cache != nil {
		s.putOrderCache(ctx, *rec)
	}
	return orders.FromRecord(*rec), nil
}

// ListOrdersByUser clamps limit to MaxPageSize; limit == 0 returns empty
// without touching storage.
func (s *Service) ListOrdersByUser(ctx context.Context, userID string, limit, offset int, preferCache bool) ([]orders.Record, error) {
	if limit == 0 {
		return nil, nil
	}
	if limit < 0 {
		limit = s.opts.DefaultPageSize
	}
	if limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	if preferCache && s.opts.UseCache && s.cache != nil {
		if recs, err := s.cache.GetUserOrders(ctx, userID); err == nil && len(recs) > 0 {
			return recs, nil
		} else if err != nil {
			s.log.Warn("cache list read", zap.String("userId", userID), zap.Error(err))
		}
	}

	recs, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 && s.opts.UseCache && s.cache != nil {
		if err := s.cache.PutUserOrders(ctx, userID, recs); err != nil {
			s.log.Warn("user cache fill", zap.String("userId", userID), zap.Error(err))
		}
	}
	return recs, nil
}

// RefreshCache re-reads the row and rewrites the detail entry. A failed
// rewrite deletes the entry rather than leaving it inconsistent.
func (s *Service) RefreshCache(ctx context.Context, orderID string) {
	if !s.opts.UseCache || s.cache == nil {
		return
	}
	rec, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		_ = s.cache.RemoveOrder(ctx, orderID)
		return
	}
	s.putOrderCache(ctx, *rec)
}

// WarmupCache bulk-loads records at startup; failures are logged only.
func (s *Service) WarmupCache(ctx context.Context, recs []orders.Record) {
	if !s.opts.UseCache || s.cache == nil || len(recs) == 0 {
		return
	}
	if err := s.cache.Warmup(ctx, recs); err != nil {
		s.log.Warn("cache warmup", zap.Int("records", len(recs)), zap.Error(err))
		return
	}
	s.log.Info("cache warmup completed", zap.Int("records", len(recs)))
}

// refreshAfterMutation keeps the cache coherent after a repository write:
// the detail key is refreshed and the user's list key invalidated.
func (s *Service) refreshAfterMutation(ctx context.Context, orderID string) {
	if !s.opts.UseCache || s.cache == nil {
		return
	}
	rec, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		_ = s.cache.RemoveOrder(ctx, orderID)
		return
	}
	s.putOrderCache(ctx, *rec)
	if err := s.cache.RemoveUserOrders(ctx, rec.UserID); err != nil {
		s.log.Warn("user cache invalidation", zap.String("userId", rec.UserID), zap.Error(err))
	}
}

// putOrderCache writes the detail entry; on failure the entry is removed
// so the cache never holds an entry older than the row.
func (s *Service) putOrderCache(ctx context.Context, rec orders.Record) {
	if err := s.cache.PutOrder(ctx, rec); err != nil {
		s.log.Warn("cache put", zap.String("orderId", rec.OrderID), zap.Error(err))
		_ = s.cache.RemoveOrder(ctx, rec.OrderID)
	}
}

func (s *Service) publishEvent(event string, rec orders.Record, payload string) {
	body := kafka.MustMarshal(orders.OrderEvent{
		Event:     event,
		OrderID:   rec.OrderID,
		UserID:    rec.UserID,
		ProductID: rec.ProductID,
		Status:    int(rec.Status),
		Payload:   payload,
	})
	s.producer.Publish(s.opts.OrderTopic, orders.PartitionKey(rec.OrderID), body)
}
