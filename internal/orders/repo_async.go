package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ordercore/order-server/internal/apperr"
)

// Store is the synchronous surface AsyncRepo funnels through its worker
// pool; *Repo satisfies it.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	Upsert(ctx context.Context, rec Record) error
	UpdateStatus(ctx context.Context, orderID string, status Status, reason string) error
	UpdatePayload(ctx context.Context, orderID, payloadJSON string) error
	Touch(ctx context.Context, orderID string, ts time.Time) error
	Remove(ctx context.Context, orderID string) error
	GetByID(ctx context.Context, orderID string) (*Record, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

// Deferred is a one-shot completion for an asynchronous repository call.
// Receive from it exactly once.
type Deferred[T any] <-chan Result[T]

type Result[T any] struct {
	Value T
	Err   error
}

// AsyncRepo funnels repository work through a bounded job queue consumed
// by a fixed set of workers. Submit order is preserved per queue, not per
// worker; callers that need strict ordering serialize by order id.
// Producers block while the queue is full.
type AsyncRepo struct {
	inner   Store
	jobs    chan func()
	wg      sync.WaitGroup
	once    sync.Once
	started sync.Once
	workers int

	// closeMu fences submits against Close: senders hold the read side,
	// so the channel cannot close under an in-flight send.
	closeMu sync.RWMutex
	closed  bool
}

func NewAsyncRepo(inner Store, workers, queueDepth int) *AsyncRepo {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &AsyncRepo{
		inner:   inner,
		jobs:    make(chan func(), queueDepth),
		workers: workers,
	}
}

// Start launches the worker set. Idempotent.
func (a *AsyncRepo) Start() {
	a.started.Do(func() {
		for i := 0; i < a.workers; i++ {
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				for job := range a.jobs {
					job()
				}
			}()
		}
	})
}

// Close drains the queue and stops the workers. Safe to call twice;
// submits arriving after Close resolve with an error instead of running.
func (a *AsyncRepo) Close() {
	a.once.Do(func() {
		a.closeMu.Lock()
		a.closed = true
		close(a.jobs)
		a.closeMu.Unlock()
	})
	a.wg.Wait()
}

func submit[T any](a *AsyncRepo, ctx context.Context, fn func(context.Context) (T, error)) Deferred[T] {
	out := make(chan Result[T], 1)

	a.closeMu.RLock()
	if a.closed {
		a.closeMu.RUnlock()
		var zero T
		out <- Result[T]{Value: zero, Err: fmt.Errorf("%w: repository workers stopped", apperr.ErrStorageUnavailable)}
		return out
	}
	a.jobs <- func() {
		v, err := fn(ctx)
		out <- Result[T]{Value: v, Err: err}
	}
	a.closeMu.RUnlock()
	return out
}

func (a *AsyncRepo) InsertAsync(ctx context.Context, rec Record) Deferred[struct{}] {
	return submit(a, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.inner.Insert(ctx, rec)
	})
}

func (a *AsyncRepo) UpsertAsync(ctx context.Context, rec Record) Deferred[struct{}] {
	return submit(a, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.inner.Upsert(ctx, rec)
	})
}

func (a *AsyncRepo) UpdateStatusAsync(ctx context.Context, orderID string, status Status, reason string) Deferred[struct{}] {
	return submit(a, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.inner.UpdateStatus(ctx, orderID, status, reason)
	})
}

func (a *AsyncRepo) UpdatePayloadAsync(ctx context.Context, orderID, payloadJSON string) Deferred[struct{}] {
	return submit(a, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.inner.UpdatePayload(ctx, orderID, payloadJSON)
	})
}

func (a *AsyncRepo) TouchAsync(ctx context.Context, orderID string, ts time.Time) Deferred[struct{}] {
	return submit(a, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.inner.Touch(ctx, orderID, ts)
	})
}

func (a *AsyncRepo) RemoveAsync(ctx context.Context, orderID string) Deferred[struct{}] {
	return submit(a, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.inner.Remove(ctx, orderID)
	})
}

func (a *AsyncRepo) GetByIDAsync(ctx context.Context, orderID string) Deferred[*Record] {
	return submit(a, ctx, func(ctx context.Context) (*Record, error) {
		return a.inner.GetByID(ctx, orderID)
	})
}

func (a *AsyncRepo) ListByUserAsync(ctx context.Context, userID string, limit, offset int) Deferred[[]Record] {
	return submit(a, ctx, func(ctx context.Context) ([]Record, error) {
		return a.inner.ListByUser(ctx, userID, limit, offset)
	})
}

func (a *AsyncRepo) ListRecentAsync(ctx context.Context, limit int) Deferred[[]Record] {
	return submit(a, ctx, func(ctx context.Context) ([]Record, error) {
		return a.inner.ListRecent(ctx, limit)
	})
}

// Await is a convenience for callers that also hold a deadline.
func Await[T any](ctx context.Context, d Deferred[T]) (T, error) {
	select {
	case res := <-d:
		return res.Value, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
