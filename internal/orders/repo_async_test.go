package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordercore/order-server/internal/apperr"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]Record
	inserts int
	getErr  error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]Record{}}
}

func (m *memStore) Insert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	m.records[rec.OrderID] = rec
	return nil
}

func (m *memStore) Upsert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.OrderID] = rec
	return nil
}

func (m *memStore) UpdateStatus(ctx context.Context, orderID string, status Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok {
		return errors.New("no row")
	}
	rec.Status = status
	rec.StatusReason = reason
	m.records[orderID] = rec
	return nil
}

func (m *memStore) UpdatePayload(ctx context.Context, orderID, payloadJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok {
		return errors.New("no row")
	}
	rec.PayloadJSON = payloadJSON
	m.records[orderID] = rec
	return nil
}

func (m *memStore) Touch(ctx context.Context, orderID string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[orderID]
	if !ok {
		return errors.New("no row")
	}
	rec.UpdatedAt = ts
	m.records[orderID] = rec
	return nil
}

func (m *memStore) Remove(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, orderID)
	return nil
}

func (m *memStore) GetByID(ctx context.Context, orderID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[orderID]
	if !ok {
		return nil, errors.New("no row")
	}
	return &rec, nil
}

func (m *memStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, error) {
	return nil, nil
}

func (m *memStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	return nil, nil
}

func (m *memStore) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

func TestAsyncRepoCompletesJobs(t *testing.T) {
	store := newMemStore()
	a := NewAsyncRepo(store, 2, 8)
	a.Start()
	defer a.Close()

	ctx := context.Background()
	_, err := Await(ctx, a.InsertAsync(ctx, Record{OrderID: "ORD-1", UserID: "u1"}))
	require.NoError(t, err)

	rec, err := Await(ctx, a.GetByIDAsync(ctx, "ORD-1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.UserID)
}

func TestAsyncRepoPropagatesErrors(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("boom")
	a := NewAsyncRepo(store, 1, 4)
	a.Start()
	defer a.Close()

	_, err := Await(context.Background(), a.GetByIDAsync(context.Background(), "missing"))
	assert.EqualError(t, err, "boom")
}

func TestAsyncRepoCloseDrainsQueue(t *testing.T) {
	store := newMemStore()
	a := NewAsyncRepo(store, 1, 32)
	a.Start()

	const n = 20
	results := make([]Deferred[struct{}], 0, n)
	for i := 0; i < n; i++ {
		results = append(results, a.InsertAsync(context.Background(), Record{OrderID: "ORD"}))
	}
	a.Close()

	assert.Equal(t, n, store.insertCount())
	for _, d := range results {
		res := <-d
		assert.NoError(t, res.Err)
	}
}

func TestAsyncRepoMutationOps(t *testing.T) {
	store := newMemStore()
	a := NewAsyncRepo(store, 2, 8)
	a.Start()
	defer a.Close()

	ctx := context.Background()
	_, err := Await(ctx, a.InsertAsync(ctx, Record{OrderID: "ORD-1"}))
	require.NoError(t, err)

	_, err = Await(ctx, a.UpdatePayloadAsync(ctx, "ORD-1", `{"v":2}`))
	require.NoError(t, err)

	ts := time.Unix(1700000500, 0)
	_, err = Await(ctx, a.TouchAsync(ctx, "ORD-1", ts))
	require.NoError(t, err)

	rec, err := Await(ctx, a.GetByIDAsync(ctx, "ORD-1"))
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, rec.PayloadJSON)
	assert.Equal(t, ts, rec.UpdatedAt)

	_, err = Await(ctx, a.UpdateStatusAsync(ctx, "ORD-1", StatusCancelled, "cleanup"))
	require.NoError(t, err)

	_, err = Await(ctx, a.RemoveAsync(ctx, "ORD-1"))
	require.NoError(t, err)
	_, err = Await(ctx, a.GetByIDAsync(ctx, "ORD-1"))
	assert.Error(t, err)
}

func TestAsyncRepoStartAndCloseAreIdempotent(t *testing.T) {
	a := NewAsyncRepo(newMemStore(), 2, 4)
	a.Start()
	a.Start()
	a.Close()
	a.Close()
}

func TestAsyncRepoSubmitAfterClose(t *testing.T) {
	store := newMemStore()
	a := NewAsyncRepo(store, 1, 4)
	a.Start()
	a.Close()

	_, err := Await(context.Background(), a.InsertAsync(context.Background(), Record{OrderID: "late"}))
	require.ErrorIs(t, err, apperr.ErrStorageUnavailable)
	assert.Equal(t, 0, store.insertCount())
}

func TestAsyncRepoDefaultsOnBadSizing(t *testing.T) {
	a := NewAsyncRepo(newMemStore(), 0, -1)
	a.Start()
	defer a.Close()

	_, err := Await(context.Background(), a.ListRecentAsync(context.Background(), 5))
	assert.NoError(t, err)
}

func TestAwaitHonorsContext(t *testing.T) {
	never := make(chan Result[int])
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Await[int](ctx, never)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
