// Package cache implements the two-tier read accelerator in front of the
// order repository. It is best effort: any Redis error degrades to a
// repository read and never blocks a request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ordercore/order-server/internal/orders"
	"github.com/ordercore/order-server/internal/redisx"
)

type Options struct {
	DetailPrefix    string // key prefix for single-order entries
	UserIndexPrefix string // key prefix for per-user list entries
	TTL             time.Duration
}

type OrderCache struct {
	rdb  *redis.Client
	opts Options
}

func New(rdb *redis.Client, opts Options) *OrderCache {
	if opts.DetailPrefix == "" {
		opts.DetailPrefix = redisx.PrefixOrderDetail
	}
	if opts.UserIndexPrefix == "" {
		opts.UserIndexPrefix = redisx.PrefixUserOrders
	}
	if opts.TTL <= 0 {
		opts.TTL = redisx.TTLOrderCache
	}
	return &OrderCache{rdb: rdb, opts: opts}
}

func (c *OrderCache) PutOrder(ctx context.Context, rec orders.Record) error {
	return c.rdb.Set(ctx, c.orderKey(rec.OrderID), SerializeOrder(rec), c.opts.TTL).Err()
}

func (c *OrderCache) PutOrders(ctx context.Context, recs []orders.Record) error {
	var firstErr error
	for _, rec := range recs {
		if err := c.PutOrder(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *OrderCache) GetOrder(ctx context.Context, orderID string) (*orders.Record, error) {
	payload, err := c.rdb.Get(ctx, c.orderKey(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := DeserializeOrder(payload)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *OrderCache) RemoveOrder(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, c.orderKey(orderID)).Err()
}

func (c *OrderCache) RefreshTTL(ctx context.Context, orderID string) error {
	ok, err := c.rdb.Expire(ctx, c.orderKey(orderID), c.opts.TTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return redis.Nil
	}
	return nil
}

func (c *OrderCache) PutUserOrders(ctx context.Context, userID string, recs []orders.Record) error {
	return c.rdb.Set(ctx, c.userKey(userID), SerializeOrderList(recs), c.opts.TTL).Err()
}

func (c *OrderCache) GetUserOrders(ctx context.Context, userID string) ([]orders.Record, error) {
	payload, err := c.rdb.Get(ctx, c.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DeserializeOrderList(payload)
}

func (c *OrderCache) RemoveUserOrders(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, c.userKey(userID)).Err()
}

// Warmup bulk-loads records, typically the most recent rows at startup.
func (c *OrderCache) Warmup(ctx context.Context, recs []orders.Record) error {
	return c.PutOrders(ctx, recs)
}

func (c *OrderCache) orderKey(orderID string) string {
	return c.opts.DetailPrefix + orderID
}

func (c *OrderCache) userKey(userID string) string {
	return c.opts.UserIndexPrefix + userID
}

// The status reason is free text (it carries bus-supplied cancel
// reasons), so its '%' and '|' bytes and line breaks are percent-encoded
// to keep the delimited form parseable. The payload needs no escaping:
// the decoder anchors it positionally.
var (
	reasonEscaper   = strings.NewReplacer("%", "%25", "|", "%7C", "\n", "%0A", "\r", "%0D")
	reasonUnescaper = strings.NewReplacer("%25", "%", "%7C", "|", "%0A", "\n", "%0D", "\r")
)

// SerializeOrder renders the single-line delimited form: fields in fixed
// order joined by '|', timestamps as epoch seconds, amount with two
// decimals, status as its ordinal.
func SerializeOrder(rec orders.Record) string {
	var b strings.Builder
	b.WriteString(rec.OrderID)
	b.WriteByte('|')
	b.WriteString(rec.UserID)
	b.WriteByte('|')
	b.WriteString(rec.ProductID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(uint64(rec.Quantity), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(rec.TotalAmount, 'f', 2, 64))
	b.WriteByte('|')
	b.WriteString(rec.Currency)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(rec.Status)))
	b.WriteByte('|')
	b.WriteString(reasonEscaper.Replace(rec.StatusReason))
	b.WriteByte('|')
	b.WriteString(rec.PayloadJSON)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(rec.CreatedAt.Unix(), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(rec.UpdatedAt.Unix(), 10))
	return b.String()
}

// DeserializeOrder reverses SerializeOrder. The payload field may contain
// '|' itself, so the decoder splits the eight leading fields and anchors
// the two trailing timestamps from the end; everything between is the
// payload, byte for byte.
func DeserializeOrder(payload string) (orders.Record, error) {
	var rec orders.Record

	parts := strings.SplitN(payload, "|", 9)
	if len(parts) != 9 {
		return rec, fmt.Errorf("cache entry: want 11 fields, got %d", len(parts))
	}

	rest := parts[8]
	last := strings.LastIndexByte(rest, '|')
	if last < 0 {
		return rec, fmt.Errorf("cache entry: missing updated_at")
	}
	secondLast := strings.LastIndexByte(rest[:last], '|')
	if secondLast < 0 {
		return rec, fmt.Errorf("cache entry: missing created_at")
	}

	rec.OrderID = parts[0]
	rec.UserID = parts[1]
	rec.ProductID = parts[2]

	qty, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return rec, fmt.Errorf("cache entry: quantity: %w", err)
	}
	rec.Quantity = uint32(qty)

	rec.TotalAmount, err = strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return rec, fmt.Errorf("cache entry: amount: %w", err)
	}

	rec.Currency = parts[5]

	st, err := strconv.Atoi(parts[6])
	if err != nil {
		return rec, fmt.Errorf("cache entry: status: %w", err)
	}
	rec.Status = orders.Status(st)

	rec.StatusReason = reasonUnescaper.Replace(parts[7])
	rec.PayloadJSON = rest[:secondLast]

	created, err := strconv.ParseInt(rest[secondLast+1:last], 10, 64)
	if err != nil {
		return rec, fmt.Errorf("cache entry: created_at: %w", err)
	}
	updated, err := strconv.ParseInt(rest[last+1:], 10, 64)
	if err != nil {
		return rec, fmt.Errorf("cache entry: updated_at: %w", err)
	}
	rec.CreatedAt = time.Unix(created, 0)
	rec.UpdatedAt = time.Unix(updated, 0)

	return rec, nil
}

// SerializeOrderList joins entries with newlines. Payloads containing
// literal newlines are not representable in the list form.
func SerializeOrderList(recs []orders.Record) string {
	lines := make([]string, 0, len(recs))
	for _, rec := range recs {
		lines = append(lines, SerializeOrder(rec))
	}
	return strings.Join(lines, "\n")
}

func DeserializeOrderList(payload string) ([]orders.Record, error) {
	var out []orders.Record
	for _, line := range strings.Split(payload, "\n") {
		if line == "" {
			continue
		}
		rec, err := DeserializeOrder(line)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
