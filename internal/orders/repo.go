package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ordercore/order-server/internal/apperr"
)

// Repo persists order records in Postgres. NotFound is reported as
// apperr.ErrNotFound; driver failures surface as ErrStorageUnavailable.
type Repo struct {
	DB *pgxpool.Pool

	schemaOnce sync.Once
	schemaErr  error
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS orders (
	order_id      VARCHAR(64) PRIMARY KEY,
	user_id       VARCHAR(64) NOT NULL,
	product_id    VARCHAR(64) NOT NULL,
	quantity      INT NOT NULL,
	total_amount  DOUBLE PRECISION NOT NULL,
	currency      VARCHAR(16) NOT NULL,
	status        VARCHAR(32) NOT NULL,
	status_reason VARCHAR(255),
	payload_json  TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

const recordColumns = `order_id, user_id, product_id, quantity, total_amount, currency, status, status_reason, payload_json, created_at, updated_at`

// EnsureSchema creates the orders table. Idempotent; the one-shot guard
// means repeat calls after a success are free.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	r.schemaOnce.Do(func() {
		_, err := r.DB.Exec(ctx, createTableSQL)
		if err != nil {
			r.schemaErr = storageErr("ensure schema", err)
		}
	})
	return r.schemaErr
}

// Insert fails with ErrPersistFailed if a row with that id already exists.
func (r *Repo) Insert(ctx context.Context, rec Record) error {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO orders (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (order_id) DO NOTHING`,
		rec.OrderID, rec.UserID, rec.ProductID, rec.Quantity, rec.TotalAmount,
		rec.Currency, rec.Status.String(), rec.StatusReason, rec.PayloadJSON,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return storageErr("insert", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s already exists", apperr.ErrPersistFailed, rec.OrderID)
	}
	return nil
}

// Upsert inserts new rows, or refreshes status, reason, payload and
// updated_at on key collision.
func (r *Repo) Upsert(ctx context.Context, rec Record) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			status_reason = EXCLUDED.status_reason,
			payload_json = EXCLUDED.payload_json,
			updated_at = EXCLUDED.updated_at`,
		rec.OrderID, rec.UserID, rec.ProductID, rec.Quantity, rec.TotalAmount,
		rec.Currency, rec.Status.String(), rec.StatusReason, rec.PayloadJSON,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return storageErr("upsert", err)
	}
	return nil
}

func (r *Repo) UpdateStatus(ctx context.Context, orderID string, status Status, reason string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, status_reason=$3, updated_at=NOW()
		WHERE order_id=$1`,
		orderID, status.String(), reason)
	if err != nil {
		return storageErr("update status", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// UpdatePayment forces status to Paid. It writes the paid amount into
// total_amount, overwriting the ordered amount; that is the historical
// behavior callers depend on.
func (r *Repo) UpdatePayment(ctx context.Context, orderID string, paidAmount float64, paidAt time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status='Paid', total_amount=$2, updated_at=$3
		WHERE order_id=$1`,
		orderID, paidAmount, paidAt)
	if err != nil {
		return storageErr("update payment", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *Repo) UpdatePayload(ctx context.Context, orderID, payloadJSON string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payload_json=$2, updated_at=NOW() WHERE order_id=$1`,
		orderID, payloadJSON)
	if err != nil {
		return storageErr("update payload", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *Repo) Touch(ctx context.Context, orderID string, ts time.Time) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET updated_at=$2 WHERE order_id=$1`, orderID, ts)
	if err != nil {
		return storageErr("touch", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *Repo) Remove(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE order_id=$1`, orderID)
	if err != nil {
		return storageErr("remove", err)
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, orderID string) (*Record, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+recordColumns+` FROM orders WHERE order_id=$1`, orderID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get by id", err)
	}
	return rec, nil
}

// ListByUser returns the user's orders newest first. The caller clamps
// limit and offset.
func (r *Repo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+recordColumns+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, storageErr("list by user", err)
	}
	return scanRecords(rows)
}

// ListRecent is the warm-up source for the cache.
func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+recordColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, storageErr("list recent", err)
	}
	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var status string
	var reason, payload *string
	if err := row.Scan(
		&rec.OrderID, &rec.UserID, &rec.ProductID, &rec.Quantity, &rec.TotalAmount,
		&rec.Currency, &status, &reason, &payload, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = ParseStatus(status)
	if reason != nil {
		rec.StatusReason = *reason
	}
	if payload != nil {
		rec.PayloadJSON = *payload
	}
	return &rec, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr("scan", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows", err)
	}
	return out, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperr.ErrStorageUnavailable, op, err)
}
