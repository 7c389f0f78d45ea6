package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ordercore/order-server/internal/apperr"
	"github.com/ordercore/order-server/internal/orders"
	"github.com/ordercore/order-server/internal/service"
)

type CreateOrderReq struct {
	UserID    string  `json:"userId"`
	ProductID string  `json:"productId"`
	Quantity  uint32  `json:"quantity"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

type CreateOrderResp struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OrdersHandler adapts HTTP requests onto the order service. It is the
// only layer that translates internal error kinds to status codes.
type OrdersHandler struct {
	Service *service.Service
	IDGen   func() string
	Log     *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.queryOrders)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (h *OrdersHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "Internal dependency missing (service)")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	var req CreateOrderReq
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger().Warn("order create: bad json", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if req.UserID == "" || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "Missing userId or productId")
		return
	}
	if req.Quantity == 0 || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid quantity or amount")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entity := orders.NewEntity(req.UserID, req.ProductID, req.Quantity, req.Amount, req.Currency)
	idGen := h.IDGen
	if idGen == nil {
		idGen = DefaultIDGenerator
	}
	entity.SetID(idGen())

	result, err := h.Service.CreateOrder(ctx, entity, string(body))
	if err != nil {
		h.logger().Warn("order create failed",
			zap.String("userId", req.UserID),
			zap.String("productId", req.ProductID),
			zap.String("kind", apperr.Kind(err)),
			zap.Error(err))
		switch {
		case errors.Is(err, apperr.ErrInsufficientStock),
			errors.Is(err, apperr.ErrStockMissing),
			errors.Is(err, apperr.ErrStorageUnavailable):
			writeError(w, http.StatusServiceUnavailable, "Inventory not enough or temporarily unavailable")
		case errors.Is(err, apperr.ErrPersistFailed):
			writeError(w, http.StatusInternalServerError, "Failed to persist order")
		case errors.Is(err, apperr.ErrMissingDependency):
			writeError(w, http.StatusInternalServerError, "Internal dependency missing (database/inventory)")
		default:
			writeError(w, apperr.HTTPStatus(err), "Unexpected server error")
		}
		return
	}

	rec := result.Entity.Record()
	h.logger().Info("order created",
		zap.String("orderId", rec.OrderID),
		zap.String("userId", rec.UserID),
		zap.String("productId", rec.ProductID),
		zap.Uint32("quantity", rec.Quantity))

	writeJSON(w, http.StatusOK, CreateOrderResp{
		OrderID: rec.OrderID,
		Status:  rec.Status.String(),
		Message: "order created successfully",
	})
}

// queryOrders serves both shapes of GET /orders. A present id wins over
// userId.
func (h *OrdersHandler) queryOrders(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "Database dependency missing")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		h.getByID(ctx, w, id)
		return
	}
	if userID := q.Get("userId"); userID != "" {
		h.listByUser(ctx, w, userID, q.Get("limit"), q.Get("offset"))
		return
	}
	writeError(w, http.StatusBadRequest, "Missing query parameter: id or userId")
}

func (h *OrdersHandler) getByID(ctx context.Context, w http.ResponseWriter, orderID string) {
	entity, err := h.Service.GetOrderByID(ctx, orderID, true)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Record not found")
			return
		}
		h.logger().Error("order query", zap.String("orderId", orderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to query order")
		return
	}

	rec := entity.Record()
	writeJSON(w, http.StatusOK, map[string]any{
		"orderId":      rec.OrderID,
		"userId":       rec.UserID,
		"productId":    rec.ProductID,
		"quantity":     rec.Quantity,
		"totalAmount":  rec.TotalAmount,
		"currency":     rec.Currency,
		"status":       rec.Status.String(),
		"statusReason": rec.StatusReason,
		"createdAt":    rec.CreatedAt.Unix(),
		"updatedAt":    rec.UpdatedAt.Unix(),
	})
}

func (h *OrdersHandler) listByUser(ctx context.Context, w http.ResponseWriter, userID, limitStr, offsetStr string) {
	limit := h.parseIntParam(limitStr, 20, "limit")
	offset := h.parseIntParam(offsetStr, 0, "offset")

	recs, err := h.Service.ListOrdersByUser(ctx, userID, limit, offset, true)
	if err != nil {
		h.logger().Error("order list query", zap.String("userId", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to query orders")
		return
	}
	if len(recs) == 0 {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}

	items := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		items = append(items, map[string]any{
			"orderId":     rec.OrderID,
			"productId":   rec.ProductID,
			"quantity":    rec.Quantity,
			"totalAmount": rec.TotalAmount,
			"status":      rec.Status.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":  len(recs),
		"orders": items,
	})
}

// parseIntParam falls back to the default on garbage instead of failing
// the request; the bad value is only worth a warning.
func (h *OrdersHandler) parseIntParam(raw string, def int, name string) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		h.logger().Warn("invalid query param", zap.String("param", name), zap.String("value", raw))
		return def
	}
	return n
}
