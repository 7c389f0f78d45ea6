package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ordercore/order-server/internal/apperr"
)

// StockService is the slice of the inventory service the admin endpoints
// need.
type StockService interface {
	SetStock(ctx context.Context, productID string, amount uint64) error
	QueryStock(ctx context.Context, productID string) (uint64, error)
	AdjustStock(ctx context.Context, productID string, delta int64) error
	SyncStockFromDatabase(ctx context.Context, productID string) error
}

// StockHandler exposes stock administration: seed, query, adjust. Not
// part of the order flow; reservations go through the order service.
type StockHandler struct {
	Inventory StockService
	Log       *zap.Logger
}

func (h *StockHandler) Register(r *chi.Mux) {
	r.Get("/stock", h.queryStock)
	r.Put("/stock", h.setStock)
	r.Post("/stock/adjust", h.adjustStock)
	r.Post("/stock/sync", h.syncStock)
}

func (h *StockHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *StockHandler) queryStock(w http.ResponseWriter, r *http.Request) {
	if h.Inventory == nil {
		writeError(w, http.StatusInternalServerError, "Internal dependency missing (inventory)")
		return
	}
	productID := r.URL.Query().Get("productId")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "Missing query parameter: productId")
		return
	}

	stock, err := h.Inventory.QueryStock(r.Context(), productID)
	if err != nil {
		if errors.Is(err, apperr.ErrStockMissing) {
			writeError(w, http.StatusNotFound, "Stock not found")
			return
		}
		h.logger().Error("stock query", zap.String("productId", productID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to query stock")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"productId": productID, "stock": stock})
}

type setStockReq struct {
	ProductID string `json:"productId"`
	Amount    uint64 `json:"amount"`
}

func (h *StockHandler) setStock(w http.ResponseWriter, r *http.Request) {
	if h.Inventory == nil {
		writeError(w, http.StatusInternalServerError, "Internal dependency missing (inventory)")
		return
	}
	var req setStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "Missing productId")
		return
	}

	if err := h.Inventory.SetStock(r.Context(), req.ProductID, req.Amount); err != nil {
		h.logger().Error("stock set", zap.String("productId", req.ProductID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to set stock")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"productId": req.ProductID, "stock": req.Amount})
}

type adjustStockReq struct {
	ProductID string `json:"productId"`
	Delta     int64  `json:"delta"`
}

func (h *StockHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	if h.Inventory == nil {
		writeError(w, http.StatusInternalServerError, "Internal dependency missing (inventory)")
		return
	}
	var req adjustStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.ProductID == "" || req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "Missing productId or delta")
		return
	}

	if err := h.Inventory.AdjustStock(r.Context(), req.ProductID, req.Delta); err != nil {
		h.logger().Error("stock adjust", zap.String("productId", req.ProductID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to adjust stock")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StockHandler) syncStock(w http.ResponseWriter, r *http.Request) {
	if h.Inventory == nil {
		writeError(w, http.StatusInternalServerError, "Internal dependency missing (inventory)")
		return
	}
	productID := r.URL.Query().Get("productId")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "Missing query parameter: productId")
		return
	}

	if err := h.Inventory.SyncStockFromDatabase(r.Context(), productID); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to sync stock")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
