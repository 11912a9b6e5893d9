package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/golab/erplite/internal/costing"
	"github.com/golab/erplite/internal/shared"
)

// Handler wires the JSON endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/low-stock", h.handleLowStock)
	r.Post("/resolve-code", h.handleResolveCode)
	r.Get("/{itemID}", h.handleGet)
	r.Post("/{itemID}/receipts", h.handleReceipt)
	r.Post("/{itemID}/issues", h.handleIssue)
	r.Post("/{itemID}/adjustments", h.handleAdjustment)
	r.Post("/{itemID}/stocktakes", h.handleStocktake)
	r.Post("/{itemID}/status", h.handleStatus)
}

type itemResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	SKU             string  `json:"sku,omitempty"`
	Unit            string  `json:"unit"`
	QtyOnHand       float64 `json:"qty_on_hand"`
	QtyMin          float64 `json:"qty_min"`
	AvgCost         float64 `json:"avg_cost"`
	AssetValue      float64 `json:"asset_value"`
	Status          string  `json:"status"`
	Shortfall       float64 `json:"shortfall,omitempty"`
	LastDeliveryTo  string  `json:"last_delivery_to,omitempty"`
	LastDeliveredAt string  `json:"last_delivered_at,omitempty"`
	Version         int64   `json:"version"`
}

type applyResponse struct {
	Before        itemResponse `json:"before"`
	After         itemResponse `json:"after"`
	AuditRecorded bool         `json:"audit_recorded"`
}

func toItemResponse(item Item) itemResponse {
	resp := itemResponse{
		ID:             item.ID,
		Name:           item.Name,
		SKU:            item.SKU,
		Unit:           item.Unit,
		QtyOnHand:      item.QtyOnHand,
		QtyMin:         item.QtyMin,
		AvgCost:        item.AvgCost,
		AssetValue:     item.AssetValue,
		Status:         string(item.Status),
		Shortfall:      item.Shortfall(),
		LastDeliveryTo: item.LastDeliveryTo,
		Version:        item.Version,
	}
	if !item.LastDeliveredAt.IsZero() {
		resp.LastDeliveredAt = item.LastDeliveredAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

type createItemRequest struct {
	Name            string  `json:"name" validate:"required"`
	SKU             string  `json:"sku"`
	Unit            string  `json:"unit"`
	QtyMin          float64 `json:"qty_min" validate:"gte=0"`
	InitialQty      float64 `json:"initial_qty" validate:"gte=0"`
	InitialUnitCost float64 `json:"initial_unit_cost" validate:"gte=0"`
	Reason          string  `json:"reason"`
}

type receiptRequest struct {
	Qty      float64 `json:"qty" validate:"gt=0"`
	UnitCost float64 `json:"unit_cost" validate:"gte=0"`
	Reason   string  `json:"reason"`
}

type issueRequest struct {
	Qty        float64 `json:"qty" validate:"gt=0"`
	DeliveryTo string  `json:"delivery_to"`
	Reason     string  `json:"reason"`
}

type adjustRequest struct {
	TargetQty float64 `json:"target_qty" validate:"gte=0"`
	Reason    string  `json:"reason"`
}

type stocktakeRequest struct {
	TargetQty float64 `json:"target_qty" validate:"gte=0"`
	Reason    string  `json:"reason" validate:"required"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type resolveCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]itemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResponse(item))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.QueryLowStock(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]itemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResponse(item))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.CreateItem(r.Context(), CreateItemInput{
		Name:            req.Name,
		SKU:             req.SKU,
		Unit:            req.Unit,
		QtyMin:          req.QtyMin,
		InitialQty:      req.InitialQty,
		InitialUnitCost: req.InitialUnitCost,
		Actor:           actorFrom(r),
		Reason:          req.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.PostReceipt(r.Context(), ReceiptInput{
		ItemID:         chi.URLParam(r, "itemID"),
		Qty:            req.Qty,
		UnitCost:       req.UnitCost,
		Actor:          actorFrom(r),
		Reason:         req.Reason,
		IdempotencyKey: idemKeyFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeApply(w, res)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.PostIssue(r.Context(), IssueInput{
		ItemID:         chi.URLParam(r, "itemID"),
		Qty:            req.Qty,
		DeliveryTo:     req.DeliveryTo,
		Actor:          actorFrom(r),
		Reason:         req.Reason,
		IdempotencyKey: idemKeyFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeApply(w, res)
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.PostAdjustment(r.Context(), AdjustInput{
		ItemID:         chi.URLParam(r, "itemID"),
		TargetQty:      req.TargetQty,
		Actor:          actorFrom(r),
		Reason:         req.Reason,
		IdempotencyKey: idemKeyFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeApply(w, res)
}

func (h *Handler) handleStocktake(w http.ResponseWriter, r *http.Request) {
	var req stocktakeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.PostStocktake(r.Context(), AdjustInput{
		ItemID:         chi.URLParam(r, "itemID"),
		TargetQty:      req.TargetQty,
		Actor:          actorFrom(r),
		Reason:         req.Reason,
		IdempotencyKey: idemKeyFrom(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeApply(w, res)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.OverrideStatus(r.Context(), StatusInput{
		ItemID: chi.URLParam(r, "itemID"),
		Status: Status(req.Status),
		Actor:  actorFrom(r),
		Reason: req.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeApply(w, res)
}

func (h *Handler) handleResolveCode(w http.ResponseWriter, r *http.Request) {
	var req resolveCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	match, err := h.service.ResolveImportCode(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"action": string(match.Action),
		"code":   match.Code,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "BAD_JSON"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "INVALID_EVENT",
			"detail": err.Error(),
		})
		return false
	}
	return true
}

func (h *Handler) writeApply(w http.ResponseWriter, res ApplyResult) {
	h.writeJSON(w, http.StatusOK, applyResponse{
		Before:        toItemResponse(res.Before),
		After:         toItemResponse(res.After),
		AuditRecorded: res.AuditRecorded,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ins *costing.InsufficientStockError
	var invalid *InvalidEventError
	switch {
	case errors.As(err, &ins):
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "INSUFFICIENT_STOCK",
			"current":   ins.Current,
			"requested": ins.Requested,
		})
	case errors.As(err, &invalid):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "INVALID_EVENT",
			"kind":   string(invalid.Kind),
			"detail": invalid.Detail,
		})
	case errors.Is(err, costing.ErrEmptyCode):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "EMPTY_CODE"})
	case errors.Is(err, shared.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
	case errors.Is(err, shared.ErrIdempotencyConflict):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "DUPLICATE_REQUEST"})
	case errors.Is(err, shared.ErrConflict):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "CONFLICT"})
	default:
		h.logger.Error("ledger handler", slog.Any("error", err))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "INTERNAL"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

// actorFrom pulls the acting user from the X-Actor header. Authentication is
// handled upstream of this service.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "operator"
}

// idemKeyFrom pulls the optional Idempotency-Key header. An empty key skips
// the duplicate check.
func idemKeyFrom(r *http.Request) string {
	return r.Header.Get("Idempotency-Key")
}
