package settle

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/golab/erplite/internal/shared"
)

// Handler wires the JSON endpoints for settlements.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the settlements handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Post("/preview", h.handlePreview)
	r.Get("/{settlementID}", h.handleGet)
	r.Post("/{settlementID}/payment", h.handlePayment)
	r.Delete("/{settlementID}", h.handleDelete)
}

type createRequest struct {
	Partner         string  `json:"partner" validate:"required"`
	Date            string  `json:"date"`
	Memo            string  `json:"memo"`
	Revenue         float64 `json:"revenue" validate:"gte=0"`
	Cost            float64 `json:"cost" validate:"gte=0"`
	DeductionRate   float64 `json:"deduction_rate" validate:"gte=0,lte=1"`
	PaymentReceived bool    `json:"payment_received"`
	InvoiceIssued   bool    `json:"invoice_issued"`
}

type previewRequest struct {
	Revenue       float64 `json:"revenue" validate:"gte=0"`
	Cost          float64 `json:"cost" validate:"gte=0"`
	DeductionRate float64 `json:"deduction_rate" validate:"gte=0,lte=1"`
}

type paymentRequest struct {
	Received bool   `json:"received"`
	Reason   string `json:"reason" validate:"required"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Partner: r.URL.Query().Get("partner")}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.From = t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filter.To = t
		}
	}
	records, summary, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"records": records, "summary": summary})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := CreateInput{
		Partner:         req.Partner,
		Memo:            req.Memo,
		Revenue:         req.Revenue,
		Cost:            req.Cost,
		DeductionRate:   req.DeductionRate,
		PaymentReceived: req.PaymentReceived,
		InvoiceIssued:   req.InvoiceIssued,
		Actor:           actorFrom(r),
	}
	if req.Date != "" {
		t, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "INVALID_DATE"})
			return
		}
		input.Date = t
	}
	record, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.service.Preview(req.Revenue, req.Cost, req.DeductionRate))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.Get(r.Context(), chi.URLParam(r, "settlementID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	record, err := h.service.MarkPayment(r.Context(), chi.URLParam(r, "settlementID"), req.Received, actorFrom(r), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "settlementID"), actorFrom(r), reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "BAD_JSON"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "INVALID_INPUT", "detail": err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
	default:
		h.logger.Error("settle handler", slog.Any("error", err))
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

func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "operator"
}
