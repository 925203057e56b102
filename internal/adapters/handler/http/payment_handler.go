package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokopay/api/internal/core/domain"
	"github.com/sokopay/api/internal/core/ports"
)

type PaymentHandler struct {
	service ports.PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(service ports.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

type createPaymentRequest struct {
	Amount           float64 `json:"amount"`
	Description      string  `json:"description"`
	AccountReference string  `json:"account_reference"`
}

func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payment, err := h.service.CreateAndInitiate(r.Context(), ports.CreatePaymentInput{
		UserID:           userID,
		Amount:           req.Amount,
		Description:      req.Description,
		AccountReference: req.AccountReference,
	})
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	payment, err := h.service.GetPayment(r.Context(), paymentID, userID)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) SyncPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	// Ownership check first; sync itself is id-based.
	if _, err := h.service.GetPayment(r.Context(), paymentID, userID); err != nil {
		h.writePaymentError(w, err)
		return
	}

	payment, err := h.service.SyncPaymentStatus(r.Context(), paymentID)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *PaymentHandler) ListMyPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	payments, err := h.service.ListUserPayments(r.Context(), userID)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// GatewayCallback receives the unauthenticated, gateway-originated outcome
// notification. Garbage or unknown callbacks are acknowledged anyway so the
// third party stops retrying; only storage faults surface as errors.
func (h *PaymentHandler) GatewayCallback(w http.ResponseWriter, r *http.Request) {
	var envelope ports.StkCallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Warn("discarding malformed gateway callback", zap.Error(err))
		h.acknowledgeCallback(w)
		return
	}

	if err := h.service.ReconcileCallback(r.Context(), envelope.Body.StkCallback); err != nil {
		h.logger.Error("failed to reconcile gateway callback",
			zap.String("checkout_request_id", envelope.Body.StkCallback.CheckoutRequestID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process callback")
		return
	}

	h.acknowledgeCallback(w)
}

func (h *PaymentHandler) acknowledgeCallback(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (h *PaymentHandler) writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, domain.ErrUserNotFound.Error())
	case errors.Is(err, domain.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, domain.ErrPaymentNotFound.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "payment was updated concurrently")
	case errors.Is(err, domain.ErrGatewayAuth), errors.Is(err, domain.ErrGateway):
		// No internal gateway detail leaks to the caller.
		writeError(w, http.StatusBadGateway, "payment provider unavailable, please try again")
	default:
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}
