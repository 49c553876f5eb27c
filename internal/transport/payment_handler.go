package transport

import (
	"errors"
	"io"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stripe caps event payloads well under this.
const maxWebhookBodyBytes = 65536

// ConfirmPaymentRequest represents the synchronous confirmation payload
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	OrderID         string `json:"order_id" validate:"required,uuid"`
}

// PaymentConfigResponse carries the keys the storefront client needs
type PaymentConfigResponse struct {
	PublishableKey string `json:"publishable_key"`
	Currency       string `json:"currency"`
}

// PaymentHandler handles HTTP requests for payment confirmation and the
// processor webhook.
type PaymentHandler struct {
	checkoutService service.CheckoutService
	publishableKey  string
	currency        string
	logger          *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(checkoutService service.CheckoutService, publishableKey, currency string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkoutService: checkoutService,
		publishableKey:  publishableKey,
		currency:        currency,
		logger:          logger,
	}
}

// RegisterRoutes registers payment routes. The webhook stays public: the
// processor authenticates itself with the signature header, not a JWT.
func (h *PaymentHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/payments", func(r chi.Router) {
		r.Get("/config", h.Config)
		r.Post("/webhook", h.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/confirm", h.Confirm)
		})
	})
}

// Config returns the client-side payment configuration
func (h *PaymentHandler) Config(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, PaymentConfigResponse{
		PublishableKey: h.publishableKey,
		Currency:       h.currency,
	})
}

// Confirm reconciles an order against the processor's view of its payment
// intent. Clients call this right after the payment form resolves; the
// webhook independently converges on the same state.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}

	var req ConfirmPaymentRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.checkoutService.ConfirmPayment(r.Context(), actor, req.PaymentIntentID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			middleware.RespondWithCodedError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		case errors.Is(err, service.ErrOrderAccessDenied):
			middleware.RespondWithCodedError(w, http.StatusForbidden, "ORDER_ACCESS_DENIED", "access to this order is denied", nil)
		case errors.Is(err, service.ErrPaymentNotSuccessful):
			middleware.RespondWithCodedError(w, http.StatusBadRequest, "PAYMENT_NOT_SUCCESSFUL", "payment has not succeeded", nil)
		case errors.Is(err, service.ErrPaymentBridge):
			middleware.RespondWithCodedError(w, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", "failed to verify payment", nil)
		default:
			h.logger.Error("Payment confirmation failed", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to confirm payment")
		}
		return
	}

	h.logger.Info("Payment confirmed",
		zap.String("order_id", orderID.String()),
		zap.String("payment_intent_id", req.PaymentIntentID),
	)
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// Webhook receives processor events. The raw body is read before anything
// else because signature verification covers the exact bytes sent.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")

	if err := h.checkoutService.HandleWebhookEvent(r.Context(), payload, signature); err != nil {
		if errors.Is(err, payment.ErrSignatureInvalid) {
			h.logger.Warn("Webhook signature verification failed")
			middleware.RespondWithCodedError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "event signature verification failed", nil)
			return
		}

		// Non-2xx makes the processor redeliver the event later.
		h.logger.Error("Webhook processing failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
