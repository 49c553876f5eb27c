package transport

import (
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutItemRequest is one line of the checkout payload
type CheckoutItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// ShippingAddressRequest is the shipping address of the checkout payload
type ShippingAddressRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Street  string `json:"street" validate:"required,max=255"`
	City    string `json:"city" validate:"required,max=100"`
	State   string `json:"state" validate:"required,max=100"`
	ZipCode string `json:"zip_code" validate:"required,max=20"`
	Country string `json:"country" validate:"required,max=100"`
	Phone   string `json:"phone" validate:"omitempty,max=50"`
}

// CheckoutRequest represents the order creation payload
type CheckoutRequest struct {
	Items           []CheckoutItemRequest  `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressRequest `json:"shipping_address" validate:"required"`
}

// UpdateOrderStatusRequest is the admin status transition payload
type UpdateOrderStatusRequest struct {
	Status         string `json:"status" validate:"required"`
	TrackingNumber string `json:"tracking_number" validate:"omitempty,max=100"`
}

// OrderHandler handles HTTP requests for checkout and order lifecycle
type OrderHandler struct {
	checkoutService service.CheckoutService
	orderService    service.OrderService
	logger          *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(checkoutService service.CheckoutService, orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		checkoutService: checkoutService,
		orderService:    orderService,
		logger:          logger,
	}
}

// RegisterRoutes registers order routes. Everything here requires
// authentication; the admin subtree additionally requires the admin role.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.Checkout)
		r.Get("/", h.ListMine)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/cancel", h.Cancel)
	})

	r.Route("/api/admin/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)
		r.Get("/", h.AdminList)
		r.Get("/stats", h.Stats)
		r.Put("/{id}/status", h.UpdateStatus)
	})
}

// Checkout creates a pending order and a payment intent for it
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	address, err := domain.NewShippingAddress(
		req.ShippingAddress.Name,
		req.ShippingAddress.Street,
		req.ShippingAddress.City,
		req.ShippingAddress.State,
		req.ShippingAddress.ZipCode,
		req.ShippingAddress.Country,
		req.ShippingAddress.Phone,
	)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]service.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
			return
		}
		items = append(items, service.CheckoutItem{ProductID: productID, Quantity: item.Quantity})
	}

	result, err := h.checkoutService.CreateOrderAndAuthorize(r.Context(), userID, items, address)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			middleware.RespondWithCodedError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
		case errors.Is(err, service.ErrInsufficientStock):
			middleware.RespondWithCodedError(w, http.StatusBadRequest, "INSUFFICIENT_STOCK", err.Error(), nil)
		case errors.Is(err, service.ErrPaymentIntentFailed):
			middleware.RespondWithCodedError(w, http.StatusBadGateway, "PAYMENT_INTENT_FAILED", "failed to initialize payment", nil)
		default:
			h.logger.Error("Checkout failed", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create order")
		}
		return
	}

	h.logger.Info("Order created",
		zap.String("order_id", result.OrderID.String()),
		zap.String("order_number", result.OrderNumber),
		zap.String("user_id", userID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, result)
}

// ListMine lists the authenticated user's orders
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := authenticatedUserID(w, r, h.logger)
	if !ok {
		return
	}

	status, ok := parseStatusFilter(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	orders, err := h.orderService.ListByUser(r.Context(), userID, status, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// Get retrieves a single order for its owner or an admin
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.orderService.Get(r.Context(), actor, orderID)
	if err != nil {
		h.respondOrderError(w, err, "failed to get order")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// Cancel cancels an order that has not yet shipped
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r, h.logger)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.orderService.Cancel(r.Context(), actor, orderID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderAlreadyShipped):
			middleware.RespondWithCodedError(w, http.StatusBadRequest, "ORDER_ALREADY_SHIPPED", err.Error(), nil)
		case errors.Is(err, domain.ErrOrderNotCancellable):
			middleware.RespondWithCodedError(w, http.StatusBadRequest, "ORDER_CANNOT_BE_CANCELLED", err.Error(), nil)
		default:
			h.respondOrderError(w, err, "failed to cancel order")
		}
		return
	}

	h.logger.Info("Order cancelled", zap.String("order_id", orderID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// AdminList lists all orders with optional status filtering
func (h *OrderHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	status, ok := parseStatusFilter(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	sortBy := r.URL.Query().Get("sort_by")
	sortOrder := repository.SortOrderDesc
	if r.URL.Query().Get("sort_order") == "asc" {
		sortOrder = repository.SortOrderAsc
	}

	orders, err := h.orderService.ListAll(r.Context(), status, page, pageSize, sortBy, sortOrder)
	if err != nil {
		h.logger.Error("Failed to list all orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// Stats returns per-status order counts and revenue
func (h *OrderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orderService.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute order stats", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to compute order stats")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}

// UpdateStatus advances an order through its fulfillment states
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req UpdateOrderStatusRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order status")
		return
	}

	order, err := h.orderService.UpdateStatus(r.Context(), orderID, status, req.TrackingNumber)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidStatusTransition):
			middleware.RespondWithCodedError(w, http.StatusBadRequest, "INVALID_STATUS_TRANSITION", err.Error(), nil)
		default:
			h.respondOrderError(w, err, "failed to update order status")
		}
		return
	}

	h.logger.Info("Order status updated",
		zap.String("order_id", orderID.String()),
		zap.String("status", string(status)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) respondOrderError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithCodedError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
	case errors.Is(err, service.ErrOrderAccessDenied):
		middleware.RespondWithCodedError(w, http.StatusForbidden, "ORDER_ACCESS_DENIED", "access to this order is denied", nil)
	default:
		h.logger.Error(fallback, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func parseStatusFilter(w http.ResponseWriter, r *http.Request) (*domain.OrderStatus, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, true
	}

	status, err := domain.ParseOrderStatus(raw)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order status")
		return nil, false
	}
	return &status, true
}

// requestActor builds the access-control actor from the auth middleware
// context.
func requestActor(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (service.Actor, bool) {
	userID, ok := authenticatedUserID(w, r, logger)
	if !ok {
		return service.Actor{}, false
	}

	role, _ := middleware.GetUserRole(r.Context())
	return service.Actor{ID: userID, Admin: role == "admin"}, true
}
