package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrOrderAccessDenied = errors.New("access to this order is denied")
)

// OrderPage is a paginated order listing.
type OrderPage struct {
	Orders      []*domain.Order `json:"orders"`
	CurrentPage int             `json:"current_page"`
	TotalPages  int             `json:"total_pages"`
	TotalOrders int             `json:"total_orders"`
	HasNextPage bool            `json:"has_next_page"`
	HasPrevPage bool            `json:"has_prev_page"`
}

// OrderService exposes order reads, cancellation, and admin fulfillment
// operations. Ownership is enforced here: an order is visible only to its
// owner or an administrative actor.
type OrderService interface {
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status *domain.OrderStatus, page, pageSize int) (*OrderPage, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*domain.Order, error)
	ListAll(ctx context.Context, status *domain.OrderStatus, page, pageSize int, sortBy string, sortOrder repository.SortOrder) (*OrderPage, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, trackingNumber string) (*domain.Order, error)
	Stats(ctx context.Context) ([]repository.OrderStats, error)
}

type orderService struct {
	orderRepo repository.OrderRepository
	logger    *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(orderRepo repository.OrderRepository, logger *zap.Logger) OrderService {
	return &orderService{orderRepo: orderRepo, logger: logger}
}

// Get retrieves an order, enforcing ownership.
func (s *orderService) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != actor.ID && !actor.Admin {
		return nil, ErrOrderAccessDenied
	}

	return order, nil
}

// ListByUser retrieves the caller's own orders, newest first.
func (s *orderService) ListByUser(ctx context.Context, userID uuid.UUID, status *domain.OrderStatus, page, pageSize int) (*OrderPage, error) {
	page, pageSize = clampPage(page, pageSize, 10, 50)

	filter := repository.OrderFilter{UserID: &userID, Status: status}
	orders, total, err := s.orderRepo.List(ctx, filter, page, pageSize, "created_at", repository.SortOrderDesc)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return newOrderPage(orders, total, page, pageSize), nil
}

// Cancel cancels the actor's own order. Only pending and processing orders
// may be cancelled; the user-facing error distinguishes an order that has
// already shipped from one that is delivered or already cancelled. No stock
// is restored: none was decremented unless the order was already paid.
func (s *orderService) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != actor.ID {
		return nil, ErrOrderAccessDenied
	}

	if err := order.CanCancel(); err != nil {
		return nil, err
	}

	cancelled, err := s.orderRepo.Cancel(ctx, orderID, []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusProcessing,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !cancelled {
		// Status moved between the read and the conditional update.
		return nil, domain.ErrOrderNotCancellable
	}

	s.logger.Info("Order cancelled",
		zap.String("order_id", orderID.String()),
		zap.String("user_id", actor.ID.String()),
	)

	return s.orderRepo.FindByID(ctx, orderID)
}

// ListAll retrieves all orders for administrative callers.
func (s *orderService) ListAll(ctx context.Context, status *domain.OrderStatus, page, pageSize int, sortBy string, sortOrder repository.SortOrder) (*OrderPage, error) {
	page, pageSize = clampPage(page, pageSize, 20, 100)

	orders, total, err := s.orderRepo.List(ctx, repository.OrderFilter{Status: status}, page, pageSize, sortBy, sortOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return newOrderPage(orders, total, page, pageSize), nil
}

// UpdateStatus applies an administrative lifecycle transition. The tracking
// number is recorded when shipping; delivery sets the delivered flag and
// timestamp exactly once.
func (s *orderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, trackingNumber string) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, order.Status, status)
	}

	var deliveredAt *time.Time
	if status == domain.OrderStatusDelivered && !order.IsDelivered {
		now := time.Now()
		deliveredAt = &now
	}
	if status != domain.OrderStatusShipped {
		trackingNumber = ""
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, status, trackingNumber, deliveredAt); err != nil {
		return nil, err
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", orderID.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(status)),
	)

	return s.orderRepo.FindByID(ctx, orderID)
}

// Stats returns per-status order counts and revenue.
func (s *orderService) Stats(ctx context.Context) ([]repository.OrderStats, error) {
	return s.orderRepo.Stats(ctx)
}

func clampPage(page, pageSize, defaultSize, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

func newOrderPage(orders []*domain.Order, total, page, pageSize int) *OrderPage {
	totalPages := (total + pageSize - 1) / pageSize
	return &OrderPage{
		Orders:      orders,
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalOrders: total,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}
