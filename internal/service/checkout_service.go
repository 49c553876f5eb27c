package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const webhookEventTTL = 24 * time.Hour

var (
	ErrInsufficientStock    = errors.New("product is not available in the requested quantity")
	ErrPaymentIntentFailed  = errors.New("failed to create payment intent")
	ErrPaymentBridge        = errors.New("payment processing error")
	ErrPaymentNotSuccessful = errors.New("payment not successful")
)

// Actor identifies the caller of an order operation.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// CheckoutItem is one (product, quantity) purchase request.
type CheckoutItem struct {
	ProductID uuid.UUID
	Quantity  int
}

// CheckoutResult is returned to the client so it can complete payment with
// the processor out-of-band.
type CheckoutResult struct {
	OrderID      uuid.UUID       `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	ClientSecret string          `json:"client_secret"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// CheckoutService coordinates the order/payment workflow: create a pending
// order, obtain a payment authorization, and converge the synchronous and
// webhook confirmation paths onto one idempotent paid transition.
type CheckoutService interface {
	CreateOrderAndAuthorize(ctx context.Context, userID uuid.UUID, items []CheckoutItem, address domain.ShippingAddress) (*CheckoutResult, error)
	ConfirmPayment(ctx context.Context, actor Actor, intentID string, orderID uuid.UUID) (*domain.Order, error)
	HandleWebhookEvent(ctx context.Context, payload []byte, signature string) error
}

// paymentOutcome collapses processor statuses and event types into the three
// cases the order lifecycle cares about.
type paymentOutcome int

const (
	outcomePending paymentOutcome = iota
	outcomeSucceeded
	outcomeFailed
)

type checkoutService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	bridge      payment.Bridge
	redisClient *redis.Client
	currency    string
	logger      *zap.Logger
}

// NewCheckoutService creates a new instance of CheckoutService. redisClient
// may be nil; the webhook dedup guard is then skipped and the database
// check-and-set remains the sole idempotency guard.
func NewCheckoutService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	bridge payment.Bridge,
	redisClient *redis.Client,
	currency string,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		bridge:      bridge,
		redisClient: redisClient,
		currency:    currency,
		logger:      logger,
	}
}

// CreateOrderAndAuthorize validates availability, snapshots the line items,
// prices the order, persists it as pending, and requests a payment intent.
// Stock is NOT decremented here; it is only adjusted on confirmed payment,
// so abandoned checkouts never hold inventory.
func (s *checkoutService) CreateOrderAndAuthorize(ctx context.Context, userID uuid.UUID, items []CheckoutItem, address domain.ShippingAddress) (*CheckoutResult, error) {
	if len(items) == 0 {
		return nil, pricing.ErrNoItems
	}

	orderItems := make([]domain.OrderItem, 0, len(items))
	priceItems := make([]pricing.Item, 0, len(items))

	for _, req := range items {
		product, err := s.productRepo.FindByID(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, fmt.Errorf("product %s: %w", req.ProductID, err)
			}
			return nil, fmt.Errorf("failed to fetch product: %w", err)
		}

		if !product.Available(req.Quantity) {
			return nil, fmt.Errorf("product %q: %w", product.Name, ErrInsufficientStock)
		}

		// Frozen snapshot: later catalog edits must not alter this order.
		orderItems = append(orderItems, domain.OrderItem{
			ID:        uuid.New(),
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  req.Quantity,
			Image:     product.ImageURL,
		})
		priceItems = append(priceItems, pricing.Item{Price: product.Price, Quantity: req.Quantity})
	}

	quote, err := pricing.Calculate(priceItems)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Items:           orderItems,
		ShippingAddress: address,
		ItemsPrice:      quote.ItemsPrice,
		TaxPrice:        quote.TaxPrice,
		ShippingPrice:   quote.ShippingPrice,
		TotalPrice:      quote.TotalPrice,
		IsPaid:          false,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	intent, err := s.bridge.CreateIntent(
		ctx,
		pricing.MinorUnits(quote.TotalPrice),
		s.currency,
		map[string]string{
			"order_id": order.ID.String(),
			"user_id":  userID.String(),
		},
		fmt.Sprintf("Order %s - %d items", order.OrderNumber(), len(orderItems)),
	)
	if err != nil {
		// The pending order is not rolled back; it can be retried or
		// reaped by an external cleanup process.
		s.logger.Error("Payment intent creation failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrPaymentIntentFailed, err)
	}

	if err := s.orderRepo.SetPaymentIntent(ctx, order.ID, intent.ID); err != nil {
		return nil, fmt.Errorf("failed to link payment intent: %w", err)
	}

	return &CheckoutResult{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber(),
		ClientSecret: intent.ClientSecret,
		TotalAmount:  quote.TotalPrice,
	}, nil
}

// ConfirmPayment is the synchronous confirmation path: the client reports
// the intent after completing payment, and we re-query the bridge for its
// authoritative status.
func (s *checkoutService) ConfirmPayment(ctx context.Context, actor Actor, intentID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != actor.ID && !actor.Admin {
		return nil, ErrOrderAccessDenied
	}

	intent, err := s.bridge.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentBridge, err)
	}

	return s.applyPaymentResult(ctx, order, outcomeForStatus(intent.Status), intent.ID, string(intent.Status))
}

// HandleWebhookEvent is the asynchronous confirmation path. The signature is
// verified before any state is touched. Failures after verification are
// logged and swallowed; the processor owns redelivery.
func (s *checkoutService) HandleWebhookEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := s.bridge.ConstructEvent(payload, signature)
	if err != nil {
		return err
	}

	// Advisory dedup only: the authoritative guard is the MarkPaid
	// check-and-set in the database.
	if s.redisClient != nil {
		won, err := s.redisClient.SetNX(ctx, "webhook:event:"+event.ID, "1", webhookEventTTL).Result()
		if err != nil {
			s.logger.Warn("Webhook dedup check failed", zap.Error(err))
		} else if !won {
			s.logger.Info("Duplicate webhook event skipped", zap.String("event_id", event.ID))
			return nil
		}
	}

	var outcome paymentOutcome
	switch event.Type {
	case payment.EventPaymentSucceeded:
		outcome = outcomeSucceeded
	case payment.EventPaymentFailed:
		outcome = outcomeFailed
	default:
		s.logger.Debug("Unhandled webhook event type", zap.String("type", event.Type))
		return nil
	}

	order, err := s.orderRepo.FindByPaymentIntentID(ctx, event.IntentID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.logger.Warn("Webhook references unknown payment intent",
				zap.String("event_id", event.ID),
				zap.String("intent_id", event.IntentID),
			)
			return nil
		}
		return fmt.Errorf("failed to look up order for webhook: %w", err)
	}

	if _, err := s.applyPaymentResult(ctx, order, outcome, event.IntentID, string(event.Status)); err != nil {
		// A not-successful outcome is not an error on this path; a later
		// event may still settle the payment.
		if errors.Is(err, ErrPaymentNotSuccessful) {
			return nil
		}
		return err
	}

	return nil
}

// applyPaymentResult is the single transition function shared by both
// confirmation paths.
//
// On success the paid transition is claimed with an atomic check-and-set;
// losing the race (order already paid) is a successful no-op, which makes
// duplicate webhook deliveries and sync/webhook races safe. Stock adjustment
// happens only after winning, once per order. Per-item decrements tolerate
// missing or understocked products: the payment has already been captured
// and cannot be silently un-recorded.
func (s *checkoutService) applyPaymentResult(ctx context.Context, order *domain.Order, outcome paymentOutcome, intentID, status string) (*domain.Order, error) {
	switch outcome {
	case outcomeSucceeded:
		now := time.Now()
		result := domain.PaymentResult{
			ID:         intentID,
			Status:     status,
			UpdateTime: now.UTC().Format(time.RFC3339),
		}

		won, err := s.orderRepo.MarkPaid(ctx, order.ID, now, result)
		if err != nil {
			return nil, fmt.Errorf("failed to mark order paid: %w", err)
		}

		if won {
			for _, item := range order.Items {
				ok, err := s.productRepo.DecrementIfAtLeast(ctx, item.ProductID, item.Quantity)
				if err != nil {
					s.logger.Error("Stock adjustment failed",
						zap.String("order_id", order.ID.String()),
						zap.String("product_id", item.ProductID.String()),
						zap.Error(err),
					)
					continue
				}
				if !ok {
					s.logger.Warn("Stock not adjusted for paid order item",
						zap.String("order_id", order.ID.String()),
						zap.String("product_id", item.ProductID.String()),
						zap.Int("quantity", item.Quantity),
					)
				}
			}

			s.logger.Info("Order paid",
				zap.String("order_id", order.ID.String()),
				zap.String("intent_id", intentID),
			)
		}

		return s.orderRepo.FindByID(ctx, order.ID)

	case outcomeFailed:
		cancelled, err := s.orderRepo.Cancel(ctx, order.ID, []domain.OrderStatus{domain.OrderStatusPending})
		if err != nil {
			return nil, fmt.Errorf("failed to cancel order after payment failure: %w", err)
		}
		if cancelled {
			s.logger.Info("Order cancelled after payment failure",
				zap.String("order_id", order.ID.String()),
				zap.String("intent_id", intentID),
			)
		}
		return nil, ErrPaymentNotSuccessful

	default:
		// Non-terminal status: no mutation, a later confirmation or event
		// may still settle it.
		return nil, ErrPaymentNotSuccessful
	}
}

func outcomeForStatus(status payment.IntentStatus) paymentOutcome {
	switch status {
	case payment.IntentStatusSucceeded:
		return outcomeSucceeded
	case payment.IntentStatusCanceled:
		return outcomeFailed
	default:
		return outcomePending
	}
}
