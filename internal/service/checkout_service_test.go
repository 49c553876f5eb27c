package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mock repositories for testing

type mockProductRepository struct {
	products map[uuid.UUID]*domain.Product
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[uuid.UUID]*domain.Product)}
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	copied := *product
	m.products[product.ID] = &copied
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	if _, ok := m.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	copied := *product
	m.products[product.ID] = &copied
	return nil
}

func (m *mockProductRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	product, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	product.IsActive = false
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *product
	return &copied, nil
}

func (m *mockProductRepository) List(ctx context.Context, filter repository.ProductFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	products := []*domain.Product{}
	for _, p := range m.products {
		if !filter.IncludeHidden && (!p.IsActive || p.Stock <= 0) {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		copied := *p
		products = append(products, &copied)
	}
	return products, len(products), nil
}

func (m *mockProductRepository) Featured(ctx context.Context, limit int) ([]*domain.Product, error) {
	products := []*domain.Product{}
	for _, p := range m.products {
		if p.IsFeatured && p.IsActive && p.Stock > 0 {
			copied := *p
			products = append(products, &copied)
		}
	}
	return products, nil
}

func (m *mockProductRepository) DecrementIfAtLeast(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	product, ok := m.products[id]
	if !ok || !product.IsActive || product.Stock < quantity {
		return false, nil
	}
	product.Stock -= quantity
	product.Sold += quantity
	return true, nil
}

type mockOrderRepository struct {
	orders map[uuid.UUID]*domain.Order
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[uuid.UUID]*domain.Order)}
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	copied := *order
	copied.Items = append([]domain.OrderItem{}, order.Items...)
	m.orders[order.ID] = &copied
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	copied := *order
	copied.Items = append([]domain.OrderItem{}, order.Items...)
	return &copied, nil
}

func (m *mockOrderRepository) FindByPaymentIntentID(ctx context.Context, intentID string) (*domain.Order, error) {
	for _, order := range m.orders {
		if order.PaymentIntentID == intentID {
			copied := *order
			copied.Items = append([]domain.OrderItem{}, order.Items...)
			return &copied, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Order, int, error) {
	orders := []*domain.Order{}
	for _, order := range m.orders {
		if filter.UserID != nil && order.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		copied := *order
		orders = append(orders, &copied)
	}
	return orders, len(orders), nil
}

func (m *mockOrderRepository) SetPaymentIntent(ctx context.Context, orderID uuid.UUID, intentID string) error {
	order, ok := m.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.PaymentIntentID = intentID
	return nil
}

// MarkPaid mirrors the conditional UPDATE: it wins only when the order is
// not yet paid.
func (m *mockOrderRepository) MarkPaid(ctx context.Context, orderID uuid.UUID, paidAt time.Time, result domain.PaymentResult) (bool, error) {
	order, ok := m.orders[orderID]
	if !ok || order.IsPaid {
		return false, nil
	}
	order.IsPaid = true
	order.PaidAt = &paidAt
	order.Status = domain.OrderStatusProcessing
	copied := result
	order.PaymentResult = &copied
	return true, nil
}

func (m *mockOrderRepository) Cancel(ctx context.Context, orderID uuid.UUID, allowed []domain.OrderStatus) (bool, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	for _, status := range allowed {
		if order.Status == status {
			order.Status = domain.OrderStatusCancelled
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, trackingNumber string, deliveredAt *time.Time) error {
	order, ok := m.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.Status = status
	if trackingNumber != "" {
		order.TrackingNumber = trackingNumber
	}
	if deliveredAt != nil {
		order.IsDelivered = true
		order.DeliveredAt = deliveredAt
	}
	return nil
}

func (m *mockOrderRepository) Stats(ctx context.Context) ([]repository.OrderStats, error) {
	byStatus := map[domain.OrderStatus]*repository.OrderStats{}
	for _, order := range m.orders {
		s, ok := byStatus[order.Status]
		if !ok {
			s = &repository.OrderStats{Status: order.Status, Revenue: decimal.Zero}
			byStatus[order.Status] = s
		}
		s.Count++
		s.Revenue = s.Revenue.Add(order.TotalPrice)
	}
	stats := []repository.OrderStats{}
	for _, s := range byStatus {
		stats = append(stats, *s)
	}
	return stats, nil
}

// fakeBridge is a scripted payment bridge. A signature equal to
// validSignature verifies; anything else fails.
type fakeBridge struct {
	intents      map[string]payment.IntentStatus
	createErr    error
	nextIntentID int
	events       map[string]*payment.Event
}

const validSignature = "t=123,v1=valid"

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		intents: make(map[string]payment.IntentStatus),
		events:  make(map[string]*payment.Event),
	}
}

func (f *fakeBridge) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string, description string) (*payment.Intent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextIntentID++
	id := fmt.Sprintf("pi_%d", f.nextIntentID)
	f.intents[id] = payment.IntentStatusRequiresPaymentMethod
	return &payment.Intent{ID: id, ClientSecret: id + "_secret", Status: f.intents[id]}, nil
}

func (f *fakeBridge) RetrieveIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	status, ok := f.intents[intentID]
	if !ok {
		return nil, errors.New("no such intent")
	}
	return &payment.Intent{ID: intentID, ClientSecret: intentID + "_secret", Status: status}, nil
}

func (f *fakeBridge) ConstructEvent(payload []byte, signature string) (*payment.Event, error) {
	if signature != validSignature {
		return nil, fmt.Errorf("%w: bad signature", payment.ErrSignatureInvalid)
	}
	event, ok := f.events[string(payload)]
	if !ok {
		return nil, errors.New("unknown payload")
	}
	return event, nil
}

func testAddress() domain.ShippingAddress {
	addr, _ := domain.NewShippingAddress("Jo Smith", "1 Main St", "Springfield", "IL", "62704", "USA", "")
	return addr
}

func newCheckoutFixture() (*mockProductRepository, *mockOrderRepository, *fakeBridge, CheckoutService) {
	productRepo := newMockProductRepository()
	orderRepo := newMockOrderRepository()
	bridge := newFakeBridge()
	svc := NewCheckoutService(orderRepo, productRepo, bridge, nil, "usd", zap.NewNop())
	return productRepo, orderRepo, bridge, svc
}

func seedProduct(repo *mockProductRepository, price string, stock int) *domain.Product {
	product := &domain.Product{
		ID:        uuid.New(),
		Name:      "Walnut Desk Organizer",
		Price:     decimal.RequireFromString(price),
		Category:  "Home & Garden",
		ImageURL:  "https://img.example.com/organizer.jpg",
		Stock:     stock,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	repo.products[product.ID] = product
	return product
}

func TestCreateOrderSnapshotsItemsAndLeavesStockAlone(t *testing.T) {
	productRepo, orderRepo, _, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "50.00", 5)
	ctx := context.Background()
	userID := uuid.New()

	result, err := svc.CreateOrderAndAuthorize(ctx, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 2}}, testAddress())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.TotalAmount.Equal(decimal.RequireFromString("118")) {
		t.Errorf("total = %s, want 118", result.TotalAmount)
	}
	if result.ClientSecret == "" {
		t.Error("expected a client secret")
	}

	order, err := orderRepo.FindByID(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if order.Status != domain.OrderStatusPending || order.IsPaid {
		t.Errorf("expected pending unpaid order, got status=%s isPaid=%v", order.Status, order.IsPaid)
	}
	if order.PaymentIntentID == "" {
		t.Error("expected payment intent linked to order")
	}

	// Stock is untouched until payment confirms.
	if productRepo.products[product.ID].Stock != 5 {
		t.Errorf("stock = %d, want 5", productRepo.products[product.ID].Stock)
	}

	// Later catalog price changes must not alter the frozen snapshot.
	productRepo.products[product.ID].Price = decimal.RequireFromString("99.99")
	order, _ = orderRepo.FindByID(ctx, result.OrderID)
	if !order.Items[0].Price.Equal(decimal.RequireFromString("50.00")) {
		t.Errorf("snapshot price = %s, want 50.00", order.Items[0].Price)
	}
}

func TestCreateOrderRejectsUnavailableProducts(t *testing.T) {
	productRepo, orderRepo, _, svc := newCheckoutFixture()
	ctx := context.Background()
	userID := uuid.New()

	// Unknown product
	_, err := svc.CreateOrderAndAuthorize(ctx, userID, []CheckoutItem{{ProductID: uuid.New(), Quantity: 1}}, testAddress())
	if !errors.Is(err, repository.ErrProductNotFound) {
		t.Errorf("expected ErrProductNotFound, got %v", err)
	}

	// Understocked
	low := seedProduct(productRepo, "10.00", 1)
	_, err = svc.CreateOrderAndAuthorize(ctx, userID, []CheckoutItem{{ProductID: low.ID, Quantity: 2}}, testAddress())
	if !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}

	// Inactive
	inactive := seedProduct(productRepo, "10.00", 10)
	inactive.IsActive = false
	_, err = svc.CreateOrderAndAuthorize(ctx, userID, []CheckoutItem{{ProductID: inactive.ID, Quantity: 1}}, testAddress())
	if !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock for inactive product, got %v", err)
	}

	// Never partially persists
	if len(orderRepo.orders) != 0 {
		t.Errorf("expected no orders persisted, found %d", len(orderRepo.orders))
	}
}

func TestCreateOrderBridgeFailureLeavesOrderPending(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	bridge.createErr = errors.New("processor unavailable")
	ctx := context.Background()

	_, err := svc.CreateOrderAndAuthorize(ctx, uuid.New(), []CheckoutItem{{ProductID: product.ID, Quantity: 1}}, testAddress())
	if !errors.Is(err, ErrPaymentIntentFailed) {
		t.Fatalf("expected ErrPaymentIntentFailed, got %v", err)
	}

	// The pending order survives for retry; it is not rolled back.
	if len(orderRepo.orders) != 1 {
		t.Fatalf("expected 1 pending order, found %d", len(orderRepo.orders))
	}
	for _, order := range orderRepo.orders {
		if order.Status != domain.OrderStatusPending || order.IsPaid {
			t.Errorf("expected pending unpaid order, got status=%s isPaid=%v", order.Status, order.IsPaid)
		}
	}
}

func checkoutAndPay(t *testing.T, svc CheckoutService, bridge *fakeBridge, orderRepo *mockOrderRepository, userID uuid.UUID, items []CheckoutItem) *domain.Order {
	t.Helper()
	result, err := svc.CreateOrderAndAuthorize(context.Background(), userID, items, testAddress())
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	order, err := orderRepo.FindByID(context.Background(), result.OrderID)
	if err != nil {
		t.Fatalf("order not found: %v", err)
	}
	bridge.intents[order.PaymentIntentID] = payment.IntentStatusSucceeded
	return order
}

func TestConfirmPaymentMarksPaidAndAdjustsStock(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	userID := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 2}})

	updated, err := svc.ConfirmPayment(ctx, Actor{ID: userID}, order.PaymentIntentID, order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !updated.IsPaid || updated.PaidAt == nil {
		t.Error("expected order to be paid with a paid timestamp")
	}
	if updated.Status != domain.OrderStatusProcessing {
		t.Errorf("status = %s, want processing", updated.Status)
	}
	if updated.PaymentResult == nil || updated.PaymentResult.Status != "succeeded" {
		t.Errorf("expected payment result snapshot, got %+v", updated.PaymentResult)
	}

	stored := productRepo.products[product.ID]
	if stored.Stock != 3 || stored.Sold != 2 {
		t.Errorf("stock/sold = %d/%d, want 3/2", stored.Stock, stored.Sold)
	}
}

func TestConfirmPaymentTwiceIsIdempotent(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	userID := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 2}})

	first, err := svc.ConfirmPayment(ctx, Actor{ID: userID}, order.PaymentIntentID, order.ID)
	if err != nil {
		t.Fatalf("first confirmation failed: %v", err)
	}

	second, err := svc.ConfirmPayment(ctx, Actor{ID: userID}, order.PaymentIntentID, order.ID)
	if err != nil {
		t.Fatalf("second confirmation failed: %v", err)
	}

	// No double decrement, no second paidAt.
	stored := productRepo.products[product.ID]
	if stored.Stock != 3 || stored.Sold != 2 {
		t.Errorf("stock/sold after double confirm = %d/%d, want 3/2", stored.Stock, stored.Sold)
	}
	if !first.PaidAt.Equal(*second.PaidAt) {
		t.Errorf("paidAt changed between confirmations: %v vs %v", first.PaidAt, second.PaidAt)
	}
}

func TestConfirmPaymentNonTerminalStatusDoesNotMutate(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	userID := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 1}})
	bridge.intents[order.PaymentIntentID] = payment.IntentStatusProcessing

	_, err := svc.ConfirmPayment(ctx, Actor{ID: userID}, order.PaymentIntentID, order.ID)
	if !errors.Is(err, ErrPaymentNotSuccessful) {
		t.Fatalf("expected ErrPaymentNotSuccessful, got %v", err)
	}

	stored, _ := orderRepo.FindByID(ctx, order.ID)
	if stored.IsPaid || stored.Status != domain.OrderStatusPending {
		t.Errorf("expected untouched pending order, got status=%s isPaid=%v", stored.Status, stored.IsPaid)
	}
	if productRepo.products[product.ID].Stock != 5 {
		t.Errorf("stock mutated on non-terminal status")
	}
}

func TestConfirmPaymentTerminalFailureCancelsPendingOrder(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	userID := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 1}})
	bridge.intents[order.PaymentIntentID] = payment.IntentStatusCanceled

	_, err := svc.ConfirmPayment(ctx, Actor{ID: userID}, order.PaymentIntentID, order.ID)
	if !errors.Is(err, ErrPaymentNotSuccessful) {
		t.Fatalf("expected ErrPaymentNotSuccessful, got %v", err)
	}

	stored, _ := orderRepo.FindByID(ctx, order.ID)
	if stored.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", stored.Status)
	}
}

func TestConfirmPaymentEnforcesOwnership(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	owner := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, owner, []CheckoutItem{{ProductID: product.ID, Quantity: 1}})

	_, err := svc.ConfirmPayment(ctx, Actor{ID: uuid.New()}, order.PaymentIntentID, order.ID)
	if !errors.Is(err, ErrOrderAccessDenied) {
		t.Errorf("expected ErrOrderAccessDenied, got %v", err)
	}

	// An administrative actor may confirm on the owner's behalf.
	if _, err := svc.ConfirmPayment(ctx, Actor{ID: uuid.New(), Admin: true}, order.PaymentIntentID, order.ID); err != nil {
		t.Errorf("expected admin confirmation to succeed, got %v", err)
	}
}

func TestConfirmPaymentToleratesVanishedProduct(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	kept := seedProduct(productRepo, "30.00", 5)
	gone := seedProduct(productRepo, "20.00", 5)
	userID := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{
		{ProductID: kept.ID, Quantity: 1},
		{ProductID: gone.ID, Quantity: 1},
	})

	// Product disappears between order creation and payment confirmation.
	delete(productRepo.products, gone.ID)

	updated, err := svc.ConfirmPayment(ctx, Actor{ID: userID}, order.PaymentIntentID, order.ID)
	if err != nil {
		t.Fatalf("confirmation must not abort on a missing product: %v", err)
	}
	if !updated.IsPaid {
		t.Error("expected order to be paid")
	}
	if productRepo.products[kept.ID].Stock != 4 {
		t.Errorf("surviving product stock = %d, want 4", productRepo.products[kept.ID].Stock)
	}
}

func TestWebhookInvalidSignatureMutatesNothing(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	userID := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 1}})
	bridge.events["payload"] = &payment.Event{
		ID:       "evt_1",
		Type:     payment.EventPaymentSucceeded,
		IntentID: order.PaymentIntentID,
		Status:   payment.IntentStatusSucceeded,
	}

	err := svc.HandleWebhookEvent(ctx, []byte("payload"), "t=123,v1=forged")
	if !errors.Is(err, payment.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}

	stored, _ := orderRepo.FindByID(ctx, order.ID)
	if stored.IsPaid || stored.Status != domain.OrderStatusPending {
		t.Errorf("order mutated despite invalid signature: status=%s isPaid=%v", stored.Status, stored.IsPaid)
	}
	if productRepo.products[product.ID].Stock != 5 {
		t.Error("stock mutated despite invalid signature")
	}
}

func TestWebhookSucceededEventPaysOrder(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	userID := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 2}})
	bridge.events["payload"] = &payment.Event{
		ID:       "evt_1",
		Type:     payment.EventPaymentSucceeded,
		IntentID: order.PaymentIntentID,
		Status:   payment.IntentStatusSucceeded,
	}

	if err := svc.HandleWebhookEvent(ctx, []byte("payload"), validSignature); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := orderRepo.FindByID(ctx, order.ID)
	if !stored.IsPaid || stored.Status != domain.OrderStatusProcessing {
		t.Errorf("expected paid processing order, got status=%s isPaid=%v", stored.Status, stored.IsPaid)
	}
	if productRepo.products[product.ID].Stock != 3 {
		t.Errorf("stock = %d, want 3", productRepo.products[product.ID].Stock)
	}
}

func TestWebhookAfterSyncConfirmationDoesNotDoubleDecrement(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	userID := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 2}})

	if _, err := svc.ConfirmPayment(ctx, Actor{ID: userID}, order.PaymentIntentID, order.ID); err != nil {
		t.Fatalf("sync confirmation failed: %v", err)
	}

	bridge.events["payload"] = &payment.Event{
		ID:       "evt_1",
		Type:     payment.EventPaymentSucceeded,
		IntentID: order.PaymentIntentID,
		Status:   payment.IntentStatusSucceeded,
	}
	if err := svc.HandleWebhookEvent(ctx, []byte("payload"), validSignature); err != nil {
		t.Fatalf("webhook failed: %v", err)
	}

	stored := productRepo.products[product.ID]
	if stored.Stock != 3 || stored.Sold != 2 {
		t.Errorf("stock/sold = %d/%d after webhook replay, want 3/2", stored.Stock, stored.Sold)
	}
}

func TestWebhookFailedEventCancelsPendingOnly(t *testing.T) {
	productRepo, orderRepo, bridge, svc := newCheckoutFixture()
	product := seedProduct(productRepo, "30.00", 5)
	userID := uuid.New()
	ctx := context.Background()

	order := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 1}})
	bridge.events["failed"] = &payment.Event{
		ID:       "evt_2",
		Type:     payment.EventPaymentFailed,
		IntentID: order.PaymentIntentID,
		Status:   payment.IntentStatusRequiresPaymentMethod,
	}

	if err := svc.HandleWebhookEvent(ctx, []byte("failed"), validSignature); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := orderRepo.FindByID(ctx, order.ID)
	if stored.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", stored.Status)
	}

	// A failure event for an already-paid order is a no-op.
	paid := checkoutAndPay(t, svc, bridge, orderRepo, userID, []CheckoutItem{{ProductID: product.ID, Quantity: 1}})
	if _, err := svc.ConfirmPayment(ctx, Actor{ID: userID}, paid.PaymentIntentID, paid.ID); err != nil {
		t.Fatalf("confirmation failed: %v", err)
	}
	bridge.events["failed-late"] = &payment.Event{
		ID:       "evt_3",
		Type:     payment.EventPaymentFailed,
		IntentID: paid.PaymentIntentID,
		Status:   payment.IntentStatusRequiresPaymentMethod,
	}
	if err := svc.HandleWebhookEvent(ctx, []byte("failed-late"), validSignature); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ = orderRepo.FindByID(ctx, paid.ID)
	if stored.Status != domain.OrderStatusProcessing {
		t.Errorf("paid order status = %s, want processing", stored.Status)
	}
}

func TestWebhookUnknownIntentIsAcknowledged(t *testing.T) {
	_, _, bridge, svc := newCheckoutFixture()
	bridge.events["orphan"] = &payment.Event{
		ID:       "evt_4",
		Type:     payment.EventPaymentSucceeded,
		IntentID: "pi_unknown",
		Status:   payment.IntentStatusSucceeded,
	}

	// The processor owns redelivery; an unknown intent is logged, not
	// surfaced as an error.
	if err := svc.HandleWebhookEvent(context.Background(), []byte("orphan"), validSignature); err != nil {
		t.Errorf("expected nil error for unknown intent, got %v", err)
	}
}

func TestWebhookUnhandledEventTypeIsIgnored(t *testing.T) {
	_, _, bridge, svc := newCheckoutFixture()
	bridge.events["other"] = &payment.Event{ID: "evt_5", Type: "charge.refunded"}

	if err := svc.HandleWebhookEvent(context.Background(), []byte("other"), validSignature); err != nil {
		t.Errorf("expected nil error for unhandled event type, got %v", err)
	}
}
