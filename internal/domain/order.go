package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var (
	ErrInvalidStatus           = errors.New("invalid order status")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrOrderAlreadyShipped     = errors.New("order has already shipped and cannot be cancelled")
	ErrOrderNotCancellable     = errors.New("order cannot be cancelled")
	ErrMissingAddressField     = errors.New("missing required shipping address field")
)

// ParseOrderStatus validates a raw status string.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), nil
	}
	return "", ErrInvalidStatus
}

// nextStates encodes the linear lifecycle with cancellation as the only
// escape hatch, reachable from pending and processing.
var nextStates = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// CanTransition reports whether moving from s to next is allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range nextStates[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem is a frozen snapshot of one purchased product. It is captured at
// order-creation time and never updated from live catalog state.
type OrderItem struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OrderID   uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Image     string          `json:"image" db:"image"`
	Position  int             `json:"position" db:"position"`
}

// ShippingAddress is an immutable order delivery address.
type ShippingAddress struct {
	Name    string `json:"name" db:"ship_name"`
	Street  string `json:"street" db:"ship_street"`
	City    string `json:"city" db:"ship_city"`
	State   string `json:"state" db:"ship_state"`
	ZipCode string `json:"zip_code" db:"ship_zip"`
	Country string `json:"country" db:"ship_country"`
	Phone   string `json:"phone,omitempty" db:"ship_phone"`
}

// NewShippingAddress builds a validated address. All fields except phone are
// required and trimmed.
func NewShippingAddress(name, street, city, state, zipCode, country, phone string) (ShippingAddress, error) {
	addr := ShippingAddress{
		Name:    strings.TrimSpace(name),
		Street:  strings.TrimSpace(street),
		City:    strings.TrimSpace(city),
		State:   strings.TrimSpace(state),
		ZipCode: strings.TrimSpace(zipCode),
		Country: strings.TrimSpace(country),
		Phone:   strings.TrimSpace(phone),
	}
	for _, required := range []string{addr.Name, addr.Street, addr.City, addr.State, addr.ZipCode, addr.Country} {
		if required == "" {
			return ShippingAddress{}, ErrMissingAddressField
		}
	}
	return addr, nil
}

// PaymentResult is the snapshot of the payment processor's final answer,
// recorded when the order is marked paid.
type PaymentResult struct {
	ID         string `json:"id" db:"payment_result_id"`
	Status     string `json:"status" db:"payment_result_status"`
	UpdateTime string `json:"update_time" db:"payment_result_time"`
}

// Order is the persisted record of a purchase attempt. Line items and the
// shipping address are immutable after creation; only status, payment
// fields, delivery fields and tracking number mutate afterwards.
type Order struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	ItemsPrice      decimal.Decimal `json:"items_price" db:"items_price"`
	TaxPrice        decimal.Decimal `json:"tax_price" db:"tax_price"`
	ShippingPrice   decimal.Decimal `json:"shipping_price" db:"shipping_price"`
	TotalPrice      decimal.Decimal `json:"total_price" db:"total_price"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	IsPaid          bool            `json:"is_paid" db:"is_paid"`
	PaidAt          *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	PaymentResult   *PaymentResult  `json:"payment_result,omitempty"`
	IsDelivered     bool            `json:"is_delivered" db:"is_delivered"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	Status          OrderStatus     `json:"status" db:"status"`
	TrackingNumber  string          `json:"tracking_number,omitempty" db:"tracking_number"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderNumber derives the customer-facing order reference from the id.
func (o *Order) OrderNumber() string {
	hex := strings.ReplaceAll(o.ID.String(), "-", "")
	return "ORD-" + strings.ToUpper(hex[len(hex)-8:])
}

// TotalItems sums the quantities across all line items.
func (o *Order) TotalItems() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// CanCancel checks the cancellation rules, distinguishing an order that has
// already shipped from one in a terminal state for user messaging.
func (o *Order) CanCancel() error {
	switch o.Status {
	case OrderStatusPending, OrderStatusProcessing:
		return nil
	case OrderStatusShipped:
		return ErrOrderAlreadyShipped
	default:
		return ErrOrderNotCancellable
	}
}
