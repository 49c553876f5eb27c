package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderFilter shapes order listing queries.
type OrderFilter struct {
	UserID *uuid.UUID
	Status *domain.OrderStatus
}

// OrderStats is a per-status aggregate for the admin dashboard.
type OrderStats struct {
	Status  domain.OrderStatus `json:"status"`
	Count   int                `json:"count"`
	Revenue decimal.Decimal    `json:"total_revenue"`
}

// OrderRepository defines the interface for order data access. MarkPaid is
// the idempotency guard for payment confirmation: it only wins when the
// order has not been paid yet.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Order, int, error)
	SetPaymentIntent(ctx context.Context, orderID uuid.UUID, intentID string) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, paidAt time.Time, result domain.PaymentResult) (bool, error)
	Cancel(ctx context.Context, orderID uuid.UUID, allowed []domain.OrderStatus) (bool, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, trackingNumber string, deliveredAt *time.Time) error
	Stats(ctx context.Context) ([]OrderStats, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, user_id, ship_name, ship_street, ship_city, ship_state, ship_zip,
	ship_country, ship_phone, items_price, tax_price, shipping_price, total_price,
	payment_intent_id, is_paid, paid_at, payment_result_id, payment_result_status,
	payment_result_time, is_delivered, delivered_at, status, tracking_number,
	created_at, updated_at`

// Create persists the order and its line-item snapshots in one transaction.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderQuery := `
		INSERT INTO orders (id, user_id, ship_name, ship_street, ship_city, ship_state,
			ship_zip, ship_country, ship_phone, items_price, tax_price, shipping_price,
			total_price, is_paid, is_delivered, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = tx.ExecContext(
		ctx,
		orderQuery,
		order.ID,
		order.UserID,
		order.ShippingAddress.Name,
		order.ShippingAddress.Street,
		order.ShippingAddress.City,
		order.ShippingAddress.State,
		order.ShippingAddress.ZipCode,
		order.ShippingAddress.Country,
		order.ShippingAddress.Phone,
		order.ItemsPrice,
		order.TaxPrice,
		order.ShippingPrice,
		order.TotalPrice,
		order.IsPaid,
		order.IsDelivered,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, name, price, quantity, image, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		item.Position = i
		_, err = tx.ExecContext(
			ctx,
			itemQuery,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
			item.Image,
			item.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	return nil
}

// FindByID retrieves an order with its line items.
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	return r.findOne(ctx, query, id)
}

// FindByPaymentIntentID retrieves the order linked to a payment intent.
func (r *orderRepository) FindByPaymentIntentID(ctx context.Context, intentID string) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE payment_intent_id = $1`, orderColumns)
	return r.findOne(ctx, query, intentID)
}

func (r *orderRepository) findOne(ctx context.Context, query string, arg interface{}) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// List retrieves orders with optional user/status filtering, pagination, and
// sorting.
func (r *orderRepository) List(ctx context.Context, filter OrderFilter, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Order, int, error) {
	// Validate sort field to prevent SQL injection
	validSortFields := map[string]bool{
		"created_at":  true,
		"total_price": true,
		"status":      true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
		sortOrder = SortOrderDesc
	}
	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc
	}

	whereClause := ""
	args := []interface{}{}
	argIndex := 1

	if filter.UserID != nil {
		whereClause = fmt.Sprintf("WHERE user_id = $%d", argIndex)
		args = append(args, *filter.UserID)
		argIndex++
	}
	if filter.Status != nil {
		if whereClause == "" {
			whereClause = fmt.Sprintf("WHERE status = $%d", argIndex)
		} else {
			whereClause += fmt.Sprintf(" AND status = $%d", argIndex)
		}
		args = append(args, *filter.Status)
		argIndex++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM orders %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, orderColumns, whereClause, sortBy, sortOrder, argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	for _, order := range orders {
		if err := r.loadItems(ctx, order); err != nil {
			return nil, 0, err
		}
	}

	return orders, total, nil
}

// SetPaymentIntent links the payment processor's intent id to the order.
func (r *orderRepository) SetPaymentIntent(ctx context.Context, orderID uuid.UUID, intentID string) error {
	query := `UPDATE orders SET payment_intent_id = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, orderID, intentID)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// MarkPaid transitions the order to paid exactly once. The WHERE clause is
// the atomic check-and-set: a second caller (duplicate webhook delivery, or
// the synchronous confirmation racing the webhook) affects zero rows and
// gets won=false.
func (r *orderRepository) MarkPaid(ctx context.Context, orderID uuid.UUID, paidAt time.Time, result domain.PaymentResult) (bool, error) {
	query := `
		UPDATE orders
		SET is_paid = TRUE, paid_at = $2, status = $3,
		    payment_result_id = $4, payment_result_status = $5, payment_result_time = $6,
		    updated_at = $2
		WHERE id = $1 AND is_paid = FALSE
	`

	res, err := r.db.ExecContext(
		ctx,
		query,
		orderID,
		paidAt,
		domain.OrderStatusProcessing,
		result.ID,
		result.Status,
		result.UpdateTime,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Cancel transitions the order to cancelled only while its status is one of
// allowed, in a single conditional UPDATE. Returns false when the order was
// no longer in an allowed state (or does not exist).
func (r *orderRepository) Cancel(ctx context.Context, orderID uuid.UUID, allowed []domain.OrderStatus) (bool, error) {
	if len(allowed) == 0 {
		return false, nil
	}

	placeholders := make([]string, len(allowed))
	args := []interface{}{orderID}
	for i, status := range allowed {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, status)
	}

	query := fmt.Sprintf(`
		UPDATE orders
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN (%s)
	`, strings.Join(placeholders, ", "))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// UpdateStatus applies an admin status change, optionally recording a
// tracking number and delivery timestamp.
func (r *orderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, trackingNumber string, deliveredAt *time.Time) error {
	query := `
		UPDATE orders
		SET status = $2,
		    tracking_number = COALESCE(NULLIF($3, ''), tracking_number),
		    is_delivered = CASE WHEN $4::timestamp IS NOT NULL THEN TRUE ELSE is_delivered END,
		    delivered_at = COALESCE($4, delivered_at),
		    updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, orderID, status, trackingNumber, deliveredAt)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// Stats aggregates order count and revenue per status.
func (r *orderRepository) Stats(ctx context.Context) ([]OrderStats, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(SUM(total_price), 0)
		FROM orders
		GROUP BY status
		ORDER BY status
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate order stats: %w", err)
	}
	defer rows.Close()

	stats := []OrderStats{}
	for rows.Next() {
		var s OrderStats
		if err := rows.Scan(&s.Status, &s.Count, &s.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan order stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order stats: %w", err)
	}

	return stats, nil
}

func (r *orderRepository) loadItems(ctx context.Context, order *domain.Order) error {
	query := `
		SELECT id, order_id, product_id, name, price, quantity, image, position
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.Image,
			&item.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}

	order.Items = items
	return nil
}

func scanOrder(row scanner) (*domain.Order, error) {
	order := &domain.Order{}
	var (
		phone          sql.NullString
		intentID       sql.NullString
		paidAt         sql.NullTime
		resultID       sql.NullString
		resultStatus   sql.NullString
		resultTime     sql.NullString
		deliveredAt    sql.NullTime
		trackingNumber sql.NullString
	)

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.ShippingAddress.Name,
		&order.ShippingAddress.Street,
		&order.ShippingAddress.City,
		&order.ShippingAddress.State,
		&order.ShippingAddress.ZipCode,
		&order.ShippingAddress.Country,
		&phone,
		&order.ItemsPrice,
		&order.TaxPrice,
		&order.ShippingPrice,
		&order.TotalPrice,
		&intentID,
		&order.IsPaid,
		&paidAt,
		&resultID,
		&resultStatus,
		&resultTime,
		&order.IsDelivered,
		&deliveredAt,
		&order.Status,
		&trackingNumber,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.ShippingAddress.Phone = phone.String
	order.PaymentIntentID = intentID.String
	order.TrackingNumber = trackingNumber.String
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}
	if resultID.Valid || resultStatus.Valid {
		order.PaymentResult = &domain.PaymentResult{
			ID:         resultID.String,
			Status:     resultStatus.String,
			UpdateTime: resultTime.String,
		}
	}

	return order, nil
}
