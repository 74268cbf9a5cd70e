package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/course-billing-api/internal/models"
)

const orderColumns = `id, enrollment_id, amount, currency, status, period_start, period_end, paid_at,
        failure_code, failure_reason, payment_method, metadata, created_at`

// ReviewOrderParams captures the outcome of a manual order review.
type ReviewOrderParams struct {
	ID            string
	Status        models.OrderStatus
	PaidAt        *time.Time
	FailureCode   *string
	FailureReason *string
	Metadata      types.JSONText
}

// OrderRepository persists billing orders.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository constructs the repository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ListByEnrollment returns every order of an enrollment. Ordering is left to reconciliation.
func (r *OrderRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE enrollment_id = $1`
	var orders []models.Order
	if err := r.db.SelectContext(ctx, &orders, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment orders: %w", err)
	}
	return orders, nil
}

// FindByID returns an order by ID.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	var order models.Order
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if len(order.Metadata) == 0 {
		order.Metadata = types.JSONText(`{}`)
	}
	const query = `INSERT INTO orders (id, enrollment_id, amount, currency, status, period_start, period_end, paid_at,
        failure_code, failure_reason, payment_method, metadata, created_at)
        VALUES (:id, :enrollment_id, :amount, :currency, :status, :period_start, :period_end, :paid_at,
        :failure_code, :failure_reason, :payment_method, :metadata, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// Review moves a pending manual order to paid or failed. A concurrent review that already
// resolved the order yields sql.ErrNoRows.
func (r *OrderRepository) Review(ctx context.Context, params ReviewOrderParams) error {
	query := fmt.Sprintf(`UPDATE orders SET status = :status, paid_at = :paid_at, failure_code = :failure_code,
        failure_reason = :failure_reason, metadata = :metadata
        WHERE id = :id AND status = '%s' AND payment_method = '%s'`,
		models.OrderStatusPending, models.OrderPaymentManual)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":             params.ID,
		"status":         params.Status,
		"paid_at":        params.PaidAt,
		"failure_code":   params.FailureCode,
		"failure_reason": params.FailureReason,
		"metadata":       params.Metadata,
	})
	if err != nil {
		return fmt.Errorf("review order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check order review rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
