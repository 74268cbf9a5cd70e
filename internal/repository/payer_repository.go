package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// PayerRepository persists billing contacts and their stored payment methods.
type PayerRepository struct {
	db *sqlx.DB
}

// NewPayerRepository constructs the repository.
func NewPayerRepository(db *sqlx.DB) *PayerRepository {
	return &PayerRepository{db: db}
}

// FindByID returns a payer by ID.
func (r *PayerRepository) FindByID(ctx context.Context, id string) (*models.Payer, error) {
	const query = `SELECT id, full_name, email, stripe_customer_id, updated_at FROM payers WHERE id = $1`
	var payer models.Payer
	if err := r.db.GetContext(ctx, &payer, query, id); err != nil {
		return nil, err
	}
	return &payer, nil
}

// LinkCustomer stores the provider customer id on the payer.
func (r *PayerRepository) LinkCustomer(ctx context.Context, payerID, customerID string) error {
	const query = `UPDATE payers SET stripe_customer_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, payerID, customerID, time.Now().UTC()); err != nil {
		return fmt.Errorf("link payer customer: %w", err)
	}
	return nil
}

// ListActivePaymentMethods returns active methods, default first.
func (r *PayerRepository) ListActivePaymentMethods(ctx context.Context, payerID string) ([]models.PaymentMethod, error) {
	const query = `SELECT id, payer_id, stripe_payment_method_id, brand, last4, is_default, active, created_at
        FROM payment_methods WHERE payer_id = $1 AND active = TRUE ORDER BY is_default DESC, created_at DESC`
	var methods []models.PaymentMethod
	if err := r.db.SelectContext(ctx, &methods, query, payerID); err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return methods, nil
}
