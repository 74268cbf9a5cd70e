package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// ErrVersionConflict is returned when an enrollment changed since it was read.
var ErrVersionConflict = errors.New("enrollment version conflict")

const enrollmentColumns = `id, student_id, payer_id, course_id, enrolled_at, start_date, end_date, completion_date,
        fee, currency, subscription_status, stripe_subscription_id, billing_cycle_anchor, trial_end_at,
        next_payment_at, subscription_cancel_at, proration_behavior, collection_paused, payment_mode,
        timezone, subscription_synced_at, version, updated_at`

// EnrollmentRepository handles persistence of enrollments and their subscription fields.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindBySubscriptionID resolves the enrollment linked to a provider subscription.
func (r *EnrollmentRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE stripe_subscription_id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, subscriptionID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// UpdateBilling persists the billing and subscription fields guarded by the version the
// caller read. On success the enrollment's Version and UpdatedAt are advanced.
func (r *EnrollmentRepository) UpdateBilling(ctx context.Context, enrollment *models.Enrollment) error {
	now := time.Now().UTC()
	const query = `UPDATE enrollments SET
        fee = :fee,
        currency = :currency,
        subscription_status = :subscription_status,
        stripe_subscription_id = :stripe_subscription_id,
        billing_cycle_anchor = :billing_cycle_anchor,
        trial_end_at = :trial_end_at,
        next_payment_at = :next_payment_at,
        subscription_cancel_at = :subscription_cancel_at,
        proration_behavior = :proration_behavior,
        collection_paused = :collection_paused,
        payment_mode = :payment_mode,
        subscription_synced_at = :subscription_synced_at,
        version = version + 1,
        updated_at = :updated_at
        WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                     enrollment.ID,
		"version":                enrollment.Version,
		"fee":                    enrollment.Fee,
		"currency":               enrollment.Currency,
		"subscription_status":    enrollment.Status(),
		"stripe_subscription_id": enrollment.StripeSubscriptionID,
		"billing_cycle_anchor":   enrollment.BillingCycleAnchor,
		"trial_end_at":           enrollment.TrialEndAt,
		"next_payment_at":        enrollment.NextPaymentAt,
		"subscription_cancel_at": enrollment.SubscriptionCancelAt,
		"proration_behavior":     enrollment.ProrationBehavior,
		"collection_paused":      enrollment.CollectionPaused,
		"payment_mode":           enrollment.PaymentMode,
		"subscription_synced_at": enrollment.SubscriptionSyncedAt,
		"updated_at":             now,
	})
	if err != nil {
		return fmt.Errorf("update enrollment billing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check enrollment update rows: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	enrollment.Version++
	enrollment.UpdatedAt = now
	return nil
}
