package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// CourseFeeRepository reads course fee configuration.
type CourseFeeRepository struct {
	db *sqlx.DB
}

// NewCourseFeeRepository constructs the repository.
func NewCourseFeeRepository(db *sqlx.DB) *CourseFeeRepository {
	return &CourseFeeRepository{db: db}
}

// FindByCourseID returns the fee settings of a course.
func (r *CourseFeeRepository) FindByCourseID(ctx context.Context, courseID string) (*models.CourseFeeSettings, error) {
	const query = `SELECT course_id, billing_cycle, fee_amount, currency, billing_day, stripe_product_id, stripe_price_id
        FROM course_fee_settings WHERE course_id = $1`
	var settings models.CourseFeeSettings
	if err := r.db.GetContext(ctx, &settings, query, courseID); err != nil {
		return nil, err
	}
	return &settings, nil
}
