package models

import "github.com/shopspring/decimal"

// BillingCycle is the recurring cadence configured on a course.
type BillingCycle string

const (
	BillingCycleMonthly   BillingCycle = "monthly"
	BillingCycleQuarterly BillingCycle = "quarterly"
	BillingCycleYearly    BillingCycle = "yearly"
	BillingCycleOneTime   BillingCycle = "one_time"
)

// CourseFeeSettings holds the fee configuration of a course.
type CourseFeeSettings struct {
	CourseID        string          `db:"course_id" json:"course_id"`
	BillingCycle    BillingCycle    `db:"billing_cycle" json:"billing_cycle"`
	FeeAmount       decimal.Decimal `db:"fee_amount" json:"fee_amount"`
	Currency        string          `db:"currency" json:"currency"`
	BillingDay      *int            `db:"billing_day" json:"billing_day,omitempty"`
	StripeProductID *string         `db:"stripe_product_id" json:"stripe_product_id,omitempty"`
	StripePriceID   *string         `db:"stripe_price_id" json:"stripe_price_id,omitempty"`
}

// HasProviderPrice reports whether a recurring provider price is configured.
func (s *CourseFeeSettings) HasProviderPrice() bool {
	return s != nil && s.StripePriceID != nil && *s.StripePriceID != ""
}

// IsRecurring reports whether the cycle produces billing periods.
func (s *CourseFeeSettings) IsRecurring() bool {
	if s == nil {
		return false
	}
	switch s.BillingCycle {
	case BillingCycleMonthly, BillingCycleQuarterly, BillingCycleYearly:
		return true
	}
	return false
}
