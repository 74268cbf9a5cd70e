package models

import (
	"time"
	// enrollment timezones must resolve in minimal containers
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// SubscriptionStatus mirrors the recurring billing status reported by the payment provider.
type SubscriptionStatus string

// Stored subscription statuses. An empty value is treated as SubscriptionStatusNone.
const (
	SubscriptionStatusNone              SubscriptionStatus = "none"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
)

// ProrationBehavior controls partial-period adjustments when billing parameters change.
type ProrationBehavior string

const (
	ProrationCreateProrations ProrationBehavior = "create_prorations"
	ProrationNone             ProrationBehavior = "none"
	ProrationAlwaysInvoice    ProrationBehavior = "always_invoice"
)

// PaymentMode selects provider auto-charge or admin-approved collection.
type PaymentMode string

const (
	PaymentModeAutomatic PaymentMode = "automatic"
	PaymentModeManual    PaymentMode = "manual"
)

// Enrollment captures a student's registration to a course with optional recurring billing.
type Enrollment struct {
	ID                   string             `db:"id" json:"id"`
	StudentID            string             `db:"student_id" json:"student_id"`
	PayerID              string             `db:"payer_id" json:"payer_id"`
	CourseID             string             `db:"course_id" json:"course_id"`
	EnrolledAt           time.Time          `db:"enrolled_at" json:"enrolled_at"`
	StartDate            time.Time          `db:"start_date" json:"start_date"`
	EndDate              *time.Time         `db:"end_date" json:"end_date,omitempty"`
	CompletionDate       *time.Time         `db:"completion_date" json:"completion_date,omitempty"`
	Fee                  decimal.Decimal    `db:"fee" json:"fee"`
	Currency             string             `db:"currency" json:"currency"`
	SubscriptionStatus   SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	StripeSubscriptionID *string            `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	BillingCycleAnchor   *time.Time         `db:"billing_cycle_anchor" json:"billing_cycle_anchor,omitempty"`
	TrialEndAt           *time.Time         `db:"trial_end_at" json:"trial_end_at,omitempty"`
	NextPaymentAt        *time.Time         `db:"next_payment_at" json:"next_payment_at,omitempty"`
	SubscriptionCancelAt *time.Time         `db:"subscription_cancel_at" json:"subscription_cancel_at,omitempty"`
	ProrationBehavior    ProrationBehavior  `db:"proration_behavior" json:"proration_behavior"`
	CollectionPaused     bool               `db:"collection_paused" json:"collection_paused"`
	PaymentMode          PaymentMode        `db:"payment_mode" json:"payment_mode"`
	Timezone             string             `db:"timezone" json:"timezone"`
	SubscriptionSyncedAt *time.Time         `db:"subscription_synced_at" json:"subscription_synced_at,omitempty"`
	Version              int                `db:"version" json:"version"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// HasSubscription reports whether an external subscription is linked.
func (e *Enrollment) HasSubscription() bool {
	return e != nil && e.StripeSubscriptionID != nil && *e.StripeSubscriptionID != ""
}

// SubscriptionID returns the external subscription id or an empty string.
func (e *Enrollment) SubscriptionID() string {
	if !e.HasSubscription() {
		return ""
	}
	return *e.StripeSubscriptionID
}

// Status normalises the stored subscription status.
func (e *Enrollment) Status() SubscriptionStatus {
	if e == nil || e.SubscriptionStatus == "" {
		return SubscriptionStatusNone
	}
	return e.SubscriptionStatus
}

// Location resolves the enrollment timezone, falling back to UTC.
func (e *Enrollment) Location() *time.Location {
	if e == nil || e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clone returns a deep copy so callers can stage changes without touching the original.
func (e *Enrollment) Clone() *Enrollment {
	if e == nil {
		return nil
	}
	c := *e
	c.EndDate = cloneTime(e.EndDate)
	c.CompletionDate = cloneTime(e.CompletionDate)
	c.BillingCycleAnchor = cloneTime(e.BillingCycleAnchor)
	c.TrialEndAt = cloneTime(e.TrialEndAt)
	c.NextPaymentAt = cloneTime(e.NextPaymentAt)
	c.SubscriptionCancelAt = cloneTime(e.SubscriptionCancelAt)
	c.SubscriptionSyncedAt = cloneTime(e.SubscriptionSyncedAt)
	if e.StripeSubscriptionID != nil {
		id := *e.StripeSubscriptionID
		c.StripeSubscriptionID = &id
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
