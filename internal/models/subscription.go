package models

import "time"

// SubscriptionCreateOptions carries optional schedule parameters for a new provider subscription.
type SubscriptionCreateOptions struct {
	PriceID            string
	CustomerID         string
	PaymentMethodID    string
	TrialEndAt         *time.Time
	BillingCycleAnchor *time.Time
	ProrationBehavior  ProrationBehavior
	CancelAt           *time.Time
	Metadata           map[string]string
}

// SubscriptionCreateResult is returned by the provider after creating a subscription.
type SubscriptionCreateResult struct {
	SubscriptionID   string
	Status           SubscriptionStatus
	StartDate        time.Time
	CurrentPeriodEnd *time.Time
	TrialEnd         *time.Time
}

// CancellationResult describes how the provider scheduled a cancellation.
type CancellationResult struct {
	Immediately bool
	CancelAt    *time.Time
	Message     string
}

// SchedulePayload is the provider-side change set computed by the schedule mutator.
type SchedulePayload struct {
	BillingCycleAnchor *time.Time        `json:"billing_cycle_anchor,omitempty"`
	NextPaymentDate    *time.Time        `json:"next_payment_date,omitempty"`
	TrialEndAt         *time.Time        `json:"trial_end_at,omitempty"`
	ClearTrial         bool              `json:"clear_trial,omitempty"`
	ProrationBehavior  ProrationBehavior `json:"proration_behavior,omitempty"`
	CancelAt           *time.Time        `json:"cancel_at,omitempty"`
}

// IsEmpty reports whether the payload would change nothing provider-side.
func (p SchedulePayload) IsEmpty() bool {
	return p.BillingCycleAnchor == nil && p.NextPaymentDate == nil && p.TrialEndAt == nil &&
		!p.ClearTrial && p.CancelAt == nil
}

// SubscriptionDetails is a point-in-time read of the provider subscription.
type SubscriptionDetails struct {
	SubscriptionID    string             `json:"subscription_id"`
	Status            SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
	CancelAt          *time.Time         `json:"cancel_at,omitempty"`
	TrialEnd          *time.Time         `json:"trial_end,omitempty"`
	PauseCollection   bool               `json:"pause_collection"`
	ObservedAt        time.Time          `json:"observed_at"`
}

// PaymentConfirmation reports the outcome of resolving an incomplete subscription payment.
type PaymentConfirmation struct {
	Success              bool     `json:"success"`
	RequiresAction       bool     `json:"requires_action,omitempty"`
	RequiresManualAction bool     `json:"requires_manual_action,omitempty"`
	SuggestedActions     []string `json:"suggested_actions,omitempty"`
	Error                string   `json:"error,omitempty"`
}

// ProviderCustomer is a customer record at the payment provider.
type ProviderCustomer struct {
	ID    string
	Email string
	Name  string
}

// Actor identifies the admin performing a state-mutating operation.
type Actor struct {
	ID   string
	Role UserRole
}

// ActionResult is the structured outcome of an administrative action.
type ActionResult struct {
	Success        bool                   `json:"success"`
	Changed        bool                   `json:"changed"`
	Message        string                 `json:"message"`
	AppliedChanges []string               `json:"applied_changes,omitempty"`
	FromState      SubscriptionState      `json:"from_state,omitempty"`
	ToState        SubscriptionState      `json:"to_state,omitempty"`
	Enrollment     *Enrollment            `json:"enrollment,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// SubscriptionState is the derived lifecycle state used for admin action gating.
type SubscriptionState string

const (
	StateNone                SubscriptionState = "none"
	StateIncomplete          SubscriptionState = "incomplete"
	StateIncompleteExpired   SubscriptionState = "incomplete_expired"
	StateTrialing            SubscriptionState = "trialing"
	StateActive              SubscriptionState = "active"
	StatePastDue             SubscriptionState = "past_due"
	StateUnpaid              SubscriptionState = "unpaid"
	StatePendingCancellation SubscriptionState = "pending_cancellation"
	StateCanceled            SubscriptionState = "canceled"
)

// SubscriptionEvent is the fire-and-forget notification emitted after a committed transition.
type SubscriptionEvent struct {
	EnrollmentID string            `json:"enrollment_id"`
	PayerID      string            `json:"payer_id"`
	Action       string            `json:"action"`
	FromState    SubscriptionState `json:"from_state"`
	ToState      SubscriptionState `json:"to_state"`
	ActorID      string            `json:"actor_id"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// ProviderEvent is a verified, normalised webhook notification from the payment provider.
type ProviderEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	SubscriptionID string    `json:"subscription_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}
