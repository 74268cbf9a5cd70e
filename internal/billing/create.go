package billing

import (
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

// SubscriptionCreateRequest carries the optional schedule for a new provider subscription.
type SubscriptionCreateRequest struct {
	// PaymentMethodID selects one of the payer's active methods; blank uses the default.
	PaymentMethodID    string
	TrialEnd           *DateTimeInput
	BillingCycleAnchor *DateTimeInput
	CancelAt           *DateTimeInput
	ProrationBehavior  *models.ProrationBehavior
}

// CreatePlan is a validated create request resolved into the enrollment timezone.
type CreatePlan struct {
	PaymentMethodID    string
	TrialEndAt         *time.Time
	BillingCycleAnchor *time.Time
	CancelAt           *time.Time
	ProrationBehavior  models.ProrationBehavior
}

// PlanCreate validates req for a brand-new subscription on e.
func PlanCreate(e *models.Enrollment, req SubscriptionCreateRequest, policy SchedulePolicy) (*CreatePlan, error) {
	policy = policy.withDefaults()
	loc := e.Location()
	today := civilDate(policy.Now.In(loc))
	fieldErrs := map[string]interface{}{}

	plan := &CreatePlan{PaymentMethodID: req.PaymentMethodID, ProrationBehavior: e.ProrationBehavior}
	if plan.ProrationBehavior == "" {
		plan.ProrationBehavior = models.ProrationCreateProrations
	}

	futureCommitment := func(field string, in *DateTimeInput) *time.Time {
		if in == nil {
			return nil
		}
		ts, err := ResolveDateTime(*in, policy.ChargeTimeOfDay, loc)
		if err != nil {
			fieldErrs[field] = err.Error()
			return nil
		}
		if civilDate(ts).Before(today) {
			fieldErrs[field] = "must be today or later"
			return nil
		}
		return &ts
	}

	if ts := futureCommitment("trial_end", req.TrialEnd); ts != nil {
		if civilDate(*ts).Before(DateOf(e.StartDate)) {
			fieldErrs["trial_end"] = "must not precede the enrollment start date"
		} else {
			plan.TrialEndAt = ts
		}
	}
	plan.BillingCycleAnchor = futureCommitment("billing_cycle_anchor", req.BillingCycleAnchor)

	if req.CancelAt != nil {
		ts, err := ResolveDateTime(*req.CancelAt, policy.CutoffTimeOfDay, loc)
		switch {
		case err != nil:
			fieldErrs["cancel_at"] = err.Error()
		case !civilDate(ts).After(today):
			fieldErrs["cancel_at"] = "must be in the future"
		default:
			plan.CancelAt = &ts
		}
	}

	if req.ProrationBehavior != nil {
		if lo.Contains(ProrationBehaviors, *req.ProrationBehavior) {
			plan.ProrationBehavior = *req.ProrationBehavior
		} else {
			fieldErrs["proration_behavior"] = "must be one of create_prorations, none, always_invoice"
		}
	}

	if len(fieldErrs) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid subscription request").WithDetails(fieldErrs)
	}
	return plan, nil
}
