package billing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

// Default times of day applied when an admin omits the time portion.
const (
	DefaultChargeTimeOfDay = "07:23"
	DefaultCutoffTimeOfDay = "23:59"
)

// Names reported in applied_changes.
const (
	ChangeFee                = "fee"
	ChangeNextPaymentDate    = "next_payment_date"
	ChangeBillingCycleAnchor = "billing_cycle_anchor"
	ChangeTrialEnd           = "trial_end"
	ChangeCancelAt           = "cancel_at"
	ChangeProrationBehavior  = "proration_behavior"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// DateTimeInput is an admin-entered calendar date with an optional HH:MM time.
type DateTimeInput struct {
	Date string `json:"date"`
	Time string `json:"time,omitempty"`
}

// TrialEndChange distinguishes "leave as is", "clear the trial" and "set a new trial end".
type TrialEndChange struct {
	Set   bool
	Clear bool
	Value DateTimeInput
}

// ScheduleUpdateRequest is the typed change set for one schedule mutation.
type ScheduleUpdateRequest struct {
	NextPaymentDate    *DateTimeInput
	BillingCycleAnchor *DateTimeInput
	TrialEnd           TrialEndChange
	CancelAt           *DateTimeInput
	ProrationBehavior  *models.ProrationBehavior
	Fee                *decimal.Decimal
}

// IsEmpty reports whether no field was supplied at all.
func (r ScheduleUpdateRequest) IsEmpty() bool {
	return r.NextPaymentDate == nil && r.BillingCycleAnchor == nil && !r.TrialEnd.Set &&
		r.CancelAt == nil && r.ProrationBehavior == nil && r.Fee == nil
}

// SchedulePolicy carries the clock and the configurable limits used during validation.
type SchedulePolicy struct {
	Now             time.Time
	ChargeTimeOfDay string
	CutoffTimeOfDay string
	MaxFee          decimal.Decimal
}

// SchedulePlan is the fully computed mutation. Nothing is applied until the provider accepts it.
type SchedulePlan struct {
	Payload models.SchedulePayload
	// NewFee is set only when the requested fee differs from the stored one.
	NewFee *decimal.Decimal
	// IgnoredAnchor is true when an explicit anchor lost to next_payment_date.
	IgnoredAnchor bool
	changes       []string
}

// Changes lists the schedule fields the plan touches, fee first.
func (p *SchedulePlan) Changes() []string {
	out := make([]string, 0, len(p.changes)+1)
	if p.NewFee != nil {
		out = append(out, ChangeFee)
	}
	return append(out, p.changes...)
}

// ScheduleChanges lists only the provider schedule fields.
func (p *SchedulePlan) ScheduleChanges() []string {
	return append([]string(nil), p.changes...)
}

// HasScheduleChanges reports whether a provider schedule call is needed.
func (p *SchedulePlan) HasScheduleChanges() bool {
	return len(p.changes) > 0
}

// IsNoop reports whether the plan changes nothing.
func (p *SchedulePlan) IsNoop() bool {
	return p.NewFee == nil && len(p.changes) == 0
}

// ApplySchedule writes the provider-accepted schedule fields onto e.
func (p *SchedulePlan) ApplySchedule(e *models.Enrollment) {
	pl := p.Payload
	if pl.NextPaymentDate != nil {
		e.NextPaymentAt = cloneTime(pl.NextPaymentDate)
	}
	if pl.BillingCycleAnchor != nil {
		e.BillingCycleAnchor = cloneTime(pl.BillingCycleAnchor)
	}
	if pl.ClearTrial {
		e.TrialEndAt = nil
	} else if pl.TrialEndAt != nil {
		e.TrialEndAt = cloneTime(pl.TrialEndAt)
	}
	if pl.CancelAt != nil {
		e.SubscriptionCancelAt = cloneTime(pl.CancelAt)
	}
	if lo.Contains(p.changes, ChangeProrationBehavior) {
		e.ProrationBehavior = pl.ProrationBehavior
	}
}

// PlanSchedule validates req against e and computes the provider payload.
//
// next_payment_date wins over billing_cycle_anchor: when both are supplied the anchor is
// derived from the next payment timestamp and the explicit anchor is dropped. A trial end
// change is rejected alongside either of them.
func PlanSchedule(e *models.Enrollment, req ScheduleUpdateRequest, policy SchedulePolicy) (*SchedulePlan, error) {
	if req.IsEmpty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no schedule changes supplied")
	}
	policy = policy.withDefaults()

	loc := e.Location()
	now := policy.Now.In(loc)
	today := civilDate(now)
	fieldErrs := map[string]interface{}{}

	plan := &SchedulePlan{Payload: models.SchedulePayload{ProrationBehavior: e.ProrationBehavior}}
	if plan.Payload.ProrationBehavior == "" {
		plan.Payload.ProrationBehavior = models.ProrationCreateProrations
	}

	if req.Fee != nil {
		switch {
		case !req.Fee.IsPositive():
			fieldErrs["fee"] = "must be greater than zero"
		case req.Fee.GreaterThan(policy.MaxFee):
			fieldErrs["fee"] = fmt.Sprintf("must not exceed %s", policy.MaxFee.String())
		case !req.Fee.Equal(e.Fee):
			fee := *req.Fee
			plan.NewFee = &fee
		}
	}

	futureCommitment := func(field string, in DateTimeInput) *time.Time {
		ts, err := ResolveDateTime(in, policy.ChargeTimeOfDay, loc)
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

	if req.NextPaymentDate != nil {
		if ts := futureCommitment("next_payment_date", *req.NextPaymentDate); ts != nil {
			plan.Payload.NextPaymentDate = ts
			anchor := *ts
			plan.Payload.BillingCycleAnchor = &anchor
			plan.changes = append(plan.changes, ChangeNextPaymentDate)
		}
		plan.IgnoredAnchor = req.BillingCycleAnchor != nil
	} else if req.BillingCycleAnchor != nil {
		if ts := futureCommitment("billing_cycle_anchor", *req.BillingCycleAnchor); ts != nil {
			plan.Payload.BillingCycleAnchor = ts
			plan.changes = append(plan.changes, ChangeBillingCycleAnchor)
		}
	}

	if req.TrialEnd.Set {
		if req.TrialEnd.Clear || strings.TrimSpace(req.TrialEnd.Value.Date) == "" {
			plan.Payload.ClearTrial = true
			plan.changes = append(plan.changes, ChangeTrialEnd)
		} else if ts := futureCommitment("trial_end", req.TrialEnd.Value); ts != nil {
			if civilDate(*ts).Before(DateOf(e.StartDate)) {
				fieldErrs["trial_end"] = "must not precede the enrollment start date"
			} else {
				plan.Payload.TrialEndAt = ts
				plan.changes = append(plan.changes, ChangeTrialEnd)
			}
		}
	}

	// The provider moves the billing date through the trial end, so both cannot change at once.
	if req.TrialEnd.Set {
		if field, ok := dateField(req); ok {
			fieldErrs[field] = "cannot be combined with trial_end"
			fieldErrs["trial_end"] = "cannot be combined with " + field
		}
	}

	if req.CancelAt != nil {
		ts, err := ResolveDateTime(*req.CancelAt, policy.CutoffTimeOfDay, loc)
		switch {
		case err != nil:
			fieldErrs["cancel_at"] = err.Error()
		case !civilDate(ts).After(today):
			fieldErrs["cancel_at"] = "must be in the future"
		default:
			plan.Payload.CancelAt = &ts
			plan.changes = append(plan.changes, ChangeCancelAt)
		}
	}

	if req.ProrationBehavior != nil {
		if !lo.Contains(ProrationBehaviors, *req.ProrationBehavior) {
			fieldErrs["proration_behavior"] = "must be one of create_prorations, none, always_invoice"
		} else if *req.ProrationBehavior != e.ProrationBehavior {
			plan.Payload.ProrationBehavior = *req.ProrationBehavior
			plan.changes = append(plan.changes, ChangeProrationBehavior)
		}
	}

	if len(fieldErrs) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid schedule request").WithDetails(fieldErrs)
	}
	return plan, nil
}

func dateField(req ScheduleUpdateRequest) (string, bool) {
	switch {
	case req.NextPaymentDate != nil:
		return "next_payment_date", true
	case req.BillingCycleAnchor != nil:
		return "billing_cycle_anchor", true
	}
	return "", false
}

// ProrationBehaviors enumerates the accepted proration policies.
var ProrationBehaviors = []models.ProrationBehavior{
	models.ProrationCreateProrations,
	models.ProrationNone,
	models.ProrationAlwaysInvoice,
}

// ResolveDateTime combines a YYYY-MM-DD date with an HH:MM time in loc. defaultTime is
// used when the time portion is blank.
func ResolveDateTime(in DateTimeInput, defaultTime string, loc *time.Location) (time.Time, error) {
	date := strings.TrimSpace(in.Date)
	if date == "" {
		return time.Time{}, errors.New("date is required")
	}
	clock := strings.TrimSpace(in.Time)
	if clock == "" {
		clock = defaultTime
	}
	if !clockPattern.MatchString(clock) {
		return time.Time{}, errors.New("time must be HH:MM")
	}
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return ts, nil
}

// ValidClock reports whether s is a well-formed HH:MM clock time.
func ValidClock(s string) bool {
	return clockPattern.MatchString(s)
}

func (p SchedulePolicy) withDefaults() SchedulePolicy {
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	if !ValidClock(p.ChargeTimeOfDay) {
		p.ChargeTimeOfDay = DefaultChargeTimeOfDay
	}
	if !ValidClock(p.CutoffTimeOfDay) {
		p.CutoffTimeOfDay = DefaultCutoffTimeOfDay
	}
	if !p.MaxFee.IsPositive() {
		p.MaxFee = decimal.NewFromInt(100000)
	}
	return p
}

// civilDate keeps the calendar date of t in its own location.
func civilDate(t time.Time) time.Time {
	return DateOf(t)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
