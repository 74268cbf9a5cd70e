package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

func scheduleEnrollment() *models.Enrollment {
	subID := "sub_123"
	return &models.Enrollment{
		ID:                   "enr-1",
		StartDate:            date(2024, 1, 15),
		Fee:                  decimal.NewFromInt(150),
		SubscriptionStatus:   models.SubscriptionStatusActive,
		StripeSubscriptionID: &subID,
		ProrationBehavior:    models.ProrationCreateProrations,
		Timezone:             "Asia/Kuala_Lumpur",
	}
}

func schedulePolicy() SchedulePolicy {
	return SchedulePolicy{
		Now:             time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC),
		ChargeTimeOfDay: DefaultChargeTimeOfDay,
		CutoffTimeOfDay: DefaultCutoffTimeOfDay,
		MaxFee:          decimal.NewFromInt(100000),
	}
}

func validationDetails(t *testing.T, err error) map[string]interface{} {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	return appErr.Details
}

func TestPlanScheduleNextPaymentWinsOverAnchor(t *testing.T) {
	e := scheduleEnrollment()
	req := ScheduleUpdateRequest{
		NextPaymentDate:    &DateTimeInput{Date: "2024-03-20"},
		BillingCycleAnchor: &DateTimeInput{Date: "2024-03-25", Time: "10:00"},
	}

	plan, err := PlanSchedule(e, req, schedulePolicy())
	require.NoError(t, err)

	loc := e.Location()
	want := time.Date(2024, 3, 20, 7, 23, 0, 0, loc)
	require.NotNil(t, plan.Payload.NextPaymentDate)
	require.NotNil(t, plan.Payload.BillingCycleAnchor)
	assert.True(t, want.Equal(*plan.Payload.NextPaymentDate))
	assert.True(t, want.Equal(*plan.Payload.BillingCycleAnchor))
	assert.True(t, plan.IgnoredAnchor)
	assert.Equal(t, []string{ChangeNextPaymentDate}, plan.Changes())
}

func TestPlanScheduleAnchorAlone(t *testing.T) {
	plan, err := PlanSchedule(scheduleEnrollment(), ScheduleUpdateRequest{
		BillingCycleAnchor: &DateTimeInput{Date: "2024-03-25", Time: "10:00"},
	}, schedulePolicy())
	require.NoError(t, err)

	require.NotNil(t, plan.Payload.BillingCycleAnchor)
	assert.Nil(t, plan.Payload.NextPaymentDate)
	assert.Equal(t, 10, plan.Payload.BillingCycleAnchor.Hour())
	assert.False(t, plan.IgnoredAnchor)
}

func TestPlanScheduleCancelDefaultsToCutoff(t *testing.T) {
	e := scheduleEnrollment()
	plan, err := PlanSchedule(e, ScheduleUpdateRequest{CancelAt: &DateTimeInput{Date: "2024-04-30"}}, schedulePolicy())
	require.NoError(t, err)

	require.NotNil(t, plan.Payload.CancelAt)
	assert.True(t, time.Date(2024, 4, 30, 23, 59, 0, 0, e.Location()).Equal(*plan.Payload.CancelAt))
	assert.Equal(t, "2024-04-30T15:59:00Z", plan.Payload.CancelAt.UTC().Format(time.RFC3339))
}

func TestPlanScheduleClearsTrial(t *testing.T) {
	e := scheduleEnrollment()
	trial := date(2024, 3, 30)
	e.TrialEndAt = &trial

	plan, err := PlanSchedule(e, ScheduleUpdateRequest{TrialEnd: TrialEndChange{Set: true}}, schedulePolicy())
	require.NoError(t, err)
	assert.True(t, plan.Payload.ClearTrial)

	plan.ApplySchedule(e)
	assert.Nil(t, e.TrialEndAt)
}

func TestPlanScheduleFeeChanges(t *testing.T) {
	e := scheduleEnrollment()

	same := decimal.NewFromInt(150)
	plan, err := PlanSchedule(e, ScheduleUpdateRequest{Fee: &same}, schedulePolicy())
	require.NoError(t, err)
	assert.True(t, plan.IsNoop())

	newFee := decimal.NewFromInt(180)
	plan, err = PlanSchedule(e, ScheduleUpdateRequest{
		Fee:             &newFee,
		NextPaymentDate: &DateTimeInput{Date: "2024-03-10"},
	}, schedulePolicy())
	require.NoError(t, err)
	require.NotNil(t, plan.NewFee)
	assert.True(t, newFee.Equal(*plan.NewFee))
	assert.Equal(t, []string{ChangeFee, ChangeNextPaymentDate}, plan.Changes())
	assert.Equal(t, []string{ChangeNextPaymentDate}, plan.ScheduleChanges())
}

func TestPlanScheduleValidation(t *testing.T) {
	zero := decimal.Zero
	huge := decimal.NewFromInt(100001)

	cases := []struct {
		name  string
		req   ScheduleUpdateRequest
		field string
	}{
		{name: "next payment in the past", req: ScheduleUpdateRequest{NextPaymentDate: &DateTimeInput{Date: "2024-03-09"}}, field: "next_payment_date"},
		{name: "anchor in the past", req: ScheduleUpdateRequest{BillingCycleAnchor: &DateTimeInput{Date: "2024-01-01"}}, field: "billing_cycle_anchor"},
		{name: "cancel today", req: ScheduleUpdateRequest{CancelAt: &DateTimeInput{Date: "2024-03-10"}}, field: "cancel_at"},
		{name: "bad clock", req: ScheduleUpdateRequest{CancelAt: &DateTimeInput{Date: "2024-05-01", Time: "25:00"}}, field: "cancel_at"},
		{name: "bad date", req: ScheduleUpdateRequest{NextPaymentDate: &DateTimeInput{Date: "2024-02-30"}}, field: "next_payment_date"},
		{name: "zero fee", req: ScheduleUpdateRequest{Fee: &zero}, field: "fee"},
		{name: "fee above bound", req: ScheduleUpdateRequest{Fee: &huge}, field: "fee"},
		{name: "unknown proration", req: ScheduleUpdateRequest{ProrationBehavior: prorationPtr("sometimes")}, field: "proration_behavior"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := PlanSchedule(scheduleEnrollment(), tc.req, schedulePolicy())
			assert.Nil(t, plan)
			details := validationDetails(t, err)
			assert.Contains(t, details, tc.field)
		})
	}
}

func TestPlanScheduleTrialBeforeStart(t *testing.T) {
	e := scheduleEnrollment()
	e.StartDate = date(2024, 6, 1)

	_, err := PlanSchedule(e, ScheduleUpdateRequest{
		TrialEnd: TrialEndChange{Set: true, Value: DateTimeInput{Date: "2024-04-01"}},
	}, schedulePolicy())
	details := validationDetails(t, err)
	assert.Contains(t, details, "trial_end")
}

func TestPlanScheduleRejectsTrialWithBillingDate(t *testing.T) {
	cases := []struct {
		name  string
		req   ScheduleUpdateRequest
		field string
	}{
		{
			name:  "clear trial with next payment",
			req:   ScheduleUpdateRequest{NextPaymentDate: &DateTimeInput{Date: "2024-04-20"}, TrialEnd: TrialEndChange{Set: true, Clear: true}},
			field: "next_payment_date",
		},
		{
			name:  "set trial with anchor",
			req:   ScheduleUpdateRequest{BillingCycleAnchor: &DateTimeInput{Date: "2024-04-20"}, TrialEnd: TrialEndChange{Set: true, Value: DateTimeInput{Date: "2024-04-01"}}},
			field: "billing_cycle_anchor",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := scheduleEnrollment()
			plan, err := PlanSchedule(e, tc.req, schedulePolicy())
			assert.Nil(t, plan)
			details := validationDetails(t, err)
			assert.Contains(t, details, tc.field)
			assert.Contains(t, details, "trial_end")
			assert.Nil(t, e.NextPaymentAt)
			assert.Nil(t, e.BillingCycleAnchor)
		})
	}
}

func TestPlanScheduleRejectsEmptyRequest(t *testing.T) {
	_, err := PlanSchedule(scheduleEnrollment(), ScheduleUpdateRequest{}, schedulePolicy())
	validationDetails(t, err)
}

func TestResolveDateTime(t *testing.T) {
	ts, err := ResolveDateTime(DateTimeInput{Date: "2024-02-29", Time: "08:05"}, DefaultChargeTimeOfDay, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 8, 5, 0, 0, time.UTC), ts)

	ts, err = ResolveDateTime(DateTimeInput{Date: "2024-02-29"}, DefaultChargeTimeOfDay, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, ts.Hour())
	assert.Equal(t, 23, ts.Minute())

	_, err = ResolveDateTime(DateTimeInput{Date: "29/02/2024"}, DefaultChargeTimeOfDay, time.UTC)
	assert.Error(t, err)
}

func prorationPtr(v string) *models.ProrationBehavior {
	p := models.ProrationBehavior(v)
	return &p
}
