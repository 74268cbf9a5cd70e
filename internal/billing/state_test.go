package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

func enrollmentInState(status models.SubscriptionStatus, withSub bool, cancelPending bool) *models.Enrollment {
	e := &models.Enrollment{ID: "enr-1", SubscriptionStatus: status}
	if withSub {
		id := "sub_123"
		e.StripeSubscriptionID = &id
	}
	if cancelPending {
		at := date(2030, 1, 1)
		e.SubscriptionCancelAt = &at
	}
	return e
}

func TestDeriveState(t *testing.T) {
	cases := []struct {
		name   string
		e      *models.Enrollment
		expect models.SubscriptionState
	}{
		{name: "no subscription", e: enrollmentInState("", false, false), expect: models.StateNone},
		{name: "status without id", e: enrollmentInState(models.SubscriptionStatusActive, false, false), expect: models.StateNone},
		{name: "unknown status with id", e: enrollmentInState("", true, false), expect: models.StateIncomplete},
		{name: "active", e: enrollmentInState(models.SubscriptionStatusActive, true, false), expect: models.StateActive},
		{name: "trialing", e: enrollmentInState(models.SubscriptionStatusTrialing, true, false), expect: models.StateTrialing},
		{name: "active pending cancellation", e: enrollmentInState(models.SubscriptionStatusActive, true, true), expect: models.StatePendingCancellation},
		{name: "trialing pending cancellation", e: enrollmentInState(models.SubscriptionStatusTrialing, true, true), expect: models.StatePendingCancellation},
		{name: "past due", e: enrollmentInState(models.SubscriptionStatusPastDue, true, false), expect: models.StatePastDue},
		{name: "unpaid", e: enrollmentInState(models.SubscriptionStatusUnpaid, true, false), expect: models.StateUnpaid},
		{name: "canceled", e: enrollmentInState(models.SubscriptionStatusCanceled, true, false), expect: models.StateCanceled},
		{name: "incomplete expired", e: enrollmentInState(models.SubscriptionStatusIncompleteExpired, true, false), expect: models.StateIncompleteExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, DeriveState(tc.e))
		})
	}
}

func TestCheckLegalActions(t *testing.T) {
	cases := []struct {
		state   models.SubscriptionState
		allowed []Action
		denied  []Action
	}{
		{models.StateNone, []Action{ActionCreate, ActionSwitchManual}, []Action{ActionCancel, ActionUpdateSchedule, ActionUndoCancel}},
		{models.StateIncomplete, []Action{ActionConfirmPayment, ActionForceRecreate}, []Action{ActionCancel, ActionResume}},
		{models.StateActive, []Action{ActionCancel, ActionUpdateSchedule, ActionSwitchManual}, []Action{ActionCreate, ActionUndoCancel, ActionResume}},
		{models.StatePendingCancellation, []Action{ActionUndoCancel}, []Action{ActionCancel, ActionUpdateSchedule, ActionSwitchManual}},
		{models.StateCanceled, []Action{ActionResume, ActionForceRecreate}, []Action{ActionCancel, ActionUndoCancel}},
		{models.StatePastDue, []Action{ActionConfirmPayment, ActionCancel}, []Action{ActionUpdateSchedule}},
	}

	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			for _, a := range tc.allowed {
				assert.True(t, Can(tc.state, a), "%s should allow %s", tc.state, a)
			}
			for _, a := range tc.denied {
				assert.False(t, Can(tc.state, a), "%s should deny %s", tc.state, a)
			}
		})
	}
}

func TestCheckCancelWithoutSubscription(t *testing.T) {
	e := enrollmentInState("", false, false)
	before := *e

	state, err := Check(e, ActionCancel)
	require.Error(t, err)
	assert.Equal(t, models.StateNone, state)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidState.Code))

	appErr := appErrors.FromError(err)
	assert.Equal(t, "none", appErr.Details["state"])
	assert.Equal(t, "cancel", appErr.Details["action"])
	assert.Equal(t, before, *e)
}

func TestAllowedActionsReturnsCopy(t *testing.T) {
	actions := AllowedActions(models.StateActive)
	actions[0] = "tampered"
	assert.True(t, Can(models.StateActive, ActionCancel))
}
