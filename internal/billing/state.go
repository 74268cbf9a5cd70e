package billing

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

// Action is an administrative operation gated by the subscription state.
type Action string

const (
	ActionCreate          Action = "create_subscription"
	ActionConfirmPayment  Action = "confirm_payment"
	ActionForceRecreate   Action = "force_recreate"
	ActionCancel          Action = "cancel"
	ActionUndoCancel      Action = "undo_cancel"
	ActionResume          Action = "resume"
	ActionUpdateSchedule  Action = "update_schedule"
	ActionSwitchManual    Action = "switch_to_manual"
	ActionSwitchAutomatic Action = "switch_to_automatic"
)

var legalActions = map[models.SubscriptionState][]Action{
	models.StateNone:       {ActionCreate, ActionSwitchManual, ActionSwitchAutomatic},
	models.StateIncomplete: {ActionConfirmPayment, ActionForceRecreate},
	models.StateTrialing:   {ActionCancel, ActionUpdateSchedule, ActionSwitchManual, ActionSwitchAutomatic},
	models.StateActive:     {ActionCancel, ActionUpdateSchedule, ActionSwitchManual, ActionSwitchAutomatic},
	models.StatePastDue:    {ActionCancel, ActionConfirmPayment, ActionSwitchManual, ActionSwitchAutomatic},
	models.StateUnpaid:     {ActionCancel, ActionConfirmPayment, ActionSwitchManual, ActionSwitchAutomatic},
	// undo is the only way out other than letting the cancellation lapse
	models.StatePendingCancellation: {ActionUndoCancel},
	models.StateCanceled:            {ActionResume, ActionForceRecreate, ActionSwitchManual, ActionSwitchAutomatic},
	models.StateIncompleteExpired:   {ActionResume, ActionForceRecreate, ActionSwitchManual, ActionSwitchAutomatic},
}

// DeriveState maps the stored enrollment fields onto a lifecycle state.
func DeriveState(e *models.Enrollment) models.SubscriptionState {
	if !e.HasSubscription() {
		return models.StateNone
	}
	switch e.Status() {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing:
		if e.SubscriptionCancelAt != nil {
			return models.StatePendingCancellation
		}
		if e.Status() == models.SubscriptionStatusTrialing {
			return models.StateTrialing
		}
		return models.StateActive
	case models.SubscriptionStatusPastDue:
		return models.StatePastDue
	case models.SubscriptionStatusUnpaid:
		return models.StateUnpaid
	case models.SubscriptionStatusCanceled:
		return models.StateCanceled
	case models.SubscriptionStatusIncompleteExpired:
		return models.StateIncompleteExpired
	default:
		// a linked subscription without a known status has not completed its first payment
		return models.StateIncomplete
	}
}

// AllowedActions lists the actions legal in state.
func AllowedActions(state models.SubscriptionState) []Action {
	return append([]Action(nil), legalActions[state]...)
}

// Can reports whether action is legal in state.
func Can(state models.SubscriptionState, action Action) bool {
	return lo.Contains(legalActions[state], action)
}

// Check returns an invalid-state error when action is not legal for the enrollment.
func Check(e *models.Enrollment, action Action) (models.SubscriptionState, error) {
	state := DeriveState(e)
	if Can(state, action) {
		return state, nil
	}
	allowed := lo.Map(legalActions[state], func(a Action, _ int) string { return string(a) })
	return state, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("%s is not allowed while subscription is %s", action, state)).
		WithDetails(map[string]interface{}{
			"state":           string(state),
			"action":          string(action),
			"allowed_actions": allowed,
		})
}
