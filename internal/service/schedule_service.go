package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
	"github.com/noah-isme/course-billing-api/pkg/logger"
)

// ScheduleService applies admin schedule and fee changes to the provider and then to the enrollment.
type ScheduleService struct {
	lifecycle
	fees     feeSettingsStore
	provider PaymentProvider
}

// NewScheduleService constructs the service.
func NewScheduleService(enrollments enrollmentStore, fees feeSettingsStore, provider PaymentProvider, audit auditLogger, logger *zap.Logger, opts ...LifecycleOption) *ScheduleService {
	return &ScheduleService{
		lifecycle: newLifecycle("schedule-service", enrollments, audit, logger, opts),
		fees:      fees,
		provider:  provider,
	}
}

// Update validates req, pushes the fee and then the schedule to the provider, and persists what was accepted.
//
// A fee rejection aborts everything. A schedule rejection after an accepted fee keeps the
// new fee, since the provider already bills it, and returns a partial-update error.
func (s *ScheduleService) Update(ctx context.Context, enrollmentID string, req billing.ScheduleUpdateRequest, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	state, err := s.check(e, billing.ActionUpdateSchedule)
	if err != nil {
		return nil, err
	}
	plan, err := billing.PlanSchedule(e, req, s.policy.schedule(s.now()))
	if err != nil {
		s.metrics.RecordAction(string(billing.ActionUpdateSchedule), "invalid")
		return nil, err
	}
	if plan.IsNoop() {
		return &models.ActionResult{
			Success:    true,
			Changed:    false,
			Message:    "schedule already matches the request",
			FromState:  state,
			ToState:    state,
			Enrollment: e,
		}, nil
	}

	after := e.Clone()
	var applied []string

	if plan.NewFee != nil {
		change, err := s.feeChange(ctx, e, plan)
		if err != nil {
			return nil, err
		}
		if err := s.provider.UpdateFee(ctx, change); err != nil {
			return nil, s.providerFailure(e, billing.ActionUpdateSchedule, err, "failed to update fee, no changes were applied")
		}
		after.Fee = *plan.NewFee
		applied = append(applied, billing.ChangeFee)
	}

	if plan.HasScheduleChanges() {
		if err := s.provider.UpdateSchedule(ctx, e.SubscriptionID(), plan.Payload); err != nil {
			if len(applied) == 0 {
				return nil, s.providerFailure(e, billing.ActionUpdateSchedule, err, "failed to update schedule")
			}
			return nil, s.partial(ctx, e, after, actor, plan, applied, err)
		}
		plan.ApplySchedule(after)
		applied = append(applied, plan.ScheduleChanges()...)
	}

	if err := s.commit(ctx, e, after, actor, billing.ActionUpdateSchedule, models.AuditActionScheduleUpdate); err != nil {
		return nil, err
	}
	result := stateResult(e, after, fmt.Sprintf("updated %s", strings.Join(applied, ", ")))
	result.AppliedChanges = applied
	if plan.IgnoredAnchor {
		result.Details = map[string]interface{}{
			"ignored": []string{billing.ChangeBillingCycleAnchor},
			"note":    "billing cycle anchor follows next_payment_date",
		}
	}
	return result, nil
}

// partial persists the accepted fee and reports which changes did and did not land.
func (s *ScheduleService) partial(ctx context.Context, e, after *models.Enrollment, actor models.Actor, plan *billing.SchedulePlan, applied []string, cause error) error {
	logger.Subscription(s.logger, e.ID, e.StripeSubscriptionID).Error("schedule update rejected after fee change",
		zap.Strings("applied_changes", applied),
		zap.Error(cause),
	)
	if err := s.commit(ctx, e, after, actor, billing.ActionUpdateSchedule, models.AuditActionScheduleUpdate); err != nil {
		return err
	}
	s.metrics.RecordAction(string(billing.ActionUpdateSchedule), "partial")
	partial := appErrors.Clone(appErrors.ErrPartialUpdate, "fee updated but schedule change was rejected by the payment provider")
	partial.Err = cause
	return partial.WithDetails(map[string]interface{}{
		"applied_changes": applied,
		"failed_changes":  plan.ScheduleChanges(),
	})
}

func (s *ScheduleService) feeChange(ctx context.Context, e *models.Enrollment, plan *billing.SchedulePlan) (FeeChange, error) {
	settings, err := s.fees.FindByCourseID(ctx, e.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FeeChange{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "course has no fee settings")
		}
		return FeeChange{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course fee settings")
	}
	if settings.StripeProductID == nil || *settings.StripeProductID == "" {
		return FeeChange{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "course has no provider product to price the new fee")
	}
	currency := e.Currency
	if currency == "" {
		currency = settings.Currency
	}
	if currency == "" {
		currency = s.policy.DefaultCurrency
	}
	return FeeChange{
		SubscriptionID:    e.SubscriptionID(),
		ProductID:         *settings.StripeProductID,
		Currency:          currency,
		Amount:            *plan.NewFee,
		Cycle:             settings.BillingCycle,
		ProrationBehavior: plan.Payload.ProrationBehavior,
	}, nil
}
