package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

type feeSettingsStore interface {
	FindByCourseID(ctx context.Context, courseID string) (*models.CourseFeeSettings, error)
}

// SubscriptionService drives the provider subscription through its lifecycle.
type SubscriptionService struct {
	lifecycle
	linker   customerLinker
	fees     feeSettingsStore
	provider PaymentProvider
}

// NewSubscriptionService constructs the service.
func NewSubscriptionService(
	enrollments enrollmentStore,
	payers payerStore,
	fees feeSettingsStore,
	provider PaymentProvider,
	audit auditLogger,
	logger *zap.Logger,
	opts ...LifecycleOption,
) *SubscriptionService {
	return &SubscriptionService{
		lifecycle: newLifecycle("subscription-service", enrollments, audit, logger, opts),
		linker:    customerLinker{payers: payers, provider: provider},
		fees:      fees,
		provider:  provider,
	}
}

// Create starts a provider subscription for an enrollment that has none.
func (s *SubscriptionService) Create(ctx context.Context, enrollmentID string, req billing.SubscriptionCreateRequest, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.check(e, billing.ActionCreate); err != nil {
		return nil, err
	}
	return s.start(ctx, e, req, actor, billing.ActionCreate, models.AuditActionSubscriptionCreate, "subscription created")
}

// Resume replaces a canceled or expired subscription with a brand-new one.
func (s *SubscriptionService) Resume(ctx context.Context, enrollmentID string, req billing.SubscriptionCreateRequest, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.check(e, billing.ActionResume); err != nil {
		return nil, err
	}
	return s.start(ctx, e, req, actor, billing.ActionResume, models.AuditActionSubscriptionResume, "subscription resumed with a new billing agreement")
}

// ForceRecreate cancels a stuck subscription immediately and starts a fresh one.
func (s *SubscriptionService) ForceRecreate(ctx context.Context, enrollmentID string, req billing.SubscriptionCreateRequest, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	state, err := s.check(e, billing.ActionForceRecreate)
	if err != nil {
		return nil, err
	}
	// terminal subscriptions are already gone provider-side
	if state == models.StateIncomplete {
		if _, err := s.provider.CancelSubscription(ctx, e.SubscriptionID(), true); err != nil {
			return nil, s.providerFailure(e, billing.ActionForceRecreate, err, "failed to cancel the existing subscription")
		}
	}
	return s.start(ctx, e, req, actor, billing.ActionForceRecreate, models.AuditActionSubscriptionRecreate, "subscription recreated")
}

func (s *SubscriptionService) start(ctx context.Context, e *models.Enrollment, req billing.SubscriptionCreateRequest, actor models.Actor, action billing.Action, auditAction, message string) (*models.ActionResult, error) {
	if e.PaymentMode == models.PaymentModeManual {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment collects payments manually, switch to automatic first")
	}
	now := s.now()
	plan, err := billing.PlanCreate(e, req, s.policy.schedule(now))
	if err != nil {
		return nil, err
	}
	settings, err := s.fees.FindByCourseID(ctx, e.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course has no fee settings")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course fee settings")
	}
	if !settings.IsRecurring() || !settings.HasProviderPrice() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course has no recurring provider price configured")
	}
	payer, err := s.linker.ensureCustomer(ctx, &s.lifecycle, e, action)
	if err != nil {
		return nil, err
	}
	method, err := s.linker.paymentMethod(ctx, payer.ID, plan.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	res, err := s.provider.CreateSubscription(ctx, models.SubscriptionCreateOptions{
		PriceID:            *settings.StripePriceID,
		CustomerID:         *payer.StripeCustomerID,
		PaymentMethodID:    method.ProviderMethodID,
		TrialEndAt:         plan.TrialEndAt,
		BillingCycleAnchor: plan.BillingCycleAnchor,
		ProrationBehavior:  plan.ProrationBehavior,
		CancelAt:           plan.CancelAt,
		Metadata: map[string]string{
			"enrollment_id": e.ID,
			"student_id":    e.StudentID,
			"course_id":     e.CourseID,
		},
	})
	if err != nil {
		return nil, s.providerFailure(e, action, err, "failed to create subscription")
	}

	after := e.Clone()
	subID := res.SubscriptionID
	after.StripeSubscriptionID = &subID
	after.SubscriptionStatus = res.Status
	if after.SubscriptionStatus == "" {
		after.SubscriptionStatus = models.SubscriptionStatusIncomplete
	}
	after.TrialEndAt = plan.TrialEndAt
	if res.TrialEnd != nil {
		after.TrialEndAt = cloneTimePtr(res.TrialEnd)
	}
	after.BillingCycleAnchor = plan.BillingCycleAnchor
	if after.BillingCycleAnchor == nil && !res.StartDate.IsZero() {
		start := res.StartDate
		after.BillingCycleAnchor = &start
	}
	after.NextPaymentAt = cloneTimePtr(res.CurrentPeriodEnd)
	after.SubscriptionCancelAt = plan.CancelAt
	after.ProrationBehavior = plan.ProrationBehavior
	after.CollectionPaused = false
	after.PaymentMode = models.PaymentModeAutomatic
	if after.Fee.IsZero() {
		after.Fee = settings.FeeAmount
	}
	if after.Currency == "" {
		after.Currency = settings.Currency
	}
	after.SubscriptionSyncedAt = &now

	if err := s.commit(ctx, e, after, actor, action, auditAction); err != nil {
		return nil, err
	}
	result := stateResult(e, after, message)
	result.Details = map[string]interface{}{"subscription_id": subID, "payment_method_id": method.ID}
	return result, nil
}

// ConfirmPayment asks the provider to settle an outstanding subscription invoice.
// An unresolved payment is reported in the result rather than as an error.
func (s *SubscriptionService) ConfirmPayment(ctx context.Context, enrollmentID string, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	state, err := s.check(e, billing.ActionConfirmPayment)
	if err != nil {
		return nil, err
	}
	conf, err := s.provider.ConfirmPayment(ctx, e.SubscriptionID())
	if err != nil {
		return nil, s.providerFailure(e, billing.ActionConfirmPayment, err, "failed to confirm payment")
	}
	if !conf.Success {
		s.metrics.RecordAction(string(billing.ActionConfirmPayment), "unresolved")
		msg := "payment could not be confirmed"
		if conf.Error != "" {
			msg = fmt.Sprintf("%s: %s", msg, conf.Error)
		}
		return &models.ActionResult{
			Success:   false,
			Message:   msg,
			FromState: state,
			ToState:   state,
			Details: map[string]interface{}{
				"requires_action":        conf.RequiresAction,
				"requires_manual_action": conf.RequiresManualAction,
				"suggested_actions":      conf.SuggestedActions,
			},
		}, nil
	}

	after := e.Clone()
	details, err := s.provider.GetSubscriptionDetails(ctx, e.SubscriptionID())
	if err != nil {
		s.logger.Warn("subscription refresh after confirmation failed",
			zap.String("enrollment_id", e.ID),
			zap.String("subscription_id", e.SubscriptionID()),
			zap.Error(err),
		)
		after.SubscriptionStatus = models.SubscriptionStatusActive
	} else {
		billing.DiffRemote(after, *details)
	}
	if err := s.commit(ctx, e, after, actor, billing.ActionConfirmPayment, models.AuditActionSubscriptionConfirm); err != nil {
		return nil, err
	}
	return stateResult(e, after, "payment confirmed"), nil
}

// Cancel schedules cancellation at period end, or ends the subscription now when immediate is set.
func (s *SubscriptionService) Cancel(ctx context.Context, enrollmentID string, immediate bool, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.check(e, billing.ActionCancel); err != nil {
		return nil, err
	}
	res, err := s.provider.CancelSubscription(ctx, e.SubscriptionID(), immediate)
	if err != nil {
		return nil, s.providerFailure(e, billing.ActionCancel, err, "failed to cancel subscription")
	}

	after := e.Clone()
	msg := strings.TrimSpace(res.Message)
	if res.Immediately {
		after.SubscriptionStatus = models.SubscriptionStatusCanceled
		after.SubscriptionCancelAt = nil
		after.NextPaymentAt = nil
		if msg == "" {
			msg = "subscription canceled immediately"
		}
	} else {
		cancelAt := cloneTimePtr(res.CancelAt)
		if cancelAt == nil {
			cancelAt = cloneTimePtr(e.NextPaymentAt)
		}
		if cancelAt == nil {
			now := s.now()
			cancelAt = &now
		}
		after.SubscriptionCancelAt = cancelAt
		if msg == "" {
			msg = fmt.Sprintf("subscription will cancel on %s", billing.FormatDate(cancelAt.In(e.Location())))
		}
	}
	if err := s.commit(ctx, e, after, actor, billing.ActionCancel, models.AuditActionSubscriptionCancel); err != nil {
		return nil, err
	}
	return stateResult(e, after, msg), nil
}

// UndoCancel clears a pending cancellation. Without one it reports so and leaves the provider untouched.
func (s *SubscriptionService) UndoCancel(ctx context.Context, enrollmentID string, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if e.SubscriptionCancelAt == nil {
		state := billing.DeriveState(e)
		return &models.ActionResult{
			Success:   true,
			Changed:   false,
			Message:   "subscription has no pending cancellation",
			FromState: state,
			ToState:   state,
		}, nil
	}
	if _, err := s.check(e, billing.ActionUndoCancel); err != nil {
		return nil, err
	}
	if err := s.provider.UndoCancellation(ctx, e.SubscriptionID()); err != nil {
		return nil, s.providerFailure(e, billing.ActionUndoCancel, err, "failed to undo cancellation")
	}
	after := e.Clone()
	after.SubscriptionCancelAt = nil
	if err := s.commit(ctx, e, after, actor, billing.ActionUndoCancel, models.AuditActionSubscriptionUndo); err != nil {
		return nil, err
	}
	return stateResult(e, after, "pending cancellation removed"), nil
}

// Details returns the provider view of the subscription, served from cache when possible.
func (s *SubscriptionService) Details(ctx context.Context, enrollmentID string) (*models.SubscriptionDetails, error) {
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !e.HasSubscription() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment has no subscription")
	}
	if s.cache != nil {
		if cached, ok := s.cache.GetSubscription(ctx, e.ID); ok {
			return cached, nil
		}
	}
	details, err := s.provider.GetSubscriptionDetails(ctx, e.SubscriptionID())
	if err != nil {
		return nil, s.providerFailure(e, "get_subscription", err, "failed to load subscription from provider")
	}
	if s.cache != nil {
		s.cache.SetSubscription(ctx, e.ID, details)
	}
	return details, nil
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
