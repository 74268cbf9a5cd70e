package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
)

// PaymentModeService moves an enrollment between provider auto-charge and manual collection.
type PaymentModeService struct {
	lifecycle
	linker   customerLinker
	provider PaymentProvider
}

// NewPaymentModeService constructs the service.
func NewPaymentModeService(enrollments enrollmentStore, payers payerStore, provider PaymentProvider, audit auditLogger, logger *zap.Logger, opts ...LifecycleOption) *PaymentModeService {
	return &PaymentModeService{
		lifecycle: newLifecycle("payment-mode-service", enrollments, audit, logger, opts),
		linker:    customerLinker{payers: payers, provider: provider},
		provider:  provider,
	}
}

// SwitchToAutomatic links the payer to a provider customer, checks for an active payment
// method and resumes collection on the existing subscription when there is one.
// Without a subscription only the local mode flips; the next create call starts billing.
func (s *PaymentModeService) SwitchToAutomatic(ctx context.Context, enrollmentID, paymentMethodID string, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	state, err := s.check(e, billing.ActionSwitchAutomatic)
	if err != nil {
		return nil, err
	}
	if e.PaymentMode != models.PaymentModeManual && !e.CollectionPaused {
		return unchanged(e, state, "enrollment already collects payments automatically"), nil
	}

	payer, err := s.linker.ensureCustomer(ctx, &s.lifecycle, e, billing.ActionSwitchAutomatic)
	if err != nil {
		return nil, err
	}
	method, err := s.linker.paymentMethod(ctx, payer.ID, paymentMethodID)
	if err != nil {
		return nil, err
	}

	after := e.Clone()
	msg := "switched to automatic payments, a subscription will be created on the next billing action"
	if collecting(state) {
		if err := s.provider.ResumeCollection(ctx, e.SubscriptionID(), method.ProviderMethodID); err != nil {
			return nil, s.providerFailure(e, billing.ActionSwitchAutomatic, err, "failed to resume automatic collection")
		}
		msg = "switched to automatic payments on the existing subscription"
	}
	after.CollectionPaused = false
	after.PaymentMode = models.PaymentModeAutomatic

	if err := s.commit(ctx, e, after, actor, billing.ActionSwitchAutomatic, models.AuditActionPaymentModeSwitch); err != nil {
		return nil, err
	}
	result := stateResult(e, after, msg)
	result.Details = map[string]interface{}{"payment_method_id": method.ID}
	return result, nil
}

// SwitchToManual pauses provider collection instead of canceling the subscription.
func (s *PaymentModeService) SwitchToManual(ctx context.Context, enrollmentID string, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	state, err := s.check(e, billing.ActionSwitchManual)
	if err != nil {
		return nil, err
	}
	if e.PaymentMode == models.PaymentModeManual {
		return unchanged(e, state, "enrollment already collects payments manually"), nil
	}

	after := e.Clone()
	msg := "switched to manual payments"
	switch {
	case collecting(state):
		if err := s.provider.PauseCollection(ctx, e.SubscriptionID()); err != nil {
			return nil, s.providerFailure(e, billing.ActionSwitchManual, err, "failed to pause automatic collection")
		}
		after.CollectionPaused = true
		after.NextPaymentAt = nil
		msg = "switched to manual payments, provider collection is paused"
	case e.HasSubscription():
		// an ended subscription cannot charge, so the pause is only recorded locally
		after.CollectionPaused = true
		after.NextPaymentAt = nil
	}
	after.PaymentMode = models.PaymentModeManual

	if err := s.commit(ctx, e, after, actor, billing.ActionSwitchManual, models.AuditActionPaymentModeSwitch); err != nil {
		return nil, err
	}
	return stateResult(e, after, msg), nil
}

// collecting reports whether the provider subscription can still charge the payer.
func collecting(state models.SubscriptionState) bool {
	switch state {
	case models.StateTrialing, models.StateActive, models.StatePastDue, models.StateUnpaid:
		return true
	}
	return false
}

func unchanged(e *models.Enrollment, state models.SubscriptionState, message string) *models.ActionResult {
	return &models.ActionResult{
		Success:    true,
		Changed:    false,
		Message:    message,
		FromState:  state,
		ToState:    state,
		Enrollment: e,
	}
}
