package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

type subscriptionFixture struct {
	enrollments *enrollmentStoreStub
	payers      *payerStoreStub
	provider    *providerStub
	audit       *auditRecorder
	notifier    *notifierStub
	cache       *cacheStub
	svc         *SubscriptionService
}

func newSubscriptionFixture(e *models.Enrollment, payer *models.Payer, methods ...models.PaymentMethod) *subscriptionFixture {
	f := &subscriptionFixture{
		enrollments: newEnrollmentStore(e),
		payers:      newPayerStore(payer, methods...),
		provider:    newProviderStub(),
		audit:       &auditRecorder{},
		notifier:    &notifierStub{},
		cache:       newCacheStub(),
	}
	f.svc = NewSubscriptionService(f.enrollments, f.payers, monthlyFees(), f.provider, f.audit, nil,
		WithClock(fixedClock()), WithNotifier(f.notifier), WithSubscriptionCache(f.cache))
	return f
}

func TestSubscriptionServiceCreate(t *testing.T) {
	f := newSubscriptionFixture(baseEnrollment(), linkedPayer(), cardMethod())
	periodEnd := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	f.provider.createResult = &models.SubscriptionCreateResult{
		SubscriptionID:   "sub_new",
		Status:           models.SubscriptionStatusActive,
		StartDate:        testNow,
		CurrentPeriodEnd: &periodEnd,
	}

	result, err := f.svc.Create(context.Background(), "enr-1", billing.SubscriptionCreateRequest{}, testAdmin)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.StateNone, result.FromState)
	assert.Equal(t, models.StateActive, result.ToState)

	assert.Equal(t, "price_1", f.provider.createOpts.PriceID)
	assert.Equal(t, "cus_1", f.provider.createOpts.CustomerID)
	assert.Equal(t, "pm_card_1", f.provider.createOpts.PaymentMethodID)
	assert.Equal(t, "enr-1", f.provider.createOpts.Metadata["enrollment_id"])

	saved := f.enrollments.last()
	require.NotNil(t, saved)
	assert.Equal(t, "sub_new", saved.SubscriptionID())
	assert.Equal(t, periodEnd, *saved.NextPaymentAt)
	assert.Equal(t, testNow, *saved.BillingCycleAnchor)
	require.NotNil(t, saved.SubscriptionSyncedAt)
	assert.Equal(t, []string{models.AuditActionSubscriptionCreate}, f.audit.actions())
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, models.StateActive, f.notifier.events[0].ToState)
	assert.Equal(t, []string{"enr-1"}, f.cache.invalidated)
}

func TestSubscriptionServiceCreateLinksCustomerByEmail(t *testing.T) {
	payer := linkedPayer()
	payer.StripeCustomerID = nil
	f := newSubscriptionFixture(baseEnrollment(), payer, cardMethod())
	f.provider.customer = &models.ProviderCustomer{ID: "cus_existing", Email: payer.Email}

	_, err := f.svc.Create(context.Background(), "enr-1", billing.SubscriptionCreateRequest{}, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", f.payers.linked["payer-1"])
	assert.NotContains(t, f.provider.calls, "create_customer")
	assert.Equal(t, "cus_existing", f.provider.createOpts.CustomerID)
}

func TestSubscriptionServiceCreateRejections(t *testing.T) {
	t.Run("existing subscription", func(t *testing.T) {
		f := newSubscriptionFixture(activeEnrollment(), linkedPayer(), cardMethod())
		_, err := f.svc.Create(context.Background(), "enr-1", billing.SubscriptionCreateRequest{}, testAdmin)
		require.Error(t, err)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidState.Code))
		assert.Empty(t, f.provider.calls)
	})

	t.Run("manual mode", func(t *testing.T) {
		e := baseEnrollment()
		e.PaymentMode = models.PaymentModeManual
		f := newSubscriptionFixture(e, linkedPayer(), cardMethod())
		_, err := f.svc.Create(context.Background(), "enr-1", billing.SubscriptionCreateRequest{}, testAdmin)
		require.Error(t, err)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed.Code))
	})

	t.Run("no payment method", func(t *testing.T) {
		f := newSubscriptionFixture(baseEnrollment(), linkedPayer())
		_, err := f.svc.Create(context.Background(), "enr-1", billing.SubscriptionCreateRequest{}, testAdmin)
		require.Error(t, err)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed.Code))
		assert.NotContains(t, f.provider.calls, "create")
	})

	t.Run("unknown payment method", func(t *testing.T) {
		f := newSubscriptionFixture(baseEnrollment(), linkedPayer(), cardMethod())
		_, err := f.svc.Create(context.Background(), "enr-1", billing.SubscriptionCreateRequest{PaymentMethodID: "pm_other"}, testAdmin)
		require.Error(t, err)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	})

	t.Run("staff role", func(t *testing.T) {
		f := newSubscriptionFixture(baseEnrollment(), linkedPayer(), cardMethod())
		_, err := f.svc.Create(context.Background(), "enr-1", billing.SubscriptionCreateRequest{}, models.Actor{ID: "u-1", Role: models.RoleStaff})
		require.Error(t, err)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newSubscriptionFixture(baseEnrollment(), linkedPayer(), cardMethod())
		f.provider.errs["create"] = errors.New("card_declined")
		_, err := f.svc.Create(context.Background(), "enr-1", billing.SubscriptionCreateRequest{}, testAdmin)
		require.Error(t, err)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrProvider.Code))
		assert.Empty(t, f.enrollments.updates)
	})
}

func TestSubscriptionServiceCancel(t *testing.T) {
	t.Run("at period end", func(t *testing.T) {
		f := newSubscriptionFixture(activeEnrollment(), linkedPayer())
		result, err := f.svc.Cancel(context.Background(), "enr-1", false, testAdmin)
		require.NoError(t, err)
		assert.Equal(t, models.StatePendingCancellation, result.ToState)
		saved := f.enrollments.last()
		require.NotNil(t, saved.SubscriptionCancelAt)
		assert.Equal(t, *activeEnrollment().NextPaymentAt, *saved.SubscriptionCancelAt)
		assert.Equal(t, []string{"cancel"}, f.provider.calls)
	})

	t.Run("immediately", func(t *testing.T) {
		f := newSubscriptionFixture(activeEnrollment(), linkedPayer())
		result, err := f.svc.Cancel(context.Background(), "enr-1", true, testAdmin)
		require.NoError(t, err)
		assert.Equal(t, models.StateCanceled, result.ToState)
		saved := f.enrollments.last()
		assert.Nil(t, saved.NextPaymentAt)
		assert.Nil(t, saved.SubscriptionCancelAt)
	})

	t.Run("pending cancellation", func(t *testing.T) {
		e := activeEnrollment()
		e.SubscriptionCancelAt = timePtr(testNow.AddDate(0, 1, 0))
		f := newSubscriptionFixture(e, linkedPayer())
		_, err := f.svc.Cancel(context.Background(), "enr-1", false, testAdmin)
		require.Error(t, err)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidState.Code))
	})
}

func TestSubscriptionServiceUndoCancel(t *testing.T) {
	e := activeEnrollment()
	e.SubscriptionCancelAt = timePtr(testNow.AddDate(0, 1, 0))
	f := newSubscriptionFixture(e, linkedPayer())

	result, err := f.svc.UndoCancel(context.Background(), "enr-1", testAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingCancellation, result.FromState)
	assert.Equal(t, models.StateActive, result.ToState)
	assert.Nil(t, f.enrollments.last().SubscriptionCancelAt)
	assert.Equal(t, []string{"undo"}, f.provider.calls)
}

func TestSubscriptionServiceUndoCancelWithoutPendingCancellation(t *testing.T) {
	f := newSubscriptionFixture(activeEnrollment(), linkedPayer())

	result, err := f.svc.UndoCancel(context.Background(), "enr-1", testAdmin)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Changed)
	assert.Empty(t, f.provider.calls)
	assert.Empty(t, f.enrollments.updates)
}

func TestSubscriptionServiceConfirmPayment(t *testing.T) {
	incomplete := func() *models.Enrollment {
		e := baseEnrollment()
		e.StripeSubscriptionID = strPtr("sub_1")
		e.SubscriptionStatus = models.SubscriptionStatusIncomplete
		return e
	}

	t.Run("settled", func(t *testing.T) {
		f := newSubscriptionFixture(incomplete(), linkedPayer())
		f.provider.details = &models.SubscriptionDetails{SubscriptionID: "sub_1", Status: models.SubscriptionStatusActive, ObservedAt: testNow}
		result, err := f.svc.ConfirmPayment(context.Background(), "enr-1", testAdmin)
		require.NoError(t, err)
		assert.Equal(t, models.StateIncomplete, result.FromState)
		assert.Equal(t, models.StateActive, result.ToState)
	})

	t.Run("requires action", func(t *testing.T) {
		f := newSubscriptionFixture(incomplete(), linkedPayer())
		f.provider.confirmation = &models.PaymentConfirmation{RequiresAction: true, SuggestedActions: []string{"ask_payer_to_authenticate"}}
		result, err := f.svc.ConfirmPayment(context.Background(), "enr-1", testAdmin)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, true, result.Details["requires_action"])
		assert.Empty(t, f.enrollments.updates)
	})
}

func TestSubscriptionServiceForceRecreate(t *testing.T) {
	t.Run("incomplete cancels first", func(t *testing.T) {
		e := baseEnrollment()
		e.StripeSubscriptionID = strPtr("sub_stuck")
		e.SubscriptionStatus = models.SubscriptionStatusIncomplete
		f := newSubscriptionFixture(e, linkedPayer(), cardMethod())

		result, err := f.svc.ForceRecreate(context.Background(), "enr-1", billing.SubscriptionCreateRequest{}, testAdmin)
		require.NoError(t, err)
		assert.Equal(t, []string{"cancel_now", "create"}, f.provider.calls)
		assert.Equal(t, "sub_new", f.enrollments.last().SubscriptionID())
		assert.Equal(t, models.StateActive, result.ToState)
	})

	t.Run("canceled skips provider cancel", func(t *testing.T) {
		e := activeEnrollment()
		e.SubscriptionStatus = models.SubscriptionStatusCanceled
		f := newSubscriptionFixture(e, linkedPayer(), cardMethod())

		_, err := f.svc.ForceRecreate(context.Background(), "enr-1", billing.SubscriptionCreateRequest{}, testAdmin)
		require.NoError(t, err)
		assert.Equal(t, []string{"create"}, f.provider.calls)
	})
}

func TestSubscriptionServicePersistFailureSkipsSideEffects(t *testing.T) {
	f := newSubscriptionFixture(activeEnrollment(), linkedPayer())
	f.enrollments.updateErr = errors.New("boom")

	_, err := f.svc.Cancel(context.Background(), "enr-1", false, testAdmin)
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInternal.Code))
	assert.Empty(t, f.audit.logs)
	assert.Empty(t, f.notifier.events)
}

func TestSubscriptionServiceDetailsUsesCache(t *testing.T) {
	f := newSubscriptionFixture(activeEnrollment(), linkedPayer())

	first, err := f.svc.Details(context.Background(), "enr-1")
	require.NoError(t, err)
	second, err := f.svc.Details(context.Background(), "enr-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"details"}, f.provider.calls)
}

func TestSubscriptionServiceDetailsWithoutSubscription(t *testing.T) {
	f := newSubscriptionFixture(baseEnrollment(), linkedPayer())

	_, err := f.svc.Details(context.Background(), "enr-1")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}
