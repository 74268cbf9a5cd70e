package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// FeeChange describes a recurring price replacement at the provider.
type FeeChange struct {
	SubscriptionID    string
	ProductID         string
	Currency          string
	Amount            decimal.Decimal
	Cycle             models.BillingCycle
	ProrationBehavior models.ProrationBehavior
}

// PaymentProvider is the port to the external recurring-billing system.
// Implementations return plain errors; services translate them into provider errors.
type PaymentProvider interface {
	CreateSubscription(ctx context.Context, opts models.SubscriptionCreateOptions) (*models.SubscriptionCreateResult, error)
	CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (*models.CancellationResult, error)
	UndoCancellation(ctx context.Context, subscriptionID string) error
	UpdateSchedule(ctx context.Context, subscriptionID string, payload models.SchedulePayload) error
	UpdateFee(ctx context.Context, change FeeChange) error
	GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*models.SubscriptionDetails, error)
	// FindCustomerByEmail returns nil without error when no customer matches.
	FindCustomerByEmail(ctx context.Context, email string) (*models.ProviderCustomer, error)
	CreateCustomer(ctx context.Context, email, name string) (*models.ProviderCustomer, error)
	ConfirmPayment(ctx context.Context, subscriptionID string) (*models.PaymentConfirmation, error)
	PauseCollection(ctx context.Context, subscriptionID string) error
	ResumeCollection(ctx context.Context, subscriptionID, paymentMethodID string) error
}

// instrumentedProvider records timing and outcome of every provider call.
type instrumentedProvider struct {
	next    PaymentProvider
	metrics *MetricsService
	logger  *zap.Logger
}

// NewInstrumentedProvider decorates a provider with metrics and debug logging.
func NewInstrumentedProvider(next PaymentProvider, metrics *MetricsService, logger *zap.Logger) PaymentProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumentedProvider{next: next, metrics: metrics, logger: logger}
}

// track starts the clock for op; the returned func reads the named error at return time.
func (p *instrumentedProvider) track(op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		elapsed := time.Since(start)
		p.metrics.ObserveProviderCall(op, *errp, elapsed)
		p.logger.Debug("payment provider call", zap.String("operation", op), zap.Duration("duration", elapsed), zap.Error(*errp))
	}
}

func (p *instrumentedProvider) CreateSubscription(ctx context.Context, opts models.SubscriptionCreateOptions) (res *models.SubscriptionCreateResult, err error) {
	defer p.track("create_subscription")(&err)
	return p.next.CreateSubscription(ctx, opts)
}

func (p *instrumentedProvider) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (res *models.CancellationResult, err error) {
	defer p.track("cancel_subscription")(&err)
	return p.next.CancelSubscription(ctx, subscriptionID, immediate)
}

func (p *instrumentedProvider) UndoCancellation(ctx context.Context, subscriptionID string) (err error) {
	defer p.track("undo_cancellation")(&err)
	return p.next.UndoCancellation(ctx, subscriptionID)
}

func (p *instrumentedProvider) UpdateSchedule(ctx context.Context, subscriptionID string, payload models.SchedulePayload) (err error) {
	defer p.track("update_schedule")(&err)
	return p.next.UpdateSchedule(ctx, subscriptionID, payload)
}

func (p *instrumentedProvider) UpdateFee(ctx context.Context, change FeeChange) (err error) {
	defer p.track("update_fee")(&err)
	return p.next.UpdateFee(ctx, change)
}

func (p *instrumentedProvider) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (res *models.SubscriptionDetails, err error) {
	defer p.track("get_subscription")(&err)
	return p.next.GetSubscriptionDetails(ctx, subscriptionID)
}

func (p *instrumentedProvider) FindCustomerByEmail(ctx context.Context, email string) (res *models.ProviderCustomer, err error) {
	defer p.track("find_customer")(&err)
	return p.next.FindCustomerByEmail(ctx, email)
}

func (p *instrumentedProvider) CreateCustomer(ctx context.Context, email, name string) (res *models.ProviderCustomer, err error) {
	defer p.track("create_customer")(&err)
	return p.next.CreateCustomer(ctx, email, name)
}

func (p *instrumentedProvider) ConfirmPayment(ctx context.Context, subscriptionID string) (res *models.PaymentConfirmation, err error) {
	defer p.track("confirm_payment")(&err)
	return p.next.ConfirmPayment(ctx, subscriptionID)
}

func (p *instrumentedProvider) PauseCollection(ctx context.Context, subscriptionID string) (err error) {
	defer p.track("pause_collection")(&err)
	return p.next.PauseCollection(ctx, subscriptionID)
}

func (p *instrumentedProvider) ResumeCollection(ctx context.Context, subscriptionID, paymentMethodID string) (err error) {
	defer p.track("resume_collection")(&err)
	return p.next.ResumeCollection(ctx, subscriptionID, paymentMethodID)
}
