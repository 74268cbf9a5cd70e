// Package stripe implements the payment provider port on top of the Stripe API.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/internal/service"
)

// Config holds the credentials used by the adapter.
type Config struct {
	SecretKey string
}

// Adapter talks to Stripe on behalf of the billing services.
type Adapter struct {
	client *stripe.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewAdapter builds a Stripe-backed provider.
func NewAdapter(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is required")
	}
	return newAdapter(stripe.NewClient(cfg.SecretKey, nil), logger), nil
}

func newAdapter(client *stripe.Client, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		client: client,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ service.PaymentProvider = (*Adapter)(nil)

// CreateSubscription starts a subscription on the price with the given payment method as default.
func (a *Adapter) CreateSubscription(ctx context.Context, opts models.SubscriptionCreateOptions) (*models.SubscriptionCreateResult, error) {
	params := &stripe.SubscriptionCreateParams{
		Customer:             stripe.String(opts.CustomerID),
		Items:                []*stripe.SubscriptionCreateItemParams{{Price: stripe.String(opts.PriceID)}},
		DefaultPaymentMethod: stripe.String(opts.PaymentMethodID),
		PaymentBehavior:      stripe.String("allow_incomplete"),
	}
	if opts.TrialEndAt != nil {
		params.TrialEnd = stripe.Int64(opts.TrialEndAt.Unix())
	}
	if opts.BillingCycleAnchor != nil {
		params.BillingCycleAnchor = stripe.Int64(opts.BillingCycleAnchor.Unix())
	}
	if opts.ProrationBehavior != "" {
		params.ProrationBehavior = stripe.String(prorationBehavior(opts.ProrationBehavior))
	}
	if opts.CancelAt != nil {
		params.CancelAt = stripe.Int64(opts.CancelAt.Unix())
	}
	for k, v := range opts.Metadata {
		params.AddMetadata(k, v)
	}

	sub, err := a.client.V1Subscriptions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create stripe subscription: %w", err)
	}
	return &models.SubscriptionCreateResult{
		SubscriptionID:   sub.ID,
		Status:           subscriptionStatus(sub),
		StartDate:        unixTime(sub.StartDate),
		CurrentPeriodEnd: currentPeriodEnd(sub),
		TrialEnd:         unixTimePtr(sub.TrialEnd),
	}, nil
}

// CancelSubscription cancels immediately or at the end of the current period.
func (a *Adapter) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (*models.CancellationResult, error) {
	if immediate {
		if _, err := a.client.V1Subscriptions.Cancel(ctx, subscriptionID, &stripe.SubscriptionCancelParams{}); err != nil {
			return nil, fmt.Errorf("cancel stripe subscription: %w", err)
		}
		return &models.CancellationResult{Immediately: true, Message: "subscription canceled immediately"}, nil
	}
	sub, err := a.client.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("schedule stripe cancellation: %w", err)
	}
	cancelAt := unixTimePtr(sub.CancelAt)
	if cancelAt == nil {
		cancelAt = currentPeriodEnd(sub)
	}
	return &models.CancellationResult{CancelAt: cancelAt, Message: "subscription will cancel at the end of the current period"}, nil
}

// UndoCancellation removes a pending cancellation, whichever way it was scheduled.
func (a *Adapter) UndoCancellation(ctx context.Context, subscriptionID string) error {
	sub, err := a.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return fmt.Errorf("retrieve stripe subscription: %w", err)
	}
	params := &stripe.SubscriptionUpdateParams{}
	if sub.CancelAtPeriodEnd {
		params.CancelAtPeriodEnd = stripe.Bool(false)
	} else {
		params.AddExtra("cancel_at", "")
	}
	if _, err := a.client.V1Subscriptions.Update(ctx, subscriptionID, params); err != nil {
		return fmt.Errorf("undo stripe cancellation: %w", err)
	}
	return nil
}

// UpdateSchedule applies a schedule payload. Stripe only re-anchors existing subscriptions
// through a trial, so a new anchor or next payment date becomes the trial end with
// proration disabled. Requests never carry both a trial change and a new billing date.
func (a *Adapter) UpdateSchedule(ctx context.Context, subscriptionID string, payload models.SchedulePayload) error {
	params := &stripe.SubscriptionUpdateParams{}
	if payload.ProrationBehavior != "" {
		params.ProrationBehavior = stripe.String(prorationBehavior(payload.ProrationBehavior))
	}

	anchor := payload.NextPaymentDate
	if anchor == nil {
		anchor = payload.BillingCycleAnchor
	}
	switch {
	case payload.ClearTrial:
		params.TrialEndNow = stripe.Bool(true)
	case payload.TrialEndAt != nil:
		params.TrialEnd = stripe.Int64(payload.TrialEndAt.Unix())
	case anchor != nil:
		params.TrialEnd = stripe.Int64(anchor.Unix())
		params.ProrationBehavior = stripe.String(prorationBehavior(models.ProrationNone))
	}
	if payload.CancelAt != nil {
		params.CancelAt = stripe.Int64(payload.CancelAt.Unix())
	}

	if _, err := a.client.V1Subscriptions.Update(ctx, subscriptionID, params); err != nil {
		return fmt.Errorf("update stripe subscription schedule: %w", err)
	}
	return nil
}

// UpdateFee creates a new recurring price for the product and swaps it onto the subscription item.
func (a *Adapter) UpdateFee(ctx context.Context, change service.FeeChange) error {
	interval, count, err := recurringInterval(change.Cycle)
	if err != nil {
		return err
	}
	amount, err := minorUnits(change.Amount, change.Currency)
	if err != nil {
		return err
	}
	sub, err := a.client.V1Subscriptions.Retrieve(ctx, change.SubscriptionID, nil)
	if err != nil {
		return fmt.Errorf("retrieve stripe subscription: %w", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("stripe subscription %s has no items", change.SubscriptionID)
	}

	price, err := a.client.V1Prices.Create(ctx, &stripe.PriceCreateParams{
		Currency:   stripe.String(strings.ToLower(change.Currency)),
		Product:    stripe.String(change.ProductID),
		UnitAmount: stripe.Int64(amount),
		Recurring: &stripe.PriceCreateRecurringParams{
			Interval:      stripe.String(interval),
			IntervalCount: stripe.Int64(count),
		},
	})
	if err != nil {
		return fmt.Errorf("create stripe price: %w", err)
	}

	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{{
			ID:    stripe.String(sub.Items.Data[0].ID),
			Price: stripe.String(price.ID),
		}},
	}
	if change.ProrationBehavior != "" {
		params.ProrationBehavior = stripe.String(prorationBehavior(change.ProrationBehavior))
	}
	if _, err := a.client.V1Subscriptions.Update(ctx, change.SubscriptionID, params); err != nil {
		return fmt.Errorf("swap stripe subscription price: %w", err)
	}
	a.logger.Info("stripe subscription price replaced",
		zap.String("subscription_id", change.SubscriptionID),
		zap.String("price_id", price.ID),
	)
	return nil
}

// GetSubscriptionDetails reads the live subscription.
func (a *Adapter) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*models.SubscriptionDetails, error) {
	sub, err := a.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe subscription: %w", err)
	}
	details := subscriptionDetails(sub)
	details.ObservedAt = a.now()
	return details, nil
}

// FindCustomerByEmail returns the first customer with the email, or nil.
func (a *Adapter) FindCustomerByEmail(ctx context.Context, email string) (*models.ProviderCustomer, error) {
	params := &stripe.CustomerSearchParams{}
	params.Query = fmt.Sprintf("email:'%s'", strings.ReplaceAll(email, "'", `\'`))
	params.Limit = stripe.Int64(1)

	for customer, err := range a.client.V1Customers.Search(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("search stripe customers: %w", err)
		}
		return &models.ProviderCustomer{ID: customer.ID, Email: customer.Email, Name: customer.Name}, nil
	}
	return nil, nil
}

// CreateCustomer creates a customer record.
func (a *Adapter) CreateCustomer(ctx context.Context, email, name string) (*models.ProviderCustomer, error) {
	customer, err := a.client.V1Customers.Create(ctx, &stripe.CustomerCreateParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("create stripe customer: %w", err)
	}
	return &models.ProviderCustomer{ID: customer.ID, Email: customer.Email, Name: customer.Name}, nil
}

// ConfirmPayment retries the latest open invoice. Card problems come back as an
// unsuccessful confirmation with suggested actions, not as an error.
func (a *Adapter) ConfirmPayment(ctx context.Context, subscriptionID string) (*models.PaymentConfirmation, error) {
	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("latest_invoice")
	sub, err := a.client.V1Subscriptions.Retrieve(ctx, subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe subscription: %w", err)
	}
	invoice := sub.LatestInvoice
	if invoice == nil || invoice.Status == stripe.InvoiceStatusPaid {
		return &models.PaymentConfirmation{Success: true}, nil
	}
	if invoice.Status != stripe.InvoiceStatusOpen {
		return &models.PaymentConfirmation{
			Success:              false,
			RequiresManualAction: true,
			SuggestedActions:     []string{"force_recreate"},
			Error:                fmt.Sprintf("latest invoice is %s", invoice.Status),
		}, nil
	}

	if _, err := a.client.V1Invoices.Pay(ctx, invoice.ID, &stripe.InvoicePayParams{}); err != nil {
		if confirmation, ok := confirmationFromError(err); ok {
			return confirmation, nil
		}
		return nil, fmt.Errorf("pay stripe invoice: %w", err)
	}
	return &models.PaymentConfirmation{Success: true}, nil
}

// PauseCollection stops automatic charges, leaving future invoices as drafts.
func (a *Adapter) PauseCollection(ctx context.Context, subscriptionID string) error {
	_, err := a.client.V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		PauseCollection: &stripe.SubscriptionUpdatePauseCollectionParams{
			Behavior: stripe.String("keep_as_draft"),
		},
	})
	if err != nil {
		return fmt.Errorf("pause stripe collection: %w", err)
	}
	return nil
}

// ResumeCollection clears a collection pause and switches the default payment method.
func (a *Adapter) ResumeCollection(ctx context.Context, subscriptionID, paymentMethodID string) error {
	params := &stripe.SubscriptionUpdateParams{}
	params.AddExtra("pause_collection", "")
	if paymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(paymentMethodID)
	}
	if _, err := a.client.V1Subscriptions.Update(ctx, subscriptionID, params); err != nil {
		return fmt.Errorf("resume stripe collection: %w", err)
	}
	return nil
}

func confirmationFromError(err error) (*models.PaymentConfirmation, bool) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return nil, false
	}
	switch stripeErr.Code {
	case stripe.ErrorCodeAuthenticationRequired:
		return &models.PaymentConfirmation{
			RequiresAction:   true,
			SuggestedActions: []string{"ask_payer_to_authenticate"},
			Error:            stripeErr.Msg,
		}, true
	case stripe.ErrorCodeCardDeclined, stripe.ErrorCodeExpiredCard:
		return &models.PaymentConfirmation{
			RequiresManualAction: true,
			SuggestedActions:     []string{"update_payment_method", "switch_to_manual"},
			Error:                stripeErr.Msg,
		}, true
	}
	return nil, false
}
