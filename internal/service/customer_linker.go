package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

type payerStore interface {
	FindByID(ctx context.Context, id string) (*models.Payer, error)
	LinkCustomer(ctx context.Context, payerID, customerID string) error
	ListActivePaymentMethods(ctx context.Context, payerID string) ([]models.PaymentMethod, error)
}

// customerLinker makes sure a payer has exactly one provider customer and a usable payment method.
type customerLinker struct {
	payers   payerStore
	provider PaymentProvider
}

func (c customerLinker) loadPayer(ctx context.Context, e *models.Enrollment) (*models.Payer, error) {
	if strings.TrimSpace(e.PayerID) == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment has no payer")
	}
	payer, err := c.payers.FindByID(ctx, e.PayerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment payer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payer")
	}
	return payer, nil
}

// ensureCustomer links the payer to a provider customer, reusing one found by email before creating a new one.
func (c customerLinker) ensureCustomer(ctx context.Context, l *lifecycle, e *models.Enrollment, action billing.Action) (*models.Payer, error) {
	payer, err := c.loadPayer(ctx, e)
	if err != nil {
		return nil, err
	}
	if payer.HasCustomer() {
		return payer, nil
	}
	if strings.TrimSpace(payer.Email) == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payer has no email to link a billing customer")
	}

	customer, err := c.provider.FindCustomerByEmail(ctx, payer.Email)
	if err != nil {
		return nil, l.providerFailure(e, action, err, "failed to look up billing customer")
	}
	if customer == nil {
		customer, err = c.provider.CreateCustomer(ctx, payer.Email, payer.FullName)
		if err != nil {
			return nil, l.providerFailure(e, action, err, "failed to create billing customer")
		}
	}
	if err := c.payers.LinkCustomer(ctx, payer.ID, customer.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link billing customer")
	}
	id := customer.ID
	payer.StripeCustomerID = &id
	return payer, nil
}

// paymentMethod picks requested from the payer's active methods, or the default one when blank.
func (c customerLinker) paymentMethod(ctx context.Context, payerID, requested string) (*models.PaymentMethod, error) {
	methods, err := c.payers.ListActivePaymentMethods(ctx, payerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment methods")
	}
	if len(methods) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payer has no active payment method")
	}
	if requested = strings.TrimSpace(requested); requested != "" {
		method, ok := lo.Find(methods, func(m models.PaymentMethod) bool {
			return m.ID == requested || m.ProviderMethodID == requested
		})
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payment method is not an active method of this payer").
				WithDetails(map[string]interface{}{"payment_method_id": requested})
		}
		return &method, nil
	}
	method, ok := lo.Find(methods, func(m models.PaymentMethod) bool { return m.IsDefault })
	if !ok {
		method = methods[0]
	}
	return &method, nil
}
