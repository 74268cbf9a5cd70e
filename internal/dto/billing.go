package dto

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/internal/service"
)

// DateTimeInput is a calendar date with an optional HH:MM time in the enrollment timezone.
type DateTimeInput struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
}

func (d *DateTimeInput) toBilling() *billing.DateTimeInput {
	if d == nil {
		return nil
	}
	return &billing.DateTimeInput{Date: d.Date, Time: d.Time}
}

// NullableDateTime tells an absent field apart from an explicit null.
type NullableDateTime struct {
	Set   bool
	Null  bool
	Value DateTimeInput
}

// UnmarshalJSON records presence; null clears the value.
func (n *NullableDateTime) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Null = true
		return nil
	}
	return json.Unmarshal(data, &n.Value)
}

// CreateSubscriptionRequest starts, resumes or recreates a subscription.
type CreateSubscriptionRequest struct {
	PaymentMethodID    string                    `json:"paymentMethodId"`
	TrialEnd           *DateTimeInput            `json:"trialEnd" validate:"omitempty"`
	BillingCycleAnchor *DateTimeInput            `json:"billingCycleAnchor" validate:"omitempty"`
	CancelAt           *DateTimeInput            `json:"cancelAt" validate:"omitempty"`
	ProrationBehavior  *models.ProrationBehavior `json:"prorationBehavior" validate:"omitempty,oneof=create_prorations none always_invoice"`
}

// ToBilling converts the payload into the lifecycle request.
func (r CreateSubscriptionRequest) ToBilling() billing.SubscriptionCreateRequest {
	return billing.SubscriptionCreateRequest{
		PaymentMethodID:    r.PaymentMethodID,
		TrialEnd:           r.TrialEnd.toBilling(),
		BillingCycleAnchor: r.BillingCycleAnchor.toBilling(),
		CancelAt:           r.CancelAt.toBilling(),
		ProrationBehavior:  r.ProrationBehavior,
	}
}

// CancelSubscriptionRequest selects immediate or end-of-period cancellation.
type CancelSubscriptionRequest struct {
	Immediate bool `json:"immediate"`
}

// UpdateScheduleRequest is a partial schedule change. Omitted fields stay untouched and
// trialEnd: null removes the trial.
type UpdateScheduleRequest struct {
	NextPaymentDate    *DateTimeInput            `json:"nextPaymentDate" validate:"omitempty"`
	BillingCycleAnchor *DateTimeInput            `json:"billingCycleAnchor" validate:"omitempty"`
	TrialEnd           NullableDateTime          `json:"trialEnd" validate:"-"`
	CancelAt           *DateTimeInput            `json:"cancelAt" validate:"omitempty"`
	ProrationBehavior  *models.ProrationBehavior `json:"prorationBehavior" validate:"omitempty,oneof=create_prorations none always_invoice"`
	Fee                *decimal.Decimal          `json:"fee"`
}

// ToBilling converts the payload into the typed change set.
func (r UpdateScheduleRequest) ToBilling() billing.ScheduleUpdateRequest {
	return billing.ScheduleUpdateRequest{
		NextPaymentDate:    r.NextPaymentDate.toBilling(),
		BillingCycleAnchor: r.BillingCycleAnchor.toBilling(),
		TrialEnd: billing.TrialEndChange{
			Set:   r.TrialEnd.Set,
			Clear: r.TrialEnd.Null,
			Value: billing.DateTimeInput{Date: r.TrialEnd.Value.Date, Time: r.TrialEnd.Value.Time},
		},
		CancelAt:          r.CancelAt.toBilling(),
		ProrationBehavior: r.ProrationBehavior,
		Fee:               r.Fee,
	}
}

// SwitchToAutomaticRequest optionally names the stored payment method to charge.
type SwitchToAutomaticRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

// GenerateManualOrderRequest issues a manual order for one billing period.
type GenerateManualOrderRequest struct {
	PeriodDate string           `json:"periodDate" validate:"omitempty,datetime=2006-01-02"`
	Amount     *decimal.Decimal `json:"amount"`
}

// ToService converts the payload.
func (r GenerateManualOrderRequest) ToService() service.GenerateOrderRequest {
	return service.GenerateOrderRequest{PeriodDate: r.PeriodDate, Amount: r.Amount}
}

// ApproveOrderRequest records the evidence of a manual payment.
type ApproveOrderRequest struct {
	PaymentDate      string `json:"paymentDate" validate:"required,datetime=2006-01-02"`
	PaymentTime      string `json:"paymentTime" validate:"omitempty,datetime=15:04"`
	ReceiptReference string `json:"receiptReference" validate:"required,max=255"`
}

// ToService converts the payload.
func (r ApproveOrderRequest) ToService() service.ApproveOrderRequest {
	return service.ApproveOrderRequest{
		PaymentDate:      r.PaymentDate,
		PaymentTime:      r.PaymentTime,
		ReceiptReference: r.ReceiptReference,
	}
}

// RejectOrderRequest carries the reviewer's reason.
type RejectOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
