package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/internal/repository"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

type orderStore interface {
	FindByID(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) error
	Review(ctx context.Context, params repository.ReviewOrderParams) error
}

type periodReporter interface {
	ReportFor(ctx context.Context, e *models.Enrollment) (*models.BillingReport, error)
}

// GenerateOrderRequest describes a manual payment order. Blank fields default to the first
// open period and the enrollment fee.
type GenerateOrderRequest struct {
	// PeriodDate is any YYYY-MM-DD date inside the period being paid.
	PeriodDate string
	Amount     *decimal.Decimal
}

// ApproveOrderRequest records the evidence for a manual payment.
type ApproveOrderRequest struct {
	// PaymentDate is the actual receipt date; it may be backdated but not future-dated.
	PaymentDate      string
	PaymentTime      string
	ReceiptReference string
}

// ManualPaymentService issues manual payment orders and reviews them.
type ManualPaymentService struct {
	lifecycle
	orders  orderStore
	reports periodReporter
}

// NewManualPaymentService constructs the service.
func NewManualPaymentService(enrollments enrollmentStore, orders orderStore, reports periodReporter, audit auditLogger, logger *zap.Logger, opts ...LifecycleOption) *ManualPaymentService {
	return &ManualPaymentService{
		lifecycle: newLifecycle("manual-payment-service", enrollments, audit, logger, opts),
		orders:    orders,
		reports:   reports,
	}
}

// Generate creates a pending manual order for one billing period.
func (s *ManualPaymentService) Generate(ctx context.Context, enrollmentID string, req GenerateOrderRequest, actor models.Actor) (*models.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if e.PaymentMode != models.PaymentModeManual {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment collects payments automatically, switch to manual first")
	}
	report, err := s.reports.ReportFor(ctx, e)
	if err != nil {
		return nil, err
	}
	period, err := pickPeriod(report.Periods, req.PeriodDate)
	if err != nil {
		return nil, err
	}

	amount := e.Fee
	if req.Amount != nil {
		amount = *req.Amount
	}
	if !amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero").
			WithDetails(map[string]interface{}{"amount": amount.String()})
	}
	if amount.GreaterThan(s.policy.MaxFee) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("amount must not exceed %s", s.policy.MaxFee.String()))
	}
	currency := e.Currency
	if currency == "" {
		currency = s.policy.DefaultCurrency
	}

	start, end := period.PeriodStart, period.PeriodEnd
	order := &models.Order{
		EnrollmentID:  e.ID,
		Amount:        amount,
		Currency:      currency,
		Status:        models.OrderStatusPending,
		PeriodStart:   &start,
		PeriodEnd:     &end,
		PaymentMethod: models.OrderPaymentManual,
		CreatedAt:     s.now(),
	}
	if err := order.MergeMetadata(map[string]string{models.MetaGeneratedBy: actor.ID}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode order metadata")
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create manual order")
	}
	s.metrics.RecordAction("generate_manual_order", "success")
	s.emitAudit(ctx, actor, models.AuditActionManualOrderCreate, "order", order.ID, nil, order)
	return order, nil
}

// pickPeriod returns the period containing date, or the first unpaid or upcoming one.
func pickPeriod(periods []models.PeriodReport, date string) (*models.PeriodReport, error) {
	if strings.TrimSpace(date) == "" {
		for i := range periods {
			switch periods[i].Status {
			case models.PeriodStatusUnpaid, models.PeriodStatusUpcoming, models.PeriodStatusFailed:
				return &periods[i], nil
			}
		}
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no open billing period to collect")
	}
	day, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period_date must be YYYY-MM-DD")
	}
	for i := range periods {
		p := &periods[i]
		if day.Before(p.PeriodStart) || day.After(p.PeriodEnd) {
			continue
		}
		if p.Status == models.PeriodStatusPaid || p.Status == models.PeriodStatusPending {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("period %s already has a %s order", p.PeriodLabel, p.Status))
		}
		return p, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "period_date falls outside the billing periods of this enrollment")
}

// Approve marks a pending manual order paid and stores the approval trail.
func (s *ManualPaymentService) Approve(ctx context.Context, orderID string, req ApproveOrderRequest, actor models.Actor) (*models.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	receipt := strings.TrimSpace(req.ReceiptReference)
	if receipt == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "receipt_reference is required").
			WithDetails(map[string]interface{}{"receipt_reference": "required"})
	}
	order, e, err := s.loadReviewable(ctx, orderID)
	if err != nil {
		return nil, err
	}

	loc := e.Location()
	now := s.now()
	paidAt, err := billing.ResolveDateTime(billing.DateTimeInput{Date: req.PaymentDate, Time: req.PaymentTime}, "00:00", loc)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid payment date").
			WithDetails(map[string]interface{}{"payment_date": err.Error()})
	}
	if billing.DateOf(paidAt).After(billing.DateOf(now.In(loc))) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment date must not be in the future").
			WithDetails(map[string]interface{}{"payment_date": "must be today or earlier"})
	}

	before := *order
	if err := order.MergeMetadata(map[string]string{
		models.MetaApprovedBy:       actor.ID,
		models.MetaApprovedAt:       now.Format(time.RFC3339),
		models.MetaReceiptReference: receipt,
		models.MetaPaymentDate:      billing.FormatDate(paidAt),
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode order metadata")
	}
	paidUTC := paidAt.UTC()
	if err := s.review(ctx, repository.ReviewOrderParams{
		ID:       order.ID,
		Status:   models.OrderStatusPaid,
		PaidAt:   &paidUTC,
		Metadata: order.Metadata,
	}); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusPaid
	order.PaidAt = &paidUTC
	s.metrics.RecordAction("approve_manual_order", "success")
	s.emitAudit(ctx, actor, models.AuditActionManualOrderApprove, "order", order.ID, &before, order)
	return order, nil
}

// Reject moves a pending manual order to failed with the given reason. Orders are never deleted.
func (s *ManualPaymentService) Reject(ctx context.Context, orderID, reason string, actor models.Actor) (*models.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required").
			WithDetails(map[string]interface{}{"reason": "required"})
	}
	order, _, err := s.loadReviewable(ctx, orderID)
	if err != nil {
		return nil, err
	}

	before := *order
	if err := order.MergeMetadata(map[string]string{
		models.MetaRejectedBy: actor.ID,
		models.MetaRejectedAt: s.now().Format(time.RFC3339),
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode order metadata")
	}
	code := "manual_rejected"
	if err := s.review(ctx, repository.ReviewOrderParams{
		ID:            order.ID,
		Status:        models.OrderStatusFailed,
		FailureCode:   &code,
		FailureReason: &reason,
		Metadata:      order.Metadata,
	}); err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusFailed
	order.FailureCode = &code
	order.FailureReason = &reason
	s.metrics.RecordAction("reject_manual_order", "success")
	s.emitAudit(ctx, actor, models.AuditActionManualOrderReject, "order", order.ID, &before, order)
	return order, nil
}

func (s *ManualPaymentService) loadReviewable(ctx context.Context, orderID string) (*models.Order, *models.Enrollment, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "order not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order")
	}
	if order.PaymentMethod != models.OrderPaymentManual {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only manual orders can be reviewed")
	}
	if order.Status != models.OrderStatusPending {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "order already reviewed")
	}
	e, err := s.load(ctx, order.EnrollmentID)
	if err != nil {
		return nil, nil, err
	}
	return order, e, nil
}

func (s *ManualPaymentService) review(ctx context.Context, params repository.ReviewOrderParams) error {
	if err := s.orders.Review(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "order already processed")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update order")
	}
	return nil
}
