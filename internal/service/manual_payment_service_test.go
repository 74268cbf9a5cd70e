package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

func manualEnrollment() *models.Enrollment {
	e := baseEnrollment()
	e.PaymentMode = models.PaymentModeManual
	return e
}

func newManualFixture(e *models.Enrollment, orders ...models.Order) (*ManualPaymentService, *orderStoreStub, *auditRecorder) {
	store := newEnrollmentStore(e)
	orderStore := newOrderStore(orders...)
	audit := &auditRecorder{}
	reports := NewBillingReportService(store, orderStore, monthlyFees(), nil, WithClock(fixedClock()))
	svc := NewManualPaymentService(store, orderStore, reports, audit, nil, WithClock(fixedClock()))
	return svc, orderStore, audit
}

func pendingManualOrder() models.Order {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	return models.Order{
		ID:            "order-1",
		EnrollmentID:  "enr-1",
		Amount:        decimal.NewFromInt(120),
		Currency:      "usd",
		Status:        models.OrderStatusPending,
		PeriodStart:   &start,
		PeriodEnd:     &end,
		PaymentMethod: models.OrderPaymentManual,
	}
}

func TestManualPaymentGenerateDefaultsToFirstOpenPeriod(t *testing.T) {
	svc, orders, audit := newManualFixture(manualEnrollment())

	order, err := svc.Generate(context.Background(), "enr-1", GenerateOrderRequest{}, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.OrderPaymentManual, order.PaymentMethod)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *order.PeriodStart)
	assert.True(t, decimal.NewFromInt(120).Equal(order.Amount))
	assert.Equal(t, "admin-1", order.MetadataMap()[models.MetaGeneratedBy])
	assert.Len(t, orders.created, 1)
	assert.Equal(t, []string{models.AuditActionManualOrderCreate}, audit.actions())
}

func TestManualPaymentGenerateForDate(t *testing.T) {
	svc, _, _ := newManualFixture(manualEnrollment())
	amount := decimal.RequireFromString("99.50")

	order, err := svc.Generate(context.Background(), "enr-1", GenerateOrderRequest{PeriodDate: "2024-02-20", Amount: &amount}, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), *order.PeriodStart)
	assert.True(t, amount.Equal(order.Amount))
}

func TestManualPaymentGenerateRejections(t *testing.T) {
	t.Run("automatic mode", func(t *testing.T) {
		svc, _, _ := newManualFixture(baseEnrollment())
		_, err := svc.Generate(context.Background(), "enr-1", GenerateOrderRequest{}, testAdmin)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed.Code))
	})

	t.Run("period already pending", func(t *testing.T) {
		svc, _, _ := newManualFixture(manualEnrollment(), pendingManualOrder())
		_, err := svc.Generate(context.Background(), "enr-1", GenerateOrderRequest{PeriodDate: "2024-01-20"}, testAdmin)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
	})

	t.Run("date outside periods", func(t *testing.T) {
		svc, _, _ := newManualFixture(manualEnrollment())
		_, err := svc.Generate(context.Background(), "enr-1", GenerateOrderRequest{PeriodDate: "2023-12-01"}, testAdmin)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	})

	t.Run("amount over limit", func(t *testing.T) {
		svc, _, _ := newManualFixture(manualEnrollment())
		amount := decimal.NewFromInt(200000)
		_, err := svc.Generate(context.Background(), "enr-1", GenerateOrderRequest{Amount: &amount}, testAdmin)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	})
}

func TestManualPaymentApprove(t *testing.T) {
	svc, orders, audit := newManualFixture(manualEnrollment(), pendingManualOrder())

	order, err := svc.Approve(context.Background(), "order-1", ApproveOrderRequest{
		PaymentDate:      "2024-03-08",
		ReceiptReference: "RCPT-42",
	}, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), *order.PaidAt)

	meta := order.MetadataMap()
	assert.Equal(t, "admin-1", meta[models.MetaApprovedBy])
	assert.Equal(t, "RCPT-42", meta[models.MetaReceiptReference])
	assert.Equal(t, "2024-03-08", meta[models.MetaPaymentDate])
	require.Len(t, orders.reviews, 1)
	assert.Equal(t, []string{models.AuditActionManualOrderApprove}, audit.actions())
}

func TestManualPaymentApproveRejections(t *testing.T) {
	t.Run("future date", func(t *testing.T) {
		svc, _, _ := newManualFixture(manualEnrollment(), pendingManualOrder())
		_, err := svc.Approve(context.Background(), "order-1", ApproveOrderRequest{PaymentDate: "2024-03-11", ReceiptReference: "R"}, testAdmin)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	})

	t.Run("missing receipt", func(t *testing.T) {
		svc, _, _ := newManualFixture(manualEnrollment(), pendingManualOrder())
		_, err := svc.Approve(context.Background(), "order-1", ApproveOrderRequest{PaymentDate: "2024-03-08"}, testAdmin)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	})

	t.Run("already reviewed", func(t *testing.T) {
		paid := pendingManualOrder()
		paid.Status = models.OrderStatusPaid
		svc, _, _ := newManualFixture(manualEnrollment(), paid)
		_, err := svc.Approve(context.Background(), "order-1", ApproveOrderRequest{PaymentDate: "2024-03-08", ReceiptReference: "R"}, testAdmin)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
	})

	t.Run("provider order", func(t *testing.T) {
		o := pendingManualOrder()
		o.PaymentMethod = models.OrderPaymentProvider
		svc, _, _ := newManualFixture(manualEnrollment(), o)
		_, err := svc.Approve(context.Background(), "order-1", ApproveOrderRequest{PaymentDate: "2024-03-08", ReceiptReference: "R"}, testAdmin)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrPreconditionFailed.Code))
	})

	t.Run("unknown order", func(t *testing.T) {
		svc, _, _ := newManualFixture(manualEnrollment())
		_, err := svc.Approve(context.Background(), "missing", ApproveOrderRequest{PaymentDate: "2024-03-08", ReceiptReference: "R"}, testAdmin)
		assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
	})
}

func TestManualPaymentReject(t *testing.T) {
	svc, orders, audit := newManualFixture(manualEnrollment(), pendingManualOrder())

	order, err := svc.Reject(context.Background(), "order-1", "receipt unreadable", testAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
	require.NotNil(t, order.FailureReason)
	assert.Equal(t, "receipt unreadable", *order.FailureReason)
	assert.Equal(t, "admin-1", order.MetadataMap()[models.MetaRejectedBy])
	require.Len(t, orders.reviews, 1)
	assert.Equal(t, models.OrderStatusFailed, orders.reviews[0].Status)
	assert.Equal(t, []string{models.AuditActionManualOrderReject}, audit.actions())

	_, err = svc.Reject(context.Background(), "order-1", "", testAdmin)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}
