package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// Warning codes attached to billing reports.
const (
	WarningMissingFee           = "missing_fee"
	WarningCurrentFeeProjection = "current_fee_projection"
	WarningUnmatchedPaidOrder   = "unmatched_paid_order"
	WarningMissingFeeSettings   = "missing_fee_settings"
	WarningNonRecurring         = "non_recurring_course"
)

// Reconciliation is the classified period table plus its rollups.
type Reconciliation struct {
	Periods  []models.PeriodReport
	Summary  models.ReconciliationSummary
	Warnings []models.ReconciliationWarning
}

// ExpectedFee resolves the per-period amount: the enrollment fee, falling back to the
// course fee settings. A missing or non-positive fee degrades to zero with a warning.
func ExpectedFee(e *models.Enrollment, settings *models.CourseFeeSettings) (decimal.Decimal, []models.ReconciliationWarning) {
	if e != nil && e.Fee.IsPositive() {
		return e.Fee, nil
	}
	if settings != nil && settings.FeeAmount.IsPositive() {
		return settings.FeeAmount, nil
	}
	return decimal.Zero, []models.ReconciliationWarning{{
		Code:    WarningMissingFee,
		Message: "no positive fee configured; expected amounts default to zero",
	}}
}

// Reconcile classifies every period against the orders. Status priority is
// paid, failed, pending, upcoming, unpaid. Expected amounts always use the current fee,
// including for elapsed periods.
func Reconcile(periods []models.BillingPeriod, orders []models.Order, fee decimal.Decimal, today time.Time) Reconciliation {
	ledger := NewLedger(orders)
	day := DateOf(today)

	result := Reconciliation{
		Periods: make([]models.PeriodReport, 0, len(periods)),
		Summary: models.ReconciliationSummary{
			TotalPaidAmount: decimal.Zero,
			TotalExpected:   decimal.Zero,
			TotalUnpaid:     decimal.Zero,
		},
	}

	projected := 0
	for _, period := range periods {
		report := classify(period, ledger.Match(period), fee, day)
		if !report.IsFuture && (report.Status == models.PeriodStatusUnpaid || report.Status == models.PeriodStatusFailed) {
			projected++
		}
		accumulate(&result.Summary, report)
		result.Periods = append(result.Periods, report)
	}

	if projected > 0 && fee.IsPositive() {
		result.Warnings = append(result.Warnings, models.ReconciliationWarning{
			Code:    WarningCurrentFeeProjection,
			Message: fmt.Sprintf("expected amount for %d elapsed unpaid period(s) uses the current fee", projected),
		})
	}
	for _, order := range ledger.Unmatched(periods) {
		if order.Status != models.OrderStatusPaid {
			continue
		}
		result.Warnings = append(result.Warnings, models.ReconciliationWarning{
			Code:    WarningUnmatchedPaidOrder,
			Message: fmt.Sprintf("paid order %s for period starting %s matches no billing period", order.ID, FormatDate(*order.PeriodStart)),
		})
	}
	return result
}

func classify(period models.BillingPeriod, order *models.Order, fee decimal.Decimal, today time.Time) models.PeriodReport {
	start, end := DateOf(period.Start), DateOf(period.End)
	report := models.PeriodReport{
		PeriodLabel:    period.Label,
		PeriodStart:    start,
		PeriodEnd:      end,
		ExpectedAmount: fee,
		PaidAmount:     decimal.Zero,
		UnpaidAmount:   decimal.Zero,
		IsFuture:       !end.Before(today),
		IsCurrent:      !start.After(today) && !end.Before(today),
	}
	if order != nil {
		id := order.ID
		report.MatchedOrderID = &id
		report.MatchedOrder = order
	}

	switch {
	case order != nil && order.Status == models.OrderStatusPaid:
		report.Status = models.PeriodStatusPaid
		report.PaidAmount = order.Amount
	case order != nil && order.Status == models.OrderStatusFailed:
		report.Status = models.PeriodStatusFailed
		report.UnpaidAmount = fee
	case order != nil && order.Status == models.OrderStatusPending:
		report.Status = models.PeriodStatusPending
	case order == nil && report.IsFuture:
		report.Status = models.PeriodStatusUpcoming
	default:
		report.Status = models.PeriodStatusUnpaid
		report.UnpaidAmount = fee
	}

	report.Amount = fee
	if report.Status == models.PeriodStatusPaid {
		report.Amount = report.PaidAmount
	}
	return report
}

func accumulate(s *models.ReconciliationSummary, r models.PeriodReport) {
	switch r.Status {
	case models.PeriodStatusPaid:
		s.PaidCount++
	case models.PeriodStatusFailed:
		s.FailedCount++
	case models.PeriodStatusPending:
		s.PendingCount++
	case models.PeriodStatusUpcoming:
		s.UpcomingCount++
	default:
		s.UnpaidCount++
	}
	s.TotalPaidAmount = s.TotalPaidAmount.Add(r.PaidAmount)
	s.TotalExpected = s.TotalExpected.Add(r.ExpectedAmount)
	s.TotalUnpaid = s.TotalUnpaid.Add(r.UnpaidAmount)
}
