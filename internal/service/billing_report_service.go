package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
	"github.com/noah-isme/course-billing-api/pkg/export"
)

type orderLister interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Order, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, opts export.PDFOptions) ([]byte, error)
}

// StatementFormat selects the rendered statement type.
type StatementFormat string

const (
	StatementCSV StatementFormat = "csv"
	StatementPDF StatementFormat = "pdf"
)

// Statement is a rendered billing statement.
type Statement struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BillingReportService builds the reconciled period table of an enrollment.
type BillingReportService struct {
	lifecycle
	orders orderLister
	fees   feeSettingsStore
	csv    csvRenderer
	pdf    pdfRenderer
}

// NewBillingReportService constructs the service.
func NewBillingReportService(enrollments enrollmentStore, orders orderLister, fees feeSettingsStore, logger *zap.Logger, opts ...LifecycleOption) *BillingReportService {
	return &BillingReportService{
		lifecycle: newLifecycle("billing-report-service", enrollments, nil, logger, opts),
		orders:    orders,
		fees:      fees,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
	}
}

// Report loads the enrollment and reconciles its periods against its orders.
func (s *BillingReportService) Report(ctx context.Context, enrollmentID string) (*models.BillingReport, error) {
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	return s.ReportFor(ctx, e)
}

// ReportFor reconciles an already loaded enrollment. Missing fee data degrades to
// warnings instead of failing the report.
func (s *BillingReportService) ReportFor(ctx context.Context, e *models.Enrollment) (*models.BillingReport, error) {
	now := s.now()
	loc := e.Location()
	today := billing.DateOf(now.In(loc))
	horizon := billing.ReportHorizon(e, now.In(loc), s.policy.horizon())

	report := &models.BillingReport{
		EnrollmentID: e.ID,
		Horizon:      horizon,
		Periods:      []models.PeriodReport{},
		GeneratedAt:  now,
	}

	settings, err := s.fees.FindByCourseID(ctx, e.CourseID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course fee settings")
		}
		settings = nil
		report.Warnings = append(report.Warnings, models.ReconciliationWarning{
			Code:    billing.WarningMissingFeeSettings,
			Message: "course has no fee settings; monthly billing assumed",
		})
	}

	interval := billing.Interval{Unit: billing.UnitMonth, Count: 1}
	if settings != nil {
		var ok bool
		interval, ok = billing.IntervalForCycle(settings.BillingCycle)
		if !ok {
			report.Warnings = append(report.Warnings, models.ReconciliationWarning{
				Code:    billing.WarningNonRecurring,
				Message: fmt.Sprintf("billing cycle %q produces no recurring periods", settings.BillingCycle),
			})
			return report, nil
		}
	}

	orders, err := s.orders.ListByEnrollment(ctx, e.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load orders")
	}

	fee, feeWarnings := billing.ExpectedFee(e, settings)
	periods := billing.GeneratePeriods(e.StartDate, interval, horizon, s.policy.MaxPeriods)
	rec := billing.Reconcile(periods, orders, fee, today)
	s.metrics.RecordReconciliation(rec.Periods)

	report.Periods = rec.Periods
	report.Summary = rec.Summary
	report.Warnings = append(report.Warnings, feeWarnings...)
	report.Warnings = append(report.Warnings, rec.Warnings...)
	for _, w := range report.Warnings {
		s.logger.Debug("reconciliation warning", zap.String("enrollment_id", e.ID), zap.String("code", w.Code), zap.String("message", w.Message))
	}
	return report, nil
}

var statementHeaders = []string{"Period", "Start", "End", "Status", "Expected", "Paid", "Unpaid", "Order"}

// Statement renders the period report as CSV or PDF.
func (s *BillingReportService) Statement(ctx context.Context, enrollmentID string, format StatementFormat) (*Statement, error) {
	format = StatementFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format != StatementCSV && format != StatementPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	report, err := s.ReportFor(ctx, e)
	if err != nil {
		return nil, err
	}
	data := statementDataset(report)
	name := fmt.Sprintf("billing-statement-%s-%s.%s", e.ID, billing.FormatDate(report.GeneratedAt), format)

	if format == StatementCSV {
		raw, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
		}
		return &Statement{Filename: name, ContentType: "text/csv", Data: raw}, nil
	}
	raw, err := s.pdf.Render(data, export.PDFOptions{
		Title:     "Billing Statement",
		Subtitle:  fmt.Sprintf("Enrollment %s, through %s", e.ID, billing.FormatDate(report.Horizon)),
		Landscape: true,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}
	return &Statement{Filename: name, ContentType: "application/pdf", Data: raw}, nil
}

func statementDataset(report *models.BillingReport) export.Dataset {
	rows := make([]map[string]string, 0, len(report.Periods))
	for _, p := range report.Periods {
		order := ""
		if p.MatchedOrderID != nil {
			order = *p.MatchedOrderID
		}
		rows = append(rows, map[string]string{
			"Period":   p.PeriodLabel,
			"Start":    billing.FormatDate(p.PeriodStart),
			"End":      billing.FormatDate(p.PeriodEnd),
			"Status":   string(p.Status),
			"Expected": p.ExpectedAmount.StringFixed(2),
			"Paid":     p.PaidAmount.StringFixed(2),
			"Unpaid":   p.UnpaidAmount.StringFixed(2),
			"Order":    order,
		})
	}
	sum := report.Summary
	footer := [][2]string{
		{"Paid periods", fmt.Sprint(sum.PaidCount)},
		{"Failed periods", fmt.Sprint(sum.FailedCount)},
		{"Upcoming periods", fmt.Sprint(sum.UpcomingCount)},
		{"Total paid", sum.TotalPaidAmount.StringFixed(2)},
		{"Total unpaid", sum.TotalUnpaid.StringFixed(2)},
	}
	for _, w := range report.Warnings {
		footer = append(footer, [2]string{"Note", w.Message})
	}
	return export.Dataset{Headers: statementHeaders, Rows: rows, Footer: footer}
}
