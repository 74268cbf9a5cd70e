package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingPeriod is a derived, inclusive date range over which one recurring charge is expected.
// Start and End are calendar dates stored at midnight UTC.
type BillingPeriod struct {
	Index int       `json:"index"`
	Label string    `json:"label"`
	Start time.Time `json:"period_start"`
	End   time.Time `json:"period_end"`
}

// PeriodStatus classifies a billing period after reconciliation.
type PeriodStatus string

const (
	PeriodStatusPaid     PeriodStatus = "paid"
	PeriodStatusFailed   PeriodStatus = "failed"
	PeriodStatusPending  PeriodStatus = "pending"
	PeriodStatusUpcoming PeriodStatus = "upcoming"
	PeriodStatusUnpaid   PeriodStatus = "unpaid"
)

// PeriodReport is one reconciled row of the billing period table.
type PeriodReport struct {
	PeriodLabel    string          `json:"period_label"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
	Status         PeriodStatus    `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	UnpaidAmount   decimal.Decimal `json:"unpaid_amount"`
	MatchedOrderID *string         `json:"matched_order_id,omitempty"`
	MatchedOrder   *Order          `json:"-"`
	IsCurrent      bool            `json:"is_current"`
	IsFuture       bool            `json:"is_future"`
}

// ReconciliationSummary aggregates period reports.
type ReconciliationSummary struct {
	PaidCount       int             `json:"paid_count"`
	FailedCount     int             `json:"failed_count"`
	PendingCount    int             `json:"pending_count"`
	UpcomingCount   int             `json:"upcoming_count"`
	UnpaidCount     int             `json:"unpaid_count"`
	TotalPaidAmount decimal.Decimal `json:"total_paid_amount"`
	TotalExpected   decimal.Decimal `json:"total_expected_amount"`
	TotalUnpaid     decimal.Decimal `json:"total_unpaid_amount"`
}

// ReconciliationWarning is a non-fatal data quality note attached to a report.
type ReconciliationWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BillingReport is the reporting output for one enrollment.
type BillingReport struct {
	EnrollmentID string                  `json:"enrollment_id"`
	Horizon      time.Time               `json:"horizon"`
	Periods      []PeriodReport          `json:"periods"`
	Summary      ReconciliationSummary   `json:"summary"`
	Warnings     []ReconciliationWarning `json:"warnings,omitempty"`
	GeneratedAt  time.Time               `json:"generated_at"`
}
