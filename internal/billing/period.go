package billing

import (
	"fmt"
	"time"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// IntervalUnit is the calendar unit a billing interval advances by.
type IntervalUnit string

const (
	UnitMonth IntervalUnit = "month"
	UnitYear  IntervalUnit = "year"
	// UnitDay approximates unknown units as 30-day blocks.
	UnitDay IntervalUnit = "day"
)

// DefaultMaxPeriods bounds generation when an enrollment has no end and a distant horizon.
const DefaultMaxPeriods = 60

const (
	labelLayout          = "Jan 2, 2006"
	dateLayout           = "2006-01-02"
	fallbackDaysPerCount = 30
)

// Interval describes a recurring billing cadence.
type Interval struct {
	Unit  IntervalUnit
	Count int
}

// IntervalForCycle maps a course billing cycle onto a generator interval.
// One-time fees have no recurring interval.
func IntervalForCycle(cycle models.BillingCycle) (Interval, bool) {
	switch cycle {
	case models.BillingCycleMonthly:
		return Interval{Unit: UnitMonth, Count: 1}, true
	case models.BillingCycleQuarterly:
		return Interval{Unit: UnitMonth, Count: 3}, true
	case models.BillingCycleYearly:
		return Interval{Unit: UnitYear, Count: 1}, true
	}
	return Interval{}, false
}

// GeneratePeriods derives contiguous, inclusive billing periods from start until the
// period start passes horizonEnd or maxPeriods is reached.
//
// Period n starts at start advanced by n intervals, clamped to the last day of the month,
// so a Jan 31 anchor yields Feb 29 / Mar 31 rather than drifting to the 29th. Each period
// ends the day before the next one starts.
func GeneratePeriods(start time.Time, interval Interval, horizonEnd time.Time, maxPeriods int) []models.BillingPeriod {
	if maxPeriods <= 0 {
		maxPeriods = DefaultMaxPeriods
	}
	if interval.Count <= 0 {
		interval.Count = 1
	}

	anchor := DateOf(start)
	horizon := DateOf(horizonEnd)

	periods := make([]models.BillingPeriod, 0)
	for i := 0; i < maxPeriods; i++ {
		periodStart := advance(anchor, interval, i)
		if periodStart.After(horizon) {
			break
		}
		periodEnd := advance(anchor, interval, i+1).AddDate(0, 0, -1)
		periods = append(periods, models.BillingPeriod{
			Index: i,
			Label: PeriodLabel(periodStart, periodEnd),
			Start: periodStart,
			End:   periodEnd,
		})
	}
	return periods
}

// PeriodLabel renders the human readable range shown in reports.
func PeriodLabel(start, end time.Time) string {
	return fmt.Sprintf("%s - %s", start.Format(labelLayout), end.Format(labelLayout))
}

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func advance(anchor time.Time, interval Interval, steps int) time.Time {
	n := interval.Count * steps
	switch interval.Unit {
	case UnitMonth:
		return AddClampedMonths(anchor, n)
	case UnitYear:
		return AddClampedMonths(anchor, 12*n)
	default:
		return anchor.AddDate(0, 0, fallbackDaysPerCount*n)
	}
}

// AddClampedMonths adds months to t, clamping the day to the length of the target month.
func AddClampedMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int(m) - 1 + months
	newY := y + total/12
	newM := total % 12
	if newM < 0 {
		newM += 12
		newY--
	}
	month := time.Month(newM + 1)

	if last := daysIn(newY, month, t.Location()); d > last {
		d = last
	}
	return time.Date(newY, month, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// HorizonPolicy configures how far ahead reports project periods.
type HorizonPolicy struct {
	// ExtensionMonths is added when billing outlives the course end date.
	ExtensionMonths int
}

// ReportHorizon picks the last date periods are generated for: the pending cancellation
// date if any, otherwise now. When the course already ended before that point but the
// subscription is still live, the horizon is pushed out so upcoming periods stay visible.
func ReportHorizon(e *models.Enrollment, now time.Time, policy HorizonPolicy) time.Time {
	horizon := now
	if e == nil {
		return DateOf(horizon)
	}
	if e.SubscriptionCancelAt != nil {
		horizon = *e.SubscriptionCancelAt
	}
	if e.EndDate != nil && DateOf(*e.EndDate).Before(DateOf(horizon)) && isLive(e.Status()) && policy.ExtensionMonths > 0 {
		horizon = AddClampedMonths(horizon, policy.ExtensionMonths)
	}
	return DateOf(horizon)
}

func isLive(status models.SubscriptionStatus) bool {
	switch status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing, models.SubscriptionStatusPastDue:
		return true
	}
	return false
}
