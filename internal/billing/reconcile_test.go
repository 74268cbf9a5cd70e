package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-billing-api/internal/models"
)

func orderAt(id string, start time.Time, status models.OrderStatus, amount int64) models.Order {
	s := start
	return models.Order{ID: id, PeriodStart: &s, Status: status, Amount: decimal.NewFromInt(amount)}
}

func TestReconcileMatchesDriftedPeriodStart(t *testing.T) {
	periods := GeneratePeriods(date(2024, 1, 15), Interval{Unit: UnitMonth, Count: 1}, date(2024, 4, 10), 60)
	orders := []models.Order{orderAt("ord-feb", date(2024, 2, 16), models.OrderStatusPaid, 150)}

	result := Reconcile(periods, orders, decimal.NewFromInt(150), date(2024, 4, 10))

	require.Len(t, result.Periods, 3)
	feb := result.Periods[1]
	assert.Equal(t, models.PeriodStatusPaid, feb.Status)
	assert.True(t, decimal.NewFromInt(150).Equal(feb.PaidAmount))
	require.NotNil(t, feb.MatchedOrderID)
	assert.Equal(t, "ord-feb", *feb.MatchedOrderID)

	assert.Equal(t, models.PeriodStatusUnpaid, result.Periods[0].Status)
	assert.Equal(t, models.PeriodStatusUpcoming, result.Periods[2].Status)
	assert.True(t, result.Periods[2].IsFuture)
	assert.True(t, result.Periods[2].IsCurrent)
}

func TestReconcileStatusPriorityAndTotals(t *testing.T) {
	periods := GeneratePeriods(date(2024, 1, 1), Interval{Unit: UnitMonth, Count: 1}, date(2024, 6, 1), 60)
	today := date(2024, 4, 15)
	orders := []models.Order{
		orderAt("ord-apr", date(2024, 4, 1), models.OrderStatusPending, 100),
		orderAt("ord-feb", date(2024, 2, 1), models.OrderStatusFailed, 100),
		orderAt("ord-jan", date(2024, 1, 1), models.OrderStatusPaid, 90),
		orderAt("ord-jan-dup", date(2024, 1, 3), models.OrderStatusFailed, 100),
		{ID: "one-off", Status: models.OrderStatusPaid, Amount: decimal.NewFromInt(500)},
	}

	result := Reconcile(periods, orders, decimal.NewFromInt(100), today)

	require.Len(t, result.Periods, 6)
	statuses := make([]models.PeriodStatus, 0, len(result.Periods))
	for _, p := range result.Periods {
		statuses = append(statuses, p.Status)
	}
	assert.Equal(t, []models.PeriodStatus{
		models.PeriodStatusPaid,
		models.PeriodStatusFailed,
		models.PeriodStatusUnpaid,
		models.PeriodStatusPending,
		models.PeriodStatusUpcoming,
		models.PeriodStatusUpcoming,
	}, statuses)

	s := result.Summary
	assert.Equal(t, len(periods), s.PaidCount+s.FailedCount+s.PendingCount+s.UpcomingCount+s.UnpaidCount)
	assert.True(t, decimal.NewFromInt(90).Equal(s.TotalPaidAmount))
	assert.True(t, decimal.NewFromInt(200).Equal(s.TotalUnpaid))
	assert.True(t, decimal.NewFromInt(600).Equal(s.TotalExpected))

	assert.True(t, decimal.NewFromInt(90).Equal(result.Periods[0].Amount))
	assert.True(t, decimal.NewFromInt(100).Equal(result.Periods[1].Amount))

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, WarningCurrentFeeProjection, result.Warnings[0].Code)
}

func TestReconcilePaidSumEqualsMatchedPaidOrders(t *testing.T) {
	periods := GeneratePeriods(date(2023, 1, 10), Interval{Unit: UnitMonth, Count: 1}, date(2023, 12, 31), 60)
	orders := []models.Order{
		orderAt("a", date(2023, 3, 10), models.OrderStatusPaid, 120),
		orderAt("b", date(2023, 5, 12), models.OrderStatusPaid, 125),
		orderAt("c", date(2022, 12, 1), models.OrderStatusPaid, 999),
		orderAt("d", date(2023, 7, 10), models.OrderStatusRefunded, 120),
	}

	result := Reconcile(periods, orders, decimal.NewFromInt(120), date(2024, 1, 1))

	assert.True(t, decimal.NewFromInt(245).Equal(result.Summary.TotalPaidAmount))
	assert.Equal(t, 2, result.Summary.PaidCount)

	codes := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, WarningUnmatchedPaidOrder)
}

func TestReconcileDoesNotReorderCallerOrders(t *testing.T) {
	orders := []models.Order{
		orderAt("late", date(2024, 3, 1), models.OrderStatusPaid, 1),
		orderAt("early", date(2024, 1, 1), models.OrderStatusPaid, 1),
	}
	periods := GeneratePeriods(date(2024, 1, 1), Interval{Unit: UnitMonth, Count: 1}, date(2024, 3, 1), 60)

	Reconcile(periods, orders, decimal.NewFromInt(1), date(2024, 3, 2))

	assert.Equal(t, "late", orders[0].ID)
}

func TestExpectedFee(t *testing.T) {
	fee, warnings := ExpectedFee(&models.Enrollment{Fee: decimal.NewFromInt(80)}, nil)
	assert.True(t, decimal.NewFromInt(80).Equal(fee))
	assert.Empty(t, warnings)

	settings := &models.CourseFeeSettings{FeeAmount: decimal.NewFromInt(95)}
	fee, warnings = ExpectedFee(&models.Enrollment{}, settings)
	assert.True(t, decimal.NewFromInt(95).Equal(fee))
	assert.Empty(t, warnings)

	fee, warnings = ExpectedFee(&models.Enrollment{}, &models.CourseFeeSettings{FeeAmount: decimal.NewFromInt(-5)})
	assert.True(t, fee.IsZero())
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningMissingFee, warnings[0].Code)
}

func TestLedgerMatchFirstWins(t *testing.T) {
	ledger := NewLedger([]models.Order{
		orderAt("second", date(2024, 2, 20), models.OrderStatusPaid, 1),
		orderAt("first", date(2024, 2, 15), models.OrderStatusFailed, 1),
	})
	period := models.BillingPeriod{Start: date(2024, 2, 15), End: date(2024, 3, 14)}

	matched := ledger.Match(period)
	require.NotNil(t, matched)
	assert.Equal(t, "first", matched.ID)
	assert.Nil(t, ledger.Match(models.BillingPeriod{Start: date(2024, 3, 15), End: date(2024, 4, 14)}))
}
