package stripe

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// currencies Stripe charges in whole units.
var zeroDecimalCurrencies = []string{"bif", "clp", "djf", "gnf", "jpy", "kmf", "krw", "mga", "pyg", "rwf", "ugx", "vnd", "vuv", "xaf", "xof", "xpf"}

// minorUnits converts a fee into the integer amount Stripe expects.
func minorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	if lo.Contains(zeroDecimalCurrencies, strings.ToLower(currency)) {
		return amount.Round(0).IntPart(), nil
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

func recurringInterval(cycle models.BillingCycle) (string, int64, error) {
	switch cycle {
	case models.BillingCycleMonthly:
		return string(stripe.PriceRecurringIntervalMonth), 1, nil
	case models.BillingCycleQuarterly:
		return string(stripe.PriceRecurringIntervalMonth), 3, nil
	case models.BillingCycleYearly:
		return string(stripe.PriceRecurringIntervalYear), 1, nil
	}
	return "", 0, fmt.Errorf("billing cycle %q has no recurring interval", cycle)
}

func prorationBehavior(p models.ProrationBehavior) string {
	switch p {
	case models.ProrationNone, models.ProrationAlwaysInvoice:
		return string(p)
	}
	return string(models.ProrationCreateProrations)
}

// subscriptionStatus maps Stripe statuses onto stored ones. Stripe's paused status
// only occurs for trials that ended without a payment method, which is a collection pause.
func subscriptionStatus(sub *stripe.Subscription) models.SubscriptionStatus {
	switch sub.Status {
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusPaused:
		return models.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue:
		return models.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusUnpaid:
		return models.SubscriptionStatusUnpaid
	case stripe.SubscriptionStatusCanceled:
		return models.SubscriptionStatusCanceled
	case stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionStatusIncompleteExpired
	}
	return models.SubscriptionStatusIncomplete
}

func subscriptionDetails(sub *stripe.Subscription) *models.SubscriptionDetails {
	return &models.SubscriptionDetails{
		SubscriptionID:    sub.ID,
		Status:            subscriptionStatus(sub),
		CurrentPeriodEnd:  currentPeriodEnd(sub),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          unixTimePtr(sub.CancelAt),
		TrialEnd:          unixTimePtr(sub.TrialEnd),
		PauseCollection:   sub.PauseCollection != nil || sub.Status == stripe.SubscriptionStatusPaused,
	}
}

// currentPeriodEnd reads the period end from the first item, where current API versions keep it.
func currentPeriodEnd(sub *stripe.Subscription) *time.Time {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return unixTimePtr(sub.Items.Data[0].CurrentPeriodEnd)
}

func unixTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func unixTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
