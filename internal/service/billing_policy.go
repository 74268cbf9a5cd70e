package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/course-billing-api/internal/billing"
)

// BillingPolicy carries the configurable limits used by the billing services.
type BillingPolicy struct {
	ChargeTimeOfDay        string
	CutoffTimeOfDay        string
	MaxFee                 decimal.Decimal
	HorizonExtensionMonths int
	MaxPeriods             int
	// DefaultCurrency applies when neither the enrollment nor the course fee names one.
	DefaultCurrency string
	// DefaultTimezone applies to enrollments stored without a timezone.
	DefaultTimezone string
}

// DefaultBillingPolicy returns the policy used when none is configured.
func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		ChargeTimeOfDay:        billing.DefaultChargeTimeOfDay,
		CutoffTimeOfDay:        billing.DefaultCutoffTimeOfDay,
		MaxFee:                 decimal.NewFromInt(100000),
		HorizonExtensionMonths: 6,
		MaxPeriods:             billing.DefaultMaxPeriods,
		DefaultCurrency:        "usd",
	}
}

// WithBillingPolicy overrides the default policy. Zero fields keep their defaults.
func WithBillingPolicy(p BillingPolicy) LifecycleOption {
	return func(l *lifecycle) {
		def := DefaultBillingPolicy()
		if p.ChargeTimeOfDay == "" {
			p.ChargeTimeOfDay = def.ChargeTimeOfDay
		}
		if p.CutoffTimeOfDay == "" {
			p.CutoffTimeOfDay = def.CutoffTimeOfDay
		}
		if !p.MaxFee.IsPositive() {
			p.MaxFee = def.MaxFee
		}
		if p.HorizonExtensionMonths < 0 {
			p.HorizonExtensionMonths = 0
		}
		if p.MaxPeriods <= 0 {
			p.MaxPeriods = def.MaxPeriods
		}
		if p.DefaultCurrency == "" {
			p.DefaultCurrency = def.DefaultCurrency
		}
		l.policy = p
	}
}

func (p BillingPolicy) schedule(now time.Time) billing.SchedulePolicy {
	return billing.SchedulePolicy{
		Now:             now,
		ChargeTimeOfDay: p.ChargeTimeOfDay,
		CutoffTimeOfDay: p.CutoffTimeOfDay,
		MaxFee:          p.MaxFee,
	}
}

func (p BillingPolicy) horizon() billing.HorizonPolicy {
	return billing.HorizonPolicy{ExtensionMonths: p.HorizonExtensionMonths}
}
