package billing

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// Ledger indexes an enrollment's orders by period start for period lookups.
// Orders without a period start (one-off charges) are not indexed.
type Ledger struct {
	entries []ledgerEntry
	skipped int
}

type ledgerEntry struct {
	start time.Time
	order *models.Order
}

// NewLedger copies and sorts orders ascending by period start. The caller's slice is untouched.
func NewLedger(orders []models.Order) *Ledger {
	l := &Ledger{entries: make([]ledgerEntry, 0, len(orders))}
	for i := range orders {
		if orders[i].PeriodStart == nil {
			l.skipped++
			continue
		}
		order := orders[i]
		l.entries = append(l.entries, ledgerEntry{start: DateOf(*order.PeriodStart), order: &order})
	}
	sort.SliceStable(l.entries, func(i, j int) bool {
		a, b := l.entries[i], l.entries[j]
		if !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		return a.order.CreatedAt.Before(b.order.CreatedAt)
	})
	return l
}

// Len returns the number of indexed orders.
func (l *Ledger) Len() int { return len(l.entries) }

// Skipped returns how many orders lacked a period start.
func (l *Ledger) Skipped() int { return l.skipped }

// Match returns the first order whose period start equals the period start or falls
// within [period.Start, period.End]. Providers occasionally shift period starts by a
// few days, hence the range match.
func (l *Ledger) Match(period models.BillingPeriod) *models.Order {
	start, end := DateOf(period.Start), DateOf(period.End)
	idx := sort.Search(len(l.entries), func(i int) bool {
		return !l.entries[i].start.Before(start)
	})
	if idx < len(l.entries) && !l.entries[idx].start.After(end) {
		return l.entries[idx].order
	}
	return nil
}

// Unmatched returns indexed orders whose period start falls inside none of the periods.
func (l *Ledger) Unmatched(periods []models.BillingPeriod) []*models.Order {
	out := make([]*models.Order, 0)
	for _, entry := range l.entries {
		covered := lo.ContainsBy(periods, func(p models.BillingPeriod) bool {
			return !entry.start.Before(DateOf(p.Start)) && !entry.start.After(DateOf(p.End))
		})
		if !covered {
			out = append(out, entry.order)
		}
	}
	return out
}
