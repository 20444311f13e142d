package subscriptions

import (
	"time"

	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// NextPeriodEnd extends a billing period by one calendar month or year from
// its current end. A day that does not exist in the target month is clamped
// to that month's last day, so Jan 31 renews to Feb 28 (or 29).
func NextPeriodEnd(end time.Time, cycle enums.BillingCycle) time.Time {
	if cycle == enums.BillingCycleYearly {
		return addMonths(end, 12)
	}
	return addMonths(end, 1)
}

func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()
	first := time.Date(year, month+time.Month(months), 1, hour, minute, sec, t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// IsEntitled reports whether the status grants plan features.
func IsEntitled(status enums.SubscriptionStatus) bool {
	switch status {
	case enums.SubscriptionStatusActive, enums.SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}
