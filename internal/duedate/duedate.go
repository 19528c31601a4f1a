package duedate

import (
	"time"

	"github.com/crossbridge/crossbridge/internal/shared"
)

// PaymentDueDate applies a credit-term rule to a settlement period. The second
// result is false when the period or rule cannot be read; no date is guessed.
func PaymentDueDate(rule, period string) (time.Time, bool) {
	p, err := shared.ParsePeriod(period)
	if err != nil {
		return time.Time{}, false
	}
	term, err := ParseCreditTerm(rule)
	if err != nil {
		return time.Time{}, false
	}
	return term.DueDate(p), true
}

// DueDate resolves the term against period p.
func (t CreditTerm) DueDate(p shared.Period) time.Time {
	target := p.Next()
	if t.EndOfMonth {
		return target.EndDate()
	}
	return target.Date(t.Day)
}

// RebateDueDate returns the last day of the month after the settlement month
// (monthly) or after the quarter containing it (quarterly).
func RebateDueDate(period string, kind RebatePeriod) (time.Time, bool) {
	p, err := shared.ParsePeriod(period)
	if err != nil {
		return time.Time{}, false
	}
	switch kind {
	case RebateMonthly:
		return p.Next().EndDate(), true
	case RebateQuarterly:
		return p.QuarterEnd().Next().EndDate(), true
	default:
		return time.Time{}, false
	}
}
