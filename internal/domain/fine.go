package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// DefaultLoanPeriod is used when a borrow does not specify a due date.
const DefaultLoanPeriod = 14 * day

// DefaultFineRateCents is charged per started day late.
const DefaultFineRateCents = 100

// DaysLate returns the number of started days between due and now.
// A return at exactly the due instant is not late; one second later is one day.
func DaysLate(due, now time.Time) int64 {
	late := now.Sub(due)
	if late <= 0 {
		return 0
	}
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

// Fine computes the fine in cents for a return at now.
func Fine(due, now time.Time, rateCents int64) int64 {
	return DaysLate(due, now) * rateCents
}

// Amount renders cents as currency units, e.g. 650 -> 6.5.
func Amount(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

// Percentage returns part/total*100 rounded to one decimal place.
func Percentage(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(1).
		InexactFloat64()
}
