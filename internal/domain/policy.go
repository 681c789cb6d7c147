package domain

import (
	"github.com/shopspring/decimal"
)

// Status is the review state of a record.
type Status string

const (
	StatusExcluded      Status = "excluded"
	StatusUncategorized Status = "uncategorized"
	StatusCategorized   Status = "categorized"
)

// IsCalculable reports whether r counts toward totals. A single excluded
// category is enough to take it out.
func IsCalculable(r TransactionRecord) bool {
	for _, c := range r.Categories {
		if c.ExcludeFromCalculations {
			return false
		}
	}
	return true
}

// CalculableAmount is r.Amount, or zero when r is not calculable.
func CalculableAmount(r TransactionRecord) decimal.Decimal {
	if !IsCalculable(r) {
		return decimal.Zero
	}
	return r.Amount
}

// IsCalculable is a method form of IsCalculable.
func (r TransactionRecord) IsCalculable() bool {
	return IsCalculable(r)
}

// CalculableAmount is a method form of CalculableAmount.
func (r TransactionRecord) CalculableAmount() decimal.Decimal {
	return CalculableAmount(r)
}

// StatusOf classifies r. Exclusion wins over having no categories.
func StatusOf(r TransactionRecord) Status {
	switch {
	case !IsCalculable(r):
		return StatusExcluded
	case len(r.Categories) == 0:
		return StatusUncategorized
	default:
		return StatusCategorized
	}
}

// SumAmounts returns the raw and calculable totals of records.
func SumAmounts(records []TransactionRecord) (total, calculable decimal.Decimal) {
	total, calculable = decimal.Zero, decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
		calculable = calculable.Add(CalculableAmount(r))
	}
	return total, calculable
}
