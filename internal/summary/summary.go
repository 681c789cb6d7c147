// Package summary aggregates calculable amounts per category.
package summary

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/domain"
)

// UncategorizedName labels the bucket of records without categories.
const UncategorizedName = "Uncategorized"

// CategoryTotal is the calculable sum of the records carrying one category.
type CategoryTotal struct {
	CategoryID string          `json:"category_id,omitempty"`
	Name       string          `json:"name"`
	Color      string          `json:"color,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int             `json:"count"`
}

// Summary is the per-category breakdown of a set of records.
type Summary struct {
	Categories []CategoryTotal `json:"categories"`
	// Total is the calculable sum of every record.
	Total decimal.Decimal `json:"total"`
	// RawTotal ignores the exclusion policy.
	RawTotal decimal.Decimal `json:"raw_total"`
}

// Categories builds the category breakdown of records.
//
// Excluded records are left out entirely. A record with several categories
// counts toward each of them. Categories summing to zero are dropped and the
// rest are ordered by descending absolute amount, ties following the order of
// known. The uncategorized bucket always comes last.
func Categories(records []domain.TransactionRecord, known []domain.Category) Summary {
	index := make(map[string]int, len(known))
	totals := make([]CategoryTotal, 0, len(known))
	for _, c := range known {
		if _, dup := index[c.ID]; dup {
			continue
		}
		index[c.ID] = len(totals)
		totals = append(totals, CategoryTotal{CategoryID: c.ID, Name: c.Name, Color: c.Color, Amount: decimal.Zero})
	}

	uncategorized := CategoryTotal{Name: UncategorizedName, Amount: decimal.Zero}
	s := Summary{Total: decimal.Zero, RawTotal: decimal.Zero}

	for _, r := range records {
		s.RawTotal = s.RawTotal.Add(r.Amount)
		if !domain.IsCalculable(r) {
			continue
		}
		s.Total = s.Total.Add(r.Amount)

		if len(r.Categories) == 0 {
			uncategorized.Amount = uncategorized.Amount.Add(r.Amount)
			uncategorized.Count++
			continue
		}
		for _, c := range r.Categories {
			i, ok := index[c.ID]
			if !ok {
				i = len(totals)
				index[c.ID] = i
				totals = append(totals, CategoryTotal{CategoryID: c.ID, Name: c.Name, Color: c.Color, Amount: decimal.Zero})
			}
			totals[i].Amount = totals[i].Amount.Add(r.Amount)
			totals[i].Count++
		}
	}

	for _, t := range totals {
		if !t.Amount.IsZero() {
			s.Categories = append(s.Categories, t)
		}
	}
	sort.SliceStable(s.Categories, func(i, j int) bool {
		return s.Categories[i].Amount.Abs().GreaterThan(s.Categories[j].Amount.Abs())
	})
	if !uncategorized.Amount.IsZero() {
		s.Categories = append(s.Categories, uncategorized)
	}

	return s
}
