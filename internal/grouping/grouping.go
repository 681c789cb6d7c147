// Package grouping clusters a batch's records into groups of likely the same
// recurring transaction.
package grouping

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/similarity"
)

// DefaultThreshold is the description similarity a record must exceed to
// join a group.
const DefaultThreshold = 80.0

// SimilarityGroup is a main record and the records clustered with it.
// TotalAmount is the raw sum of every member; CalculableAmount applies the
// exclusion policy.
type SimilarityGroup struct {
	Main             domain.TransactionRecord   `json:"main"`
	Similar          []domain.TransactionRecord `json:"similar"`
	TotalAmount      decimal.Decimal            `json:"total_amount"`
	CalculableAmount decimal.Decimal            `json:"calculable_amount"`
}

// Records returns the main record followed by the similar ones.
func (g SimilarityGroup) Records() []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, 0, 1+len(g.Similar))
	out = append(out, g.Main)
	return append(out, g.Similar...)
}

// RecordIDs returns the IDs of every member, main first.
func (g SimilarityGroup) RecordIDs() []string {
	ids := make([]string, 0, 1+len(g.Similar))
	ids = append(ids, g.Main.ID)
	for _, r := range g.Similar {
		ids = append(ids, r.ID)
	}
	return ids
}

// Size is the number of records in the group.
func (g SimilarityGroup) Size() int {
	return 1 + len(g.Similar)
}

// TypeGroup holds the similarity groups of one transaction type.
type TypeGroup struct {
	Type             string            `json:"type"`
	Groups           []SimilarityGroup `json:"groups"`
	TotalAmount      decimal.Decimal   `json:"total_amount"`
	CalculableAmount decimal.Decimal   `json:"calculable_amount"`
}

// Engine groups records. Use New for the default threshold and scorer.
type Engine struct {
	Threshold float64
	Score     similarity.Func
}

// New returns an Engine with the given threshold, or DefaultThreshold when
// threshold is not positive, scoring with similarity.Score.
func New(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{Threshold: threshold, Score: similarity.Score}
}

// Group partitions records with the default engine.
func Group(records []domain.TransactionRecord) []TypeGroup {
	return New(DefaultThreshold).Group(records)
}

// Group partitions records into type buckets and, within each bucket, into
// similarity groups.
//
// Records are ordered by transaction date first (stable), then bucketed by
// type in order of first appearance. Inside a bucket a single greedy pass
// takes the first unconsumed record as main and pulls in every later
// unconsumed record with the same recipient and a description score above
// the threshold. Groups and buckets are then ordered by descending absolute
// total, keeping arrival order on ties.
//
// The input slice is not modified. Every record ends up in exactly one group.
func (e *Engine) Group(records []domain.TransactionRecord) []TypeGroup {
	if len(records) == 0 {
		return nil
	}
	score := e.Score
	if score == nil {
		score = similarity.Score
	}

	sorted := make([]domain.TransactionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TransactionDate.Before(sorted[j].TransactionDate)
	})

	var order []string
	buckets := make(map[string][]domain.TransactionRecord)
	for _, r := range sorted {
		t := r.TypeOrDefault()
		if _, ok := buckets[t]; !ok {
			order = append(order, t)
		}
		buckets[t] = append(buckets[t], r)
	}

	result := make([]TypeGroup, 0, len(order))
	for _, t := range order {
		bucket := buckets[t]
		total, calculable := domain.SumAmounts(bucket)
		result = append(result, TypeGroup{
			Type:             t,
			Groups:           e.cluster(bucket, score),
			TotalAmount:      total,
			CalculableAmount: calculable,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TotalAmount.Abs().GreaterThan(result[j].TotalAmount.Abs())
	})

	return result
}

func (e *Engine) cluster(bucket []domain.TransactionRecord, score similarity.Func) []SimilarityGroup {
	consumed := make([]bool, len(bucket))
	var groups []SimilarityGroup

	for i, main := range bucket {
		if consumed[i] {
			continue
		}
		consumed[i] = true

		g := SimilarityGroup{Main: main}
		for j := i + 1; j < len(bucket); j++ {
			if consumed[j] {
				continue
			}
			c := bucket[j]
			if c.RecipientOrEmpty() != main.RecipientOrEmpty() {
				continue
			}
			if score(main.Description, c.Description) > e.Threshold {
				g.Similar = append(g.Similar, c)
				consumed[j] = true
			}
		}

		g.TotalAmount, g.CalculableAmount = domain.SumAmounts(g.Records())
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].TotalAmount.Abs().GreaterThan(groups[j].TotalAmount.Abs())
	})

	return groups
}
