// Package reconcile carries category assignments across a destructive
// re-import of a batch.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/logger"
)

// DefaultFallbackLimit bounds the corpus lookup for records without an exact
// fingerprint match.
const DefaultFallbackLimit = 5

// CategoryFinder looks up categorized records across every batch.
type CategoryFinder interface {
	// FindCategorized returns at most limit records that have at least one
	// category and whose description contains text or is contained in it,
	// ignoring case.
	FindCategorized(ctx context.Context, text string, limit int) ([]domain.TransactionRecord, error)
}

// Snapshot maps a fingerprint to the category set of every record that had
// it, in record order. An uncategorized record contributes an empty set.
type Snapshot map[string][][]domain.Category

// Stats counts how each record was handled by Restore.
type Stats struct {
	Exact     int `json:"exact"`
	Fallback  int `json:"fallback"`
	Unmatched int `json:"unmatched"`
}

// Fingerprint identifies a record by its description and amount.
func Fingerprint(description string, amount decimal.Decimal) string {
	sum := sha256.Sum256([]byte(description + "\x1f" + amount.StringFixed(2)))
	return hex.EncodeToString(sum[:])
}

// Take captures the categories of records before they are deleted. Every
// record is captured, categorized or not.
func Take(records []domain.TransactionRecord) Snapshot {
	snap := make(Snapshot)
	for _, r := range records {
		fp := Fingerprint(r.Description, r.Amount)
		snap[fp] = append(snap[fp], union(nil, r.Categories))
	}
	return snap
}

// Restore attaches categories to freshly ingested records in place.
//
// Records whose fingerprint is in snap take its category sets in order, so
// re-reading an unchanged file gives every record back the set it had, the
// empty set included. Once a fingerprint's sets are used up, further records
// with it get their union. Any other record with a non-empty description gets
// the union of the categories of the records finder returns for it. Records
// that already carry categories are left alone.
func Restore(ctx context.Context, records []domain.TransactionRecord, snap Snapshot, finder CategoryFinder, limit int) (Stats, error) {
	log := logger.FromContext(ctx)
	if limit <= 0 {
		limit = DefaultFallbackLimit
	}

	var stats Stats
	used := make(map[string]int)
	for i := range records {
		r := &records[i]
		if len(r.Categories) > 0 {
			continue
		}

		fp := Fingerprint(r.Description, r.Amount)
		if sets, ok := snap[fp]; ok && len(sets) > 0 {
			var cats []domain.Category
			if n := used[fp]; n < len(sets) {
				cats = union(nil, sets[n])
				used[fp] = n + 1
			} else {
				for _, set := range sets {
					cats = union(cats, set)
				}
			}
			r.Categories = cats
			stats.Exact++
			continue
		}

		if finder == nil || strings.TrimSpace(r.Description) == "" {
			stats.Unmatched++
			continue
		}

		matches, err := finder.FindCategorized(ctx, r.Description, limit)
		if err != nil {
			return stats, fmt.Errorf("Restore: finding categorized records for %q: %w", r.Description, err)
		}

		var cats []domain.Category
		for _, m := range matches {
			cats = union(cats, m.Categories)
		}
		if len(cats) == 0 {
			stats.Unmatched++
			continue
		}
		r.Categories = cats
		stats.Fallback++
	}

	log.Debug().
		Int("exact", stats.Exact).
		Int("fallback", stats.Fallback).
		Int("unmatched", stats.Unmatched).
		Msg("Restored categories")

	return stats, nil
}

func union(into, add []domain.Category) []domain.Category {
	for _, c := range add {
		dup := false
		for _, have := range into {
			if have.ID == c.ID {
				dup = true
				break
			}
		}
		if !dup {
			into = append(into, c)
		}
	}
	return into
}
