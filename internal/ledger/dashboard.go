package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/domain"
)

// BatchOverview is one row of the dashboard.
type BatchOverview struct {
	Batch         *domain.ImportBatch `json:"batch"`
	Records       int                 `json:"records"`
	Uncategorized int                 `json:"uncategorized"`
	Total         decimal.Decimal     `json:"total"`
	Calculable    decimal.Decimal     `json:"calculable"`
	// Busy is set when the batch was being re-mapped and was not counted.
	Busy bool `json:"busy,omitempty"`
}

// Dashboard lists every batch, newest first, with overall totals.
type Dashboard struct {
	Batches       []BatchOverview `json:"batches"`
	Records       int             `json:"records"`
	Uncategorized int             `json:"uncategorized"`
	Total         decimal.Decimal `json:"total"`
	Calculable    decimal.Decimal `json:"calculable"`
}

// Dashboard builds the overview of every batch.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	batches, err := s.repo.ListBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("Dashboard: %w", err)
	}

	d := &Dashboard{
		Batches:    make([]BatchOverview, 0, len(batches)),
		Total:      decimal.Zero,
		Calculable: decimal.Zero,
	}
	for _, b := range batches {
		row := BatchOverview{Batch: b, Total: decimal.Zero, Calculable: decimal.Zero}

		records, err := s.Records(ctx, b.ID)
		switch {
		case errors.Is(err, ErrBatchBusy):
			row.Busy = true
		case err != nil:
			return nil, fmt.Errorf("Dashboard: %w", err)
		default:
			row.Records = len(records)
			row.Total, row.Calculable = domain.SumAmounts(records)
			for _, r := range records {
				if len(r.Categories) == 0 {
					row.Uncategorized++
				}
			}
		}

		d.Batches = append(d.Batches, row)
		d.Records += row.Records
		d.Uncategorized += row.Uncategorized
		d.Total = d.Total.Add(row.Total)
		d.Calculable = d.Calculable.Add(row.Calculable)
	}
	return d, nil
}
