// Package ledger is the application service behind the API and the CLI:
// it registers CSV files as import batches, maps them into transaction
// records, and serves grouped and summarized views of a batch.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/grouping"
	"github.com/dvloznov/txgroup/internal/infra/locker"
	"github.com/dvloznov/txgroup/internal/ingest"
	"github.com/dvloznov/txgroup/internal/logger"
	"github.com/dvloznov/txgroup/internal/mapping"
	"github.com/dvloznov/txgroup/internal/pipeline"
	"github.com/dvloznov/txgroup/internal/reconcile"
	"github.com/dvloznov/txgroup/internal/source"
	"github.com/dvloznov/txgroup/internal/store"
	"github.com/dvloznov/txgroup/internal/summary"
)

// ErrBatchBusy is returned when a batch is being re-mapped, or when a
// re-map is requested while the batch is being read.
var ErrBatchBusy = errors.New("batch is busy")

// Options tunes a Service. Zero values take the package defaults.
type Options struct {
	DefaultCurrency string
	Threshold       float64
	FallbackLimit   int
	// Now is used for timestamps; time.Now when nil.
	Now func() time.Time
}

// Service coordinates the store, the file source and the grouping engine.
// It is safe for concurrent use.
type Service struct {
	repo          store.Repository
	opener        source.Opener
	locks         *locker.Locker
	resolver      *mapping.Resolver
	engine        *grouping.Engine
	fallbackLimit int
	now           func() time.Time
}

// New returns a Service over repo that reads stored files through opener.
func New(repo store.Repository, opener source.Opener, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limit := opts.FallbackLimit
	if limit <= 0 {
		limit = reconcile.DefaultFallbackLimit
	}
	return &Service{
		repo:          repo,
		opener:        opener,
		locks:         locker.New(),
		resolver:      mapping.NewResolver(opts.DefaultCurrency),
		engine:        grouping.New(opts.Threshold),
		fallbackLimit: limit,
		now:           now,
	}
}

// MapResult reports the outcome of MapBatch.
type MapResult struct {
	Batch   *domain.ImportBatch `json:"batch"`
	Records int                 `json:"records"`
	Skipped int                 `json:"skipped"`
	Failed  []ingest.RowError   `json:"failed"`
	Restore reconcile.Stats     `json:"restore"`
}

// RegisterBatch reads the header row of the file at uri and stores a new,
// unmapped batch for it. An empty filename is derived from uri.
func (s *Service) RegisterBatch(ctx context.Context, uri, filename string) (*domain.ImportBatch, error) {
	log := logger.FromContext(ctx)

	rc, err := s.opener.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("RegisterBatch: %w: %v", ingest.ErrSourceUnavailable, err)
	}
	defer rc.Close()

	headers, err := ingest.ReadHeaders(rc)
	if err != nil {
		return nil, fmt.Errorf("RegisterBatch: %w", err)
	}

	if filename == "" {
		filename = source.Filename(uri)
	}
	batch := &domain.ImportBatch{
		ID:               uuid.NewString(),
		StoredFile:       uri,
		OriginalFilename: filename,
		Headers:          headers,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("RegisterBatch: %w", err)
	}

	log.Info().Str("batch_id", batch.ID).Str("file", filename).Int("headers", len(headers)).Msg("Registered import batch")
	return batch, nil
}

// MapBatch applies m to a batch, replacing all of its records. It holds the
// batch exclusively; ErrBatchBusy is returned when that is not possible.
// On any failure the batch and its records are left untouched.
func (s *Service) MapBatch(ctx context.Context, batchID string, m mapping.ColumnMapping) (*MapResult, error) {
	log := logger.FromContext(ctx).With().Str("batch_id", batchID).Logger()
	ctx = logger.WithContext(ctx, log)

	if !s.locks.TryLock(batchID) {
		return nil, fmt.Errorf("MapBatch: %s: %w", batchID, ErrBatchBusy)
	}
	defer s.locks.Unlock(batchID)

	state := &pipeline.PipelineState{BatchID: batchID, Mapping: m}
	p := pipeline.NewRemapPipeline(pipeline.Deps{
		Repo:          s.repo,
		Opener:        s.opener,
		Resolver:      s.resolver,
		FallbackLimit: s.fallbackLimit,
		Now:           s.now,
	})
	if err := p.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("MapBatch: %w", err)
	}

	result := &MapResult{
		Batch:   state.Batch,
		Records: len(state.Result.Records),
		Skipped: state.Result.Skipped,
		Failed:  state.Result.Failed,
		Restore: state.Restore,
	}
	log.Info().
		Int("records", result.Records).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failed)).
		Int("restored", result.Restore.Exact+result.Restore.Fallback).
		Msg("Mapped import batch")
	return result, nil
}

// GetBatch returns one batch.
func (s *Service) GetBatch(ctx context.Context, batchID string) (*domain.ImportBatch, error) {
	return s.repo.GetBatch(ctx, batchID)
}

// ListBatches returns every batch, newest first.
func (s *Service) ListBatches(ctx context.Context) ([]*domain.ImportBatch, error) {
	return s.repo.ListBatches(ctx)
}

// DeleteBatch removes a batch with its records.
func (s *Service) DeleteBatch(ctx context.Context, batchID string) error {
	if !s.locks.TryLock(batchID) {
		return fmt.Errorf("DeleteBatch: %s: %w", batchID, ErrBatchBusy)
	}
	defer s.locks.Unlock(batchID)

	if err := s.repo.DeleteBatch(ctx, batchID); err != nil {
		return fmt.Errorf("DeleteBatch: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("batch_id", batchID).Msg("Deleted import batch")
	return nil
}

// Records returns the records of a batch.
func (s *Service) Records(ctx context.Context, batchID string) ([]domain.TransactionRecord, error) {
	var records []domain.TransactionRecord
	err := s.withReadLock(batchID, func() error {
		var err error
		records, err = s.repo.ListRecords(ctx, batchID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Records: %w", err)
	}
	return records, nil
}

// Groups returns the similarity groups of a batch.
func (s *Service) Groups(ctx context.Context, batchID string) ([]grouping.TypeGroup, error) {
	records, err := s.Records(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("Groups: %w", err)
	}
	return s.engine.Group(records), nil
}

// Summary returns the per-category breakdown of a batch.
func (s *Service) Summary(ctx context.Context, batchID string) (summary.Summary, error) {
	records, err := s.Records(ctx, batchID)
	if err != nil {
		return summary.Summary{}, fmt.Errorf("Summary: %w", err)
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return summary.Summary{}, fmt.Errorf("Summary: %w", err)
	}
	return summary.Categories(records, categories), nil
}

// AssignCategory gives every listed record of a batch the single category
// categoryID, replacing what they had. Assigning a whole similarity group
// is the same call with the group's record IDs. Every ID must belong to the
// batch.
func (s *Service) AssignCategory(ctx context.Context, batchID string, recordIDs []string, categoryID string) error {
	err := s.withReadLock(batchID, func() error {
		records, err := s.repo.ListRecords(ctx, batchID)
		if err != nil {
			return err
		}
		inBatch := make(map[string]bool, len(records))
		for _, r := range records {
			inBatch[r.ID] = true
		}
		for _, id := range recordIDs {
			if !inBatch[id] {
				return fmt.Errorf("record %s in batch %s: %w", id, batchID, store.ErrNotFound)
			}
		}
		return s.repo.AssignCategory(ctx, recordIDs, categoryID)
	})
	if err != nil {
		return fmt.Errorf("AssignCategory: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("batch_id", batchID).
		Str("category_id", categoryID).
		Int("records", len(recordIDs)).
		Msg("Assigned category")
	return nil
}

// ListCategories returns every category.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

// SeedCategories inserts the categories that do not exist yet.
func (s *Service) SeedCategories(ctx context.Context, categories []domain.Category) error {
	if err := s.repo.SeedCategories(ctx, categories); err != nil {
		return fmt.Errorf("SeedCategories: %w", err)
	}
	return nil
}

// withReadLock runs fn holding a shared lock on batchID.
func (s *Service) withReadLock(batchID string, fn func() error) error {
	if !s.locks.TryRLock(batchID) {
		return fmt.Errorf("%s: %w", batchID, ErrBatchBusy)
	}
	defer s.locks.RUnlock(batchID)
	return fn()
}
