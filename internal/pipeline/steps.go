// Package pipeline runs the steps that (re-)map an import batch: validate
// the mapping, read the stored CSV again, carry categories over from the
// records being replaced and swap the records atomically.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/ingest"
	"github.com/dvloznov/txgroup/internal/logger"
	"github.com/dvloznov/txgroup/internal/mapping"
	"github.com/dvloznov/txgroup/internal/reconcile"
	"github.com/dvloznov/txgroup/internal/source"
	"github.com/dvloznov/txgroup/internal/store"
)

// PipelineStep represents a single step in the remap pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	BatchID string
	Mapping mapping.ColumnMapping

	Batch    *domain.ImportBatch
	Previous []domain.TransactionRecord
	Snapshot reconcile.Snapshot
	Source   io.ReadCloser
	Result   *ingest.Result
	Restore  reconcile.Stats
}

// closeSource releases the CSV stream if a step left it open.
func (s *PipelineState) closeSource() {
	if s.Source != nil {
		_ = s.Source.Close()
		s.Source = nil
	}
}

// Step 1: LoadBatchStep loads the batch and the records about to be replaced.
type LoadBatchStep struct {
	Repo store.Repository
}

func (s *LoadBatchStep) Execute(ctx context.Context, state *PipelineState) error {
	batch, err := s.Repo.GetBatch(ctx, state.BatchID)
	if err != nil {
		return err
	}
	previous, err := s.Repo.ListRecords(ctx, state.BatchID)
	if err != nil {
		return err
	}
	state.Batch = batch
	state.Previous = previous
	return nil
}

// Step 2: ValidateMappingStep checks the mapping against the batch headers.
type ValidateMappingStep struct{}

func (s *ValidateMappingStep) Execute(ctx context.Context, state *PipelineState) error {
	return state.Mapping.Validate(state.Batch.Headers)
}

// Step 3: OpenSourceStep opens the stored CSV file.
type OpenSourceStep struct {
	Opener source.Opener
}

func (s *OpenSourceStep) Execute(ctx context.Context, state *PipelineState) error {
	rc, err := s.Opener.Open(ctx, state.Batch.StoredFile)
	if err != nil {
		return fmt.Errorf("%w: %v", ingest.ErrSourceUnavailable, err)
	}
	state.Source = rc
	return nil
}

// Step 4: SnapshotCategoriesStep remembers the categories of the previous
// records before they are deleted.
type SnapshotCategoriesStep struct{}

func (s *SnapshotCategoriesStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Snapshot = reconcile.Take(state.Previous)
	return nil
}

// Step 5: IngestStep parses the CSV into new records.
type IngestStep struct {
	Resolver *mapping.Resolver
}

func (s *IngestStep) Execute(ctx context.Context, state *PipelineState) error {
	defer state.closeSource()

	result, err := ingest.Ingest(ctx, state.Source, state.Mapping, state.BatchID, s.Resolver)
	if err != nil {
		return err
	}
	state.Result = result
	return nil
}

// Step 6: RestoreCategoriesStep carries categories over to the new records.
type RestoreCategoriesStep struct {
	Finder reconcile.CategoryFinder
	Limit  int
}

func (s *RestoreCategoriesStep) Execute(ctx context.Context, state *PipelineState) error {
	stats, err := reconcile.Restore(ctx, state.Result.Records, state.Snapshot, s.Finder, s.Limit)
	if err != nil {
		return err
	}
	state.Restore = stats
	return nil
}

// Step 7: PersistStep swaps the records and marks the batch as mapped.
type PersistStep struct {
	Repo store.Repository
	Now  func() time.Time
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	mappedAt := now().UTC()

	batch := *state.Batch
	batch.Mapping = state.Mapping
	batch.IsMapped = true
	batch.TotalEntries = len(state.Result.Records)
	batch.SkippedRows = state.Result.Skipped
	batch.MappedAt = &mappedAt

	if err := s.Repo.ReplaceRecords(ctx, &batch, state.Result.Records); err != nil {
		return err
	}
	state.Batch = &batch
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially. A source opened by a
// step is closed when Execute returns.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	defer state.closeSource()

	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			log.Debug().Err(err).Int("step", i+1).Str("batch_id", state.BatchID).Msg("Pipeline step failed")
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Deps are the collaborators of the remap pipeline.
type Deps struct {
	Repo          store.Repository
	Opener        source.Opener
	Resolver      *mapping.Resolver
	FallbackLimit int
	Now           func() time.Time
}

// NewRemapPipeline creates the standard 7-step pipeline for mapping a batch.
// Nothing is written before the last step, so a failure leaves the batch as
// it was.
func NewRemapPipeline(deps Deps) *Pipeline {
	return NewPipeline(
		&LoadBatchStep{Repo: deps.Repo},
		&ValidateMappingStep{},
		&OpenSourceStep{Opener: deps.Opener},
		&SnapshotCategoriesStep{},
		&IngestStep{Resolver: deps.Resolver},
		&RestoreCategoriesStep{Finder: deps.Repo, Limit: deps.FallbackLimit},
		&PersistStep{Repo: deps.Repo, Now: deps.Now},
	)
}
