package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/txgroup/internal/jobs"
	"github.com/dvloznov/txgroup/internal/mapping"
	"github.com/dvloznov/txgroup/internal/store"
)

// HandleJob is a jobs.JobHandler that runs remap jobs. Errors that a retry
// cannot fix are marked permanent.
func (s *Service) HandleJob(ctx context.Context, job jobs.Job) error {
	remap, ok := job.(*jobs.RemapBatchJob)
	if !ok {
		return jobs.Permanent(fmt.Errorf("HandleJob: unsupported job type %s", job.GetType()))
	}

	result, err := s.MapBatch(ctx, remap.BatchID, remap.Mapping)
	if err != nil {
		if isPermanent(err) {
			return jobs.Permanent(err)
		}
		return err
	}

	remap.Records = result.Records
	remap.Skipped = result.Skipped
	remap.Failed = len(result.Failed)
	return nil
}

func isPermanent(err error) bool {
	for _, target := range []error{
		mapping.ErrMappingIncomplete,
		mapping.ErrDuplicateField,
		mapping.ErrUnknownField,
		mapping.ErrUnknownHeader,
		store.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
