package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/txgroup/internal/jobs"
)

// waitForStatus polls the store until the job reaches want or the deadline
// passes.
func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.RemapBatchJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s did not reach %s, last state: %+v", jobID, want, job)
	return nil
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(Config{Workers: 1}, store)
	defer q.Close()

	err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.RemapBatchJob)
		j.Records = 42
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	job := &jobs.RemapBatchJob{BatchID: "b1"}
	if err := q.PublishRemapBatch(ctx, job); err != nil {
		t.Fatalf("PublishRemapBatch() error: %v", err)
	}
	if job.JobID == "" || job.MaxRetries != DefaultMaxRetries {
		t.Errorf("publish did not fill defaults: %+v", job)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.Records != 42 || done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("completed job = %+v", done)
	}
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(Config{Workers: 1, MaxRetries: 2, Backoff: time.Millisecond}, store)
	defer q.Close()

	var calls int32
	err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("source unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	job := &jobs.RemapBatchJob{BatchID: "b1"}
	if err := q.PublishRemapBatch(ctx, job); err != nil {
		t.Fatalf("PublishRemapBatch() error: %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", done.RetryCount)
	}
	if done.Error != "" {
		t.Errorf("Error = %q, want cleared", done.Error)
	}
}

func TestQueue_PermanentErrorIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(Config{Workers: 1, MaxRetries: 3, Backoff: time.Millisecond}, store)
	defer q.Close()

	var calls int32
	err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return jobs.Permanent(errors.New("mapping incomplete"))
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	job := &jobs.RemapBatchJob{BatchID: "b1"}
	if err := q.PublishRemapBatch(ctx, job); err != nil {
		t.Fatalf("PublishRemapBatch() error: %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.RetryCount != 0 || failed.Error != "mapping incomplete" {
		t.Errorf("failed job = %+v", failed)
	}

	time.Sleep(20 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestQueue_ExhaustsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(Config{Workers: 1, MaxRetries: 2, Backoff: time.Millisecond}, store)
	defer q.Close()

	err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("still broken")
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	job := &jobs.RemapBatchJob{BatchID: "b1"}
	if err := q.PublishRemapBatch(ctx, job); err != nil {
		t.Fatalf("PublishRemapBatch() error: %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", failed.RetryCount)
	}
}

func TestQueue_ClosedQueueRejectsWork(t *testing.T) {
	q := NewQueue(Config{}, nil)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if err := q.PublishRemapBatch(context.Background(), &jobs.RemapBatchJob{}); err == nil {
		t.Error("PublishRemapBatch() on closed queue succeeded")
	}
	if err := q.Start(context.Background(), nil); err == nil {
		t.Error("Start() on closed queue succeeded")
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}
}
