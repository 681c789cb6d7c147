package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/ingest"
	"github.com/dvloznov/txgroup/internal/mapping"
	"github.com/dvloznov/txgroup/internal/store"
	"github.com/dvloznov/txgroup/internal/store/inmemory"
)

// MockOpener is a mock implementation of source.Opener for testing.
type MockOpener struct {
	OpenFunc func(ctx context.Context, uri string) (io.ReadCloser, error)
}

func (m *MockOpener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return m.OpenFunc(ctx, uri)
}

type trackingReader struct {
	io.Reader
	closed bool
}

func (r *trackingReader) Close() error {
	r.closed = true
	return nil
}

const bankCSV = `Data,Kwota,Opis
2024-01-03,-12.50,Coffee Shop 123
2024-01-01,-40.00,Grocery Store
broken,-1.00,Bad date
2024-01-02,-12.50
`

var bankMapping = mapping.ColumnMapping{
	{Header: "Data", Field: mapping.FieldDate},
	{Header: "Kwota", Field: mapping.FieldAmount},
	{Header: "Opis", Field: mapping.FieldDescription},
}

func newFixture(t *testing.T, csv string) (*inmemory.Store, *trackingReader, *Pipeline) {
	t.Helper()
	repo := inmemory.NewStore()
	ctx := context.Background()

	err := repo.CreateBatch(ctx, &domain.ImportBatch{
		ID:         "b1",
		StoredFile: "gs://bucket/b1.csv",
		Headers:    []string{"Data", "Kwota", "Opis"},
		CreatedAt:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateBatch() error: %v", err)
	}

	reader := &trackingReader{Reader: strings.NewReader(csv)}
	p := NewRemapPipeline(Deps{
		Repo: repo,
		Opener: &MockOpener{OpenFunc: func(ctx context.Context, uri string) (io.ReadCloser, error) {
			if uri != "gs://bucket/b1.csv" {
				t.Errorf("opened %q", uri)
			}
			return reader, nil
		}},
		Resolver: mapping.NewResolver("PLN"),
		Now:      func() time.Time { return time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC) },
	})
	return repo, reader, p
}

func TestRemapPipeline_MapsBatch(t *testing.T) {
	repo, reader, p := newFixture(t, bankCSV)
	ctx := context.Background()

	state := &PipelineState{BatchID: "b1", Mapping: bankMapping}
	if err := p.Execute(ctx, state); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if !reader.closed {
		t.Error("source was not closed")
	}
	if len(state.Result.Records) != 2 || state.Result.Skipped != 1 || len(state.Result.Failed) != 1 {
		t.Errorf("result = %d records, %d skipped, %d failed", len(state.Result.Records), state.Result.Skipped, len(state.Result.Failed))
	}

	batch, err := repo.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBatch() error: %v", err)
	}
	if !batch.IsMapped || batch.TotalEntries != 2 || batch.SkippedRows != 1 || batch.MappedAt == nil {
		t.Errorf("batch = %+v", batch)
	}

	records, _ := repo.ListRecords(ctx, "b1")
	if len(records) != 2 || records[0].Description != "Grocery Store" {
		t.Errorf("records = %+v", records)
	}
}

func TestRemapPipeline_RestoresCategories(t *testing.T) {
	repo, _, p := newFixture(t, bankCSV)
	ctx := context.Background()

	if err := repo.SeedCategories(ctx, []domain.Category{{Name: "Food"}}); err != nil {
		t.Fatal(err)
	}
	cats, _ := repo.ListCategories(ctx)

	if err := p.Execute(ctx, &PipelineState{BatchID: "b1", Mapping: bankMapping}); err != nil {
		t.Fatalf("first Execute() error: %v", err)
	}
	records, _ := repo.ListRecords(ctx, "b1")
	var coffeeID string
	for _, r := range records {
		if r.Description == "Coffee Shop 123" {
			coffeeID = r.ID
		}
	}
	if err := repo.AssignCategory(ctx, []string{coffeeID}, cats[0].ID); err != nil {
		t.Fatal(err)
	}

	_, _, again := newFixtureWithRepo(t, repo, bankCSV)
	state := &PipelineState{BatchID: "b1", Mapping: bankMapping}
	if err := again.Execute(ctx, state); err != nil {
		t.Fatalf("second Execute() error: %v", err)
	}
	if state.Restore.Exact != 2 || state.Restore.Fallback != 0 {
		t.Errorf("Restore = %+v, want both records matched exactly", state.Restore)
	}

	records, _ = repo.ListRecords(ctx, "b1")
	for _, r := range records {
		if r.ID == coffeeID {
			t.Error("record IDs were reused across a remap")
		}
		if r.Description == "Coffee Shop 123" && !r.HasCategory(cats[0].ID) {
			t.Errorf("category not carried over: %+v", r)
		}
		if r.Description == "Grocery Store" && len(r.Categories) != 0 {
			t.Errorf("uncategorized record picked up %v", r.Categories)
		}
	}
}

// newFixtureWithRepo builds a pipeline over an existing store.
func newFixtureWithRepo(t *testing.T, repo *inmemory.Store, csv string) (*inmemory.Store, *trackingReader, *Pipeline) {
	t.Helper()
	reader := &trackingReader{Reader: strings.NewReader(csv)}
	p := NewRemapPipeline(Deps{
		Repo: repo,
		Opener: &MockOpener{OpenFunc: func(ctx context.Context, uri string) (io.ReadCloser, error) {
			return reader, nil
		}},
		Resolver: mapping.NewResolver("PLN"),
	})
	return repo, reader, p
}

func TestRemapPipeline_Failures(t *testing.T) {
	tests := []struct {
		name    string
		batchID string
		mapping mapping.ColumnMapping
		openErr error
		wantErr error
		opened  bool
	}{
		{
			name:    "unknown batch",
			batchID: "missing",
			mapping: bankMapping,
			wantErr: store.ErrNotFound,
		},
		{
			name:    "incomplete mapping",
			batchID: "b1",
			mapping: bankMapping[:2],
			wantErr: mapping.ErrMappingIncomplete,
		},
		{
			name:    "header not in batch",
			batchID: "b1",
			mapping: mapping.ColumnMapping{
				{Header: "Data", Field: mapping.FieldDate},
				{Header: "Kwota", Field: mapping.FieldAmount},
				{Header: "Title", Field: mapping.FieldDescription},
			},
			wantErr: mapping.ErrUnknownHeader,
		},
		{
			name:    "source unavailable",
			batchID: "b1",
			mapping: bankMapping,
			openErr: errors.New("bucket gone"),
			wantErr: ingest.ErrSourceUnavailable,
			opened:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := inmemory.NewStore()
			ctx := context.Background()
			_ = repo.CreateBatch(ctx, &domain.ImportBatch{ID: "b1", StoredFile: "x.csv", Headers: []string{"Data", "Kwota", "Opis"}})

			opened := false
			p := NewRemapPipeline(Deps{
				Repo: repo,
				Opener: &MockOpener{OpenFunc: func(ctx context.Context, uri string) (io.ReadCloser, error) {
					opened = true
					if tt.openErr != nil {
						return nil, tt.openErr
					}
					return io.NopCloser(strings.NewReader(bankCSV)), nil
				}},
				Resolver: mapping.NewResolver(""),
			})

			err := p.Execute(ctx, &PipelineState{BatchID: tt.batchID, Mapping: tt.mapping})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if opened != tt.opened {
				t.Errorf("source opened = %v, want %v", opened, tt.opened)
			}

			batch, _ := repo.GetBatch(ctx, "b1")
			if batch.IsMapped {
				t.Error("batch marked mapped after a failure")
			}
		})
	}
}
