// Package bigquery implements store.Repository on a BigQuery dataset.
//
// Every write goes through DML so that rows are immediately visible to
// DELETE and UPDATE; the streaming inserter would leave them in the
// streaming buffer. Multi-statement writes run as one script inside
// BEGIN TRANSACTION / COMMIT TRANSACTION.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/store"
)

// Dataset names the project and dataset that hold the tables.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the quoted, fully qualified name of a table.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// Repository is the BigQuery implementation of store.Repository. It holds
// a shared client to avoid creating a new connection for each operation.
type Repository struct {
	client *bigquery.Client
	ds     Dataset
}

// NewRepository creates a client for projectID and returns a repository on
// datasetID.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{
		client: client,
		ds:     Dataset{ProjectID: projectID, DatasetID: datasetID},
	}, nil
}

// NewRepositoryWithClient returns a repository that uses an existing client.
func NewRepositoryWithClient(client *bigquery.Client, ds Dataset) *Repository {
	return &Repository{client: client, ds: ds}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// CreateBatch delegates to InsertBatchWithClient.
func (r *Repository) CreateBatch(ctx context.Context, batch *domain.ImportBatch) error {
	row, err := toBatchRow(batch)
	if err != nil {
		return fmt.Errorf("CreateBatch: %w", err)
	}
	return InsertBatchWithClient(ctx, r.client, r.ds, row)
}

// GetBatch delegates to GetBatchWithClient.
func (r *Repository) GetBatch(ctx context.Context, id string) (*domain.ImportBatch, error) {
	row, err := GetBatchWithClient(ctx, r.client, r.ds, id)
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// ListBatches delegates to ListBatchesWithClient.
func (r *Repository) ListBatches(ctx context.Context) ([]*domain.ImportBatch, error) {
	rows, err := ListBatchesWithClient(ctx, r.client, r.ds)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.ImportBatch, 0, len(rows))
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListBatches: %w", err)
		}
		result = append(result, b)
	}
	return result, nil
}

// DeleteBatch delegates to DeleteBatchWithClient.
func (r *Repository) DeleteBatch(ctx context.Context, id string) error {
	return DeleteBatchWithClient(ctx, r.client, r.ds, id)
}

// ListRecords delegates to ListRecordsWithClient.
func (r *Repository) ListRecords(ctx context.Context, batchID string) ([]domain.TransactionRecord, error) {
	if _, err := GetBatchWithClient(ctx, r.client, r.ds, batchID); err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}
	return ListRecordsWithClient(ctx, r.client, r.ds, batchID)
}

// ReplaceRecords delegates to ReplaceRecordsWithClient.
func (r *Repository) ReplaceRecords(ctx context.Context, batch *domain.ImportBatch, records []domain.TransactionRecord) error {
	return ReplaceRecordsWithClient(ctx, r.client, r.ds, batch, records)
}

// AssignCategory delegates to AssignCategoryWithClient.
func (r *Repository) AssignCategory(ctx context.Context, recordIDs []string, categoryID string) error {
	return AssignCategoryWithClient(ctx, r.client, r.ds, recordIDs, categoryID)
}

// FindCategorized delegates to FindCategorizedWithClient.
func (r *Repository) FindCategorized(ctx context.Context, text string, limit int) ([]domain.TransactionRecord, error) {
	return FindCategorizedWithClient(ctx, r.client, r.ds, text, limit)
}

// ListCategories delegates to ListCategoriesWithClient.
func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := ListCategoriesWithClient(ctx, r.client, r.ds)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Category, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// SeedCategories delegates to SeedCategoriesWithClient.
func (r *Repository) SeedCategories(ctx context.Context, categories []domain.Category) error {
	return SeedCategoriesWithClient(ctx, r.client, r.ds, categories)
}

// Ensure Repository implements store.Repository interface.
var _ store.Repository = (*Repository)(nil)

// runQuery runs a DML statement or script and waits for it to finish.
func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
