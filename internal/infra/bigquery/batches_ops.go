package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/txgroup/internal/store"
)

const batchColumns = `
	batch_id,
	stored_file,
	original_filename,
	headers,
	mapping,
	is_mapped,
	total_entries,
	skipped_rows,
	created_ts,
	mapped_ts`

// InsertBatchWithClient inserts one import batch.
func InsertBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, row *BatchRow) error {
	q := client.Query(`
		INSERT INTO ` + ds.Table(batchesTable) + ` (` + batchColumns + `)
		VALUES (@batch_id, @stored_file, @original_filename, @headers, @mapping,
			@is_mapped, @total_entries, @skipped_rows, @created_ts, @mapped_ts)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: row.BatchID},
		{Name: "stored_file", Value: row.StoredFile},
		{Name: "original_filename", Value: row.OriginalFilename},
		{Name: "headers", Value: row.Headers},
		{Name: "mapping", Value: row.Mapping},
		{Name: "is_mapped", Value: row.IsMapped},
		{Name: "total_entries", Value: row.TotalEntries},
		{Name: "skipped_rows", Value: row.SkippedRows},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "mapped_ts", Value: row.MappedTS},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("InsertBatch: %w", err)
	}
	return nil
}

// GetBatchWithClient returns one batch or store.ErrNotFound.
func GetBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batchID string) (*BatchRow, error) {
	q := client.Query(`
		SELECT` + batchColumns + `
		FROM ` + ds.Table(batchesTable) + `
		WHERE batch_id = @batch_id
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batchID},
	}

	rows, err := readBatches(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("GetBatch: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("GetBatch: batch %s: %w", batchID, store.ErrNotFound)
	}
	return rows[0], nil
}

// ListBatchesWithClient returns every batch, newest first.
func ListBatchesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]*BatchRow, error) {
	q := client.Query(`
		SELECT` + batchColumns + `
		FROM ` + ds.Table(batchesTable) + `
		ORDER BY created_ts DESC
	`)

	rows, err := readBatches(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListBatches: %w", err)
	}
	return rows, nil
}

// DeleteBatchWithClient removes a batch with its records and their category
// links in one transaction.
func DeleteBatchWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batchID string) error {
	if _, err := GetBatchWithClient(ctx, client, ds, batchID); err != nil {
		return fmt.Errorf("DeleteBatch: %w", err)
	}

	q := client.Query(`
		BEGIN TRANSACTION;
		` + deleteRecordsSQL(ds) + `
		DELETE FROM ` + ds.Table(batchesTable) + ` WHERE batch_id = @batch_id;
		COMMIT TRANSACTION;
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batchID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("DeleteBatch: %w", err)
	}
	return nil
}

// deleteRecordsSQL drops the records of @batch_id and their category links.
func deleteRecordsSQL(ds Dataset) string {
	return `
		DELETE FROM ` + ds.Table(recordCategoriesTable) + `
		WHERE record_id IN (
			SELECT record_id FROM ` + ds.Table(recordsTable) + ` WHERE batch_id = @batch_id
		);
		DELETE FROM ` + ds.Table(recordsTable) + ` WHERE batch_id = @batch_id;`
}

func readBatches(ctx context.Context, q *bigquery.Query) ([]*BatchRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []*BatchRow
	for {
		var r BatchRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
