package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/logger"
	"github.com/dvloznov/txgroup/internal/store"
)

const recordColumns = `
	record_id,
	batch_id,
	position,
	transaction_date,
	amount,
	currency,
	description,
	recipient,
	type,
	original_data`

// ListRecordsWithClient returns the records of a batch by date, then CSV
// order, with categories attached.
func ListRecordsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batchID string) ([]domain.TransactionRecord, error) {
	q := client.Query(`
		SELECT` + recordColumns + `
		FROM ` + ds.Table(recordsTable) + `
		WHERE batch_id = @batch_id
		ORDER BY transaction_date, position
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batchID},
	}

	rows, err := readRecords(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}
	records, err := hydrate(ctx, client, ds, rows)
	if err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}
	return records, nil
}

// ReplaceRecordsWithClient swaps the records of a batch and stores its new
// mapping state in a single transaction script.
func ReplaceRecordsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, batch *domain.ImportBatch, records []domain.TransactionRecord) error {
	log := logger.FromContext(ctx)

	if _, err := GetBatchWithClient(ctx, client, ds, batch.ID); err != nil {
		return fmt.Errorf("ReplaceRecords: %w", err)
	}
	if err := checkCategories(ctx, client, ds, records); err != nil {
		return fmt.Errorf("ReplaceRecords: %w", err)
	}

	row, err := toBatchRow(batch)
	if err != nil {
		return fmt.Errorf("ReplaceRecords: %w", err)
	}

	params := make([]recordParam, 0, len(records))
	links := []RecordCategoryRow{}
	for i, r := range records {
		p, err := toRecordParam(r, batch.ID, i)
		if err != nil {
			return fmt.Errorf("ReplaceRecords: %w", err)
		}
		params = append(params, p)
		for j, c := range r.Categories {
			links = append(links, RecordCategoryRow{RecordID: r.ID, CategoryID: c.ID, Position: int64(j)})
		}
	}

	mappedAt := time.Now().UTC()
	if batch.MappedAt != nil {
		mappedAt = *batch.MappedAt
	}

	q := client.Query(`
		BEGIN TRANSACTION;
		` + deleteRecordsSQL(ds) + `
		INSERT INTO ` + ds.Table(recordsTable) + ` (` + recordColumns + `)
		SELECT
			r.record_id, r.batch_id, r.position, r.transaction_date, r.amount,
			r.currency, r.description, NULLIF(r.recipient, ''), NULLIF(r.type, ''),
			r.original_data
		FROM UNNEST(@records) AS r;
		INSERT INTO ` + ds.Table(recordCategoriesTable) + ` (record_id, category_id, position)
		SELECT l.record_id, l.category_id, l.position
		FROM UNNEST(@links) AS l;
		UPDATE ` + ds.Table(batchesTable) + `
		SET mapping = @mapping,
			is_mapped = @is_mapped,
			total_entries = @total_entries,
			skipped_rows = @skipped_rows,
			mapped_ts = @mapped_ts
		WHERE batch_id = @batch_id;
		COMMIT TRANSACTION;
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "batch_id", Value: batch.ID},
		{Name: "records", Value: params},
		{Name: "links", Value: links},
		{Name: "mapping", Value: row.Mapping},
		{Name: "is_mapped", Value: row.IsMapped},
		{Name: "total_entries", Value: row.TotalEntries},
		{Name: "skipped_rows", Value: row.SkippedRows},
		{Name: "mapped_ts", Value: mappedAt},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("ReplaceRecords: %w", err)
	}

	log.Debug().Str("batch_id", batch.ID).Int("records", len(records)).Int("links", len(links)).Msg("Replaced records in BigQuery")
	return nil
}

// AssignCategoryWithClient replaces the categories of each record with
// categoryID.
func AssignCategoryWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, recordIDs []string, categoryID string) error {
	known, err := categoryIDs(ctx, client, ds, []string{categoryID})
	if err != nil {
		return fmt.Errorf("AssignCategory: %w", err)
	}
	if len(known) == 0 {
		return fmt.Errorf("AssignCategory: category %s: %w", categoryID, store.ErrNotFound)
	}

	ids := unique(recordIDs)
	if len(ids) == 0 {
		return nil
	}

	q := client.Query(`
		SELECT COUNT(*) AS n
		FROM ` + ds.Table(recordsTable) + `
		WHERE record_id IN UNNEST(@ids)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}
	it, err := q.Read(ctx)
	if err != nil {
		return fmt.Errorf("AssignCategory: query read: %w", err)
	}
	var count struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&count); err != nil {
		return fmt.Errorf("AssignCategory: iter next: %w", err)
	}
	if int(count.N) != len(ids) {
		return fmt.Errorf("AssignCategory: %d of %d records: %w", len(ids)-int(count.N), len(ids), store.ErrNotFound)
	}

	q = client.Query(`
		BEGIN TRANSACTION;
		DELETE FROM ` + ds.Table(recordCategoriesTable) + `
		WHERE record_id IN UNNEST(@ids);
		INSERT INTO ` + ds.Table(recordCategoriesTable) + ` (record_id, category_id, position)
		SELECT id, @category_id, 0 FROM UNNEST(@ids) AS id;
		COMMIT TRANSACTION;
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
		{Name: "category_id", Value: categoryID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("AssignCategory: %w", err)
	}
	return nil
}

// FindCategorizedWithClient returns up to limit categorized records from any
// batch whose description contains text or is contained in it, ignoring
// case.
func FindCategorizedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, text string, limit int) ([]domain.TransactionRecord, error) {
	needle := store.NormalizeText(text)
	if needle == "" {
		return nil, nil
	}

	sql := `
		SELECT` + recordColumns + `
		FROM ` + ds.Table(recordsTable) + ` AS t
		WHERE TRIM(t.description, @ws) <> ''
		  AND EXISTS (
			SELECT 1 FROM ` + ds.Table(recordCategoriesTable) + ` AS rc
			WHERE rc.record_id = t.record_id
		  )
		  AND (
			STRPOS(LOWER(TRIM(t.description, @ws)), @text) > 0
			OR STRPOS(@text, LOWER(TRIM(t.description, @ws))) > 0
		  )
		ORDER BY t.batch_id, t.position
	`
	params := []bigquery.QueryParameter{
		{Name: "text", Value: needle},
		{Name: "ws", Value: store.Whitespace},
	}
	if limit > 0 {
		sql += ` LIMIT @limit`
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: limit})
	}

	q := client.Query(sql)
	q.Parameters = params

	rows, err := readRecords(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("FindCategorized: %w", err)
	}
	records, err := hydrate(ctx, client, ds, rows)
	if err != nil {
		return nil, fmt.Errorf("FindCategorized: %w", err)
	}
	return records, nil
}

// hydrate converts rows and attaches their categories in link order.
func hydrate(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*RecordRow) ([]domain.TransactionRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.RecordID
	}

	q := client.Query(`
		SELECT record_id, category_id, position
		FROM ` + ds.Table(recordCategoriesTable) + `
		WHERE record_id IN UNNEST(@ids)
		ORDER BY record_id, position
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("links query read: %w", err)
	}
	var links []RecordCategoryRow
	for {
		var l RecordCategoryRow
		err := it.Next(&l)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("links iter next: %w", err)
		}
		links = append(links, l)
	}

	cats, err := ListCategoriesWithClient(ctx, client, ds)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Category, len(cats))
	for _, c := range cats {
		byID[c.CategoryID] = c.toDomain()
	}
	byRecord := make(map[string][]domain.Category)
	for _, l := range links {
		if c, ok := byID[l.CategoryID]; ok {
			byRecord[l.RecordID] = append(byRecord[l.RecordID], c)
		}
	}

	result := make([]domain.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		r, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		r.Categories = byRecord[row.RecordID]
		result = append(result, r)
	}
	return result, nil
}

func checkCategories(ctx context.Context, client *bigquery.Client, ds Dataset, records []domain.TransactionRecord) error {
	var wanted []string
	for _, r := range records {
		for _, c := range r.Categories {
			wanted = append(wanted, c.ID)
		}
	}
	wanted = unique(wanted)
	if len(wanted) == 0 {
		return nil
	}

	known, err := categoryIDs(ctx, client, ds, wanted)
	if err != nil {
		return err
	}
	if len(known) != len(wanted) {
		return fmt.Errorf("%d unknown categories: %w", len(wanted)-len(known), store.ErrNotFound)
	}
	return nil
}

func readRecords(ctx context.Context, q *bigquery.Query) ([]*RecordRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []*RecordRow
	for {
		var r RecordRow
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

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
