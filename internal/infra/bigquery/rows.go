package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/mapping"
)

// Table names inside the dataset.
const (
	batchesTable          = "import_batches"
	recordsTable          = "transaction_records"
	categoriesTable       = "categories"
	recordCategoriesTable = "record_categories"
)

type BatchRow struct {
	BatchID          string                 `bigquery:"batch_id"`          // REQUIRED
	StoredFile       string                 `bigquery:"stored_file"`       // REQUIRED
	OriginalFilename string                 `bigquery:"original_filename"` // REQUIRED
	Headers          []string               `bigquery:"headers"`           // REPEATED STRING
	Mapping          string                 `bigquery:"mapping"`           // JSON array as STRING
	IsMapped         bool                   `bigquery:"is_mapped"`
	TotalEntries     int64                  `bigquery:"total_entries"`
	SkippedRows      int64                  `bigquery:"skipped_rows"`
	CreatedTS        time.Time              `bigquery:"created_ts"` // REQUIRED
	MappedTS         bigquery.NullTimestamp `bigquery:"mapped_ts"`  // NULLABLE
}

type RecordRow struct {
	RecordID        string              `bigquery:"record_id"`        // REQUIRED
	BatchID         string              `bigquery:"batch_id"`         // REQUIRED
	Position        int64               `bigquery:"position"`         // REQUIRED, CSV order
	TransactionDate civil.Date          `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat            `bigquery:"amount"`           // REQUIRED NUMERIC
	Currency        string              `bigquery:"currency"`         // REQUIRED STRING
	Description     string              `bigquery:"description"`      // REQUIRED STRING
	Recipient       bigquery.NullString `bigquery:"recipient"`        // NULLABLE
	Type            bigquery.NullString `bigquery:"type"`             // NULLABLE
	OriginalData    string              `bigquery:"original_data"`    // JSON object as STRING
}

type CategoryRow struct {
	CategoryID              string `bigquery:"category_id"`
	Name                    string `bigquery:"name"`
	Color                   string `bigquery:"color"`
	ExcludeFromCalculations bool   `bigquery:"exclude_from_calculations"`
}

type RecordCategoryRow struct {
	RecordID   string `bigquery:"record_id"`
	CategoryID string `bigquery:"category_id"`
	Position   int64  `bigquery:"position"`
}

// recordParam is one element of the @records array parameter. Optional
// columns travel as empty strings and are turned into NULL by the query.
type recordParam struct {
	RecordID        string     `bigquery:"record_id"`
	BatchID         string     `bigquery:"batch_id"`
	Position        int64      `bigquery:"position"`
	TransactionDate civil.Date `bigquery:"transaction_date"`
	Amount          *big.Rat   `bigquery:"amount"`
	Currency        string     `bigquery:"currency"`
	Description     string     `bigquery:"description"`
	Recipient       string     `bigquery:"recipient"`
	Type            string     `bigquery:"type"`
	OriginalData    string     `bigquery:"original_data"`
}

func toBatchRow(b *domain.ImportBatch) (*BatchRow, error) {
	m, err := json.Marshal(b.Mapping)
	if err != nil {
		return nil, fmt.Errorf("encoding mapping: %w", err)
	}
	row := &BatchRow{
		BatchID:          b.ID,
		StoredFile:       b.StoredFile,
		OriginalFilename: b.OriginalFilename,
		Headers:          b.Headers,
		Mapping:          string(m),
		IsMapped:         b.IsMapped,
		TotalEntries:     int64(b.TotalEntries),
		SkippedRows:      int64(b.SkippedRows),
		CreatedTS:        b.CreatedAt,
	}
	if row.Headers == nil {
		row.Headers = []string{}
	}
	if b.MappedAt != nil {
		row.MappedTS = bigquery.NullTimestamp{Timestamp: *b.MappedAt, Valid: true}
	}
	return row, nil
}

func (r *BatchRow) toDomain() (*domain.ImportBatch, error) {
	b := &domain.ImportBatch{
		ID:               r.BatchID,
		StoredFile:       r.StoredFile,
		OriginalFilename: r.OriginalFilename,
		Headers:          r.Headers,
		IsMapped:         r.IsMapped,
		TotalEntries:     int(r.TotalEntries),
		SkippedRows:      int(r.SkippedRows),
		CreatedAt:        r.CreatedTS,
	}
	if r.MappedTS.Valid {
		t := r.MappedTS.Timestamp
		b.MappedAt = &t
	}
	if r.Mapping != "" && r.Mapping != "null" {
		var cm mapping.ColumnMapping
		if err := json.Unmarshal([]byte(r.Mapping), &cm); err != nil {
			return nil, fmt.Errorf("decoding mapping of %s: %w", r.BatchID, err)
		}
		b.Mapping = cm
	}
	return b, nil
}

func toRecordParam(r domain.TransactionRecord, batchID string, position int) (recordParam, error) {
	original, err := json.Marshal(r.OriginalData)
	if err != nil {
		return recordParam{}, fmt.Errorf("encoding original data of %s: %w", r.ID, err)
	}
	p := recordParam{
		RecordID:        r.ID,
		BatchID:         batchID,
		Position:        int64(position),
		TransactionDate: r.TransactionDate,
		Amount:          r.Amount.Rat(),
		Currency:        r.Currency,
		Description:     r.Description,
		OriginalData:    string(original),
	}
	if r.Recipient != nil {
		p.Recipient = *r.Recipient
	}
	if r.Type != nil {
		p.Type = *r.Type
	}
	return p, nil
}

func (r *RecordRow) toDomain() (domain.TransactionRecord, error) {
	rec := domain.TransactionRecord{
		ID:              r.RecordID,
		FileID:          r.BatchID,
		TransactionDate: r.TransactionDate,
		Amount:          ratToDecimal(r.Amount),
		Currency:        r.Currency,
		Description:     r.Description,
	}
	if r.Recipient.Valid {
		s := r.Recipient.StringVal
		rec.Recipient = &s
	}
	if r.Type.Valid {
		s := r.Type.StringVal
		rec.Type = &s
	}
	if r.OriginalData != "" {
		if err := json.Unmarshal([]byte(r.OriginalData), &rec.OriginalData); err != nil {
			return rec, fmt.Errorf("decoding original data of %s: %w", r.RecordID, err)
		}
	}
	return rec, nil
}

func (r CategoryRow) toDomain() domain.Category {
	return domain.Category{
		ID:                      r.CategoryID,
		Name:                    r.Name,
		Color:                   r.Color,
		ExcludeFromCalculations: r.ExcludeFromCalculations,
	}
}

// ratToDecimal converts a NUMERIC column to a 2 dp decimal.
func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(r.FloatString(2))
	if err != nil {
		return decimal.Zero
	}
	return d
}
