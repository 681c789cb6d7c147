package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/mapping"
)

// BatchModel is the import_batches table.
type BatchModel struct {
	ID               string     `gorm:"primary_key;size:36" json:"id"`
	StoredFile       string     `gorm:"type:text;not null" json:"stored_file"`
	OriginalFilename string     `gorm:"size:255;not null" json:"original_filename"`
	Headers          string     `gorm:"type:text;not null" json:"headers"` // JSON array
	Mapping          string     `gorm:"type:text" json:"mapping"`          // JSON array
	IsMapped         bool       `gorm:"not null" json:"is_mapped"`
	TotalEntries     int        `gorm:"not null" json:"total_entries"`
	SkippedRows      int        `gorm:"not null" json:"skipped_rows"`
	CreatedAt        time.Time  `gorm:"not null;index" json:"created_at"`
	MappedAt         *time.Time `json:"mapped_at"`
}

// TableName sets the table name for gorm.
func (BatchModel) TableName() string { return "import_batches" }

// RecordModel is the transaction_records table. Position keeps the order the
// rows had in the CSV file.
type RecordModel struct {
	ID              string          `gorm:"primary_key;size:36" json:"id"`
	FileID          string          `gorm:"size:36;not null;index" json:"file_id"`
	Position        int             `gorm:"not null" json:"position"`
	TransactionDate time.Time       `gorm:"type:date;not null" json:"transaction_date"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	Description     string          `gorm:"type:text;not null" json:"description"`
	Recipient       *string         `gorm:"type:text" json:"recipient"`
	Type            *string         `gorm:"size:255" json:"type"`
	OriginalData    string          `gorm:"type:text" json:"original_data"` // JSON object
}

// TableName sets the table name for gorm.
func (RecordModel) TableName() string { return "transaction_records" }

// CategoryModel is the categories table.
type CategoryModel struct {
	ID                      string `gorm:"primary_key;size:36" json:"id"`
	Name                    string `gorm:"size:100;not null;unique_index" json:"name"`
	Color                   string `gorm:"size:16" json:"color"`
	ExcludeFromCalculations bool   `gorm:"not null" json:"exclude_from_calculations"`
}

// TableName sets the table name for gorm.
func (CategoryModel) TableName() string { return "categories" }

// RecordCategoryModel is the record/category association table.
type RecordCategoryModel struct {
	RecordID   string `gorm:"primary_key;size:36" json:"record_id"`
	CategoryID string `gorm:"primary_key;size:36;index" json:"category_id"`
	Position   int    `gorm:"not null" json:"position"`
}

// TableName sets the table name for gorm.
func (RecordCategoryModel) TableName() string { return "record_categories" }

// Models lists every table for AutoMigrate.
func Models() []interface{} {
	return []interface{}{&BatchModel{}, &RecordModel{}, &CategoryModel{}, &RecordCategoryModel{}}
}

func toBatchModel(b *domain.ImportBatch) (BatchModel, error) {
	headers, err := json.Marshal(b.Headers)
	if err != nil {
		return BatchModel{}, fmt.Errorf("encoding headers: %w", err)
	}
	m, err := json.Marshal(b.Mapping)
	if err != nil {
		return BatchModel{}, fmt.Errorf("encoding mapping: %w", err)
	}
	return BatchModel{
		ID:               b.ID,
		StoredFile:       b.StoredFile,
		OriginalFilename: b.OriginalFilename,
		Headers:          string(headers),
		Mapping:          string(m),
		IsMapped:         b.IsMapped,
		TotalEntries:     b.TotalEntries,
		SkippedRows:      b.SkippedRows,
		CreatedAt:        b.CreatedAt,
		MappedAt:         b.MappedAt,
	}, nil
}

func (m BatchModel) toDomain() (*domain.ImportBatch, error) {
	b := &domain.ImportBatch{
		ID:               m.ID,
		StoredFile:       m.StoredFile,
		OriginalFilename: m.OriginalFilename,
		IsMapped:         m.IsMapped,
		TotalEntries:     m.TotalEntries,
		SkippedRows:      m.SkippedRows,
		CreatedAt:        m.CreatedAt,
		MappedAt:         m.MappedAt,
	}
	if m.Headers != "" {
		if err := json.Unmarshal([]byte(m.Headers), &b.Headers); err != nil {
			return nil, fmt.Errorf("decoding headers of %s: %w", m.ID, err)
		}
	}
	if m.Mapping != "" {
		var cm mapping.ColumnMapping
		if err := json.Unmarshal([]byte(m.Mapping), &cm); err != nil {
			return nil, fmt.Errorf("decoding mapping of %s: %w", m.ID, err)
		}
		b.Mapping = cm
	}
	return b, nil
}

func toRecordModel(r domain.TransactionRecord, batchID string, position int) (RecordModel, error) {
	original, err := json.Marshal(r.OriginalData)
	if err != nil {
		return RecordModel{}, fmt.Errorf("encoding original data of %s: %w", r.ID, err)
	}
	return RecordModel{
		ID:              r.ID,
		FileID:          batchID,
		Position:        position,
		TransactionDate: r.TransactionDate.In(time.UTC),
		Amount:          r.Amount,
		Currency:        r.Currency,
		Description:     r.Description,
		Recipient:       r.Recipient,
		Type:            r.Type,
		OriginalData:    string(original),
	}, nil
}

func (m RecordModel) toDomain() (domain.TransactionRecord, error) {
	r := domain.TransactionRecord{
		ID:              m.ID,
		FileID:          m.FileID,
		TransactionDate: civil.DateOf(m.TransactionDate),
		Amount:          m.Amount,
		Currency:        m.Currency,
		Description:     m.Description,
		Recipient:       m.Recipient,
		Type:            m.Type,
	}
	if m.OriginalData != "" {
		if err := json.Unmarshal([]byte(m.OriginalData), &r.OriginalData); err != nil {
			return r, fmt.Errorf("decoding original data of %s: %w", m.ID, err)
		}
	}
	return r, nil
}

func (m CategoryModel) toDomain() domain.Category {
	return domain.Category{
		ID:                      m.ID,
		Name:                    m.Name,
		Color:                   m.Color,
		ExcludeFromCalculations: m.ExcludeFromCalculations,
	}
}
