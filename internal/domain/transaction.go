package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/mapping"
)

// UncategorizedType is the type bucket for records without a type.
const UncategorizedType = "uncategorized"

// TransactionRecord is one normalized CSV row owned by an import batch.
type TransactionRecord struct {
	ID              string          `json:"id"`
	FileID          string          `json:"file_id"`
	TransactionDate civil.Date      `json:"transaction_date"`
	Amount          decimal.Decimal `json:"amount"` // signed, sign kept from the source
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	Recipient       *string         `json:"recipient,omitempty"`
	Type            *string         `json:"type,omitempty"`
	OriginalData    mapping.RawRow  `json:"original_data"`
	Categories      []Category      `json:"categories"`
}

// RecipientOrEmpty returns the recipient, treating nil as "".
func (r TransactionRecord) RecipientOrEmpty() string {
	if r.Recipient == nil {
		return ""
	}
	return *r.Recipient
}

// TypeOrDefault returns the record type or UncategorizedType when it has none.
func (r TransactionRecord) TypeOrDefault() string {
	if r.Type == nil || *r.Type == "" {
		return UncategorizedType
	}
	return *r.Type
}

// HasCategory reports whether categoryID is assigned to the record.
func (r TransactionRecord) HasCategory(categoryID string) bool {
	for _, c := range r.Categories {
		if c.ID == categoryID {
			return true
		}
	}
	return false
}

// Category labels records. Excluded categories zero the calculable amount of
// every record they are attached to.
type Category struct {
	ID                      string `json:"id"`
	Name                    string `json:"name"`
	Color                   string `json:"color"`
	ExcludeFromCalculations bool   `json:"exclude_from_calculations"`
}

// ImportBatch is one uploaded CSV file and the mapping applied to it.
type ImportBatch struct {
	ID               string                `json:"id"`
	StoredFile       string                `json:"stored_file"` // gs:// URI or local path
	OriginalFilename string                `json:"original_filename"`
	Headers          []string              `json:"headers"`
	Mapping          mapping.ColumnMapping `json:"mapping"`
	IsMapped         bool                  `json:"is_mapped"`
	TotalEntries     int                   `json:"total_entries"`
	SkippedRows      int                   `json:"skipped_rows"`
	CreatedAt        time.Time             `json:"created_at"`
	MappedAt         *time.Time            `json:"mapped_at,omitempty"`
}
