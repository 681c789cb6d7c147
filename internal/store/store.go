// Package store defines the persistence contract for batches, records and
// categories. Implementations live in internal/store/inmemory and
// internal/infra/{bolt,bigquery,postgres}.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/dvloznov/txgroup/internal/domain"
)

// ErrNotFound is returned for a missing batch, record or category.
var ErrNotFound = errors.New("not found")

// BatchRepository stores import batches.
type BatchRepository interface {
	// CreateBatch persists a new batch.
	CreateBatch(ctx context.Context, batch *domain.ImportBatch) error

	// GetBatch returns the batch with the given ID or ErrNotFound.
	GetBatch(ctx context.Context, id string) (*domain.ImportBatch, error)

	// ListBatches returns every batch, newest first.
	ListBatches(ctx context.Context) ([]*domain.ImportBatch, error)

	// DeleteBatch removes a batch together with its records and their
	// category associations.
	DeleteBatch(ctx context.Context, id string) error
}

// RecordRepository stores transaction records and their categories.
type RecordRepository interface {
	// ListRecords returns the records of a batch ordered by transaction
	// date, then by the order they were stored, with categories attached.
	ListRecords(ctx context.Context, batchID string) ([]domain.TransactionRecord, error)

	// ReplaceRecords atomically swaps every record of batch for records and
	// saves the batch's mapping, flags and counters. Either everything is
	// written or nothing is.
	ReplaceRecords(ctx context.Context, batch *domain.ImportBatch, records []domain.TransactionRecord) error

	// AssignCategory replaces the categories of each record with the single
	// given category.
	AssignCategory(ctx context.Context, recordIDs []string, categoryID string) error

	// FindCategorized returns at most limit categorized records from any
	// batch whose description contains text or is contained in it, ignoring
	// case.
	FindCategorized(ctx context.Context, text string, limit int) ([]domain.TransactionRecord, error)
}

// CategoryRepository stores categories.
type CategoryRepository interface {
	// ListCategories returns every category ordered by name.
	ListCategories(ctx context.Context) ([]domain.Category, error)

	// SeedCategories inserts the categories whose name is not stored yet.
	SeedCategories(ctx context.Context, categories []domain.Category) error
}

// Repository is the full store used by the ledger service.
type Repository interface {
	BatchRepository
	RecordRepository
	CategoryRepository

	// Close releases the underlying connection.
	Close() error
}

// Whitespace is trimmed from both ends of a description before text
// matching. SQL backends pass the same set to their TRIM functions.
const Whitespace = " \t\n\r\v\f"

// NormalizeText trims Whitespace from s and lowercases it.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Trim(s, Whitespace))
}

// MatchesText reports whether description and text contain one another,
// ignoring case. An empty description never matches.
func MatchesText(description, text string) bool {
	d := NormalizeText(description)
	t := NormalizeText(text)
	if d == "" || t == "" {
		return false
	}
	return strings.Contains(d, t) || strings.Contains(t, d)
}
