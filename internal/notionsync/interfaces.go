package notionsync

import (
	"context"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/txgroup/internal/domain"
)

// NotionService is what a batch export needs from Notion. An implementation
// is bound to one database.
type NotionService interface {
	// BatchPages returns every page whose Batch property equals batchID.
	BatchPages(ctx context.Context, batchID string) ([]notionapi.Page, error)

	CreateRecordPage(ctx context.Context, properties notionapi.Properties) (*notionapi.Page, error)
	UpdateRecordPage(ctx context.Context, pageID string, properties notionapi.Properties) error

	// ArchivePage archives a page.
	ArchivePage(ctx context.Context, pageID string) error
}

// RecordSource is the part of the store an export reads from.
type RecordSource interface {
	GetBatch(ctx context.Context, id string) (*domain.ImportBatch, error)
	ListRecords(ctx context.Context, batchID string) ([]domain.TransactionRecord, error)
}
