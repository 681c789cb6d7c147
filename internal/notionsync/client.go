package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
)

// pageSize is the Notion maximum for database queries.
const pageSize = 100

// NotionClient talks to a single Notion database holding exported records.
type NotionClient struct {
	pages      notionapi.PageService
	databases  notionapi.DatabaseService
	databaseID notionapi.DatabaseID
}

var _ NotionService = (*NotionClient)(nil)

// NewNotionClient creates a client for databaseID using the API token.
func NewNotionClient(token, databaseID string) *NotionClient {
	client := notionapi.NewClient(notionapi.Token(token))
	return newNotionClient(client.Page, client.Database, databaseID)
}

func newNotionClient(pages notionapi.PageService, databases notionapi.DatabaseService, databaseID string) *NotionClient {
	return &NotionClient{
		pages:      pages,
		databases:  databases,
		databaseID: notionapi.DatabaseID(databaseID),
	}
}

// BatchPages pages through every database entry whose Batch property is
// batchID.
func (n *NotionClient) BatchPages(ctx context.Context, batchID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: notionapi.PropertyFilter{
				Property: PropBatch,
				RichText: &notionapi.TextFilterCondition{Equals: batchID},
			},
			PageSize:    pageSize,
			StartCursor: cursor,
		}

		resp, err := n.databases.Query(ctx, n.databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("BatchPages: querying database %s: %w", n.databaseID, err)
		}
		allPages = append(allPages, resp.Results...)

		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// CreateRecordPage adds a page to the database.
func (n *NotionClient) CreateRecordPage(ctx context.Context, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: n.databaseID,
		},
		Properties: properties,
	}

	page, err := n.pages.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreateRecordPage: %w", err)
	}
	return page, nil
}

// UpdateRecordPage overwrites the exported properties of a page.
func (n *NotionClient) UpdateRecordPage(ctx context.Context, pageID string, properties notionapi.Properties) error {
	_, err := n.pages.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: properties})
	if err != nil {
		return fmt.Errorf("UpdateRecordPage: %w", err)
	}
	return nil
}

// ArchivePage archives a page. Notion has no hard delete through the API.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	_, err := n.pages.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true})
	if err != nil {
		return fmt.Errorf("ArchivePage: %w", err)
	}
	return nil
}
