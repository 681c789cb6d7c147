package notionsync

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
)

type mockPages struct {
	CreateFunc func(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdateFunc func(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

func (m *mockPages) Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return m.CreateFunc(ctx, req)
}

func (m *mockPages) Get(ctx context.Context, id notionapi.PageID) (*notionapi.Page, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPages) Update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return m.UpdateFunc(ctx, id, req)
}

type mockDatabases struct {
	QueryFunc func(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

func (m *mockDatabases) Create(ctx context.Context, req *notionapi.DatabaseCreateRequest) (*notionapi.Database, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDatabases) Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return m.QueryFunc(ctx, id, req)
}

func (m *mockDatabases) Get(ctx context.Context, id notionapi.DatabaseID) (*notionapi.Database, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDatabases) Update(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseUpdateRequest) (*notionapi.Database, error) {
	return nil, errors.New("not implemented")
}

func TestNotionClient_BatchPages(t *testing.T) {
	var cursors []notionapi.Cursor
	databases := &mockDatabases{
		QueryFunc: func(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			if id != "db" {
				t.Errorf("queried database %q", id)
			}
			filter, ok := req.Filter.(notionapi.PropertyFilter)
			if !ok || filter.Property != PropBatch || filter.RichText == nil || filter.RichText.Equals != "b1" {
				t.Errorf("filter = %+v", req.Filter)
			}
			if req.PageSize != pageSize {
				t.Errorf("PageSize = %d", req.PageSize)
			}
			cursors = append(cursors, req.StartCursor)
			if req.StartCursor == "" {
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{recordPage("p1", "r1")},
					HasMore:    true,
					NextCursor: "next",
				}, nil
			}
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{recordPage("p2", "r2")}}, nil
		},
	}

	client := newNotionClient(&mockPages{}, databases, "db")
	pages, err := client.BatchPages(context.Background(), "b1")
	if err != nil {
		t.Fatalf("BatchPages() error: %v", err)
	}
	if len(pages) != 2 || pages[0].ID != "p1" || pages[1].ID != "p2" {
		t.Errorf("pages = %+v", pages)
	}
	if len(cursors) != 2 || cursors[1] != "next" {
		t.Errorf("cursors = %v", cursors)
	}
}

func TestNotionClient_BatchPagesError(t *testing.T) {
	wantErr := errors.New("unauthorized")
	databases := &mockDatabases{
		QueryFunc: func(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return nil, wantErr
		},
	}

	_, err := newNotionClient(&mockPages{}, databases, "db").BatchPages(context.Background(), "b1")
	if !errors.Is(err, wantErr) {
		t.Errorf("BatchPages() error = %v, want %v", err, wantErr)
	}
}

func TestNotionClient_PageWrites(t *testing.T) {
	var updates []*notionapi.PageUpdateRequest
	pages := &mockPages{
		CreateFunc: func(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
			if req.Parent.Type != notionapi.ParentTypeDatabaseID || req.Parent.DatabaseID != "db" {
				t.Errorf("parent = %+v", req.Parent)
			}
			return &notionapi.Page{ID: "p-new"}, nil
		},
		UpdateFunc: func(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
			if id != "p1" {
				t.Errorf("updated page %q", id)
			}
			updates = append(updates, req)
			return &notionapi.Page{ID: notionapi.ObjectID(id)}, nil
		},
	}
	client := newNotionClient(pages, &mockDatabases{}, "db")
	ctx := context.Background()

	page, err := client.CreateRecordPage(ctx, RecordToNotionProperties(testRecords()[0]))
	if err != nil || page.ID != "p-new" {
		t.Fatalf("CreateRecordPage() = %v, %v", page, err)
	}
	if err := client.UpdateRecordPage(ctx, "p1", notionapi.Properties{}); err != nil {
		t.Fatalf("UpdateRecordPage() error: %v", err)
	}
	if err := client.ArchivePage(ctx, "p1"); err != nil {
		t.Fatalf("ArchivePage() error: %v", err)
	}

	if len(updates) != 2 || updates[0].Archived || !updates[1].Archived {
		t.Errorf("updates = %+v, want a property update then an archive", updates)
	}
}
