package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/store"
	"github.com/dvloznov/txgroup/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "txgroup.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return s
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		return openTemp(t)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txgroup.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := s.SeedCategories(ctx, []domain.Category{{Name: "Food"}}); err != nil {
		t.Fatalf("SeedCategories() error: %v", err)
	}
	cats, err := s.ListCategories(ctx)
	if err != nil || len(cats) != 1 {
		t.Fatalf("ListCategories() = %v, %v", cats, err)
	}
	b := storetest.Batch("b1", 0)
	if err := s.CreateBatch(ctx, b); err != nil {
		t.Fatalf("CreateBatch() error: %v", err)
	}
	records := []domain.TransactionRecord{
		storetest.Record("r1", "b1", "2024-01-01", "-12.34", "Bakery", cats[0]),
	}
	if err := s.ReplaceRecords(ctx, b, records); err != nil {
		t.Fatalf("ReplaceRecords() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s.Close()

	got, err := s.ListRecords(ctx, "b1")
	if err != nil {
		t.Fatalf("ListRecords() error: %v", err)
	}
	if len(got) != 1 || got[0].Amount.String() != "-12.34" || len(got[0].Categories) != 1 || got[0].Categories[0].Name != "Food" {
		t.Errorf("ListRecords() after reopen = %+v", got)
	}
}

func TestStore_ReplaceRecordsRollsBackOnUnknownCategory(t *testing.T) {
	s := openTemp(t)
	defer s.Close()
	ctx := context.Background()

	b := storetest.Batch("b1", 0)
	if err := s.CreateBatch(ctx, b); err != nil {
		t.Fatalf("CreateBatch() error: %v", err)
	}
	if err := s.ReplaceRecords(ctx, b, []domain.TransactionRecord{
		storetest.Record("r1", "b1", "2024-01-01", "-1", "Kept"),
	}); err != nil {
		t.Fatalf("ReplaceRecords() error: %v", err)
	}

	bad := []domain.TransactionRecord{
		storetest.Record("r2", "b1", "2024-01-02", "-2", "New", domain.Category{ID: "ghost"}),
	}
	if err := s.ReplaceRecords(ctx, b, bad); err == nil {
		t.Fatal("ReplaceRecords() with unknown category succeeded")
	}

	got, err := s.ListRecords(ctx, "b1")
	if err != nil {
		t.Fatalf("ListRecords() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Errorf("records after failed replace = %+v, want the original r1", got)
	}
}
