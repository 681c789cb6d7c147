// Package storetest holds behaviour tests shared by every store.Repository
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/mapping"
	"github.com/dvloznov/txgroup/internal/store"
)

// Factory returns a fresh, empty repository for one test.
type Factory func(t *testing.T) store.Repository

// Run exercises repo against the store.Repository contract.
func Run(t *testing.T, newRepo Factory) {
	t.Run("Batches", func(t *testing.T) { testBatches(t, newRepo(t)) })
	t.Run("SeedCategories", func(t *testing.T) { testSeedCategories(t, newRepo(t)) })
	t.Run("ReplaceRecords", func(t *testing.T) { testReplaceRecords(t, newRepo(t)) })
	t.Run("AssignCategory", func(t *testing.T) { testAssignCategory(t, newRepo(t)) })
	t.Run("FindCategorized", func(t *testing.T) { testFindCategorized(t, newRepo(t)) })
	t.Run("DeleteBatchCascades", func(t *testing.T) { testDeleteBatch(t, newRepo(t)) })
}

// Batch returns a batch fixture created at the given offset from a fixed time.
func Batch(id string, offset time.Duration) *domain.ImportBatch {
	return &domain.ImportBatch{
		ID:               id,
		StoredFile:       "file:///tmp/" + id + ".csv",
		OriginalFilename: id + ".csv",
		Headers:          []string{"Date", "Amount", "Title"},
		CreatedAt:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset),
	}
}

// Record returns a record fixture.
func Record(id, batchID, date, amount, desc string, cats ...domain.Category) domain.TransactionRecord {
	d, err := civil.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return domain.TransactionRecord{
		ID:              id,
		FileID:          batchID,
		TransactionDate: d,
		Amount:          decimal.RequireFromString(amount),
		Currency:        "PLN",
		Description:     desc,
		OriginalData:    mapping.RawRow{{Header: "Title", Value: desc}},
		Categories:      cats,
	}
}

var testMapping = mapping.ColumnMapping{
	{Header: "Date", Field: mapping.FieldDate},
	{Header: "Amount", Field: mapping.FieldAmount},
	{Header: "Title", Field: mapping.FieldDescription},
}

func seed(t *testing.T, repo store.Repository) map[string]domain.Category {
	t.Helper()
	ctx := context.Background()
	err := repo.SeedCategories(ctx, []domain.Category{
		{Name: "Food", Color: "#8BC34A"},
		{Name: "Hobby", Color: "#673AB7"},
		{Name: "Exclude", Color: "#FF4444", ExcludeFromCalculations: true},
	})
	if err != nil {
		t.Fatalf("SeedCategories() error: %v", err)
	}
	cats, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error: %v", err)
	}
	byName := make(map[string]domain.Category, len(cats))
	for _, c := range cats {
		byName[c.Name] = c
	}
	return byName
}

func mustCreate(t *testing.T, repo store.Repository, b *domain.ImportBatch) {
	t.Helper()
	if err := repo.CreateBatch(context.Background(), b); err != nil {
		t.Fatalf("CreateBatch(%s) error: %v", b.ID, err)
	}
}

func ids(records []domain.TransactionRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testBatches(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	defer repo.Close()

	mustCreate(t, repo, Batch("old", 0))
	mustCreate(t, repo, Batch("new", time.Hour))

	got, err := repo.GetBatch(ctx, "old")
	if err != nil {
		t.Fatalf("GetBatch() error: %v", err)
	}
	if got.OriginalFilename != "old.csv" || !equalStrings(got.Headers, []string{"Date", "Amount", "Title"}) || got.IsMapped {
		t.Errorf("GetBatch() = %+v", got)
	}

	if _, err := repo.GetBatch(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetBatch(missing) error = %v, want ErrNotFound", err)
	}

	list, err := repo.ListBatches(ctx)
	if err != nil {
		t.Fatalf("ListBatches() error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Errorf("ListBatches() order = %v, want [new old]", list)
	}

	if err := repo.DeleteBatch(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeleteBatch(missing) error = %v, want ErrNotFound", err)
	}
}

func testSeedCategories(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	defer repo.Close()

	first := seed(t, repo)
	second := seed(t, repo)

	cats, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error: %v", err)
	}
	if len(cats) != 3 {
		t.Fatalf("len(ListCategories()) = %d, want 3 after seeding twice", len(cats))
	}
	if cats[0].Name != "Exclude" || cats[1].Name != "Food" || cats[2].Name != "Hobby" {
		t.Errorf("ListCategories() not ordered by name: %v", cats)
	}
	if !first["Exclude"].ExcludeFromCalculations {
		t.Error("Exclude category lost its exclusion flag")
	}
	if first["Food"].ID == "" || first["Food"].ID != second["Food"].ID {
		t.Errorf("category IDs unstable: %q vs %q", first["Food"].ID, second["Food"].ID)
	}
}

func testReplaceRecords(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	defer repo.Close()
	cats := seed(t, repo)

	b := Batch("b1", 0)
	mustCreate(t, repo, b)

	b.Mapping = testMapping
	b.IsMapped = true
	b.TotalEntries = 3
	b.SkippedRows = 1
	mappedAt := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	b.MappedAt = &mappedAt

	records := []domain.TransactionRecord{
		Record("r1", "b1", "2024-01-05", "-10.50", "Bakery", cats["Food"]),
		Record("r2", "b1", "2024-01-01", "-43.00", "Netflix", cats["Hobby"], cats["Exclude"]),
		Record("r3", "b1", "2024-01-05", "100.00", "Refund"),
	}
	if err := repo.ReplaceRecords(ctx, b, records); err != nil {
		t.Fatalf("ReplaceRecords() error: %v", err)
	}

	got, err := repo.ListRecords(ctx, "b1")
	if err != nil {
		t.Fatalf("ListRecords() error: %v", err)
	}
	if want := []string{"r2", "r1", "r3"}; !equalStrings(ids(got), want) {
		t.Fatalf("ListRecords() order = %v, want %v", ids(got), want)
	}
	if !got[1].Amount.Equal(decimal.RequireFromString("-10.5")) || got[1].Description != "Bakery" || got[1].Currency != "PLN" {
		t.Errorf("record r1 = %+v", got[1])
	}
	if len(got[0].Categories) != 2 || got[0].IsCalculable() {
		t.Errorf("record r2 categories = %v, want Hobby and Exclude", got[0].Categories)
	}
	if len(got[2].Categories) != 0 {
		t.Errorf("record r3 categories = %v, want none", got[2].Categories)
	}
	if v, ok := got[1].OriginalData.Get("Title"); !ok || v != "Bakery" {
		t.Errorf("OriginalData = %v", got[1].OriginalData)
	}

	stored, err := repo.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBatch() error: %v", err)
	}
	if !stored.IsMapped || stored.TotalEntries != 3 || stored.SkippedRows != 1 || len(stored.Mapping) != 3 {
		t.Errorf("batch after ReplaceRecords = %+v", stored)
	}
	if stored.MappedAt == nil || !stored.MappedAt.Equal(mappedAt) {
		t.Errorf("MappedAt = %v, want %v", stored.MappedAt, mappedAt)
	}

	again := []domain.TransactionRecord{Record("r4", "b1", "2024-02-01", "-1.00", "Bus")}
	if err := repo.ReplaceRecords(ctx, b, again); err != nil {
		t.Fatalf("second ReplaceRecords() error: %v", err)
	}
	got, err = repo.ListRecords(ctx, "b1")
	if err != nil {
		t.Fatalf("ListRecords() error: %v", err)
	}
	if !equalStrings(ids(got), []string{"r4"}) {
		t.Errorf("ListRecords() after replace = %v, want [r4]", ids(got))
	}

	if err := repo.ReplaceRecords(ctx, Batch("missing", 0), again); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReplaceRecords(missing batch) error = %v, want ErrNotFound", err)
	}
	if _, err := repo.ListRecords(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ListRecords(missing) error = %v, want ErrNotFound", err)
	}
}

func testAssignCategory(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	defer repo.Close()
	cats := seed(t, repo)

	b := Batch("b1", 0)
	mustCreate(t, repo, b)
	records := []domain.TransactionRecord{
		Record("r1", "b1", "2024-01-01", "-1", "A", cats["Food"], cats["Exclude"]),
		Record("r2", "b1", "2024-01-02", "-2", "B"),
		Record("r3", "b1", "2024-01-03", "-3", "C", cats["Food"]),
	}
	if err := repo.ReplaceRecords(ctx, b, records); err != nil {
		t.Fatalf("ReplaceRecords() error: %v", err)
	}

	if err := repo.AssignCategory(ctx, []string{"r1", "r2"}, cats["Hobby"].ID); err != nil {
		t.Fatalf("AssignCategory() error: %v", err)
	}

	got, err := repo.ListRecords(ctx, "b1")
	if err != nil {
		t.Fatalf("ListRecords() error: %v", err)
	}
	for _, r := range got[:2] {
		if len(r.Categories) != 1 || r.Categories[0].ID != cats["Hobby"].ID {
			t.Errorf("record %s categories = %v, want only Hobby", r.ID, r.Categories)
		}
	}
	if len(got[2].Categories) != 1 || got[2].Categories[0].ID != cats["Food"].ID {
		t.Errorf("record r3 categories = %v, want untouched Food", got[2].Categories)
	}

	if err := repo.AssignCategory(ctx, []string{"r1"}, "no-such-category"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AssignCategory(unknown category) error = %v, want ErrNotFound", err)
	}
	if err := repo.AssignCategory(ctx, []string{"nope"}, cats["Food"].ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AssignCategory(unknown record) error = %v, want ErrNotFound", err)
	}
}

func testFindCategorized(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	defer repo.Close()
	cats := seed(t, repo)

	b1, b2 := Batch("b1", 0), Batch("b2", time.Minute)
	mustCreate(t, repo, b1)
	mustCreate(t, repo, b2)
	if err := repo.ReplaceRecords(ctx, b1, []domain.TransactionRecord{
		Record("r1", "b1", "2024-01-01", "-43", "NETFLIX.COM", cats["Hobby"]),
		Record("r2", "b1", "2024-01-02", "-43", "netflix.com subscription"),
		Record("r3", "b1", "2024-01-03", "-5", "", cats["Food"]),
	}); err != nil {
		t.Fatalf("ReplaceRecords(b1) error: %v", err)
	}
	if err := repo.ReplaceRecords(ctx, b2, []domain.TransactionRecord{
		Record("r4", "b2", "2024-02-01", "-45", "Netflix.com 0224 subscription", cats["Hobby"]),
		Record("r5", "b2", "2024-02-02", "-9", "Bakery", cats["Food"]),
		Record("r6", "b2", "2024-02-03", "-120", "\tGym Membership\r\n", cats["Hobby"]),
	}); err != nil {
		t.Fatalf("ReplaceRecords(b2) error: %v", err)
	}

	got, err := repo.FindCategorized(ctx, "Netflix.com", 10)
	if err != nil {
		t.Fatalf("FindCategorized() error: %v", err)
	}
	found := make(map[string]bool)
	for _, r := range got {
		found[r.ID] = true
		if len(r.Categories) == 0 {
			t.Errorf("record %s returned without categories", r.ID)
		}
	}
	if len(got) != 2 || !found["r1"] || !found["r4"] {
		t.Errorf("FindCategorized(Netflix.com) = %v, want r1 and r4", ids(got))
	}

	got, err = repo.FindCategorized(ctx, "fresh bakery bread", 10)
	if err != nil {
		t.Fatalf("FindCategorized() error: %v", err)
	}
	if !equalStrings(ids(got), []string{"r5"}) {
		t.Errorf("FindCategorized(contains stored description) = %v, want [r5]", ids(got))
	}

	// Tabs and line breaks around a description are ignored like spaces.
	for _, text := range []string{"gym membership", "Monthly GYM MEMBERSHIP fee", "\tGym Membership\n"} {
		got, err = repo.FindCategorized(ctx, text, 10)
		if err != nil {
			t.Fatalf("FindCategorized(%q) error: %v", text, err)
		}
		if !equalStrings(ids(got), []string{"r6"}) {
			t.Errorf("FindCategorized(%q) = %v, want [r6]", text, ids(got))
		}
	}

	got, err = repo.FindCategorized(ctx, "netflix", 1)
	if err != nil {
		t.Fatalf("FindCategorized() error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("FindCategorized() with limit 1 returned %d records", len(got))
	}
}

func testDeleteBatch(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	defer repo.Close()
	cats := seed(t, repo)

	b := Batch("b1", 0)
	mustCreate(t, repo, b)
	keep := Batch("b2", time.Minute)
	mustCreate(t, repo, keep)
	if err := repo.ReplaceRecords(ctx, b, []domain.TransactionRecord{
		Record("r1", "b1", "2024-01-01", "-1", "Gym", cats["Hobby"]),
	}); err != nil {
		t.Fatalf("ReplaceRecords() error: %v", err)
	}
	if err := repo.ReplaceRecords(ctx, keep, []domain.TransactionRecord{
		Record("r2", "b2", "2024-01-01", "-1", "Gym pass", cats["Hobby"]),
	}); err != nil {
		t.Fatalf("ReplaceRecords() error: %v", err)
	}

	if err := repo.DeleteBatch(ctx, "b1"); err != nil {
		t.Fatalf("DeleteBatch() error: %v", err)
	}

	if _, err := repo.GetBatch(ctx, "b1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetBatch() after delete error = %v, want ErrNotFound", err)
	}
	got, err := repo.FindCategorized(ctx, "gym", 10)
	if err != nil {
		t.Fatalf("FindCategorized() error: %v", err)
	}
	if !equalStrings(ids(got), []string{"r2"}) {
		t.Errorf("FindCategorized() after delete = %v, want [r2]", ids(got))
	}
	if len(cats) != 3 {
		t.Errorf("categories changed by batch delete")
	}
}
