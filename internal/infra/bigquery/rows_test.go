package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/mapping"
)

func TestDataset_Table(t *testing.T) {
	ds := Dataset{ProjectID: "proj", DatasetID: "ledger"}
	if got, want := ds.Table(recordsTable), "`proj.ledger.transaction_records`"; got != want {
		t.Errorf("Table() = %s, want %s", got, want)
	}
}

func TestBatchRow_RoundTrip(t *testing.T) {
	mapped := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	b := &domain.ImportBatch{
		ID:               "b1",
		StoredFile:       "gs://bucket/b1.csv",
		OriginalFilename: "export.csv",
		Headers:          []string{"Date", "Kwota", "Opis"},
		Mapping: mapping.ColumnMapping{
			{Header: "Date", Field: mapping.FieldDate},
			{Header: "Kwota", Field: mapping.FieldAmount},
			{Header: "Opis", Field: mapping.FieldDescription},
		},
		IsMapped:     true,
		TotalEntries: 12,
		SkippedRows:  1,
		CreatedAt:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		MappedAt:     &mapped,
	}

	row, err := toBatchRow(b)
	if err != nil {
		t.Fatalf("toBatchRow() error: %v", err)
	}
	if !row.MappedTS.Valid || row.TotalEntries != 12 {
		t.Errorf("toBatchRow() = %+v", row)
	}

	back, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain() error: %v", err)
	}
	if h, _ := back.Mapping.HeaderFor(mapping.FieldAmount); h != "Kwota" {
		t.Errorf("mapping lost: %+v", back.Mapping)
	}
	if back.MappedAt == nil || !back.MappedAt.Equal(mapped) {
		t.Errorf("MappedAt = %v, want %v", back.MappedAt, mapped)
	}
}

func TestBatchRow_UnmappedHasEmptyHeaders(t *testing.T) {
	row, err := toBatchRow(&domain.ImportBatch{ID: "b1"})
	if err != nil {
		t.Fatalf("toBatchRow() error: %v", err)
	}
	if row.Headers == nil {
		t.Error("Headers is nil, want empty slice for the REPEATED column")
	}
	if row.MappedTS.Valid {
		t.Error("MappedTS is set for an unmapped batch")
	}
}

func TestRecordParam_OptionalColumns(t *testing.T) {
	payee := "Shop"
	r := domain.TransactionRecord{
		ID:              "r1",
		TransactionDate: civil.Date{Year: 2024, Month: 1, Day: 5},
		Amount:          decimal.RequireFromString("-19.99"),
		Currency:        "PLN",
		Description:     "Groceries",
		Recipient:       &payee,
	}

	p, err := toRecordParam(r, "b1", 3)
	if err != nil {
		t.Fatalf("toRecordParam() error: %v", err)
	}
	if p.Recipient != "Shop" || p.Type != "" || p.Position != 3 || p.BatchID != "b1" {
		t.Errorf("toRecordParam() = %+v", p)
	}
	if p.Amount.Cmp(big.NewRat(-1999, 100)) != 0 {
		t.Errorf("Amount = %s, want -19.99", p.Amount.FloatString(2))
	}
}

func TestRecordRow_ToDomain(t *testing.T) {
	row := &RecordRow{
		RecordID:        "r1",
		BatchID:         "b1",
		TransactionDate: civil.Date{Year: 2024, Month: 1, Day: 5},
		Amount:          big.NewRat(-1999, 100),
		Currency:        "PLN",
		Description:     "Groceries",
		Type:            bigquery.NullString{StringVal: "card", Valid: true},
		OriginalData:    `{"Opis":"Groceries","Kwota":"-19,99"}`,
	}

	r, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain() error: %v", err)
	}
	if !r.Amount.Equal(decimal.RequireFromString("-19.99")) {
		t.Errorf("Amount = %s", r.Amount)
	}
	if r.Recipient != nil {
		t.Errorf("Recipient = %q, want nil", *r.Recipient)
	}
	if r.Type == nil || *r.Type != "card" {
		t.Errorf("Type = %v, want card", r.Type)
	}
	if len(r.OriginalData) != 2 || r.OriginalData[0].Header != "Opis" {
		t.Errorf("OriginalData = %+v, want column order kept", r.OriginalData)
	}
}

func TestRatToDecimal(t *testing.T) {
	tests := []struct {
		in   *big.Rat
		want string
	}{
		{nil, "0"},
		{big.NewRat(1, 3), "0.33"},
		{big.NewRat(-5, 2), "-2.5"},
	}

	for _, tt := range tests {
		if got := ratToDecimal(tt.in); !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ratToDecimal(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
