package main

import (
	"errors"
	"testing"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/mapping"
)

func TestParseMapping(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    mapping.ColumnMapping
		wantErr error
	}{
		{
			name: "required fields in field order",
			in:   "description=Tytuł, date=Data operacji,Amount=Kwota",
			want: mapping.ColumnMapping{
				{Header: "Data operacji", Field: mapping.FieldDate},
				{Header: "Kwota", Field: mapping.FieldAmount},
				{Header: "Tytuł", Field: mapping.FieldDescription},
			},
		},
		{
			name: "blank pairs ignored",
			in:   "date=D,,amount=A,",
			want: mapping.ColumnMapping{
				{Header: "D", Field: mapping.FieldDate},
				{Header: "A", Field: mapping.FieldAmount},
			},
		},
		{name: "unknown field", in: "when=D", wantErr: mapping.ErrUnknownField},
		{name: "duplicate field", in: "date=D,date=E", wantErr: mapping.ErrDuplicateField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMapping(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseMapping() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseMapping() error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseMapping() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("assignment %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := parseMapping("date"); err == nil {
		t.Error("parseMapping() accepted a pair without '='")
	}
}

func TestSplitIDs(t *testing.T) {
	got := splitIDs(" a, ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitIDs() = %v", got)
	}
}

func TestFindCategory(t *testing.T) {
	cats := []domain.Category{{ID: "c1", Name: "Food"}, {ID: "food", Name: "Other"}}

	if c, ok := findCategory(cats, "food"); !ok || c.ID != "food" {
		t.Errorf("ID match should win, got %+v", c)
	}
	if c, ok := findCategory(cats, "FOOD "); ok {
		t.Errorf("untrimmed ref matched %+v", c)
	}
	if c, ok := findCategory(cats, "other"); !ok || c.ID != "food" {
		t.Errorf("name match = %+v", c)
	}
	if _, ok := findCategory(cats, "missing"); ok {
		t.Error("missing category matched")
	}
}
