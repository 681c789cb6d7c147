package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

var (
	food    = Category{ID: "c-food", Name: "Food"}
	exclude = Category{ID: "c-excl", Name: "Exclude", ExcludeFromCalculations: true}
)

func TestCalculableAmount(t *testing.T) {
	amount := decimal.RequireFromString("-42.50")

	tests := []struct {
		name           string
		categories     []Category
		wantCalculable bool
		wantAmount     decimal.Decimal
		wantStatus     Status
	}{
		{"no categories", nil, true, amount, StatusUncategorized},
		{"regular category", []Category{food}, true, amount, StatusCategorized},
		{"excluded category", []Category{exclude}, false, decimal.Zero, StatusExcluded},
		{"excluded among others", []Category{food, exclude}, false, decimal.Zero, StatusExcluded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := TransactionRecord{Amount: amount, Categories: tt.categories}

			if got := IsCalculable(r); got != tt.wantCalculable {
				t.Errorf("IsCalculable() = %v, want %v", got, tt.wantCalculable)
			}
			if got := CalculableAmount(r); !got.Equal(tt.wantAmount) {
				t.Errorf("CalculableAmount() = %s, want %s", got, tt.wantAmount)
			}
			if got := r.CalculableAmount(); !got.Equal(tt.wantAmount) {
				t.Errorf("r.CalculableAmount() = %s, want %s", got, tt.wantAmount)
			}
			if got := StatusOf(r); got != tt.wantStatus {
				t.Errorf("StatusOf() = %s, want %s", got, tt.wantStatus)
			}
		})
	}
}

func TestSumAmounts(t *testing.T) {
	records := []TransactionRecord{
		{Amount: decimal.RequireFromString("-10.00")},
		{Amount: decimal.RequireFromString("-5.25"), Categories: []Category{exclude}},
		{Amount: decimal.RequireFromString("100.00"), Categories: []Category{food}},
	}

	total, calculable := SumAmounts(records)
	if !total.Equal(decimal.RequireFromString("84.75")) {
		t.Errorf("total = %s, want 84.75", total)
	}
	if !calculable.Equal(decimal.RequireFromString("90")) {
		t.Errorf("calculable = %s, want 90", calculable)
	}
}

func TestTransactionRecord_Accessors(t *testing.T) {
	empty := ""
	card := "card"

	tests := []struct {
		name          string
		recipient     *string
		typ           *string
		wantRecipient string
		wantType      string
	}{
		{"nil fields", nil, nil, "", UncategorizedType},
		{"empty type", nil, &empty, "", UncategorizedType},
		{"set fields", &card, &card, "card", "card"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := TransactionRecord{Recipient: tt.recipient, Type: tt.typ}
			if got := r.RecipientOrEmpty(); got != tt.wantRecipient {
				t.Errorf("RecipientOrEmpty() = %q, want %q", got, tt.wantRecipient)
			}
			if got := r.TypeOrDefault(); got != tt.wantType {
				t.Errorf("TypeOrDefault() = %q, want %q", got, tt.wantType)
			}
		})
	}
}
