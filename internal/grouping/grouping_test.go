package grouping

import (
	"fmt"
	"reflect"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/txgroup/internal/domain"
)

func strPtr(s string) *string { return &s }

func record(id, date, amount, desc string, recipient, typ *string) domain.TransactionRecord {
	d, err := civil.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return domain.TransactionRecord{
		ID:              id,
		TransactionDate: d,
		Amount:          decimal.RequireFromString(amount),
		Description:     desc,
		Recipient:       recipient,
		Type:            typ,
	}
}

func groupIDs(groups []TypeGroup) [][]string {
	var out [][]string
	for _, tg := range groups {
		for _, g := range tg.Groups {
			out = append(out, g.RecordIDs())
		}
	}
	return out
}

func TestGroup_CoffeeShopScenario(t *testing.T) {
	acme := strPtr("Acme Cafe")
	records := []domain.TransactionRecord{
		record("1", "2024-01-01", "-50.00", "Coffee Shop", acme, nil),
		record("2", "2024-01-05", "-52.00", "Coffee Shop #2", acme, nil),
	}

	got := Group(records)

	if len(got) != 1 || got[0].Type != domain.UncategorizedType {
		t.Fatalf("Group() = %+v, want one uncategorized bucket", got)
	}
	if len(got[0].Groups) != 1 {
		t.Fatalf("len(Groups) = %d, want 1", len(got[0].Groups))
	}
	g := got[0].Groups[0]
	if g.Main.ID != "1" || len(g.Similar) != 1 || g.Similar[0].ID != "2" {
		t.Errorf("group = %v, want main 1 with similar [2]", g.RecordIDs())
	}
	if !g.TotalAmount.Equal(decimal.RequireFromString("-102.00")) {
		t.Errorf("TotalAmount = %s, want -102.00", g.TotalAmount)
	}
}

func TestGroup_Empty(t *testing.T) {
	if got := Group(nil); len(got) != 0 {
		t.Errorf("Group(nil) = %v, want empty", got)
	}
}

func TestGroup_RecipientMustMatch(t *testing.T) {
	records := []domain.TransactionRecord{
		record("1", "2024-01-01", "-10", "Netflix", strPtr("Netflix Inc"), nil),
		record("2", "2024-01-02", "-10", "Netflix", strPtr("Netflix BV"), nil),
		record("3", "2024-01-03", "-10", "Netflix", nil, nil),
		record("4", "2024-01-04", "-10", "Netflix", strPtr(""), nil),
	}

	got := groupIDs(Group(records))
	want := [][]string{{"3", "4"}, {"1"}, {"2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v (nil and empty recipient are equal)", got, want)
	}
}

func TestGroup_SingletonsOrderedByAmount(t *testing.T) {
	records := []domain.TransactionRecord{
		record("a", "2024-01-01", "-5", "aaaa", nil, nil),
		record("b", "2024-01-02", "100", "bbbb", nil, nil),
		record("c", "2024-01-03", "-30", "cccc", nil, nil),
		record("d", "2024-01-04", "30", "dddd", nil, nil),
	}

	got := groupIDs(Group(records))
	want := [][]string{{"b"}, {"c"}, {"d"}, {"a"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
}

func TestGroup_TypeBucketsOrderedByAbsoluteTotal(t *testing.T) {
	card, transfer, fee := strPtr("card"), strPtr("transfer"), strPtr("fee")
	records := []domain.TransactionRecord{
		record("1", "2024-01-01", "-20", "Shop", nil, card),
		record("2", "2024-01-02", "-500", "Rent", nil, transfer),
		record("3", "2024-01-03", "-1", "Fee", nil, fee),
		record("4", "2024-01-04", "-3", "Other", nil, nil),
	}

	got := Group(records)

	var types []string
	for _, tg := range got {
		types = append(types, tg.Type)
	}
	want := []string{"transfer", "card", domain.UncategorizedType, "fee"}
	if !reflect.DeepEqual(types, want) {
		t.Errorf("type order = %v, want %v", types, want)
	}
}

func TestGroup_SortsByDateBeforeClustering(t *testing.T) {
	records := []domain.TransactionRecord{
		record("late", "2024-03-01", "-10", "Gym", nil, nil),
		record("early", "2024-01-01", "-10", "Gym", nil, nil),
	}

	got := Group(records)
	g := got[0].Groups[0]
	if g.Main.ID != "early" {
		t.Errorf("main = %s, want the earliest record", g.Main.ID)
	}
	if records[0].ID != "late" {
		t.Error("Group() reordered the caller's slice")
	}
}

func TestGroup_GreedyConsumption(t *testing.T) {
	// With a scorer where A~B and B~C but not A~C, B joins A and C is never
	// compared to B again.
	pairs := map[string]bool{"A|B": true, "B|C": true}
	e := &Engine{
		Threshold: 80,
		Score: func(a, b string) float64 {
			if pairs[a+"|"+b] || pairs[b+"|"+a] {
				return 100
			}
			return 0
		},
	}
	records := []domain.TransactionRecord{
		record("a", "2024-01-01", "-3", "A", nil, nil),
		record("b", "2024-01-02", "-2", "B", nil, nil),
		record("c", "2024-01-03", "-1", "C", nil, nil),
	}

	got := groupIDs(e.Group(records))
	want := [][]string{{"a", "b"}, {"c"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
}

func TestGroup_ThresholdIsExclusive(t *testing.T) {
	e := &Engine{Threshold: 80, Score: func(a, b string) float64 { return 80 }}
	records := []domain.TransactionRecord{
		record("1", "2024-01-01", "-1", "x", nil, nil),
		record("2", "2024-01-02", "-1", "y", nil, nil),
	}

	if got := groupIDs(e.Group(records)); len(got) != 2 {
		t.Errorf("groups = %v, want two singletons at exactly the threshold", got)
	}
}

func TestGroup_CalculableAmounts(t *testing.T) {
	excluded := record("2", "2024-01-02", "-40", "Transfer to savings", nil, nil)
	excluded.Categories = []domain.Category{{ID: "x", ExcludeFromCalculations: true}}
	records := []domain.TransactionRecord{
		record("1", "2024-01-01", "-40", "Transfer to savings", nil, nil),
		excluded,
	}

	got := Group(records)
	g := got[0].Groups[0]
	if !g.TotalAmount.Equal(decimal.NewFromInt(-80)) {
		t.Errorf("TotalAmount = %s, want -80", g.TotalAmount)
	}
	if !g.CalculableAmount.Equal(decimal.NewFromInt(-40)) {
		t.Errorf("CalculableAmount = %s, want -40", g.CalculableAmount)
	}
	if !got[0].TotalAmount.Equal(decimal.NewFromInt(-80)) || !got[0].CalculableAmount.Equal(decimal.NewFromInt(-40)) {
		t.Errorf("type totals = %s / %s, want -80 / -40", got[0].TotalAmount, got[0].CalculableAmount)
	}
}

func TestGroup_PartitionAndDeterminism(t *testing.T) {
	recipients := []*string{nil, strPtr("Shop"), strPtr("Landlord")}
	types := []*string{nil, strPtr("card"), strPtr("transfer")}
	descs := []string{"Grocery 0012", "Grocery 0099", "Rent March", "Rent April", "Coffee", "Coffee #3", "Bus ticket"}

	var records []domain.TransactionRecord
	for i := 0; i < 60; i++ {
		records = append(records, record(
			fmt.Sprintf("r%02d", i),
			fmt.Sprintf("2024-%02d-%02d", i%12+1, i%28+1),
			fmt.Sprintf("-%d.%02d", i%17+1, i%100),
			descs[i%len(descs)],
			recipients[i%len(recipients)],
			types[i%len(types)],
		))
	}

	first := Group(records)
	second := Group(records)
	if !reflect.DeepEqual(groupIDs(first), groupIDs(second)) {
		t.Fatal("Group() is not deterministic")
	}

	seen := make(map[string]int)
	for _, ids := range groupIDs(first) {
		for _, id := range ids {
			seen[id]++
		}
	}
	if len(seen) != len(records) {
		t.Errorf("grouped %d distinct records, want %d", len(seen), len(records))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("record %s appears %d times", id, n)
		}
	}
}
