package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/txgroup/internal/domain"
)

// ListCategoriesWithClient returns all categories ordered by name.
func ListCategoriesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset) ([]CategoryRow, error) {
	q := client.Query(`
		SELECT
		  category_id,
		  name,
		  color,
		  exclude_from_calculations
		FROM ` + ds.Table(categoriesTable) + `
		ORDER BY name, category_id
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query read: %w", err)
	}

	var rows []CategoryRow
	for {
		var r CategoryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCategories: iter next: %w", err)
		}
		rows = append(rows, r)
	}

	return rows, nil
}

// SeedCategoriesWithClient inserts every category whose name is not taken
// yet.
func SeedCategoriesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, categories []domain.Category) error {
	existing, err := ListCategoriesWithClient(ctx, client, ds)
	if err != nil {
		return fmt.Errorf("SeedCategories: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, c := range existing {
		names[c.Name] = true
	}

	var missing []CategoryRow
	for _, c := range categories {
		if names[c.Name] {
			continue
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		missing = append(missing, CategoryRow{
			CategoryID:              id,
			Name:                    c.Name,
			Color:                   c.Color,
			ExcludeFromCalculations: c.ExcludeFromCalculations,
		})
		names[c.Name] = true
	}
	if len(missing) == 0 {
		return nil
	}

	q := client.Query(`
		INSERT INTO ` + ds.Table(categoriesTable) + ` (category_id, name, color, exclude_from_calculations)
		SELECT c.category_id, c.name, c.color, c.exclude_from_calculations
		FROM UNNEST(@categories) AS c
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "categories", Value: missing},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("SeedCategories: %w", err)
	}
	return nil
}

// categoryIDs returns the subset of ids that exist.
func categoryIDs(ctx context.Context, client *bigquery.Client, ds Dataset, ids []string) ([]string, error) {
	q := client.Query(`
		SELECT category_id
		FROM ` + ds.Table(categoriesTable) + `
		WHERE category_id IN UNNEST(@ids)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("category lookup: query read: %w", err)
	}

	var found []string
	for {
		var r struct {
			CategoryID string `bigquery:"category_id"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("category lookup: iter next: %w", err)
		}
		found = append(found, r.CategoryID)
	}
	return found, nil
}
